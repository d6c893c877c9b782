package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"fixnote/internal/contextutil"
)

// PgVectorStore implements VectorStore on PostgreSQL with the pgvector extension.
type PgVectorStore struct {
	db *sql.DB
}

// NewPgVectorStore opens a PostgreSQL connection for vector storage.
func NewPgVectorStore(dsn string) (*PgVectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	return &PgVectorStore{db: db}, nil
}

// EnsureSchema creates the extension and the note_vectors table.
func (s *PgVectorStore) EnsureSchema(ctx context.Context, vectorSize int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS note_vectors (
			note_id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, vectorSize),
		`CREATE INDEX IF NOT EXISTS idx_note_vectors_owner ON note_vectors (owner_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to prepare vector schema")
		}
	}
	return nil
}

// Upsert inserts or updates note vectors.
func (s *PgVectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := `
		INSERT INTO note_vectors (note_id, owner_id, embedding, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (note_id)
		DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			embedding = EXCLUDED.embedding
	`
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, stmt, p.ID, p.OwnerID, pgvector.NewVector(p.Vec), p.CreatedAt.UTC()); err != nil {
			return errors.Wrap(err, "failed to upsert note vector")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit note vectors")
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "upserted points", "backend", "pgvector", "count", len(points))
	return nil
}

// Search orders an owner's vectors by cosine distance.
// The <=> operator computes cosine distance, so similarity is 1 - distance.
func (s *PgVectorStore) Search(ctx context.Context, query []float32, ownerID string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, errors.New("k must be greater than 0")
	}

	vector := pgvector.NewVector(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT note_id, owner_id, 1 - (embedding <=> $1) AS score
		FROM note_vectors
		WHERE owner_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vector, ownerID, k)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r     SearchResult
			score float64
		)
		if err := rows.Scan(&r.PointID, &r.OwnerID, &score); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		r.Score = float32(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Delete removes note vectors by note ID.
func (s *PgVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM note_vectors WHERE note_id = ANY($1)`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "failed to delete note vectors")
	}
	return nil
}

// Ping checks the database connection.
func (s *PgVectorStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "postgres ping failed")
}

// Close closes the database connection.
func (s *PgVectorStore) Close() error {
	return s.db.Close()
}
