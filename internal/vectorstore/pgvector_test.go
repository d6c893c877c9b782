package vectorstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Requires a PostgreSQL server with the pgvector extension available.
func TestPgVectorStore_Integration(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_TEST_DSN not set")
	}

	ctx := context.Background()
	store, err := NewPgVectorStore(dsn)
	if err != nil {
		t.Fatalf("NewPgVectorStore() error = %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	if err := store.EnsureSchema(ctx, 3); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	near := uuid.New().String()
	far := uuid.New().String()
	foreign := uuid.New().String()
	owner := "owner-" + uuid.New().String()
	now := time.Now()

	points := []Point{
		{ID: near, Vec: []float32{1, 0, 0}, OwnerID: owner, CreatedAt: now},
		{ID: far, Vec: []float32{0, 1, 0}, OwnerID: owner, CreatedAt: now},
		{ID: foreign, Vec: []float32{1, 0, 0}, OwnerID: "someone-else", CreatedAt: now},
	}
	if err := store.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	t.Cleanup(func() {
		_ = store.Delete(context.Background(), []string{near, far, foreign})
	})

	results, err := store.Search(ctx, []float32{1, 0.1, 0}, owner, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].PointID != near {
		t.Errorf("first result = %s, want %s", results[0].PointID, near)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v, %v", results[0].Score, results[1].Score)
	}

	if err := store.Delete(ctx, []string{near}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	results, err = store.Search(ctx, []float32{1, 0, 0}, owner, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, r := range results {
		if r.PointID == near {
			t.Error("deleted vector still returned")
		}
	}
}
