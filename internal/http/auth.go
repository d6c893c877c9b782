package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"fixnote/internal/contextutil"
)

const (
	initDataHeader = "X-Telegram-Init-Data"
	ownerHeader    = "X-Owner-ID"
)

// AuthMode selects how requests are authenticated.
type AuthMode string

const (
	// AuthTelegram validates Telegram WebApp init data signed with the bot token.
	AuthTelegram AuthMode = "telegram"
	// AuthHeader trusts the X-Owner-ID header. For local development only.
	AuthHeader AuthMode = "header"
)

var (
	errMissingCredentials = errors.New("missing credentials")
	errInvalidInitData    = errors.New("invalid init data")
	errInitDataExpired    = errors.New("init data expired")
	errUserNotAllowed     = errors.New("user not allowed")
)

// AuthConfig configures the Authenticator.
type AuthConfig struct {
	Mode     AuthMode
	BotToken string
	// AllowedUsers restricts access when non-empty.
	AllowedUsers []string
	// MaxAge rejects init data signed longer ago than this. Zero disables the check.
	MaxAge time.Duration
}

// Authenticator resolves the owner of each request.
type Authenticator struct {
	mode     AuthMode
	botToken string
	allowed  map[string]struct{}
	maxAge   time.Duration
	now      func() time.Time
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	allowed := make(map[string]struct{}, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowed[id] = struct{}{}
	}
	return &Authenticator{
		mode:     cfg.Mode,
		botToken: cfg.BotToken,
		allowed:  allowed,
		maxAge:   cfg.MaxAge,
		now:      time.Now,
	}
}

// Middleware rejects unauthenticated requests with 401 (403 for users outside
// the allow list) and stores the owner ID in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := contextutil.LoggerFromContext(ctx)

		owner, err := a.authenticate(r)
		if err != nil {
			logger.WarnContext(ctx, "authentication failed", "error", err)
			status := http.StatusUnauthorized
			if errors.Is(err, errUserNotAllowed) {
				status = http.StatusForbidden
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
			return
		}

		ctx = contextutil.WithOwner(ctx, owner)
		ctx = contextutil.WithLogger(ctx, logger.With("owner_id", owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (string, error) {
	var owner string
	switch a.mode {
	case AuthHeader:
		owner = strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			return "", errMissingCredentials
		}
	default:
		initData := r.Header.Get(initDataHeader)
		if initData == "" {
			return "", errMissingCredentials
		}
		id, err := ValidateInitData(initData, a.botToken, a.maxAge, a.now())
		if err != nil {
			return "", err
		}
		owner = id
	}

	if len(a.allowed) > 0 {
		if _, ok := a.allowed[owner]; !ok {
			return "", fmt.Errorf("%w: %s", errUserNotAllowed, owner)
		}
	}
	return owner, nil
}

// ValidateInitData checks the signature of Telegram WebApp init data and
// returns the Telegram user ID it carries.
//
// The data-check string is every field except hash, sorted by key, as
// key=value lines joined with "\n". The expected hash is
// hex(HMAC-SHA256(key=HMAC-SHA256(key="WebAppData", botToken), data-check string)).
func ValidateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (string, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidInitData, err)
	}
	received := values.Get("hash")
	if received == "" {
		return "", fmt.Errorf("%w: missing hash", errInvalidInitData)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	expected := hmacSHA256(secret, []byte(strings.Join(lines, "\n")))
	got, err := hex.DecodeString(received)
	if err != nil || !hmac.Equal(got, expected) {
		return "", fmt.Errorf("%w: hash mismatch", errInvalidInitData)
	}

	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: bad auth_date", errInvalidInitData)
		}
		if now.Sub(time.Unix(authDate, 0)) > maxAge {
			return "", errInitDataExpired
		}
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return "", fmt.Errorf("%w: no user", errInvalidInitData)
	}
	return strconv.FormatInt(user.ID, 10), nil
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// SemanticAccess grants semantic search to the listed owners, or to everyone
// when the list is empty.
type SemanticAccess struct {
	users map[string]struct{}
}

// NewSemanticAccess creates a SemanticAccess from a list of owner IDs.
func NewSemanticAccess(users []string) *SemanticAccess {
	m := make(map[string]struct{}, len(users))
	for _, u := range users {
		m[u] = struct{}{}
	}
	return &SemanticAccess{users: m}
}

// SemanticSearchAllowed implements handlers.SemanticAccess.
func (s *SemanticAccess) SemanticSearchAllowed(ownerID string) bool {
	if len(s.users) == 0 {
		return true
	}
	_, ok := s.users[ownerID]
	return ok
}
