package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"fixnote/internal/contextutil"
)

const testBotToken = "123456:TEST-TOKEN"

// signInitData builds init data the way Telegram clients receive it.
func signInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	values := url.Values{}
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
		values.Set(k, fields[k])
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestValidateInitData(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fresh := "1700000000"
	stale := "1699900000"
	user := `{"id":42,"first_name":"Ann"}`

	tests := []struct {
		name     string
		initData func(t *testing.T) string
		maxAge   time.Duration
		wantID   string
		wantErr  error
	}{
		{
			name: "valid",
			initData: func(t *testing.T) string {
				return signInitData(t, testBotToken, map[string]string{"auth_date": fresh, "query_id": "q1", "user": user})
			},
			wantID: "42",
		},
		{
			name: "valid within max age",
			initData: func(t *testing.T) string {
				return signInitData(t, testBotToken, map[string]string{"auth_date": fresh, "user": user})
			},
			maxAge: time.Hour,
			wantID: "42",
		},
		{
			name: "expired",
			initData: func(t *testing.T) string {
				return signInitData(t, testBotToken, map[string]string{"auth_date": stale, "user": user})
			},
			maxAge:  time.Hour,
			wantErr: errInitDataExpired,
		},
		{
			name: "stale accepted without max age",
			initData: func(t *testing.T) string {
				return signInitData(t, testBotToken, map[string]string{"auth_date": stale, "user": user})
			},
			wantID: "42",
		},
		{
			name: "signed with another bot token",
			initData: func(t *testing.T) string {
				return signInitData(t, "999:OTHER", map[string]string{"auth_date": fresh, "user": user})
			},
			wantErr: errInvalidInitData,
		},
		{
			name: "tampered user",
			initData: func(t *testing.T) string {
				data := signInitData(t, testBotToken, map[string]string{"auth_date": fresh, "user": user})
				return strings.Replace(data, "42", "43", 1)
			},
			wantErr: errInvalidInitData,
		},
		{
			name: "missing hash",
			initData: func(t *testing.T) string {
				return "auth_date=" + fresh + "&user=" + url.QueryEscape(user)
			},
			wantErr: errInvalidInitData,
		},
		{
			name: "missing user",
			initData: func(t *testing.T) string {
				return signInitData(t, testBotToken, map[string]string{"auth_date": fresh})
			},
			wantErr: errInvalidInitData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ValidateInitData(tt.initData(t), testBotToken, tt.maxAge, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ValidateInitData() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateInitData() unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("ValidateInitData() = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestAuthenticator_Middleware(t *testing.T) {
	user := `{"id":42}`
	valid := signInitData(t, testBotToken, map[string]string{"auth_date": "1700000000", "user": user})

	tests := []struct {
		name       string
		cfg        AuthConfig
		headers    map[string]string
		wantStatus int
		wantOwner  string
	}{
		{
			name:       "telegram valid",
			cfg:        AuthConfig{Mode: AuthTelegram, BotToken: testBotToken},
			headers:    map[string]string{initDataHeader: valid},
			wantStatus: http.StatusOK,
			wantOwner:  "42",
		},
		{
			name:       "telegram missing",
			cfg:        AuthConfig{Mode: AuthTelegram, BotToken: testBotToken},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "telegram invalid",
			cfg:        AuthConfig{Mode: AuthTelegram, BotToken: "other"},
			headers:    map[string]string{initDataHeader: valid},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "telegram user not in allow list",
			cfg:        AuthConfig{Mode: AuthTelegram, BotToken: testBotToken, AllowedUsers: []string{"7"}},
			headers:    map[string]string{initDataHeader: valid},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "telegram user in allow list",
			cfg:        AuthConfig{Mode: AuthTelegram, BotToken: testBotToken, AllowedUsers: []string{"7", "42"}},
			headers:    map[string]string{initDataHeader: valid},
			wantStatus: http.StatusOK,
			wantOwner:  "42",
		},
		{
			name:       "header mode",
			cfg:        AuthConfig{Mode: AuthHeader},
			headers:    map[string]string{ownerHeader: "alice"},
			wantStatus: http.StatusOK,
			wantOwner:  "alice",
		},
		{
			name:       "header mode ignores init data",
			cfg:        AuthConfig{Mode: AuthHeader},
			headers:    map[string]string{initDataHeader: valid},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOwner string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotOwner = contextutil.OwnerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			auth := NewAuthenticator(tt.cfg)
			auth.now = func() time.Time { return time.Unix(1700000000, 0) }

			req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			auth.Middleware(next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			if gotOwner != tt.wantOwner {
				t.Errorf("owner = %q, want %q", gotOwner, tt.wantOwner)
			}
		})
	}
}

func TestSemanticAccess(t *testing.T) {
	open := NewSemanticAccess(nil)
	if !open.SemanticSearchAllowed("anyone") {
		t.Error("empty allow list should grant everyone")
	}
	restricted := NewSemanticAccess([]string{"42"})
	if !restricted.SemanticSearchAllowed("42") {
		t.Error("listed owner should be allowed")
	}
	if restricted.SemanticSearchAllowed("7") {
		t.Error("unlisted owner should be denied")
	}
}
