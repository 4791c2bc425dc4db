package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// alwaysMissDB is a db.DBTX that fails every query, standing in for "API key
// not found" without a real database connection.
type alwaysMissDB struct{}

func (alwaysMissDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, pgx.ErrNoRows
}

func (alwaysMissDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (alwaysMissDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return missingRow{}
}

type missingRow struct{}

func (missingRow) Scan(...any) error { return pgx.ErrNoRows }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestMiddleware_Anonymous verifies the middleware never rejects by itself:
// with no credential presented, the request proceeds with no Caller set,
// leaving rejection to RequireAuth/RequireAdmin mounted per-route.
func TestMiddleware_Anonymous(t *testing.T) {
	apiKeyAuth := NewAPIKeyAuthenticator(nil)
	sessionMgr := NewSessionManager(nil, time.Hour, true)
	mw := Middleware(apiKeyAuth, sessionMgr, nil, testLogger())

	var gotCaller *Caller
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotCaller != nil {
		t.Errorf("expected nil caller for an anonymous request, got %+v", gotCaller)
	}
}

// TestMiddleware_InvalidAPIKey verifies a presented-but-invalid API key is
// rejected at the middleware rather than left for RequireAuth, since an
// unresolvable credential is a hard auth_invalid, not "anonymous".
func TestMiddleware_InvalidAPIKey(t *testing.T) {
	apiKeyAuth := NewAPIKeyAuthenticator(&alwaysMissDB{})
	sessionMgr := NewSessionManager(nil, time.Hour, true)
	mw := Middleware(apiKeyAuth, sessionMgr, nil, testLogger())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Api-Key", "cck_bogus")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestBearerOrAPIKeyHeader(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request)
		wantOK bool
	}{
		{"no header", func(*http.Request) {}, false},
		{"x-api-key", func(r *http.Request) { r.Header.Set("X-Api-Key", "cck_abc") }, true},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer cck_abc") }, true},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer cck_abc") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			got := bearerOrAPIKeyHeader(r) != ""
			if got != tt.wantOK {
				t.Errorf("bearerOrAPIKeyHeader() presence = %v, want %v", got, tt.wantOK)
			}
		})
	}
}
