package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thecontextcache/contextcache-sub001/internal/db"
)

// ErrAPIKeyInvalid covers missing, revoked, and expired keys.
var ErrAPIKeyInvalid = errors.New("api key invalid")

// APIKeyAuthenticator validates API keys against the database. Retained
// nearly verbatim from the teacher's core/pkg/auth/apikey.go: hash, look up,
// check revoked/expired, best-effort async last_used_at update.
type APIKeyAuthenticator struct {
	db db.DBTX
}

// NewAPIKeyAuthenticator creates an APIKeyAuthenticator over pool.
func NewAPIKeyAuthenticator(pool db.DBTX) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{db: pool}
}

// Authenticate hashes rawKey, looks it up, and validates expiry/revocation.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, rawKey string) (db.APIKey, error) {
	if rawKey == "" {
		return db.APIKey{}, ErrAPIKeyInvalid
	}

	hash := HashSecret(rawKey)

	q := db.New(a.db)
	key, err := q.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return db.APIKey{}, fmt.Errorf("%w: %v", ErrAPIKeyInvalid, err)
	}

	if key.RevokedAt != nil {
		return db.APIKey{}, ErrAPIKeyInvalid
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return db.APIKey{}, ErrAPIKeyInvalid
	}

	// Update last_used_at asynchronously — fire and forget, not on the
	// critical path per §4.2.
	go func() {
		_ = q.UpdateAPIKeyLastUsed(context.Background(), key.ID)
	}()

	return key, nil
}
