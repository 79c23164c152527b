// Package session manages bearer-token web sessions established by auth-code
// redemption.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bothive/bothive/internal/errs"
)

// Principal identifies the authenticated tenant on a request.
type Principal struct {
	TenantID int64
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ExtractBearerToken pulls the bearer token out of the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	if token == "" {
		return "", errors.New("missing session token")
	}
	return token, nil
}

// Manager persists sessions in sqlite. Tokens are random UUIDs; possession is
// the credential.
type Manager struct {
	db *sql.DB
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Create opens a session for tenantID and returns its token.
func (m *Manager) Create(ctx context.Context, tenantID int64) (string, error) {
	token := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := m.db.ExecContext(ctx,
		"INSERT INTO sessions(token, tenant_id, created_at) VALUES(?, ?, ?);",
		token, tenantID, now); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// Resolve maps a presented token to its principal.
func (m *Manager) Resolve(ctx context.Context, token string) (Principal, error) {
	var tenantID int64
	err := m.db.QueryRowContext(ctx,
		"SELECT tenant_id FROM sessions WHERE token = ?;", token).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return Principal{}, errs.NotFoundf("session")
	}
	if err != nil {
		return Principal{}, fmt.Errorf("resolve session: %w", err)
	}
	return Principal{TenantID: tenantID}, nil
}

// Revoke deletes a session. Revoking an unknown token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?;", token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
