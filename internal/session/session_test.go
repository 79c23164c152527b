package session

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bothive/bothive/internal/errs"
	"github.com/bothive/bothive/internal/storage"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testTenantID(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO tenants(chat_id, created_at) VALUES('chat-1', '2026-01-01T00:00:00Z');")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestCreateAndResolve(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	m := NewManager(db)
	ctx := context.Background()
	tenantID := testTenantID(t, db)

	token, err := m.Create(ctx, tenantID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	p, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, tenantID, p.TenantID)
}

func TestResolveUnknownToken(t *testing.T) {
	t.Parallel()

	m := NewManager(testDB(t))
	_, err := m.Resolve(context.Background(), "bogus")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	m := NewManager(db)
	ctx := context.Background()

	token, err := m.Create(ctx, testTenantID(t, db))
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, token))
	_, err = m.Resolve(ctx, token)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// Revoking again is a no-op.
	assert.NoError(t, m.Revoke(ctx, token))
}

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc123", want: "abc123"},
		{name: "missing header", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic abc123", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := ExtractBearerToken(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrincipalContextRoundtrip(t *testing.T) {
	t.Parallel()

	ctx := WithPrincipal(context.Background(), Principal{TenantID: 7})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(7), p.TenantID)

	_, ok = PrincipalFromContext(context.Background())
	assert.False(t, ok)
}
