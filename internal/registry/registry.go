// Package registry is the durable store of bot and tenant records. It owns no
// process or filesystem behavior; the supervisor and file flows consult and
// update it.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bothive/bothive/internal/errs"
)

type Registry struct {
	db *sql.DB
}

func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// CreateBot inserts a bot record for tenantID. The quota check and the insert
// run in one transaction so two concurrent creates cannot both pass the count.
// maxBots <= 0 means unlimited.
func (r *Registry) CreateBot(ctx context.Context, nb NewBot, maxBots int) (*Bot, error) {
	name := strings.TrimSpace(nb.Name)
	if name == "" {
		return nil, errs.Validationf("bot name is empty")
	}
	if nb.Language != "javascript" && nb.Language != "python" {
		return nil, errs.Validationf("unsupported language %q", nb.Language)
	}
	if strings.TrimSpace(nb.DataDir) == "" {
		return nil, errs.Validationf("data dir is empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create bot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if maxBots > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bots WHERE tenant_id = ?;", nb.TenantID).Scan(&count); err != nil {
			return nil, fmt.Errorf("count bots for quota: %w", err)
		}
		if count >= maxBots {
			return nil, errs.Conflictf("bot quota of %d reached", maxBots)
		}
	}

	id := uuid.NewString()
	bot := &Bot{
		ID:        id,
		TenantID:  nb.TenantID,
		Name:      name,
		Language:  nb.Language,
		Dir:       filepath.Join(nb.DataDir, id),
		Status:    StatusStopped,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO bots(id, tenant_id, name, language, dir, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, bot.ID, bot.TenantID, bot.Name, bot.Language, bot.Dir, bot.Status, bot.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert bot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create bot: %w", err)
	}
	return bot, nil
}

// GetBot returns the bot with id owned by tenantID.
func (r *Registry) GetBot(ctx context.Context, id string, tenantID int64) (*Bot, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, name, language, dir, status, archive_digest, created_at, last_started_at, last_stopped_at
FROM bots WHERE id = ? AND tenant_id = ?;
`, id, tenantID)
	return scanBot(row)
}

// ListBots returns all bots owned by tenantID, oldest first.
func (r *Registry) ListBots(ctx context.Context, tenantID int64) ([]*Bot, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, name, language, dir, status, archive_digest, created_at, last_started_at, last_stopped_at
FROM bots WHERE tenant_id = ? ORDER BY created_at ASC, rowid ASC;
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []*Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	return bots, nil
}

// CountBots returns the number of bots owned by tenantID.
func (r *Registry) CountBots(ctx context.Context, tenantID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bots WHERE tenant_id = ?;", tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count bots: %w", err)
	}
	return count, nil
}

// SetBotStatus persists status and the matching timestamp for the bot.
func (r *Registry) SetBotStatus(ctx context.Context, id, status string, at time.Time) error {
	column := "last_stopped_at"
	if status == StatusRunning {
		column = "last_started_at"
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE bots SET status = ?, %s = ? WHERE id = ?;", column),
		status, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}
	if n == 0 {
		return errs.NotFoundf("bot %q", id)
	}
	return nil
}

// SetArchiveDigest records the content digest of the last uploaded archive.
func (r *Registry) SetArchiveDigest(ctx context.Context, id, digest string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE bots SET archive_digest = ? WHERE id = ?;", digest, id)
	if err != nil {
		return fmt.Errorf("update archive digest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update archive digest: %w", err)
	}
	if n == 0 {
		return errs.NotFoundf("bot %q", id)
	}
	return nil
}

// DeleteBot removes the bot record owned by tenantID.
func (r *Registry) DeleteBot(ctx context.Context, id string, tenantID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM bots WHERE id = ? AND tenant_id = ?;", id, tenantID)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	if n == 0 {
		return errs.NotFoundf("bot %q", id)
	}
	return nil
}

// FindTenantByChatID returns the tenant bound to the external chat identity.
func (r *Registry) FindTenantByChatID(ctx context.Context, chatID string) (*Tenant, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, chat_id, display_name, avatar_ref, tier, created_at
FROM tenants WHERE chat_id = ?;
`, chatID)
	return scanTenant(row)
}

// GetTenant returns the tenant with the given local id.
func (r *Registry) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, chat_id, display_name, avatar_ref, tier, created_at
FROM tenants WHERE id = ?;
`, id)
	return scanTenant(row)
}

// FindOrCreateTenant returns the tenant for chatID, creating it (tier "free")
// on first redemption. Display metadata is refreshed on every call.
func (r *Registry) FindOrCreateTenant(ctx context.Context, chatID, displayName, avatarRef string) (*Tenant, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, errs.Validationf("chat id is empty")
	}

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tenants(chat_id, display_name, avatar_ref, tier, created_at)
VALUES(?, ?, ?, 'free', ?)
ON CONFLICT(chat_id) DO UPDATE SET display_name = excluded.display_name, avatar_ref = excluded.avatar_ref;
`, chatID, displayName, avatarRef, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("upsert tenant: %w", err)
	}

	return r.FindTenantByChatID(ctx, chatID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (*Bot, error) {
	var (
		b             Bot
		archiveDigest sql.NullString
		createdAtS    string
		startedAtS    sql.NullString
		stoppedAtS    sql.NullString
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.Name, &b.Language, &b.Dir, &b.Status,
		&archiveDigest, &createdAtS, &startedAtS, &stoppedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("bot")
	}
	if err != nil {
		return nil, fmt.Errorf("scan bot: %w", err)
	}

	if archiveDigest.Valid {
		b.ArchiveDigest = &archiveDigest.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		b.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			b.LastStartedAt = &t
		}
	}
	if stoppedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, stoppedAtS.String); err == nil {
			b.LastStoppedAt = &t
		}
	}
	return &b, nil
}

func scanTenant(row rowScanner) (*Tenant, error) {
	var (
		t          Tenant
		createdAtS string
	)
	err := row.Scan(&t.ID, &t.ChatID, &t.DisplayName, &t.AvatarRef, &t.Tier, &createdAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		t.CreatedAt = ts
	}
	return &t, nil
}
