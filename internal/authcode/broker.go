// Package authcode bridges an external chat identity to a web session via an
// ephemeral one-time code. Codes are single-use, per-identity unique, and
// expire after a fixed TTL.
package authcode

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bothive/bothive/internal/errs"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L) so a code
// survives being read aloud or typed from a phone screen.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

// DefaultTTL is how long an issued code stays redeemable.
const DefaultTTL = 5 * time.Minute

// Identity is the external identity bound to a code.
type Identity struct {
	ChatID      string
	DisplayName string
	AvatarRef   string
}

// Broker issues and redeems auth codes.
type Broker struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func New(db *sql.DB, ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Broker{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}
}

// Issue generates a fresh code bound to chatID and invalidates every unused
// code previously issued for that identity. The code is returned for
// out-of-band delivery (e.g. a chat reply).
func (b *Broker) Issue(ctx context.Context, id Identity) (string, error) {
	if strings.TrimSpace(id.ChatID) == "" {
		return "", errs.Validationf("chat id is empty")
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate auth code: %w", err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin issue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// At most one unused code per identity: issuing supersedes all others.
	if _, err := tx.ExecContext(ctx,
		"UPDATE auth_codes SET used = 1 WHERE chat_id = ? AND used = 0;", id.ChatID); err != nil {
		return "", fmt.Errorf("invalidate prior codes: %w", err)
	}

	issuedAt := b.now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO auth_codes(code, chat_id, display_name, avatar_ref, issued_at, used)
VALUES(?, ?, ?, ?, ?, 0);
`, code, id.ChatID, id.DisplayName, id.AvatarRef, issuedAt); err != nil {
		return "", fmt.Errorf("insert auth code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit issue: %w", err)
	}
	return code, nil
}

// Redeem consumes a code and returns the identity it was bound to. Input is
// normalized (trimmed, uppercased) before lookup. A wrong, already-used,
// unknown, or expired code all fail the same way so the response does not
// reveal which case applied.
func (b *Broker) Redeem(ctx context.Context, raw string) (Identity, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return Identity{}, errs.Validationf("code is empty")
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("begin redeem: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id        Identity
		issuedAtS string
	)
	err = tx.QueryRowContext(ctx, `
SELECT chat_id, display_name, avatar_ref, issued_at
FROM auth_codes WHERE code = ? AND used = 0;
`, code).Scan(&id.ChatID, &id.DisplayName, &id.AvatarRef, &issuedAtS)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, errs.NotFoundf("auth code")
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup auth code: %w", err)
	}

	issuedAt, err := time.Parse(time.RFC3339Nano, issuedAtS)
	if err != nil {
		return Identity{}, fmt.Errorf("parse issued_at: %w", err)
	}
	if b.now().Sub(issuedAt) > b.ttl {
		// Burn the expired code so it cannot be probed again.
		if _, err := tx.ExecContext(ctx, "UPDATE auth_codes SET used = 1 WHERE code = ?;", code); err != nil {
			return Identity{}, fmt.Errorf("expire auth code: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return Identity{}, fmt.Errorf("commit expire: %w", err)
		}
		return Identity{}, errs.NotFoundf("auth code")
	}

	if _, err := tx.ExecContext(ctx, "UPDATE auth_codes SET used = 1 WHERE code = ?;", code); err != nil {
		return Identity{}, fmt.Errorf("consume auth code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Identity{}, fmt.Errorf("commit redeem: %w", err)
	}
	return id, nil
}

func generateCode() (string, error) {
	// Rejection sampling: bytes at or above the largest multiple of the
	// alphabet size are discarded, keeping every character equally likely.
	limit := 256 - 256%len(codeAlphabet)

	out := make([]byte, 0, codeLength)
	buf := make([]byte, 2*codeLength)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}
