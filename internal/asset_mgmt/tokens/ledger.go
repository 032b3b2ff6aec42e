package tokens

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"parc-backend/internal/platform/db"
)

var (
	ErrNotFound    = errors.New("token not found in ledger")
	ErrTokenUsed   = errors.New("token already used")
	ErrTenantMatch = errors.New("ledger record tenant does not match the handle")
)

// Ledger persists issued tokens and their consumption state. Every method takes the
// tenant-scoped executor explicitly (a *sql.DB or a transaction of that tenant).
type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Store inserts a PENDING record. tenantName is the tenant that owns q and must match r.Tenant.
func (l *Ledger) Store(ctx context.Context, q db.DBTX, tenantName string, r *Record) error {
	if r.Tenant != tenantName {
		return fmt.Errorf("%w: record=%q handle=%q", ErrTenantMatch, r.Tenant, tenantName)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("store token: unknown type %q", r.Kind)
	}
	ids, err := json.Marshal(r.ItemIDs)
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	r.Status = StatusPending
	const query = `
	INSERT INTO assignment_tokens
	(token_id, token_hash, token, employee_id, kind, item_ids, tenant, status, issued_at, expires_at)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, query,
		r.TokenID, HashToken(r.Token), r.Token, r.EmployeeID, string(r.Kind), string(ids),
		r.Tenant, string(r.Status), r.IssuedAt.UTC(), r.ExpiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

const selectColumns = `token_id, token, employee_id, kind, item_ids, tenant, status, issued_at, expires_at, used_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		r      Record
		kind   string
		ids    string
		status string
		usedAt sql.NullTime
	)
	if err := s.Scan(&r.TokenID, &r.Token, &r.EmployeeID, &kind, &ids, &r.Tenant, &status,
		&r.IssuedAt, &r.ExpiresAt, &usedAt); err != nil {
		return nil, err
	}
	r.Kind = Kind(kind)
	r.Status = Status(status)
	if err := json.Unmarshal([]byte(ids), &r.ItemIDs); err != nil {
		return nil, fmt.Errorf("decode item_ids of %s: %w", r.TokenID, err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		r.UsedAt = &t
	}
	return &r, nil
}

// Lookup returns the most recent record for token, or ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, q db.DBTX, token string) (*Record, error) {
	query := `SELECT ` + selectColumns + ` FROM assignment_tokens WHERE token_hash = ? ORDER BY issued_at DESC LIMIT 1`
	r, err := scanRecord(q.QueryRowContext(ctx, query, HashToken(token)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return r, nil
}

// CheckPending returns nil only for a known, still PENDING token.
// Unknown tokens give ErrNotFound, terminal ones ErrTokenUsed; callers treat both as blocking.
func (l *Ledger) CheckPending(ctx context.Context, q db.DBTX, token string) (*Record, error) {
	r, err := l.Lookup(ctx, q, token)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return r, ErrTokenUsed
	}
	return r, nil
}

// IsConsumed reports whether token can no longer be used. A missing record counts as consumed.
func (l *Ledger) IsConsumed(ctx context.Context, q db.DBTX, token string) (bool, error) {
	_, err := l.CheckPending(ctx, q, token)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTokenUsed):
		return true, nil
	default:
		return false, err
	}
}

// Transition moves every PENDING row of token to status. The conditional update is the
// race-closing step: when no row changes the token was consumed concurrently and
// ErrTokenUsed is returned.
func (l *Ledger) Transition(ctx context.Context, q db.DBTX, token string, to Status, at time.Time) error {
	if !to.Terminal() || !to.Valid() {
		return fmt.Errorf("transition token: invalid target status %q", to)
	}
	const query = `UPDATE assignment_tokens SET status = ?, used_at = ? WHERE token_hash = ? AND status = ?`
	res, err := q.ExecContext(ctx, query, string(to), at.UTC(), HashToken(token), string(StatusPending))
	if err != nil {
		return fmt.Errorf("transition token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition token: %w", err)
	}
	if n == 0 {
		return ErrTokenUsed
	}
	return nil
}

// Cursor marks the last record of a page of ListExpiredPending. The zero Cursor starts
// from the beginning.
type Cursor struct {
	ExpiresAt time.Time
	TokenID   string
}

// After returns the cursor positioned on r.
func After(r Record) Cursor { return Cursor{ExpiresAt: r.ExpiresAt, TokenID: r.TokenID} }

// ListExpiredPending returns PENDING records whose expiry is before now and that sort after
// the cursor, ordered by expiry then token id.
func (l *Ledger) ListExpiredPending(ctx context.Context, q db.DBTX, now time.Time, after Cursor, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + selectColumns + ` FROM assignment_tokens
	WHERE status = ? AND expires_at < ?`
	args := []any{string(StatusPending), now.UTC()}
	if after.TokenID != "" {
		query += ` AND (expires_at > ? OR (expires_at = ? AND token_id > ?))`
		at := after.ExpiresAt.UTC()
		args = append(args, at, at, after.TokenID)
	}
	query += `
	ORDER BY expires_at ASC, token_id ASC
	LIMIT ?`
	args = append(args, limit)
	return l.list(ctx, q, query, args...)
}

// ListLive returns the PENDING, unexpired records of one employee and kind.
func (l *Ledger) ListLive(ctx context.Context, q db.DBTX, employeeID int64, kind Kind, now time.Time) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM assignment_tokens
	WHERE employee_id = ? AND kind = ? AND status = ? AND expires_at > ?`
	return l.list(ctx, q, query, employeeID, string(kind), string(StatusPending), now.UTC())
}

// Covers reports whether any record lists itemID.
func Covers(records []Record, itemID int64) bool {
	for _, r := range records {
		for _, id := range r.ItemIDs {
			if id == itemID {
				return true
			}
		}
	}
	return false
}

type Filter struct {
	EmployeeID *int64
	Status     *Status
	Kind       *Kind
	Limit      int
	Offset     int
}

// List returns ledger rows for audit, newest first.
func (l *Ledger) List(ctx context.Context, q db.DBTX, f Filter) ([]Record, error) {
	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + selectColumns + ` FROM assignment_tokens WHERE 1=1`)
	args := []any{}
	if f.EmployeeID != nil {
		sb.WriteString(` AND employee_id = ?`)
		args = append(args, *f.EmployeeID)
	}
	if f.Status != nil {
		sb.WriteString(` AND status = ?`)
		args = append(args, string(*f.Status))
	}
	if f.Kind != nil {
		sb.WriteString(` AND kind = ?`)
		args = append(args, string(*f.Kind))
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	sb.WriteString(` ORDER BY issued_at DESC LIMIT ? OFFSET ?`)
	args = append(args, f.Limit, f.Offset)
	return l.list(ctx, q, sb.String(), args...)
}

func (l *Ledger) list(ctx context.Context, q db.DBTX, query string, args ...any) ([]Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list tokens: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return out, nil
}
