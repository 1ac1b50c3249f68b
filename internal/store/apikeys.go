package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrAPIKeyNotFound is returned when no active key matches the presented hash.
var ErrAPIKeyNotFound = errors.New("api key not found")

// APIKey is a downstream client authentication record. The full key is never
// stored; only its SHA-256 hash is used for verification.
type APIKey struct {
	ID        int64        `db:"id"`
	UserID    int64        `db:"user_id"`
	Name      string       `db:"name"`
	KeyPrefix string       `db:"key_prefix"`
	KeyHash   string       `db:"key_hash"`
	Active    bool         `db:"active"`

	// Nine numeric ceilings; zero means unlimited.
	DailyLimit       int64   `db:"daily_limit"`
	MonthlyLimit     int64   `db:"monthly_limit"`
	TotalLimit       int64   `db:"total_limit"`
	DailyCostLimit   float64 `db:"daily_cost_limit"`
	MonthlyCostLimit float64 `db:"monthly_cost_limit"`
	TotalCostLimit   float64 `db:"total_cost_limit"`
	RateLimit        int64   `db:"rate_limit"`
	ConcurrencyLimit int64   `db:"concurrency_limit"`
	ValidityDays     int64   `db:"validity_days"`

	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
}

// Expired reports whether the key has outlived its validity window.
func (k *APIKey) Expired(now time.Time) bool {
	if k.ValidityDays <= 0 {
		return false
	}
	return now.After(k.CreatedAt.AddDate(0, 0, int(k.ValidityDays)))
}

// HashKey computes the SHA-256 hex digest used for key lookup.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// FindAPIKey resolves a presented key to its active record.
func (s *Store) FindAPIKey(ctx context.Context, key string) (*APIKey, error) {
	var rec APIKey
	err := s.db.GetContext(ctx, &rec,
		`SELECT * FROM api_keys WHERE key_hash = ? AND active = 1`, HashKey(key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return &rec, nil
}

// TouchAPIKey records the last use timestamp.
func (s *Store) TouchAPIKey(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}

// ModelUsage holds per-model token sums and the request count for one window.
type ModelUsage struct {
	Model        string `db:"model"`
	Requests     int64  `db:"requests"`
	InputTokens  int64  `db:"input_tokens"`
	OutputTokens int64  `db:"output_tokens"`
}

// UsageWindow identifies an aggregation window for APIKeyUsage.
type UsageWindow int

const (
	WindowDay UsageWindow = iota
	WindowMonth
	WindowLifetime
)

var windowConditions = map[UsageWindow]string{
	WindowDay:      `created_at >= CURDATE()`,
	WindowMonth:    `created_at >= DATE_FORMAT(NOW(), '%Y-%m-01')`,
	WindowLifetime: `1 = 1`,
}

// APIKeyUsage returns per-model request and token sums for a key within the
// given window. The quota enforcer prices the token sums against the static
// pricing table; recorded spend, not estimated, is what counts against cost
// ceilings.
func (s *Store) APIKeyUsage(ctx context.Context, keyID int64, window UsageWindow) ([]ModelUsage, error) {
	cond, ok := windowConditions[window]
	if !ok {
		return nil, fmt.Errorf("unknown usage window %d", window)
	}
	var rows []ModelUsage
	query := `SELECT model, COUNT(*) AS requests,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens
		FROM api_logs WHERE api_key_id = ? AND ` + cond + ` GROUP BY model`
	if err := s.db.SelectContext(ctx, &rows, query, keyID); err != nil {
		return nil, fmt.Errorf("failed to aggregate key usage: %w", err)
	}
	return rows, nil
}
