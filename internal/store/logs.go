package store

import (
	"context"
	"fmt"
	"time"
)

// APILog is one content-free accounting record per handled request.
type APILog struct {
	ID           int64     `db:"id"`
	RequestID    string    `db:"request_id"`
	APIKeyID     int64     `db:"api_key_id"`
	APIKeyPrefix string    `db:"api_key_prefix"`
	CredentialID int64     `db:"credential_id"`
	ClientIP     string    `db:"client_ip"`
	UserAgent    string    `db:"user_agent"`
	Method       string    `db:"method"`
	Path         string    `db:"path"`
	Model        string    `db:"model"`
	Stream       bool      `db:"stream"`
	InputTokens  int64     `db:"input_tokens"`
	OutputTokens int64     `db:"output_tokens"`
	StatusCode   int       `db:"status_code"`
	ErrorMessage string    `db:"error_message"`
	DurationMS   int64     `db:"duration_ms"`
	CreatedAt    time.Time `db:"created_at"`
}

// InsertLog writes one accounting row. Request and response bodies are never
// part of this record.
func (s *Store) InsertLog(ctx context.Context, l *APILog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_logs (request_id, api_key_id, api_key_prefix, credential_id,
			client_ip, user_agent, method, path, model, stream,
			input_tokens, output_tokens, status_code, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RequestID, l.APIKeyID, l.APIKeyPrefix, l.CredentialID,
		l.ClientIP, l.UserAgent, l.Method, l.Path, l.Model, l.Stream,
		l.InputTokens, l.OutputTokens, l.StatusCode, l.ErrorMessage, l.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to insert api log: %w", err)
	}
	return nil
}

// PruneLogs deletes ApiLog rows older than the retention window and returns
// the number of rows removed.
func (s *Store) PruneLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_logs WHERE created_at < ?`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune api logs: %w", err)
	}
	return res.RowsAffected()
}
