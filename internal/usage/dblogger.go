package usage

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/tanaikit/pool2api/internal/store"
)

// LogInserter writes accounting rows. Satisfied by store.Store.
type LogInserter interface {
	InsertLog(ctx context.Context, l *store.APILog) error
}

// DBLogger persists every record as an ApiLog row.
type DBLogger struct {
	store LogInserter
}

// NewDBLogger constructs the database logging plugin.
func NewDBLogger(s LogInserter) *DBLogger {
	return &DBLogger{store: s}
}

// HandleUsage implements Plugin. Insert failures are logged, never surfaced
// to the request path; the plugin runs on the manager's worker with its own
// context so records survive request cancellation.
func (p *DBLogger) HandleUsage(_ context.Context, record Record) {
	row := &store.APILog{
		RequestID:    record.RequestID,
		APIKeyID:     record.APIKeyID,
		APIKeyPrefix: record.APIKeyPrefix,
		CredentialID: record.CredentialID,
		ClientIP:     record.ClientIP,
		UserAgent:    record.UserAgent,
		Method:       record.Method,
		Path:         record.Path,
		Model:        record.Model,
		Stream:       record.Stream,
		InputTokens:  record.InputTokens,
		OutputTokens: record.OutputTokens,
		StatusCode:   record.StatusCode,
		ErrorMessage: record.ErrorMessage,
		DurationMS:   record.Duration.Milliseconds(),
	}
	if err := p.store.InsertLog(context.Background(), row); err != nil {
		log.Errorf("usage: failed to insert api log: %v", err)
	}
}
