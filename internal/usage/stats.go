package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/tanaikit/pool2api/internal/pricing"
)

var statsBucket = []byte("daily_model_stats")

// DayModelStats is one aggregate counter row, keyed by day and model.
type DayModelStats struct {
	Day          string  `json:"day"`
	Model        string  `json:"model"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Stats aggregates per-day per-model counters into a local bbolt file. The
// snapshots survive restarts and back the statistics endpoint without
// touching MySQL.
type Stats struct {
	db *bolt.DB
}

// OpenStats opens (or creates) the snapshot file.
func OpenStats(path string) (*Stats, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open stats store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists(statsBucket)
		return berr
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init stats bucket: %w", err)
	}
	return &Stats{db: db}, nil
}

// Close releases the underlying file.
func (s *Stats) Close() error {
	return s.db.Close()
}

func statsKey(day, model string) []byte {
	return []byte(day + "|" + model)
}

// HandleUsage implements Plugin. Each record folds into its day/model
// counter; cost is priced at record time so later price-table changes do not
// rewrite history.
func (s *Stats) HandleUsage(_ context.Context, record Record) {
	day := record.RequestedAt.Format("2006-01-02")
	if record.RequestedAt.IsZero() {
		day = time.Now().Format("2006-01-02")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(statsBucket)
		key := statsKey(day, record.Model)
		entry := DayModelStats{Day: day, Model: record.Model}
		if raw := bucket.Get(key); raw != nil {
			if uerr := json.Unmarshal(raw, &entry); uerr != nil {
				return uerr
			}
		}
		entry.Requests++
		entry.InputTokens += record.InputTokens
		entry.OutputTokens += record.OutputTokens
		entry.Cost += pricing.Cost(record.Model, record.InputTokens, record.OutputTokens)
		raw, merr := json.Marshal(entry)
		if merr != nil {
			return merr
		}
		return bucket.Put(key, raw)
	})
	if err != nil {
		log.Errorf("usage: failed to update stats snapshot: %v", err)
	}
}

// Snapshot returns all counters for one day, every model.
func (s *Stats) Snapshot(day string) ([]DayModelStats, error) {
	var out []DayModelStats
	prefix := []byte(day + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(statsBucket).Cursor()
		for k, v := cursor.Seek(prefix); k != nil && len(k) > len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = cursor.Next() {
			var entry DayModelStats
			if uerr := json.Unmarshal(v, &entry); uerr != nil {
				return uerr
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read stats snapshot: %w", err)
	}
	return out, nil
}
