// Package usage collects per-request accounting records and delivers them to
// registered plugins off the request path. Plugins persist the records (DB
// log rows, aggregate counters); the manager guarantees the hot path never
// blocks on accounting.
package usage

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Record is the accounting payload for one handled request. It is
// content-free: prompts and completions are never captured.
type Record struct {
	RequestID    string
	APIKeyID     int64
	APIKeyPrefix string
	Provider     string
	CredentialID int64
	ClientIP     string
	UserAgent    string
	Method       string
	Path         string
	Model        string
	Stream       bool
	InputTokens  int64
	OutputTokens int64
	StatusCode   int
	ErrorMessage string
	Duration     time.Duration
	RequestedAt  time.Time
}

// Plugin consumes usage records.
type Plugin interface {
	HandleUsage(ctx context.Context, record Record)
}

type queueItem struct {
	ctx    context.Context
	record Record
}

// Manager queues records and dispatches them to plugins on a background
// worker.
type Manager struct {
	once     sync.Once
	stopOnce sync.Once
	cancel   context.CancelFunc
	queue    chan queueItem

	pluginsMu sync.RWMutex
	plugins   []Plugin
}

// NewManager constructs a manager with a buffered queue.
func NewManager(buffer int) *Manager {
	if buffer <= 0 {
		buffer = 256
	}
	return &Manager{queue: make(chan queueItem, buffer)}
}

// Start launches the background dispatcher. Calling Start repeatedly is safe.
func (m *Manager) Start(ctx context.Context) {
	m.once.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		var workerCtx context.Context
		workerCtx, m.cancel = context.WithCancel(ctx)
		go m.run(workerCtx)
	})
}

// Stop halts the dispatcher and drains whatever is queued.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		close(m.queue)
	})
}

// Register appends a plugin to the delivery list.
func (m *Manager) Register(plugin Plugin) {
	if plugin == nil {
		return
	}
	m.pluginsMu.Lock()
	m.plugins = append(m.plugins, plugin)
	m.pluginsMu.Unlock()
}

// Publish enqueues a record. A full queue drops the record rather than stall
// a request.
func (m *Manager) Publish(ctx context.Context, record Record) {
	m.Start(context.Background())
	select {
	case m.queue <- queueItem{ctx: ctx, record: record}:
	default:
		log.Debugf("usage: queue full, dropping record for key %s", record.APIKeyPrefix)
	}
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.drain()
			return
		case item, ok := <-m.queue:
			if !ok {
				return
			}
			m.dispatch(item)
		}
	}
}

func (m *Manager) drain() {
	for {
		select {
		case item, ok := <-m.queue:
			if !ok {
				return
			}
			m.dispatch(item)
		default:
			return
		}
	}
}

func (m *Manager) dispatch(item queueItem) {
	m.pluginsMu.RLock()
	plugins := make([]Plugin, len(m.plugins))
	copy(plugins, m.plugins)
	m.pluginsMu.RUnlock()
	for _, plugin := range plugins {
		safeInvoke(plugin, item.ctx, item.record)
	}
}

func safeInvoke(plugin Plugin, ctx context.Context, record Record) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("usage: plugin panic recovered: %v", r)
		}
	}()
	plugin.HandleUsage(ctx, record)
}
