// Package registry maps downstream model names to upstream providers. Each
// provider carries a model table with bidirectional aliases and a default
// model; the registry also backs the OpenAI-style model listing.
package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanaikit/pool2api/internal/constant"
)

// ModelInfo describes one listed model.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ProviderTable holds one provider's model names and aliases.
type ProviderTable struct {
	// Provider is a constant.Provider* value.
	Provider string

	// Default is used when the requested model is unknown to the provider.
	Default string

	// Aliases maps downstream model names to the provider's native names.
	// Native names map to themselves implicitly.
	Aliases map[string]string

	// OwnedBy labels the provider's models in listings.
	OwnedBy string
}

// Registry resolves models to providers and native model names.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*ProviderTable
}

// New builds a registry over the built-in provider tables.
func New() *Registry {
	r := &Registry{tables: make(map[string]*ProviderTable)}
	for _, t := range builtinTables() {
		r.Register(t)
	}
	return r
}

// Register installs or replaces a provider table.
func (r *Registry) Register(t *ProviderTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.Provider] = t
}

// Resolve maps a downstream model name to the provider's native name.
// Unknown names fall back to the provider's default model.
func (r *Registry) Resolve(provider, model string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[provider]
	if !ok {
		return model
	}
	if native, ok := t.Aliases[model]; ok {
		return native
	}
	for _, native := range t.Aliases {
		if native == model {
			return model
		}
	}
	return t.Default
}

// Downstream maps a provider-native model name back to the downstream name.
func (r *Registry) Downstream(provider, native string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[provider]
	if !ok {
		return native
	}
	for downstream, n := range t.Aliases {
		if n == native && downstream != n {
			return downstream
		}
	}
	return native
}

// Knows reports whether the provider's table lists the model, by downstream
// or native name.
func (r *Registry) Knows(provider, model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[provider]
	if !ok {
		return false
	}
	if _, ok := t.Aliases[model]; ok {
		return true
	}
	for _, native := range t.Aliases {
		if native == model {
			return true
		}
	}
	return false
}

// ProviderFor picks a provider from the model name alone: gemini-prefixed
// models route to the Gemini provider, models only the WebSocket provider
// lists route there, everything else lands on the default provider.
func (r *Registry) ProviderFor(model string) string {
	if strings.HasPrefix(model, "gemini") {
		return constant.ProviderAntigravity
	}
	if !r.Knows(constant.ProviderKiro, model) && r.Knows(constant.ProviderOrchids, model) {
		return constant.ProviderOrchids
	}
	return constant.ProviderKiro
}

// List returns the downstream model names of every provider, sorted and
// de-duplicated, in OpenAI listing shape.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]string)
	for _, t := range r.tables {
		for downstream := range t.Aliases {
			if _, ok := seen[downstream]; !ok {
				seen[downstream] = t.OwnedBy
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	created := time.Now().Unix()
	out := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, ModelInfo{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: seen[id],
		})
	}
	return out
}
