package feed

import (
	"sync"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

// Registry maps venue asset IDs onto instrument keys. The feed speaks in
// opaque CLOB token IDs; everything downstream is keyed by
// (game, market, outcome, line).
type Registry struct {
	byAsset map[string]domain.InstrumentKey
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byAsset: make(map[string]domain.InstrumentKey)}
}

// Register binds an asset ID to an instrument key, replacing any previous
// binding.
func (r *Registry) Register(assetID string, key domain.InstrumentKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAsset[assetID] = key
}

// Lookup resolves an asset ID to its instrument key.
func (r *Registry) Lookup(assetID string) (domain.InstrumentKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.byAsset[assetID]
	return key, ok
}

// AssetIDs returns every registered asset ID, for feed subscription.
func (r *Registry) AssetIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byAsset))
	for id := range r.byAsset {
		out = append(out, id)
	}
	return out
}
