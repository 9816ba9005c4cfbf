package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"git.home.luguber.info/inful/taxosync/internal/logfields"
	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

// Preferences exposes typed accessors for staleness markers and download
// enablement on top of a Store.
type Preferences struct {
	store Store

	mu              sync.RWMutex
	enabledDefaults map[string]bool
}

// NewPreferences wraps store. enabledDefaults (keyed by taxonomy name) seeds the
// enablement of taxonomies that have never been toggled; absent names default to true.
func NewPreferences(store Store, enabledDefaults map[string]bool) *Preferences {
	p := &Preferences{store: store}
	p.SetEnabledDefaults(enabledDefaults)
	return p
}

// SetEnabledDefaults replaces the enablement defaults. Explicitly stored
// flags are not affected.
func (p *Preferences) SetEnabledDefaults(enabledDefaults map[string]bool) {
	defaults := make(map[string]bool, len(enabledDefaults))
	for name, v := range enabledDefaults {
		defaults[taxonomy.CanonicalName(name)] = v
	}
	p.mu.Lock()
	p.enabledDefaults = defaults
	p.mu.Unlock()
}

// LastDownload returns the staleness marker in epoch milliseconds, or 0 when
// the taxonomy was never loaded. A corrupt marker is treated as never loaded.
func (p *Preferences) LastDownload(ctx context.Context, d taxonomy.Descriptor) (int64, error) {
	raw, ok, err := p.store.Get(ctx, d.StaleKeyID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		slog.Warn("Ignoring corrupt staleness marker", logfields.Taxonomy(d.Name), slog.String("value", raw))
		return 0, nil
	}
	return ms, nil
}

// SetLastDownload overwrites the staleness marker.
func (p *Preferences) SetLastDownload(ctx context.Context, d taxonomy.Descriptor, epochMillis int64) error {
	return p.store.Set(ctx, d.StaleKeyID, strconv.FormatInt(epochMillis, 10))
}

// IsEnabled reports whether downloads are enabled for d.
func (p *Preferences) IsEnabled(ctx context.Context, d taxonomy.Descriptor) (bool, error) {
	raw, ok, err := p.store.Get(ctx, d.EnableKeyID)
	if err != nil {
		return false, err
	}
	if !ok {
		p.mu.RLock()
		v, found := p.enabledDefaults[d.Name]
		p.mu.RUnlock()
		if found {
			return v, nil
		}
		return true, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse enablement for %s: %w", d.Name, err)
	}
	return enabled, nil
}

// SetEnabled stores the enablement flag for d.
func (p *Preferences) SetEnabled(ctx context.Context, d taxonomy.Descriptor, enabled bool) error {
	return p.store.Set(ctx, d.EnableKeyID, strconv.FormatBool(enabled))
}
