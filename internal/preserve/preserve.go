// Package preserve carries the runtime model/provider override across
// the host's credential-refresh lifecycle, which rebuilds the Config
// from defaults and would otherwise silently revert every runtime model
// choice.
//
// The manager is a deliberate, narrowly-scoped process singleton: one
// piece of state (the override) and two bracketing operations. All
// refreshes go through RefreshConfig so the bracket cannot be skipped;
// skipping it loses the override, which is a data-loss bug, not a user
// error.
package preserve

import (
	"sync"
	"weak"

	"github.com/marcus/pilot/internal/config"
	"github.com/marcus/pilot/internal/logging"
)

// Override is the runtime-selected provider/model pair held outside the
// rebuildable configuration object.
type Override struct {
	Provider string
	Model    string
}

// Manager snapshots the override before a config rebuild and reapplies
// it after. Config objects are tracked through weak pointers only: the
// manager must never be the reason an old Config stays alive.
type Manager struct {
	mu          sync.Mutex
	override    Override
	hasOverride bool
	seen        []weak.Pointer[config.Config]
	onRestore   []func(Override)
}

var (
	singleton *Manager
	once      sync.Once
)

// Get returns the process-wide manager.
func Get() *Manager {
	once.Do(func() {
		singleton = &Manager{}
	})
	return singleton
}

// SetOverride records an explicit user switch and applies it to the
// given config.
func (m *Manager) SetOverride(cfg *config.Config, o Override) {
	m.mu.Lock()
	m.override = o
	m.hasOverride = true
	m.remember(cfg)
	m.mu.Unlock()

	m.apply(cfg, o)
}

// Override returns the current override, if one is set.
func (m *Manager) Override() (Override, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.override, m.hasOverride
}

// Clear drops the override (used when the user switches back to
// defaults).
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = Override{}
	m.hasOverride = false
}

// OnRestore registers a hook invoked whenever the override is reapplied
// after a rebuild (e.g. to drop cached backend clients).
func (m *Manager) OnRestore(fn func(Override)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestore = append(m.onRestore, fn)
}

// Snapshot captures the override state immediately before a config
// rebuild. If the config carries a runtime selection the manager has
// not seen yet, it is adopted as the override.
func (m *Manager) Snapshot(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg != nil && cfg.ActiveProvider != "" {
		m.override = Override{Provider: cfg.ActiveProvider, Model: cfg.ActiveModel}
		m.hasOverride = true
	}
	m.remember(cfg)
}

// Restore reapplies the override to a freshly rebuilt config.
func (m *Manager) Restore(cfg *config.Config) {
	m.mu.Lock()
	o, has := m.override, m.hasOverride
	m.remember(cfg)
	hooks := append([]func(Override){}, m.onRestore...)
	m.mu.Unlock()

	if !has || cfg == nil {
		return
	}
	m.apply(cfg, o)
	for _, fn := range hooks {
		fn(o)
	}
	logging.Component("preserve").Debug().
		Str("provider", o.Provider).Str("model", o.Model).
		Msg("runtime override restored after config rebuild")
}

// Known reports whether the manager has seen this config object.
func (m *Manager) Known(cfg *config.Config) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wp := range m.seen {
		if wp.Value() == cfg {
			return true
		}
	}
	return false
}

func (m *Manager) apply(cfg *config.Config, o Override) {
	cfg.ActiveProvider = o.Provider
	cfg.ActiveModel = o.Model
}

// remember records config identity behind a weak pointer and prunes
// entries whose configs have been reclaimed. Caller holds m.mu.
func (m *Manager) remember(cfg *config.Config) {
	if cfg == nil {
		return
	}
	live := m.seen[:0]
	for _, wp := range m.seen {
		v := wp.Value()
		if v == nil {
			continue
		}
		if v == cfg {
			m.seen = append(live, wp)
			return
		}
		live = append(live, wp)
	}
	m.seen = append(live, weak.Make(cfg))
}

// RefreshConfig is the only sanctioned way to run the host's
// credential-refresh rebuild: preserve, rebuild, restore. The raw
// rebuild is never exposed to callers.
func RefreshConfig(old *config.Config, rebuild func() (*config.Config, error)) (*config.Config, error) {
	m := Get()
	m.Snapshot(old)
	fresh, err := rebuild()
	if err != nil {
		return old, err
	}
	m.Restore(fresh)
	return fresh, nil
}
