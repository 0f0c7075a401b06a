package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"dlnotify/internal/config"
	"dlnotify/internal/eventbus"
	"dlnotify/internal/transport"
	logx "dlnotify/pkg/logx"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

type PluginDeps struct {
	Logger logx.Logger
	Poster transport.Poster
}

type PluginManager struct {
	mu sync.Mutex

	log      logx.Logger
	deps     PluginDeps
	registry *eventbus.Registry

	reg   map[string]Plugin
	order []string
	run   map[string]bool
	// inited tracks plugins that passed Init once; Init is not repeated on
	// enable/disable cycles.
	inited map[string]bool
	// last config blob hash per running plugin (skips redundant OnConfigChange calls)
	lastRawHash map[string]uint64
	// registry unregister funcs per running plugin
	unsub map[string][]func()

	stopTimeout time.Duration
}

func NewPluginManager(log logx.Logger, registry *eventbus.Registry, deps PluginDeps) *PluginManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if registry == nil {
		registry = eventbus.NewRegistry()
	}
	return &PluginManager{
		log:         log,
		deps:        deps,
		registry:    registry,
		reg:         map[string]Plugin{},
		run:         map[string]bool{},
		inited:      map[string]bool{},
		lastRawHash: map[string]uint64{},
		unsub:       map[string][]func(){},
		stopTimeout: 3 * time.Second,
	}
}

// Register adds plugins. Registering the same name twice replaces the
// earlier plugin if it has not been started.
func (pm *PluginManager) Register(ps ...Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range ps {
		if p == nil {
			continue
		}
		name := p.Name()
		if pm.run[name] {
			pm.log.Warn("plugin already running; ignoring re-register", logx.String("plugin", name))
			continue
		}
		if _, exists := pm.reg[name]; !exists {
			pm.order = append(pm.order, name)
		}
		pm.reg[name] = p
		delete(pm.inited, name)
	}
}

// Registry returns the event registry plugin subscriptions are bound to.
func (pm *PluginManager) Registry() *eventbus.Registry { return pm.registry }

// Running reports whether the named plugin is currently started.
func (pm *PluginManager) Running(name string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.run[name]
}

// ValidateConfig runs every registered plugin's ConfigValidator against its
// raw config. Plugins without an entry are skipped.
func (pm *PluginManager) ValidateConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	for _, name := range pm.names() {
		p := pm.plugin(name)
		v, ok := p.(ConfigValidator)
		if !ok {
			continue
		}
		raw, ok := cfg.Plugin(name)
		if !ok {
			continue
		}
		if err := v.ValidateConfig(ctx, raw.Config); err != nil {
			errs = append(errs, fmt.Errorf("plugins.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// StartAll applies cfg to every registered plugin and returns the first
// failure. Plugins without an entry in cfg stay disabled.
func (pm *PluginManager) StartAll(ctx context.Context, cfg *config.Config) error {
	for _, name := range pm.names() {
		raw, _ := cfg.Plugin(name)
		if err := pm.apply(ctx, name, raw); err != nil {
			return fmt.Errorf("plugin %s: %w", name, err)
		}
	}
	return nil
}

// OnConfigUpdate applies a reloaded config. Failures are logged per plugin
// and do not stop the others.
func (pm *PluginManager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	for _, name := range pm.names() {
		raw, _ := cfg.Plugin(name)
		if err := pm.apply(ctx, name, raw); err != nil {
			pm.log.Warn("plugin config apply failed", logx.String("plugin", name), logx.Err(err))
		}
	}
}

// StopAll stops every running plugin, each bounded by the stop timeout.
func (pm *PluginManager) StopAll(ctx context.Context) {
	names := pm.names()
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		if !pm.Running(name) {
			continue
		}
		if err := pm.stop(ctx, name, "shutdown"); err != nil {
			pm.log.Warn("plugin stop failed", logx.String("plugin", name), logx.Err(err))
		}
	}
}

func (pm *PluginManager) names() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return append([]string(nil), pm.order...)
}

func (pm *PluginManager) plugin(name string) Plugin {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.reg[name]
}

func (pm *PluginManager) apply(ctx context.Context, name string, raw config.PluginConfigRaw) error {
	p := pm.plugin(name)
	if p == nil {
		return fmt.Errorf("plugin %q not registered", name)
	}

	pm.mu.Lock()
	running := pm.run[name]
	inited := pm.inited[name]
	lastHash := pm.lastRawHash[name]
	pm.mu.Unlock()

	switch {
	case !raw.Enabled && running:
		return pm.stop(ctx, name, "disabled")
	case !raw.Enabled:
		return nil
	}

	h := canonicalHashJSON(raw.Config)

	if running {
		if h == lastHash {
			return nil
		}
		if cp, ok := p.(ConfigurablePlugin); ok {
			if err := safeCall(func() error { return cp.OnConfigChange(ctx, raw.Config) }); err != nil {
				return fmt.Errorf("config change: %w", err)
			}
		}
		pm.mu.Lock()
		pm.lastRawHash[name] = h
		pm.mu.Unlock()
		pm.log.Info("plugin reconfigured", logx.String("plugin", name))
		return nil
	}

	if !inited {
		deps := pm.deps
		if !deps.Logger.IsZero() {
			deps.Logger = deps.Logger.With(logx.String("comp", "plugin"))
		}
		if err := safeCall(func() error { return p.Init(ctx, deps) }); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		pm.mu.Lock()
		pm.inited[name] = true
		pm.mu.Unlock()
	}

	if v, ok := p.(ConfigValidator); ok {
		if err := v.ValidateConfig(ctx, raw.Config); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if cp, ok := p.(ConfigurablePlugin); ok {
		if err := safeCall(func() error { return cp.OnConfigChange(ctx, raw.Config) }); err != nil {
			return fmt.Errorf("config change: %w", err)
		}
	}

	start := time.Now()
	if err := safeCall(func() error { return p.Start(ctx) }); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	var unsub []func()
	if es, ok := p.(EventSubscriber); ok {
		for _, s := range es.Subscriptions() {
			unsub = append(unsub, pm.registry.Register(s.Kind, name, s.Handle))
		}
	}

	pm.mu.Lock()
	pm.run[name] = true
	pm.lastRawHash[name] = h
	pm.unsub[name] = unsub
	pm.mu.Unlock()

	pm.log.Info("plugin started",
		logx.String("plugin", name),
		logx.Int("subscriptions", len(unsub)),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

func (pm *PluginManager) stop(ctx context.Context, name, reason string) error {
	p := pm.plugin(name)

	pm.mu.Lock()
	unsub := pm.unsub[name]
	delete(pm.unsub, name)
	pm.run[name] = false
	delete(pm.lastRawHash, name)
	pm.mu.Unlock()

	// Unsubscribe first so no event reaches a stopping plugin.
	for _, u := range unsub {
		u()
	}
	if p == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithTimeout(ctx, pm.stopTimeout)
	defer cancel()
	err := safeCall(func() error { return p.Stop(sctx) })
	pm.log.Info("plugin stopped", logx.String("plugin", name), logx.String("reason", reason))
	return err
}

// safeCall converts a plugin panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}
