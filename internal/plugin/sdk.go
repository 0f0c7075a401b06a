package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"dlnotify/internal/eventbus"
	"dlnotify/internal/transport"
	logx "dlnotify/pkg/logx"
)

// ConfigValidator checks a plugin's raw config block. The manager calls it
// before start and the config watcher calls it before a reload is committed.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, raw json.RawMessage) error
}

// Subscription binds a handler to one event kind. The plugin manager
// registers subscriptions with the host registry while the plugin is
// enabled and removes them when it is disabled or stopped.
type Subscription struct {
	Kind   eventbus.Kind
	Handle eventbus.Handler
}

// EventSubscriber is implemented by plugins that react to host events.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// PluginBase carries the state every plugin needs: its logger, the host
// deps and a run context that lives from Start to Stop. Embed it and call
// InitBase, StartBase and StopBase from the matching lifecycle methods.
type PluginBase struct {
	Log  logx.Logger
	Deps PluginDeps

	name   string
	run    context.Context
	cancel context.CancelFunc
}

func (b *PluginBase) InitBase(deps PluginDeps, name string) {
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b.Deps, b.name = deps, name
	b.Log = log.With(logx.String("plugin", name))
}

func (b *PluginBase) StartBase(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	b.run, b.cancel = context.WithCancel(parent)
}

func (b *PluginBase) StopBase(context.Context) error {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	return nil
}

// Context is canceled when the plugin is stopped or disabled.
func (b *PluginBase) Context() context.Context { return b.run }

// Health is "not_started", "ok" or "stopped". It never blocks.
func (b *PluginBase) Health(context.Context) (string, error) {
	switch {
	case b.run == nil:
		return "not_started", nil
	case b.run.Err() != nil:
		return "stopped", b.run.Err()
	default:
		return "ok", nil
	}
}

const postTimeout = 10 * time.Second

// Post hands m to the host poster with a bounded timeout.
func (b *PluginBase) Post(ctx context.Context, m transport.Message) error {
	if b.Deps.Poster == nil {
		return fmt.Errorf("plugin %s: poster not available", b.name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()
	return b.Deps.Poster.PostMessage(cctx, m)
}

// DecodePluginConfig strictly decodes per-plugin raw json into a typed config struct.
// Empty input yields the zero value.
func DecodePluginConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode plugin config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return out, errors.New("decode plugin config: trailing data")
	}
	return out, nil
}
