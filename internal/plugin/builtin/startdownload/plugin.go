package startdownload

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/google/uuid"

	"dlnotify/internal/eventbus"
	core "dlnotify/internal/plugin"
	"dlnotify/internal/transport"
	logx "dlnotify/pkg/logx"
)

const Name = "startdownloadnotification"

// Info describes the plugin to the host.
type Info struct {
	Name        string
	Description string
	Version     string
}

type Plugin struct {
	core.PluginBase

	id   string
	disp atomic.Pointer[Dispatcher]
}

func New() *Plugin {
	return &Plugin{id: Name + "/" + uuid.NewString()}
}

func (p *Plugin) Name() string { return Name }

// ID is the instance identity used as the source of posted messages.
func (p *Plugin) ID() string { return p.id }

func (p *Plugin) Describe() Info {
	return Info{
		Name:        Name,
		Description: "Notifies the configured audience when a download starts.",
		Version:     "1.1",
	}
}

// State reports whether the plugin is currently enabled and dispatching.
func (p *Plugin) State() bool {
	status, _ := p.Health(context.Background())
	return status == "ok"
}

// Dispatcher returns the dispatcher built from the latest config, or nil
// while the plugin is stopped.
func (p *Plugin) Dispatcher() *Dispatcher { return p.disp.Load() }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	if p.disp.Load() == nil {
		// Started without a config change: run on defaults.
		var c Config
		p.disp.Store(p.newDispatcher(c.Settings(true)))
	}
	p.Log.Info("download notifications enabled", logx.String("id", p.id))
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.disp.Store(nil)
	return p.StopBase(ctx)
}

func (p *Plugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	_, err := core.DecodePluginConfig[Config](raw)
	return err
}

// OnConfigChange swaps in a dispatcher built from the new settings.
// Events already being dispatched finish on the old one.
func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	c, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	if _, ok := ParsePolicy(c.Type); !ok {
		p.Log.Warn("unrecognized recipient policy; notices will be ignored", logx.String("type", c.Type))
	}
	d := p.newDispatcher(c.Settings(true))
	p.disp.Store(d)
	s := d.Settings()
	p.Log.Info("recipient policy applied",
		logx.String("policy", string(s.Policy)),
		logx.Int("admin_users", len(s.AdminUsers)),
	)
	return nil
}

func (p *Plugin) newDispatcher(s Settings) *Dispatcher {
	return NewDispatcher(s, p.id, transport.PosterFunc(p.Post), p.Log.With(logx.String("comp", "dispatcher")))
}

func (p *Plugin) Subscriptions() []core.Subscription {
	return []core.Subscription{
		{Kind: eventbus.KindNoticeMessage, Handle: p.handleNotice},
	}
}

func (p *Plugin) handleNotice(ctx context.Context, e eventbus.Event) {
	d := p.disp.Load()
	if d == nil {
		return
	}
	if run := p.Context(); run != nil && run.Err() != nil {
		p.Log.Debug("plugin stopping; notice ignored")
		return
	}
	n, err := eventbus.DecodeNotice(e.Data)
	if err != nil {
		p.Log.Warn("invalid notice payload", logx.Err(err))
		return
	}
	d.OnDownloadEvent(ctx, n)
}
