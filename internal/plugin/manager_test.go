package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"dlnotify/internal/config"
	"dlnotify/internal/eventbus"
	"dlnotify/internal/transport"
	logx "dlnotify/pkg/logx"
)

type fakePlugin struct {
	PluginBase

	inits, starts, stops, changes int
	lastRaw                       string
	handled                       int
	failStart                     bool
	panicChange                   bool
}

func (f *fakePlugin) Name() string { return "fake" }

func (f *fakePlugin) Init(ctx context.Context, deps PluginDeps) error {
	f.inits++
	f.InitBase(deps, f.Name())
	return nil
}

func (f *fakePlugin) Start(ctx context.Context) error {
	if f.failStart {
		return errors.New("start failed")
	}
	f.starts++
	f.StartBase(ctx)
	return nil
}

func (f *fakePlugin) Stop(ctx context.Context) error {
	f.stops++
	return f.StopBase(ctx)
}

func (f *fakePlugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	if f.panicChange {
		panic("bad config")
	}
	f.changes++
	f.lastRaw = string(raw)
	return nil
}

func (f *fakePlugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	type cfg struct {
		Value int `json:"value"`
	}
	_, err := DecodePluginConfig[cfg](raw)
	return err
}

func (f *fakePlugin) Subscriptions() []Subscription {
	return []Subscription{{Kind: eventbus.KindNoticeMessage, Handle: func(ctx context.Context, e eventbus.Event) { f.handled++ }}}
}

func cfgWith(enabled bool, raw string) *config.Config {
	return &config.Config{Plugins: map[string]config.PluginConfigRaw{
		"fake": {Enabled: enabled, Config: json.RawMessage(raw)},
	}}
}

func newManager(p Plugin) *PluginManager {
	pm := NewPluginManager(logx.Nop(), nil, PluginDeps{})
	pm.Register(p)
	return pm
}

func TestManagerLifecycle(t *testing.T) {
	f := &fakePlugin{}
	pm := newManager(f)
	ctx := context.Background()

	if err := pm.StartAll(ctx, cfgWith(true, `{"value":1}`)); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !pm.Running("fake") || f.inits != 1 || f.starts != 1 || f.changes != 1 {
		t.Fatalf("after start: running=%v inits=%d starts=%d changes=%d", pm.Running("fake"), f.inits, f.starts, f.changes)
	}
	if status, err := f.Health(ctx); status != "ok" || err != nil {
		t.Fatalf("Health = (%q, %v)", status, err)
	}

	// Same config modulo whitespace: no OnConfigChange.
	pm.OnConfigUpdate(ctx, cfgWith(true, `{ "value": 1 }`))
	if f.changes != 1 {
		t.Fatalf("redundant config change applied (%d)", f.changes)
	}

	pm.OnConfigUpdate(ctx, cfgWith(true, `{"value":2}`))
	if f.changes != 2 || f.lastRaw != `{"value":2}` {
		t.Fatalf("config change not applied: %d %q", f.changes, f.lastRaw)
	}

	pm.OnConfigUpdate(ctx, cfgWith(false, `{"value":2}`))
	if pm.Running("fake") || f.stops != 1 {
		t.Fatalf("after disable: running=%v stops=%d", pm.Running("fake"), f.stops)
	}

	pm.OnConfigUpdate(ctx, cfgWith(true, `{"value":2}`))
	if f.inits != 1 || f.starts != 2 {
		t.Fatalf("re-enable must not re-init: inits=%d starts=%d", f.inits, f.starts)
	}

	pm.StopAll(ctx)
	if pm.Running("fake") || f.stops != 2 {
		t.Fatalf("after StopAll: running=%v stops=%d", pm.Running("fake"), f.stops)
	}
}

func TestManagerSubscriptionsFollowEnabled(t *testing.T) {
	f := &fakePlugin{}
	pm := newManager(f)
	ctx := context.Background()
	ev := eventbus.Event{Kind: eventbus.KindNoticeMessage}

	if err := pm.StartAll(ctx, cfgWith(false, ``)); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	pm.Registry().Deliver(ctx, ev)
	if f.handled != 0 || f.inits != 0 {
		t.Fatal("disabled plugin must not be initialized or receive events")
	}

	pm.OnConfigUpdate(ctx, cfgWith(true, ``))
	pm.Registry().Deliver(ctx, ev)
	if f.handled != 1 {
		t.Fatalf("handled = %d, want 1", f.handled)
	}

	pm.OnConfigUpdate(ctx, cfgWith(false, ``))
	pm.Registry().Deliver(ctx, ev)
	if f.handled != 1 {
		t.Fatalf("handled = %d after disable, want 1", f.handled)
	}
}

func TestManagerMissingEntryStaysDisabled(t *testing.T) {
	f := &fakePlugin{}
	pm := newManager(f)
	if err := pm.StartAll(context.Background(), &config.Config{}); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if pm.Running("fake") {
		t.Fatal("plugin without config entry must stay disabled")
	}
}

func TestManagerStartErrors(t *testing.T) {
	f := &fakePlugin{failStart: true}
	pm := newManager(f)
	err := pm.StartAll(context.Background(), cfgWith(true, ``))
	if err == nil || !strings.Contains(err.Error(), "start failed") {
		t.Fatalf("err = %v", err)
	}
	if pm.Running("fake") {
		t.Fatal("failed plugin must not be marked running")
	}

	p := &fakePlugin{panicChange: true}
	pm = newManager(p)
	if err := pm.StartAll(context.Background(), cfgWith(true, ``)); err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
}

func TestManagerValidateConfig(t *testing.T) {
	pm := newManager(&fakePlugin{})
	ctx := context.Background()
	if err := pm.ValidateConfig(ctx, cfgWith(true, `{"value":1}`)); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
	err := pm.ValidateConfig(ctx, cfgWith(true, `{"other":1}`))
	if err == nil || !strings.Contains(err.Error(), "plugins.fake") {
		t.Fatalf("err = %v", err)
	}
	if err := pm.StartAll(ctx, cfgWith(true, `{"other":1}`)); err == nil {
		t.Fatal("StartAll must reject invalid plugin config")
	}
}

func TestPluginBasePost(t *testing.T) {
	var got transport.Message
	b := &PluginBase{}
	b.InitBase(PluginDeps{Poster: transport.PosterFunc(func(ctx context.Context, m transport.Message) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("Post must bound the call with a deadline")
		}
		got = m
		return nil
	})}, "fake")

	if err := b.Post(context.Background(), transport.Message{Title: "x"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got.Title != "x" {
		t.Fatalf("poster got %+v", got)
	}

	empty := &PluginBase{}
	if err := empty.Post(context.Background(), transport.Message{}); err == nil {
		t.Fatal("expected error without poster")
	}
}

func TestDecodePluginConfig(t *testing.T) {
	type cfg struct {
		A string `json:"a"`
	}
	for _, raw := range []string{``, `null`, `  `} {
		if got, err := DecodePluginConfig[cfg](json.RawMessage(raw)); err != nil || got.A != "" {
			t.Fatalf("DecodePluginConfig(%q) = (%+v, %v)", raw, got, err)
		}
	}
	if got, err := DecodePluginConfig[cfg](json.RawMessage(`{"a":"x"}`)); err != nil || got.A != "x" {
		t.Fatalf("got (%+v, %v)", got, err)
	}
	if _, err := DecodePluginConfig[cfg](json.RawMessage(`{"b":1}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := DecodePluginConfig[cfg](json.RawMessage(`{"a":"x"} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}
