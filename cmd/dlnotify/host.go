package main

import (
	"context"
	"fmt"
	"io"

	"dlnotify/internal/config"
	"dlnotify/internal/eventbus"
	"dlnotify/internal/plugin"
	"dlnotify/internal/plugin/builtin/startdownload"
	"dlnotify/internal/transport"
	logx "dlnotify/pkg/logx"
)

// host bundles the in-process stand-ins for the media server: an event
// registry, a poster that prints messages, and the plugin manager.
type host struct {
	log      logx.Logger
	registry *eventbus.Registry
	poster   *transport.LogPoster
	plugins  *plugin.PluginManager
}

func newHost(log logx.Logger, out io.Writer) *host {
	registry := eventbus.NewRegistry()
	registry.OnPanic(func(kind eventbus.Kind, owner string, recovered any) {
		log.Error("event handler panic",
			logx.String("kind", kind.String()),
			logx.String("owner", owner),
			logx.Any("panic", recovered),
		)
	})

	poster := transport.NewLogPoster(out, log.With(logx.String("comp", "poster")))
	pm := plugin.NewPluginManager(log.With(logx.String("comp", "plugins")), registry, plugin.PluginDeps{
		Logger: log,
		Poster: poster,
	})
	pm.Register(startdownload.New())

	return &host{log: log, registry: registry, poster: poster, plugins: pm}
}

// validate checks what the host applies itself plus every plugin block.
// run, validate and config reloads all go through it.
func (h *host) validate(ctx context.Context, cfg *config.Config) error {
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	return h.plugins.ValidateConfig(ctx, cfg)
}

func (h *host) start(ctx context.Context, cfg *config.Config) error {
	if err := h.validate(ctx, cfg); err != nil {
		return err
	}
	return h.plugins.StartAll(ctx, cfg)
}

func (h *host) stop() {
	h.plugins.StopAll(context.Background())
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		Format:  c.Format,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}
