package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"dlnotify/internal/config"
	"dlnotify/internal/runtime/supervisor"
	logx "dlnotify/pkg/logx"
)

type runOptions struct {
	configPath string
	eventsPath string
	rate       float64
	watch      bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the plugin host and dispatch replayed notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "./config.yaml", "Configuration file path (YAML or JSON)")
	cmd.Flags().StringVar(&opts.eventsPath, "events", "", "JSON-lines event file to replay, or - for stdin")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "Maximum events replayed per second (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Watch the config file and keep running until signalled")

	return cmd
}

func runHost(ctx context.Context, opts runOptions, stdin io.Reader, stdout io.Writer) error {
	cfgm := config.NewConfigManager(opts.configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}

	logs, log := logx.New(logConfig(cfg.Logging))
	defer func() { _ = logs.Close() }()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	h := newHost(log, stdout)
	if err := h.start(ctx, cfg); err != nil {
		return fmt.Errorf("start plugins: %w", err)
	}
	defer func() {
		sdNotify(log, daemon.SdNotifyStopping)
		h.stop()
	}()

	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(log.With(logx.String("comp", "supervisor"))))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := sup.Stop(sctx)
		c := sup.Counters()
		if err != nil {
			log.Warn("background tasks did not stop cleanly", logx.Int("active", c.Active), logx.Int("started", c.Started), logx.Err(err))
			return
		}
		log.Debug("background tasks stopped", logx.Int("started", c.Started))
	}()

	if opts.watch {
		cfgm.SetValidator(h.validate)
		sub := cfgm.Subscribe(1)

		sup.Go("config.watch", cfgm.Watch)
		sup.Go0("config.apply", func(ctx context.Context) {
			defer cfgm.Unsubscribe(sub)
			prev := cfg
			for {
				select {
				case <-ctx.Done():
					return
				case next, ok := <-sub:
					if !ok {
						return
					}
					applyReload(ctx, log, logs, h, prev, next)
					prev = next
				}
			}
		})
	}

	sdNotify(log, daemon.SdNotifyReady)
	log.Info("host ready", logx.String("config", cfgm.Path()), logx.Bool("watch", opts.watch))

	if opts.eventsPath != "" {
		r, closeFn, err := openEvents(opts.eventsPath, stdin)
		if err != nil {
			return err
		}
		stats, err := replayEvents(ctx, r, h.registry, newLimiter(opts.rate), log.With(logx.String("comp", "replay")))
		closeFn()
		log.Info("replay finished",
			logx.Int("delivered", stats.Delivered),
			logx.Int("skipped", stats.Skipped),
			logx.Int("posted", h.poster.Posted()),
		)
		if err != nil {
			return err
		}
	}

	if !opts.watch {
		return nil
	}
	<-ctx.Done()
	log.Info("shutdown requested")
	return nil
}

func applyReload(ctx context.Context, log logx.Logger, logs *logx.Service, h *host, prev, next *config.Config) {
	sdNotify(log, daemon.SdNotifyReloading)
	defer sdNotify(log, daemon.SdNotifyReady)

	sections, attrs, plugins := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		return
	}
	attrs = append(attrs, logx.Strings("sections", sections))
	log.Info("config reloaded", attrs...)

	for _, s := range sections {
		if s == "logging" {
			logs.Apply(logConfig(next.Logging))
		}
	}
	if len(plugins) > 0 {
		h.plugins.OnConfigUpdate(ctx, next)
	}
}

func openEvents(path string, stdin io.Reader) (io.Reader, func(), error) {
	if strings.TrimSpace(path) == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open events: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// sdNotify is a no-op outside systemd.
func sdNotify(log logx.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}
