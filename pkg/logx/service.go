package logx

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Service owns the process log sinks. Apply swaps them at runtime; loggers
// handed out earlier pick up the change.
type Service struct {
	mu      sync.Mutex
	console io.Writer
	file    *os.File

	zl atomic.Pointer[zerolog.Logger]
}

type Option func(*Service)

// WithConsole sends console output to w instead of stderr.
func WithConsole(w io.Writer) Option {
	return func(s *Service) { s.console = w }
}

// New builds a Service from cfg and returns it with its root Logger.
func New(cfg Config, opts ...Option) (*Service, Logger) {
	s := &Service{console: os.Stderr}
	for _, o := range opts {
		o(s)
	}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) Logger() Logger { return Logger{src: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.zl.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply rebuilds the sinks from cfg. If no sink is enabled, console is used.
// A file that cannot be opened is reported through the new logger.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var (
		sinks   []io.Writer
		fileErr error
		path    string
	)
	if cfg.File.Enabled {
		path = strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultFilePath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fileErr = err
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if cfg.Console || len(sinks) == 0 {
		sinks = append(sinks, s.consoleSink(cfg.Format))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(levelOr(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.zl.Store(&zl)

	if fileErr != nil {
		s.Logger().Error("log file unavailable; using console", String("path", path), Err(fileErr))
	}
}

func (s *Service) consoleSink(format string) io.Writer {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return s.console
	}
	return zerolog.ConsoleWriter{
		Out:        s.console,
		TimeFormat: timeFormat,
		FormatCaller: func(i any) string {
			c, _ := i.(string)
			return c
		},
	}
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
