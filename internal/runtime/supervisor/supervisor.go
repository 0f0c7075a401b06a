package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	logx "dlnotify/pkg/logx"
)

// Supervisor runs named background tasks under one cancelable context.
// A task that panics or returns an error (other than context.Canceled) is
// recorded; only the first failure is kept.
type Supervisor struct {
	ctx  context.Context
	stop context.CancelFunc
	log  logx.Logger

	failFast bool

	mu      sync.Mutex
	err     error
	running int
	started int
	idle    chan struct{} // closed while running == 0
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option { return func(s *Supervisor) { s.log = log } }

// WithCancelOnError cancels every task after the first failure.
func WithCancelOnError(on bool) Option { return func(s *Supervisor) { s.failFast = on } }

// Counters is a point-in-time view of task activity.
type Counters struct {
	Active  int `json:"active"`
	Started int `json:"started"`
}

func NewSupervisor(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{idle: make(chan struct{})}
	s.ctx, s.stop = context.WithCancel(parent)
	close(s.idle)
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Err returns the first task failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counters{Active: s.running, Started: s.started}
}

// Go starts fn as a task named name.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.enter()
	go func() {
		defer s.leave()
		if err := s.call(name, fn); err != nil {
			s.record(err)
		}
	}()
}

// Go0 starts a task that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error { fn(ctx); return nil })
}

// Stop cancels all tasks and waits for them, bounded by ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stop()
	return s.Wait(ctx)
}

// Wait blocks until no task is running or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", logx.String("task", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	s.log.Debug("task started", logx.String("task", name))
	defer s.log.Debug("task stopped", logx.String("task", name))
	if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (s *Supervisor) enter() {
	s.mu.Lock()
	if s.running == 0 {
		s.idle = make(chan struct{})
	}
	s.running++
	s.started++
	s.mu.Unlock()
}

func (s *Supervisor) leave() {
	s.mu.Lock()
	s.running--
	if s.running == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
}

func (s *Supervisor) record(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	if s.failFast {
		s.stop()
	}
}
