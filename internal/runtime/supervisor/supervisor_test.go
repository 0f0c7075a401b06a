package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStopWaitsForGoroutines(t *testing.T) {
	s := NewSupervisor(context.Background())
	done := make(chan struct{})
	s.Go0("worker", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the goroutine exited")
	}
	if c := s.Counters(); c.Active != 0 || c.Started != 1 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestFirstErrorCancels(t *testing.T) {
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	s.Go("failing", func(ctx context.Context) error { return errors.New("boom") })
	s.Go("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "failing: boom") {
		t.Fatalf("Wait = %v", err)
	}
}

func TestPanicBecomesError(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go0("panicky", func(ctx context.Context) { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "panic in panicky") {
		t.Fatalf("Wait = %v", err)
	}
}

func TestCanceledIsNotAnError(t *testing.T) {
	s := NewSupervisor(context.Background())
	s.Go("clean", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
