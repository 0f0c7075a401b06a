package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "dlnotify/pkg/logx"
)

const (
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

// Watch reloads the config after the file settles until ctx is done.
// Reloads run on the calling goroutine, one at a time. A failed watcher is
// recreated with jittered exponential backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	if strings.TrimSpace(m.path) == "" {
		return ErrNoPath
	}
	dir, name := filepath.Dir(m.path), filepath.Base(m.path)
	backoff := watchBackoffMin

	for ctx.Err() == nil {
		err := m.watchOnce(ctx, dir, name)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		wait := jitter(backoff)
		backoff = min(backoff*2, watchBackoffMax)
		m.log.Warn("config watcher failed; restarting", logx.String("dir", dir), logx.Duration("backoff", wait), logx.Err(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
	return nil
}

// watchOnce runs one fsnotify watcher. It returns nil when ctx ends and an
// error when the watcher breaks.
func (m *ConfigManager) watchOnce(ctx context.Context, dir, name string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// Watch the directory so editors that replace the file still count.
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", name))

	var (
		settle  *time.Timer
		settleC <-chan time.Time
	)
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()
	schedule := func() {
		if settle == nil {
			settle = time.NewTimer(m.debounce)
		} else {
			settle.Reset(m.debounce)
		}
		settleC = settle.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if strings.EqualFold(filepath.Base(ev.Name), name) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				schedule()
				continue
			}
			m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))

		case <-settleC:
			settleC = nil
			if _, err := m.Reload(ctx); err != nil {
				m.log.Warn("config reload failed", logx.String("path", m.path), logx.Err(err))
			}
		}
	}
}

func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}
