package config

import (
	"slices"
	"sync"

	logx "dlnotify/pkg/logx"
)

type subscribers struct {
	// mu is held while sending so remove never closes a channel mid-send.
	mu  sync.Mutex
	chs []chan *Config
	log logx.Logger
}

func (s *subscribers) add(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	s.mu.Lock()
	s.chs = append(s.chs, ch)
	s.mu.Unlock()
	return ch
}

func (s *subscribers) remove(ch chan *Config) {
	if ch == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.chs, ch); i >= 0 {
		s.chs = slices.Delete(s.chs, i, i+1)
		close(ch)
	}
}

// publish offers cfg to every subscriber without blocking and returns how
// many accepted it.
func (s *subscribers) publish(cfg *Config) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ch := range s.chs {
		if offerLatest(ch, cfg) {
			n++
		} else {
			s.log.Debug("config update dropped; subscriber full", logx.Int("cap", cap(ch)))
		}
	}
	return n
}

// offerLatest sends cfg, evicting one stale value if the buffer is full.
func offerLatest(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}
