package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"dlnotify/internal/eventbus"
	logx "dlnotify/pkg/logx"
)

const maxEventLine = 1 << 20

// eventLine is one line of a replay file.
type eventLine struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type replayStats struct {
	Delivered int
	Skipped   int
}

// replayEvents reads JSON-lines events from r and delivers them to registry.
// Blank lines and lines starting with '#' are ignored. Malformed lines are
// logged and skipped. A non-nil limiter paces delivery.
func replayEvents(ctx context.Context, r io.Reader, registry *eventbus.Registry, limiter *rate.Limiter, log logx.Logger) (replayStats, error) {
	var stats replayStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var ev eventLine
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Warn("skipping malformed event line", logx.Int("line", lineNo), logx.Err(err))
			stats.Skipped++
			continue
		}
		kind, err := eventbus.ParseKind(ev.Kind)
		if err != nil {
			log.Warn("skipping event", logx.Int("line", lineNo), logx.Err(err))
			stats.Skipped++
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		n := registry.Deliver(ctx, eventbus.Event{Kind: kind, Data: ev.Data})
		log.Debug("event delivered", logx.Int("line", lineNo), logx.String("kind", kind.String()), logx.Int("handlers", n))
		stats.Delivered++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, nil
}

// newLimiter returns nil when perSecond is not positive.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
