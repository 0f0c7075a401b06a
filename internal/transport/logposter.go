package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	logx "dlnotify/pkg/logx"
)

// LogPoster is a dry-run Poster: it writes each message as one JSON line to
// an io.Writer and logs it. Nothing leaves the process.
type LogPoster struct {
	mu  sync.Mutex
	out io.Writer
	log logx.Logger

	posted int
}

func NewLogPoster(out io.Writer, log logx.Logger) *LogPoster {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPoster{out: out, log: log}
}

func (p *LogPoster) PostMessage(ctx context.Context, m Message) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if p == nil {
		return errors.New("log poster is nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out != nil {
		if err := json.NewEncoder(p.out).Encode(m); err != nil {
			return err
		}
	}
	p.posted++
	p.log.Info("message posted",
		logx.String("type", string(m.Type)),
		logx.String("title", m.Title),
		logx.String("userid", m.UserID),
		logx.Bool("broadcast", m.Broadcast()),
	)
	return nil
}

// Posted returns the number of messages written so far.
func (p *LogPoster) Posted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posted
}
