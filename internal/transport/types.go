package transport

import (
	"context"

	"dlnotify/internal/eventbus"
)

// Message is the envelope handed to the host's "post message" capability.
//
// Channel "" means no specific channel (the host picks its default).
// UserID "" means no specific recipient (the host fans out to everyone the
// channel reaches).
type Message struct {
	Type    eventbus.NotificationType `json:"type"`
	Channel string                    `json:"channel,omitempty"`
	Source  string                    `json:"source,omitempty"`
	Title   string                    `json:"title"`
	Text    string                    `json:"text,omitempty"`
	UserID  string                    `json:"userid,omitempty"`
}

// Broadcast reports whether the message has no specific recipient.
func (m Message) Broadcast() bool { return m.UserID == "" }

// Poster is the host-provided outbound capability. Implementations own any
// channel resolution, queueing, retry or network behavior.
type Poster interface {
	PostMessage(ctx context.Context, m Message) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(ctx context.Context, m Message) error

func (f PosterFunc) PostMessage(ctx context.Context, m Message) error { return f(ctx, m) }
