package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"dlnotify/internal/eventbus"
	logx "dlnotify/pkg/logx"
)

func TestLogPosterWritesJSONLines(t *testing.T) {
	var out bytes.Buffer
	p := NewLogPoster(&out, logx.Nop())

	msgs := []Message{
		{Type: eventbus.NotificationDownload, Source: "s", Title: "A", Text: "test", UserID: "alice"},
		{Type: eventbus.NotificationDownload, Source: "s", Title: "B", Text: "test"},
	}
	for _, m := range msgs {
		if err := p.PostMessage(context.Background(), m); err != nil {
			t.Fatalf("PostMessage: %v", err)
		}
	}
	if p.Posted() != 2 {
		t.Fatalf("Posted = %d", p.Posted())
	}

	dec := json.NewDecoder(&out)
	for i, want := range msgs {
		var got Message
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("decode line %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("line %d = %+v, want %+v", i, got, want)
		}
	}
	if !msgs[1].Broadcast() || msgs[0].Broadcast() {
		t.Fatal("Broadcast disagrees with UserID")
	}
}

func TestLogPosterHonorsCanceledContext(t *testing.T) {
	p := NewLogPoster(nil, logx.Logger{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PostMessage(ctx, Message{Title: "x"}); err == nil {
		t.Fatal("expected context error")
	}
	if p.Posted() != 0 {
		t.Fatal("canceled post must not be counted")
	}
}
