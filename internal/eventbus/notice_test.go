package eventbus

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeNoticePayloadShapes(t *testing.T) {
	want := NoticeMessage{Type: NotificationDownload, Title: "Arrival", Image: "a.jpg", Username: "carol", Source: "x"}
	raw := json.RawMessage(`{"type":"download","title":"Arrival","image":"a.jpg","username":"carol","source":"x"}`)

	tests := []struct {
		name string
		data any
	}{
		{"struct", want},
		{"pointer", &want},
		{"raw", raw},
		{"bytes", []byte(raw)},
		{"map", map[string]any{"type": "Download", "title": "Arrival", "image": "a.jpg", "username": "carol", "source": "x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeNotice(tc.data)
			if err != nil {
				t.Fatalf("DecodeNotice: %v", err)
			}
			if got != want {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestDecodeNoticeOptionalFields(t *testing.T) {
	got, err := DecodeNotice(map[string]any{"type": "Organize", "title": "t"})
	if err != nil {
		t.Fatalf("DecodeNotice: %v", err)
	}
	if got.Type != NotificationOrganize || got.Username != "" || got.Image != "" || got.Source != "" {
		t.Fatalf("unexpected notice: %+v", got)
	}
}

func TestDecodeNoticeRejectsMissingFields(t *testing.T) {
	for _, data := range []any{
		map[string]any{"title": "t"},
		map[string]any{"type": "Download"},
		json.RawMessage(`{"type":"Download","username":"carol"}`),
		map[string]any{"type": "  ", "title": "t"},
	} {
		if _, err := DecodeNotice(data); !errors.Is(err, ErrMissingField) {
			t.Fatalf("DecodeNotice(%v) err = %v, want ErrMissingField", data, err)
		}
	}
}

func TestDecodeNoticeRejectsBadPayloads(t *testing.T) {
	for _, data := range []any{nil, (*NoticeMessage)(nil), 42, json.RawMessage(`{`)} {
		if _, err := DecodeNotice(data); err == nil {
			t.Fatalf("DecodeNotice(%#v) expected error", data)
		}
	}
}

func TestParseNotificationTypeKeepsUnknown(t *testing.T) {
	if got := ParseNotificationType(" mediaserver "); got != NotificationMediaServer {
		t.Fatalf("got %q", got)
	}
	if got := ParseNotificationType("Torrent"); got != NotificationType("Torrent") {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeNoticeAllowsEmptyTitle(t *testing.T) {
	for _, data := range []any{
		map[string]any{"type": "Download", "title": "", "username": "carol"},
		json.RawMessage(`{"type":"Download","title":"","username":"carol"}`),
		NoticeMessage{Type: NotificationDownload, Username: "carol"},
	} {
		got, err := DecodeNotice(data)
		if err != nil {
			t.Fatalf("DecodeNotice(%v): %v", data, err)
		}
		if got.Type != NotificationDownload || got.Title != "" || got.Username != "carol" {
			t.Fatalf("unexpected notice: %+v", got)
		}
	}
}
