package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMissingField = errors.New("missing required field")

// NotificationType tags the purpose of a notice or posted message.
type NotificationType string

const (
	NotificationDownload    NotificationType = "Download"
	NotificationOrganize    NotificationType = "Organize"
	NotificationSubscribe   NotificationType = "Subscribe"
	NotificationSiteMessage NotificationType = "SiteMessage"
	NotificationMediaServer NotificationType = "MediaServer"
	NotificationManual      NotificationType = "Manual"
	NotificationPlugin      NotificationType = "Plugin"
	NotificationOther       NotificationType = "Other"
)

var knownTypes = []NotificationType{
	NotificationDownload,
	NotificationOrganize,
	NotificationSubscribe,
	NotificationSiteMessage,
	NotificationMediaServer,
	NotificationManual,
	NotificationPlugin,
	NotificationOther,
}

// ParseNotificationType canonicalizes known types case-insensitively.
// Unknown values are kept verbatim; they simply never match Download.
func ParseNotificationType(s string) NotificationType {
	s = strings.TrimSpace(s)
	for _, t := range knownTypes {
		if strings.EqualFold(s, string(t)) {
			return t
		}
	}
	return NotificationType(s)
}

// NoticeMessage is the payload of a KindNoticeMessage event.
//
// Required: Type, and the title key in decoded payloads (its value may be
// empty). Optional: Image, Username, Source.
// Source identifies the emitter (a plugin instance ID when a plugin posted
// the original message); it is empty for notices raised by the host itself.
type NoticeMessage struct {
	Type     NotificationType `json:"type"`
	Title    string           `json:"title"`
	Image    string           `json:"image,omitempty"`
	Username string           `json:"username,omitempty"`
	Source   string           `json:"source,omitempty"`
}

// Validate checks the type is set. An empty title is allowed.
func (n NoticeMessage) Validate() error {
	if strings.TrimSpace(string(n.Type)) == "" {
		return fmt.Errorf("notice: %w: type", ErrMissingField)
	}
	return nil
}

// requireTitleKey reports a missing "title" key in a JSON object.
func requireTitleKey(b []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return fmt.Errorf("notice: decode: %w", err)
	}
	if _, ok := keys["title"]; !ok {
		return fmt.Errorf("notice: %w: title", ErrMissingField)
	}
	return nil
}

// DecodeNotice converts an event payload into a validated NoticeMessage.
//
// Accepted payloads: NoticeMessage, *NoticeMessage, json.RawMessage, []byte
// and map[string]any (the shape produced by decoding arbitrary JSON).
func DecodeNotice(data any) (NoticeMessage, error) {
	var n NoticeMessage
	switch v := data.(type) {
	case NoticeMessage:
		n = v
	case *NoticeMessage:
		if v == nil {
			return NoticeMessage{}, errors.New("notice: nil payload")
		}
		n = *v
	case json.RawMessage:
		if err := decodeJSONNotice(v, &n); err != nil {
			return NoticeMessage{}, err
		}
	case []byte:
		if err := decodeJSONNotice(v, &n); err != nil {
			return NoticeMessage{}, err
		}
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return NoticeMessage{}, fmt.Errorf("notice: encode map: %w", err)
		}
		if err := decodeJSONNotice(b, &n); err != nil {
			return NoticeMessage{}, err
		}
	case nil:
		return NoticeMessage{}, errors.New("notice: nil payload")
	default:
		return NoticeMessage{}, fmt.Errorf("notice: unsupported payload type %T", data)
	}

	n.Type = ParseNotificationType(string(n.Type))
	if err := n.Validate(); err != nil {
		return NoticeMessage{}, err
	}
	return n, nil
}

func decodeJSONNotice(b []byte, n *NoticeMessage) error {
	if err := json.Unmarshal(b, n); err != nil {
		return fmt.Errorf("notice: decode: %w", err)
	}
	return requireTitleKey(b)
}
