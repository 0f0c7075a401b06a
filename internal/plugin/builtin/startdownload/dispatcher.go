package startdownload

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"dlnotify/internal/eventbus"
	"dlnotify/internal/transport"
	logx "dlnotify/pkg/logx"
)

// placeholderText is the body of every posted message.
const placeholderText = "test"

// Dispatcher resolves the recipients of a download notice and posts one
// message per recipient. It holds no state beyond its Settings and is safe
// for concurrent use.
type Dispatcher struct {
	settings Settings
	source   string
	poster   transport.Poster
	log      logx.Logger
}

// NewDispatcher builds a dispatcher. source is the identity of the owning
// plugin instance; it is stamped on posted messages and used to recognize
// notices that instance emitted.
func NewDispatcher(settings Settings, source string, poster transport.Poster, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	settings.AdminUsers = append([]string(nil), settings.AdminUsers...)
	return &Dispatcher{
		settings: settings,
		source:   source,
		poster:   poster,
		log:      log,
	}
}

// Settings returns a copy of the snapshot the dispatcher was built from.
func (d *Dispatcher) Settings() Settings {
	s := d.settings
	s.AdminUsers = append([]string(nil), s.AdminUsers...)
	return s
}

// OnDownloadEvent fans a notice out according to the recipient policy.
// Errors are logged and never returned.
func (d *Dispatcher) OnDownloadEvent(ctx context.Context, n eventbus.NoticeMessage) {
	if n.Type != eventbus.NotificationDownload && n.Source != d.source {
		return
	}
	if !d.settings.Enabled {
		return
	}

	policy := d.settings.Policy
	log := d.log.With(
		logx.String("dispatch_id", uuid.NewString()),
		logx.String("notice_type", string(n.Type)),
		logx.String("policy", string(policy)),
	)
	log.Info("download notice received", logx.String("title", n.Title), logx.String("username", n.Username))

	if policy.includesAdmins() {
		if len(d.settings.AdminUsers) == 0 {
			log.Error("no admin users configured; skipping admin notifications")
		} else {
			log.Info("notifying admins", logx.Int("count", len(d.settings.AdminUsers)))
			for _, admin := range d.settings.AdminUsers {
				d.sendNotification(ctx, log, n, admin)
			}
		}
	}

	if policy.includesUser() {
		if policy.includesAdmins() && d.settings.IsAdmin(n.Username) {
			log.Debug("download user is an admin; already notified", logx.String("username", n.Username))
		} else {
			if strings.TrimSpace(n.Username) == "" {
				log.Warn("notice has no username; posting without a recipient")
			}
			log.Info("notifying download user", logx.String("username", n.Username))
			d.sendNotification(ctx, log, n, n.Username)
		}
	}

	if policy == PolicyAll {
		log.Info("notifying everyone")
		d.sendNotification(ctx, log, n, "")
	}

	if !policy.Valid() {
		log.Debug("unrecognized recipient policy; nothing dispatched")
	}
}

// sendNotification posts exactly one message. An empty recipient leaves
// delivery to the host's default fan-out. The notice image is not forwarded.
func (d *Dispatcher) sendNotification(ctx context.Context, log logx.Logger, n eventbus.NoticeMessage, recipient string) {
	channel := d.resolveChannel()
	log.Info("posting message", logx.String("channel", channel), logx.String("userid", recipient))

	if d.poster == nil {
		log.Warn("no poster available; message dropped", logx.String("userid", recipient))
		return
	}
	err := d.poster.PostMessage(ctx, transport.Message{
		Type:    eventbus.NotificationDownload,
		Channel: channel,
		Source:  d.source,
		Title:   n.Title,
		Text:    placeholderText,
		UserID:  recipient,
	})
	if err != nil {
		log.Warn("post message failed", logx.String("userid", recipient), logx.Err(err))
	}
}

// resolveChannel always selects no specific channel: per-user channel
// preferences are not looked up, so the host default applies.
func (d *Dispatcher) resolveChannel() string { return "" }
