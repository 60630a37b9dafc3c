// Package notify shows pipeline outcomes as desktop notifications.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"

	"dictakey/internal/logger"
	"dictakey/internal/ports"
)

const retryHint = "Use Retry in the recorder or run `dictakey retry`."

// Desktop shows notifications through the OS notification center.
type Desktop struct {
	appName string
	icon    string
	log     *slog.Logger

	notify func(title, message, icon string) error
	alert  func(title, message, icon string) error
}

func NewDesktop(appName, icon string, log *slog.Logger) *Desktop {
	return &Desktop{
		appName: appName,
		icon:    icon,
		log:     logger.OrDefault(log),
		notify:  func(title, message, icon string) error { return beeep.Notify(title, message, icon) },
		alert:   func(title, message, icon string) error { return beeep.Alert(title, message, icon) },
	}
}

func (d *Desktop) Notify(n ports.Notification) {
	title := n.Title
	if title == "" {
		title = d.appName
	}
	message := n.Message
	if n.Retryable {
		message += "\n" + retryHint
	}

	show := d.notify
	if n.Kind == ports.NotificationError {
		show = d.alert
	}
	if err := show(title, message, d.icon); err != nil {
		d.log.Warn("desktop notification failed", "title", title, "error", err)
	}
}

// Fanout delivers each notification to every notifier in order.
type Fanout []ports.Notifier

func (f Fanout) Notify(n ports.Notification) {
	for _, notifier := range f {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}
