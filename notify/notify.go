package notify

import (
	"github.com/gen2brain/beeep"

	"superscribe/log"
)

func init() { beeep.AppName = "superscribe" }

// Notifier shows desktop notifications. A disabled Notifier does nothing.
type Notifier struct {
	enabled bool
	send    func(title, message string) error
}

func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		send:    func(title, message string) error { return beeep.Notify(title, message, "") },
	}
}

func (n *Notifier) Enabled() bool { return n != nil && n.enabled }

// Notify shows title and message. Delivery failures are logged only.
func (n *Notifier) Notify(title, message string) {
	if !n.Enabled() {
		return
	}
	if err := n.send(title, message); err != nil {
		log.Warnf("notify: %v", err)
	}
}
