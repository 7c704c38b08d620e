// Package notify delivers best-effort notifications to approvers.
//
// The core never blocks on delivery: lifecycle callers log notifier errors
// and move on.
package notify

import (
	"context"
	"log"
	"strings"
)

// Notifier delivers one message to a set of recipients.
type Notifier interface {
	Notify(ctx context.Context, subject, body string, recipients []string) error
}

// LogNotifier writes notifications to a log sink instead of sending them.
// The zero value logs through the default logger.
type LogNotifier struct {
	Logger *log.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, subject, body string, recipients []string) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify [%s] to %s: %s", subject, strings.Join(recipients, ","), body)
	return nil
}

// Discard silently drops every notification.
type Discard struct{}

var _ Notifier = Discard{}

// Notify does nothing.
func (Discard) Notify(context.Context, string, string, []string) error { return nil }
