// Package notify composes the team notification feed and delivers it to
// chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jacklau/dispatch/internal/model"
)

// Notifier delivers a batch of notifications.
type Notifier interface {
	Notify(ctx context.Context, batch []model.Notification) error
}

// MultiNotifier fans a batch out to several notifiers.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: slog.Default()}
}

// Notify sends the batch to every notifier, continuing past failures.
// All errors are joined.
func (m *MultiNotifier) Notify(ctx context.Context, batch []model.Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, batch); err != nil {
			m.logger.Warn("notifier failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier creates a Notifier for the configured webhooks. It returns nil
// when no webhook is configured.
func NewNotifier(slackURL, discordURL string, maxAttempts int) Notifier {
	var ns []Notifier
	if slackURL != "" {
		ns = append(ns, NewSlackNotifier(slackURL, WithMaxAttempts(maxAttempts)))
	}
	if discordURL != "" {
		ns = append(ns, NewDiscordNotifier(discordURL, WithMaxAttempts(maxAttempts)))
	}
	switch len(ns) {
	case 0:
		return nil
	case 1:
		return ns[0]
	default:
		return NewMultiNotifier(ns...)
	}
}

// NewNotifierByType creates a Notifier of an explicit kind: "slack",
// "discord" or "both".
func NewNotifierByType(notifyType, slackURL, discordURL string, maxAttempts int) (Notifier, error) {
	switch notifyType {
	case "slack":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for slack notifier")
		}
		return NewSlackNotifier(slackURL, WithMaxAttempts(maxAttempts)), nil
	case "discord":
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for discord notifier")
		}
		return NewDiscordNotifier(discordURL, WithMaxAttempts(maxAttempts)), nil
	case "both":
		if slackURL == "" || discordURL == "" {
			return nil, fmt.Errorf("slack and discord webhook URLs are required for 'both' notifier")
		}
		return NewMultiNotifier(
			NewSlackNotifier(slackURL, WithMaxAttempts(maxAttempts)),
			NewDiscordNotifier(discordURL, WithMaxAttempts(maxAttempts)),
		), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %q", notifyType)
	}
}
