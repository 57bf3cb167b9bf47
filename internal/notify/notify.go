// Package notify delivers engine events to outbound channels.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nifty-strangler/internal/config"
	errs "nifty-strangler/internal/errors"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Channel is one delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationEntry      NotificationType = "entry"
	NotificationAdjustment NotificationType = "adjustment"
	NotificationExit       NotificationType = "exit"
	NotificationSummary    NotificationType = "summary"
	NotificationError      NotificationType = "error"
	NotificationInfo       NotificationType = "info"
)

// IsTrade reports whether the notification describes a position change.
func (t NotificationType) IsTrade() bool {
	return t == NotificationEntry || t == NotificationAdjustment || t == NotificationExit
}

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelTradesOnly NotificationLevel = "trades_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []Channel
	level    NotificationLevel
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in
// cfg. Telegram and webhook channels share cfg.Timeout.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		level: NotificationLevel(cfg.Level),
		now:   time.Now,
	}
	if mn.level == "" {
		mn.level = LevelAll
	}

	mn.channels = append(mn.channels, NewLogNotifier(logger))
	if !cfg.Enabled {
		return mn
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook, cfg.Timeout))
	}
	if cfg.Telegram.Enabled {
		mn.channels = append(mn.channels, NewTelegramNotifier(cfg.Telegram, cfg.Timeout))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	var names []string
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

func (mn *MultiNotifier) shouldSend(t NotificationType) bool {
	switch mn.level {
	case LevelTradesOnly:
		return t.IsTrade()
	case LevelErrorsOnly:
		return t == NotificationError
	default:
		return true
	}
}

// Send delivers n to every enabled channel. All channels are attempted;
// their failures are joined.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = mn.now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var failures []error
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}

	return errs.Join(failures...)
}

// NoOpNotifier is a notifier that does nothing.
type NoOpNotifier struct{}

// Send does nothing.
func (NoOpNotifier) Send(ctx context.Context, n Notification) error {
	return nil
}

var (
	_ Notifier = (*MultiNotifier)(nil)
	_ Notifier = NoOpNotifier{}
)
