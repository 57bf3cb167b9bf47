package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// TerminalNotifier prints notifications to a terminal, one coloured
// header line per event followed by the indented message.
type TerminalNotifier struct {
	out     io.Writer
	enabled bool
	mu      sync.Mutex
}

// NewTerminalNotifier creates a TerminalNotifier writing to out.
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{out: out, enabled: out != nil}
}

// Name returns the name of the notifier.
func (tn *TerminalNotifier) Name() string {
	return "terminal"
}

// IsEnabled returns whether the notifier is enabled.
func (tn *TerminalNotifier) IsEnabled() bool {
	return tn.enabled
}

// Send writes the formatted notification.
func (tn *TerminalNotifier) Send(ctx context.Context, n Notification) error {
	if !tn.enabled {
		return nil
	}
	tn.mu.Lock()
	defer tn.mu.Unlock()
	_, err := fmt.Fprintln(tn.out, FormatNotification(n))
	return err
}

var typeIndicators = map[NotificationType]struct {
	label string
	color *color.Color
}{
	NotificationEntry:      {"ENTRY", color.New(color.FgCyan, color.Bold)},
	NotificationAdjustment: {"ADJUST", color.New(color.FgYellow, color.Bold)},
	NotificationExit:       {"EXIT", color.New(color.FgMagenta, color.Bold)},
	NotificationSummary:    {"EOD", color.New(color.FgBlue, color.Bold)},
	NotificationError:      {"ERROR", color.New(color.FgRed, color.Bold)},
	NotificationInfo:       {"INFO", color.New(color.FgWhite)},
}

// FormatNotification formats a notification for terminal display. Colour
// follows color.NoColor.
func FormatNotification(n Notification) string {
	var sb strings.Builder

	ind, ok := typeIndicators[n.Type]
	if !ok {
		ind = typeIndicators[NotificationInfo]
	}
	sb.WriteString(ind.color.Sprintf("[%s] %-6s", n.Timestamp.Format("15:04:05"), ind.label))
	sb.WriteString(" " + n.Title)

	for _, line := range strings.Split(strings.TrimSpace(n.Message), "\n") {
		if line == "" {
			continue
		}
		sb.WriteString("\n    " + line)
	}
	return sb.String()
}
