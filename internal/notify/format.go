package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// FormatTargets formats target user ids for display.
// Example: "@alice, @bob"
func FormatTargets(ids []string) string {
	if len(ids) == 0 {
		return "channel"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "@" + id
	}
	return strings.Join(parts, ", ")
}

// UrgencyEmoji returns the Slack emoji shortcode for an urgency.
func UrgencyEmoji(u model.Urgency) string {
	switch u {
	case model.UrgencyHigh:
		return ":red_circle:"
	case model.UrgencyMedium:
		return ":large_orange_circle:"
	default:
		return ":large_blue_circle:"
	}
}

// TypeTitle returns a short heading for a notification type.
func TypeTitle(t model.NotificationType) string {
	switch t {
	case model.NotifyEscalation:
		return "Escalation"
	case model.NotifyAssignmentNeeded:
		return "Assignment needed"
	case model.NotifyWorkloadImbalance:
		return "Workload imbalance"
	case model.NotifyPatternDetected:
		return "Pattern detected"
	default:
		return string(t)
	}
}

// FormatConfidence returns a human-readable confidence level.
func FormatConfidence(level string) string {
	switch strings.ToLower(level) {
	case "high":
		return "suggested"
	case "medium":
		return "possible"
	default:
		return "uncertain"
	}
}

// TimeAgo returns a relative time string for t as seen from now.
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)

	switch {
	case d < time.Minute:
		secs := int(d.Seconds())
		if secs <= 1 {
			return "just now"
		}
		return fmt.Sprintf("%d sec ago", secs)
	case d < time.Hour:
		mins := int(d.Minutes())
		return fmt.Sprintf("%d %s ago", mins, plural(mins, "min", "min"))
	case d < 24*time.Hour:
		hours := int(d.Hours())
		return fmt.Sprintf("%d %s ago", hours, plural(hours, "hour", "hours"))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d %s ago", days, plural(days, "day", "days"))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
