package notify

import (
	"testing"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

func TestFormatTargets(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"empty", nil, "channel"},
		{"single", []string{"alice"}, "@alice"},
		{"multiple", []string{"alice", "bob"}, "@alice, @bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTargets(tt.ids); got != tt.want {
				t.Errorf("FormatTargets() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUrgencyEmoji(t *testing.T) {
	if UrgencyEmoji(model.UrgencyHigh) != ":red_circle:" {
		t.Error("high urgency should be red")
	}
	if UrgencyEmoji("") != ":large_blue_circle:" {
		t.Error("unknown urgency should fall back to blue")
	}
}

func TestTypeTitle(t *testing.T) {
	if got := TypeTitle(model.NotifyWorkloadImbalance); got != "Workload imbalance" {
		t.Errorf("TypeTitle() = %q", got)
	}
	if got := TypeTitle("custom"); got != "custom" {
		t.Errorf("unknown type should pass through, got %q", got)
	}
}

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"high", "suggested"},
		{"HIGH", "suggested"},
		{"medium", "possible"},
		{"low", "uncertain"},
		{"", "uncertain"},
	}
	for _, tt := range tests {
		if got := FormatConfidence(tt.level); got != tt.want {
			t.Errorf("FormatConfidence(%q) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{30 * time.Second, "30 sec ago"},
		{time.Minute, "1 min ago"},
		{5 * time.Minute, "5 min ago"},
		{time.Hour, "1 hour ago"},
		{3 * time.Hour, "3 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
	}
	for _, tt := range tests {
		if got := TimeAgo(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("TimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
