package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// Discord accepts at most 10 embeds per message.
const discordMaxEmbeds = 10

// DiscordNotifier sends notification batches to a Discord webhook.
type DiscordNotifier struct {
	webhook
}

// NewDiscordNotifier creates a DiscordNotifier with the given webhook URL.
func NewDiscordNotifier(webhookURL string, opts ...WebhookOption) *DiscordNotifier {
	return &DiscordNotifier{webhook: newWebhook("discord", webhookURL, 30*time.Second, opts)}
}

// discordEmbed represents a Discord embed object.
type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Footer      *discordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// discordField represents a field in a Discord embed.
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// discordFooter represents the footer of a Discord embed.
type discordFooter struct {
	Text string `json:"text"`
}

// discordPayload is the top-level Discord webhook payload.
type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Embed colors by urgency.
const (
	colorHigh   = 15158332 // red
	colorMedium = 15105570 // orange
	colorLow    = 3447003  // blue
)

func urgencyColor(u model.Urgency) int {
	switch u {
	case model.UrgencyHigh:
		return colorHigh
	case model.UrgencyMedium:
		return colorMedium
	default:
		return colorLow
	}
}

// BuildDiscordPayloads splits a batch into webhook payloads of at most ten
// embeds each.
func BuildDiscordPayloads(batch []model.Notification) []discordPayload {
	var out []discordPayload
	for start := 0; start < len(batch); start += discordMaxEmbeds {
		end := min(start+discordMaxEmbeds, len(batch))
		p := discordPayload{}
		for _, n := range batch[start:end] {
			p.Embeds = append(p.Embeds, buildDiscordEmbed(n))
		}
		out = append(out, p)
	}
	return out
}

func buildDiscordEmbed(n model.Notification) discordEmbed {
	fields := []discordField{
		{Name: "Urgency", Value: string(n.Urgency), Inline: true},
		{Name: "Notify", Value: FormatTargets(n.TargetUserIDs), Inline: true},
	}
	if n.IssueID != "" {
		fields = append(fields, discordField{Name: "Issue", Value: n.IssueID, Inline: true})
	}
	e := discordEmbed{
		Title:       TypeTitle(n.Type),
		Description: n.Message,
		Color:       urgencyColor(n.Urgency),
		Fields:      fields,
		Footer:      &discordFooter{Text: "dispatch - " + n.ID},
	}
	if !n.CreatedAt.IsZero() {
		e.Timestamp = n.CreatedAt.UTC().Format(time.RFC3339)
	}
	return e
}

// Notify posts the batch, ten embeds per request.
func (d *DiscordNotifier) Notify(ctx context.Context, batch []model.Notification) error {
	for i, p := range BuildDiscordPayloads(batch) {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling discord payload: %w", err)
		}
		if err := d.send(ctx, body); err != nil {
			return fmt.Errorf("discord chunk %d: %w", i, err)
		}
	}
	return nil
}
