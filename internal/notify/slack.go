package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// Slack allows at most 50 blocks per message.
const slackMaxBlocks = 50

// SlackNotifier sends notification batches to a Slack webhook.
type SlackNotifier struct {
	webhook
}

// NewSlackNotifier creates a SlackNotifier with the given webhook URL.
func NewSlackNotifier(webhookURL string, opts ...WebhookOption) *SlackNotifier {
	return &SlackNotifier{webhook: newWebhook("slack", webhookURL, 10*time.Second, opts)}
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents a text object in Slack Block Kit.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackPayload is the top-level Slack message payload.
type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// BuildSlackPayload creates the Block Kit message for a batch. Each
// notification takes a section and a context block.
func BuildSlackPayload(batch []model.Notification) slackPayload {
	summary := fmt.Sprintf("%d dispatch %s", len(batch), plural(len(batch), "notification", "notifications"))
	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: "Dispatch: " + summary},
	}}

	for i, n := range batch {
		if len(blocks)+2 > slackMaxBlocks {
			blocks = append(blocks, slackBlock{
				Type:     "context",
				Elements: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("_%d more not shown_", len(batch)-i)}},
			})
			break
		}
		blocks = append(blocks,
			slackBlock{
				Type: "section",
				Text: &slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("%s *%s* %s", UrgencyEmoji(n.Urgency), TypeTitle(n.Type), n.Message),
				},
			},
			slackBlock{
				Type: "context",
				Elements: []slackText{{
					Type: "mrkdwn",
					Text: fmt.Sprintf("urgency: %s | notify: %s", n.Urgency, FormatTargets(n.TargetUserIDs)),
				}},
			},
		)
	}

	return slackPayload{Text: summary, Blocks: blocks}
}

// Notify sends the batch as a single Slack message. Empty batches are skipped.
func (s *SlackNotifier) Notify(ctx context.Context, batch []model.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	body, err := json.Marshal(BuildSlackPayload(batch))
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}
	return s.send(ctx, body)
}
