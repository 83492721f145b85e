package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format. Unknown
// formats fall back to generic JSON.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("toolgate: %s", event.Decision),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Operation:* %s", event.Operation)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Resource:* %s", event.Resource)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Kind:* %s", event.Kind)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:* %s", event.Detail)},
				},
			},
		},
	}
	return json.Marshal(payload)
}
