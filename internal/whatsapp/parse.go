// internal/whatsapp/parse.go
package whatsapp

import (
	"encoding/json"
	"fmt"

	"picme-bot/internal/models"

	"github.com/google/uuid"
)

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Metadata struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMessage struct {
	ID     string                   `json:"id"`
	From   string                   `json:"from"`
	Type   string                   `json:"type"`
	Errors []map[string]interface{} `json:"errors"`
	Text   *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image *struct {
		ID string `json:"id"`
	} `json:"image"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

// supportedTypes are the payload kinds the funnel can work with; anything
// else is flagged as invalid media and answered with an explanation.
var supportedTypes = map[string]bool{
	"text":        true,
	"image":       true,
	"interactive": true,
}

// ParseWebhook normalizes a channel webhook body into inbound events.
// Messages for a different business number are dropped.
func ParseWebhook(body []byte, numberID string) ([]models.IncomingMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	var out []models.IncomingMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Value.Metadata.PhoneNumberID != numberID {
				return out, nil
			}
			for _, raw := range change.Value.Messages {
				if len(raw.Errors) > 0 {
					continue
				}

				msg := models.IncomingMessage{
					MessageID:    raw.ID,
					From:         raw.From,
					InvalidMedia: !supportedTypes[raw.Type],
				}
				if msg.MessageID == "" {
					msg.MessageID = uuid.NewString()
				}
				if raw.Text != nil {
					msg.Body = raw.Text.Body
				}
				if raw.Image != nil && raw.Image.ID != "" {
					msg.MediaIDs = append(msg.MediaIDs, raw.Image.ID)
				}
				if raw.Interactive != nil {
					switch raw.Interactive.Type {
					case "button_reply":
						if br := raw.Interactive.ButtonReply; br != nil {
							msg.Reply = &models.InteractiveReply{ID: br.ID, Title: br.Title}
						}
					case "list_reply":
						if lr := raw.Interactive.ListReply; lr != nil {
							msg.ListReply = &models.InteractiveReply{ID: lr.ID, Title: lr.Title}
						}
					}
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}
