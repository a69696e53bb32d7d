// internal/whatsapp/client.go
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"picme-bot/config"
	"picme-bot/pkg/logger"
)

// Client is a thin wrapper over the WhatsApp Cloud API messages endpoint.
type Client struct {
	apiURL     string
	numberID   string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(cfg *config.Config, l *logger.Logger) *Client {
	return &Client{
		apiURL:     cfg.WhatsApp.APIURL,
		numberID:   cfg.WhatsApp.NumberID,
		apiKey:     cfg.WhatsApp.APIKey,
		httpClient: &http.Client{},
		logger:     l.Named("whatsapp"),
	}
}

// Button is one reply option on an interactive message (max two per message).
type Button struct {
	ID    string
	Title string
}

// ListOption is one row of an interactive option list.
type ListOption struct {
	ID    string
	Title string
}

func (c *Client) post(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiURL, c.numberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, data)
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"text":              map[string]interface{}{"body": body},
	})
}

// ReplyToMessage sends a text message quoting the referenced message.
func (c *Client) ReplyToMessage(ctx context.Context, to, body, messageID string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]interface{}{"body": body},
		"context":           map[string]interface{}{"message_id": messageID},
	})
}

func (c *Client) SendImage(ctx context.Context, to, link, caption string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             map[string]interface{}{"link": link, "caption": caption},
	})
}

// SendImageByID sends an image previously uploaded to the channel.
func (c *Client) SendImageByID(ctx context.Context, to, mediaID, caption string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             map[string]interface{}{"id": mediaID, "caption": caption},
	})
}

func (c *Client) SendVideo(ctx context.Context, to, link, caption string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "video",
		"video":             map[string]interface{}{"link": link, "caption": caption},
	})
}

func (c *Client) SendReaction(ctx context.Context, to, messageID, emoji string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "reaction",
		"reaction":          map[string]interface{}{"message_id": messageID, "emoji": emoji},
	})
}

// SendTypingIndicator marks the message read and shows a typing indicator.
func (c *Client) SendTypingIndicator(ctx context.Context, messageID string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
		"typing_indicator":  map[string]interface{}{"type": "text"},
	})
}

func buttonsPayload(buttons []Button) []interface{} {
	var out []interface{}
	for _, b := range buttons {
		out = append(out, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]interface{}{"id": b.ID, "title": b.Title},
		})
	}
	return out
}

// SendReplyButtons sends a message with one or two reply buttons.
func (c *Client) SendReplyButtons(ctx context.Context, to, header, body string, buttons []Button) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"header": map[string]interface{}{"type": "text", "text": header},
			"body":   map[string]interface{}{"text": body},
			"footer": map[string]interface{}{"text": ""},
			"action": map[string]interface{}{"buttons": buttonsPayload(buttons)},
		},
	})
}

// SendImageButtons sends reply buttons with an image header.
func (c *Client) SendImageButtons(ctx context.Context, to, imageURL, body string, buttons []Button) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "button",
			"header": map[string]interface{}{
				"type":  "image",
				"image": map[string]interface{}{"link": imageURL},
			},
			"body":   map[string]interface{}{"text": body},
			"footer": map[string]interface{}{"text": ""},
			"action": map[string]interface{}{"buttons": buttonsPayload(buttons)},
		},
	})
}

// SendList sends an interactive option list.
func (c *Client) SendList(ctx context.Context, to, header, body, footer, buttonLabel string, options []ListOption) error {
	var rows []interface{}
	for _, o := range options {
		rows = append(rows, map[string]interface{}{"id": o.ID, "title": o.Title})
	}
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "list",
			"header": map[string]interface{}{"type": "text", "text": header},
			"body":   map[string]interface{}{"text": body},
			"footer": map[string]interface{}{"text": footer},
			"action": map[string]interface{}{
				"button": buttonLabel,
				"sections": []interface{}{
					map[string]interface{}{"title": "Select your option", "rows": rows},
				},
			},
		},
	})
}

// SendURLButton sends a call-to-action message opening the given link.
func (c *Client) SendURLButton(ctx context.Context, to, header, body, footer, buttonText, link string) error {
	return c.post(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "cta_url",
			"header": map[string]interface{}{"type": "text", "text": header},
			"body":   map[string]interface{}{"text": body},
			"footer": map[string]interface{}{"text": footer},
			"action": map[string]interface{}{
				"name": "cta_url",
				"parameters": map[string]interface{}{
					"display_text": buttonText,
					"url":          link,
				},
			},
		},
	})
}

// GetMedia downloads media bytes by id: one call resolves the download URL,
// a second fetches the bytes.
func (c *Client) GetMedia(ctx context.Context, mediaID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.apiURL, mediaID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media url: %w", err)
	}
	defer resp.Body.Close()

	var meta struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode media metadata: %w", err)
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("no download url for media %s", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	dlResp, err := c.httpClient.Do(dlReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode >= 300 {
		return nil, fmt.Errorf("media download returned %d", dlResp.StatusCode)
	}
	return io.ReadAll(dlResp.Body)
}
