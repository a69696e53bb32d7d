// internal/astria/client.go
package astria

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"picme-bot/config"
	"picme-bot/internal/models"
	"picme-bot/pkg/logger"
)

// Client talks to the generation service with a fixed retry budget. Every
// call returns a nil result on exhaustion instead of an error; callers must
// treat absence as a first-class outcome.
type Client struct {
	baseURL    string
	apiKey     string
	attempts   int
	delay      time.Duration
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(cfg *config.Config, l *logger.Logger) *Client {
	attempts := cfg.Astria.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.Astria.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Client{
		baseURL:    cfg.Astria.APIURL,
		apiKey:     cfg.Astria.APIKey,
		attempts:   attempts,
		delay:      delay,
		httpClient: &http.Client{},
		logger:     l.Named("astria"),
	}
}

// doWithRetry performs the request up to the attempt budget with a fixed
// delay between attempts. Any non-2xx status or transport fault counts the
// same: try again. Returns nil on exhaustion.
func (c *Client) doWithRetry(ctx context.Context, method, url string, body []byte, contentType string) []byte {
	for attempt := 0; attempt < c.attempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			c.logger.Error("Failed to build request", "url", url, "error", err)
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			data, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return data
			}
			c.logger.Warn("Generation service returned non-success", "url", url, "status", resp.StatusCode, "attempt", attempt+1)
		} else {
			c.logger.Warn("Generation service request failed", "url", url, "attempt", attempt+1, "error", err)
		}

		if attempt < c.attempts-1 {
			time.Sleep(c.delay)
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) bool {
	data := c.doWithRetry(ctx, http.MethodGet, url, nil, "")
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("Failed to decode generation service response", "url", url, "error", err)
		return false
	}
	return true
}

func (c *Client) postForm(ctx context.Context, url string, fields []formField, out interface{}) bool {
	body, contentType, err := encodeForm(fields)
	if err != nil {
		c.logger.Error("Failed to encode form", "url", url, "error", err)
		return false
	}
	data := c.doWithRetry(ctx, http.MethodPost, url, body, contentType)
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("Failed to decode generation service response", "url", url, "error", err)
		return false
	}
	return true
}

type formField struct {
	key   string
	value string
	file  []byte
}

func encodeForm(fields []formField) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.file != nil {
			part, err := w.CreateFormFile(f.key, "person.png")
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(f.file); err != nil {
				return nil, "", err
			}
			continue
		}
		if err := w.WriteField(f.key, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// Inspect submits image bytes for content inspection. The attribute map is
// nil when the service stayed unreachable.
func (c *Client) Inspect(ctx context.Context, image []byte) map[string]interface{} {
	fields := []formField{
		{key: "file", file: image},
		{key: "name", value: "person"},
	}
	var attrs map[string]interface{}
	if !c.postForm(ctx, c.baseURL+"/images/inspect", fields, &attrs) {
		return nil
	}
	return attrs
}

// ListPacks returns the public catalog, nil on absence.
func (c *Client) ListPacks(ctx context.Context) []models.Pack {
	var packs []models.Pack
	if !c.getJSON(ctx, c.baseURL+"/packs", &packs) {
		return nil
	}
	return packs
}

// ListedPacks returns only catalog entries flagged as listed.
func (c *Client) ListedPacks(ctx context.Context) []models.Pack {
	var packs []models.Pack
	if !c.getJSON(ctx, c.baseURL+"/packs?listed=true", &packs) {
		return nil
	}
	return packs
}

// GetPack fetches one catalog entry by id, nil on absence.
func (c *Client) GetPack(ctx context.Context, id string) *models.Pack {
	var pack models.Pack
	if !c.getJSON(ctx, fmt.Sprintf("%s/p/%s", c.baseURL, id), &pack) {
		return nil
	}
	return &pack
}

// ListTunes returns every tune the account holds, nil on absence.
func (c *Client) ListTunes(ctx context.Context) []models.Tune {
	var tunes []models.Tune
	if !c.getJSON(ctx, c.baseURL+"/tunes", &tunes) {
		return nil
	}
	return tunes
}

// CreateTune submits a tune-creation request against a catalog entry.
// Reuse requests carry only the existing tune id and the callback; first
// time requests carry image bytes and aggregated characteristics.
func (c *Client) CreateTune(ctx context.Context, packID string, req models.TuneRequest) *models.TuneResult {
	var fields []formField
	if req.TuneID != "" {
		fields = append(fields,
			formField{key: "tune[tune_ids][]", value: req.TuneID},
			formField{key: "tune[prompt_attributes][callback]", value: req.Callback},
		)
	} else {
		fields = append(fields,
			formField{key: "tune[title]", value: req.Title},
			formField{key: "tune[name]", value: req.Name},
			formField{key: "tune[prompts_callback]", value: req.Callback},
		)
		for _, img := range req.Images {
			fields = append(fields, formField{key: "tune[images][]", file: img})
		}
		for _, key := range req.CharacteristicKeys {
			fields = append(fields, formField{
				key:   fmt.Sprintf("tune[characteristics][%s]", key),
				value: req.Characteristics[key],
			})
		}
	}

	var result models.TuneResult
	if !c.postForm(ctx, fmt.Sprintf("%s/p/%s/tunes", c.baseURL, packID), fields, &result) {
		return nil
	}
	return &result
}
