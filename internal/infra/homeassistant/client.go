// Package homeassistant mirrors the recording indicator into a Home Assistant
// entity and sends notifications through a Home Assistant notify service.
package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callrec/internal/application"
	"callrec/internal/infra"
)

const DefaultEntityID = "binary_sensor.callrec_recording"

type Client struct {
	baseURL       string
	token         string
	entityID      string
	notifyService string
	httpClient    *http.Client
	retry         infra.RetryConfig
}

type Options struct {
	EntityID string
	// NotifyService is the notify service name, e.g. "mobile_app_phone".
	NotifyService string
}

func NewClient(baseURL, token string, opts Options) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if opts.EntityID == "" {
		opts.EntityID = DefaultEntityID
	}

	return &Client{
		baseURL:       baseURL,
		token:         token,
		entityID:      opts.EntityID,
		notifyService: strings.TrimPrefix(opts.NotifyService, "notify."),
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		retry:         infra.DefaultRetryConfig(),
	}
}

// entityState is the body of POST /api/states/<entity_id>.
type entityState struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Show sets the recording entity to "on" with the session as attributes.
func (c *Client) Show(ctx context.Context, info application.SessionInfo) error {
	err := c.setState(ctx, entityState{
		State: "on",
		Attributes: map[string]any{
			"friendly_name": "Call recording",
			"device_class":  "running",
			"session_id":    info.ID,
			"artifact":      info.Artifact,
			"started_at":    info.StartedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("showing recording indicator: %w", err)
	}
	return nil
}

func (c *Client) Dismiss(ctx context.Context, sessionID string) error {
	err := c.setState(ctx, entityState{
		State: "off",
		Attributes: map[string]any{
			"friendly_name": "Call recording",
			"device_class":  "running",
			"session_id":    sessionID,
		},
	})
	if err != nil {
		return fmt.Errorf("dismissing recording indicator: %w", err)
	}
	return nil
}

// Notify calls notify.<service>. It is a no-op without a configured service.
func (c *Client) Notify(ctx context.Context, message string) error {
	if c.notifyService == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"title":   "Call Recorder",
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/api/services/notify/"+c.notifyService, body); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	return nil
}

func (c *Client) setState(ctx context.Context, state entityState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	_, err = c.doRequest(ctx, http.MethodPost, "/api/states/"+c.entityID, body)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = strings.NewReader(string(body))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return infra.Permanent(fmt.Errorf("unauthorized: check your Home Assistant token"))
		}

		if infra.IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("home assistant API error %d (retryable): %s", resp.StatusCode, string(respBody))
		}

		if resp.StatusCode >= 400 {
			return infra.Permanent(fmt.Errorf("home assistant API error %d: %s", resp.StatusCode, string(respBody)))
		}

		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}
