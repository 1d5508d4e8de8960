// Package notify posts apply receipts to an out-of-band channel so a phone
// or desktop can show what the voice session just saved.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"voicelog"
)

// SlackClient posts messages through an incoming webhook. It implements
// voicelog.Notifier.
type SlackClient struct {
	webhookURL string
	httpClient voicelog.HTTPClient
}

func NewSlackClient(webhookURL string, httpClient voicelog.HTTPClient) *SlackClient {
	return &SlackClient{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (c *SlackClient) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    ":memo: " + message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}
