package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"voicelog"
	"voicelog/planner"
)

// Client talks to a local Ollama instance over /api/chat. It implements both
// voicelog.Planner and voicelog.IntentClassifier.
type Client struct {
	endpoint     string
	model        string
	historyLimit int
	httpClient   voicelog.HTTPClient
	options      options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	HistoryLimit int
	HTTPClient   voicelog.HTTPClient
}

func NewClient(opts ClientOpts) (*Client, error) {
	if opts.HTTPClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if opts.ModelID == "" {
		return nil, fmt.Errorf("model id is required")
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = 12
	}

	return &Client{
		model:        opts.ModelID,
		historyLimit: limit,
		httpClient:   opts.HTTPClient,
		endpoint:     opts.BaseEndpoint + "/api/chat",
		options: options{
			Temperature:   0.2,
			TopP:          0.9,
			RepeatPenalty: 1.05,
			NumCtx:        16384,
		},
	}, nil
}

// Plan sends one turn of conversation to the model and decodes its structured
// reply. A response that cannot be decoded is an error, never an empty plan.
func (c *Client) Plan(ctx context.Context, req voicelog.PlanRequest) (voicelog.PlanResponse, error) {
	slog.Info("PLANNER: Plan invoked", "text_len", len(req.Text), "history_len", len(req.History), "existing_actions", len(req.ExistingActions))

	msgs, err := buildMessages(req, c.historyLimit)
	if err != nil {
		return voicelog.PlanResponse{}, err
	}

	content, err := c.chat(ctx, msgs)
	if err != nil {
		return voicelog.PlanResponse{}, err
	}

	out, err := planner.ParsePlanResponse(content)
	if err != nil {
		slog.Warn("PLANNER: Malformed model output", "error", err, "content_preview", preview(content))
		return voicelog.PlanResponse{}, fmt.Errorf("failed to decode planner output: %w", err)
	}

	slog.Info("PLANNER: Plan decoded",
		"intent", out.Decision.Intent,
		"apply", out.Decision.Apply,
		"handling", out.Decision.ActionHandling,
		"actions", len(out.Actions),
	)
	return out, nil
}

// ClassifyConsent resolves a short utterance that the deterministic word
// lists could not. The model returns a single word verdict.
func (c *Client) ClassifyConsent(ctx context.Context, text string) (voicelog.ConsentIntent, error) {
	msgs := []Message{
		{Role: "system", Content: planner.ConsentPrompt},
		{Role: "user", Content: text},
	}

	content, err := c.chat(ctx, msgs)
	if err != nil {
		return "", err
	}

	verdict := planner.ParseConsentVerdict(content)
	slog.Info("PLANNER: Consent classified", "verdict", verdict)
	return verdict, nil
}

func (c *Client) chat(ctx context.Context, msgs []Message) (string, error) {
	reqBody := wireRequest{
		Model:    c.model,
		Messages: msgs,
		Stream:   false,
		Format:   "json",
		Options:  c.options,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PLANNER: %s: %s", resp.Status, string(body))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("PLANNER: failed to decode response envelope: %w", err)
	}
	return wr.Message.Content, nil
}

func preview(s string) string {
	if len(s) > 100 {
		return s[:97] + "..."
	}
	return s
}
