package bedrock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"voicelog"
	"voicelog/planner"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// 2k leaves room for a multi-action plan plus the spoken reply.
	defaultMaxTokens = 2048

	// Low temperature and top_p keep outputs deterministic, which is what a
	// JSON contract wants.
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type ClientOpts struct {
	ModelID      string
	MaxTokens    int32
	Temperature  float32
	TopP         float32
	HistoryLimit int
}

// Client drives the planning contract through the Bedrock Converse API. It
// implements both voicelog.Planner and voicelog.IntentClassifier.
type Client struct {
	brc  bedrockRuntimeClient
	opts ClientOpts
}

func NewClient(brc bedrockRuntimeClient, opts ClientOpts) *Client {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 12
	}
	return &Client{brc: brc, opts: opts}
}

func (c *Client) Plan(ctx context.Context, req voicelog.PlanRequest) (voicelog.PlanResponse, error) {
	slog.Info("PLANNER: Plan invoked", "text_len", len(req.Text), "history_len", len(req.History), "existing_actions", len(req.ExistingActions))

	if strings.TrimSpace(req.Text) == "" {
		return voicelog.PlanResponse{}, fmt.Errorf("empty utterance")
	}

	msgs := buildMessages(req, c.opts.HistoryLimit)
	content, err := c.converse(ctx, planner.SystemPrompt(), msgs)
	if err != nil {
		return voicelog.PlanResponse{}, err
	}

	out, err := planner.ParsePlanResponse(content)
	if err != nil {
		slog.Warn("PLANNER: Malformed model output", "error", err)
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

func (c *Client) ClassifyConsent(ctx context.Context, text string) (voicelog.ConsentIntent, error) {
	msgs := []types.Message{{
		Role:    types.ConversationRoleUser,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	}}

	content, err := c.converse(ctx, planner.ConsentPrompt, msgs)
	if err != nil {
		return "", err
	}

	verdict := planner.ParseConsentVerdict(content)
	slog.Info("PLANNER: Consent classified", "verdict", verdict)
	return verdict, nil
}

func (c *Client) converse(ctx context.Context, system string, msgs []types.Message) (string, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId:  &c.opts.ModelID,
		System:   []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}},
		Messages: msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("PLANNER: Bedrock invoke failed", "error", err)
		return "", err
	}

	slog.Info("PLANNER: Bedrock invoke succeeded",
		"stop_reason", out.StopReason,
		"latency_ms", aws.ToInt64(out.Metrics.LatencyMs),
		"input_tokens", aws.ToInt32(out.Usage.InputTokens),
		"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
	)

	switch out.StopReason {
	case "end_turn", "stop_sequence", "":
		return textFromOutput(out), nil
	case "max_tokens":
		return "", fmt.Errorf("model hit MaxTokens limit; consider raising MaxTokens")
	case "safety", "content_filtered":
		return "", fmt.Errorf("model response blocked by Bedrock safety filters")
	default:
		return textFromOutput(out), nil
	}
}

func buildMessages(req voicelog.PlanRequest, historyLimit int) []types.Message {
	var msgs []types.Message

	history := req.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, m := range history {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		msgs = append(msgs, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Text}},
		})
	}

	// Converse requires strictly alternating roles starting with user, so the
	// context block rides inside the final user message.
	final := req.Text
	if ctxBlock := planner.ContextBlock(req); ctxBlock != "" {
		final = ctxBlock + "\n" + req.Text
	}
	msgs = append(msgs, types.Message{
		Role:    types.ConversationRoleUser,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: final}},
	})
	return msgs
}

// textFromOutput joins the assistant's text blocks, preferring a lone JSON
// object when one is present.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil || len(msg.Value.Content) == 0 {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}
