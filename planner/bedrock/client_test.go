package bedrock

import (
	"context"
	"fmt"
	"testing"

	"voicelog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBedrock struct {
	output    *bedrockruntime.ConverseOutput
	err       error
	lastInput *bedrockruntime.ConverseInput
}

func (m *mockBedrock) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.lastInput = in
	return m.output, m.err
}

func converseOutput(stopReason types.StopReason, texts ...string) *bedrockruntime.ConverseOutput {
	var blocks []types.ContentBlock
	for _, t := range texts {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: t})
	}
	return &bedrockruntime.ConverseOutput{
		Output:     &types.ConverseOutputMemberMessage{Value: types.Message{Content: blocks}},
		StopReason: stopReason,
		Metrics:    &types.ConverseMetrics{LatencyMs: aws.Int64(42)},
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(100), OutputTokens: aws.Int32(50)},
	}
}

func TestClient_Plan(t *testing.T) {
	planJSON := `{"message":"Logged?","decision":{"apply":"confirm","actionHandling":"replace"},"actions":[{"kind":"supplement","title":"Log magnesium","name":"magnesium","dosage":200,"unit":"mg"}]}`

	mock := &mockBedrock{output: converseOutput(types.StopReasonEndTurn, planJSON)}
	client := NewClient(mock, ClientOpts{})

	got, err := client.Plan(context.Background(), voicelog.PlanRequest{
		Text: "I took 200mg of magnesium",
		History: []voicelog.TurnMessage{
			{Role: "user", Text: "hi"},
			{Role: "assistant", Text: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, voicelog.ApplyConfirm, got.Decision.Apply)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, "magnesium", got.Actions[0].Name)

	// history plus the utterance, system carried out-of-band
	require.NotNil(t, mock.lastInput)
	assert.Len(t, mock.lastInput.Messages, 3)
	assert.Len(t, mock.lastInput.System, 1)
	assert.Equal(t, defaultModelID, *mock.lastInput.ModelId)
}

func TestClient_Plan_Errors(t *testing.T) {
	tests := []struct {
		name        string
		output      *bedrockruntime.ConverseOutput
		err         error
		text        string
		errContains string
	}{
		{
			name:        "empty utterance",
			output:      converseOutput(types.StopReasonEndTurn, "{}"),
			text:        "  ",
			errContains: "empty utterance",
		},
		{
			name:        "invoke failure",
			err:         fmt.Errorf("throttled"),
			text:        "log lunch",
			errContains: "throttled",
		},
		{
			name:        "max tokens",
			output:      converseOutput(types.StopReasonMaxTokens),
			text:        "log lunch",
			errContains: "MaxTokens",
		},
		{
			name:        "prose output",
			output:      converseOutput(types.StopReasonEndTurn, "sure thing, all logged"),
			text:        "log lunch",
			errContains: "decode planner output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&mockBedrock{output: tt.output, err: tt.err}, ClientOpts{})
			_, err := client.Plan(context.Background(), voicelog.PlanRequest{Text: tt.text})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestClient_Plan_PrefersJSONBlock(t *testing.T) {
	mock := &mockBedrock{output: converseOutput(types.StopReasonEndTurn,
		"Here is the plan:",
		`{"message":"ok","decision":{"apply":"none","actionHandling":"keep"}}`,
	)}
	client := NewClient(mock, ClientOpts{})

	got, err := client.Plan(context.Background(), voicelog.PlanRequest{Text: "what did I eat today?"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Message)
}

func TestClient_ClassifyConsent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    voicelog.ConsentIntent
	}{
		{name: "confirm", content: "confirm", want: voicelog.ConsentConfirm},
		{name: "cancel", content: "cancel", want: voicelog.ConsentCancel},
		{name: "anything else", content: "hmm hard to say", want: voicelog.ConsentNewInstruction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockBedrock{output: converseOutput(types.StopReasonEndTurn, tt.content)}
			client := NewClient(mock, ClientOpts{})
			got, err := client.ClassifyConsent(context.Background(), "uh maybe")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(&mockBedrock{}, ClientOpts{})
	assert.Equal(t, defaultModelID, client.opts.ModelID)
	assert.Equal(t, int32(defaultMaxTokens), client.opts.MaxTokens)
	assert.Equal(t, 12, client.opts.HistoryLimit)
}
