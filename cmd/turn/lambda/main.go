package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"voicelog"
	"voicelog/action"
	"voicelog/apply"
	"voicelog/planner/bedrock"
	"voicelog/resolve"
	"voicelog/store"
	"voicelog/turn"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
)

// Params is one stateless turn: the client carries the conversation (pending
// actions, history, recent entries) between invocations. Confirm short-cuts
// planning and commits the provided actions instead.
type Params struct {
	Transcript    string                 `json:"transcript"`
	Confirm       bool                   `json:"confirm"`
	Actions       []action.WireAction    `json:"actions,omitempty"`
	History       []voicelog.TurnMessage `json:"history,omitempty"`
	RecentEntries []voicelog.RecentEntry `json:"recentEntries,omitempty"`
}

type Results struct {
	Message string               `json:"message"`
	Apply   voicelog.ApplyPolicy `json:"apply"`
	Actions []action.WireAction  `json:"actions"`
	Receipt string               `json:"receipt,omitempty"`
}

const resolveDrainTimeout = 8 * time.Second

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig voicelog.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		var resolverConfig voicelog.ResolverConfig
		if err := envdecode.Decode(&resolverConfig); err != nil {
			log.Fatalf("Failed to decode: %s", err)
		}

		// S3 config from env
		s3Bucket := os.Getenv("ENTRIES_S3_BUCKET")
		s3Prefix := os.Getenv("ENTRIES_S3_PREFIX")
		if s3Bucket == "" {
			return Results{}, fmt.Errorf("missing S3 config: ENTRIES_S3_BUCKET must be set")
		}

		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)

		stores := store.NewS3Stores(s3Client, s3Bucket, s3Prefix)
		slog.Info("SETUP: S3 entry stores initialized", "bucket", s3Bucket, "prefix", s3Prefix)

		engine := apply.NewEngine(stores)

		current := action.FromWire(params.Actions)

		if params.Confirm {
			result, err := engine.Apply(ctx, current)
			if err != nil {
				slog.Error("RESULT: Apply failed", "error", err)
				return Results{}, err
			}
			return Results{
				Message: result.Receipt.Text(),
				Apply:   voicelog.ApplyNone,
				Actions: action.ToWire(result.Actions),
				Receipt: result.Receipt.Text(),
			}, nil
		}

		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to create Bedrock client", "error", err)
			return Results{}, err
		}

		planner := bedrock.NewClient(brc, bedrock.ClientOpts{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})

		foods, err := resolve.NewFDCClient(resolve.FDCClientOpts{
			BaseEndpoint: resolverConfig.BaseEndpoint,
			APIKey:       resolverConfig.APIKey,
			HTTPClient:   http.DefaultClient,
		})
		if err != nil {
			slog.Error("SETUP: Failed to create food source", "error", err)
			return Results{}, err
		}

		pool := resolve.NewPool(resolve.NewResolver(foods, resolverConfig), resolverConfig.PoolWorkers)
		pool.Start(ctx)

		coordinator := turn.NewCoordinator(planner, pool, voicelog.NewStdoutTurnLogger())

		out, err := coordinator.Run(ctx, turn.Input{
			Turn:          len(params.History)/2 + 1,
			Transcript:    params.Transcript,
			History:       params.History,
			Actions:       current,
			RecentEntries: params.RecentEntries,
		})
		if err != nil {
			slog.Error("RESULT: Error handling turn", "error", err)
			return Results{}, err
		}

		actions := drainResolutions(ctx, pool, out)

		return Results{
			Message: out.Message,
			Apply:   out.Decision.Apply,
			Actions: action.ToWire(actions),
		}, nil
	}

	lambda.Start(fn)
}

// drainResolutions collects the food lookups the turn queued. One invocation
// is one generation, so every update is folded; a deadline keeps a slow food
// API from pinning the invocation.
func drainResolutions(ctx context.Context, pool *resolve.Pool, out turn.Output) []action.Action {
	actions := out.Actions
	remaining := len(out.Pending)
	if remaining == 0 {
		return actions
	}

	deadline := time.NewTimer(resolveDrainTimeout)
	defer deadline.Stop()

	for remaining > 0 {
		select {
		case u := <-pool.Updates():
			if u.Generation != out.Generation {
				continue
			}
			actions = resolve.ApplyMatch(actions, u.ActionID, u.ItemIndex, u.Match, u.Err)
			remaining--
		case <-deadline.C:
			slog.Warn("RESOLVER: Drain deadline hit, returning partial resolutions", "remaining", remaining)
			return actions
		case <-ctx.Done():
			return actions
		}
	}
	return actions
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}
