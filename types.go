package voicelog

import (
	"context"
	"net/http"
	"time"

	"voicelog/action"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ApplyPolicy is the planner's per-turn decision about committing actions.
type ApplyPolicy string

const (
	ApplyNone    ApplyPolicy = "none"    // just speak, no commit
	ApplyConfirm ApplyPolicy = "confirm" // ask before committing
	ApplyAuto    ApplyPolicy = "auto"    // commit right after the summary
)

// Decision is the planner's routing verdict for one turn.
type Decision struct {
	Intent         string          `json:"intent"`
	Apply          ApplyPolicy     `json:"apply"`
	ActionHandling action.Handling `json:"actionHandling"`
}

type TurnMessage struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// RecentEntry summarizes an already-persisted record so the planner can
// propose edits or deletes against it.
type RecentEntry struct {
	Kind    action.Kind `json:"kind"`
	EntryID string      `json:"entryId"`
	Title   string      `json:"title"`
	Date    string      `json:"date,omitempty"`
}

type PlanRequest struct {
	Text            string              `json:"text"`
	History         []TurnMessage       `json:"history,omitempty"`
	ExistingActions []action.WireAction `json:"existingActions,omitempty"`
	RecentEntries   []RecentEntry       `json:"recentEntries,omitempty"`
}

type PlanResponse struct {
	Message  string              `json:"message"`
	Decision Decision            `json:"decision"`
	Actions  []action.WireAction `json:"actions,omitempty"`
}

// Planner is the black-box proposal generator. Failure is an explicit error,
// never a silently empty response.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (PlanResponse, error)
}

// ConsentIntent is the tier-2 classifier's verdict on a short consent
// utterance.
type ConsentIntent string

const (
	ConsentConfirm        ConsentIntent = "confirm"
	ConsentCancel         ConsentIntent = "cancel"
	ConsentNewInstruction ConsentIntent = "new_instruction"
)

// IntentClassifier resolves short utterances the deterministic consent word
// lists could not.
type IntentClassifier interface {
	ClassifyConsent(ctx context.Context, text string) (ConsentIntent, error)
}

// FoodSource is the external food lookup: ranked search plus per-candidate
// detail. Detail returns (nil, nil) when the id has no usable record.
type FoodSource interface {
	Search(ctx context.Context, query string, limit int) ([]action.Candidate, error)
	Detail(ctx context.Context, externalID string) (*action.Food, error)
}

// Speaker plays synthesized speech. Cancel is idempotent: calling it when
// nothing is playing is a no-op, which barge-in relies on.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Cancel()
}

// SpeechEventType tags events coming off the capture stream.
type SpeechEventType string

const (
	SpeechStarted SpeechEventType = "speech_started"
	SpeechInterim SpeechEventType = "interim"
	SpeechFinal   SpeechEventType = "final"
	SpeechEnded   SpeechEventType = "ended"
)

type SpeechEvent struct {
	Type SpeechEventType
	Text string
	At   time.Time
}

// SpeechInput captures spoken input as a stream of transcript events.
type SpeechInput interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan SpeechEvent
}

// Notifier posts a human-readable message to an out-of-band channel
// (e.g. Slack) after a successful apply.
type Notifier interface {
	PostMessage(ctx context.Context, channel string, message string) error
}
