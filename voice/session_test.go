package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"voicelog"
	"voicelog/action"
	"voicelog/apply"
	"voicelog/resolve"
	"voicelog/store"
	"voicelog/turn"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	cancel int
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSpeaker) Cancel() {
	f.mu.Lock()
	f.cancel++
	f.mu.Unlock()
}

func (f *fakeSpeaker) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakeInput struct {
	events chan voicelog.SpeechEvent
}

func newFakeInput() *fakeInput {
	return &fakeInput{events: make(chan voicelog.SpeechEvent, 16)}
}

func (f *fakeInput) Start(ctx context.Context) error     { return nil }
func (f *fakeInput) Stop() error                         { return nil }
func (f *fakeInput) Events() <-chan voicelog.SpeechEvent { return f.events }

func (f *fakeInput) say(t voicelog.SpeechEventType, s string) {
	f.events <- voicelog.SpeechEvent{Type: t, Text: s, At: time.Now()}
}

type fakeCoordinator struct {
	out  turn.Output
	err  error
	runs chan turn.Input
}

func (f *fakeCoordinator) Run(ctx context.Context, in turn.Input) (turn.Output, error) {
	f.runs <- in
	return f.out, f.err
}

type fakeEngine struct {
	inner   *apply.Engine
	applied chan struct{}
}

func (f *fakeEngine) Apply(ctx context.Context, actions []action.Action) (apply.Result, error) {
	res, err := f.inner.Apply(ctx, actions)
	f.applied <- struct{}{}
	return res, err
}

func symptomAction(id string) action.Action {
	return action.Action{
		ID: id, Kind: action.KindSymptom, Operation: action.OpCreate,
		Selected: true, Status: action.StatusReady, Title: "Log headache",
		Symptom: &action.SymptomDetails{SymptomName: "headache", Severity: 4},
	}
}

func testConfig() voicelog.SessionConfig {
	return voicelog.SessionConfig{
		SilenceThresholdMS: 20,
		ConsentMaxWords:    6,
		HandsFree:          true,
		ResolveWaitMS:      50,
		ResolveWaitPolicy:  "selected",
	}
}

func TestSession_FullConsentedTurn(t *testing.T) {
	speaker := &fakeSpeaker{}
	input := newFakeInput()
	stores := store.NewMemStores()
	engine := &fakeEngine{inner: apply.NewEngine(stores), applied: make(chan struct{}, 1)}
	coordinator := &fakeCoordinator{
		runs: make(chan turn.Input, 4),
		out: turn.Output{
			Message:  "One headache, severity four. Log it?",
			Decision: voicelog.Decision{Apply: voicelog.ApplyConfirm, ActionHandling: action.HandlingReplace},
			Actions:  []action.Action{symptomAction("a1")},
		},
	}

	sess, err := NewSession(SessionOpts{
		Speaker:     speaker,
		Input:       input,
		Coordinator: coordinator,
		Engine:      engine,
		Config:      testConfig(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	// dictate and go silent
	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "I have a headache, severity four")

	// wait for the turn to reach the coordinator
	select {
	case in := <-coordinator.runs:
		assert.Equal(t, "I have a headache, severity four", in.Transcript)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator never ran")
	}

	// consent; speech_started first covers both the barge-in and the
	// already-listening case
	time.Sleep(50 * time.Millisecond)
	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "yes")

	select {
	case <-engine.applied:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never applied")
	}

	time.Sleep(50 * time.Millisecond)
	close(input.events)
	require.NoError(t, <-done)

	// the symptom landed in the store
	symptoms := stores.Symptoms.(*store.MemCollection[store.SymptomEntry])
	assert.Equal(t, 1, symptoms.Len())

	// prompt then receipt were spoken
	spoken := speaker.all()
	require.GreaterOrEqual(t, len(spoken), 2)
	assert.Equal(t, "One headache, severity four. Log it?", spoken[0])
	assert.Contains(t, spoken[len(spoken)-1], "headache")

	// session state reflects the commit
	require.Len(t, sess.Actions(), 1)
	assert.Equal(t, action.StatusApplied, sess.Actions()[0].Status)
}

func TestSession_CancelLeavesStoreUntouched(t *testing.T) {
	speaker := &fakeSpeaker{}
	input := newFakeInput()
	stores := store.NewMemStores()
	engine := &fakeEngine{inner: apply.NewEngine(stores), applied: make(chan struct{}, 1)}
	coordinator := &fakeCoordinator{
		runs: make(chan turn.Input, 4),
		out: turn.Output{
			Message:  "Log it?",
			Decision: voicelog.Decision{Apply: voicelog.ApplyConfirm, ActionHandling: action.HandlingReplace},
			Actions:  []action.Action{symptomAction("a1")},
		},
	}

	sess, err := NewSession(SessionOpts{
		Speaker: speaker, Input: input, Coordinator: coordinator, Engine: engine,
		Config: testConfig(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "I have a headache")
	<-coordinator.runs

	time.Sleep(50 * time.Millisecond)
	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "no")

	time.Sleep(100 * time.Millisecond)
	close(input.events)
	require.NoError(t, <-done)

	symptoms := stores.Symptoms.(*store.MemCollection[store.SymptomEntry])
	assert.Zero(t, symptoms.Len(), "cancel must not commit")
	assert.Empty(t, sess.Actions(), "pending proposals dropped")
}

func TestSession_ApplyWaitsOutUnresolvedAndGivesUp(t *testing.T) {
	speaker := &fakeSpeaker{}
	input := newFakeInput()
	stores := store.NewMemStores()
	engine := &fakeEngine{inner: apply.NewEngine(stores), applied: make(chan struct{}, 1)}

	unresolvedMeal := action.Action{
		ID: "m1", Kind: action.KindMeal, Operation: action.OpCreate,
		Selected: true, Status: action.StatusReady, Title: "Log lunch",
		Meal: &action.MealDetails{Items: []action.MealItem{{Label: "mystery stew", FoodQuery: "mystery stew", IsResolving: true}}},
	}
	coordinator := &fakeCoordinator{
		runs: make(chan turn.Input, 4),
		out: turn.Output{
			Message:  "Lunch. Log it?",
			Decision: voicelog.Decision{Apply: voicelog.ApplyConfirm, ActionHandling: action.HandlingReplace},
			Actions:  []action.Action{unresolvedMeal},
		},
	}

	sess, err := NewSession(SessionOpts{
		Speaker: speaker, Input: input, Coordinator: coordinator, Engine: engine,
		Config: testConfig(), // 50ms resolve wait
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "I had some mystery stew")
	<-coordinator.runs

	time.Sleep(50 * time.Millisecond)
	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "yes")

	// the lookup never completes; the deadline fallback speaks instead of
	// handing a half-resolved meal to the engine
	time.Sleep(200 * time.Millisecond)
	close(input.events)
	require.NoError(t, <-done)

	select {
	case <-engine.applied:
		t.Fatal("engine must not run with unresolved items")
	default:
	}

	spoken := speaker.all()
	require.NotEmpty(t, spoken)
	assert.Contains(t, spoken[len(spoken)-1], "still looking up")
}

// instantSource resolves immediately and signals each finished detail fetch.
type instantSource struct {
	detailDone chan struct{}
}

func (s *instantSource) Search(ctx context.Context, query string, limit int) ([]action.Candidate, error) {
	return []action.Candidate{{ExternalID: "42", Description: "Coffee, brewed", DataType: "Foundation", RankScore: 9}}, nil
}

func (s *instantSource) Detail(ctx context.Context, id string) (*action.Food, error) {
	defer func() { s.detailDone <- struct{}{} }()
	return &action.Food{ExternalID: id, Description: "Coffee, brewed", ServingGrams: 240, Calories: 2}, nil
}

// dispatchingCoordinator queues lookups on a real pool like the production
// coordinator does, then holds its plan until the lookup has already
// finished, so the resolution reaches the session before the plan does.
type dispatchingCoordinator struct {
	pool       *resolve.Pool
	out        turn.Output
	detailDone chan struct{}
	runs       chan turn.Input
}

func (f *dispatchingCoordinator) Run(ctx context.Context, in turn.Input) (turn.Output, error) {
	out := f.out
	pending := action.UnresolvedMealItems(out.Actions)
	out.Actions = f.pool.MarkResolving(out.Actions, pending)
	out.Generation = f.pool.Dispatch(pending)
	out.Pending = pending

	select {
	case <-f.detailDone:
		// give the worker a beat to hand the result off
		time.Sleep(20 * time.Millisecond)
	case <-time.After(2 * time.Second):
	}

	f.runs <- in
	return out, nil
}

func TestSession_ResolutionFinishingBeforePlanIsKept(t *testing.T) {
	speaker := &fakeSpeaker{}
	input := newFakeInput()
	stores := store.NewMemStores()
	engine := &fakeEngine{inner: apply.NewEngine(stores), applied: make(chan struct{}, 1)}

	source := &instantSource{detailDone: make(chan struct{}, 4)}
	pool := resolve.NewPool(resolve.NewResolver(source, voicelog.ResolverConfig{}), 1)

	mealAction := action.Action{
		ID: "m1", Kind: action.KindMeal, Operation: action.OpCreate,
		Selected: true, Status: action.StatusReady, Title: "Log coffee",
		Meal: &action.MealDetails{Items: []action.MealItem{{Label: "coffee", FoodQuery: "black coffee", GramsConsumed: 240}}},
	}
	coordinator := &dispatchingCoordinator{
		pool:       pool,
		detailDone: source.detailDone,
		runs:       make(chan turn.Input, 4),
		out: turn.Output{
			Message:  "One coffee. Log it?",
			Decision: voicelog.Decision{Apply: voicelog.ApplyConfirm, ActionHandling: action.HandlingReplace},
			Actions:  []action.Action{mealAction},
		},
	}

	sess, err := NewSession(SessionOpts{
		Speaker: speaker, Input: input, Coordinator: coordinator, Engine: engine,
		Pool:   pool,
		Config: testConfig(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "I had a black coffee")
	select {
	case <-coordinator.runs:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator never ran")
	}

	time.Sleep(50 * time.Millisecond)
	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "yes")

	// the early resolution must be folded in, not dropped, so the commit
	// runs instead of timing out on a lookup that already finished
	select {
	case <-engine.applied:
	case <-time.After(2 * time.Second):
		t.Fatal("engine never applied; early resolution was lost")
	}

	time.Sleep(50 * time.Millisecond)
	close(input.events)
	require.NoError(t, <-done)

	meals := stores.Meals.(*store.MemCollection[store.MealEntry])
	assert.Equal(t, 1, meals.Len())

	require.Len(t, sess.Actions(), 1)
	it := sess.Actions()[0].Meal.Items[0]
	require.NotNil(t, it.MatchedFood, "resolution that beat the plan back must still land")
	assert.Equal(t, "42", it.MatchedFood.ExternalID)
	assert.Empty(t, it.ResolveError)

	for _, line := range speaker.all() {
		assert.NotContains(t, line, "still looking up")
	}
}

func TestSession_PlannerFailureSpokenAndRecoverable(t *testing.T) {
	speaker := &fakeSpeaker{}
	input := newFakeInput()
	engine := &fakeEngine{inner: apply.NewEngine(store.NewMemStores()), applied: make(chan struct{}, 1)}
	coordinator := &fakeCoordinator{runs: make(chan turn.Input, 4), err: assert.AnError}

	sess, err := NewSession(SessionOpts{
		Speaker: speaker, Input: input, Coordinator: coordinator, Engine: engine,
		Config: testConfig(),
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	input.say(voicelog.SpeechStarted, "")
	input.say(voicelog.SpeechFinal, "log my lunch")
	<-coordinator.runs

	time.Sleep(100 * time.Millisecond)
	close(input.events)
	require.NoError(t, <-done)

	spoken := speaker.all()
	require.NotEmpty(t, spoken)
	assert.Contains(t, spoken[0], "went wrong")
	assert.Empty(t, sess.Actions())
}

func TestNewSession_RequiresCollaborators(t *testing.T) {
	_, err := NewSession(SessionOpts{})
	require.Error(t, err)
}
