package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voicelog"
	"voicelog/action"
	"voicelog/apply"
	"voicelog/resolve"
	"voicelog/turn"
)

// turnRunner is the slice of the coordinator the session needs.
type turnRunner interface {
	Run(ctx context.Context, in turn.Input) (turn.Output, error)
}

// applyRunner is the slice of the apply engine the session needs.
type applyRunner interface {
	Apply(ctx context.Context, actions []action.Action) (apply.Result, error)
}

type SessionOpts struct {
	Speaker     voicelog.Speaker
	Input       voicelog.SpeechInput
	Coordinator turnRunner
	Engine      applyRunner
	Classifier  voicelog.IntentClassifier
	Pool        *resolve.Pool
	Notifier    voicelog.Notifier
	Channel     string
	Config      voicelog.SessionConfig
}

// sessionEvent is what async work posts back to the run loop: an optional
// state mutation (executed on the loop goroutine, which owns all state) and
// an optional machine event dispatched after it.
type sessionEvent struct {
	mutate func()
	ev     Event
	has    bool
}

// Session is the impure shell around the Machine. It owns the conversation
// state (pending actions, history, recent entries); every mutation runs on
// the Run loop goroutine, so goroutines spawned for speech, planning,
// classification, and applying report back through the internal channel
// instead of touching state themselves.
type Session struct {
	machine     *Machine
	speaker     voicelog.Speaker
	input       voicelog.SpeechInput
	coordinator turnRunner
	engine      applyRunner
	classifier  voicelog.IntentClassifier
	pool        *resolve.Pool
	notifier    voicelog.Notifier
	channel     string
	cfg         voicelog.SessionConfig

	actions    []action.Action
	history    []voicelog.TurnMessage
	recent     []voicelog.RecentEntry
	turnCount  int
	generation uint64
	ahead      []resolve.Update // resolutions that beat their turn's plan back

	applyArmed bool // waiting for lookups before committing

	events chan sessionEvent
}

func NewSession(opts SessionOpts) (*Session, error) {
	if opts.Speaker == nil || opts.Input == nil || opts.Coordinator == nil || opts.Engine == nil {
		return nil, fmt.Errorf("speaker, input, coordinator, and engine are required")
	}
	cfg := opts.Config
	if cfg.SilenceThresholdMS <= 0 {
		cfg.SilenceThresholdMS = 1200
	}
	if cfg.ResolveWaitMS <= 0 {
		cfg.ResolveWaitMS = 4000
	}
	if cfg.ResolveWaitPolicy == "" {
		cfg.ResolveWaitPolicy = "selected"
	}
	return &Session{
		machine:     NewMachine(cfg),
		speaker:     opts.Speaker,
		input:       opts.Input,
		coordinator: opts.Coordinator,
		engine:      opts.Engine,
		classifier:  opts.Classifier,
		pool:        opts.Pool,
		notifier:    opts.Notifier,
		channel:     opts.Channel,
		cfg:         cfg,
		events:      make(chan sessionEvent, 16),
	}, nil
}

// Actions returns the pending action list; for inspection after Run exits.
func (s *Session) Actions() []action.Action { return s.actions }

// Phase reports the machine phase; for inspection after Run exits.
func (s *Session) Phase() Phase { return s.machine.Phase() }

// Run drives the session until ctx is cancelled or the capture stream closes.
func (s *Session) Run(ctx context.Context) error {
	if err := s.input.Start(ctx); err != nil {
		return fmt.Errorf("failed to start speech input: %w", err)
	}
	defer s.input.Stop()

	if s.pool != nil {
		s.pool.Start(ctx)
	}

	silence := newStoppedTimer()
	applyWait := newStoppedTimer()
	defer silence.kill()
	defer applyWait.kill()

	var updates <-chan resolve.Update
	if s.pool != nil {
		updates = s.pool.Updates()
	}

	s.dispatch(ctx, Event{Type: EvWake}, applyWait)

	for {
		select {
		case <-ctx.Done():
			s.speaker.Cancel()
			return ctx.Err()

		case ev, ok := <-s.input.Events():
			if !ok {
				slog.Info("SESSION: Capture stream closed")
				return nil
			}
			switch ev.Type {
			case voicelog.SpeechStarted:
				silence.stop()
				s.dispatch(ctx, Event{Type: EvSpeechStarted}, applyWait)
			case voicelog.SpeechInterim:
				silence.stop()
				s.dispatch(ctx, Event{Type: EvInterim, Text: ev.Text}, applyWait)
			case voicelog.SpeechFinal:
				s.dispatch(ctx, Event{Type: EvFinal, Text: ev.Text}, applyWait)
				if s.machine.Phase() == PhaseDictating {
					silence.arm(time.Duration(s.cfg.SilenceThresholdMS) * time.Millisecond)
				}
			case voicelog.SpeechEnded:
				if s.machine.Phase() == PhaseDictating {
					silence.arm(time.Duration(s.cfg.SilenceThresholdMS) * time.Millisecond)
				}
			}

		case <-silence.C():
			silence.fired()
			s.dispatch(ctx, Event{Type: EvSilence}, applyWait)

		case u := <-updates:
			s.foldUpdate(u)
			s.maybeStartApply(ctx, applyWait, false)

		case <-applyWait.C():
			applyWait.fired()
			s.maybeStartApply(ctx, applyWait, true)

		case se := <-s.events:
			if se.mutate != nil {
				se.mutate()
				s.replayAhead()
				s.maybeStartApply(ctx, applyWait, false)
			}
			if se.has {
				s.dispatch(ctx, se.ev, applyWait)
			}
		}
	}
}

// dispatch feeds one event through the machine and executes the effects.
func (s *Session) dispatch(ctx context.Context, ev Event, applyWait *loopTimer) {
	for _, fx := range s.machine.Handle(ev) {
		s.execute(ctx, fx, applyWait)
	}
}

func (s *Session) execute(ctx context.Context, fx Effect, applyWait *loopTimer) {
	switch fx.Type {
	case FxCancelSpeech:
		s.speaker.Cancel()

	case FxSpeak:
		go s.speak(ctx, fx.Text)

	case FxSubmit:
		snapshot := turn.Input{
			Turn:          s.turnCount + 1,
			Transcript:    fx.Text,
			History:       append([]voicelog.TurnMessage(nil), s.history...),
			Actions:       cloneActions(s.actions),
			RecentEntries: append([]voicelog.RecentEntry(nil), s.recent...),
		}
		s.turnCount++
		go s.runTurn(ctx, snapshot)

	case FxClassify:
		go s.classify(ctx, fx.Text)

	case FxApply:
		s.applyArmed = true
		if s.hasUnresolved() {
			applyWait.arm(time.Duration(s.cfg.ResolveWaitMS) * time.Millisecond)
			slog.Info("SESSION: Waiting for food lookups before committing")
			return
		}
		s.maybeStartApply(ctx, applyWait, false)

	case FxClearPending:
		s.actions = action.Reconcile(s.actions, nil, action.HandlingClear)
		slog.Info("SESSION: Cleared pending actions", "remaining", len(s.actions))
	}
}

// maybeStartApply commits once an armed apply has nothing left to wait for.
// When the deadline fires with lookups still pending, the commit is abandoned
// with a spoken fallback rather than failing in the engine.
func (s *Session) maybeStartApply(ctx context.Context, applyWait *loopTimer, deadline bool) {
	if !s.applyArmed {
		return
	}
	if s.hasUnresolved() {
		if !deadline {
			return
		}
		s.applyArmed = false
		slog.Warn("SESSION: Food lookups still pending at apply deadline")
		s.dispatch(ctx, Event{Type: EvApplyFailed, Text: "I'm still looking up some of those foods. Give me a second and try again."}, applyWait)
		return
	}

	s.applyArmed = false
	applyWait.stop()
	snapshot := cloneActions(s.actions)
	go s.runApply(ctx, snapshot)
}

func (s *Session) speak(ctx context.Context, text string) {
	if err := s.speaker.Speak(ctx, text); err != nil {
		slog.Warn("SESSION: Speak failed", "error", err)
	}
	s.post(nil, Event{Type: EvSpeakDone})
}

func (s *Session) runTurn(ctx context.Context, in turn.Input) {
	out, err := s.coordinator.Run(ctx, in)
	if err != nil {
		slog.Error("SESSION: Turn failed", "error", err)
		s.post(nil, Event{Type: EvPlanFailed, Text: "Sorry, something went wrong. Try that again."})
		return
	}

	s.post(func() {
		s.actions = out.Actions
		if out.Generation > 0 {
			s.generation = out.Generation
		}
		s.history = append(s.history,
			voicelog.TurnMessage{Role: "user", Text: in.Transcript},
			voicelog.TurnMessage{Role: "assistant", Text: out.Message},
		)
	}, Event{
		Type:        EvPlanDone,
		Text:        out.Message,
		WantConsent: out.Decision.Apply == voicelog.ApplyConfirm && hasRunnable(out.Actions),
		AutoApply:   out.Decision.Apply == voicelog.ApplyAuto && hasRunnable(out.Actions),
	})
}

func (s *Session) classify(ctx context.Context, text string) {
	verdict := voicelog.ConsentNewInstruction
	if s.classifier != nil {
		v, err := s.classifier.ClassifyConsent(ctx, text)
		if err != nil {
			slog.Warn("SESSION: Consent classification failed, treating as new instruction", "error", err)
		} else {
			verdict = v
		}
	}
	s.post(nil, Event{Type: EvConsentVerdict, Verdict: verdict})
}

func (s *Session) runApply(ctx context.Context, snapshot []action.Action) {
	res, err := s.engine.Apply(ctx, snapshot)
	if err != nil {
		slog.Error("SESSION: Apply failed", "error", err)
		s.post(func() { s.mergeApplied(res) }, Event{Type: EvApplyFailed, Text: "I couldn't save that. " + spokenApplyError(err)})
		return
	}

	if s.notifier != nil && s.channel != "" && !res.Receipt.Empty() {
		go func(text string) {
			if nerr := s.notifier.PostMessage(context.Background(), s.channel, text); nerr != nil {
				slog.Warn("SESSION: Receipt notification failed", "error", nerr)
			}
		}(res.Receipt.Text())
	}

	text := res.Receipt.Text()
	if text == "" {
		text = "Nothing to save."
	}
	s.post(func() {
		s.mergeApplied(res)
		s.rememberApplied(res)
	}, Event{Type: EvApplyDone, Text: text})
}

// post hands a mutation and a follow-up event back to the run loop.
func (s *Session) post(mutate func(), ev Event) {
	s.events <- sessionEvent{mutate: mutate, ev: ev, has: true}
}

// mergeApplied folds engine results back in by action id; the list may have
// changed while the commit ran.
func (s *Session) mergeApplied(res apply.Result) {
	for _, applied := range res.Actions {
		id := applied.ID
		s.actions, _ = action.UpdateByID(s.actions, id, func(a action.Action) action.Action {
			a.Status = applied.Status
			a.Error = applied.Error
			if applied.EntryID != "" {
				a.EntryID = applied.EntryID
			}
			return a
		})
	}
}

func (s *Session) hasUnresolved() bool {
	for _, a := range s.actions {
		if s.cfg.ResolveWaitPolicy == "selected" && (!a.Selected || a.Status == action.StatusApplied) {
			continue
		}
		if a.Kind != action.KindMeal || a.Meal == nil || a.Status == action.StatusApplied {
			continue
		}
		for _, it := range a.Meal.Items {
			if it.MatchedFood == nil && it.ResolveError == "" {
				return true
			}
		}
	}
	return false
}

// foldUpdate applies one finished resolution. The pool dispatches inside
// coordinator.Run, before the plan-done mutation advances s.generation, so a
// fast lookup can legitimately arrive addressed to a generation the loop has
// not seen yet; those are held and replayed once the plan lands. Only
// generations behind the current one are stale.
func (s *Session) foldUpdate(u resolve.Update) {
	switch {
	case u.Generation < s.generation:
		slog.Debug("SESSION: Dropping stale resolution", "generation", u.Generation, "current", s.generation)
	case u.Generation > s.generation:
		s.ahead = append(s.ahead, u)
	default:
		s.actions = resolve.ApplyMatch(s.actions, u.ActionID, u.ItemIndex, u.Match, u.Err)
	}
}

// replayAhead re-folds held resolutions after a mutation may have advanced
// the generation.
func (s *Session) replayAhead() {
	if len(s.ahead) == 0 {
		return
	}
	held := s.ahead
	s.ahead = nil
	for _, u := range held {
		s.foldUpdate(u)
	}
}

func (s *Session) rememberApplied(res apply.Result) {
	for _, a := range res.Actions {
		if a.Status != action.StatusApplied || a.EntryID == "" || a.Operation == action.OpDelete {
			continue
		}
		entry := voicelog.RecentEntry{Kind: a.Kind, EntryID: a.EntryID, Title: a.Title}
		if a.Meal != nil {
			entry.Date = a.Meal.Date
		}
		s.recent = append(s.recent, entry)
	}
	if len(s.recent) > 10 {
		s.recent = s.recent[len(s.recent)-10:]
	}
}

func hasRunnable(actions []action.Action) bool {
	for _, a := range actions {
		if a.Selected && a.Status != action.StatusApplied {
			return true
		}
	}
	return false
}

func cloneActions(actions []action.Action) []action.Action {
	out := make([]action.Action, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Clone())
	}
	return out
}

func spokenApplyError(err error) string {
	if pre, ok := err.(*apply.PreconditionError); ok {
		return fmt.Sprintf("The action %q isn't ready yet.", pre.Title)
	}
	return "Please try again."
}

// loopTimer is a resettable timer that is safe to re-arm from the loop that
// also drains it.
type loopTimer struct {
	t     *time.Timer
	armed bool
}

func newStoppedTimer() *loopTimer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return &loopTimer{t: t}
}

func (lt *loopTimer) C() <-chan time.Time { return lt.t.C }

func (lt *loopTimer) arm(d time.Duration) {
	lt.stop()
	lt.t.Reset(d)
	lt.armed = true
}

func (lt *loopTimer) stop() {
	if lt.armed && !lt.t.Stop() {
		select {
		case <-lt.t.C:
		default:
		}
	}
	lt.armed = false
}

func (lt *loopTimer) fired() { lt.armed = false }

func (lt *loopTimer) kill() { lt.t.Stop() }
