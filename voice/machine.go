// Package voice holds the session state machine for hands-free operation and
// the loop that executes its effects against the speaker, the microphone, the
// turn coordinator, and the apply engine.
package voice

import (
	"strings"

	"voicelog"
)

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseDictating       Phase = "dictating"
	PhaseSpeaking        Phase = "speaking"
	PhaseAwaitingConsent Phase = "awaiting_consent"
	PhaseApplying        Phase = "applying"
)

type EventType string

const (
	EvWake           EventType = "wake"
	EvSpeechStarted  EventType = "speech_started"
	EvInterim        EventType = "interim"
	EvFinal          EventType = "final"
	EvSilence        EventType = "silence"
	EvPlanDone       EventType = "plan_done"
	EvPlanFailed     EventType = "plan_failed"
	EvSpeakDone      EventType = "speak_done"
	EvConsentVerdict EventType = "consent_verdict"
	EvApplyDone      EventType = "apply_done"
	EvApplyFailed    EventType = "apply_failed"
)

type Event struct {
	Type        EventType
	Text        string
	WantConsent bool
	AutoApply   bool
	Verdict     voicelog.ConsentIntent
}

type EffectType string

const (
	FxCancelSpeech EffectType = "cancel_speech" // stop playback immediately
	FxSpeak        EffectType = "speak"
	FxSubmit       EffectType = "submit"   // run transcript through the coordinator
	FxClassify     EffectType = "classify" // tier-2 consent classification
	FxApply        EffectType = "apply"    // commit pending actions
	FxClearPending EffectType = "clear_pending"
)

type Effect struct {
	Type EffectType
	Text string
}

// Machine is the pure half of the voice session: one event in, zero or more
// effects out, no I/O. The apply lock is tracked separately from the phase so
// barging in while speech plays back can never leave a commit half-armed.
type Machine struct {
	phase           Phase
	segments        []string
	interim         string
	lastMessage     string
	lastConsentText string

	consentPending   bool
	autoApplyPending bool
	applyInFlight    bool

	handsFree       bool
	consentMaxWords int
}

func NewMachine(cfg voicelog.SessionConfig) *Machine {
	maxWords := cfg.ConsentMaxWords
	if maxWords <= 0 {
		maxWords = 6
	}
	return &Machine{
		phase:           PhaseIdle,
		handsFree:       cfg.HandsFree,
		consentMaxWords: maxWords,
	}
}

func (m *Machine) Phase() Phase         { return m.phase }
func (m *Machine) ApplyInFlight() bool  { return m.applyInFlight }
func (m *Machine) ConsentPending() bool { return m.consentPending }

// Transcript joins the finalized segments of the current dictation, with the
// live interim (if any) appended.
func (m *Machine) Transcript() string {
	parts := append([]string(nil), m.segments...)
	if m.interim != "" {
		parts = append(parts, m.interim)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Handle advances the machine by one event.
func (m *Machine) Handle(ev Event) []Effect {
	switch ev.Type {
	case EvWake:
		if m.phase == PhaseIdle {
			m.resetDictation()
			m.phase = PhaseDictating
		}
		return nil

	case EvSpeechStarted:
		return m.onSpeechStarted()

	case EvInterim:
		if m.phase == PhaseDictating || m.phase == PhaseAwaitingConsent {
			m.interim = ev.Text
		}
		return nil

	case EvFinal:
		return m.onFinal(ev.Text)

	case EvSilence:
		return m.onSilence()

	case EvPlanDone:
		m.consentPending = ev.WantConsent
		m.autoApplyPending = ev.AutoApply && !m.applyInFlight
		m.lastMessage = ev.Text
		m.phase = PhaseSpeaking
		return []Effect{{Type: FxSpeak, Text: ev.Text}}

	case EvPlanFailed:
		m.phase = PhaseSpeaking
		m.lastMessage = ev.Text
		return []Effect{{Type: FxSpeak, Text: ev.Text}}

	case EvSpeakDone:
		return m.onSpeakDone()

	case EvConsentVerdict:
		return m.onVerdict(ev.Verdict)

	case EvApplyDone:
		// beginApply cleared consentPending, so a true value here was set by a
		// plan that arrived while the commit ran; it must survive the receipt.
		m.applyInFlight = false
		m.autoApplyPending = false
		m.phase = PhaseSpeaking
		m.lastMessage = ev.Text
		return []Effect{{Type: FxSpeak, Text: ev.Text}}

	case EvApplyFailed:
		m.applyInFlight = false
		m.autoApplyPending = false
		m.phase = PhaseSpeaking
		m.lastMessage = ev.Text
		return []Effect{{Type: FxSpeak, Text: ev.Text}}
	}
	return nil
}

func (m *Machine) onSpeechStarted() []Effect {
	switch m.phase {
	case PhaseSpeaking:
		// barge-in: kill playback, start listening; any queued auto-apply is
		// abandoned because the user clearly has more to say
		m.autoApplyPending = false
		m.resetDictation()
		if m.consentPending {
			m.phase = PhaseAwaitingConsent
		} else {
			m.phase = PhaseDictating
		}
		return []Effect{{Type: FxCancelSpeech}}

	case PhaseIdle:
		m.resetDictation()
		m.phase = PhaseDictating

	case PhaseApplying:
		// commit keeps running; the user's new speech becomes a fresh dictation
		m.resetDictation()
		m.phase = PhaseDictating
	}
	return nil
}

func (m *Machine) onFinal(text string) []Effect {
	switch m.phase {
	case PhaseAwaitingConsent:
		return m.onConsentUtterance(text)

	case PhaseDictating:
		m.segments = append(m.segments, text)
		m.interim = ""
		return nil

	case PhaseIdle, PhaseApplying:
		// finals can arrive without a preceding speech_started
		m.resetDictation()
		m.segments = append(m.segments, text)
		m.phase = PhaseDictating
		return nil
	}
	return nil
}

func (m *Machine) onSilence() []Effect {
	if m.phase != PhaseDictating {
		return nil
	}
	transcript := m.Transcript()
	if transcript == "" {
		return nil
	}
	m.resetDictation()
	m.phase = PhaseIdle
	return []Effect{{Type: FxSubmit, Text: transcript}}
}

// onConsentUtterance is the two-tier consent gate. The deterministic phrase
// lists answer instantly; short unknowns escalate to the model tier; anything
// longer reroutes to the planner as a new instruction. A plain "yes" never
// touches the classifier.
func (m *Machine) onConsentUtterance(text string) []Effect {
	m.interim = ""
	switch ClassifyPhrase(text) {
	case VerdictConfirm:
		return m.beginApply()

	case VerdictCancel:
		m.consentPending = false
		m.phase = PhaseSpeaking
		m.lastMessage = "Okay, cancelled."
		return []Effect{{Type: FxClearPending}, {Type: FxSpeak, Text: m.lastMessage}}

	case VerdictRepeat:
		m.phase = PhaseSpeaking
		return []Effect{{Type: FxSpeak, Text: m.lastMessage}}
	}

	if WordCount(text) <= m.consentMaxWords {
		m.lastConsentText = text
		return []Effect{{Type: FxClassify, Text: text}}
	}

	// too long to be consent: it's a new instruction
	m.consentPending = false
	m.phase = PhaseIdle
	return []Effect{{Type: FxSubmit, Text: text}}
}

func (m *Machine) onVerdict(v voicelog.ConsentIntent) []Effect {
	if m.phase != PhaseAwaitingConsent {
		return nil
	}
	switch v {
	case voicelog.ConsentConfirm:
		return m.beginApply()

	case voicelog.ConsentCancel:
		m.consentPending = false
		m.phase = PhaseSpeaking
		m.lastMessage = "Okay, cancelled."
		return []Effect{{Type: FxClearPending}, {Type: FxSpeak, Text: m.lastMessage}}
	}

	// new_instruction: replay the utterance through the planner
	m.consentPending = false
	m.phase = PhaseIdle
	return []Effect{{Type: FxSubmit, Text: m.lastConsentText}}
}

func (m *Machine) onSpeakDone() []Effect {
	if m.phase != PhaseSpeaking {
		return nil
	}
	if m.autoApplyPending && !m.applyInFlight {
		m.autoApplyPending = false
		return m.beginApply()
	}
	if m.consentPending {
		m.phase = PhaseAwaitingConsent
		return nil
	}
	if m.handsFree {
		m.resetDictation()
		m.phase = PhaseDictating
	} else {
		m.phase = PhaseIdle
	}
	return nil
}

func (m *Machine) beginApply() []Effect {
	if m.applyInFlight {
		return nil
	}
	m.applyInFlight = true
	m.consentPending = false
	m.phase = PhaseApplying
	return []Effect{{Type: FxApply}}
}

func (m *Machine) resetDictation() {
	m.segments = nil
	m.interim = ""
}
