package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"voicelog"
)

// ConsoleSpeaker prints assistant speech to a writer. It stands in for a TTS
// engine during local development; Cancel just marks the current utterance
// interrupted.
type ConsoleSpeaker struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleSpeaker(out io.Writer) *ConsoleSpeaker {
	return &ConsoleSpeaker{out: out}
}

func (s *ConsoleSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "ASSISTANT: %s\n", text)
	return err
}

func (s *ConsoleSpeaker) Cancel() {}

// LineInput adapts a line-oriented reader (stdin, a test script) into the
// speech event stream: each non-empty line becomes a started/final/ended
// burst, as a recognizer would emit for one utterance.
type LineInput struct {
	reader io.Reader
	events chan voicelog.SpeechEvent
	stop   chan struct{}
	once   sync.Once
}

func NewLineInput(reader io.Reader) *LineInput {
	return &LineInput{
		reader: reader,
		events: make(chan voicelog.SpeechEvent, 8),
		stop:   make(chan struct{}),
	}
}

func (l *LineInput) Start(ctx context.Context) error {
	go func() {
		defer close(l.events)
		scanner := bufio.NewScanner(l.reader)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			now := time.Now()
			burst := []voicelog.SpeechEvent{
				{Type: voicelog.SpeechStarted, At: now},
				{Type: voicelog.SpeechFinal, Text: text, At: now},
				{Type: voicelog.SpeechEnded, At: now},
			}
			for _, ev := range burst {
				select {
				case l.events <- ev:
				case <-l.stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

func (l *LineInput) Stop() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}

func (l *LineInput) Events() <-chan voicelog.SpeechEvent { return l.events }
