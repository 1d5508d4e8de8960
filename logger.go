package voicelog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// TurnLogger is the interface for per-turn audit logging.
type TurnLogger interface {
	LogTurn(turn TurnLog) error
}

// NewTurnLogFilePath returns a file path based on a cleaned up model name or id
// so logs produced with different models are easy to tell apart.
func NewTurnLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.ReplaceAll(strings.ToLower(model), ":", "_"),
	)
}

// TurnLog records one user-utterance/planner-response cycle.
type TurnLog struct {
	Turn          int           `json:"turn"`
	Timestamp     time.Time     `json:"timestamp"`
	Transcript    string        `json:"transcript,omitempty"`
	PlannerInput  string        `json:"planner_input,omitempty"`
	PlannerOutput any           `json:"planner_output,omitempty"`
	Mutations     []MutationLog `json:"mutations,omitempty"`
	Receipt       string        `json:"receipt,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// MutationLog records one per-entity commit inside a turn.
type MutationLog struct {
	Kind      string `json:"kind"`
	Operation string `json:"operation"`
	ActionID  string `json:"action_id"`
	EntryID   string `json:"entry_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FileTurnLogger accumulates turns and flushes the whole session at the end.
type FileTurnLogger struct {
	turns  []TurnLog
	writer io.Writer
}

func NewFileTurnLogger(writer io.Writer) *FileTurnLogger {
	return &FileTurnLogger{
		turns:  make([]TurnLog, 0),
		writer: writer,
	}
}

// LogTurn buffers a turn; nothing is written until Flush.
func (l *FileTurnLogger) LogTurn(turn TurnLog) error {
	l.turns = append(l.turns, turn)
	return nil
}

// Flush writes all accumulated turns to the writer.
func (l *FileTurnLogger) Flush() error {
	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"voice_session": map[string]any{
			"timestamp": time.Now(),
			"turns":     l.turns,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal turn log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write turn log: %w", err)
	}

	l.turns = l.turns[:0]
	return nil
}

// NoOpTurnLogger discards all log entries.
type NoOpTurnLogger struct{}

func NewNoOpTurnLogger() *NoOpTurnLogger { return &NoOpTurnLogger{} }

func (NoOpTurnLogger) LogTurn(turn TurnLog) error { return nil }

// StdoutTurnLogger writes each turn as a JSON line to stdout (for
// Lambda/CloudWatch style log collection).
type StdoutTurnLogger struct{}

func NewStdoutTurnLogger() *StdoutTurnLogger { return &StdoutTurnLogger{} }

func (StdoutTurnLogger) LogTurn(turn TurnLog) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
