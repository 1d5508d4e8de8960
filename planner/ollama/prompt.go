package ollama

import (
	"fmt"
	"strings"

	"voicelog"
	"voicelog/planner"
)

// buildMessages converts one planning turn into Ollama chat messages:
// system contract first, then trimmed conversation history, then a context
// block (pending actions + recent entries), then the new utterance.
func buildMessages(req voicelog.PlanRequest, historyLimit int) ([]Message, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("empty utterance")
	}

	messages := []Message{{Role: "system", Content: planner.SystemPrompt()}}

	history := req.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	for _, m := range history {
		role := m.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		messages = append(messages, Message{Role: role, Content: m.Text})
	}

	if ctxBlock := planner.ContextBlock(req); ctxBlock != "" {
		messages = append(messages, Message{Role: "user", Content: ctxBlock})
	}

	messages = append(messages, Message{Role: "user", Content: req.Text})
	return messages, nil
}
