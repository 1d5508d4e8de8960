package ollama

// Message is a single chat message in Ollama's native format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

type wireRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`
	Options  options   `json:"options,omitempty"`
}

type wireResponse struct {
	Message Message `json:"message"`
	// other metadata omitted but available
}
