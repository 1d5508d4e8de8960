package voicelog

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type PlannerConfig struct {
	BaseOllamaEndpoint string `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	HistoryLimit       int    `env:"PLANNER_HISTORY_LIMIT,default=12"`
}

type SessionConfig struct {
	SilenceThresholdMS int    `env:"SILENCE_THRESHOLD_MS,default=1200"`
	ConsentMaxWords    int    `env:"CONSENT_MAX_WORDS,default=6"`
	HandsFree          bool   `env:"HANDS_FREE,default=true"`
	ResolveWaitMS      int    `env:"RESOLVE_WAIT_MS,default=4000"`
	ResolveWaitPolicy  string `env:"RESOLVE_WAIT_POLICY,default=selected"` // "selected" or "all"
}

type ResolverConfig struct {
	SearchLimit       int    `env:"FOOD_SEARCH_LIMIT,default=18"`
	DetailConcurrency int    `env:"FOOD_DETAIL_CONCURRENCY,default=3"`
	PoolWorkers       int    `env:"RESOLVE_POOL_WORKERS,default=3"`
	BaseEndpoint      string `env:"FOOD_API_ENDPOINT,default=https://api.nal.usda.gov/fdc/v1"`
	APIKey            string `env:"FOOD_API_KEY,default=DEMO_KEY"`
}

type StoreConfig struct {
	EntriesDir string `env:"ENTRIES_DIR,default=artifacts/entries"`
}

type NotifierConfig struct {
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL,default="`
	SlackChannel    string `env:"SLACK_CHANNEL,default=#health-log"`
}
