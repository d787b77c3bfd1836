package adapter

// Enrichment rewrites summaries and action lists, so completions are
// capped well below typical chat limits.
const maxEnrichTokens = 1024

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a provider reply normalized across adapters.
type Completion struct {
	Text    string `json:"text"`
	Adapter string `json:"adapter"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}
