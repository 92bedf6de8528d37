package model

// Message roles understood by the orchestrator and the completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting from a completion provider, when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of a single chat completion call.
type Completion struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

// CompletionOptions tunes a single completion call.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
}

// RAGInfo describes the retrieval that backed a response.
type RAGInfo struct {
	Results []SearchResult `json:"results"`
	Plan    Plan           `json:"plan"`
}

// Response is the orchestrator's answer to a RAG request.
type Response struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Usage   *Usage   `json:"usage,omitempty"`
	RAG     *RAGInfo `json:"rag,omitempty"`
}

// LastUserMessage returns the content of the last message with the user
// role, or the empty string when the conversation has none.
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
