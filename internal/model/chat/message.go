package chat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one immutable entry in a conversation's append-only log.
// SearchResults is populated only on assistant messages that used enrichment;
// UsedSearch is true iff that list is non-empty.
type Message struct {
	ID             int64          `json:"id,omitempty"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	CreatedAt      time.Time      `json:"timestamp"`
	UsedSearch     bool           `json:"used_search"`
	SearchResults  []SearchResult `json:"search_results,omitempty"`
}

// SearchResult is one entry fetched from a web search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}
