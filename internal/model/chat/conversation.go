package chat

import "time"

// Conversation is a durable, ordered sequence of messages under one identifier.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary augments a conversation with listing metadata.
type ConversationSummary struct {
	Conversation
	MessageCount int    `json:"message_count"`
	LastMessage  string `json:"last_message,omitempty"`
}
