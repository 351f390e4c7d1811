package chat

import "github.com/baochat/baochat/internal/model/chat"

// Event is one outbound notification on the duplex connection. The set of
// types and their field names form the stable wire contract.
type Event struct {
	Type     string              `json:"type"`
	Message  string              `json:"message,omitempty"`
	Content  string              `json:"content,omitempty"`
	Results  []chat.SearchResult `json:"results,omitempty"`
	Messages []chat.Message      `json:"messages,omitempty"`
}

const (
	EventHistory       = "history"
	EventStatus        = "status"
	EventSearchResults = "search_results"
	EventResponseStart = "response_start"
	EventResponseChunk = "response_chunk"
	EventResponseEnd   = "response_end"
	EventError         = "error"
	EventPong          = "pong"
)

const (
	statusSearching = "Searching the web..."
	statusThinking  = "Bao is thinking..."
)

// Emitter delivers events to the originating connection, in call order.
type Emitter interface {
	Emit(event Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event Event) error

func (f EmitterFunc) Emit(event Event) error { return f(event) }
