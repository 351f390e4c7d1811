package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	model "github.com/baochat/baochat/internal/model/chat"
	"github.com/baochat/baochat/internal/service/ollama"
)

var (
	tracer = otel.Tracer("pipeline")
	meter  = otel.Meter("pipeline")
)

// State is one phase of a turn's lifecycle.
type State string

const (
	StateReceived   State = "received"
	StateEnriching  State = "enriching"
	StateGenerating State = "generating"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Store is the slice of persistence the pipeline depends on.
type Store interface {
	AppendMessage(ctx context.Context, conversationID string, msg model.Message) error
	History(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// Resolver gates and performs web enrichment.
type Resolver interface {
	ShouldSearch(text string) bool
	Resolve(ctx context.Context, query string, maxResults int) ([]model.SearchResult, string)
}

// ReplyStream is a finite sequence of reply fragments terminated by io.EOF.
type ReplyStream interface {
	Recv() (string, error)
	Close()
}

// Generator produces a streamed reply for a prompt plus context window.
type Generator interface {
	Stream(ctx context.Context, prompt string, history []model.Message) ReplyStream
}

type ollamaGenerator struct {
	client *ollama.Client
}

func (g ollamaGenerator) Stream(ctx context.Context, prompt string, history []model.Message) ReplyStream {
	return g.client.Stream(ctx, prompt, history)
}

// NewOllamaGenerator adapts an ollama client to the Generator interface.
func NewOllamaGenerator(client *ollama.Client) Generator {
	return ollamaGenerator{client: client}
}

// Turn is the transient unit of work for one user message through its
// assistant reply. It records its state transitions so notification ordering
// can be asserted rather than inferred.
type Turn struct {
	ConversationID string
	Message        string
	EnableSearch   bool

	state  State
	states []State
}

// NewTurn builds a turn for one inbound chat message.
func NewTurn(conversationID, message string, enableSearch bool) *Turn {
	return &Turn{ConversationID: conversationID, Message: message, EnableSearch: enableSearch}
}

func (t *Turn) transition(s State) {
	t.state = s
	t.states = append(t.states, s)
}

// State returns the current state.
func (t *Turn) State() State { return t.state }

// States returns the transition log in order.
func (t *Turn) States() []State { return t.states }

// Pipeline sequences resolver, generator and store for each turn.
type Pipeline struct {
	store      Store
	resolver   Resolver
	generator  Generator
	logger     *slog.Logger
	maxResults int

	historyLimit int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithMaxResults caps how many enrichment results a turn requests.
func WithMaxResults(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxResults = n
		}
	}
}

// NewPipeline wires the turn pipeline. resolver may be nil to disable
// enrichment entirely.
func NewPipeline(store Store, resolver Resolver, generator Generator, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		resolver:     resolver,
		generator:    generator,
		logger:       logger,
		maxResults:   5,
		historyLimit: 50,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one turn. Notifications go to emit in the fixed lifecycle
// order; any returned error means the turn ended in StateFailed. Enrichment
// failures never fail a turn; persistence failures always do.
func (p *Pipeline) Run(ctx context.Context, turn *Turn, emit Emitter) error {
	ctx, span := tracer.Start(ctx, "chat_turn")
	defer span.End()
	p.countTurn(ctx)

	turn.transition(StateReceived)

	userMsg := model.Message{
		Role:      model.RoleUser,
		Content:   turn.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.AppendMessage(ctx, turn.ConversationID, userMsg); err != nil {
		turn.transition(StateFailed)
		return fmt.Errorf("failed to persist user message: %w", err)
	}

	prompt := turn.Message
	var results []model.SearchResult

	if p.resolver != nil && turn.EnableSearch && p.resolver.ShouldSearch(turn.Message) {
		turn.transition(StateEnriching)
		if err := emit.Emit(Event{Type: EventStatus, Message: statusSearching}); err != nil {
			turn.transition(StateFailed)
			return err
		}

		var summary string
		results, summary = p.resolver.Resolve(ctx, turn.Message, p.maxResults)
		if err := emit.Emit(Event{Type: EventSearchResults, Results: results}); err != nil {
			turn.transition(StateFailed)
			return err
		}
		if summary != "" {
			prompt = turn.Message + "\n\n" + summary
		}
	}

	turn.transition(StateGenerating)
	if err := emit.Emit(Event{Type: EventStatus, Message: statusThinking}); err != nil {
		turn.transition(StateFailed)
		return err
	}

	// Fetched after the user message was persisted, so the prompt's message
	// is part of the window the model sees.
	history, err := p.store.History(ctx, turn.ConversationID, p.historyLimit)
	if err != nil {
		turn.transition(StateFailed)
		return fmt.Errorf("failed to load history: %w", err)
	}

	if err := emit.Emit(Event{Type: EventResponseStart}); err != nil {
		turn.transition(StateFailed)
		return err
	}

	reply, streamErr := p.drain(ctx, prompt, history, emit)
	if streamErr != nil {
		turn.transition(StateFailed)
		return streamErr
	}

	if err := emit.Emit(Event{Type: EventResponseEnd}); err != nil {
		turn.transition(StateFailed)
		return err
	}

	turn.transition(StatePersisting)
	assistantMsg := model.Message{
		Role:          model.RoleAssistant,
		Content:       reply,
		CreatedAt:     time.Now().UTC(),
		UsedSearch:    len(results) > 0,
		SearchResults: results,
	}
	if err := p.store.AppendMessage(ctx, turn.ConversationID, assistantMsg); err != nil {
		turn.transition(StateFailed)
		return fmt.Errorf("failed to persist assistant message: %w", err)
	}

	turn.transition(StateDone)
	return nil
}

// drain forwards each fragment as a response_chunk and accumulates the full
// reply. A tagged stream error (generator not in inline mode) surfaces as an
// error event and fails the turn.
func (p *Pipeline) drain(ctx context.Context, prompt string, history []model.Message, emit Emitter) (string, error) {
	stream := p.generator.Stream(ctx, prompt, history)
	defer stream.Close()

	var full strings.Builder
	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full.String(), nil
		}
		if err != nil {
			p.logger.Error("generation stream failed", "error", err)
			_ = emit.Emit(Event{Type: EventError, Message: err.Error()})
			return "", fmt.Errorf("generation failed: %w", err)
		}
		full.WriteString(text)
		if err := emit.Emit(Event{Type: EventResponseChunk, Content: text}); err != nil {
			return "", err
		}
	}
}

func (p *Pipeline) countTurn(ctx context.Context) {
	counter, err := meter.Int64Counter(
		"chat.turns",
		metric.WithDescription("Number of chat turns processed"),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1)
}
