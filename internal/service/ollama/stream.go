package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/baochat/baochat/internal/model/chat"
)

// Stream is a lazy, finite, non-restartable sequence of reply fragments. The
// concatenation of all fragments equals the full reply.
type Stream struct {
	fragments <-chan fragment
	cancel    context.CancelFunc
}

type fragment struct {
	text string
	err  error
}

// Recv returns the next fragment. It returns io.EOF when the reply is
// complete and a descriptive error if the backend failed mid-stream (unless
// the client was built with WithInlineErrors, in which case the failure
// arrives as a final text fragment instead).
func (s *Stream) Recv() (string, error) {
	f, ok := <-s.fragments
	if !ok {
		return "", io.EOF
	}
	return f.text, f.err
}

// Close abandons the stream and releases the underlying request.
func (s *Stream) Close() {
	s.cancel()
	// Drain so the producer goroutine can exit.
	for range s.fragments {
	}
}

type chatChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Stream sends the prompt with the persona and windowed history to the model
// and returns the incremental reply.
func (c *Client) Stream(ctx context.Context, prompt string, history []chat.Message) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan fragment)

	go func() {
		defer close(out)
		c.produce(ctx, out, prompt, history)
	}()

	return &Stream{fragments: out, cancel: cancel}
}

func (c *Client) produce(ctx context.Context, out chan<- fragment, prompt string, history []chat.Message) {
	ctx, span := tracer.Start(ctx, "ollama_chat_stream")
	defer span.End()

	start := time.Now()
	defer c.recordDuration(ctx, start)

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: buildMessages(prompt, history),
		Stream:   true,
	})
	if err != nil {
		c.fail(ctx, out, fmt.Sprintf("Unexpected error: %v", err), fmt.Errorf("failed to marshal chat request: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		c.fail(ctx, out, fmt.Sprintf("Unexpected error: %v", err), fmt.Errorf("failed to create chat request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	// The chat client timeout would cut long generations short; rely on ctx.
	client := &http.Client{Timeout: 0}

	resp, err := client.Do(req)
	if err != nil {
		c.fail(ctx, out,
			fmt.Sprintf("Error connecting to Ollama: %v. Please ensure Ollama is running.", err),
			fmt.Errorf("failed to reach ollama: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.fail(ctx, out,
			fmt.Sprintf("Error: Unable to generate response (Status: %d)", resp.StatusCode),
			fmt.Errorf("chat request returned %s", resp.Status))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			select {
			case out <- fragment{text: chunk.Message.Content}:
			case <-ctx.Done():
				return
			}
		}
		if chunk.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.fail(ctx, out, fmt.Sprintf("Unexpected error: %v", err), fmt.Errorf("chat stream failed: %w", err))
	}
}

// fail delivers a backend failure according to the configured error mode.
func (c *Client) fail(ctx context.Context, out chan<- fragment, inlineText string, err error) {
	c.logger.Error("ollama chat failed", "error", err)

	f := fragment{err: err}
	if c.inlineErrors {
		f = fragment{text: inlineText}
	}
	select {
	case out <- f:
	case <-ctx.Done():
	}
}
