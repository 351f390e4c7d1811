package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("ollama")
	meter  = otel.Meter("ollama")
)

const defaultHost = "http://localhost:11434"

// Client talks to an Ollama server over its native HTTP API.
type Client struct {
	host         string
	model        string
	httpClient   *http.Client
	logger       *slog.Logger
	inlineErrors bool
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithInlineErrors makes Stream fold backend failures into a final
// descriptive text fragment instead of surfacing them from Recv. This keeps
// the callers' chunk handling uniform at the cost of error visibility.
func WithInlineErrors() Option {
	return func(cl *Client) { cl.inlineErrors = true }
}

// NewClient builds a client for the given host and model. An empty host
// selects the local default.
func NewClient(host, model string, logger *slog.Logger, opts ...Option) *Client {
	if host == "" {
		host = defaultHost
	}
	c := &Client{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

// ModelInfo describes one installed model as reported by /api/tags.
type ModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama (is it running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tags request returned %s", resp.Status)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}
	return tags.Models, nil
}

// ModelAvailable reports whether the configured model is installed and the
// server reachable. Unreachable servers read as unavailable, not as errors.
func (c *Client) ModelAvailable(ctx context.Context) bool {
	models, err := c.Models(ctx)
	if err != nil {
		c.logger.Warn("ollama availability check failed", "error", err)
		return false
	}
	for _, m := range models {
		if strings.Contains(m.Name, c.model) {
			return true
		}
	}
	return false
}

type pullProgress struct {
	Status string `json:"status"`
}

// Pull downloads the configured model, blocking until the server reports
// success.
func (c *Client) Pull(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"name": c.model})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls can take far longer than a chat round trip.
	client := &http.Client{Timeout: 0}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to pull model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pull request returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var progress pullProgress
		if err := json.Unmarshal(line, &progress); err != nil {
			continue
		}
		if progress.Status == "success" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pull stream failed: %w", err)
	}
	return fmt.Errorf("pull finished without success status")
}

// EnsureModel makes sure the configured model is present, pulling it if
// missing. It returns "available", "pulled" or "failed".
func (c *Client) EnsureModel(ctx context.Context) string {
	if c.ModelAvailable(ctx) {
		return "available"
	}
	if err := c.Pull(ctx); err != nil {
		c.logger.Error("model pull failed", "model", c.model, "error", err)
		return "failed"
	}
	c.logger.Info("model pulled", "model", c.model)
	return "pulled"
}

func (c *Client) requestDuration() (metric.Float64Histogram, error) {
	return meter.Float64Histogram(
		"ollama.request.duration",
		metric.WithDescription("Ollama chat request duration in milliseconds"),
	)
}

func (c *Client) recordDuration(ctx context.Context, start time.Time) {
	histogram, err := c.requestDuration()
	if err != nil {
		return
	}
	histogram.Record(ctx, float64(time.Since(start).Milliseconds()))
}
