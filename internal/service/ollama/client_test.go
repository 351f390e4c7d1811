package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/baochat/baochat/internal/model/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildMessagesWindowAndOrder(t *testing.T) {
	history := make([]chat.Message, 15)
	for i := range history {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		history[i] = chat.Message{Role: role, Content: fmt.Sprintf("msg-%d", i)}
	}

	messages := buildMessages("current prompt", history)

	// Persona + 10 most recent + prompt.
	if len(messages) != 12 {
		t.Fatalf("expected 12 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || !strings.Contains(messages[0].Content, "Bao") {
		t.Fatalf("expected persona system message first, got %+v", messages[0])
	}
	if messages[1].Content != "msg-5" {
		t.Fatalf("expected history window to start at msg-5, got %q", messages[1].Content)
	}
	if messages[10].Content != "msg-14" {
		t.Fatalf("expected history window to end at msg-14, got %q", messages[10].Content)
	}
	if messages[11].Role != "user" || messages[11].Content != "current prompt" {
		t.Fatalf("expected prompt as final user entry, got %+v", messages[11])
	}
	// Roles preserved in original order.
	if messages[1].Role != "assistant" || messages[2].Role != "user" {
		t.Fatalf("history roles not preserved: %+v %+v", messages[1], messages[2])
	}
}

func TestBuildMessagesEmptyHistory(t *testing.T) {
	messages := buildMessages("hi", nil)
	if len(messages) != 2 {
		t.Fatalf("expected persona + prompt, got %d messages", len(messages))
	}
}

func TestStreamAssemblesFragments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"Hello"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":" there"},"done":false}`+"\n")
		io.WriteString(w, "not json\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":"!"},"done":true}`+"\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "tinyllama", testLogger())
	stream := client.Stream(context.Background(), "hi", nil)
	defer stream.Close()

	var full strings.Builder
	for {
		text, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err: %v", err)
		}
		full.WriteString(text)
	}
	if full.String() != "Hello there!" {
		t.Fatalf("unexpected assembled reply %q", full.String())
	}
}

func TestStreamInlineErrorOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tinyllama", testLogger(), WithInlineErrors())
	stream := client.Stream(context.Background(), "hi", nil)
	defer stream.Close()

	text, err := stream.Recv()
	if err != nil {
		t.Fatalf("inline mode must not surface errors, got %v", err)
	}
	if text != "Error: Unable to generate response (Status: 500)" {
		t.Fatalf("unexpected inline error fragment %q", text)
	}
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after inline error, got %v", err)
	}
}

func TestStreamTaggedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tinyllama", testLogger())
	stream := client.Stream(context.Background(), "hi", nil)
	defer stream.Close()

	_, err := stream.Recv()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected tagged backend error, got %v", err)
	}
}

func TestModelAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{"models":[{"name":"tinyllama:latest","size":1},{"name":"llama3:8b","size":2}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tinyllama", testLogger())
	if !client.ModelAvailable(context.Background()) {
		t.Fatal("expected tinyllama to be reported available")
	}

	other := NewClient(server.URL, "mistral", testLogger())
	if other.ModelAvailable(context.Background()) {
		t.Fatal("expected mistral to be reported unavailable")
	}
}

func TestModelAvailableServerDown(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "tinyllama", testLogger())
	if client.ModelAvailable(context.Background()) {
		t.Fatal("unreachable server must read as unavailable")
	}
}

func TestEnsureModelPulls(t *testing.T) {
	pulled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			io.WriteString(w, `{"models":[]}`)
		case "/api/pull":
			pulled = true
			io.WriteString(w, `{"status":"downloading"}`+"\n")
			io.WriteString(w, `{"status":"success"}`+"\n")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "tinyllama", testLogger())
	if status := client.EnsureModel(context.Background()); status != "pulled" {
		t.Fatalf("expected pulled, got %q", status)
	}
	if !pulled {
		t.Fatal("expected a pull request")
	}
}
