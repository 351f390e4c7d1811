package conversation_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/baochat/baochat/internal/handler/conversation"
	chatmodel "github.com/baochat/baochat/internal/model/chat"
	"github.com/baochat/baochat/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	conversation.New(st, logger).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestCreateConversation(t *testing.T) {
	srv, st := newTestServer(t)

	resp, err := http.Post(srv.URL+"/conversations", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["conversation_id"] == "" {
		t.Fatal("expected a conversation_id")
	}

	summaries, err := st.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != body["conversation_id"] {
		t.Fatalf("conversation not persisted: %+v", summaries)
	}
}

func TestListConversations(t *testing.T) {
	srv, st := newTestServer(t)

	ctx := context.Background()
	conv, err := st.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.AppendMessage(ctx, conv.ID, chatmodel.Message{Role: chatmodel.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	resp, err := http.Get(srv.URL + "/conversations")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Conversations []chatmodel.ConversationSummary `json:"conversations"`
	}
	decodeBody(t, resp, &body)
	if len(body.Conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(body.Conversations))
	}
	if body.Conversations[0].MessageCount != 1 || body.Conversations[0].LastMessage != "hi" {
		t.Fatalf("unexpected summary: %+v", body.Conversations[0])
	}
}

func TestListConversationsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/conversations")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var body struct {
		Conversations []chatmodel.ConversationSummary `json:"conversations"`
	}
	decodeBody(t, resp, &body)
	if body.Conversations == nil || len(body.Conversations) != 0 {
		t.Fatalf("expected empty non-nil list, got %+v", body.Conversations)
	}
}

func TestGetMessages(t *testing.T) {
	srv, st := newTestServer(t)

	ctx := context.Background()
	conv, err := st.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, content := range []string{"one", "two", "three"} {
		if err := st.AppendMessage(ctx, conv.ID, chatmodel.Message{Role: chatmodel.RoleUser, Content: content}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	resp, err := http.Get(srv.URL + "/conversations/" + conv.ID + "/messages?limit=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Messages []chatmodel.Message `json:"messages"`
	}
	decodeBody(t, resp, &body)
	if len(body.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(body.Messages))
	}
	if body.Messages[0].Content != "two" || body.Messages[1].Content != "three" {
		t.Fatalf("expected newest suffix in oldest-first order, got %+v", body.Messages)
	}
}

func TestGetMessagesBadLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/conversations/any/messages?limit=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteUnknownConversation(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/conversations/never-existed", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteConversation(t *testing.T) {
	srv, st := newTestServer(t)

	ctx := context.Background()
	conv, err := st.CreateConversation(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.AppendMessage(ctx, conv.ID, chatmodel.Message{Role: chatmodel.RoleUser, Content: "bye"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/conversations/"+conv.ID, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "deleted" || body["conversation_id"] != conv.ID {
		t.Fatalf("unexpected body: %v", body)
	}

	summaries, err := st.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("conversation still present: %+v", summaries)
	}
	messages, err := st.History(ctx, conv.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("messages not cascaded: %+v", messages)
	}
}
