package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/uleaarn/paahi-backend/internal/agent"
	"github.com/uleaarn/paahi-backend/internal/order"
)

func newTestOpenAI(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "key", BaseURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

func TestOpenAI_TextReply(t *testing.T) {
	var body map[string]any
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":0,"model":"test-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":" What is your phone number? "}}]}`))
	})

	reply, err := c.Respond(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text != "What is your phone number?" || reply.Order != nil {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if body["model"] != "test-model" {
		t.Fatalf("unexpected model %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected system + 3 turns, got %d", len(msgs))
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 || !strings.Contains(mustJSON(t, tools[0]), order.ToolName) {
		t.Fatalf("expected submit_order tool, got %v", body["tools"])
	}
}

func TestOpenAI_ToolCallReply(t *testing.T) {
	args := `{\"customer_name\":\"Raj\",\"customer_phone\":\"555-123-4567\",\"items\":[{\"name\":\"Samosa\",\"quantity\":2}]}`
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":0,"model":"test-model","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"submit_order","arguments":"` + args + `"}}]}}]}`))
	})

	reply, err := c.Respond(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Order == nil {
		t.Fatalf("expected order from tool call")
	}
	d := *reply.Order
	if d.CustomerName != "Raj" || d.CustomerPhone != "5551234567" || len(d.Items) != 1 || d.Items[0] != (order.Item{Name: "samosa", Quantity: 2}) {
		t.Fatalf("unexpected order %+v", d)
	}
	if !c.SupportsTools() {
		t.Fatalf("expected tool support")
	}
}

func TestOpenAI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()
	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Respond(context.Background(), sampleRequest); err == nil {
		t.Fatalf("expected error")
	}
}

func TestConvertTurn(t *testing.T) {
	if m := convertTurn(agent.Turn{Role: agent.RoleUser, Text: "hi"}); m.OfUser == nil {
		t.Fatalf("expected user message")
	}
	if m := convertTurn(agent.Turn{Role: agent.RoleAssistant, Text: "hello"}); m.OfAssistant == nil {
		t.Fatalf("expected assistant message")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
