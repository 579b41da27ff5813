package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uleaarn/paahi-backend/internal/agent"
)

var sampleRequest = agent.Request{
	Instructions: "You take food orders.",
	History: []agent.Turn{
		{Role: agent.RoleUser, Text: "two samosas"},
		{Role: agent.RoleAssistant, Text: "Anything else?"},
		{Role: agent.RoleUser, Text: "that's all"},
	},
}

func TestCerebras_NoKey(t *testing.T) {
	c := NewCerebrasClient("", "model")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Respond(ctx, sampleRequest); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestCerebras_SendsHistory(t *testing.T) {
	var got chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Your name please?  "}}]}`))
	}))
	defer srv.Close()

	c := NewCerebrasClient("key", "")
	c.Endpoint = srv.URL
	reply, err := c.Respond(context.Background(), sampleRequest)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text != "Your name please?" || reply.Order != nil {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if got.Model != DefaultCerebrasModel || len(got.Messages) != 4 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[2].Role != "assistant" || got.Messages[3].Content != "that's all" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestCerebras_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("not-json")) }},
		{"empty_choices", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			c := NewCerebrasClient("key", "model")
			c.HTTPClient = &http.Client{Timeout: 1 * time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				req.URL.Scheme = "http"
				req.URL.Host = srv.Listener.Addr().String()
				return http.DefaultTransport.RoundTrip(req)
			})}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := c.Respond(ctx, sampleRequest); err == nil {
				t.Fatalf("expected error; got nil")
			}
		})
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
