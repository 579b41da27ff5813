package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestExtract_SingleUtterance(t *testing.T) {
	e := NewExtractor(nil)
	d := e.Extract("one samosa, my name is Raj, phone 5551234567")
	if d.CustomerName != "Raj" {
		t.Fatalf("name: got %q", d.CustomerName)
	}
	if d.CustomerPhone != "5551234567" {
		t.Fatalf("phone: got %q", d.CustomerPhone)
	}
	if len(d.Items) != 1 || d.Items[0].Name != "samosa" || d.Items[0].Quantity != 1 {
		t.Fatalf("items: got %+v", d.Items)
	}
	if !d.Complete() {
		t.Fatalf("expected complete details")
	}
}

func TestExtract_AcrossTurns(t *testing.T) {
	e := NewExtractor(nil)
	d := e.Extract(
		"Hi, I'd like two chicken tikka masala and garlic naan",
		"Also three samosas please",
		"It's Priya Shah",
		"my number is (555) 987-6543",
	)
	if d.CustomerName != "Priya Shah" {
		t.Fatalf("name: got %q", d.CustomerName)
	}
	if d.CustomerPhone != "5559876543" {
		t.Fatalf("phone: got %q", d.CustomerPhone)
	}
	want := []Item{{"chicken tikka masala", 2}, {"garlic naan", 1}, {"samosa", 3}}
	if len(d.Items) != len(want) {
		t.Fatalf("items: got %+v", d.Items)
	}
	for i := range want {
		if d.Items[i] != want[i] {
			t.Fatalf("item %d: got %+v want %+v", i, d.Items[i], want[i])
		}
	}
	if got := d.Summary(); got != "2 chicken tikka masala, 1 garlic naan, 3 samosa" {
		t.Fatalf("summary: got %q", got)
	}
}

func TestExtract_RepeatMentionKeepsQuantity(t *testing.T) {
	e := NewExtractor(nil)
	d := e.Extract("four naan please", "yes the naan is right")
	if len(d.Items) != 1 || d.Items[0].Quantity != 4 {
		t.Fatalf("expected single naan x4, got %+v", d.Items)
	}
	d = e.Extract("four naan please", "actually make that two naan")
	if len(d.Items) != 1 || d.Items[0].Quantity != 2 {
		t.Fatalf("expected quantity update to 2, got %+v", d.Items)
	}
}

func TestExtract_NoFalsePositives(t *testing.T) {
	e := NewExtractor(nil)
	d := e.Extract("I'm calling about the menu", "I am hungry", "call me at 12345")
	if d.CustomerName != "" {
		t.Fatalf("unexpected name %q", d.CustomerName)
	}
	if d.CustomerPhone != "" {
		t.Fatalf("unexpected phone %q", d.CustomerPhone)
	}
	if len(d.Items) != 0 || d.Complete() {
		t.Fatalf("unexpected items %+v", d.Items)
	}
}

func TestExtract_PhoneFormats(t *testing.T) {
	cases := map[string]string{
		"5551234567":          "5551234567",
		"555-123-4567":        "5551234567",
		"555.123.4567":        "5551234567",
		"555 123 4567":        "5551234567",
		"+1 555 123 4567":     "5551234567",
		"call 1-555-123-4567": "5551234567",
	}
	for in, want := range cases {
		if got := findPhone(in); got != want {
			t.Fatalf("findPhone(%q)=%q want %q", in, got, want)
		}
	}
	if got := findPhone("55512345678"); got != "" {
		t.Fatalf("expected 11 digits without country code to be rejected, got %q", got)
	}
}

func TestExtract_CustomMenu(t *testing.T) {
	e := NewExtractor([]string{"Dosa", " idli "})
	d := e.Extract("two masala dosa and an idli")
	if len(d.Items) != 2 || d.Items[0] != (Item{"masala dosa", 2}) || d.Items[1] != (Item{"idli", 1}) {
		t.Fatalf("items: got %+v", d.Items)
	}
}

func TestDetails_Merge(t *testing.T) {
	tool := Details{CustomerName: "Raj", Items: []Item{{"naan", 2}}}
	regex := Details{CustomerName: "raj k", CustomerPhone: "5551234567", Items: []Item{{"samosa", 1}}}
	got := tool.Merge(regex)
	if got.CustomerName != "Raj" || got.CustomerPhone != "5551234567" || got.Items[0].Name != "naan" {
		t.Fatalf("unexpected merge %+v", got)
	}
}

func TestParseToolArguments(t *testing.T) {
	d, err := ParseToolArguments(`{"customer_name":" Raj ","customer_phone":"(555) 123-4567","items":[{"name":"Samosa","quantity":0},{"name":"","quantity":2}]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.CustomerName != "Raj" || d.CustomerPhone != "5551234567" {
		t.Fatalf("unexpected details %+v", d)
	}
	if len(d.Items) != 1 || d.Items[0] != (Item{"samosa", 1}) {
		t.Fatalf("unexpected items %+v", d.Items)
	}
	if _, err := ParseToolArguments("{"); err == nil {
		t.Fatalf("expected error for bad json")
	}
	if NormalizePhone("+1 (555) 123-4567") != "5551234567" {
		t.Fatalf("expected country code stripped")
	}
}

func TestToolParameters_IsValidJSON(t *testing.T) {
	b, err := json.Marshal(ToolParameters())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"customer_phone"`) {
		t.Fatalf("schema missing customer_phone: %s", b)
	}
}

func TestNew_Payload(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	o := New(Details{CustomerName: "Raj", CustomerPhone: "5551234567", Items: []Item{{"samosa", 1}}},
		"MZ1", "CA1", SourceRegex, []Message{{Role: "user", Content: "hi"}}, now)
	if o.OrderID == "" || o.Source != "voice_call" || o.Extraction != SourceRegex {
		t.Fatalf("unexpected order %+v", o)
	}
	if o.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp")
	}
	b, _ := json.Marshal(o)
	for _, key := range []string{`"customer_name":"Raj"`, `"session_id":"MZ1"`, `"order_summary":"Items: 1 samosa"`, `"conversation_history":[{"role":"user","content":"hi"}]`} {
		if !strings.Contains(string(b), key) {
			t.Fatalf("payload missing %s: %s", key, b)
		}
	}
}

func TestWebhook_Submit(t *testing.T) {
	var got Order
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	if err := w.Submit(context.Background(), Order{CustomerName: "Raj", Items: []Item{{"samosa", 1}}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.CustomerName != "Raj" || len(got.Items) != 1 {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestWebhook_Failures(t *testing.T) {
	if err := NewWebhook("").Submit(context.Background(), Order{}); err == nil {
		t.Fatalf("expected error without url")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()
	err := NewWebhook(srv.URL).Submit(context.Background(), Order{})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

type submitFunc func(context.Context, Order) error

func (f submitFunc) Submit(ctx context.Context, o Order) error { return f(ctx, o) }

func TestFanout(t *testing.T) {
	var calls int32
	ok := submitFunc(func(context.Context, Order) error { atomic.AddInt32(&calls, 1); return nil })
	bad := submitFunc(func(context.Context, Order) error { atomic.AddInt32(&calls, 1); return errors.New("down") })

	if err := (Fanout{ok, bad}).Submit(context.Background(), Order{}); err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected both backends called, got %d", calls)
	}
	if err := (Fanout{bad, bad}).Submit(context.Background(), Order{}); err == nil {
		t.Fatalf("expected error when every backend fails")
	}
	if err := (Fanout{}).Submit(context.Background(), Order{}); err == nil {
		t.Fatalf("expected error with no backends")
	}
}

func TestSupabase_RequiresConfig(t *testing.T) {
	if _, err := NewSupabase(SupabaseConfig{}); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestSupabase_InsertsRow(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			path = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s, err := NewSupabase(SupabaseConfig{URL: srv.URL, ServiceRoleKey: "key", Table: "voice_orders"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Submit(context.Background(), Order{CustomerName: "Raj"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasSuffix(path, "/voice_orders") {
		t.Fatalf("expected insert into voice_orders, got path %q", path)
	}
	if body["customer_name"] != "Raj" {
		t.Fatalf("unexpected row %v", body)
	}
}
