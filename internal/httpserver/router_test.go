package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/uleaarn/paahi-backend/internal/metrics"
	twiliomw "github.com/uleaarn/paahi-backend/internal/middleware"
)

type fakeRecordings struct {
	archive bool
	done    chan string
}

func (f *fakeRecordings) ArchivesRecordings() bool { return f.archive }

func (f *fakeRecordings) ArchiveRecording(ctx context.Context, recordingURL, fileName string) error {
	f.done <- recordingURL + " " + fileName
	return nil
}

func postForm(e *echo.Echo, path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Host = "abc.ngrok.app"
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	return w
}

func TestServer_Healthz(t *testing.T) {
	e := New(Deps{})
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with no probes, got %d", w.Code)
	}
}

func TestVoice_ConnectsMediaStream(t *testing.T) {
	e := New(Deps{})
	w := postForm(e, "/twilio/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15551234567"}}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Connect") || !strings.Contains(body, "<Stream") {
		t.Fatalf("expected Connect/Stream TwiML, got %s", body)
	}
	if !strings.Contains(body, "wss://abc.ngrok.app/media-stream") {
		t.Fatalf("expected stream url from host, got %s", body)
	}
	if ct := w.Header().Get(echo.HeaderContentType); ct != "application/xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestVoice_PublicBaseURL(t *testing.T) {
	e := New(Deps{PublicBaseURL: "https://voice.example.org"})
	w := postForm(e, "/twilio/voice", url.Values{"CallSid": {"CA1"}}, nil)
	if !strings.Contains(w.Body.String(), "wss://voice.example.org/media-stream") {
		t.Fatalf("expected configured stream url, got %s", w.Body.String())
	}
}

func TestVoice_RequiresSignatureWhenConfigured(t *testing.T) {
	e := New(Deps{TwilioAuthToken: "secret"})
	form := url.Values{"CallSid": {"CA1"}}
	if w := postForm(e, "/twilio/voice", form, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	sig := twiliomw.Signature("secret", "https://abc.ngrok.app/twilio/voice", map[string]string{"CallSid": "CA1"})
	if w := postForm(e, "/twilio/voice", form, map[string]string{"X-Twilio-Signature": sig}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with signature, got %d", w.Code)
	}
}

func TestRecordingStatus_ArchivesCompleted(t *testing.T) {
	rec := &fakeRecordings{archive: true, done: make(chan string, 1)}
	e := New(Deps{Recordings: rec})
	w := postForm(e, "/twilio/recording-status", url.Values{
		"CallSid":         {"CA1"},
		"RecordingSid":    {"RE1"},
		"RecordingUrl":    {"https://api.twilio.com/rec/RE1"},
		"RecordingStatus": {"completed"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	select {
	case got := <-rec.done:
		if !strings.HasPrefix(got, "https://api.twilio.com/rec/RE1 recording_RE1_") {
			t.Fatalf("unexpected archive call %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected archive")
	}
}

func TestRecordingStatus_NoArchive(t *testing.T) {
	rec := &fakeRecordings{done: make(chan string, 1)}
	e := New(Deps{Recordings: rec})
	for _, status := range []string{"in-progress", "completed", "absent"} {
		w := postForm(e, "/twilio/recording-status", url.Values{"RecordingSid": {"RE1"}, "RecordingUrl": {"u"}, "RecordingStatus": {status}}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", status, w.Code)
		}
	}
	select {
	case got := <-rec.done:
		t.Fatalf("unexpected archive %q", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRoutes_MetricsAndMediaStream(t *testing.T) {
	m := metrics.New()
	m.SessionOpened()
	media := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	e := New(Deps{Metrics: m, MediaStream: media})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "sessions") {
		t.Fatalf("unexpected metrics response %d", w.Code)
	}
	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, MediaStreamPath, nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("expected media stream handler, got %d", w.Code)
	}
}
