// Package httpserver wires the echo HTTP surface: Twilio webhooks, the
// Media Streams websocket, health and metrics.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/uleaarn/paahi-backend/internal/health"
	"github.com/uleaarn/paahi-backend/internal/metrics"
	twiliomw "github.com/uleaarn/paahi-backend/internal/middleware"
	"github.com/uleaarn/paahi-backend/internal/usecase"
)

// MediaStreamPath is the websocket route Twilio streams call audio to.
const MediaStreamPath = "/media-stream"

// Recordings archives finished call recordings.
type Recordings interface {
	ArchivesRecordings() bool
	ArchiveRecording(ctx context.Context, recordingURL, fileName string) error
}

type Deps struct {
	Health      *health.Handler
	Metrics     *metrics.Metrics
	MediaStream http.Handler
	Recordings  Recordings

	TwilioAuthToken string
	PublicBaseURL   string
}

// New creates a configured Echo server instance.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(twiliomw.TwilioAuth(d.TwilioAuthToken, d.PublicBaseURL))

	if d.Health == nil {
		d.Health = health.New()
	}
	e.GET("/healthz", d.Health.Healthz)
	e.GET("/health", d.Health.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}
	if d.MediaStream != nil {
		e.GET(MediaStreamPath, echo.WrapHandler(d.MediaStream))
	}

	h := handlers{recordings: d.Recordings, publicBaseURL: d.PublicBaseURL, archiveTimeout: 30 * time.Second}
	e.POST("/twilio/voice", h.voice)
	e.POST(usecase.RecordingStatusPath, h.recordingStatus)
	return e
}
