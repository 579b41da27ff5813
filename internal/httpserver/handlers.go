package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	twiliomw "github.com/uleaarn/paahi-backend/internal/middleware"
	"github.com/uleaarn/paahi-backend/internal/usecase"
)

type handlers struct {
	recordings     Recordings
	publicBaseURL  string
	archiveTimeout time.Duration
}

// voice answers an incoming call by connecting it to the media stream.
func (h handlers) voice(c echo.Context) error {
	params, ok := twiliomw.Params(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}
	c.Echo().Logger.Infof("Call %s from %s to %s", params["CallSid"], params["From"], params["To"])

	streamURL := usecase.StreamURL(usecase.BuildAbsoluteURL(h.publicBaseURL, c.Request(), MediaStreamPath))
	stream := &twiml.VoiceStream{Url: streamURL}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	response, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

func (h handlers) recordingStatus(c echo.Context) error {
	params, ok := twiliomw.Params(c)
	if !ok {
		return c.String(http.StatusInternalServerError, "Failed to get Twilio parameters")
	}

	callSid := params["CallSid"]
	recordingSid := params["RecordingSid"]
	recordingURL := params["RecordingUrl"]
	recordingStatus := params["RecordingStatus"]
	c.Echo().Logger.Infof("Recording status update: call=%s SID=%s Status=%s Duration=%s", callSid, recordingSid, recordingStatus, params["RecordingDuration"])

	switch recordingStatus {
	case "completed":
		if h.recordings == nil || !h.recordings.ArchivesRecordings() || recordingURL == "" {
			c.Echo().Logger.Infof("Recording is available on Twilio: %s", recordingURL)
			break
		}
		fileName := usecase.RecordingFileName(recordingSid, time.Now())
		logger := c.Echo().Logger
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.archiveTimeout)
			defer cancel()
			if err := h.recordings.ArchiveRecording(ctx, recordingURL, fileName); err != nil {
				logger.Errorf("Failed to archive recording %s: %v", recordingSid, err)
				return
			}
			logger.Infof("Recording archived: %s", fileName)
		}()
	case "failed", "absent":
		c.Echo().Logger.Errorf("Recording failed or is absent: SID=%s, Status=%s", recordingSid, recordingStatus)
	}

	return c.String(http.StatusOK, "OK")
}
