package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uleaarn/paahi-backend/internal/agent"
	"github.com/uleaarn/paahi-backend/internal/barge"
	"github.com/uleaarn/paahi-backend/internal/config"
	"github.com/uleaarn/paahi-backend/internal/health"
	"github.com/uleaarn/paahi-backend/internal/httpserver"
	"github.com/uleaarn/paahi-backend/internal/infra/storage"
	"github.com/uleaarn/paahi-backend/internal/llm"
	"github.com/uleaarn/paahi-backend/internal/mediastream"
	"github.com/uleaarn/paahi-backend/internal/metrics"
	"github.com/uleaarn/paahi-backend/internal/order"
	"github.com/uleaarn/paahi-backend/internal/transcript"
	"github.com/uleaarn/paahi-backend/internal/tts"
	"github.com/uleaarn/paahi-backend/internal/usecase"
)

const defaultInstructions = `You are a friendly phone assistant taking takeout orders.
Keep every reply to one or two short spoken sentences. Never use lists or markdown.
Collect the customer's name, a 10-digit callback phone number and the items they want.
Read the order back once, and when the customer confirms, call submit_order.`

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	m := metrics.New()

	model, checks := buildLLM(cfg)
	speech, ttsCheck := buildTTS(cfg)
	checks = append(checks, ttsCheck, health.Checker{Name: "deepgram", Check: transcript.NewKeyChecker(cfg.DeepgramKey).Ping})
	probes := health.New(checks...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		probes.LogStartup(ctx)
	}()

	orders := buildOrders(cfg)
	instructions := loadInstructions(cfg.InstructionsPath)
	location := cfg.Location()
	extractor := order.NewExtractor(cfg.MenuKeywords)

	manager := agent.NewManager(m)
	media := mediastream.NewHandler(manager, func(start mediastream.StartMessage, out agent.Outbound) (*agent.Session, error) {
		deps := agent.Deps{
			LLM:    model,
			TTS:    speech,
			Orders: orders,
			Out:    out,
		}
		if cfg.DeepgramKey != "" {
			deps.Transcriber = transcript.NewDeepgramService(cfg.DeepgramKey, cfg.DeepgramSTTModel, "")
		}
		if cfg.BargeIn {
			deps.Barge = barge.NewDetector(barge.DefaultConfig())
		}
		return agent.NewSession(agent.Config{
			StreamID:     start.StreamSID,
			CallSID:      start.CallSID,
			Instructions: instructions,
			Location:     location,
			Greeting:     cfg.Greeting,
			Cooldown:     cfg.STTCooldown,
			Extractor:    extractor,
			Metrics:      m,
		}, deps), nil
	})
	media.Metrics = m

	twilioSvc := usecase.NewTwilioService(usecase.TwilioConfig{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		PublicBaseURL: cfg.PublicBaseURL,
	}, buildRecordingStorage(cfg))
	if cfg.RecordCalls {
		media.Recorder = twilioSvc
	}

	e := httpserver.New(httpserver.Deps{
		Health:          probes,
		Metrics:         m,
		MediaStream:     media,
		Recordings:      twilioSvc,
		TwilioAuthToken: cfg.TwilioAuthToken,
		PublicBaseURL:   cfg.PublicBaseURL,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	// Hijacked media stream sockets are not tracked by Shutdown.
	manager.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

func buildLLM(cfg config.Config) (agent.LLM, []health.Checker) {
	if cfg.LLMProvider == config.ProviderCerebras {
		c := llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
		return c, []health.Checker{{Name: "llm", Check: func(ctx context.Context) error {
			if c.APIKey == "" {
				return errors.New("CEREBRAS_API_KEY not set")
			}
			return nil
		}}}
	}
	c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:     cfg.OpenAIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		MaxRetries: 1,
	})
	if err != nil {
		log.Printf("LLM disabled: %v", err)
		return unavailableLLM{err: err}, []health.Checker{{Name: "llm", Check: func(context.Context) error { return err }}}
	}
	return c, []health.Checker{{Name: "llm", Check: c.Ping}}
}

func buildTTS(cfg config.Config) (agent.TTS, health.Checker) {
	if cfg.TTSProvider == config.ProviderElevenLabs {
		c := tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsOutputFormat)
		return c, health.Checker{Name: "elevenlabs", Check: c.Ping}
	}
	c := tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramTTSModel)
	return c, health.Checker{Name: "deepgram_tts", Check: transcript.NewKeyChecker(cfg.DeepgramKey).Ping}
}

func buildOrders(cfg config.Config) agent.OrderSubmitter {
	var backends order.Fanout
	if cfg.OrderWebhookURL != "" {
		backends = append(backends, order.NewWebhook(cfg.OrderWebhookURL))
	}
	if cfg.SupabaseURL != "" {
		sb, err := order.NewSupabase(order.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Table:          cfg.SupabaseOrdersTable,
		})
		if err != nil {
			log.Printf("Supabase order intake disabled: %v", err)
		} else {
			backends = append(backends, sb)
		}
	}
	if len(backends) == 0 {
		return nil
	}
	return backends
}

func buildRecordingStorage(cfg config.Config) usecase.Storage {
	if !cfg.RecordCalls || cfg.SupabaseURL == "" {
		return nil
	}
	s, err := storage.NewSupabaseStorage(storage.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.SupabaseBucket,
	})
	if err != nil {
		log.Printf("recording archive disabled: %v", err)
		return nil
	}
	return s
}

func loadInstructions(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Warning: could not read instructions from %s - using built-in prompt: %v", path, err)
		return defaultInstructions
	}
	return string(b)
}

// unavailableLLM keeps calls answering with the apology when no model is
// configured.
type unavailableLLM struct{ err error }

func (u unavailableLLM) Respond(context.Context, agent.Request) (agent.Reply, error) {
	return agent.Reply{}, u.err
}
