package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	for _, k := range []string{"HTTP_ADDRESS", "PORT", "LLM_PROVIDER", "TTS_PROVIDER", "CEREBRAS_MODEL_ID", "STT_COOLDOWN_MS", "BARGE_IN", "RECORD_CALLS", "MENU_KEYWORDS", "ORDER_WEBHOOK_URL", "N8N_WEBHOOK_URL", "GREETING"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("expected default http address, got %q", cfg.HTTPAddress)
	}
	if cfg.LLMProvider != ProviderOpenAI || cfg.TTSProvider != ProviderDeepgram {
		t.Fatalf("unexpected providers %s/%s", cfg.LLMProvider, cfg.TTSProvider)
	}
	if cfg.CerebrasModelID == "" || cfg.OpenAIModel == "" {
		t.Fatalf("expected default model ids")
	}
	if cfg.STTCooldown != 250*time.Millisecond {
		t.Fatalf("expected 250ms cooldown, got %v", cfg.STTCooldown)
	}
	if cfg.BargeIn || cfg.RecordCalls {
		t.Fatalf("expected opt-in features off")
	}
	if cfg.Greeting != DefaultGreeting {
		t.Fatalf("expected default greeting")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("PORT", "3000")
	t.Setenv("LLM_PROVIDER", "Cerebras")
	t.Setenv("TTS_PROVIDER", "bogus")
	t.Setenv("STT_COOLDOWN_MS", "400")
	t.Setenv("BARGE_IN", "true")
	t.Setenv("MENU_KEYWORDS", " biryani, naan ,,lassi")
	t.Setenv("ORDER_WEBHOOK_URL", "")
	t.Setenv("N8N_WEBHOOK_URL", "https://n8n.example/webhook")
	t.Setenv("PUBLIC_BASE_URL", "https://voice.example.org/")
	t.Setenv("RECORD_CALLS", "true")
	t.Setenv("TWILIO_ACCOUNT_SID", "")

	cfg := Load()
	if cfg.HTTPAddress != ":3000" {
		t.Fatalf("expected PORT fallback, got %q", cfg.HTTPAddress)
	}
	if cfg.LLMProvider != ProviderCerebras {
		t.Fatalf("expected cerebras, got %s", cfg.LLMProvider)
	}
	if cfg.TTSProvider != ProviderDeepgram {
		t.Fatalf("expected unknown tts provider to fall back, got %s", cfg.TTSProvider)
	}
	if cfg.STTCooldown != 400*time.Millisecond || !cfg.BargeIn {
		t.Fatalf("unexpected cooldown/barge %v/%v", cfg.STTCooldown, cfg.BargeIn)
	}
	if len(cfg.MenuKeywords) != 3 || cfg.MenuKeywords[1] != "naan" {
		t.Fatalf("unexpected keywords %v", cfg.MenuKeywords)
	}
	if cfg.OrderWebhookURL != "https://n8n.example/webhook" {
		t.Fatalf("expected N8N alias, got %q", cfg.OrderWebhookURL)
	}
	if cfg.PublicBaseURL != "https://voice.example.org" {
		t.Fatalf("expected trimmed base url, got %q", cfg.PublicBaseURL)
	}
	if cfg.RecordCalls {
		t.Fatalf("recording must be disabled without credentials")
	}
}

func TestLocation(t *testing.T) {
	if loc := (Config{Timezone: "Not/AZone"}).Location(); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
	if loc := (Config{Timezone: "America/New_York"}).Location(); loc.String() != "America/New_York" {
		t.Fatalf("unexpected location %v", loc)
	}
}
