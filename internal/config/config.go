package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by LLM_PROVIDER and TTS_PROVIDER.
const (
	ProviderOpenAI     = "openai"
	ProviderCerebras   = "cerebras"
	ProviderDeepgram   = "deepgram"
	ProviderElevenLabs = "elevenlabs"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PublicBaseURL string

	TwilioAccountSID string
	TwilioAuthToken  string
	RecordCalls      bool

	DeepgramKey      string
	DeepgramSTTModel string
	DeepgramTTSModel string

	TTSProvider            string
	ElevenLabsKey          string
	ElevenLabsVoiceID      string
	ElevenLabsOutputFormat string

	LLMProvider     string
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	CerebrasKey     string
	CerebrasModelID string

	OrderWebhookURL        string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseOrdersTable    string
	SupabaseBucket         string

	InstructionsPath string
	Greeting         string
	MenuKeywords     []string
	Timezone         string
	BargeIn          bool
	STTCooldown      time.Duration
}

// DefaultGreeting is spoken shortly after a stream starts.
const DefaultGreeting = "Hello! Thank you for calling. How can I help you today?"

// Load reads .env and environment variables and returns Config with sane
// defaults. Missing provider keys are logged, not fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":" + getEnv("PORT", "8080")
	}

	cfg := Config{
		HTTPAddress:   addr,
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		RecordCalls:      getBool("RECORD_CALLS", false),

		DeepgramKey:      os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramSTTModel: os.Getenv("DEEPGRAM_STT_MODEL"),
		DeepgramTTSModel: os.Getenv("DEEPGRAM_TTS_MODEL"),

		TTSProvider:            strings.ToLower(getEnv("TTS_PROVIDER", ProviderDeepgram)),
		ElevenLabsKey:          os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:      os.Getenv("ELEVENLABS_VOICE_ID"),
		ElevenLabsOutputFormat: getEnv("ELEVENLABS_OUTPUT_FORMAT", "pcm_16000"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.deepseek.com"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "deepseek-chat"),
		CerebrasKey:     os.Getenv("CEREBRAS_API_KEY"),
		CerebrasModelID: getEnv("CEREBRAS_MODEL_ID", "llama3.1-8b"),

		OrderWebhookURL:        getEnv("ORDER_WEBHOOK_URL", os.Getenv("N8N_WEBHOOK_URL")),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseOrdersTable:    getEnv("SUPABASE_ORDERS_TABLE", "orders"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "voice-recording"),

		InstructionsPath: getEnv("INSTRUCTIONS_PATH", "prompts/system-instructions.md"),
		Greeting:         getEnv("GREETING", DefaultGreeting),
		MenuKeywords:     splitList(os.Getenv("MENU_KEYWORDS")),
		Timezone:         getEnv("TIMEZONE", "America/New_York"),
		BargeIn:          getBool("BARGE_IN", false),
		STTCooldown:      getMillis("STT_COOLDOWN_MS", 250*time.Millisecond),
	}

	if cfg.DeepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - transcription will not work")
	}
	switch cfg.LLMProvider {
	case ProviderCerebras:
		if cfg.CerebrasKey == "" {
			log.Println("Warning: CEREBRAS_API_KEY not set - LLM will not work")
		}
	default:
		if cfg.LLMProvider != ProviderOpenAI {
			log.Printf("Warning: unknown LLM_PROVIDER %q - using %s", cfg.LLMProvider, ProviderOpenAI)
			cfg.LLMProvider = ProviderOpenAI
		}
		if cfg.OpenAIKey == "" {
			log.Println("Warning: OPENAI_API_KEY not set - LLM will not work")
		}
	}
	switch cfg.TTSProvider {
	case ProviderElevenLabs:
		if cfg.ElevenLabsKey == "" {
			log.Println("Warning: ELEVENLABS_API_KEY not set - TTS will not work")
		}
	default:
		if cfg.TTSProvider != ProviderDeepgram {
			log.Printf("Warning: unknown TTS_PROVIDER %q - using %s", cfg.TTSProvider, ProviderDeepgram)
			cfg.TTSProvider = ProviderDeepgram
		}
	}
	if cfg.OrderWebhookURL == "" && cfg.SupabaseURL == "" {
		log.Println("Warning: no ORDER_WEBHOOK_URL or SUPABASE_URL set - orders will only be logged")
	}
	if cfg.RecordCalls && (cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.PublicBaseURL == "") {
		log.Println("Warning: RECORD_CALLS needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and PUBLIC_BASE_URL - recording disabled")
		cfg.RecordCalls = false
	}

	log.Printf("config: HTTP_ADDRESS=%s LLM=%s TTS=%s", cfg.HTTPAddress, cfg.LLMProvider, cfg.TTSProvider)
	return cfg
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: unknown TIMEZONE %q - using UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q - using %v", key, v, defaultValue)
		return defaultValue
	}
	return b
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		log.Printf("Warning: invalid %s=%q - using %v", key, v, defaultValue)
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
