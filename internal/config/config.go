package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the switchboard service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// PublicDomain is the externally reachable base URL used to build the
	// callback and media-stream URLs handed to the telephony provider.
	PublicDomain string

	DatabaseURL string
	RedisURL    string

	CallQueue string
	SMSQueue  string
	PostQueue string

	BotPhoneNumber   string
	AgentPhoneNumber string

	// AvailableLangs drives the language IVR menu; DefaultLang is used when
	// the caller never picks one.
	AvailableLangs []string
	DefaultLang    string

	ProviderEndpoint  string
	ProviderAccessKey string

	TokenJWKSURL  string
	TokenIssuer   string
	TokenAudience string

	RecognitionRetryMax int

	StreamChannelCapacity int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "switchboard"),
		PublicDomain:          stringsTrimSpace("APP_PUBLIC_DOMAIN"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		RedisURL:              stringsTrimSpace("REDIS_URL"),
		CallQueue:             envOrDefault("QUEUE_CALL_NAME", "call"),
		SMSQueue:              envOrDefault("QUEUE_SMS_NAME", "sms"),
		PostQueue:             envOrDefault("QUEUE_POST_NAME", "post"),
		BotPhoneNumber:        stringsTrimSpace("BOT_PHONE_NUMBER"),
		AgentPhoneNumber:      stringsTrimSpace("AGENT_PHONE_NUMBER"),
		AvailableLangs:        splitList(envOrDefault("AVAILABLE_LANGS", "en-US")),
		ProviderEndpoint:      stringsTrimSpace("PROVIDER_ENDPOINT"),
		ProviderAccessKey:     stringsTrimSpace("PROVIDER_ACCESS_KEY"),
		TokenJWKSURL:          envOrDefault("TOKEN_JWKS_URL", "https://acscallautomation.communication.azure.com/calling/keys"),
		TokenIssuer:           envOrDefault("TOKEN_ISSUER", "https://acscallautomation.communication.azure.com"),
		TokenAudience:         stringsTrimSpace("TOKEN_AUDIENCE"),
		RecognitionRetryMax:   3,
		StreamChannelCapacity: 64,
		ShutdownTimeout:       15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecognitionRetryMax, err = intFromEnv("RECOGNITION_RETRY_MAX", cfg.RecognitionRetryMax)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamChannelCapacity, err = intFromEnv("STREAM_CHANNEL_CAPACITY", cfg.StreamChannelCapacity)
	if err != nil {
		return Config{}, err
	}

	if cfg.PublicDomain == "" {
		return Config{}, fmt.Errorf("APP_PUBLIC_DOMAIN must be set")
	}
	if u, err := url.Parse(cfg.PublicDomain); err != nil || u.Scheme != "https" || u.Host == "" {
		return Config{}, fmt.Errorf("APP_PUBLIC_DOMAIN must be an https URL")
	}
	if cfg.RecognitionRetryMax <= 0 {
		return Config{}, fmt.Errorf("RECOGNITION_RETRY_MAX must be positive")
	}
	if cfg.StreamChannelCapacity <= 0 {
		return Config{}, fmt.Errorf("STREAM_CHANNEL_CAPACITY must be positive")
	}
	if len(cfg.AvailableLangs) == 0 {
		return Config{}, fmt.Errorf("AVAILABLE_LANGS must list at least one language")
	}
	cfg.DefaultLang = envOrDefault("DEFAULT_LANG", cfg.AvailableLangs[0])

	return cfg, nil
}

// CallbackURLTemplate returns the https callback template with {call_id} and
// {secret} placeholders left for the registry to substitute.
func (c Config) CallbackURLTemplate() string {
	return strings.TrimSuffix(c.PublicDomain, "/") + "/communicationservices/callback/{call_id}/{secret}"
}

// StreamURLTemplate returns the wss media-stream template.
func (c Config) StreamURLTemplate() string {
	base := strings.TrimSuffix(c.PublicDomain, "/")
	base = "wss://" + strings.TrimPrefix(base, "https://")
	return base + "/communicationservices/wss/{call_id}/{secret}"
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
