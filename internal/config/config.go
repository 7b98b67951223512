package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	NatsURL     string
	DatabaseURL string
	LogLevel    string

	// Audio path.
	AnalysisSampleRate int     // wide-band rate forwarded to the analysis provider (16000 or 24000)
	SilenceRMS         float64 // frames below this RMS count as silence
	DropoutSilence     time.Duration

	// Distress detection.
	DistressThreshold float64
	KeywordConfidence float64
	DistressKeywords  []string
	CountdownDuration time.Duration

	// Record dispatch.
	DispatchFlushInterval  time.Duration
	DispatchFlushThreshold int
	DispatchBufferMax      int

	// Session registry.
	SessionCapacity int

	NotifyWebhookURL string
}

func Load() Config {
	return Config{
		Port:        envInt("GUARDIAN_PORT", 8710),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		AnalysisSampleRate: envInt("ANALYSIS_SAMPLE_RATE", 16000),
		SilenceRMS:         envFloat("SILENCE_RMS_THRESHOLD", 500),
		DropoutSilence:     time.Duration(envInt("DROPOUT_SILENCE_MS", 15000)) * time.Millisecond,

		DistressThreshold: envFloat("DISTRESS_THRESHOLD", 0.7),
		KeywordConfidence: envFloat("KEYWORD_CONFIDENCE", 0.9),
		DistressKeywords:  envList("DISTRESS_KEYWORDS", nil),
		CountdownDuration: time.Duration(envInt("ALERT_COUNTDOWN_MS", 30000)) * time.Millisecond,

		DispatchFlushInterval:  time.Duration(envInt("DISPATCH_FLUSH_INTERVAL_MS", 2000)) * time.Millisecond,
		DispatchFlushThreshold: envInt("DISPATCH_FLUSH_THRESHOLD", 50),
		DispatchBufferMax:      envInt("DISPATCH_BUFFER_MAX", 10000),

		SessionCapacity: envInt("SESSION_CAPACITY", 4096),

		NotifyWebhookURL: envStr("NOTIFY_WEBHOOK_URL", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envList parses a comma-separated list, trimming whitespace and dropping empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
