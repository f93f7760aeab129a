package app

import (
	"os"
)

type Config struct {
	// GeminiAPIKey authenticates both the live channel and the HTTP
	// generation endpoints.
	GeminiAPIKey string

	// Tutor voice session settings.
	LiveModel string
	VoiceName string

	// Models for the HTTP generation endpoints.
	ImageModel  string
	IngestModel string

	// Local persistence.
	DBPath      string
	StudentName string

	SentryDSN string
	LogLevel  string
}

func LoadConfigFromEnv() Config {
	return Config{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"), // Required - no fallback

		LiveModel: getenv("SHIKSHA_LIVE_MODEL", "models/gemini-2.5-flash-native-audio-preview-12-2025"),
		VoiceName: getenv("SHIKSHA_VOICE", "Kore"),

		ImageModel:  getenv("SHIKSHA_IMAGE_MODEL", ""),  // empty = imagegen default
		IngestModel: getenv("SHIKSHA_INGEST_MODEL", ""), // empty = ingest default

		DBPath:      getenv("SHIKSHA_DB_PATH", "shiksha.db"),
		StudentName: getenv("SHIKSHA_STUDENT_NAME", "Saachi"),

		SentryDSN: getenv("SENTRY_DSN", ""),
		LogLevel:  getenv("LOG_LEVEL", "info"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
