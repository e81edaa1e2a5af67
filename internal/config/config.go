// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store backends.
const (
	StoreBackendAirtable = "airtable"
	StoreBackendSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	StoreBackend string
	DBPath       string

	Airtable AirtableConfig
	OpenAI   OpenAIConfig

	StreamBuffer int
}

// AirtableConfig holds connection settings for the external tabular store.
type AirtableConfig struct {
	BaseURL       string
	APIKey        string
	BaseID        string
	SessionsTable string
	MessagesTable string
}

// OpenAIConfig holds settings for the completion and speech APIs.
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	ChatModel string
	TTSModel  string
	TTSVoice  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		StoreBackend: getEnv("STORE_BACKEND", StoreBackendAirtable),
		DBPath:       getEnv("DB_PATH", "./data/synapz.db"),
		Airtable: AirtableConfig{
			BaseURL:       getEnv("AIRTABLE_BASE_URL", "https://api.airtable.com/v0"),
			APIKey:        getEnv("AIRTABLE_API_KEY", ""),
			BaseID:        getEnv("AIRTABLE_BASE_ID", ""),
			SessionsTable: getEnv("AIRTABLE_SESSIONS_TABLE", "Sessions"),
			MessagesTable: getEnv("AIRTABLE_MESSAGES_TABLE", "Messages"),
		},
		OpenAI: OpenAIConfig{
			BaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			ChatModel: getEnv("CHAT_MODEL", "gpt-4o-mini"),
			TTSModel:  getEnv("TTS_MODEL", "tts-1"),
			TTSVoice:  getEnv("TTS_VOICE", "alloy"),
		},
		StreamBuffer: getEnvInt("STREAM_BUFFER", 16),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case StoreBackendAirtable:
		if c.Airtable.APIKey == "" {
			return fmt.Errorf("AIRTABLE_API_KEY is required for the airtable backend")
		}
		if c.Airtable.BaseID == "" {
			return fmt.Errorf("AIRTABLE_BASE_ID is required for the airtable backend")
		}
	case StoreBackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreBackendAirtable, StoreBackendSQLite, c.StoreBackend)
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.StreamBuffer <= 0 {
		return fmt.Errorf("STREAM_BUFFER must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
