package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting the service reads.
type Config struct {
	Server ServerConfig
	Ollama OllamaConfig
	Search SearchConfig
	Store  StoreConfig
	Log    LogConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ollama, err := loadOllamaConfig()
	if err != nil {
		return nil, err
	}

	search, err := loadSearchConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Ollama: ollama,
		Search: search,
		Store:  StoreConfig{Path: getEnvOrDefault("DB_PATH", "data/conversations.db")},
		Log: LogConfig{
			Dir:   getEnvOrDefault("LOG_DIR", "logs"),
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Accept ":8000" or "127.0.0.1:8000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// OllamaConfig describes the inference backend.
type OllamaConfig struct {
	Host  string
	Model string

	// InlineStreamErrors folds backend failures into a final text fragment
	// of the reply stream instead of a tagged error, preserving the legacy
	// wire behavior.
	InlineStreamErrors bool
}

func loadOllamaConfig() (OllamaConfig, error) {
	inline, err := parseBoolEnv("OLLAMA_INLINE_STREAM_ERRORS", true)
	if err != nil {
		return OllamaConfig{}, err
	}

	return OllamaConfig{
		Host:               getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		Model:              getEnvOrDefault("OLLAMA_MODEL", "tinyllama"),
		InlineStreamErrors: inline,
	}, nil
}

// SearchConfig describes the web enrichment backend.
type SearchConfig struct {
	MaxResults int
	Timeout    time.Duration
	UserAgent  string
}

func loadSearchConfig() (SearchConfig, error) {
	maxResults := 5
	if override, err := parseOptionalIntEnv("SEARCH_MAX_RESULTS"); err != nil {
		return SearchConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SearchConfig{}, fmt.Errorf("SEARCH_MAX_RESULTS must be positive, got %d", *override)
		}
		maxResults = *override
	}

	timeout := 10 * time.Second
	if override, err := parseOptionalIntEnv("SEARCH_TIMEOUT_SECONDS"); err != nil {
		return SearchConfig{}, err
	} else if override != nil {
		timeout = time.Duration(*override) * time.Second
	}

	return SearchConfig{
		MaxResults: maxResults,
		Timeout:    timeout,
		UserAgent:  getEnvOrDefault("SEARCH_USER_AGENT", ""),
	}, nil
}

// StoreConfig describes the conversation database.
type StoreConfig struct {
	Path string
}

// LogConfig describes where rotated logs are written and how verbose they are.
type LogConfig struct {
	Dir   string
	Level string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
