// Package config loads client and devserver settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"chat-client/internal/models"
)

var validate = validator.New()

// Client configures the chat client.
type Client struct {
	BaseURL       string `validate:"required,url"`
	WSURL         string `validate:"required,url"`
	Token         string
	SubAdminToken string
	UserID        string `validate:"required"`
	UserName      string
	Roles         []string

	Storage     string `validate:"oneof=file redis memory"`
	StoragePath string `validate:"required_if=Storage file"`
	RedisAddr   string `validate:"required_if=Storage redis"`

	ReconnectInitial time.Duration `validate:"gt=0"`
	ReconnectMax     time.Duration `validate:"gtefield=ReconnectInitial"`
	ReconnectRetries int           `validate:"gte=0"`
	HeartBeat        time.Duration `validate:"gte=0"`
	TypingDebounce   time.Duration `validate:"gt=0"`

	OTLPEndpoint string
}

// User returns the session identity.
func (c Client) User() models.User {
	return models.User{ID: models.ID(c.UserID), Name: c.UserName, Roles: c.Roles}
}

// Server configures the devserver.
type Server struct {
	Port         string `validate:"required,numeric"`
	DBDSN        string
	AMQPURL      string
	AMQPExchange string `validate:"required"`
	Tokens       map[string]models.User `validate:"min=1"`
	HeartBeat    time.Duration          `validate:"gte=0"`
	OTLPEndpoint string
	Environment  string
	DebugRoutes  bool
}

// LoadDotEnv reads .env when present. Existing variables win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}
}

// LoadClient reads the client configuration.
func LoadClient() (Client, error) {
	cfg := Client{
		BaseURL:          getEnv("CHAT_BASE_URL", "http://localhost:8083"),
		WSURL:            getEnv("CHAT_WS_URL", ""),
		Token:            os.Getenv("CHAT_TOKEN"),
		SubAdminToken:    os.Getenv("CHAT_SUBADMIN_TOKEN"),
		UserID:           os.Getenv("CHAT_USER_ID"),
		UserName:         getEnv("CHAT_USER_NAME", "Admin"),
		Roles:            splitList(os.Getenv("CHAT_ROLES")),
		Storage:          getEnv("CHAT_STORAGE", "file"),
		StoragePath:      getEnv("CHAT_STORAGE_PATH", defaultStoragePath()),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		ReconnectInitial: getEnvDuration("CHAT_RECONNECT_INITIAL", time.Second),
		ReconnectMax:     getEnvDuration("CHAT_RECONNECT_MAX", 30*time.Second),
		ReconnectRetries: getEnvInt("CHAT_RECONNECT_RETRIES", 8),
		HeartBeat:        getEnvDuration("CHAT_HEARTBEAT", 10*time.Second),
		TypingDebounce:   getEnvDuration("CHAT_TYPING_DEBOUNCE", 2*time.Second),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DeriveWSURL(cfg.BaseURL)
	}
	return cfg, cfg.Validate()
}

// Validate checks the struct tags.
func (c Client) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}

// LoadServer reads the devserver configuration.
func LoadServer() (Server, error) {
	tokens, err := ParseTokens(getEnv("DEV_TOKENS", "dev-admin:1:Admin,dev-guest:2:Guest"))
	if err != nil {
		return Server{}, err
	}
	cfg := Server{
		Port:         getEnv("PORT", "8083"),
		DBDSN:        os.Getenv("DB_DSN"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat.events"),
		Tokens:       tokens,
		HeartBeat:    getEnvDuration("CHAT_HEARTBEAT", 10*time.Second),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:  getEnv("APP_ENV", "dev"),
		DebugRoutes:  getEnv("DEBUG_ROUTES", "false") == "true",
	}
	if err := validate.Struct(cfg); err != nil {
		return Server{}, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

// ParseTokens parses "token:userId:name,..." into a token table.
func ParseTokens(spec string) (map[string]models.User, error) {
	out := make(map[string]models.User)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid token entry %q", entry)
		}
		u := models.User{ID: models.ID(parts[1])}
		if len(parts) == 3 {
			u.Name = parts[2]
		}
		out[parts[0]] = u
	}
	if len(out) == 0 {
		return nil, errors.New("no tokens configured")
	}
	return out, nil
}

// DeriveWSURL maps an http(s) base URL to the ws(s) STOMP endpoint.
func DeriveWSURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/ws"
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chat-client", "prefs.json")
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("ignoring invalid integer", "key", key, "value", val)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("ignoring invalid duration", "key", key, "value", val)
		return fallback
	}
	return d
}
