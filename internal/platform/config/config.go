package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 20 * time.Second
	defaultEnvironment     = "local"
	defaultTokenTTL        = 7 * 24 * time.Hour
	defaultBcryptCost      = 10
	defaultPaymentProvider = "mock"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Auth      AuthConfig
	Payments  PaymentsConfig
	Events    EventsConfig
	Security  SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig controls token issuance and password hashing.
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// PaymentsConfig selects and configures the active payment provider.
type PaymentsConfig struct {
	Provider     string
	StripeAPIKey string
	SuccessURL   string
	CancelURL    string
}

// EventsConfig configures the Pub/Sub order event publisher.
type EventsConfig struct {
	ProjectID string
	TopicID   string
}

// SecurityConfig groups environment-level behaviour switches.
type SecurityConfig struct {
	Environment string
}

// IsProduction reports whether the process runs with production hardening.
func (s SecurityConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(s.Environment), "production")
}

// ValidationError aggregates the configuration fields that failed validation.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields: %s", strings.Join(e.fields, ", "))
}

// Fields lists the offending configuration keys.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loader)

type loader struct {
	envFile   string
	overrides map[string]string
	skipEnv   bool
}

// WithEnvFile overrides the dotenv file path consulted before the process env.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithEnvMap supplies values taking precedence over file and process env.
func WithEnvMap(values map[string]string) Option {
	return func(l *loader) {
		if l.overrides == nil {
			l.overrides = map[string]string{}
		}
		for k, v := range values {
			l.overrides[k] = v
		}
	}
}

// WithoutSystemEnv ignores the process environment, useful in tests.
func WithoutSystemEnv() Option {
	return func(l *loader) {
		l.skipEnv = true
	}
}

// Load reads configuration from the dotenv file and process environment.
func Load(opts ...Option) (Config, error) {
	l := loader{envFile: defaultEnvFile}
	for _, opt := range opts {
		if opt != nil {
			opt(&l)
		}
	}

	fileValues := map[string]string{}
	if l.envFile != "" {
		if parsed, err := godotenv.Read(l.envFile); err == nil {
			fileValues = parsed
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: read env file %s: %w", l.envFile, err)
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := l.overrides[key]; ok {
			return v, true
		}
		if !l.skipEnv {
			if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
				return v, true
			}
		}
		if v, ok := fileValues[key]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  stringWithDefault(lookup, "JWT_SECRET", ""),
			TokenTTL:   durationWithDefault(lookup, "JWT_TOKEN_TTL", defaultTokenTTL),
			BcryptCost: intWithDefault(lookup, "BCRYPT_COST", defaultBcryptCost),
		},
		Payments: PaymentsConfig{
			Provider:     strings.ToLower(stringWithDefault(lookup, "PAYMENTS_PROVIDER", defaultPaymentProvider)),
			StripeAPIKey: stringWithDefault(lookup, "STRIPE_API_KEY", ""),
			SuccessURL:   stringWithDefault(lookup, "PAYMENTS_SUCCESS_URL", ""),
			CancelURL:    stringWithDefault(lookup, "PAYMENTS_CANCEL_URL", ""),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "PUBSUB_PROJECT_ID", ""),
			TopicID:   stringWithDefault(lookup, "PUBSUB_ORDER_TOPIC", ""),
		},
		Security: SecurityConfig{
			Environment: stringWithDefault(lookup, "ENVIRONMENT", defaultEnvironment),
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var fields []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		fields = append(fields, "PORT")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		fields = append(fields, "JWT_SECRET")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		fields = append(fields, "BCRYPT_COST")
	}
	switch cfg.Payments.Provider {
	case "mock":
	case "stripe":
		if strings.TrimSpace(cfg.Payments.StripeAPIKey) == "" {
			fields = append(fields, "STRIPE_API_KEY")
		}
	default:
		fields = append(fields, "PAYMENTS_PROVIDER")
	}
	if cfg.Events.TopicID != "" && cfg.Events.ProjectID == "" && cfg.Firestore.ProjectID == "" {
		fields = append(fields, "PUBSUB_PROJECT_ID")
	}

	if len(fields) > 0 {
		sort.Strings(fields)
		return &ValidationError{fields: fields}
	}
	return nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	v, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}
