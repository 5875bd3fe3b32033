package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	VariantOrchestrator = "orchestrator"
	VariantMock         = "mock"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Function FunctionConfig `yaml:"function"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Store    StoreConfig    `yaml:"store"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port     string `yaml:"port" env:"PORT"`
	GRPCPort string `yaml:"grpc_port" env:"GRPC_PORT"`
}

type FunctionConfig struct {
	// Variant selects which handler answers /processPlantImage.
	Variant          string `yaml:"variant" env:"FUNCTION_VARIANT"`
	Emulator         bool   `yaml:"emulator" env:"FUNCTIONS_EMULATOR"`
	ProjectID        string `yaml:"project_id" env:"PROJECT_ID"`
	Region           string `yaml:"region" env:"REGION"`
	InferenceBaseURL string `yaml:"inference_base_url" env:"INFERENCE_BASE_URL"`
}

type GatewayConfig struct {
	Timeout          time.Duration `yaml:"timeout" env:"GATEWAY_TIMEOUT"`
	TransportRetries int           `yaml:"transport_retries" env:"GATEWAY_TRANSPORT_RETRIES"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" env:"STORE_DRIVER"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
}

type EventsConfig struct {
	SinkURL   string `yaml:"sink_url" env:"K_SINK"`
	SourceID  string `yaml:"source_id" env:"SOURCE_ID"`
	EventType string `yaml:"type" env:"DIAGNOSIS_EVENT_TYPE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080", GRPCPort: "9090"},
		Function: FunctionConfig{
			Variant:   VariantOrchestrator,
			ProjectID: "agroai-phoenix",
			Region:    "us-central1",
		},
		Gateway: GatewayConfig{Timeout: 30 * time.Second, TransportRetries: 1},
		Store:   StoreConfig{Driver: StoreMemory},
		Events: EventsConfig{
			SourceID:  "agro-ai/process-plant-image",
			EventType: "plant.diagnosis.created",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads .env (if present), then the file named by CONFIG_FILE, then the
// process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(getEnv("CONFIG_FILE", "config.yaml"))
}

// LoadFrom applies defaults, the optional YAML file at path and finally the
// environment, in that order of precedence.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return errors.New("PORT environment variable must be set")
	}

	c.Function.Variant = strings.ToLower(strings.TrimSpace(c.Function.Variant))
	switch c.Function.Variant {
	case VariantOrchestrator, VariantMock:
	default:
		return fmt.Errorf("unknown function variant %q", c.Function.Variant)
	}

	if c.Function.ProjectID == "" || c.Function.Region == "" {
		return errors.New("project id and region are required")
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Gateway.TransportRetries < 0 {
		c.Gateway.TransportRetries = 0
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
