package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Provider      ProviderConfig      `yaml:"provider"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig selects the action-plan store backend. The memory driver
// needs no further settings; sqlite needs a path; postgres needs a DSN.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// ProviderConfig describes the single LLM backend this process talks to.
// The provider is chosen once at startup; request handling never branches
// on provider kind.
type ProviderConfig struct {
	Kind          string  `yaml:"kind"`
	Model         string  `yaml:"model"`
	BaseURL       string  `yaml:"base_url"`
	Temperature   float32 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	PlanMaxTokens int     `yaml:"plan_max_tokens"`
	Streaming     bool    `yaml:"streaming"`
	TimeoutMS     int     `yaml:"timeout_ms"`

	// APIKey is only ever sourced from the environment, never from the
	// config file, so it cannot end up committed alongside deploy configs.
	APIKey string `yaml:"-"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
}

const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "strive-assistant"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Storage: StorageConfig{
			Driver: "memory",
			Path:   "./data/assistant.db",
		},
		Provider: ProviderConfig{
			Kind:          ProviderOpenAI,
			Model:         "gpt-4-turbo-preview",
			Temperature:   0.7,
			MaxTokens:     1500,
			PlanMaxTokens: 2000,
			Streaming:     true,
			TimeoutMS:     60000,
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
			// Reject multi-document configs to keep runtime configuration
			// unambiguous and avoid hidden trailing documents.
			var trailing any
			trailingErr := decoder.Decode(&trailing)
			if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, trailingErr)
			}
			if trailing != nil {
				return Config{}, fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration invariants required at runtime. A missing
// API key for the configured provider is a validation failure: the process
// must refuse to serve rather than fail per-request.
func Validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)
	}

	switch strings.TrimSpace(cfg.Storage.Driver) {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required when storage.driver=sqlite")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite, or postgres (got %q)", cfg.Storage.Driver)
	}

	if err := validateProvider(cfg.Provider); err != nil {
		return err
	}

	return validateOTel(cfg.Observability.OTel)
}

func validateProvider(provider ProviderConfig) error {
	kind := strings.TrimSpace(provider.Kind)
	switch kind {
	case ProviderOpenAI, ProviderGroq, ProviderGemini:
	default:
		return fmt.Errorf("provider.kind must be openai, groq, or gemini (got %q)", provider.Kind)
	}

	if strings.TrimSpace(provider.Model) == "" {
		return errors.New("provider.model must not be empty")
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		return fmt.Errorf("%s is required when provider.kind=%s", APIKeyEnvVar(kind), kind)
	}
	if provider.MaxTokens <= 0 {
		return fmt.Errorf("provider.max_tokens must be positive (got %d)", provider.MaxTokens)
	}
	if provider.PlanMaxTokens <= 0 {
		return fmt.Errorf("provider.plan_max_tokens must be positive (got %d)", provider.PlanMaxTokens)
	}
	if provider.TimeoutMS <= 0 {
		return fmt.Errorf("provider.timeout_ms must be positive (got %d)", provider.TimeoutMS)
	}
	return nil
}

func validateOTel(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint must not be empty when otel is enabled")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return errors.New("observability.otel.service_name must not be empty when otel is enabled")
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %g)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be positive (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be positive (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

// APIKeyEnvVar names the environment variable holding the credential for a
// provider kind.
func APIKeyEnvVar(kind string) string {
	switch strings.TrimSpace(kind) {
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("ASSISTANT_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("ASSISTANT_PORT"); port != "" {
		v, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid ASSISTANT_PORT: %w", err)
		}
		cfg.Server.Port = v
	}

	if driver := os.Getenv("ASSISTANT_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if path := os.Getenv("ASSISTANT_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if dsn := os.Getenv("ASSISTANT_STORAGE_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}

	if kind := os.Getenv("ASSISTANT_PROVIDER"); kind != "" {
		cfg.Provider.Kind = kind
	}
	if model := os.Getenv("ASSISTANT_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if baseURL := os.Getenv("ASSISTANT_PROVIDER_BASE_URL"); baseURL != "" {
		cfg.Provider.BaseURL = baseURL
	}
	if streaming := os.Getenv("ASSISTANT_STREAMING"); streaming != "" {
		v, err := strconv.ParseBool(streaming)
		if err != nil {
			return fmt.Errorf("invalid ASSISTANT_STREAMING: %w", err)
		}
		cfg.Provider.Streaming = v
	}
	if timeoutMS := os.Getenv("ASSISTANT_PROVIDER_TIMEOUT_MS"); timeoutMS != "" {
		v, err := strconv.Atoi(timeoutMS)
		if err != nil {
			return fmt.Errorf("invalid ASSISTANT_PROVIDER_TIMEOUT_MS: %w", err)
		}
		cfg.Provider.TimeoutMS = v
	}
	cfg.Provider.APIKey = os.Getenv(APIKeyEnvVar(cfg.Provider.Kind))

	if enabled := os.Getenv("ASSISTANT_OTEL_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid ASSISTANT_OTEL_ENABLED: %w", err)
		}
		cfg.Observability.OTel.Enabled = v
	}
	if endpoint := os.Getenv("ASSISTANT_OTEL_ENDPOINT"); endpoint != "" {
		cfg.Observability.OTel.Endpoint = endpoint
	}
	if serviceName := os.Getenv("ASSISTANT_OTEL_SERVICE_NAME"); serviceName != "" {
		cfg.Observability.OTel.ServiceName = serviceName
	}
	if ratio := os.Getenv("ASSISTANT_OTEL_SAMPLING_RATIO"); ratio != "" {
		v, err := strconv.ParseFloat(ratio, 64)
		if err != nil {
			return fmt.Errorf("invalid ASSISTANT_OTEL_SAMPLING_RATIO: %w", err)
		}
		cfg.Observability.OTel.SamplingRatio = v
	}

	return nil
}
