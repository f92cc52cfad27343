package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the orchestrator process.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Session       SessionConfig       `yaml:"session"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Logging       LoggingConfig       `yaml:"logging"`
	Registry      RegistryConfig      `yaml:"registry"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the orchestrator's HTTP listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// AuthConfig configures optional bearer-token auth on the front-end HTTP surface.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// SessionConfig configures the context store.
type SessionConfig struct {
	// ActiveWindow is how long a session remains active without access.
	// Default: 30 minutes.
	ActiveWindow time.Duration `yaml:"active_window"`

	// MaxHistory is the maximum number of command/response entries kept
	// per session. Default: 50.
	MaxHistory int `yaml:"max_history"`
}

// WorkspaceConfig configures on-disk state.
type WorkspaceConfig struct {
	// DataDir is the directory holding users.json and sessions.json.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MaintenanceConfig configures the two background loops.
type MaintenanceConfig struct {
	SessionCleanupInterval time.Duration `yaml:"session_cleanup_interval"`
	HealthCheckInterval    time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout     time.Duration `yaml:"health_check_timeout"`
}

// ObservabilityConfig configures OpenTelemetry tracing. Endpoint is empty
// by default, which keeps tracing a no-op with no collector configured.
type ObservabilityConfig struct {
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	Endpoint     string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// RegistryConfig declares the fixed set of downstream services known at startup.
type RegistryConfig struct {
	Services []ServiceConfig `yaml:"services"`
}

// ServiceConfig declares one downstream Tool Server.
type ServiceConfig struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Kind is mandatory: "message" or "http".
	Kind string `yaml:"kind"`

	Capabilities []string          `yaml:"capabilities"`
	Metadata     map[string]string `yaml:"metadata"`
	Notes        string            `yaml:"notes"`

	// ReconnectDelay and MaxReconnectAttempts tune the Tool Client's
	// reconnect loop for message-kind services. Zero means use defaults.
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`

	// CallTimeout bounds a single call_tool invocation. Zero means default.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Load reads, merges ($include-aware), validates, and defaults a config file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}

	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}

	if cfg.Session.ActiveWindow == 0 {
		cfg.Session.ActiveWindow = 30 * time.Minute
	}
	if cfg.Session.MaxHistory == 0 {
		cfg.Session.MaxHistory = 50
	}

	if cfg.Workspace.DataDir == "" {
		cfg.Workspace.DataDir = "./data"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Maintenance.SessionCleanupInterval == 0 {
		cfg.Maintenance.SessionCleanupInterval = 5 * time.Minute
	}
	if cfg.Maintenance.HealthCheckInterval == 0 {
		cfg.Maintenance.HealthCheckInterval = 60 * time.Second
	}
	if cfg.Maintenance.HealthCheckTimeout == 0 {
		cfg.Maintenance.HealthCheckTimeout = 5 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "orchestrator"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}

	for i := range cfg.Registry.Services {
		svc := &cfg.Registry.Services[i]
		if svc.ReconnectDelay == 0 {
			svc.ReconnectDelay = 5 * time.Second
		}
		if svc.MaxReconnectAttempts == 0 {
			svc.MaxReconnectAttempts = 3
		}
		if svc.CallTimeout == 0 {
			svc.CallTimeout = 30 * time.Second
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_METRICS_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_DATA_DIR")); v != "" {
		cfg.Workspace.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Observability.Endpoint = v
	}
}

// ConfigValidationError collects every validation issue found in one pass.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	if cfg.Session.MaxHistory < 0 {
		issues = append(issues, "session.max_history must be >= 0")
	}
	if cfg.Session.ActiveWindow < 0 {
		issues = append(issues, "session.active_window must be >= 0")
	}
	if jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret); jwtSecret != "" && len(jwtSecret) < 32 {
		issues = append(issues, "auth.jwt_secret must be at least 32 characters for security")
	}

	seen := map[string]struct{}{}
	for i, svc := range cfg.Registry.Services {
		name := strings.TrimSpace(svc.Name)
		if name == "" {
			issues = append(issues, fmt.Sprintf("registry.services[%d].name is required", i))
			continue
		}
		if _, ok := seen[name]; ok {
			issues = append(issues, fmt.Sprintf("registry.services[%d].name %q must be unique", i, name))
		}
		seen[name] = struct{}{}

		switch strings.ToLower(strings.TrimSpace(svc.Kind)) {
		case "message", "http":
		default:
			issues = append(issues, fmt.Sprintf("registry.services[%d].kind must be \"message\" or \"http\"", i))
		}
		if strings.TrimSpace(svc.Host) == "" {
			issues = append(issues, fmt.Sprintf("registry.services[%d].host is required", i))
		}
		if svc.Port <= 0 {
			issues = append(issues, fmt.Sprintf("registry.services[%d].port must be > 0", i))
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
