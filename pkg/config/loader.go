package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "APP")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	if err := l.read(v); err != nil {
		return nil, err
	}
	return l.decode(v)
}

// read fills v with defaults, the config file and the environment bindings.
func (l *ViperLoader) read(v *viper.Viper) error {
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)
	return nil
}

func (l *ViperLoader) decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	_ = v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	_ = v.BindEnv("service.environment", l.prefixedEnv("ENVIRONMENT"))

	// HTTP
	_ = v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	_ = v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	_ = v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	_ = v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	_ = v.BindEnv("http.max_request_size", l.prefixedEnv("HTTP_MAX_REQUEST_SIZE"))

	// Management
	_ = v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	_ = v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"))
	_ = v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	_ = v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))

	// Auth
	_ = v.BindEnv("auth.secret_key", l.prefixedEnv("AUTH_SECRET_KEY"))
	_ = v.BindEnv("auth.algorithm", l.prefixedEnv("AUTH_ALGORITHM"))
	_ = v.BindEnv("auth.token_ttl", l.prefixedEnv("AUTH_TOKEN_TTL"))
	_ = v.BindEnv("auth.issuer", l.prefixedEnv("AUTH_ISSUER"))
	_ = v.BindEnv("auth.bcrypt_cost", l.prefixedEnv("AUTH_BCRYPT_COST"))

	// Database
	_ = v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"))
	_ = v.BindEnv("database.url", l.prefixedEnv("DB_URL"))
	_ = v.BindEnv("database.database_name", l.prefixedEnv("DB_DATABASE_NAME"))
	_ = v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))
	_ = v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))
	_ = v.BindEnv("database.max_pool_size", l.prefixedEnv("DB_MAX_POOL_SIZE"))

	// Cache
	_ = v.BindEnv("cache.type", l.prefixedEnv("CACHE_TYPE"))
	_ = v.BindEnv("cache.url", l.prefixedEnv("CACHE_URL"))
	_ = v.BindEnv("cache.max_conns", l.prefixedEnv("CACHE_MAX_CONNS"))
	_ = v.BindEnv("cache.operation_timeout", l.prefixedEnv("CACHE_OPERATION_TIMEOUT"))

	// Event bus
	_ = v.BindEnv("eventbus.type", l.prefixedEnv("EVENTBUS_TYPE"))
	_ = v.BindEnv("eventbus.url", l.prefixedEnv("EVENTBUS_URL"))
	_ = v.BindEnv("eventbus.exchange", l.prefixedEnv("EVENTBUS_EXCHANGE"))
	_ = v.BindEnv("eventbus.exchange_type", l.prefixedEnv("EVENTBUS_EXCHANGE_TYPE"))
	_ = v.BindEnv("eventbus.actions", l.prefixedEnv("EVENTBUS_ACTIONS"))
	_ = v.BindEnv("eventbus.operation_timeout", l.prefixedEnv("EVENTBUS_OPERATION_TIMEOUT"))

	// Rate limiting
	_ = v.BindEnv("rate_limit.enabled", l.prefixedEnv("RATE_LIMIT_ENABLED"))
	_ = v.BindEnv("rate_limit.type", l.prefixedEnv("RATE_LIMIT_TYPE"))
	_ = v.BindEnv("rate_limit.requests", l.prefixedEnv("RATE_LIMIT_REQUESTS"))
	_ = v.BindEnv("rate_limit.window", l.prefixedEnv("RATE_LIMIT_WINDOW"))
	_ = v.BindEnv("rate_limit.prefix", l.prefixedEnv("RATE_LIMIT_PREFIX"))

	// Observability
	_ = v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	_ = v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	_ = v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	_ = v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	_ = v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "APP"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.max_request_size", cfg.HTTP.MaxRequestSize)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	v.SetDefault("auth.secret_key", cfg.Auth.SecretKey)
	v.SetDefault("auth.algorithm", cfg.Auth.Algorithm)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("auth.issuer", cfg.Auth.Issuer)
	v.SetDefault("auth.bcrypt_cost", cfg.Auth.BcryptCost)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.max_pool_size", cfg.Database.MaxPoolSize)

	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.url", cfg.Cache.URL)
	v.SetDefault("cache.max_conns", cfg.Cache.MaxConns)
	v.SetDefault("cache.operation_timeout", cfg.Cache.OperationTimeout)

	v.SetDefault("eventbus.type", cfg.EventBus.Type)
	v.SetDefault("eventbus.url", cfg.EventBus.URL)
	v.SetDefault("eventbus.exchange", cfg.EventBus.Exchange)
	v.SetDefault("eventbus.exchange_type", cfg.EventBus.ExchangeType)
	v.SetDefault("eventbus.actions", cfg.EventBus.Actions)
	v.SetDefault("eventbus.operation_timeout", cfg.EventBus.OperationTimeout)
	v.SetDefault("eventbus.breaker_failures", cfg.EventBus.BreakerFailures)
	v.SetDefault("eventbus.breaker_cooldown", cfg.EventBus.BreakerCooldown)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.type", cfg.RateLimit.Type)
	v.SetDefault("rate_limit.requests", cfg.RateLimit.Requests)
	v.SetDefault("rate_limit.window", cfg.RateLimit.Window)
	v.SetDefault("rate_limit.prefix", cfg.RateLimit.Prefix)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)

	v.SetDefault("messages", cfg.Messages)
}

// normalize trims list values and backfills the English message catalog so
// every reason has at least one translation.
func normalize(cfg *Config) {
	cfg.EventBus.Actions = normalizeStringSlice(cfg.EventBus.Actions)
	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	cfg.Cache.Type = strings.ToLower(strings.TrimSpace(cfg.Cache.Type))
	cfg.EventBus.Type = strings.ToLower(strings.TrimSpace(cfg.EventBus.Type))
	cfg.RateLimit.Type = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Type))

	if cfg.Messages == nil {
		cfg.Messages = map[string]map[string]string{}
	}
	for lang, defaults := range DefaultMessages() {
		catalog := cfg.Messages[lang]
		if catalog == nil {
			catalog = map[string]string{}
			cfg.Messages[lang] = catalog
		}
		for reason, text := range defaults {
			if _, ok := catalog[reason]; !ok {
				catalog[reason] = text
			}
		}
	}
}

// normalizeStringSlice splits comma separated entries (as they arrive from
// environment variables) and drops blanks.
func normalizeStringSlice(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
