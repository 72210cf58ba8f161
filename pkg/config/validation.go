package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration and reports every problem it finds.
func (l *ViperLoader) Validate(cfg *Config) error {
	return cfg.Validate()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}
	if c.HTTP.MaxRequestSize <= 0 {
		errs = append(errs, errors.New("http.max_request_size must be positive"))
	}
	if c.Management.Enabled {
		if c.Management.Port <= 0 || c.Management.Port > 65535 {
			errs = append(errs, fmt.Errorf("management.port must be between 1 and 65535, got %d", c.Management.Port))
		}
		if c.Management.Port == c.HTTP.Port {
			errs = append(errs, errors.New("management.port must differ from http.port"))
		}
	}

	if c.Auth.SecretKey == "" {
		errs = append(errs, errors.New("auth.secret_key is required"))
	}
	if c.Auth.Algorithm != "HS256" {
		errs = append(errs, fmt.Errorf("unsupported auth.algorithm: %s (must be HS256)", c.Auth.Algorithm))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}

	switch c.Database.Type {
	case DatabaseTypeMongoDB:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for mongodb"))
		}
		if c.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required for mongodb"))
		}
	case DatabaseTypeMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid database.type: %s (must be one of: %v)",
			c.Database.Type, []string{DatabaseTypeMongoDB, DatabaseTypeMemory}))
	}

	switch c.Cache.Type {
	case CacheTypeRedis:
		if c.Cache.URL == "" {
			errs = append(errs, errors.New("cache.url is required for redis"))
		}
	case CacheTypeNone:
	default:
		errs = append(errs, fmt.Errorf("invalid cache.type: %s (must be one of: %v)",
			c.Cache.Type, []string{CacheTypeRedis, CacheTypeNone}))
	}

	switch c.EventBus.Type {
	case EventBusTypeRabbitMQ:
		if c.EventBus.URL == "" {
			errs = append(errs, errors.New("eventbus.url is required for rabbitmq"))
		}
		if c.EventBus.Exchange == "" {
			errs = append(errs, errors.New("eventbus.exchange is required for rabbitmq"))
		}
		if !contains([]string{"topic", "direct", "fanout"}, c.EventBus.ExchangeType) {
			errs = append(errs, fmt.Errorf("invalid eventbus.exchange_type: %s", c.EventBus.ExchangeType))
		}
		if c.EventBus.BreakerFailures > 0 && c.EventBus.BreakerCooldown <= 0 {
			errs = append(errs, errors.New("eventbus.breaker_cooldown must be positive when the breaker is enabled"))
		}
	case EventBusTypeNone:
	default:
		errs = append(errs, fmt.Errorf("invalid eventbus.type: %s (must be one of: %v)",
			c.EventBus.Type, []string{EventBusTypeRabbitMQ, EventBusTypeNone}))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			errs = append(errs, errors.New("rate_limit.requests must be positive"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("rate_limit.window must be positive"))
		}
		switch c.RateLimit.Type {
		case RateLimitTypeLocal:
		case RateLimitTypeRedis:
			if c.Cache.Type != CacheTypeRedis {
				errs = append(errs, errors.New("rate_limit.type redis requires cache.type redis"))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid rate_limit.type: %s", c.RateLimit.Type))
		}
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s", c.Observability.LogLevel))
	}
	if !contains([]string{"json", "text"}, c.Observability.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s", c.Observability.LogFormat))
	}
	if c.Observability.TracingEnabled {
		if c.Observability.TracingEndpoint == "" {
			errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
		}
		if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
			errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
		}
	}

	return errors.Join(errs...)
}
