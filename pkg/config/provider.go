package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBindings maps command line flags to configuration keys. Flags win over
// environment, file and defaults, but only when set explicitly.
var flagBindings = []struct {
	flag  string
	key   string
	usage string
}{
	{"http-port", "http.port", "public HTTP port"},
	{"management-port", "management.port", "management HTTP port"},
	{"db-type", "database.type", "document store backend (mongodb|memory)"},
	{"db-url", "database.url", "document store connection URL"},
	{"cache-url", "cache.url", "Redis connection URL"},
	{"eventbus-url", "eventbus.url", "RabbitMQ connection URL"},
	{"log-level", "observability.log_level", "log level (debug|info|warn|error)"},
	{"log-format", "observability.log_format", "log format (json|text)"},
}

// ConfigProvider loads Config from defaults, file, environment and flags.
type ConfigProvider struct {
	loader *ViperLoader
	v      *viper.Viper
	flags  *pflag.FlagSet
}

func NewConfigProvider(configFile, envPrefix string) *ConfigProvider {
	return &ConfigProvider{
		loader: NewViperLoader(configFile, envPrefix),
		v:      viper.New(),
	}
}

func (p *ConfigProvider) WithFlags(flags *pflag.FlagSet) *ConfigProvider {
	p.flags = flags
	return p
}

// ConfigFile returns the path to the config file that was loaded, or empty string if none.
func (p *ConfigProvider) ConfigFile() string {
	if p.loader == nil {
		return ""
	}
	return p.loader.configFile
}

// Load returns the validated configuration.
func (p *ConfigProvider) Load() (*Config, error) {
	p.v = viper.New()
	if err := p.loader.read(p.v); err != nil {
		return nil, err
	}
	if p.flags != nil {
		for _, b := range flagBindings {
			f := p.flags.Lookup(b.flag)
			if f == nil {
				continue
			}
			if err := p.v.BindPFlag(b.key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", b.flag, err)
			}
		}
	}
	return p.loader.decode(p.v)
}

// AllSettings returns the effective merged settings currently held by the provider.
func (p *ConfigProvider) AllSettings() map[string]interface{} {
	if p == nil || p.v == nil {
		return map[string]interface{}{}
	}
	return p.v.AllSettings()
}

// RegisterFlags adds the override flags to flags. Their defaults are empty
// so an unset flag never shadows the file or the environment.
func RegisterFlags(flags *pflag.FlagSet) {
	for _, b := range flagBindings {
		if flags.Lookup(b.flag) != nil {
			continue
		}
		flags.String(b.flag, "", b.usage)
	}
}
