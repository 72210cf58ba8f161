// Package cli builds the cobra command tree of the service binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/version"
)

// ServiceCommandOptions defines callbacks for service-specific logic.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Required: server startup logic; blocks until shutdown.
	RunServer func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: dependency connectivity check for "healthcheck".
	CheckDependencies func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: creates the unique indexes declared by the document shapes.
	EnsureIndexes func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: custom config validation, run after the built-in one.
	ValidateConfig func(cfg *config.Config) error

	CustomCommands []*cobra.Command
}

// Cosa fa: crea la CLI con serve, version, healthcheck, config validate|show e indexes ensure.
// Cosa NON fa: non avvia nulla finche' non viene eseguito un sottocomando; senza
// sottocomando esegue serve.
// Esempio minimo: cli.Execute(cli.NewServiceCommand(cli.ServiceCommandOptions{Name: "eventsvc", RunServer: run}))
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "APP"
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	config.RegisterFlags(rootCmd.PersistentFlags())

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, opts.ValidateConfig, flags)
	}

	var versionJSON bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd.OutOrStdout(), version.Current(opts.Name), versionJSON)
		},
	}
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(versionCmd)

	if opts.RunServer != nil {
		serveCmd := &cobra.Command{
			Use:   "serve",
			Short: "Start the public API and management servers",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfig(cmd.Flags())
				if err != nil {
					return err
				}
				return opts.RunServer(cmd.Context(), cfg, log)
			},
		}
		rootCmd.AddCommand(serveCmd)
		rootCmd.RunE = serveCmd.RunE
	}

	if opts.CheckDependencies != nil {
		rootCmd.AddCommand(&cobra.Command{
			Use:   "healthcheck",
			Short: "Check connectivity to the document store, Redis and RabbitMQ",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfig(cmd.Flags())
				if err != nil {
					return err
				}
				if err := opts.CheckDependencies(cmd.Context(), cfg, log); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all dependencies are reachable")
				return nil
			},
		})
	}

	if opts.EnsureIndexes != nil {
		indexesCmd := &cobra.Command{
			Use:   "indexes",
			Short: "Document store index commands",
		}
		indexesCmd.AddCommand(&cobra.Command{
			Use:   "ensure",
			Short: "Create the unique indexes declared by the document shapes",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfig(cmd.Flags())
				if err != nil {
					return err
				}
				return opts.EnsureIndexes(cmd.Context(), cfg, log)
			},
		})
		rootCmd.AddCommand(indexesCmd)
	}

	rootCmd.AddCommand(newConfigCommand(&cfgPath, opts))

	for _, custom := range opts.CustomCommands {
		rootCmd.AddCommand(custom)
	}
	return rootCmd
}

func newConfigCommand(cfgPath *string, opts ServiceCommandOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigProvider(*cfgPath, opts.EnvPrefix).WithFlags(cmd.Flags()).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.ValidateConfig != nil {
				if err := opts.ValidateConfig(cfg); err != nil {
					return fmt.Errorf("custom validation failed: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := config.NewConfigProvider(*cfgPath, opts.EnvPrefix).WithFlags(cmd.Flags())
			if _, err := provider.Load(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			settings := provider.AllSettings()
			if !showSecrets {
				settings = redactSettings(settings)
			}
			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)
	return configCmd
}

// LoadConfigAndLogger loads and validates the configuration and builds the
// zap logger it describes.
func LoadConfigAndLogger(
	cfgPath, envPrefix string,
	customValidator func(*config.Config) error,
	flags *pflag.FlagSet,
) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewConfigProvider(cfgPath, envPrefix).WithFlags(flags).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if customValidator != nil {
		if err := customValidator(cfg); err != nil {
			return nil, nil, fmt.Errorf("custom validation failed: %w", err)
		}
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}

func printVersion(w io.Writer, info version.Info, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintf(w, "Service:    %s\n", info.Service)
	fmt.Fprintf(w, "Version:    %s\n", info.Version)
	fmt.Fprintf(w, "Commit:     %s\n", info.Commit)
	fmt.Fprintf(w, "Build Time: %s\n", info.BuildTime)
	if info.GoVersion != "" {
		fmt.Fprintf(w, "Go:         %s\n", info.GoVersion)
	}
	return nil
}

func formatSettings(settings map[string]interface{}) (string, error) {
	if len(settings) == 0 {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// secretKeys are masked entirely; urlKeys only lose their password.
var (
	secretKeys = map[string]bool{"auth.secret_key": true}
	urlKeys    = map[string]bool{"database.url": true, "cache.url": true, "eventbus.url": true}
)

func redactSettings(settings map[string]interface{}) map[string]interface{} {
	return redactMap("", settings)
}

func redactMap(prefix string, in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for key, value := range in {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]interface{}:
			out[key] = redactMap(path, v)
		case string:
			switch {
			case secretKeys[path] && v != "":
				out[key] = "***"
			case urlKeys[path]:
				out[key] = redactURL(v)
			default:
				out[key] = v
			}
		default:
			out[key] = value
		}
	}
	return out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return strings.Replace(u.String(), "%2A%2A%2A", "***", 1)
}

// Execute runs the command with a context cancelled on SIGINT or SIGTERM
// and exits non-zero on error.
func Execute(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
