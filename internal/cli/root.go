package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shopchat",
		Short: "shopchat: conversational shopping assistant gateway",
		Long:  "shopchat streams LLM answers to a storefront chat widget, calling the shop's catalog and customer-account tools along the way.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.shopchat/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMessageCmd())
	cmd.AddCommand(newPromptsCmd())
	cmd.AddCommand(newDBCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads the config file and applies the configured logging
// settings unless --log-level was given.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	level := logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	if cfg.Logging.File == "" {
		log = logging.NewStyled(level, cfg.Logging.Style)
		return cfg, nil
	}

	if err := paths.EnsureDirs(); err != nil {
		return cfg, err
	}
	// The file stays open for the life of the process.
	f, err := os.OpenFile(paths.LogFile(cfg.Logging.File), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return cfg, fmt.Errorf("opening log file: %w", err)
	}
	log = logging.NewStyled(level, cfg.Logging.Style, f)
	return cfg, nil
}

// validateConfig logs every validation issue and fails if there are any.
func validateConfig(cfg *config.Config) error {
	issues := config.Validate(cfg)
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}
