package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soyeahso/shopchat/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// secretKeys are leaf keys whose values are masked by `config get`.
var secretKeys = map[string]bool{
	"apikey":       true,
	"password":     true,
	"clientsecret": true,
	"dsn":          true,
	"redisurl":     true,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit config.yaml",
	}

	var reveal bool
	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a configuration value (secrets are masked)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPath, raw, err := openRaw(args[0])
			if err != nil {
				return err
			}
			val, ok := config.GetValueAtPath(raw, keyPath)
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}
			if !reveal {
				val = maskSecrets(keyPath[len(keyPath)-1], val)
			}
			return printValue(cmd.OutOrStdout(), val)
		},
	}
	get.Flags().BoolVar(&reveal, "reveal", false, "print secret values in clear text")

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPath, raw, err := openRaw(args[0])
			if err != nil {
				return err
			}
			value := parseValue(args[1])
			config.SetValueAtPath(raw, keyPath, value)
			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], value)
			return nil
		},
	}

	unset := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value so its default applies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPath, raw, err := openRaw(args[0])
			if err != nil {
				return err
			}
			if !config.UnsetValueAtPath(raw, keyPath) {
				return fmt.Errorf("key %q not found", args[0])
			}
			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(get, set, unset,
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration for errors",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(paths.Config)
				if err != nil {
					return err
				}
				if err := validateConfig(&cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Config OK")
				return nil
			},
		},
	)
	return cmd
}

// openRaw parses a dotted key and loads the untyped config document.
func openRaw(key string) ([]string, map[string]any, error) {
	keyPath, err := config.ParseConfigPath(key)
	if err != nil {
		return nil, nil, err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return nil, nil, err
	}
	return keyPath, raw, nil
}

// maskSecrets replaces secret leaves with "****". Maps are walked so that
// `config get llm` does not leak the key either.
func maskSecrets(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = maskSecrets(k, child)
		}
		return out
	case string:
		if secretKeys[strings.ToLower(key)] && val != "" && !strings.HasPrefix(val, "${") {
			return "****"
		}
	}
	return v
}

func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// parseValue interprets a command-line value as a bool, integer, or float,
// falling back to the string itself. Durations such as "10m" stay strings
// and are parsed by the typed loader.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
