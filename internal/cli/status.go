package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show shopchat status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shopchat %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			printStatus(out, cfg)
			return nil
		},
	}

	return cmd
}

func printStatus(out io.Writer, cfg config.Config) {
	fmt.Fprintf(out, "Gateway: port=%d bind=%s tls=%v rate=%d/%s\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled,
		cfg.Gateway.RateLimit.Requests, cfg.Gateway.RateLimit.Window)

	model := cfg.LLM.Model
	if len(cfg.LLM.Fallbacks) > 0 {
		model += " (fallbacks: " + strings.Join(cfg.LLM.Fallbacks, ", ") + ")"
	}
	key := "missing"
	if cfg.LLM.APIKey != "" {
		key = "set"
	}
	fmt.Fprintf(out, "LLM:     provider=%s model=%s apiKey=%s\n", cfg.LLM.Provider, model, key)

	fmt.Fprintf(out, "Chat:    prompt=%s maxToolRounds=%d maxProducts=%d\n",
		cfg.Chat.DefaultPromptType, cfg.Chat.MaxToolRounds, cfg.Chat.MaxProductsToDisplay)

	fmt.Fprintf(out, "Tools:   storefront=%s customer=%s\n",
		orNone(cfg.Tools.Storefront.URL), orNone(cfg.Tools.Customer.AccountURL))

	if cfg.Auth.ClientID != "" {
		fmt.Fprintf(out, "Auth:    shop=%s client=%s redirect=%s/auth/callback\n",
			cfg.Auth.ShopID, cfg.Auth.ClientID, strings.TrimRight(cfg.Auth.RedirectURL, "/"))
	} else {
		fmt.Fprintln(out, "Auth:    (not configured)")
	}

	switch cfg.Store.Driver {
	case "postgres":
		fmt.Fprintln(out, "Store:   postgres")
	default:
		path := cfg.Store.Path
		if path == "" {
			path = paths.DatabasePath()
		}
		fmt.Fprintf(out, "Store:   sqlite path=%s\n", path)
	}

	if cfg.Cache.RedisURL != "" {
		fmt.Fprintf(out, "Cache:   redis ttl=%s\n", cfg.Cache.TTL)
	} else {
		fmt.Fprintln(out, "Cache:   (disabled)")
	}

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
