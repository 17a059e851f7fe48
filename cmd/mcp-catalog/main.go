// Command mcp-catalog serves a YAML product catalog as a storefront
// search tool for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/shopchat/internal/logging"
	"github.com/soyeahso/shopchat/internal/toolserver"
	"github.com/spf13/cobra"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var (
		addr     string
		catalog  string
		username string
		level    string
	)

	cmd := &cobra.Command{
		Use:          "mcp-catalog",
		Short:        "Serve a product catalog over JSON-RPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(nil, level)

			c, err := toolserver.LoadCatalog(catalog)
			if err != nil {
				return err
			}
			password := os.Getenv("MCP_CATALOG_PASSWORD")
			if username != "" && password == "" {
				return errors.New("MCP_CATALOG_PASSWORD must be set when --username is given")
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           toolserver.New(c, username, password, log).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			log.Info().Str("addr", addr).Int("products", len(c.Products)).Msg("catalog server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3459", "listen address")
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog YAML file (default: built-in fixture)")
	cmd.Flags().StringVar(&username, "username", "", "basic auth username; password comes from MCP_CATALOG_PASSWORD")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	return cmd
}
