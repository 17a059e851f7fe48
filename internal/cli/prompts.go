package cli

import (
	"fmt"

	"github.com/soyeahso/shopchat/internal/agent"
	"github.com/spf13/cobra"
)

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect system prompts",
	}

	cmd.AddCommand(newPromptsListCmd())
	cmd.AddCommand(newPromptsShowCmd())
	return cmd
}

func loadPromptCatalog() (*agent.PromptCatalog, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	catalog, err := agent.LoadPrompts(cfg.Chat.Prompts, cfg.Chat.DefaultPromptType)
	if err != nil {
		return nil, "", err
	}
	return catalog, catalog.Resolve(""), nil
}

func newPromptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prompt types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, def, err := loadPromptCatalog()
			if err != nil {
				return err
			}
			for _, name := range catalog.Types() {
				mark := ""
				if name == def {
					mark = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s%s\n", name, mark)
			}
			return nil
		},
	}
}

func newPromptsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [prompt-type]",
		Short: "Print the system prompt used for a prompt type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := loadPromptCatalog()
			if err != nil {
				return err
			}
			target := ""
			if len(args) > 0 {
				target = args[0]
			}
			resolved := catalog.Resolve(target)
			if target != "" && resolved != target {
				fmt.Fprintf(cmd.ErrOrStderr(), "unknown prompt type %q, showing %s\n", target, resolved)
			}
			fmt.Fprintln(cmd.OutOrStdout(), catalog.System(resolved))
			return nil
		},
	}
}
