package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/shopchat/internal/agent"
	"github.com/soyeahso/shopchat/internal/stream"
	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and manage messages",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		conversationID string
		promptType     string
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Run one chat turn locally and print the streamed answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := openServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			out := &terminalEmitter{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			err = svc.chat.Handle(ctx, agent.ChatRequest{
				Message:        strings.Join(args, " "),
				ConversationID: conversationID,
				PromptType:     promptType,
			}, out)
			if err != nil {
				ev := stream.Classify(err)
				return fmt.Errorf("%s: %w", ev.Error, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().StringVar(&promptType, "prompt", "", "prompt type (see 'shopchat prompts list')")

	return cmd
}

// terminalEmitter prints stream events for a person at a terminal.
type terminalEmitter struct {
	out    io.Writer
	errOut io.Writer
}

func (t *terminalEmitter) Emit(ev stream.Event) {
	switch ev.Type {
	case stream.TypeID:
		fmt.Fprintf(t.errOut, "[conversation %s]\n", ev.ConversationID)
	case stream.TypeChunk:
		fmt.Fprint(t.out, ev.Chunk)
	case stream.TypeMessageComplete:
		fmt.Fprintln(t.out)
	case stream.TypeAuthRequired:
		fmt.Fprintln(t.errOut, "[customer authorization required, open the link above and send another message]")
	case stream.TypeProductResults:
		fmt.Fprintln(t.out)
		for _, p := range ev.Products {
			fmt.Fprintf(t.out, "  * %s  %s\n", p.Title, p.Price)
			if p.URL != "" {
				fmt.Fprintf(t.out, "    %s\n", p.URL)
			}
		}
	}
}
