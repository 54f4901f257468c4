package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/switchboard/internal/domain"
)

func newChatCmd() *cobra.Command {
	var (
		conversation string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message through the full pipeline and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			core, err := buildCore(cfg)
			if err != nil {
				return err
			}
			defer core.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			replies := make(chan domain.OutboundMessage, 1)
			core.bus.Subscribe("cli", func(msg domain.OutboundMessage) {
				select {
				case replies <- msg:
				default:
				}
			})

			go core.bus.DispatchOutbound(ctx)
			go func() { _ = core.loop.Run(ctx) }()

			err = core.bus.PublishInbound(ctx, domain.InboundMessage{
				Connector:      "cli",
				SenderID:       "operator",
				ConversationID: conversation,
				Content:        strings.Join(args, " "),
				Timestamp:      time.Now(),
			})
			if err != nil {
				return err
			}

			select {
			case reply := <-replies:
				fmt.Println(reply.Content)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("no reply: %w", ctx.Err())
			}
		},
	}

	cmd.Flags().StringVar(&conversation, "conversation", "direct", "conversation id (continues that session's history)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the reply")

	return cmd
}
