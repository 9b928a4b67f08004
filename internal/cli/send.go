package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	var (
		attach  []string
		issueID string
	)

	cmd := &cobra.Command{
		Use:   "send <conversation-id> [message]",
		Short: "Send a message to a customer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args[1:], " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()
			if _, err := a.requireSession(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if _, err := a.desk.OpenConversation(ctx, domain.ID(args[0])); err != nil {
				return err
			}
			for _, path := range attach {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				att, err := a.desk.UploadAttachment(ctx, filepath.Base(path), data)
				if err != nil {
					return fmt.Errorf("uploading %s: %w", path, err)
				}
				log.Debug().Str("attachment", att.ID.String()).Str("file", path).Msg("attachment uploaded")
			}

			msg, err := a.desk.SendMessage(ctx, content, domain.ID(issueID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", msg.ID)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&attach, "attach", nil, "file to attach (repeatable)")
	cmd.Flags().StringVar(&issueID, "issue", "", "link the message to this issue")
	return cmd
}
