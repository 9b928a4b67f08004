package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		conversation string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search messages archived on this machine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.archive.Search(strings.Join(args, " "), domain.ID(conversation), limit)
			if err != nil {
				return fmt.Errorf("searching archive: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CONVERSATION\tWHEN\tFROM\tMESSAGE")
			for _, m := range results {
				from := m.SenderName
				if from == "" {
					from = strings.ToLower(string(m.Source))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ConversationID, formatTime(m.CreatedAt), from, truncate(m.Content, 64))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&conversation, "conversation", "", "limit to one conversation")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}
