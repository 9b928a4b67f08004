package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

func newConversationsCmd() *cobra.Command {
	var (
		status    string
		assigned  string
		openIssue bool
		search    string
		offline   bool
	)

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
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

			f := domain.ConversationFilters{
				Status:        domain.ConversationStatus(strings.ToUpper(status)),
				AssignedTo:    domain.ID(assigned),
				HasOpenIssues: openIssue,
				SearchTerm:    search,
			}

			var list []domain.Conversation
			if offline {
				savedAt, err := a.desk.Restore()
				if err != nil {
					return err
				}
				if savedAt.IsZero() {
					return fmt.Errorf("no saved conversation list, run without --offline first")
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved %s ago\n", time.Since(savedAt).Round(time.Second))
				list = a.store.FilteredConversations(f)
			} else {
				if _, err := a.requireSession(); err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				if list, err = a.desk.ApplyFilters(ctx, f); err != nil {
					return err
				}
			}

			printConversations(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only conversations with this status (active, resolved, dormant, archived)")
	cmd.Flags().StringVar(&assigned, "assigned", "", "only conversations assigned to this agent id")
	cmd.Flags().BoolVar(&openIssue, "open-issues", false, "only conversations with open issues")
	cmd.Flags().StringVar(&search, "search", "", "match customer name, phone or last message")
	cmd.Flags().BoolVar(&offline, "offline", false, "list the last saved snapshot without contacting the backend")

	cmd.AddCommand(newConversationShowCmd())
	cmd.AddCommand(newConversationStatusCmd())
	return cmd
}

func printConversations(out io.Writer, list []domain.Conversation) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no conversations")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tSTATUS\tUNREAD\tLAST ACTIVITY\tLAST MESSAGE")
	for _, c := range list {
		last := ""
		if c.LastMessage != nil {
			last = truncate(c.LastMessage.Content, 48)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, c.CustomerName, c.Status, c.UnreadCount, formatTime(c.LastActivity.Time), last)
	}
	tw.Flush()
}

func newConversationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation with its messages, tickets and issues",
		Args:  cobra.ExactArgs(1),
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
			if _, err := a.requireSession(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			id := domain.ID(args[0])
			details, err := a.desk.OpenConversation(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			c := details.Conversation
			fmt.Fprintf(out, "%s  %s  %s\n", c.CustomerName, c.PhoneNumber, c.Status)
			if !c.AssigneeID.IsZero() {
				fmt.Fprintf(out, "assigned to %s\n", c.AssigneeID)
			}
			fmt.Fprintln(out)
			for _, m := range a.store.Messages() {
				who := "customer"
				if !m.FromCustomer() {
					who = strings.ToLower(string(m.Source))
				}
				fmt.Fprintf(out, "[%s] %-8s %s\n", formatTime(m.CreatedAt.Time), who, m.Content)
				for _, att := range m.Attachments {
					fmt.Fprintf(out, "%21s %s\n", "+", att.Name)
				}
			}
			if tickets := a.store.TicketsByConversation(id); len(tickets) > 0 {
				fmt.Fprintln(out, "\nTickets:")
				for _, t := range tickets {
					fmt.Fprintf(out, "  %s %s [%s/%s] %s\n", t.ID, t.TicketNumber, t.Status, t.Priority, t.Title)
				}
			}
			if issues := a.store.IssuesByConversation(id); len(issues) > 0 {
				fmt.Fprintln(out, "\nIssues:")
				for _, i := range issues {
					fmt.Fprintf(out, "  %s [%s] %s\n", i.ID, i.Status, i.Title)
				}
			}
			return nil
		},
	}
}

func newConversationStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change a conversation's status",
		Args:  cobra.ExactArgs(2),
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
			if _, err := a.requireSession(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			status := domain.ConversationStatus(strings.ToUpper(args[1]))
			if err := a.desk.UpdateConversationStatus(ctx, domain.ID(args[0]), status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], status)
			return nil
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.Local()
	if t.Format("2006-01-02") == time.Now().Format("2006-01-02") {
		return t.Format("15:04")
	}
	return t.Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
