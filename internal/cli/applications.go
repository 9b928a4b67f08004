package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

// signedIn opens the app, checks the session and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func signedIn(fn func(ctx context.Context, a *app) error) error {
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
	return fn(ctx, a)
}

func parseKind(s string) (domain.ApplicationKind, error) {
	kind := domain.ApplicationKind(strings.ToLower(s))
	if !kind.Valid() {
		return kind, fmt.Errorf("unknown catalog %q (want pension or life)", s)
	}
	return kind, nil
}

func newApplicationsCmd() *cobra.Command {
	var (
		catalog string
		status  string
		since   string
		search  string
	)

	cmd := &cobra.Command{
		Use:     "applications",
		Aliases: []string{"apps"},
		Short:   "List product applications submitted through WhatsApp",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(catalog)
			if err != nil {
				return err
			}
			f := domain.ApplicationFilters{
				Status:     strings.ToUpper(status),
				DateRange:  domain.DateRange(strings.ToUpper(since)),
				SearchTerm: search,
			}
			return signedIn(func(ctx context.Context, a *app) error {
				list, err := a.desk.ApplyApplicationFilters(ctx, kind, f)
				if err != nil {
					return err
				}
				printApplications(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}

	cmd.PersistentFlags().StringVar(&catalog, "catalog", string(domain.ApplicationPension), "application catalog (pension or life)")
	cmd.Flags().StringVar(&status, "status", "", "only applications with this status (submitted, under_review, ...)")
	cmd.Flags().StringVar(&since, "since", "", "only applications submitted today, this week or this month (today, week, month)")
	cmd.Flags().StringVar(&search, "search", "", "match applicant name, phone, email or id number")

	cmd.AddCommand(newApplicationShowCmd(&catalog))
	cmd.AddCommand(newApplicationStatusCmd(&catalog))
	cmd.AddCommand(newApplicationNoteCmd(&catalog))
	return cmd
}

func printApplications(out io.Writer, list []domain.Application) {
	if len(list) == 0 {
		fmt.Fprintln(out, "no applications")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFORM\tAPPLICANT\tPHONE\tSTATUS\tSUBMITTED")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.FormType, a.Customer.Name, a.Customer.PhoneNumber, a.Status, formatTime(a.SubmissionDate.Time))
	}
	tw.Flush()
}

func printApplication(out io.Writer, a domain.Application) {
	fmt.Fprintf(out, "%s  %s  %s\n", a.ID, a.FormName, a.Status)
	fmt.Fprintf(out, "%s  %s  %s\n", a.Customer.Name, a.Customer.PhoneNumber, a.Customer.Email)
	if !a.ConversationID.IsZero() {
		fmt.Fprintf(out, "conversation %s\n", a.ConversationID)
	}
	if len(a.VerificationFlags) > 0 {
		flags := make([]string, 0, len(a.VerificationFlags))
		for name, ok := range a.VerificationFlags {
			mark := "no"
			if ok {
				mark = "yes"
			}
			flags = append(flags, name+"="+mark)
		}
		sort.Strings(flags)
		fmt.Fprintf(out, "checks: %s\n", strings.Join(flags, " "))
	}
	if len(a.Attachments) > 0 {
		fmt.Fprintln(out, "\nDocuments:")
		for _, d := range a.Attachments {
			fmt.Fprintf(out, "  %s %s (%s)\n", d.ID, d.Name, d.DocumentType)
		}
	}
	if len(a.StatusHistory) > 0 {
		fmt.Fprintln(out, "\nHistory:")
		for _, h := range a.StatusHistory {
			fmt.Fprintf(out, "  [%s] %s -> %s %s\n", formatTime(h.ChangedAt.Time), h.FromStatus, h.ToStatus, h.Notes)
		}
	}
	if len(a.Notes) > 0 {
		fmt.Fprintln(out, "\nNotes:")
		for _, n := range a.Notes {
			fmt.Fprintf(out, "  [%s] %s: %s\n", formatTime(n.CreatedAt.Time), n.CreatedBy, n.Content)
		}
	}
}

func newApplicationShowCmd(catalog *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an application with its documents, history and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(*catalog)
			if err != nil {
				return err
			}
			return signedIn(func(ctx context.Context, a *app) error {
				application, err := a.desk.OpenApplication(ctx, kind, domain.ID(args[0]))
				if err != nil {
					return err
				}
				printApplication(cmd.OutOrStdout(), application)
				return nil
			})
		},
	}
}

func newApplicationStatusCmd(catalog *string) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move an application through review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(*catalog)
			if err != nil {
				return err
			}
			status := strings.ToUpper(args[1])
			return signedIn(func(ctx context.Context, a *app) error {
				if _, err := a.desk.UpdateApplicationStatus(ctx, kind, domain.ID(args[0]), status, notes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "review notes recorded with the change")
	return cmd
}

func newApplicationNoteCmd(catalog *string) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> <text...>",
		Short: "Add a note to an application",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(*catalog)
			if err != nil {
				return err
			}
			content := strings.Join(args[1:], " ")
			return signedIn(func(ctx context.Context, a *app) error {
				note, err := a.desk.AddApplicationNote(ctx, kind, domain.ID(args[0]), content)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "note %s added\n", note.ID)
				return nil
			})
		},
	}
}

func newDashboardCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show queue, activity and agent performance figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return signedIn(func(ctx context.Context, a *app) error {
				d, err := a.desk.FetchDashboard(ctx, period)
				if err != nil {
					return err
				}
				printDashboard(cmd.OutOrStdout(), d)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", domain.DefaultPeriod, "reporting period for the agent table")
	return cmd
}

func trendArrow(m domain.Metric) string {
	switch m.Trend {
	case domain.TrendUp:
		return "↑"
	case domain.TrendDown:
		return "↓"
	}
	return " "
}

func printDashboard(out io.Writer, d domain.Dashboard) {
	s := d.Stats
	fmt.Fprintf(out, "Conversations: %d pending, %d active, %d resolved\n",
		s.PendingConversations, s.ActiveConversations, s.ResolvedConversations)
	fmt.Fprintf(out, "Response %.1fm  Resolution %.1fm  Satisfaction %.0f%%  Availability %.0f%%\n",
		s.AverageResponseTime, s.AverageResolutionTime, s.CustomerSatisfaction, s.AgentAvailability)
	q := d.Queue
	fmt.Fprintf(out, "Queue: %d waiting, %.1fm average wait, %.0f%% within SLA\n",
		q.CurrentQueue, q.AverageWaitTime, q.ServiceLevel)

	fmt.Fprintln(out, "\nPerformance:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, row := range []struct {
		name string
		m    domain.Metric
	}{
		{"response time", d.Performance.ResponseTime},
		{"resolution rate", d.Performance.ResolutionRate},
		{"satisfaction", d.Performance.CustomerSatisfaction},
		{"handled", d.Performance.ConversationsHandled},
	} {
		fmt.Fprintf(tw, "  %s\t%g\t%s %+.1f%%\n", row.name, row.m.Current, trendArrow(row.m), row.m.ChangePercent())
	}
	tw.Flush()

	label := d.Agents.PeriodLabel
	if label == "" {
		label = d.Period
	}
	fmt.Fprintf(out, "\nAgents (%s, %d conversations):\n", label, d.Agents.TotalConversations)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  AGENT\tCONVERSATIONS\tRESPONSE\tRESOLUTION\tRATING")
	for _, ag := range d.Agents.ByAgent {
		fmt.Fprintf(tw, "  %s\t%d\t%.1fm\t%.0f%%\t%.1f\n", ag.Name, ag.Conversations, ag.AvgResponseTime, ag.ResolutionRate, ag.Satisfaction)
	}
	tw.Flush()

	if len(d.Activities) > 0 {
		fmt.Fprintln(out, "\nRecent activity:")
		for _, act := range d.Activities {
			fmt.Fprintf(out, "  [%s] %-10s %s\n", formatTime(act.Timestamp.Time), act.Type, act.Description)
		}
	}
}
