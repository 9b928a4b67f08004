package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/gateway"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/soyeahso/agentdesk/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session, configuration and local data",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agentdesk %s (commit %s)\n\n", version.Version, version.Revision())

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Database())
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "API:      %s (timeout %s)\n", cfg.API.BaseURL, cfg.API.Timeout)
			if cfg.Realtime.Enabled {
				url, err := cfg.RealtimeURL()
				if err != nil {
					url = "invalid: " + err.Error()
				}
				fmt.Fprintf(out, "Push:     %s (heartbeat %s, reconnect %s)\n",
					url, cfg.Realtime.HeartbeatInterval, cfg.Realtime.ReconnectDelay)
			} else {
				fmt.Fprintln(out, "Push:     disabled")
			}
			if cfg.Unread.Enabled {
				fmt.Fprintf(out, "Unread:   poll every %s\n", cfg.Unread.PollInterval)
			} else {
				fmt.Fprintln(out, "Unread:   disabled")
			}
			if cfg.Gateway.Enabled {
				token := "not set"
				if cfg.Gateway.Auth.Token != "" || os.Getenv(gateway.TokenEnv) != "" {
					token = "set"
				}
				fmt.Fprintf(out, "Gateway:  port=%d bind=%s token=%s\n", cfg.Gateway.Port, cfg.Gateway.Bind, token)
			} else {
				fmt.Fprintln(out, "Gateway:  disabled")
			}
			if irc := cfg.Notify.IRC; irc != nil {
				fmt.Fprintf(out, "IRC:      server=%s nick=%s channel=%s tls=%v\n", irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			} else {
				fmt.Fprintln(out, "IRC:      (not configured)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
				return nil
			}

			a, err := openApp(cfg)
			if err != nil {
				fmt.Fprintf(out, "\nDatabase: %v\n", err)
				return nil
			}
			defer a.close()

			fmt.Fprintln(out)
			if v, err := a.db.SchemaVersion(); err == nil {
				fmt.Fprintf(out, "Schema:   v%d\n", v)
			}
			if sess, err := a.creds.Require(); err != nil {
				fmt.Fprintln(out, "Session:  not signed in")
			} else {
				fmt.Fprintf(out, "Session:  agent %s, token %s\n", sess.Agent.ID, describeToken(sess.Token, time.Now()))
			}
			list, savedAt, err := store.NewSnapshots(a.db).LoadConversations()
			switch {
			case err != nil:
				fmt.Fprintf(out, "Snapshot: %v\n", err)
			case savedAt.IsZero():
				fmt.Fprintln(out, "Snapshot: none")
			default:
				fmt.Fprintf(out, "Snapshot: %d conversations, saved %s\n", len(list), savedAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}

	return cmd
}
