package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/agentdesk/internal/credentials"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// PasswordEnv supplies the login password without a prompt.
const PasswordEnv = "AGENTDESK_PASSWORD"

func newLoginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in to the support backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			if password == "" {
				password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sess, err := a.api.Login(ctx, args[0], password)
			if err != nil {
				return err
			}
			name := sess.Agent.Name
			if name == "" {
				name = sess.Agent.Username
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (agent %s)\n", name, sess.Agent.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (default $"+PasswordEnv+" or prompt)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
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

			if err := a.api.Logout(); err != nil {
				return err
			}
			a.desk.EndSession()
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in agent and token expiry",
		Args:  cobra.NoArgs,
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

			sess, err := a.requireSession()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Agent:   %s\n", sess.Agent.ID)
			if sess.Agent.Username != "" {
				fmt.Fprintf(out, "User:    %s\n", sess.Agent.Username)
			}
			if sess.Agent.Role != "" {
				fmt.Fprintf(out, "Role:    %s\n", sess.Agent.Role)
			}
			fmt.Fprintf(out, "Token:   %s\n", describeToken(sess.Token, time.Now()))
			return nil
		},
	}
}

// describeToken summarizes a bearer token's expiry.
func describeToken(token string, now time.Time) string {
	claims, err := credentials.ParseClaims(token)
	if err != nil {
		return "opaque"
	}
	exp := claims.Expiry()
	switch {
	case exp.IsZero():
		return "no expiry"
	case exp.Before(now):
		return fmt.Sprintf("expired %s ago (refreshed on next request)", now.Sub(exp).Round(time.Second))
	default:
		return fmt.Sprintf("valid for %s", exp.Sub(now).Round(time.Second))
	}
}

// readPassword prompts on w. A terminal on r gets no echo; anything else,
// such as a pipe, is read as one line.
func readPassword(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(r)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
