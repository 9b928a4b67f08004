package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/gateway"
	"github.com/soyeahso/agentdesk/internal/notify"
	"github.com/soyeahso/agentdesk/internal/realtime"
	"github.com/soyeahso/agentdesk/internal/unread"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		port      int
		bind      string
		noGateway bool
		noPush    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync conversations and serve them to local viewers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if noGateway {
				cfg.Gateway.Enabled = false
			}
			if noPush {
				cfg.Realtime.Enabled = false
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

			// Block until SIGINT/SIGTERM or until the session expires
			sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, release := a.watchSession(sigCtx)
			defer release()

			if n := a.hooks.RegisterCommands(cfg.Hooks); n > 0 {
				log.Info().Int("hooks", n).Msg("command hooks registered")
			}

			if savedAt, err := a.desk.Restore(); err != nil {
				log.Warn().Err(err).Msg("restoring conversation snapshot failed")
			} else if !savedAt.IsZero() {
				log.Info().Time("savedAt", savedAt).Int("conversations", len(a.store.Conversations())).Msg("restored last conversation list")
			}
			if _, err := a.desk.FetchConversations(ctx); err != nil {
				if errors.Is(err, api.ErrSessionExpired) {
					a.desk.EndSession()
					return sessionExpired()
				}
				log.Warn().Err(err).Msg("initial conversation fetch failed, showing the saved list")
			}

			var (
				transport gateway.Transport
				rt        *realtime.Client
			)
			if cfg.Realtime.Enabled {
				rt, err = a.realtime()
				if err != nil {
					return err
				}
				a.desk.AttachRooms(rt)
				rt.OnStateChange(func(from, to realtime.State) {
					log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("push channel state")
					a.desk.TransportStateChanged(ctx, from, to)
				})
				if err := rt.Init(ctx); err != nil {
					return err
				}
				defer rt.Disconnect()
				transport = rt
			} else {
				log.Warn().Msg("push channel disabled, the list only changes on polls and commands")
			}

			var agg *unread.Aggregator
			if cfg.Unread.Enabled {
				agg = unread.New(a.store, a.api, cfg.Unread.PollInterval, a.hooks, log)
				go agg.Run(ctx)
			}

			if cfg.Notify.IRC != nil {
				irc := notify.NewIRC(*cfg.Notify.IRC, log)
				go func() {
					if err := irc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Warn().Err(err).Msg("IRC relay stopped")
					}
				}()
				defer irc.Stop()
				notify.Register(a.hooks, irc)
			}

			log.Info().
				Str("agent", sess.Agent.ID.String()).
				Bool("push", cfg.Realtime.Enabled).
				Bool("unread", cfg.Unread.Enabled).
				Bool("gateway", cfg.Gateway.Enabled).
				Msg("agentdesk running")

			if cfg.Gateway.Enabled {
				err = startGateway(ctx, a, cfg.Gateway, agg, transport)
			} else {
				<-ctx.Done()
			}

			if errors.Is(context.Cause(ctx), api.ErrSessionExpired) {
				if rt != nil {
					rt.Disconnect()
				}
				a.desk.EndSession()
				return sessionExpired()
			}
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	cmd.Flags().BoolVar(&noGateway, "no-gateway", false, "do not serve local viewers")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "do not open the push channel")

	return cmd
}

func startGateway(ctx context.Context, a *app, cfg config.GatewayConfig, agg *unread.Aggregator, transport gateway.Transport) error {
	opts := []gateway.ServerOption{gateway.WithArchive(a.archive)}
	if agg != nil {
		opts = append(opts, gateway.WithFocus(agg))
	}
	if transport != nil {
		opts = append(opts, gateway.WithTransport(transport))
	}
	srv := gateway.New(cfg, a.desk, log, opts...)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
