package main

import (
	"errors"
	"os/signal"
	"syscall"

	"chatbridge/internal/communicators"
	"chatbridge/internal/communicators/telegram"
	"chatbridge/internal/communicators/web"
	"chatbridge/internal/gateway"
	"chatbridge/internal/observability"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the web API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := gateway.New(c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			var cs []communicators.Communicator
			if token := c.cfg.Telegram.Token; token != "" {
				bot, err := telegram.New(app.Service, telegram.Options{
					Token:   token,
					Timeout: c.cfg.LLM.Timeout,
					Logger:  observability.WithComponent("telegram"),
				})
				if err != nil {
					return err
				}
				cs = append(cs, bot)
			}
			if addr := c.cfg.Web.Addr; addr != "" {
				cs = append(cs, web.NewServer(app.Service, app.Cache, addr, c.cfg.LLM.Timeout, observability.WithComponent("web")))
			}
			if len(cs) == 0 {
				return errors.New("nothing to serve: set telegram.token (TELEGRAM_BOT_TOKEN) or web.addr")
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return app.ServeMetrics(ctx) })
			g.Go(func() error { return communicators.Run(ctx, app.Logger, cs...) })
			return g.Wait()
		},
	}
}

func newChatCmd(c *cli) *cobra.Command {
	var conversation, author string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := gateway.New(c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), conversation, author)
		},
	}
	cmd.Flags().StringVarP(&conversation, "conversation", "c", "local", "conversation id to chat in")
	cmd.Flags().StringVarP(&author, "author", "a", "local-user", "author id for your messages")
	return cmd
}

