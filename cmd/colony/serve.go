package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/colony/internal/config"
	"github.com/ShayCichocki/colony/internal/mailbox"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gated mailbox API",
	Long: `Serve exposes the message gate over HTTP. Agents authenticate with a
bearer token whose subject is their agent ID (see 'colony token').

  POST /v1/messages                send through the gate
  GET  /v1/agents/{id}/messages    drain an agent's queue
  GET  /v1/violations              compliance report
  GET  /v1/agents                  registered agents
  GET  /v1/health                  liveness`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			secret, err := config.GetJWTSecret(a.cfg)
			if err != nil {
				return err
			}
			if err := a.startEngine(ctx, false); err != nil {
				return err
			}
			handler, err := mailbox.NewHandler(mailbox.Config{
				Gate:      a.engine.Gate(),
				Transport: a.mailbox,
				BasePath:  a.cfg.Server.BasePath,
				JWTSecret: secret,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}

			addr := a.cfg.Server.Addr
			if serveAddr != "" {
				addr = serveAddr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			color.Green("colony mailbox listening on http://%s%s", addr, a.cfg.Server.BasePath)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			fmt.Println("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <agent-id>",
	Short: "Issue a mailbox API token for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		secret, err := config.GetJWTSecret(cfg)
		if err != nil {
			return err
		}
		tok, err := mailbox.IssueToken(secret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
}
