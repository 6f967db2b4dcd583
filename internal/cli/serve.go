package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/internal/auth"
	"github.com/mesh-intelligence/riddler/internal/logging"
	"github.com/mesh-intelligence/riddler/internal/server"
	"github.com/mesh-intelligence/riddler/pkg/riddler"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen     string
		authSecret string
		rateLimit  float64
		rateBurst  int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local backend over HTTP",
		Long: `Serve attaches the configured backend and serves it over HTTP until
interrupted. With an auth secret set, /v1 routes require a bearer token
issued by "riddler token".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = a.config.GetString(cfgKeyListen)
			}
			if authSecret == "" {
				authSecret = a.config.GetString(cfgKeyAuthSecret)
			}
			if !cmd.Flags().Changed("rate-limit") {
				rateLimit = a.config.GetFloat64(cfgKeyRateLimit)
			}
			if !cmd.Flags().Changed("rate-burst") {
				rateBurst = a.config.GetInt(cfgKeyRateBurst)
			}

			var authn *auth.Authenticator
			if authSecret != "" {
				var err error
				if authn, err = auth.New([]byte(authSecret)); err != nil {
					return userError(err)
				}
			}

			catalog, cfg, err := a.attachCatalog()
			if err != nil {
				return err
			}
			defer func() {
				if err := catalog.Detach(); err != nil {
					a.logger.Error("detach failed", "error", err)
				}
			}()
			reg, err := catalog.Registry()
			if err != nil {
				return err
			}

			// The server logs requests at info unless a level was given.
			logger := a.logger
			if !cmd.Flags().Changed("log-level") {
				if logger, err = logging.New(cmd.ErrOrStderr(), a.flags.logFormat, slog.LevelInfo); err != nil {
					return userError(err)
				}
			}

			srv := server.New(server.Config{
				Registry:  reg,
				Addr:      listen,
				Logger:    logger,
				Version:   riddler.Version,
				Backend:   cfg.Backend,
				Auth:      authn,
				RateLimit: rateLimit,
				RateBurst: rateBurst,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.Serve(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", server.DefaultAddr, "address to listen on")
	cmd.Flags().StringVar(&authSecret, "auth-secret", "", "HMAC secret for bearer tokens; empty disables auth")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "requests per second across all clients; 0 disables")
	cmd.Flags().IntVar(&rateBurst, "rate-burst", 0, "burst size for --rate-limit")
	return cmd
}
