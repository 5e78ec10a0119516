package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bookkeeper/internal/adapters/web"
	"bookkeeper/internal/ai"
	"bookkeeper/internal/app"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/db"
	"bookkeeper/internal/jobs"

	"github.com/spf13/cobra"
)

// openApp connects to DATABASE_URL and wires the application onto it.
func openApp(env *Env) func(ctx context.Context) (app.ApplicationService, func(), error) {
	return func(ctx context.Context) (app.ApplicationService, func(), error) {
		pool, err := db.NewPool(ctx, env.Config.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := cache.New(env.Config.CacheSize)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}

		var scanner app.ReceiptScanner
		if env.Config.OpenAIAPIKey != "" {
			scanner = ai.NewReceiptScanner(env.Config.OpenAIAPIKey, env.Config.OpenAIModel)
		} else {
			env.Log.Warn("OPENAI_API_KEY is not set; receipt scanning is disabled")
		}

		svc := app.NewAppService(app.NewServices(pool), store, scanner, env.Log)
		return svc, pool.Close, nil
	}
}

func newMigrateCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.NewPool(cmd.Context(), env.Config.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(cmd.Context(), pool, env.Log)
		},
	}
}

func newServeCommand(env *Env) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.Config.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrate {
				pool, err := db.NewPool(ctx, env.Config.DatabaseURL)
				if err != nil {
					return err
				}
				err = db.Migrate(ctx, pool, env.Log)
				pool.Close()
				if err != nil {
					return err
				}
			}

			svc, closeFn, err := env.Open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			go jobs.NewReminderJob(svc, env.Config.ReminderLeadDays, env.Config.ReminderAt, env.Log).Process(ctx)

			srv := &http.Server{
				Addr: ":" + env.Config.ServerPort,
				Handler: web.NewHandler(svc, web.Options{
					AllowedOrigins:   env.Config.AllowedOrigins,
					JWTSecret:        env.Config.JWTSecret,
					TokenTTL:         env.Config.TokenTTL,
					ReminderLeadDays: env.Config.ReminderLeadDays,
					Log:              env.Log,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				env.Log.WithField("addr", srv.Addr).Info("server starting")
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server: %w", err)
			case <-ctx.Done():
			}

			env.Log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}
