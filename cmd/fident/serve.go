package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/AlexZinkM/fident/docs"
	"github.com/AlexZinkM/fident/internal/api"
	"github.com/AlexZinkM/fident/internal/config"
	"github.com/AlexZinkM/fident/internal/handler"
	"github.com/AlexZinkM/fident/internal/model"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local onboarding API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.machine.Resolve(ctx); err != nil {
				a.log.Warn("initial resolve failed; retry via POST /onboarding/resolve",
					zap.String("code", model.Code(err)), zap.Error(err))
			}

			h := handler.NewOnboardingHandler(a.machine, a.ledger, a.cfg.RemoteTimeout*2, a.log.Named("api"))
			srv := &http.Server{
				Addr:              config.GetListenAddr(),
				Handler:           api.SetupRouter(h, api.Options{RateLimit: a.cfg.APIRateLimit, Log: a.log.Named("http")}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("swagger", "http://"+srv.Addr+"/swagger/index.html"))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				a.log.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
