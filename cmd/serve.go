package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hubeiqiao/Literature-screening/internal/ledger"
	"github.com/hubeiqiao/Literature-screening/internal/pipeline"
	"github.com/hubeiqiao/Literature-screening/internal/provider"
	"github.com/hubeiqiao/Literature-screening/internal/registry"
	"github.com/hubeiqiao/Literature-screening/internal/server"
	"github.com/hubeiqiao/Literature-screening/internal/webhook"
	"github.com/hubeiqiao/Literature-screening/pkg/gemini"
	"github.com/hubeiqiao/Literature-screening/pkg/openrouter"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the triage API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "serve: migrate store")
		}

		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		led := ledger.New(st, !cfg.Billing.LedgerDisabled)

		adapters := []provider.Adapter{
			provider.NewOpenRouter(openrouter.NewClient(openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))),
			provider.NewGemini(gemini.NewClient(gemini.WithBaseURL(cfg.Gemini.BaseURL)), cfg.Gemini.Model),
			provider.NewAnthropic(cfg.Anthropic.Model),
		}

		pipe := pipeline.New(reg, led, st, adapters, cfg.OpenRouter.Key, cfg.Billing.Currency)
		ing := webhook.NewIngester(st, led, cfg.Billing.Currency)

		srv := server.New(pipe, led, st, ing, cfg.Billing.WebhookSecret,
			server.WithCallerResolver(server.HeaderCallerResolver(cfg.Server.CallerHeader)),
			server.WithCORSOrigins(cfg.Server.CORSOrigins),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Router(),
		}

		// Graceful shutdown. The signal context is already cancelled
		// here, so drain on a fresh deadline instead.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("ledger_enabled", led.Enabled()),
			zap.Bool("managed_available", cfg.OpenRouter.Key != ""),
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func loadRegistry() (*registry.Registry, error) {
	if cfg.ModelsFile == "" {
		return registry.Default(), nil
	}
	return registry.LoadFile(cfg.ModelsFile)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
