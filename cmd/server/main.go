// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/unclebandit/leadflow-backend/internal/app"
	"github.com/unclebandit/leadflow-backend/internal/config"
	"github.com/unclebandit/leadflow-backend/internal/controller"
	"github.com/unclebandit/leadflow-backend/internal/handler"
	"github.com/unclebandit/leadflow-backend/internal/logger"
)

func main() {
	config.LoadEnv()

	cmd := &cli.Command{
		Name:   "leadflow-server",
		Usage:  "Serve the campaign REST API",
		Flags:  config.Flags(),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.StartLocalConsumer(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(controller.NewCampaignController(a.Campaigns), &handler.TickHandler{Ticks: a.Ticks}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(campaigns *controller.CampaignController, ticks *handler.TickHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		handler.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/ticks", func(r chi.Router) {
		r.Post("/delays", ticks.ResumeDelays)
		r.Post("/slots", ticks.ProcessSlots)
	})

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireTenant)
		campaigns.Routes(r)
	})
	return r
}
