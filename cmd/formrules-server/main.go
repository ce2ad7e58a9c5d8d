package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-formrules/internal/config"
	"github.com/goliatone/go-formrules/internal/server"
	"github.com/goliatone/go-formrules/pkg/form"
	"github.com/goliatone/go-formrules/pkg/live"
	"github.com/goliatone/go-formrules/pkg/model"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment")
	anyOrigin := flag.Bool("any-origin", false, "accept WebSocket connections from any origin")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := cfg.Logger(os.Stderr)

	forms, err := model.LoadFS(os.DirFS(cfg.FormsDir))
	if err != nil {
		log.Fatalf("Failed to load forms from %s: %v", cfg.FormsDir, err)
	}
	// Build every form once so broken rules or endpoints fail at start-up.
	for id, def := range forms {
		if _, err := form.New(def, cfg.FormOptions(def, logger)...); err != nil {
			log.Fatalf("Form %s: %v", id, err)
		}
	}

	var liveOpts []live.Option
	if *anyOrigin {
		liveOpts = append(liveOpts, live.WithAllowAnyOrigin())
	}
	handler := server.New(forms, func(def model.FormModel) []form.Option {
		return cfg.FormOptions(def, logger)
	}, logger, liveOpts...)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving forms", "addr", cfg.Addr, "forms", len(forms))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
