package main

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gcbaptista/go-autocomplete/api"
	"github.com/gcbaptista/go-autocomplete/config"
	"github.com/gcbaptista/go-autocomplete/internal/counterstore"
	"github.com/gcbaptista/go-autocomplete/internal/engine"
	"github.com/gcbaptista/go-autocomplete/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// loadSettings merges the config file, environment and command line flags, in
// increasing order of precedence.
func loadSettings() (config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return settings, err
	}

	if port != "" {
		settings.Server.Port = port
	}
	if redisURL != "" {
		settings.Store.RedisURL = redisURL
		if storeType == "" {
			settings.Store.Backend = config.BackendRedis
		}
	}
	if storeType != "" {
		settings.Store.Backend = storeType
	}
	if environment != "" {
		settings.Environment = environment
	}

	if problems := settings.Validate(); len(problems) > 0 {
		return settings, fmt.Errorf("invalid settings: %s", strings.Join(problems, "; "))
	}
	return settings, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	log := logger.New(logger.Environment(settings.Environment))
	if settings.Environment != string(logger.Dev) {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := counterstore.Open(settings.Store, log)
	if err != nil {
		return fmt.Errorf("open counter store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close counter store", "error", err)
		}
	}()

	eng := engine.NewEngine(store, settings, log)
	if err := eng.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + settings.Server.Port,
		Handler:           api.NewRouter(eng, settings, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("autocomplete backend listening",
			"addr", server.Addr,
			"store", settings.Store.Backend,
			"replica_id", eng.Stats().ReplicaID,
			"version", version)
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		serverErr := server.Shutdown(shutdownCtx)
		return stdErrors.Join(serverErr, eng.Stop())
	})

	return g.Wait()
}
