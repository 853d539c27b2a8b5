// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Main entry point for the PureBoot controller
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrveiss/pureboot/internal/config"
	"github.com/mrveiss/pureboot/internal/storage"
	"github.com/mrveiss/pureboot/pkg/auth"
	"github.com/mrveiss/pureboot/pkg/bootengine"
	"github.com/mrveiss/pureboot/pkg/broadcast"
	"github.com/mrveiss/pureboot/pkg/health"
	"github.com/mrveiss/pureboot/pkg/httpapi"
	"github.com/mrveiss/pureboot/pkg/ingest"
	"github.com/mrveiss/pureboot/pkg/statemachine"
	"github.com/mrveiss/pureboot/pkg/workflow"
)

var (
	v       = viper.New()
	rootCmd = &cobra.Command{
		Use:   "pureboot-controller",
		Short: "PureBoot controller",
		Long:  "The central controller: node inventory, state machine, boot decisions and HTTP API.",
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the controller server",
		RunE:  runServe,
	}
)

func init() {
	config.BindControllerFlags(serveCmd, v)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	config.BindEnv(v, "controller")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("error reading config file: %v", err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error { //nolint:revive
	cfg := config.DefaultController()
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("starting pureboot-controller on %s:%d", cfg.Host, cfg.Port)
	log.Printf("storage: backend=%s auto-register=%v", cfg.StorageBackend, cfg.AutoRegister)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close() //nolint:errcheck

	if err := storage.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		return fmt.Errorf("constructing storage backend: %w", err)
	}

	hub := broadcast.NewHub()
	machine := statemachine.New(store, hub, cfg.MaxInstallAttempts)
	resolver := workflow.NewResolver(cfg.WorkflowDir)

	boot := bootengine.NewController(store, machine, resolver, bootengine.Config{
		AutoRegister:          cfg.AutoRegister,
		DefaultGroupID:        cfg.DefaultGroupID,
		ServerURL:             fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		InstallTimeoutMinutes: cfg.InstallTimeoutMinutes,
		DiscoveryWaitSeconds:  cfg.DiscoveryWaitSeconds,
		MaxInstallAttempts:    cfg.MaxInstallAttempts,
	}, log.New(os.Stdout, "bootengine: ", log.LstdFlags))

	monitor := health.NewMonitor(store, hub, machine, health.Config{
		StaleThresholdMinutes:   cfg.StaleThresholdMinutes,
		OfflineThresholdMinutes: cfg.OfflineThresholdMinutes,
		Weights: health.Weights{
			Staleness: cfg.ScoreStalenessWeight,
			Install:   cfg.ScoreInstallWeight,
			Boot:      cfg.ScoreBootWeight,
		},
		AlertOnStale:            cfg.AlertOnStale,
		AlertOnOffline:          cfg.AlertOnOffline,
		AlertOnScoreBelow:       cfg.AlertOnScoreBelow,
		SnapshotIntervalMinutes: cfg.SnapshotIntervalMinutes,
		SnapshotRetentionDays:   cfg.SnapshotRetentionDays,
	})

	scheduler := health.NewScheduler(monitor, store, health.Config{
		SnapshotIntervalMinutes: cfg.SnapshotIntervalMinutes,
		SnapshotRetentionDays:   cfg.SnapshotRetentionDays,
	}, log.New(os.Stdout, "health: ", log.LstdFlags))
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting health scheduler: %w", err)
	}
	defer scheduler.Stop()

	pipeline := ingest.New(store, machine, monitor, log.New(os.Stdout, "ingest: ", log.LstdFlags))

	var authCfg *auth.Config
	if cfg.EnableAuth {
		ac := auth.DefaultConfig()
		ac.JWKSURL = cfg.JWKSEndpoint
		ac.JWTPublicKey = cfg.StaticJWTKey
		authCfg = &ac
	}

	srv := httpapi.NewServer(
		store, machine, boot, pipeline, monitor, resolver, backend, hub, authCfg,
		httpapi.Config{EnableAuth: cfg.EnableAuth, InstallTimeoutMinutes: cfg.InstallTimeoutMinutes},
		log.New(os.Stdout, "httpapi: ", log.LstdFlags),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("shutting down controller...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
		cancel()
	}()

	log.Printf("controller listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	<-ctx.Done()
	log.Println("controller stopped")
	return nil
}

func buildBackend(cfg config.Controller) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "local":
		return storage.NewLocalBackend(cfg.DataDir)
	case "azure":
		return storage.NewAzureBackend(cfg.AzureConnStr, cfg.AzureContainer)
	case "iscsi":
		return &storage.ISCSIBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown storage_backend: %s", cfg.StorageBackend)
	}
}
