// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Main entry point for the PureBoot site agent
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrveiss/pureboot/internal/agentstore"
	"github.com/mrveiss/pureboot/internal/config"
	"github.com/mrveiss/pureboot/pkg/client"
	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/siteagent"
	"github.com/mrveiss/pureboot/pkg/workflow"
)

var (
	v       = viper.New()
	rootCmd = &cobra.Command{
		Use:   "pureboot-agent",
		Short: "PureBoot site agent",
		Long:  "A reduced controller that runs at a remote site: cached inventory, offline boot generation, and a write-behind sync queue to the central controller.",
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the site agent",
		RunE:  runServe,
	}
)

func init() {
	config.BindAgentFlags(serveCmd, v)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	config.BindEnv(v, "agent")
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
	cfg := config.DefaultAgent()
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("starting pureboot-agent on %s:%d, central=%s", cfg.Host, cfg.Port, cfg.CentralURL)

	store, err := agentstore.Open(cfg.LocalStorePath)
	if err != nil {
		return fmt.Errorf("opening local agent store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	centralClient := client.NewClient(cfg.CentralURL, client.WithTimeout(10*time.Second))
	cache := siteagent.NewCache(store, node.CachePolicy(cfg.CachePolicy))
	resolver := workflow.NewResolver(cfg.CacheDir)

	var lastSync time.Time
	bootgen := siteagent.NewBootGenerator(cache, resolver, cfg.CentralURL, func() time.Time { return lastSync })

	conn := siteagent.NewConnectivity(
		cfg.CentralURL+"/healthz",
		time.Duration(cfg.ConnectivityCheckIntervalSecs)*time.Second,
		time.Duration(cfg.ConnectivityTimeoutSecs)*time.Second,
		cfg.ConnectivityFailureThreshold,
		log.New(os.Stdout, "connectivity: ", log.LstdFlags),
	)

	detector := siteagent.NewDetector(store, cache, centralClient, node.ConflictStrategy(cfg.ConflictStrategy))

	processor := siteagent.NewProcessor(store, centralClient, siteagent.ProcessorConfig{
		BatchSize:  cfg.QueueBatchSize,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySecs) * time.Second,
	}, log.New(os.Stdout, "queue: ", log.LstdFlags))
	processor.AttachTo(conn)

	proxy := siteagent.NewProxy(conn, centralClient, store)

	conn.OnFlip(func(online bool) {
		if !online {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := detector.Resync(ctx); err != nil {
			log.Printf("resync after reconnect failed: %v", err)
			return
		}
		lastSync = time.Now()
	})

	conn.Start()
	defer conn.Stop()

	router := buildRouter(bootgen, proxy)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("shutting down site agent...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	log.Printf("site agent listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("site agent stopped")
	return nil
}

func buildRouter(bootgen *siteagent.BootGenerator, proxy *siteagent.Proxy) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/boot", func(w http.ResponseWriter, r *http.Request) {
		mac := r.URL.Query().Get("mac")
		script := bootgen.Decide(mac)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(script))
	})

	r.Route("/api/v1/proxy", func(pr chi.Router) {
		pr.Post("/{nodeId}/{type}", handleProxyWrite(proxy))
	})

	return r
}

func handleProxyWrite(proxy *siteagent.Proxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := chi.URLParam(r, "nodeId")
		itemType := node.QueueItemType(chi.URLParam(r, "type"))

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		result, err := proxy.Write(r.Context(), nodeID, itemType, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if result.Offline {
			w.WriteHeader(http.StatusAccepted)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(result)
	}
}
