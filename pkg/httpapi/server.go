// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mrveiss/pureboot/internal/storage"
	"github.com/mrveiss/pureboot/pkg/auth"
	"github.com/mrveiss/pureboot/pkg/bootengine"
	"github.com/mrveiss/pureboot/pkg/broadcast"
	"github.com/mrveiss/pureboot/pkg/health"
	"github.com/mrveiss/pureboot/pkg/ingest"
	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/statemachine"
	"github.com/mrveiss/pureboot/pkg/workflow"
)

// Store is the full persistence contract the HTTP surface needs, satisfied
// by *internal/storage.Store.
type Store interface {
	GetNode(ctx context.Context, id string) (*node.Node, error)
	GetNodeByMAC(ctx context.Context, mac string) (*node.Node, error)
	CreateNode(ctx context.Context, n *node.Node) error
	SaveNode(ctx context.Context, n *node.Node) error
	ListNodes(ctx context.Context) ([]*node.Node, error)
	DeleteNode(ctx context.Context, id string) error
	AppendStateLog(ctx context.Context, log *node.NodeStateLog) error
	AppendEvent(ctx context.Context, evt *node.NodeEvent) error
	ListEventsForNode(ctx context.Context, nodeID string, limit int) ([]*node.NodeEvent, error)
	ListStateLogForNode(ctx context.Context, nodeID string, limit int) ([]*node.NodeStateLog, error)
	ListRecentEvents(ctx context.Context, limit int) ([]*node.NodeEvent, error)

	CreateGroup(ctx context.Context, g *node.DeviceGroup) error
	GetGroup(ctx context.Context, id string) (*node.DeviceGroup, error)
	ListGroups(ctx context.Context) ([]*node.DeviceGroup, error)
	UpdateGroup(ctx context.Context, g *node.DeviceGroup) error
	DeleteGroup(ctx context.Context, id string) error

	ActiveAlert(ctx context.Context, nodeID string, alertType node.AlertType) (*node.HealthAlert, error)
	CreateAlert(ctx context.Context, a *node.HealthAlert) error
	ResolveAlert(ctx context.Context, nodeID string, alertType node.AlertType, now time.Time) error
	AcknowledgeAlert(ctx context.Context, alertID, by string, now time.Time) error
	ListActiveAlerts(ctx context.Context) ([]*node.HealthAlert, error)

	InsertSnapshot(ctx context.Context, s *node.NodeHealthSnapshot) error
	DeleteSnapshotsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	ListSnapshotsForNode(ctx context.Context, nodeID string, limit int) ([]*node.NodeHealthSnapshot, error)
}

var (
	_ statemachine.NodeStore = (*storage.Store)(nil)
	_ bootengine.Store       = (*storage.Store)(nil)
	_ ingest.Store           = (*storage.Store)(nil)
	_ health.Store           = (*storage.Store)(nil)
	_ Store                  = (*storage.Store)(nil)
)

// Config holds the options the HTTP server needs beyond what its
// collaborators already carry.
type Config struct {
	EnableAuth            bool
	InstallTimeoutMinutes int
}

// Server wires the node store, state machine, boot engine, ingest
// pipeline, health monitor, workflow resolver and file backend behind a
// chi router.
type Server struct {
	store     Store
	machine   *statemachine.Machine
	boot      *bootengine.Controller
	pipeline  *ingest.Pipeline
	monitor   *health.Monitor
	resolver  *workflow.Resolver
	backend   storage.Backend
	hub       *broadcast.Hub
	auth      *auth.Config
	cfg       Config
	logger    *log.Logger
	router    chi.Router
}

// NewServer constructs a Server and builds its router. authCfg may be nil,
// in which case no auth middleware is mounted and every endpoint is open.
func NewServer(
	store Store,
	machine *statemachine.Machine,
	boot *bootengine.Controller,
	pipeline *ingest.Pipeline,
	monitor *health.Monitor,
	resolver *workflow.Resolver,
	backend storage.Backend,
	hub *broadcast.Hub,
	authCfg *auth.Config,
	cfg Config,
	logger *log.Logger,
) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "httpapi: ", log.LstdFlags)
	}
	s := &Server{
		store:    store,
		machine:  machine,
		boot:     boot,
		pipeline: pipeline,
		monitor:  monitor,
		resolver: resolver,
		backend:  backend,
		hub:      hub,
		auth:     authCfg,
		cfg:      cfg,
		logger:   logger,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"pureboot-controller"}`)) //nolint:errcheck
	})

	r.Get("/boot", s.handleBoot)
	r.Get("/ws", s.handleWebSocket)

	var adminAuth func(http.Handler) http.Handler
	if s.auth != nil {
		adminAuth = s.auth.CreateMiddleware(s.logger)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if adminAuth != nil {
			api.Use(adminAuth)
		}

		api.Route("/nodes", func(rt chi.Router) {
			rt.Get("/", s.listNodes)
			rt.Post("/", s.createNode)
			rt.Get("/stalled", s.listStalledNodes)
			rt.Post("/report", s.reportStatus)
			rt.Route("/{id}", func(rt chi.Router) {
				rt.Get("/", s.getNode)
				rt.Patch("/", s.updateNode)
				rt.Delete("/", s.deleteNode)
				rt.Patch("/state", s.transitionNode)
				rt.Post("/tags", s.addTag)
				rt.Delete("/tags/{tag}", s.removeTag)
				rt.Get("/events", s.listNodeEvents)
				rt.Get("/health", s.getNodeHealth)
				rt.Get("/health/history", s.getNodeHealthHistory)
			})
		})

		api.Route("/groups", func(rt chi.Router) {
			rt.Get("/", s.listGroups)
			rt.Post("/", s.createGroup)
			rt.Get("/{id}", s.getGroup)
			rt.Patch("/{id}", s.updateGroup)
			rt.Delete("/{id}", s.deleteGroup)
		})

		api.Route("/workflows", func(rt chi.Router) {
			rt.Get("/", s.listWorkflows)
			rt.Get("/{id}", s.getWorkflow)
		})

		api.Get("/files/*", s.getFile)

		api.Route("/health", func(rt chi.Router) {
			rt.Get("/summary", s.healthSummary)
			rt.Get("/alerts", s.listAlerts)
			rt.Post("/alerts/{id}/acknowledge", s.acknowledgeAlert)
		})

		api.Get("/activity", s.activityFeed)
	})

	return r
}
