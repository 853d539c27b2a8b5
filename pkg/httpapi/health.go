// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mrveiss/pureboot/pkg/node"
)

func (s *Server) healthSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.monitor.Summarize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SummaryFailed", err.Error())
		return
	}
	writeData(w, http.StatusOK, summary)
}

// listAlerts returns active alerts, optionally filtered by status, severity
// or node. Storage exposes only ListActiveAlerts, so finer filtering happens
// in-process rather than via a dedicated query.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListActiveAlerts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}

	q := r.URL.Query()
	status := q.Get("status")
	severity := q.Get("severity")
	nodeID := q.Get("node_id")

	var filtered []*node.HealthAlert
	for _, a := range alerts {
		if status != "" && string(a.Status) != status {
			continue
		}
		if severity != "" && string(a.Severity) != severity {
			continue
		}
		if nodeID != "" && a.NodeID != nodeID {
			continue
		}
		filtered = append(filtered, a)
	}
	writeList(w, filtered, len(filtered))
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		By string `json:"by"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.By == "" {
		req.By = "operator"
	}

	if err := s.store.AcknowledgeAlert(r.Context(), id, req.By, time.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, "AcknowledgeFailed", err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "alert acknowledged")
}

func (s *Server) getNodeHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NodeNotFound", err.Error())
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"nodeId":       n.ID,
		"healthStatus": n.HealthStatus,
		"healthScore":  n.HealthScore,
		"lastSeenAt":   n.LastSeenAt,
	})
}

func (s *Server) getNodeHealthHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hours := 24
	if v, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && v >= 1 && v <= 168 {
		hours = v
	}

	limit := 500
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	snapshots, err := s.store.ListSnapshotsForNode(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	var filtered []*node.NodeHealthSnapshot
	for _, snap := range snapshots {
		if snap.Time.After(cutoff) {
			filtered = append(filtered, snap)
		}
	}
	writeList(w, filtered, len(filtered))
}
