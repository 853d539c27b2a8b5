// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/pkg/ingest"
	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/statemachine"
	"github.com/mrveiss/pureboot/pkg/validation"
)

// nodeFilter captures the query parameters GET /nodes accepts.
type nodeFilter struct {
	state   string
	groupID string
	tag     string
	limit   int
	offset  int
}

func parseNodeFilter(r *http.Request) nodeFilter {
	q := r.URL.Query()
	f := nodeFilter{
		state:   q.Get("state"),
		groupID: q.Get("group_id"),
		tag:     q.Get("tag"),
		limit:   100,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.offset = v
	}
	return f
}

func (f nodeFilter) matches(n *node.Node) bool {
	if f.state != "" && string(n.State) != f.state {
		return false
	}
	if f.groupID != "" && n.GroupID != f.groupID {
		return false
	}
	if f.tag != "" && !n.HasTag(f.tag) {
		return false
	}
	return true
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.ListNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}

	f := parseNodeFilter(r)
	var filtered []*node.Node
	for _, n := range all {
		if f.matches(n) {
			filtered = append(filtered, n)
		}
	}

	total := len(filtered)
	if f.offset < len(filtered) {
		end := f.offset + f.limit
		if end > len(filtered) {
			end = len(filtered)
		}
		filtered = filtered[f.offset:end]
	} else {
		filtered = nil
	}

	writeList(w, filtered, total)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NodeNotFound", err.Error())
		return
	}
	writeData(w, http.StatusOK, n)
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	var n node.Node
	if !decodeJSON(w, r, &n) {
		return
	}

	mac, err := validation.NormalizeMAC(n.MAC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidMAC", err.Error())
		return
	}
	n.MAC = mac

	if existing, err := s.store.GetNodeByMAC(r.Context(), mac); err == nil && existing != nil {
		writeError(w, http.StatusConflict, "MACConflict", "a node with this MAC already exists")
		return
	}

	now := time.Now()
	n.ID = uuid.NewString()
	n.CreatedAt = now
	n.UpdatedAt = now
	n.StateChangedAt = now
	if n.State == "" {
		n.State = node.StateDiscovered
	}
	if n.HealthStatus == "" {
		n.HealthStatus = node.HealthUnknown
	}
	if n.HealthScore == 0 {
		n.HealthScore = 100
	}
	if err := validation.ValidateStruct(&n); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationFailed", err.Error())
		return
	}

	if err := s.store.CreateNode(r.Context(), &n); err != nil {
		writeError(w, http.StatusInternalServerError, "CreateFailed", err.Error())
		return
	}
	writeData(w, http.StatusCreated, &n)
}

// nodePatch is the set of node fields PATCH /nodes/{id} may update.
// State changes go through PATCH /nodes/{id}/state instead.
type nodePatch struct {
	Hostname   *string  `json:"hostname"`
	GroupID    *string  `json:"groupId"`
	WorkflowID *string  `json:"workflowId"`
	Tags       []string `json:"tags"`
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetNode(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "NodeNotFound", err.Error())
		return
	}

	var patch nodePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	// Reload fresh under the node's lock, shared with statemachine.Machine,
	// so this patch can never race a concurrent transition or health
	// recompute and overwrite it with a stale row.
	var n *node.Node
	err := s.machine.WithNodeLock(id, func() error {
		fresh, err := s.store.GetNode(r.Context(), id)
		if err != nil {
			return err
		}
		if patch.Hostname != nil {
			fresh.Hostname = *patch.Hostname
		}
		if patch.GroupID != nil {
			fresh.GroupID = *patch.GroupID
		}
		if patch.WorkflowID != nil {
			fresh.WorkflowID = *patch.WorkflowID
		}
		if patch.Tags != nil {
			fresh.Tags = patch.Tags
		}
		fresh.UpdatedAt = time.Now()
		if err := s.store.SaveNode(r.Context(), fresh); err != nil {
			return err
		}
		n = fresh
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SaveFailed", err.Error())
		return
	}
	writeData(w, http.StatusOK, n)
}

// deleteNode implements "delete" as a transition to retired, never a hard
// row delete, so history (events, state logs) is preserved.
func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := s.machine.Transition(r.Context(), id, node.StateRetired, node.TriggeredByAdmin, nil)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "node retired")
}

type stateTransitionRequest struct {
	State node.State `json:"state"`
}

func (s *Server) transitionNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req stateTransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validation.ValidateState(req.State) {
		writeError(w, http.StatusBadRequest, "InvalidState", string(req.State))
		return
	}

	updated, err := s.machine.Transition(r.Context(), id, req.State, node.TriggeredByAdmin, nil)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	writeData(w, http.StatusOK, updated)
}

func writeTransitionError(w http.ResponseWriter, err error) {
	var invalid *statemachine.InvalidStateTransition
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, "InvalidStateTransition", invalid.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "TransitionFailed", err.Error())
}

type tagRequest struct {
	Tag string `json:"tag"`
}

func (s *Server) addTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetNode(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "NodeNotFound", err.Error())
		return
	}
	var req tagRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var n *node.Node
	err := s.machine.WithNodeLock(id, func() error {
		fresh, err := s.store.GetNode(r.Context(), id)
		if err != nil {
			return err
		}
		fresh.AddTag(req.Tag)
		fresh.UpdatedAt = time.Now()
		if err := s.store.SaveNode(r.Context(), fresh); err != nil {
			return err
		}
		n = fresh
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SaveFailed", err.Error())
		return
	}
	writeData(w, http.StatusOK, n)
}

func (s *Server) removeTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tag := chi.URLParam(r, "tag")
	if _, err := s.store.GetNode(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "NodeNotFound", err.Error())
		return
	}

	var n *node.Node
	err := s.machine.WithNodeLock(id, func() error {
		fresh, err := s.store.GetNode(r.Context(), id)
		if err != nil {
			return err
		}
		fresh.RemoveTag(tag)
		fresh.UpdatedAt = time.Now()
		if err := s.store.SaveNode(r.Context(), fresh); err != nil {
			return err
		}
		n = fresh
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SaveFailed", err.Error())
		return
	}
	writeData(w, http.StatusOK, n)
}

func (s *Server) reportStatus(w http.ResponseWriter, r *http.Request) {
	var report node.StatusReport
	if !decodeJSON(w, r, &report) {
		return
	}
	clientIP := r.RemoteAddr
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		clientIP = realIP
	}

	updated, err := s.pipeline.Ingest(r.Context(), clientIP, report)
	if err != nil {
		if errors.Is(err, ingest.ErrNodeNotFound) {
			writeError(w, http.StatusNotFound, "NodeNotFound", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "ReportFailed", err.Error())
		return
	}
	writeData(w, http.StatusOK, updated)
}

func (s *Server) listStalledNodes(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.ListNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}

	if s.cfg.InstallTimeoutMinutes <= 0 {
		writeList(w, []*node.Node{}, 0)
		return
	}
	timeout := time.Duration(s.cfg.InstallTimeoutMinutes) * time.Minute

	var stalled []*node.Node
	now := time.Now()
	for _, n := range all {
		if n.State == node.StateInstalling && now.Sub(n.StateChangedAt) > timeout {
			stalled = append(stalled, n)
		}
	}
	writeList(w, stalled, len(stalled))
}

func (s *Server) listNodeEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	events, err := s.store.ListEventsForNode(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}

	eventType := r.URL.Query().Get("event_type")
	if eventType != "" {
		var filtered []*node.NodeEvent
		for _, e := range events {
			if string(e.Event) == eventType {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeList(w, events, len(events))
}
