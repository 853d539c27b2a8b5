// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mrveiss/pureboot/pkg/node"
	"github.com/mrveiss/pureboot/pkg/validation"
)

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}
	writeList(w, groups, len(groups))
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := s.store.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "GroupNotFound", err.Error())
		return
	}
	writeData(w, http.StatusOK, g)
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var g node.DeviceGroup
	if !decodeJSON(w, r, &g) {
		return
	}
	now := time.Now()
	g.ID = uuid.NewString()
	g.CreatedAt = now
	g.UpdatedAt = now

	if err := validation.ValidateStruct(&g); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationFailed", err.Error())
		return
	}
	if err := s.store.CreateGroup(r.Context(), &g); err != nil {
		writeError(w, http.StatusInternalServerError, "CreateFailed", err.Error())
		return
	}
	writeData(w, http.StatusCreated, &g)
}

type groupPatch struct {
	Name              *string           `json:"name"`
	DefaultWorkflowID *string           `json:"defaultWorkflowId"`
	AutoProvision     *bool             `json:"autoProvision"`
	IsSite            *bool             `json:"isSite"`
	AgentConfig       *node.AgentConfig `json:"agentConfig"`
}

func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := s.store.GetGroup(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "GroupNotFound", err.Error())
		return
	}

	var patch groupPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.DefaultWorkflowID != nil {
		g.DefaultWorkflowID = *patch.DefaultWorkflowID
	}
	if patch.AutoProvision != nil {
		g.AutoProvision = *patch.AutoProvision
	}
	if patch.IsSite != nil {
		g.IsSite = *patch.IsSite
	}
	if patch.AgentConfig != nil {
		g.AgentConfig = *patch.AgentConfig
	}
	g.UpdatedAt = time.Now()

	if err := validation.ValidateStruct(g); err != nil {
		writeError(w, http.StatusBadRequest, "ValidationFailed", err.Error())
		return
	}
	if err := s.store.UpdateGroup(r.Context(), g); err != nil {
		writeError(w, http.StatusInternalServerError, "UpdateFailed", err.Error())
		return
	}
	writeData(w, http.StatusOK, g)
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteGroup(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "DeleteFailed", err.Error())
		return
	}
	writeMessage(w, http.StatusOK, "group deleted")
}
