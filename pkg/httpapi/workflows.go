// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mrveiss/pureboot/pkg/workflow"
)

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.resolver.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}
	writeList(w, workflows, len(workflows))
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := s.resolver.Get(id)
	if err != nil {
		if errors.Is(err, workflow.ErrWorkflowNotFound) {
			writeError(w, http.StatusNotFound, "WorkflowNotFound", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "GetFailed", err.Error())
		return
	}
	writeData(w, http.StatusOK, wf)
}
