// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"net/http"
	"strconv"
)

// activityFeed returns the most recent lifecycle events across every node,
// the cross-node counterpart to GET /nodes/{id}/events.
func (s *Server) activityFeed(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	events, err := s.store.ListRecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ListFailed", err.Error())
		return
	}
	writeList(w, events, len(events))
}
