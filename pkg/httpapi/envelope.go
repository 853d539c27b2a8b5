// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package httpapi implements the controller's /api/v1 HTTP surface: node,
// group, workflow, boot, file-serving, health and activity endpoints, plus
// a websocket subscriber fed by pkg/broadcast.Hub.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// envelope is the singleton response shape: {success, data, message?}.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// listEnvelope is the collection response shape: {success, data[], total}.
type listEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Total   int  `json:"total"`
}

// errorEnvelope is the error response shape: {success:false, error, detail?}.
type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

func writeList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, listEnvelope{Success: true, Data: data, Total: total})
}

func writeError(w http.ResponseWriter, status int, errCode, detail string) {
	writeJSON(w, status, errorEnvelope{Success: false, Error: errCode, Detail: detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequestBody", err.Error())
		return false
	}
	return true
}
