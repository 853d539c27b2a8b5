// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"net/http"

	"github.com/mrveiss/pureboot/pkg/bootengine"
	"github.com/mrveiss/pureboot/pkg/node"
)

// handleBoot serves the iPXE chain-loader script. It never returns an HTTP
// error: the boot engine always resolves to at least a local-boot script,
// so the response is always 200 text/plain.
func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := bootengine.Request{
		MAC: q.Get("mac"),
		Hints: node.HardwareHints{
			Vendor:     q.Get("vendor"),
			Model:      q.Get("model"),
			Serial:     q.Get("serial"),
			SystemUUID: q.Get("uuid"),
		},
		ClientIP: r.RemoteAddr,
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		req.ClientIP = realIP
	}

	script := s.boot.Decide(r.Context(), req)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(script)) //nolint:errcheck
}
