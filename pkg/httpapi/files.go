// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mrveiss/pureboot/internal/storage"
)

// getFile streams a single file from the configured storage backend,
// exposing its checksum via ETag and X-Checksum-SHA256 so callers can
// verify integrity without a second round trip.
func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/files/")
	if path == "" {
		writeError(w, http.StatusBadRequest, "MissingPath", "no file path given")
		return
	}

	rc, info, checksum, err := s.backend.Read(r.Context(), path)
	if err != nil {
		if errors.Is(err, storage.ErrOperationNotSupported) {
			writeError(w, http.StatusNotImplemented, "NotSupported", err.Error())
			return
		}
		writeError(w, http.StatusNotFound, "FileNotFound", err.Error())
		return
	}
	defer rc.Close()

	w.Header().Set("ETag", `"sha256:`+checksum+`"`)
	w.Header().Set("X-Checksum-SHA256", checksum)
	w.Header().Set("Content-Length", strconv.FormatInt(info.SizeBytes, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc) //nolint:errcheck
}
