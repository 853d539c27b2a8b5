// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package ingest

import (
	"fmt"

	"github.com/mrveiss/pureboot/pkg/node"
)

// normalizeLegacyStatus maps the legacy installation_status field onto the
// modern (event, status) pair it is restated as.
func normalizeLegacyStatus(legacy string) (node.EventType, node.EventStatus, error) {
	switch legacy {
	case "started":
		return node.EventInstallStarted, node.StatusInProgress, nil
	case "progress":
		return node.EventInstallProgress, node.StatusInProgress, nil
	case "complete":
		return node.EventInstallComplete, node.StatusSuccess, nil
	case "failed":
		return node.EventInstallFailed, node.StatusFailed, nil
	default:
		return "", "", fmt.Errorf("unknown legacy installation_status %q", legacy)
	}
}

// normalizeReport rewrites a StatusReport's legacy installation_status field
// (if present and event/status are not already set) into the equivalent
// modern event, so the rest of the ingest pipeline only ever needs to
// understand one shape.
func normalizeReport(r node.StatusReport) (node.StatusReport, error) {
	if r.InstallationStatus == "" || r.Event != "" {
		return r, nil
	}
	event, status, err := normalizeLegacyStatus(r.InstallationStatus)
	if err != nil {
		return r, err
	}
	r.Event = event
	r.Status = status
	return r, nil
}
