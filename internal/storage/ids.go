// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package storage

import "github.com/google/uuid"

func newID() string {
	return uuid.NewString()
}
