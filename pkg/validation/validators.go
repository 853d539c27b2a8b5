// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package validation provides the domain-specific validators used across the
// node lifecycle engine: MAC normalization, legal state names, path safety,
// plus a shared struct validator for entity Validate methods.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mrveiss/pureboot/pkg/node"
)

// structValidator is shared across entity Validate(ctx) implementations
// that use struct `validate:"..."` tags.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs go-playground/validator over v's `validate` tags.
func ValidateStruct(v any) error {
	if err := structValidator.Struct(v); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// validStates is the closed set of legal node lifecycle states, expressed
// as an explicit set rather than left as a free-form string.
var validStates = map[node.State]bool{
	node.StateDiscovered:     true,
	node.StateIgnored:        true,
	node.StatePending:        true,
	node.StateInstalling:     true,
	node.StateInstalled:      true,
	node.StateActive:         true,
	node.StateReprovision:    true,
	node.StateMigrating:      true,
	node.StateRetired:        true,
	node.StateDecommissioned: true,
	node.StateWiping:         true,
	node.StateInstallFailed:  true,
}

// ValidateState reports whether s is one of the enumerated lifecycle states.
func ValidateState(s node.State) bool {
	return validStates[s]
}

// ValidateMAC validates MAC address format. An empty value is accepted as
// "not provided" at this layer; callers that require a MAC must check for
// emptiness themselves.
func ValidateMAC(mac string) bool {
	if mac == "" {
		return true
	}
	_, err := net.ParseMAC(mac)
	return err == nil
}

// NormalizeMAC lowercases and colon-separates a MAC address. It is
// idempotent: NormalizeMAC(NormalizeMAC(x)) == NormalizeMAC(x) for any valid
// MAC string x.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("invalid MAC address %q: %w", mac, err)
	}
	return strings.ToLower(hw.String()), nil
}

// ValidateProgress reports whether p is within the documented 0-100 range.
func ValidateProgress(p int) bool {
	return p >= 0 && p <= 100
}

// ValidateURLOrPath validates URL format or an absolute file path, for
// workflow kernel/initrd path fields.
func ValidateURLOrPath(value string) bool {
	if value == "" {
		return false
	}
	if parsedURL, err := url.Parse(value); err == nil {
		if parsedURL.Scheme == "http" || parsedURL.Scheme == "https" {
			return true
		}
	}
	if strings.HasPrefix(value, "/") {
		return len(value) > 1
	}
	return false
}

// ValidateURLOrPathOptional is ValidateURLOrPath but allows an empty value.
func ValidateURLOrPathOptional(value string) bool {
	if value == "" {
		return true
	}
	return ValidateURLOrPath(value)
}

// ValidateRelativePath reports whether p is a safe relative path for file
// serving: no "..", no absolute path, no leading slash after cleaning.
func ValidateRelativePath(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	cleaned := filepath.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return false
	}
	return true
}
