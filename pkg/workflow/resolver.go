// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package workflow loads, validates and parameterizes workflow definitions
// from disk. It is stateless: every lookup re-reads from disk so operators
// can publish new workflows without restarting the controller. Each
// workflow is a self-describing YAML record keyed by id rather than one
// combined inventory file.
package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrveiss/pureboot/pkg/node"
)

// ErrWorkflowNotFound is returned by Get when no valid record exists for an
// id, including when the record on disk is malformed.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Resolver loads workflow records from a directory, one file per id, and
// substitutes template variables into a workflow's command line.
type Resolver struct {
	dir string
}

// NewResolver constructs a Resolver rooted at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

func (r *Resolver) path(id string) string {
	return filepath.Join(r.dir, id+".yaml")
}

// Get loads and validates the workflow record for id, applying documented
// defaults. A missing or malformed record surfaces as ErrWorkflowNotFound.
func (r *Resolver) Get(id string) (*node.Workflow, error) {
	data, err := os.ReadFile(r.path(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}

	var wf node.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %s is malformed: %v", ErrWorkflowNotFound, id, err)
	}
	if wf.ID == "" || wf.Name == "" || wf.Kernel == "" || wf.Initrd == "" {
		return nil, fmt.Errorf("%w: %s is missing required fields", ErrWorkflowNotFound, id)
	}

	wf.ApplyDefaults()
	return &wf, nil
}

// List returns every valid workflow record in the directory. Malformed
// records are silently skipped from listings
func (r *Resolver) List() ([]*node.Workflow, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workflow directory: %w", err)
	}

	var out []*node.Workflow
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".yaml")
		wf, err := r.Get(id)
		if err != nil {
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

// Variables is the set of substitutable tokens available to a workflow
// command line.
type Variables struct {
	Server string
	NodeID string
	MAC    string
	IP     string
}

// Substitute performs plain-text replacement of the literal tokens
// ${server}, ${node_id}, ${mac}, ${ip} inside cmdline. Unresolved tokens are
// left as-is.
func Substitute(cmdline string, vars Variables) string {
	replacer := strings.NewReplacer(
		"${server}", vars.Server,
		"${node_id}", vars.NodeID,
		"${mac}", vars.MAC,
		"${ip}", vars.IP,
	)
	return replacer.Replace(cmdline)
}
