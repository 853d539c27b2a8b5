// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package client is a small typed HTTP client for the central controller's
// /api/v1 surface, used by the site agent's queue processor, write proxy and
// conflict detector.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a single central controller over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 10s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithToken attaches a bearer token to every request, used when the agent
// authenticates to the controller as a service principal.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient constructs a Client against baseURL (e.g. "https://pureboot.example.com").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors the controller's {success, data, message} response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body for %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, string(raw))
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decoding response for %s %s: %w", method, path, err)
		}
	}
	return &env, nil
}

// RegisterNode creates or re-registers a node against the central controller.
func (c *Client) RegisterNode(ctx context.Context, payload json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/nodes", payload)
	return err
}

// UpdateNodeState pushes a state update for nodeID to the central controller.
func (c *Client) UpdateNodeState(ctx context.Context, nodeID string, payload json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/v1/nodes/"+nodeID+"/state", payload)
	return err
}

// ReportEvent forwards a lifecycle event report to the central controller.
func (c *Client) ReportEvent(ctx context.Context, payload json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/nodes/report", payload)
	return err
}

// HealthOK performs a lightweight health probe, used by the site agent's
// connectivity monitor.
func (c *Client) HealthOK(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListNodes fetches the full current node list from the central controller,
// used by the site agent's conflict-detection resync pull.
func (c *Client) ListNodes(ctx context.Context) ([]NodeSummary, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/v1/nodes", nil)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	var nodes []NodeSummary
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &nodes); err != nil {
			return nil, fmt.Errorf("decoding node list: %w", err)
		}
	}
	return nodes, nil
}

// NodeSummary is the subset of node fields the conflict detector needs from
// a full resync pull.
type NodeSummary struct {
	ID        string    `json:"id"`
	MAC       string    `json:"mac"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`
}
