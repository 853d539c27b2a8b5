// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

// Package siteagent implements the reduced controller that runs at a remote
// site: connectivity monitoring, a cached view of node/content state, an
// offline boot generator, a persistent sync queue, and conflict detection
// on reconnect. The connectivity check runs as a standalone poll loop with
// listener fan-out.
package siteagent

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// ConnectivityListener is invoked on every monotonic online<->offline flip.
type ConnectivityListener func(online bool)

// Connectivity polls the central controller's health endpoint and latches
// offline only after a run of consecutive failures
type Connectivity struct {
	healthURL        string
	checkInterval    time.Duration
	timeout          time.Duration
	failureThreshold int
	client           *http.Client
	logger           *log.Logger

	mu               sync.RWMutex
	online           bool
	consecutiveFails int
	lastOnlineAt     time.Time
	listeners        []ConnectivityListener

	stop chan struct{}
	once sync.Once
}

// NewConnectivity constructs a Connectivity monitor, starting in the online
// state (a fresh agent assumes reachability until proven otherwise).
func NewConnectivity(healthURL string, checkInterval, timeout time.Duration, failureThreshold int, logger *log.Logger) *Connectivity {
	if logger == nil {
		logger = log.New(log.Writer(), "siteagent: ", log.LstdFlags)
	}
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &Connectivity{
		healthURL:        healthURL,
		checkInterval:    checkInterval,
		timeout:          timeout,
		failureThreshold: failureThreshold,
		client:           &http.Client{},
		logger:           logger,
		online:           true,
		lastOnlineAt:     time.Now(),
		stop:             make(chan struct{}),
	}
}

// OnFlip registers a listener invoked whenever online/offline status
// changes. Must be called before Start for deterministic ordering, though
// it is safe to call at any time.
func (c *Connectivity) OnFlip(l ConnectivityListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// IsOnline reports the latched connectivity state.
func (c *Connectivity) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// LastOnlineAt returns the last time the agent was known online.
func (c *Connectivity) LastOnlineAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastOnlineAt
}

// OfflineDuration returns how long the agent has been offline, or zero if
// currently online.
func (c *Connectivity) OfflineDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.online {
		return 0
	}
	return time.Since(c.lastOnlineAt)
}

// Start runs the poll loop until Stop is called.
func (c *Connectivity) Start() {
	go func() {
		ticker := time.NewTicker(c.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.probe()
			}
		}
	}()
}

// Stop halts the poll loop.
func (c *Connectivity) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Connectivity) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	ok := c.checkOnce(ctx)
	c.record(ok)
}

// checkOnce performs a single health check. A probe whose context was
// cancelled does not count toward the failure threshold; it simply returns
// true to avoid penalizing the node for a local cancellation rather than a
// real connectivity failure. A probe that runs past its timeout (context
// deadline exceeded) counts as a failure.
func (c *Connectivity) checkOnce(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return true
		}
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Connectivity) record(ok bool) {
	c.mu.Lock()
	wasOnline := c.online
	var flip bool

	if ok {
		c.consecutiveFails = 0
		if !c.online {
			c.online = true
			flip = true
		}
		c.lastOnlineAt = time.Now()
	} else {
		c.consecutiveFails++
		if c.online && c.consecutiveFails >= c.failureThreshold {
			c.online = false
			flip = true
		}
	}
	listeners := append([]ConnectivityListener{}, c.listeners...)
	nowOnline := c.online
	c.mu.Unlock()

	if flip {
		c.logger.Printf("connectivity flipped %v -> %v", wasOnline, nowOnline)
		for _, l := range listeners {
			l(nowOnline)
		}
	}
}
