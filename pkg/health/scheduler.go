// Copyright © 2026 PureBoot Contributors
//
// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mrveiss/pureboot/pkg/node"
)

// Scheduler wraps the monitor's recurring jobs (health_check,
// health_snapshot, health_cleanup) in a robfig/cron/v3 scheduler. Jobs run with SkipIfStillRunning so a slow
// check never overlaps itself.
type Scheduler struct {
	cron    *cron.Cron
	monitor *Monitor
	store   Store
	cfg     Config
	logger  *log.Logger
}

// NewScheduler constructs a Scheduler. logger may be nil.
func NewScheduler(monitor *Monitor, store Store, cfg Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "health: ", log.LstdFlags)
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	return &Scheduler{cron: c, monitor: monitor, store: store, cfg: cfg, logger: logger}
}

// Start registers and starts the scheduled jobs. The check runs every
// minute and the cleanup daily at 03:00 local time; the snapshot interval
// and retention come from Config.
func (s *Scheduler) Start() error {
	checkSpec := "@every 1m"
	if _, err := s.cron.AddFunc(checkSpec, s.runCheck); err != nil {
		return err
	}

	snapshotMinutes := s.cfg.SnapshotIntervalMinutes
	if snapshotMinutes <= 0 {
		snapshotMinutes = 5
	}
	snapshotSpec := "@every " + time.Duration(snapshotMinutes*int(time.Minute)).String()
	if _, err := s.cron.AddFunc(snapshotSpec, s.runSnapshot); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc("0 3 * * *", s.runCleanup); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and blocks until any in-flight job returns.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runCheck() {
	if err := s.monitor.CheckAll(context.Background()); err != nil {
		s.logger.Printf("health_check job failed: %v", err)
	}
}

func (s *Scheduler) runSnapshot() {
	ctx := context.Background()
	nodes, err := s.store.ListNonRetiredNodes(ctx)
	if err != nil {
		s.logger.Printf("health_snapshot job failed to list nodes: %v", err)
		return
	}

	now := time.Now()
	for _, n := range nodes {
		secondsSinceSeen := int64(-1)
		if n.LastSeenAt != nil {
			secondsSinceSeen = int64(now.Sub(*n.LastSeenAt).Seconds())
		}
		snap := &node.NodeHealthSnapshot{
			ResourceMeta:     node.ResourceMeta{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now},
			NodeID:           n.ID,
			Time:             now,
			HealthStatus:     n.HealthStatus,
			HealthScore:      n.HealthScore,
			SecondsSinceSeen: secondsSinceSeen,
			BootCount:        n.BootCount,
			InstallAttempts:  n.InstallAttempts,
			IP:               n.IP,
		}
		if err := s.store.InsertSnapshot(ctx, snap); err != nil {
			s.logger.Printf("health_snapshot job failed to insert snapshot for %s: %v", n.ID, err)
		}
	}
}

func (s *Scheduler) runCleanup() {
	retentionDays := s.cfg.SnapshotRetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.store.DeleteSnapshotsOlderThan(context.Background(), cutoff)
	if err != nil {
		s.logger.Printf("health_cleanup job failed: %v", err)
		return
	}
	if deleted > 0 {
		s.logger.Printf("health_cleanup pruned %d snapshots older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
