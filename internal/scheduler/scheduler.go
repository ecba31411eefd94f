// Package scheduler runs recurring discovery sweeps on cron schedules
// taken from configuration. Each firing submits a normal discovery scan
// through the orchestrator, so scheduled runs show up in scan history
// and the device registry exactly like manual ones.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/asplund/netasset/internal/config"
	"github.com/asplund/netasset/internal/logging"
	"github.com/asplund/netasset/internal/scan"
)

// Scheduler owns the cron runner and the set of registered schedules.
type Scheduler struct {
	orchestrator *scan.Orchestrator
	cron         *cron.Cron
	logger       *logging.Logger

	mu   sync.Mutex
	jobs map[string]*Entry
}

// Entry describes one registered schedule.
type Entry struct {
	Name         string
	CronExpr     string
	NetworkRange string
	NextRun      time.Time

	cronID cron.EntryID
}

// New creates a scheduler that submits discovery scans through the
// given orchestrator.
func New(orchestrator *scan.Orchestrator) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		cron:         cron.New(),
		logger:       logging.Default().WithComponent("scheduler"),
		jobs:         make(map[string]*Entry),
	}
}

// AddSchedule validates and registers one recurring discovery sweep.
// Disabled schedules are skipped, not errors, so a config reload with a
// toggled-off entry stays valid.
func (s *Scheduler) AddSchedule(sc config.ScheduleConfig) error {
	if !sc.Enabled {
		s.logger.Info("Skipping disabled schedule", "name", sc.Name)
		return nil
	}

	schedule, err := cron.ParseStandard(sc.Cron)
	if err != nil {
		return fmt.Errorf("schedule %q: invalid cron expression: %w", sc.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[sc.Name]; exists {
		return fmt.Errorf("schedule %q already registered", sc.Name)
	}

	name, networkRange := sc.Name, sc.NetworkRange
	cronID, err := s.cron.AddFunc(sc.Cron, func() {
		s.runSweep(name, networkRange)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", sc.Name, err)
	}

	s.jobs[sc.Name] = &Entry{
		Name:         sc.Name,
		CronExpr:     sc.Cron,
		NetworkRange: sc.NetworkRange,
		NextRun:      schedule.Next(time.Now()),
		cronID:       cronID,
	}

	s.logger.Info("Registered discovery schedule",
		"name", sc.Name, "cron", sc.Cron, "network", sc.NetworkRange)
	return nil
}

// Start begins firing registered schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "schedules", len(s.Entries()))
}

// Stop stops the cron runner and waits for a firing in progress to
// return. Scans already submitted keep running in the orchestrator.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// Entries returns a snapshot of registered schedules.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entry := *e
		if cronEntry := s.cron.Entry(e.cronID); cronEntry.ID == e.cronID {
			entry.NextRun = cronEntry.Next
		}
		entries = append(entries, entry)
	}
	return entries
}

// runSweep submits one scheduled discovery scan. Submission failures
// are logged and swallowed; the schedule keeps firing.
func (s *Scheduler) runSweep(name, networkRange string) {
	scanRecord, err := s.orchestrator.SubmitDiscovery(context.Background(), networkRange)
	if err != nil {
		s.logger.ErrorDiscovery("Scheduled discovery submission failed", networkRange, err,
			"schedule", name)
		return
	}
	s.logger.InfoDiscovery("Scheduled discovery submitted", networkRange,
		"schedule", name, "scan_id", scanRecord.ID)
}
