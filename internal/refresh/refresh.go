// Package refresh keeps subscribed ICS feeds mirrored into the event store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"recall/internal/ics"
	appLog "recall/internal/log"
	"recall/internal/model"
	"recall/internal/store"
)

// Target is what a refresh writes into. calendar.Service implements it.
type Target interface {
	Repository() store.Repository
	Reload(ctx context.Context) error
}

type Config struct {
	// Schedule is a five-field cron expression. Empty disables the
	// background loop; RunOnce still works.
	Schedule string
	Sources  []ics.Source
	Location *time.Location
	// BackfillDays and HorizonDays bound the expanded range around today.
	BackfillDays int
	HorizonDays  int
	CacheDir     string
	Timeout      time.Duration
}

// Report summarizes one import.
type Report struct {
	Sources  int
	Upserted int
	Removed  int
	Skipped  int
	// Kept counts occurrences left alone because they were edited or
	// deleted locally.
	Kept   int
	Errors []error
}

func (r *Report) add(o Report) {
	r.Sources += o.Sources
	r.Upserted += o.Upserted
	r.Removed += o.Removed
	r.Skipped += o.Skipped
	r.Kept += o.Kept
	r.Errors = append(r.Errors, o.Errors...)
}

type Scheduler struct {
	cfg     Config
	target  Target
	fetcher *ics.Fetcher
	cron    *cron.Cron

	now func() time.Time

	// running serializes RunOnce between cron and manual triggers.
	running  sync.Mutex
	stopOnce sync.Once
}

func New(cfg Config, target Target) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	if cfg.BackfillDays < 0 {
		cfg.BackfillDays = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cfg:     cfg,
		target:  target,
		fetcher: ics.NewFetcher(cfg.CacheDir),
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		now: time.Now,
	}
}

// Start registers the schedule and runs until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Schedule == "" || len(s.cfg.Sources) == 0 {
		appLog.Info("refresh disabled", "schedule", s.cfg.Schedule, "sources", len(s.cfg.Sources))
		return nil
	}
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		if _, err := s.RunOnce(runCtx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	appLog.Info("refresh scheduled", "schedule", s.cfg.Schedule, "sources", len(s.cfg.Sources))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		appLog.Info("refresh stopped")
	})
}

// Range is the window occurrences are expanded into, in whole days.
func (s *Scheduler) Range() (time.Time, time.Time) {
	today := model.DayOf(s.now(), s.cfg.Location)
	return today.AddDays(-s.cfg.BackfillDays).Start(s.cfg.Location),
		today.AddDays(s.cfg.HorizonDays).Start(s.cfg.Location)
}

// RunOnce fetches every source, imports what it can and reloads the target.
// A failing source does not abort the others; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	s.running.Lock()
	defer s.running.Unlock()

	started := s.now()
	var report Report

	results, fetchErrs := s.fetcher.FetchAll(ctx, s.cfg.Sources)
	report.Errors = append(report.Errors, fetchErrs...)
	for _, res := range results {
		report.add(s.importLocked(ctx, res.Source, res.Body))
	}

	if err := s.target.Reload(ctx); err != nil {
		report.Errors = append(report.Errors, err)
	}
	appLog.Info("refresh completed",
		"sources", report.Sources,
		"upserted", report.Upserted,
		"removed", report.Removed,
		"kept", report.Kept,
		"errors", len(report.Errors),
		"took", time.Since(started).String(),
	)
	return report, errors.Join(report.Errors...)
}

// Import mirrors one ICS payload (a fetched feed or a local file) into the
// store and reloads.
func (s *Scheduler) Import(ctx context.Context, src ics.Source, body []byte) (Report, error) {
	s.running.Lock()
	defer s.running.Unlock()

	r := s.importLocked(ctx, src, body)
	if err := s.target.Reload(ctx); err != nil {
		r.Errors = append(r.Errors, err)
	}
	return r, errors.Join(r.Errors...)
}

func (s *Scheduler) importLocked(ctx context.Context, src ics.Source, body []byte) Report {
	report := Report{Sources: 1}
	fail := func(err error) Report {
		report.Errors = append(report.Errors, fmt.Errorf("refresh %s: %w", src.ID, err))
		return report
	}

	parsed, err := ics.ParseICS(src, body, s.cfg.Location)
	if err != nil {
		return fail(err)
	}
	from, to := s.Range()
	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		Location:   s.cfg.Location,
		RangeStart: from,
		RangeEnd:   to,
	})
	if err != nil {
		return fail(err)
	}

	events := ics.ToEvents(expanded.Occurrences, src.Category)
	report.Skipped = len(expanded.Occurrences) - len(events)

	repo := s.target.Repository()
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if cur, err := repo.Get(ctx, ev.ID); err == nil && (cur.Edited || cur.Deleted()) {
			seen[ev.ID] = struct{}{}
			report.Kept++
			continue
		}
		if _, err := repo.Upsert(ctx, ev); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("refresh %s: upsert %s: %w", src.ID, ev.ID, err))
			continue
		}
		seen[ev.ID] = struct{}{}
		report.Upserted++
	}

	// Occurrences that vanished from the feed inside the range are removed;
	// events outside it and local edits are left alone.
	existing, err := repo.List(ctx)
	if err != nil {
		return fail(err)
	}
	for _, ev := range existing {
		if ev.Source != src.ID || ev.Edited || ev.Start.Before(from) || !ev.Start.Before(to) {
			continue
		}
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		if err := repo.Delete(ctx, ev.ID, true); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Removed++
	}
	return report
}
