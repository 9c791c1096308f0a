package usecase

import (
	"context"
	"log"
	"time"

	"ZoneScan/internal/domain/models"
)

// NSE cash window in IST. The first 5-minute candle closes at 09:20,
// the last at 15:30; sweeps fire 30 seconds after each close so the
// broker has the bar available.
const (
	marketOpenHour    = 9
	marketOpenMinute  = 20
	marketCloseHour   = 15
	marketCloseMinute = 30
	scanOffsetSeconds = 30
)

// ScanRunner runs one full universe sweep.
type ScanRunner interface {
	ScanAll(ctx context.Context) (*models.ScanSummaryEvent, error)
}

// Scheduler drives the sweep loop: during market hours it scans once
// per 5-minute candle, outside them it sleeps until the next open.
type Scheduler struct {
	runner ScanRunner
	loc    *time.Location
	now    func() time.Time
}

func NewScheduler(runner ScanRunner) *Scheduler {
	return &Scheduler{
		runner: runner,
		loc:    marketLocation(),
		now:    time.Now,
	}
}

// Run blocks until ctx is cancelled. A sweep in flight finishes before
// the loop exits.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("scheduler: started, window %02d:%02d-%02d:%02d IST, offset %ds",
		marketOpenHour, marketOpenMinute, marketCloseHour, marketCloseMinute, scanOffsetSeconds)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now()

		if !inMarketWindow(now, s.loc) {
			next := nextOpenAt(now, s.loc)
			log.Printf("scheduler: market closed, sleeping until %s (%.1fh)",
				next.Format("2006-01-02 15:04:05 MST"), next.Sub(now).Hours())
			if err := s.sleepUntil(ctx, next); err != nil {
				return err
			}
			continue
		}

		if _, err := s.runner.ScanAll(ctx); err != nil && ctx.Err() == nil {
			log.Printf("scheduler: sweep failed: %v", err)
		}

		next := nextFireAt(s.now(), s.loc)
		log.Printf("scheduler: next sweep at %s IST", next.Format("15:04:05"))
		if err := s.sleepUntil(ctx, next); err != nil {
			return err
		}
	}
}

func (s *Scheduler) sleepUntil(ctx context.Context, t time.Time) error {
	d := t.Sub(s.now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// marketLocation resolves IST. Hosts without tzdata get a fixed
// +05:30 zone, which is equivalent since IST has no DST.
func marketLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}

// inMarketWindow reports whether t falls inside the trading window,
// inclusive at both edges, second resolution.
func inMarketWindow(t time.Time, loc *time.Location) bool {
	t = t.In(loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	sod := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return sod >= marketOpenHour*3600+marketOpenMinute*60 &&
		sod <= marketCloseHour*3600+marketCloseMinute*60
}

// nextFireAt returns the first instant strictly after now that sits
// scanOffsetSeconds past a 5-minute boundary. A close whose offset
// already passed is skipped to the next boundary.
func nextFireAt(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	toNext := 5 - (t.Hour()*60+t.Minute())%5
	n := t.Add(time.Duration(toNext) * time.Minute)
	fire := time.Date(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), scanOffsetSeconds, 0, loc)
	if !fire.After(t) {
		fire = fire.Add(5 * time.Minute)
	}
	return fire
}

// nextOpenAt returns the next weekday market open plus the scan
// offset.
func nextOpenAt(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	open := time.Date(t.Year(), t.Month(), t.Day(), marketOpenHour, marketOpenMinute, scanOffsetSeconds, 0, loc)
	if !open.After(t) {
		open = open.AddDate(0, 0, 1)
	}
	for open.Weekday() == time.Saturday || open.Weekday() == time.Sunday {
		open = open.AddDate(0, 0, 1)
	}
	return open
}
