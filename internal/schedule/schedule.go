// Package schedule turns the --at, --daily and --cron flags into
// concrete trigger times. Daily and cron modes run until cancelled;
// --at fires once.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

const atLayout = "2006-01-02 15:04"

var dailyPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// LoadLocation resolves a timezone name, defaulting to the local zone
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// ParseAt parses a one-shot trigger time like "2026-09-01 09:30" in loc
func ParseAt(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(atLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected %q: %w", s, atLayout, err)
	}
	return t, nil
}

// DailySpec converts a wall-clock "HH:MM" into a standard cron spec
func DailySpec(hhmm string) (string, error) {
	m := dailyPattern.FindStringSubmatch(hhmm)
	if m == nil {
		return "", fmt.Errorf("invalid daily time %q, expected HH:MM", hhmm)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Validate checks a cron expression without scheduling it
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// WaitUntil blocks until t or cancellation. Returns nil when the
// moment arrives, the context error otherwise. A time already in the
// past fires immediately.
func WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
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

// Runner fires a job on a cron schedule until its context is cancelled
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewRunner schedules job on spec, interpreted in loc. Overlapping
// triggers are skipped while a job is still running; the job itself is
// expected to guard with the run lock.
func NewRunner(spec string, loc *time.Location, job func(), logger *slog.Logger) (*Runner, error) {
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return &Runner{cron: c, logger: logger}, nil
}

// Run blocks until ctx is cancelled, then waits for any in-flight job
func (r *Runner) Run(ctx context.Context) {
	r.cron.Start()
	entries := r.cron.Entries()
	if len(entries) > 0 {
		r.logger.Info("schedule armed", "next", entries[0].Schedule.Next(time.Now()).Format(atLayout))
	}
	<-ctx.Done()
	<-r.cron.Stop().Done()
}
