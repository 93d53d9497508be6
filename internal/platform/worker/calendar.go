package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// HoursPerDay is used for calendar slot calculations.
	HoursPerDay = 24
	daysPerWeek = 7

	// defaultCatchUp is how long after its slot a missed task may still start.
	defaultCatchUp = 6 * time.Hour
)

// CalendarTask runs once per calendar slot: every day, or once a week, at a
// fixed UTC hour.
type CalendarTask struct {
	// Name identifies the task for logging.
	Name string

	// Weekly selects a weekly slot on Day; otherwise the task is daily.
	Weekly bool
	Day    time.Weekday

	// Hour is the UTC hour of the slot (0-23).
	Hour int

	// CatchUp bounds how late after the slot the task may still start (default: 6h).
	CatchUp time.Duration

	// Run executes the task. A non-nil error leaves the slot open so the
	// next check retries it.
	Run func(ctx context.Context, logger *zerolog.Logger) error

	// OnError is called when Run returns an error.
	OnError func(err error)

	lastRun time.Time
}

// Slot returns the most recent slot start at or before now.
func (t *CalendarTask) Slot(now time.Time) time.Time {
	now = now.UTC()
	slot := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, 0, 0, 0, time.UTC)

	if !t.Weekly {
		if slot.After(now) {
			slot = slot.AddDate(0, 0, -1)
		}

		return slot
	}

	diff := (int(now.Weekday()) - int(t.Day) + daysPerWeek) % daysPerWeek
	slot = slot.AddDate(0, 0, -diff)

	if slot.After(now) {
		slot = slot.AddDate(0, 0, -daysPerWeek)
	}

	return slot
}

// Due reports whether the task should start at now given its last run.
func (t *CalendarTask) Due(now, lastRun time.Time) bool {
	catchUp := t.CatchUp
	if catchUp <= 0 {
		catchUp = defaultCatchUp
	}

	slot := t.Slot(now)

	return now.Sub(slot) <= catchUp && lastRun.Before(slot)
}

// Scheduler checks calendar tasks on every call to CheckAndRun.
type Scheduler struct {
	tasks  []*CalendarTask
	logger *zerolog.Logger
	now    func() time.Time
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: getLogger(logger),
		now:    time.Now,
	}
}

// WithClock overrides the clock.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now

	return s
}

// AddTask adds a task to the scheduler.
func (s *Scheduler) AddTask(task *CalendarTask) {
	s.tasks = append(s.tasks, task)
}

// CheckAndRun runs every task whose slot is open. Tasks run sequentially.
func (s *Scheduler) CheckAndRun(ctx context.Context) {
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			return
		}

		now := s.now()
		if !task.Due(now, task.lastRun) {
			continue
		}

		logger := s.logger.With().Str(logFieldTask, task.Name).Logger()
		logger.Info().Time("slot", task.Slot(now)).Msg("starting scheduled task")

		if err := task.Run(ctx, &logger); err != nil {
			logger.Error().Err(err).Msg("scheduled task failed")

			if task.OnError != nil {
				task.OnError(err)
			}

			continue
		}

		task.lastRun = now
	}
}

// SetLastRun seeds the last run time of a task, e.g. from persisted runs.
func (s *Scheduler) SetLastRun(taskName string, lastRun time.Time) {
	for _, task := range s.tasks {
		if task.Name == taskName {
			task.lastRun = lastRun
			return
		}
	}
}

// LastRun returns the last run time for a task.
func (s *Scheduler) LastRun(taskName string) (time.Time, bool) {
	for _, task := range s.tasks {
		if task.Name == taskName {
			return task.lastRun, true
		}
	}

	return time.Time{}, false
}
