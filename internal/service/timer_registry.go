package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	applog "reminder-bot/internal/logger"
)

// Handle identifies an armed timer. Handles are random so a handle persisted
// before a restart can never match a timer armed after it.
type Handle string

// onceSchedule is a cron.Schedule that yields its instant once and then never
// again. Cron asks for Next when the entry is added (or when the runner
// starts) and after every run.
type onceSchedule struct {
	at   time.Time
	used atomic.Bool
}

func (s *onceSchedule) Next(time.Time) time.Time {
	if s.used.Swap(true) {
		return time.Time{}
	}
	return s.at
}

type armedTimer struct {
	reminderID uint
	at         time.Time
	entryID    cron.EntryID
}

// TimerRegistry arms one-shot timers on top of a cron runner.
// Timers are in memory only; recovery re-arms them from the store.
type TimerRegistry struct {
	mu     sync.Mutex
	cron   *cron.Cron
	timers map[Handle]*armedTimer
	log    zerolog.Logger
}

func NewTimerRegistry(log zerolog.Logger) *TimerRegistry {
	cronLog := applog.CronLogger{Log: log}
	return &TimerRegistry{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		timers: make(map[Handle]*armedTimer),
		log:    log,
	}
}

// Arm schedules callback to run once at the given instant. An instant in the
// past fires as soon as the runner gets to it.
func (r *TimerRegistry) Arm(reminderID uint, at time.Time, callback func()) Handle {
	handle := Handle(uuid.NewString())
	at = at.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	t := &armedTimer{reminderID: reminderID, at: at}
	r.timers[handle] = t
	t.entryID = r.cron.Schedule(&onceSchedule{at: at}, cron.FuncJob(func() {
		r.fire(handle, callback)
	}))
	armedTimers.Set(float64(len(r.timers)))

	r.log.Debug().Uint("reminder_id", reminderID).Str("handle", string(handle)).Time("at", at).Msg("timer armed")
	return handle
}

// Cancel revokes a timer that has not fired yet. It returns false for
// handles that already fired, were cancelled or never existed.
func (r *TimerRegistry) Cancel(handle Handle) bool {
	t, ok := r.take(handle)
	if !ok {
		return false
	}
	r.cron.Remove(t.entryID)
	r.log.Debug().Uint("reminder_id", t.reminderID).Str("handle", string(handle)).Msg("timer cancelled")
	return true
}

// Len reports the number of armed timers.
func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Armed reports whether the handle is still waiting to fire.
func (r *TimerRegistry) Armed(handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[handle]
	return ok
}

func (r *TimerRegistry) Start() {
	r.cron.Start()
}

// Stop halts the runner and waits for running callbacks until ctx expires.
func (r *TimerRegistry) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// fire runs on the cron job goroutine. Whoever takes the handle out of the
// map first (fire or Cancel) decides the outcome.
func (r *TimerRegistry) fire(handle Handle, callback func()) {
	t, ok := r.take(handle)
	if !ok {
		return
	}
	r.cron.Remove(t.entryID)
	r.log.Debug().Uint("reminder_id", t.reminderID).Str("handle", string(handle)).
		Dur("lag", time.Since(t.at)).Msg("timer fired")
	callback()
}

func (r *TimerRegistry) take(handle Handle) (*armedTimer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[handle]
	if ok {
		delete(r.timers, handle)
		armedTimers.Set(float64(len(r.timers)))
	}
	return t, ok
}
