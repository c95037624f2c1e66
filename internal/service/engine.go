package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"reminder-bot/internal/model"
	"reminder-bot/internal/repository"
)

var (
	// ErrNotFound means the reminder does not exist any more: it fired, was
	// cancelled or snoozed, or never existed.
	ErrNotFound = repository.ErrNotFound
	// ErrInvalidReminder rejects a reminder without destination, text or time.
	ErrInvalidReminder = errors.New("invalid reminder")
	// ErrDelivery wraps notifier failures. It is logged, never returned.
	ErrDelivery = errors.New("delivery failed")

	errAlreadyRecovered = errors.New("pending reminders already recovered")
)

const defaultDeliveryTimeout = 10 * time.Second

// Store is the durable reminder storage the engine relies on.
type Store interface {
	Insert(ctx context.Context, dest model.Destination, text string, remindAt time.Time) (uint, error)
	Get(ctx context.Context, id uint) (*model.Reminder, error)
	Delete(ctx context.Context, id uint) (bool, error)
	ListPending(ctx context.Context) ([]model.Reminder, error)
	ListByDestination(ctx context.Context, dest model.Destination) ([]model.Reminder, error)
	SetTimerHandle(ctx context.Context, id uint, handle string) error
}

// Timers arms and revokes one-shot timers.
type Timers interface {
	Arm(reminderID uint, at time.Time, callback func()) Handle
	Cancel(handle Handle) bool
	Start()
	Stop(ctx context.Context)
}

// Notifier delivers a message to a destination.
type Notifier interface {
	Send(ctx context.Context, dest model.Destination, text string) error
}

// Formatter renders the delivered message for a reminder.
type Formatter func(model.Reminder) string

// Option configures an Engine.
type Option func(*Engine)

func WithFormatter(f Formatter) Option {
	return func(e *Engine) {
		if f != nil {
			e.format = f
		}
	}
}

func WithDeliveryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.deliveryTimeout = d
		}
	}
}

// Engine owns the reminder lifecycle. The store row is the single source of
// truth: whoever deletes it first (fire, cancel or snooze) wins, the loser
// sees ErrNotFound and does nothing.
type Engine struct {
	store           Store
	timers          Timers
	notifier        Notifier
	format          Formatter
	deliveryTimeout time.Duration
	log             zerolog.Logger

	baseCtx   context.Context
	cancel    context.CancelFunc
	recovered atomic.Bool
}

func NewEngine(store Store, timers Timers, notifier Notifier, log zerolog.Logger, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:           store,
		timers:          timers,
		notifier:        notifier,
		format:          func(r model.Reminder) string { return r.Text },
		deliveryTimeout: defaultDeliveryTimeout,
		log:             log,
		baseCtx:         ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins firing armed timers.
func (e *Engine) Start() {
	e.timers.Start()
	e.log.Info().Msg("reminder engine started")
}

// Shutdown stops firing and waits for in-flight deliveries until ctx expires.
// Armed timers are dropped; RecoverPending rebuilds them on the next start.
func (e *Engine) Shutdown(ctx context.Context) {
	e.timers.Stop(ctx)
	e.cancel()
	e.log.Info().Msg("reminder engine stopped")
}

// CreateReminder stores a reminder and arms its timer. A remindAt in the past
// is accepted and fires immediately.
func (e *Engine) CreateReminder(ctx context.Context, dest model.Destination, text string, remindAt time.Time) (uint, error) {
	return e.create(ctx, dest, text, remindAt, "create")
}

func (e *Engine) create(ctx context.Context, dest model.Destination, text string, remindAt time.Time, origin string) (uint, error) {
	text = strings.TrimSpace(text)
	switch {
	case dest.IsZero():
		return 0, fmt.Errorf("%w: empty destination", ErrInvalidReminder)
	case text == "":
		return 0, fmt.Errorf("%w: empty text", ErrInvalidReminder)
	case remindAt.IsZero():
		return 0, fmt.Errorf("%w: missing time", ErrInvalidReminder)
	}

	id, err := e.store.Insert(ctx, dest, text, remindAt)
	if err != nil {
		return 0, fmt.Errorf("create reminder: %w", err)
	}

	handle, err := e.arm(ctx, id, remindAt)
	if err != nil {
		// Without a stored handle the reminder could not be cancelled later.
		if e.timers.Cancel(handle) {
			if _, delErr := e.store.Delete(ctx, id); delErr != nil {
				e.log.Error().Err(delErr).Uint("reminder_id", id).Msg("rollback of unarmed reminder failed")
			}
		}
		return 0, fmt.Errorf("create reminder: %w", err)
	}

	remindersCreatedCounter.WithLabelValues(origin).Inc()
	e.log.Info().Uint("reminder_id", id).Str("destination", dest.String()).
		Time("remind_at", remindAt.UTC()).Str("handle", string(handle)).Msg("reminder scheduled")
	return id, nil
}

// CancelReminder revokes a pending reminder. It returns ErrNotFound when the
// reminder is gone, including when its timer won the race and delivered.
func (e *Engine) CancelReminder(ctx context.Context, id uint) error {
	r, err := e.claim(ctx, id)
	if err != nil {
		return err
	}
	e.revoke(r)
	remindersCancelledCounter.Inc()
	e.log.Info().Uint("reminder_id", id).Msg("reminder cancelled")
	return nil
}

// SnoozeReminder replaces the reminder with a new one at RemindAt+delta and
// returns the new id. The old id is gone afterwards.
func (e *Engine) SnoozeReminder(ctx context.Context, id uint, delta time.Duration) (uint, error) {
	r, err := e.claim(ctx, id)
	if err != nil {
		return 0, err
	}
	e.revoke(r)

	newAt := r.RemindAt.Add(delta)
	newID, err := e.create(ctx, r.Destination(), r.Text, newAt, "snooze")
	if err != nil {
		e.log.Error().Err(err).Uint("reminder_id", id).Msg("snoozed reminder could not be recreated")
		return 0, err
	}
	e.log.Info().Uint("reminder_id", id).Uint("new_reminder_id", newID).Dur("delta", delta).Msg("reminder snoozed")
	return newID, nil
}

// ListReminders returns pending reminders for the destination, earliest first.
func (e *Engine) ListReminders(ctx context.Context, dest model.Destination) ([]model.Reminder, error) {
	reminders, err := e.store.ListByDestination(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// Deliver is the timer callback. It claims the row, then sends once; a failed
// send is logged and not retried.
func (e *Engine) Deliver(ctx context.Context, id uint) {
	log := e.log.With().Uint("reminder_id", id).Logger()

	r, err := e.claim(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		deliveriesCounter.WithLabelValues("skipped").Inc()
		log.Info().Msg("reminder gone before delivery, skipping")
		return
	case err != nil:
		// The row stays; the next RecoverPending re-arms it.
		deliveriesCounter.WithLabelValues("error_storage").Inc()
		log.Error().Err(err).Msg("claim reminder for delivery")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
	defer cancel()

	timer := prometheus.NewTimer(deliveryDurationHist)
	err = e.notifier.Send(sendCtx, r.Destination(), e.format(*r))
	timer.ObserveDuration()

	if err != nil {
		deliveriesCounter.WithLabelValues("failed").Inc()
		log.Warn().Err(fmt.Errorf("%w: %w", ErrDelivery, err)).Str("destination", r.Destination().String()).Msg("reminder not delivered")
		return
	}
	deliveriesCounter.WithLabelValues("sent").Inc()
	log.Info().Str("destination", r.Destination().String()).
		Dur("lag", time.Since(r.RemindAt)).Msg("reminder delivered")
}

// RecoverPending re-arms a timer for every stored reminder. It runs once, at
// startup, before requests are accepted. Rows that fail are logged and
// skipped; the number of armed timers is returned.
func (e *Engine) RecoverPending(ctx context.Context) (int, error) {
	if !e.recovered.CompareAndSwap(false, true) {
		return 0, errAlreadyRecovered
	}

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover pending: %w", err)
	}

	armed := 0
	for _, r := range pending {
		if _, err := e.arm(ctx, r.ID, r.RemindAt); err != nil {
			// The timer is armed even if the handle was not saved.
			recoveredCounter.WithLabelValues("error").Inc()
			e.log.Error().Err(err).Uint("reminder_id", r.ID).Msg("store timer handle during recovery")
		} else {
			recoveredCounter.WithLabelValues("armed").Inc()
		}
		armed++
	}

	e.log.Info().Int("count", armed).Msg("pending reminders recovered")
	return armed, nil
}

func (e *Engine) arm(ctx context.Context, id uint, at time.Time) (Handle, error) {
	handle := e.timers.Arm(id, at, func() { e.Deliver(e.baseCtx, id) })
	if err := e.store.SetTimerHandle(ctx, id, string(handle)); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Already fired (overdue) or claimed before the handle was saved.
			// In the second case the claimer could not revoke this timer.
			if e.timers.Cancel(handle) {
				e.log.Debug().Uint("reminder_id", id).Msg("revoked timer of a reminder claimed while arming")
			}
			return handle, nil
		}
		return handle, err
	}
	return handle, nil
}

// claim reads and deletes the row. Only the caller whose delete removed it
// may act on the reminder.
func (e *Engine) claim(ctx context.Context, id uint) (*model.Reminder, error) {
	r, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	removed, err := e.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, ErrNotFound
	}
	return r, nil
}

func (e *Engine) revoke(r *model.Reminder) {
	if r.TimerHandle == "" {
		return
	}
	if !e.timers.Cancel(Handle(r.TimerHandle)) {
		e.log.Debug().Uint("reminder_id", r.ID).Msg("timer already fired or unknown")
	}
}
