// Package mutation funnels every write through one path: role gate, remote
// request, then a re-sync of the collection. Nothing is patched locally; the
// view only ever shows what the server returned on the following fetch.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/metrics"
	"rainfall-dashboard/internal/notify"
	"rainfall-dashboard/internal/rainfall"
	"rainfall-dashboard/internal/session"
)

// ErrCancelled is returned by Remove when the user declines the confirmation.
var ErrCancelled = errors.New("delete cancelled")

// Remote issues write requests.
type Remote interface {
	CreateRecord(ctx context.Context, input rainfall.Input) (rainfall.Record, error)
	UpdateRecord(ctx context.Context, id rainfall.RecordID, input rainfall.Input) (rainfall.Record, error)
	DeleteRecord(ctx context.Context, id rainfall.RecordID) error
}

// Invalidator re-fetches the collection after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Session is the read side of the session cell.
type Session interface {
	CurrentRole() (session.Role, bool)
	Epoch() uint64
	Active(epoch uint64) bool
}

// Confirmer asks the user to confirm an irreversible action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithNotifier(notifier notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = notifier }
}

func WithMetrics(m *metrics.Mutations) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator accepts create, update and delete intents and owns the edit
// cursor.
type Orchestrator struct {
	remote   Remote
	syncer   Invalidator
	session  Session
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Mutations

	mu     sync.Mutex
	cursor Draft
	busy   atomic.Int32
}

// New creates an Orchestrator.
func New(remote Remote, syncer Invalidator, sess Session, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		remote:   remote,
		syncer:   syncer,
		session:  sess,
		notifier: notify.Discard,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewMutations(nil)
	}
	return o
}

// StartEdit loads record into the cursor, replacing any unsaved draft.
func (o *Orchestrator) StartEdit(record rainfall.Record) {
	o.mu.Lock()
	o.cursor = DraftFrom(record)
	o.mu.Unlock()
}

// UpdateDraft replaces the draft fields and keeps the current target.
func (o *Orchestrator) UpdateDraft(year, amount string) {
	o.mu.Lock()
	o.cursor.Year = year
	o.cursor.Amount = amount
	o.mu.Unlock()
}

// CancelEdit resets the cursor to an empty create-mode draft.
func (o *Orchestrator) CancelEdit() {
	o.mu.Lock()
	o.cursor = Draft{}
	o.mu.Unlock()
}

// Draft returns the current cursor.
func (o *Orchestrator) Draft() Draft {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cursor
}

// Busy is true while a submit or remove is outstanding. The submit control is
// disabled for that window.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load() > 0
}

// Submit updates draft.Target when set and creates a record otherwise. It
// returns after the follow-up re-fetch has resolved.
func (o *Orchestrator) Submit(ctx context.Context, draft Draft) error {
	o.busy.Add(1)
	defer o.busy.Add(-1)

	op := "create"
	if draft.Editing() {
		op = "update"
	}
	epoch, err := o.authorize(op)
	if err != nil {
		return err
	}
	input, err := draft.Input()
	if err != nil {
		o.fail(op, "invalid", err, "Error saving data")
		return err
	}

	if draft.Editing() {
		_, err = o.remote.UpdateRecord(ctx, draft.Target, input)
	} else {
		_, err = o.remote.CreateRecord(ctx, input)
	}
	if !o.session.Active(epoch) {
		o.metrics.Total.WithLabelValues(op, "discarded").Inc()
		return apperrors.New(apperrors.CodeAuthentication, "Session ended before the save completed")
	}
	if err != nil {
		o.fail(op, "failed", err, "Error saving data")
		return err
	}

	o.mu.Lock()
	if o.cursor == draft {
		o.cursor = Draft{}
	}
	o.mu.Unlock()

	o.metrics.Total.WithLabelValues(op, "ok").Inc()
	o.logger.Info("record saved", "op", op, "target", draft.Target, "year", input.Year)
	if draft.Editing() {
		o.notifier.Notify(notify.Success("Data updated"))
	} else {
		o.notifier.Notify(notify.Success("Data added"))
	}
	o.resync(ctx, op)
	return nil
}

// Remove deletes id after confirm agrees. A nil confirm counts as declined.
func (o *Orchestrator) Remove(ctx context.Context, id rainfall.RecordID, confirm Confirmer) error {
	o.busy.Add(1)
	defer o.busy.Add(-1)

	const op = "delete"
	epoch, err := o.authorize(op)
	if err != nil {
		return err
	}
	if !id.Valid() {
		err := apperrors.New(apperrors.CodeValidation, "No record selected")
		o.fail(op, "invalid", err, "Error deleting data")
		return err
	}
	if confirm == nil || !confirm.Confirm(fmt.Sprintf("Delete record %s? This cannot be undone.", id)) {
		o.metrics.Total.WithLabelValues(op, "cancelled").Inc()
		return ErrCancelled
	}

	err = o.remote.DeleteRecord(ctx, id)
	if !o.session.Active(epoch) {
		o.metrics.Total.WithLabelValues(op, "discarded").Inc()
		return apperrors.New(apperrors.CodeAuthentication, "Session ended before the delete completed")
	}
	if err != nil {
		o.fail(op, "failed", err, "Error deleting data")
		return err
	}

	o.mu.Lock()
	if o.cursor.Target == id {
		o.cursor = Draft{}
	}
	o.mu.Unlock()

	o.metrics.Total.WithLabelValues(op, "ok").Inc()
	o.logger.Info("record deleted", "id", id)
	o.notifier.Notify(notify.Success("Data deleted"))
	o.resync(ctx, op)
	return nil
}

// authorize gates writes on the admin role. The server enforces the same rule.
func (o *Orchestrator) authorize(op string) (uint64, error) {
	epoch := o.session.Epoch()
	role, ok := o.session.CurrentRole()
	var err error
	switch {
	case !ok:
		err = apperrors.New(apperrors.CodeAuthentication, "Please log in again")
	case !role.CanWrite():
		err = apperrors.New(apperrors.CodeAuthorization, "Admin access required")
	}
	if err != nil {
		o.fail(op, "denied", err, "")
		return 0, err
	}
	return epoch, nil
}

func (o *Orchestrator) fail(op, result string, err error, fallback string) {
	o.metrics.Total.WithLabelValues(op, result).Inc()
	o.logger.Warn("mutation failed", "op", op, "result", result, "error", err)
	o.notifier.Notify(notify.Failure(err, fallback))
}

// resync failures are already reported by the syncer.
func (o *Orchestrator) resync(ctx context.Context, op string) {
	if err := o.syncer.Invalidate(ctx); err != nil {
		o.logger.Warn("re-fetch after mutation failed", "op", op, "error", err)
	}
}
