package dashboard

import (
	"context"
	"sync"

	"rainfall-dashboard/internal/collection"
	"rainfall-dashboard/internal/mutation"
	"rainfall-dashboard/internal/rainfall"
	"rainfall-dashboard/internal/session"
)

// View is one open dashboard screen.
type View struct {
	syncer    *collection.Syncer
	mutations *mutation.Orchestrator
	session   *session.Cell
	closeOnce sync.Once
}

// Snapshot returns the records and analytics currently displayed.
func (v *View) Snapshot() collection.Snapshot {
	return v.syncer.Snapshot()
}

// Subscribe calls fn whenever the displayed content changes.
func (v *View) Subscribe(fn func(collection.Snapshot)) {
	v.syncer.Subscribe(fn)
}

// Refresh runs one fetch cycle now.
func (v *View) Refresh(ctx context.Context) error {
	return v.syncer.FetchAll(ctx)
}

// CanWrite reports whether write controls should be offered.
func (v *View) CanWrite() bool {
	role, ok := v.session.CurrentRole()
	return ok && role.CanWrite()
}

// Busy is true while a write is outstanding.
func (v *View) Busy() bool {
	return v.mutations.Busy()
}

// Loading is true while a fetch cycle is in flight.
func (v *View) Loading() bool {
	return v.syncer.InFlight()
}

// Edit loads the record with id into the edit cursor. It reports false when
// the record is not in the current snapshot.
func (v *View) Edit(id rainfall.RecordID) bool {
	for _, record := range v.syncer.Snapshot().Records {
		if record.ID == id {
			v.mutations.StartEdit(record)
			return true
		}
	}
	return false
}

// SetDraft replaces the draft field values.
func (v *View) SetDraft(year, amount string) {
	v.mutations.UpdateDraft(year, amount)
}

// CancelEdit drops the draft and returns to create mode.
func (v *View) CancelEdit() {
	v.mutations.CancelEdit()
}

// Draft returns the edit cursor.
func (v *View) Draft() mutation.Draft {
	return v.mutations.Draft()
}

// Save submits the current draft.
func (v *View) Save(ctx context.Context) error {
	return v.mutations.Submit(ctx, v.mutations.Draft())
}

// Delete removes id once confirm agrees.
func (v *View) Delete(ctx context.Context, id rainfall.RecordID, confirm mutation.Confirmer) error {
	return v.mutations.Remove(ctx, id, confirm)
}

// Close stops polling. Results still in flight are discarded.
func (v *View) Close() {
	v.closeOnce.Do(v.syncer.StopPolling)
}
