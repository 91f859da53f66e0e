package power

import (
	"sync"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// DismissStore persists the set of warning ids the user dismissed with
// "don't remind me", which survives across sessions.
type DismissStore interface {
	// Dismissed reports whether id was permanently dismissed.
	Dismissed(id string) bool

	// PutDismissed adds id to the persisted dismissed set.
	PutDismissed(id string) error
}

// Alerter owns the warning lifecycle: a volatile seen-set, a persisted
// dismissed-set, a FIFO pending queue, and a single active slot so the user
// is never shown more than one warning at a time. No priority reordering
// happens, even between danger and warning levels.
//
// Dedup invariant: a given id is enqueued at most once per armed period.
// Once enqueued it enters the seen-set, so repeated polls producing the same
// id are no-ops while it is pending or shown. Once dismissed permanently,
// the id is never enqueued again.
type Alerter struct {
	mu      sync.Mutex
	store   DismissStore
	seen    map[string]struct{}
	muted   map[string]struct{}
	pending []types.WarningEvent
	active  *types.WarningEvent
}

// NewAlerter creates an Alerter. store may be nil, in which case permanent
// dismissals are held in memory and last for the process lifetime.
func NewAlerter(store DismissStore) *Alerter {
	return &Alerter{
		store: store,
		seen:  make(map[string]struct{}),
		muted: make(map[string]struct{}),
	}
}

// Enqueue adds an event to the pending queue unless its id is already in
// the seen-set or the persisted dismissed-set. It reports whether the event
// was accepted.
func (a *Alerter) Enqueue(ev types.WarningEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.seen[ev.ID]; ok {
		return false
	}
	if _, ok := a.muted[ev.ID]; ok {
		return false
	}
	if a.store != nil && a.store.Dismissed(ev.ID) {
		return false
	}

	a.seen[ev.ID] = struct{}{}
	a.pending = append(a.pending, ev)
	return true
}

// EnqueueAll enqueues each event in order and returns how many were accepted.
func (a *Alerter) EnqueueAll(events []types.WarningEvent) int {
	var accepted int
	for _, ev := range events {
		if a.Enqueue(ev) {
			accepted++
		}
	}
	return accepted
}

// Next promotes the head of the pending queue into the active slot and
// returns it. If a warning is already active it is returned unchanged; the
// queue drains one event per dismissal.
func (a *Alerter) Next() (types.WarningEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != nil {
		return *a.active, true
	}
	if len(a.pending) == 0 {
		return types.WarningEvent{}, false
	}

	ev := a.pending[0]
	a.pending = a.pending[1:]
	a.active = &ev
	return ev, true
}

// Active returns the currently shown warning, if any.
func (a *Alerter) Active() (types.WarningEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == nil {
		return types.WarningEvent{}, false
	}
	return *a.active, true
}

// Dismiss clears the active slot. The id stays in the seen-set, so the same
// condition does not re-prompt until Reset.
func (a *Alerter) Dismiss() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = nil
}

// DismissForever clears the active slot and records the id in the persisted
// dismissed-set so it is never enqueued again, across sessions. Without a
// store the id goes into the in-memory muted set, which Reset does not
// touch, so the dismissal holds across runs within the process.
func (a *Alerter) DismissForever() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == nil {
		return nil
	}
	id := a.active.ID
	a.active = nil

	if a.store == nil {
		a.muted[id] = struct{}{}
		return nil
	}
	return a.store.PutDismissed(id)
}

// Pending returns the number of queued, not-yet-shown warnings.
func (a *Alerter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Reset clears the volatile seen-set, the pending queue, and the active
// slot. Called when a run transitions to not-running so conditions re-arm
// for the next run. The persisted dismissed-set and the in-memory muted
// set are untouched.
func (a *Alerter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seen = make(map[string]struct{})
	a.pending = nil
	a.active = nil
}
