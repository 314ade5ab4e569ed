/*
events.go - Domain events emitted by the engine

PURPOSE:
  The engine announces state changes so an external notifier can inform the
  affected people. Delivery is fire-and-forget: a Notifier must never block
  the engine or fail an operation, and the engine makes no delivery
  guarantee.

SEE ALSO:
  - notify: log and SMTP notifier implementations
*/
package leave

import (
	"context"
	"time"
)

type EventKind string

const (
	EventApplicationSubmitted EventKind = "application_submitted"
	EventApplicationApproved  EventKind = "application_approved"
	EventApplicationRejected  EventKind = "application_rejected"
	EventBalanceAllocated     EventKind = "balance_allocated"
	EventBalanceAdjusted      EventKind = "balance_adjusted"
)

// Event carries the change that just committed. Application and Balance are
// snapshots; consumers must not write through them.
type Event struct {
	Kind  EventKind
	At    time.Time
	Actor Actor

	// Stage is "director" or "hr" for approval/rejection events.
	Stage string

	Application *Application
	Balance     *Balance
}

// Notifier consumes events. Implementations swallow their own errors.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}
