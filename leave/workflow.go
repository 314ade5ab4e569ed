/*
workflow.go - The application state machine

PURPOSE:
  Owns a leave application's lifecycle and couples every transition to its
  ledger effect:

  | From             | Event           | To               | Ledger effect |
  |------------------|-----------------|------------------|---------------|
  | draft            | submit          | pending_director | reserve       |
  | pending_director | directorApprove | pending_hr       | none          |
  | pending_director | directorReject  | rejected         | release       |
  | pending_hr       | hrApprove       | approved         | commit        |
  | pending_hr       | hrReject        | rejected         | release       |

  approved and rejected are terminal; nothing moves out of them.

SUBMISSION RULES:
  - dates valid and working days >= 1
  - notice period satisfied for the leave type
  - no overlapping non-rejected application for the same user
  - balance sufficient (enforced by the reservation itself)

EXACTLY-ONCE PROGRESSION:
  The status update is conditional on the current status, so two approvers
  racing on the same application cannot both advance it: the loser's write
  finds the status changed and the re-read resolves to either an idempotent
  no-op (same transition already applied) or ErrInvalidTransition. The
  ledger effect is additionally guarded by the reservation's once-only state
  flip, so even a replayed rejection cannot release days twice.

ATOMICITY:
  Each transition runs in one store transaction: status change and ledger
  effect land together or not at all.

SEE ALSO:
  - ledger.go:   reserve/commit/release
  - calendar.go: end and resumption date calculation at submission time
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultApprovalComment = "Approved"

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	Store    TxStore
	Ledger   *Ledger
	Notifier Notifier

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

func NewWorkflow(store TxStore, ledger *Ledger, notifier Notifier) *Workflow {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Workflow{Store: store, Ledger: ledger, Notifier: notifier, Now: time.Now}
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Workflow) notify(ctx context.Context, ev Event) {
	// Fire-and-forget: notification failure never fails the operation.
	w.Notifier.Notify(ctx, ev)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitRequest is the input for a new leave application.
type SubmitRequest struct {
	UserID      string
	Type        Type
	StartDate   Date
	WorkingDays int
	Reason      string
}

func (r SubmitRequest) validate() error {
	if r.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "required"}
	}
	if !r.Type.Valid() {
		return &ValidationError{Field: "leave_type", Message: fmt.Sprintf("unknown type %q", r.Type)}
	}
	if r.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Message: "required"}
	}
	if r.WorkingDays < 1 {
		return &ValidationError{Field: "working_days", Message: "must be at least 1"}
	}
	if r.Reason == "" {
		return &ValidationError{Field: "reason", Message: "required"}
	}
	return nil
}

// Submit creates an application directly in pending_director, reserving the
// requested days. All checks and writes happen in one atomic step; a failed
// submission leaves no reservation and no application behind.
func (w *Workflow) Submit(ctx context.Context, actor Actor, req SubmitRequest) (*Application, error) {
	if actor.ID != req.UserID && actor.Role != RoleAdmin {
		return nil, fmt.Errorf("applications are submitted by their owner: %w", ErrForbidden)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := w.now()
	if err := w.checkNotice(req.Type, DateOf(now), req.StartDate); err != nil {
		return nil, err
	}

	// Resolve dates against the calendar in effect right now. The leave may
	// run past year end, so load the following year's holidays too.
	cal, err := LoadCalendar(ctx, w.Store, req.StartDate.Year(), req.StartDate.Year()+1)
	if err != nil {
		return nil, err
	}
	endDate, err := ComputeEndDate(req.StartDate, req.WorkingDays, cal)
	if err != nil {
		return nil, err
	}
	resumption := ComputeResumptionDate(endDate, cal)

	var out *Application
	err = withCASRetry(func() error {
		return w.Store.WithTx(ctx, func(s Store) error {
			if err := w.checkOverlap(ctx, s, req.UserID, req.StartDate, endDate); err != nil {
				return err
			}

			year := req.StartDate.Year()
			seq, err := s.NextSequence(ctx, year)
			if err != nil {
				return err
			}

			app := Application{
				ID:             uuid.NewString(),
				Number:         fmt.Sprintf("LA-%d-%04d", year, seq),
				UserID:         req.UserID,
				Type:           req.Type,
				StartDate:      req.StartDate,
				EndDate:        endDate,
				ResumptionDate: resumption,
				WorkingDays:    req.WorkingDays,
				Reason:         req.Reason,
				Status:         StatusPendingDirector,
				SubmittedAt:    now,
				CreatedAt:      now,
				UpdatedAt:      now,
			}

			res, err := w.Ledger.reserveIn(ctx, s, req.UserID, req.Type, year, DaysFromInt(req.WorkingDays), app.ID)
			if err != nil {
				return err
			}
			app.ReservationID = res.ID

			if err := s.CreateApplication(ctx, app); err != nil {
				return err
			}
			out = &app
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	w.notify(ctx, Event{Kind: EventApplicationSubmitted, At: now, Actor: actor, Application: out})
	return out, nil
}

// SaveDraft stores an application in draft without reserving balance. Dates
// are resolved tentatively for display and recomputed on submission.
func (w *Workflow) SaveDraft(ctx context.Context, actor Actor, req SubmitRequest) (*Application, error) {
	if actor.ID != req.UserID && actor.Role != RoleAdmin {
		return nil, fmt.Errorf("applications are submitted by their owner: %w", ErrForbidden)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	cal, err := LoadCalendar(ctx, w.Store, req.StartDate.Year(), req.StartDate.Year()+1)
	if err != nil {
		return nil, err
	}
	endDate, err := ComputeEndDate(req.StartDate, req.WorkingDays, cal)
	if err != nil {
		return nil, err
	}

	now := w.now()
	year := req.StartDate.Year()
	seq, err := w.Store.NextSequence(ctx, year)
	if err != nil {
		return nil, err
	}

	app := Application{
		ID:             uuid.NewString(),
		Number:         fmt.Sprintf("LA-%d-%04d", year, seq),
		UserID:         req.UserID,
		Type:           req.Type,
		StartDate:      req.StartDate,
		EndDate:        endDate,
		ResumptionDate: ComputeResumptionDate(endDate, cal),
		WorkingDays:    req.WorkingDays,
		Reason:         req.Reason,
		Status:         StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := w.Store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}
	return &app, nil
}

// SubmitDraft moves a draft to pending_director. Dates are recomputed
// against the current calendar and all submission rules re-checked; the
// stored dates are refreshed so they stay consistent with the calculator's
// output at submission time.
func (w *Workflow) SubmitDraft(ctx context.Context, actor Actor, applicationID string) (*Application, error) {
	app, err := w.Store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if actor.ID != app.UserID && actor.Role != RoleAdmin {
		return nil, fmt.Errorf("applications are submitted by their owner: %w", ErrForbidden)
	}
	if app.Status == StatusPendingDirector {
		return app, nil // retry of an applied submission
	}
	if app.Status != StatusDraft {
		return nil, &TransitionError{ApplicationID: app.ID, From: app.Status, Event: "submit"}
	}

	now := w.now()
	if err := w.checkNotice(app.Type, DateOf(now), app.StartDate); err != nil {
		return nil, err
	}

	cal, err := LoadCalendar(ctx, w.Store, app.StartDate.Year(), app.StartDate.Year()+1)
	if err != nil {
		return nil, err
	}
	endDate, err := ComputeEndDate(app.StartDate, app.WorkingDays, cal)
	if err != nil {
		return nil, err
	}
	resumption := ComputeResumptionDate(endDate, cal)

	var out *Application
	err = withCASRetry(func() error {
		return w.Store.WithTx(ctx, func(s Store) error {
			cur, err := s.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if cur.Status == StatusPendingDirector {
				out = cur
				return nil
			}
			if cur.Status != StatusDraft {
				return &TransitionError{ApplicationID: cur.ID, From: cur.Status, Event: "submit"}
			}

			if err := w.checkOverlap(ctx, s, cur.UserID, cur.StartDate, endDate); err != nil {
				return err
			}

			res, err := w.Ledger.reserveIn(ctx, s, cur.UserID, cur.Type, cur.StartDate.Year(),
				DaysFromInt(cur.WorkingDays), cur.ID)
			if err != nil {
				return err
			}

			updated := *cur
			updated.Status = StatusPendingDirector
			updated.EndDate = endDate
			updated.ResumptionDate = resumption
			updated.ReservationID = res.ID
			updated.SubmittedAt = now
			updated.UpdatedAt = now
			if err := s.UpdateApplication(ctx, updated, StatusDraft); err != nil {
				return err
			}
			out = &updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	w.notify(ctx, Event{Kind: EventApplicationSubmitted, At: now, Actor: actor, Application: out})
	return out, nil
}

func (w *Workflow) checkNotice(lt Type, today, start Date) error {
	spec := lt.Spec()
	actual := today.DaysUntil(start)
	if actual < spec.NoticeDays {
		return &InsufficientNoticeError{Type: lt, RequiredDays: spec.NoticeDays, ActualDays: actual}
	}
	return nil
}

func (w *Workflow) checkOverlap(ctx context.Context, s Store, userID string, start, end Date) error {
	existing, err := s.FindOverlapping(ctx, userID, start, end, BlockingStatuses())
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return &OverlapError{
			ExistingNumber: existing[0].Number,
			Start:          existing[0].StartDate,
			End:            existing[0].EndDate,
		}
	}
	return nil
}

// =============================================================================
// DIRECTOR STAGE
// =============================================================================

// DirectorApprove advances pending_director to pending_hr. No ledger
// effect; the reservation stays open for the HR stage. Comments are
// optional.
func (w *Workflow) DirectorApprove(ctx context.Context, actor Actor, applicationID, comments string) (*Application, error) {
	if actor.Role != RoleDirector {
		return nil, fmt.Errorf("director approval requires director role: %w", ErrForbidden)
	}
	if comments == "" {
		comments = defaultApprovalComment
	}

	now := w.now()
	var out *Application
	var applied bool
	err := withCASRetry(func() error {
		return w.Store.WithTx(ctx, func(s Store) error {
			app, err := s.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app.Status == StatusPendingHR && app.Director != nil {
				out, applied = app, false // retry of an applied transition
				return nil
			}
			if app.Status != StatusPendingDirector {
				return &TransitionError{ApplicationID: app.ID, From: app.Status, Event: "directorApprove"}
			}

			updated := *app
			updated.Status = StatusPendingHR
			updated.Director = &Decision{ApproverID: actor.ID, Comments: comments, DecidedAt: now}
			updated.UpdatedAt = now
			if err := s.UpdateApplication(ctx, updated, StatusPendingDirector); err != nil {
				return err
			}
			out, applied = &updated, true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if applied {
		w.notify(ctx, Event{Kind: EventApplicationApproved, At: now, Actor: actor, Stage: "director", Application: out})
	}
	return out, nil
}

// DirectorReject moves pending_director to rejected and releases the
// reservation. Comments are mandatory.
func (w *Workflow) DirectorReject(ctx context.Context, actor Actor, applicationID, comments string) (*Application, error) {
	if actor.Role != RoleDirector {
		return nil, fmt.Errorf("director rejection requires director role: %w", ErrForbidden)
	}
	if comments == "" {
		return nil, &ValidationError{Field: "comments", Message: "rejection requires a reason"}
	}

	now := w.now()
	var out *Application
	var applied bool
	err := withCASRetry(func() error {
		return w.Store.WithTx(ctx, func(s Store) error {
			app, err := s.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app.Status == StatusRejected && app.Director != nil && app.HR == nil {
				out, applied = app, false
				return nil
			}
			if app.Status != StatusPendingDirector {
				return &TransitionError{ApplicationID: app.ID, From: app.Status, Event: "directorReject"}
			}

			if err := w.Ledger.releaseIn(ctx, s, app.ReservationID); err != nil {
				return err
			}

			updated := *app
			updated.Status = StatusRejected
			updated.Director = &Decision{ApproverID: actor.ID, Comments: comments, DecidedAt: now}
			updated.UpdatedAt = now
			if err := s.UpdateApplication(ctx, updated, StatusPendingDirector); err != nil {
				return err
			}
			out, applied = &updated, true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if applied {
		w.notify(ctx, Event{Kind: EventApplicationRejected, At: now, Actor: actor, Stage: "director", Application: out})
	}
	return out, nil
}

// =============================================================================
// HR STAGE
// =============================================================================

// HrApprove finalizes an application: pending_hr to approved, committing
// the reservation so the held days become used. Comments are optional.
func (w *Workflow) HrApprove(ctx context.Context, actor Actor, applicationID, comments string) (*Application, error) {
	if actor.Role != RoleHR {
		return nil, fmt.Errorf("final approval requires hr role: %w", ErrForbidden)
	}
	if comments == "" {
		comments = defaultApprovalComment
	}

	now := w.now()
	var out *Application
	var applied bool
	err := withCASRetry(func() error {
		return w.Store.WithTx(ctx, func(s Store) error {
			app, err := s.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app.Status == StatusApproved {
				out, applied = app, false
				return nil
			}
			if app.Status != StatusPendingHR {
				return &TransitionError{ApplicationID: app.ID, From: app.Status, Event: "hrApprove"}
			}

			if err := w.Ledger.commitIn(ctx, s, app.ReservationID); err != nil {
				return err
			}

			updated := *app
			updated.Status = StatusApproved
			updated.HR = &Decision{ApproverID: actor.ID, Comments: comments, DecidedAt: now}
			updated.UpdatedAt = now
			if err := s.UpdateApplication(ctx, updated, StatusPendingHR); err != nil {
				return err
			}
			out, applied = &updated, true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if applied {
		w.notify(ctx, Event{Kind: EventApplicationApproved, At: now, Actor: actor, Stage: "hr", Application: out})
	}
	return out, nil
}

// HrReject moves pending_hr to rejected and releases the reservation.
// Comments are mandatory.
func (w *Workflow) HrReject(ctx context.Context, actor Actor, applicationID, comments string) (*Application, error) {
	if actor.Role != RoleHR {
		return nil, fmt.Errorf("hr rejection requires hr role: %w", ErrForbidden)
	}
	if comments == "" {
		return nil, &ValidationError{Field: "comments", Message: "rejection requires a reason"}
	}

	now := w.now()
	var out *Application
	var applied bool
	err := withCASRetry(func() error {
		return w.Store.WithTx(ctx, func(s Store) error {
			app, err := s.GetApplication(ctx, applicationID)
			if err != nil {
				return err
			}
			if app.Status == StatusRejected && app.HR != nil {
				out, applied = app, false
				return nil
			}
			if app.Status != StatusPendingHR {
				return &TransitionError{ApplicationID: app.ID, From: app.Status, Event: "hrReject"}
			}

			if err := w.Ledger.releaseIn(ctx, s, app.ReservationID); err != nil {
				return err
			}

			updated := *app
			updated.Status = StatusRejected
			updated.HR = &Decision{ApproverID: actor.ID, Comments: comments, DecidedAt: now}
			updated.UpdatedAt = now
			if err := s.UpdateApplication(ctx, updated, StatusPendingHR); err != nil {
				return err
			}
			out, applied = &updated, true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if applied {
		w.notify(ctx, Event{Kind: EventApplicationRejected, At: now, Actor: actor, Stage: "hr", Application: out})
	}
	return out, nil
}

// =============================================================================
// QUEUES
// =============================================================================

// PendingQueue returns the approval queue for an approver role, oldest
// first. Directors see pending_director; HR sees pending_hr.
func (w *Workflow) PendingQueue(ctx context.Context, actor Actor) ([]Application, error) {
	switch actor.Role {
	case RoleDirector:
		return w.Store.ListApplicationsByStatus(ctx, StatusPendingDirector)
	case RoleHR:
		return w.Store.ListApplicationsByStatus(ctx, StatusPendingHR)
	default:
		return nil, fmt.Errorf("approval queues require director or hr role: %w", ErrForbidden)
	}
}
