package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
	"fieldline/internal/events"
)

// ActivityCreateOptions are parameters for scheduling an activity.
type ActivityCreateOptions struct {
	ID             string
	Title          string
	ClientID       string
	ContractID     string
	WorkerID       string
	ScheduledStart string
	ScheduledEnd   string
	Location       string
	Description    string
	ActorID        string
}

// CreateActivity persists a new activity. With a worker the activity starts
// scheduled, after an availability check; without one it starts unassigned.
// With a contract the requested hours run through the ledger's look-ahead
// check first.
func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if opts.Title == "" {
		return domain.Activity{}, apperr.ValidationError{Field: "title", Reason: "is required"}
	}
	if opts.ClientID == "" {
		return domain.Activity{}, apperr.ValidationError{Field: "client_id", Reason: "is required"}
	}
	start, end, duration, err := parseWindow("scheduled_start", opts.ScheduledStart, "scheduled_end", opts.ScheduledEnd)
	if err != nil {
		return domain.Activity{}, err
	}
	if _, err := e.Repo.GetClient(ctx, opts.ClientID); err != nil {
		return domain.Activity{}, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.ts()
	a := domain.Activity{
		ID:             opts.ID,
		Title:          opts.Title,
		ClientID:       opts.ClientID,
		Status:         domain.ActivityUnassigned,
		ScheduledStart: start,
		ScheduledEnd:   end,
		DurationHours:  duration,
		Location:       opts.Location,
		Description:    opts.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	if opts.ContractID != "" {
		c, err := e.Repo.GetContractTx(ctx, tx, opts.ContractID)
		if err != nil {
			return domain.Activity{}, err
		}
		if c.ClientID != opts.ClientID {
			return domain.Activity{}, apperr.ValidationError{Field: "contract_id", Reason: "contract belongs to a different client"}
		}
		if err := e.validateCommitTx(ctx, tx, opts.ContractID, duration); err != nil {
			return domain.Activity{}, err
		}
		a.ContractID = &opts.ContractID
	}
	if opts.WorkerID != "" {
		if _, err := e.Repo.GetWorker(ctx, opts.WorkerID); err != nil {
			return domain.Activity{}, err
		}
		conflicts, err := e.conflictsTx(ctx, tx, opts.WorkerID, "", start, end)
		if err != nil {
			return domain.Activity{}, err
		}
		if len(conflicts) > 0 {
			return domain.Activity{}, conflictError(conflicts)
		}
		a.WorkerID = &opts.WorkerID
		a.Status = domain.ActivityScheduled
	}

	if err := e.Repo.InsertActivityTx(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.create", "activity", a.ID, opts.ActorID, events.EventPayload{"status": a.Status, "duration_hours": a.DurationHours}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// ActivityUpdateOptions are the optional fields of a partial activity update.
// ClearContract detaches the activity from its contract.
type ActivityUpdateOptions struct {
	Title          *string
	ContractID     *string
	ClearContract  bool
	ScheduledStart *string
	ScheduledEnd   *string
	Location       *string
	Description    *string
	ActorID        string
}

// UpdateActivity applies a partial update. Moving either schedule bound
// recomputes the stored duration, re-runs the ledger check against the
// (possibly new) contract, and re-checks the worker's calendar when the
// activity currently occupies it.
func (e Engine) UpdateActivity(ctx context.Context, id string, opts ActivityUpdateOptions) (domain.Activity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetActivityTx(ctx, tx, id)
	if err != nil {
		return domain.Activity{}, err
	}
	oldDuration := a.DurationHours
	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Activity{}, apperr.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		a.Title = *opts.Title
	}
	if opts.Location != nil {
		a.Location = *opts.Location
	}
	if opts.Description != nil {
		a.Description = *opts.Description
	}

	windowChanged := opts.ScheduledStart != nil || opts.ScheduledEnd != nil
	if windowChanged {
		start, end := a.ScheduledStart, a.ScheduledEnd
		if opts.ScheduledStart != nil {
			start = *opts.ScheduledStart
		}
		if opts.ScheduledEnd != nil {
			end = *opts.ScheduledEnd
		}
		start, end, duration, err := parseWindow("scheduled_start", start, "scheduled_end", end)
		if err != nil {
			return domain.Activity{}, err
		}
		a.ScheduledStart, a.ScheduledEnd, a.DurationHours = start, end, duration
	}

	contractChanged := false
	if opts.ClearContract {
		a.ContractID = nil
		contractChanged = true
	} else if opts.ContractID != nil {
		c, err := e.Repo.GetContractTx(ctx, tx, *opts.ContractID)
		if err != nil {
			return domain.Activity{}, err
		}
		if c.ClientID != a.ClientID {
			return domain.Activity{}, apperr.ValidationError{Field: "contract_id", Reason: "contract belongs to a different client"}
		}
		a.ContractID = opts.ContractID
		contractChanged = true
	}

	if a.ContractID != nil && (windowChanged || contractChanged) {
		requested := a.DurationHours
		if e.statusCounts(a.Status) && !contractChanged {
			// The old hours are already in used, so only the net increase
			// draws on the remainder. Shrinking never needs capacity.
			requested = a.DurationHours - oldDuration
		}
		if requested > 0 {
			if err := e.validateCommitTx(ctx, tx, *a.ContractID, requested); err != nil {
				return domain.Activity{}, err
			}
		}
	}
	if windowChanged && a.WorkerID != nil && domain.OccupiesCalendar(a.Status) {
		conflicts, err := e.conflictsTx(ctx, tx, *a.WorkerID, a.ID, a.ScheduledStart, a.ScheduledEnd)
		if err != nil {
			return domain.Activity{}, err
		}
		if len(conflicts) > 0 {
			return domain.Activity{}, conflictError(conflicts)
		}
	}

	a.UpdatedAt = e.ts()
	if err := e.Repo.UpdateActivityTx(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.update", "activity", a.ID, opts.ActorID, nil); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// AssignActivity sets or clears the activity's worker. Assigning re-checks
// the worker's calendar inside the write transaction, so of two concurrent
// assignments onto overlapping intervals exactly one commits; the loser gets
// a Conflict carrying the winner's activity id. Clearing the worker reverts
// the activity to unassigned.
func (e Engine) AssignActivity(ctx context.Context, id, workerID, actorID string) (domain.Activity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetActivityTx(ctx, tx, id)
	if err != nil {
		return domain.Activity{}, err
	}

	if workerID == "" {
		if a.Status != domain.ActivityUnassigned && !domain.OccupiesCalendar(a.Status) {
			return domain.Activity{}, apperr.ConflictError{Reason: fmt.Sprintf("cannot unassign activity in status %s", a.Status)}
		}
		a.WorkerID = nil
		a.Status = domain.ActivityUnassigned
	} else {
		if a.Status != domain.ActivityUnassigned && a.Status != domain.ActivityScheduled {
			return domain.Activity{}, apperr.ConflictError{Reason: fmt.Sprintf("cannot assign activity in status %s", a.Status)}
		}
		if _, err := e.Repo.GetWorker(ctx, workerID); err != nil {
			return domain.Activity{}, err
		}
		conflicts, err := e.conflictsTx(ctx, tx, workerID, a.ID, a.ScheduledStart, a.ScheduledEnd)
		if err != nil {
			return domain.Activity{}, err
		}
		if len(conflicts) > 0 {
			return domain.Activity{}, conflictError(conflicts)
		}
		if a.ContractID != nil {
			if err := e.validateCommitTx(ctx, tx, *a.ContractID, a.DurationHours); err != nil {
				return domain.Activity{}, err
			}
		}
		a.WorkerID = &workerID
		a.Status = domain.ActivityScheduled
	}

	a.UpdatedAt = e.ts()
	if err := e.Repo.UpdateActivityTx(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.assign", "activity", a.ID, actorID, events.EventPayload{"worker_id": workerID, "status": a.Status}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// SetActivityStatus advances the activity's lifecycle. Only the immediate
// successor is reachable; force is the administrative override and may jump
// or rewind, but nothing ever writes invoiced here: that status belongs to
// invoice generation, which is what keeps billing at-most-once.
func (e Engine) SetActivityStatus(ctx context.Context, id, newStatus string, force bool, actorID string) (domain.Activity, error) {
	if !domain.ValidActivityStatus(newStatus) {
		return domain.Activity{}, apperr.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}
	if newStatus == domain.ActivityInvoiced {
		return domain.Activity{}, apperr.ConflictError{Reason: "invoiced is only set by invoice generation"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetActivityTx(ctx, tx, id)
	if err != nil {
		return domain.Activity{}, err
	}
	oldStatus := a.Status
	if !force && !domain.ActivityTransitionAllowed(oldStatus, newStatus) {
		return domain.Activity{}, apperr.ConflictError{Reason: fmt.Sprintf("cannot transition from %s to %s", oldStatus, newStatus)}
	}
	if newStatus != domain.ActivityUnassigned && a.WorkerID == nil {
		return domain.Activity{}, apperr.ConflictError{Reason: "activity has no assigned worker"}
	}
	if newStatus == domain.ActivityVerified && a.ContractID != nil {
		// Hours start counting here, so the capacity check must hold in
		// the same transaction that records the transition.
		if err := e.validateCommitTx(ctx, tx, *a.ContractID, a.DurationHours); err != nil {
			return domain.Activity{}, err
		}
	}
	if force && domain.OccupiesCalendar(newStatus) && !domain.OccupiesCalendar(oldStatus) && a.WorkerID != nil {
		conflicts, err := e.conflictsTx(ctx, tx, *a.WorkerID, a.ID, a.ScheduledStart, a.ScheduledEnd)
		if err != nil {
			return domain.Activity{}, err
		}
		if len(conflicts) > 0 {
			return domain.Activity{}, conflictError(conflicts)
		}
	}
	if newStatus == domain.ActivityUnassigned {
		a.WorkerID = nil
	}

	a.Status = newStatus
	a.UpdatedAt = e.ts()
	if err := e.Repo.UpdateActivityTx(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.status", "activity", a.ID, actorID, events.EventPayload{"from": oldStatus, "to": newStatus, "force": force}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// DeleteActivity is permitted in any status and never cascades.
func (e Engine) DeleteActivity(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteActivity(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "activity.delete", "activity", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
