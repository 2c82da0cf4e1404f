package engine

import (
	"context"
	"database/sql"
	"fmt"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
)

// AvailabilityResult reports whether a worker is free over an interval and,
// when not, which committed activities collide.
type AvailabilityResult struct {
	Available             bool              `json:"available"`
	ConflictingActivities []domain.Activity `json:"conflicting_activities"`
}

// CheckAvailability is a pure read: it inspects the worker's calendar band
// (scheduled and in_progress activities) without taking any reservation. A
// worker with no committed activities, including an unknown worker id, is
// trivially available.
func (e Engine) CheckAvailability(ctx context.Context, workerID, start, end, excludeActivityID string) (AvailabilityResult, error) {
	if workerID == "" {
		return AvailabilityResult{}, apperr.ValidationError{Field: "worker_id", Reason: "is required"}
	}
	start, end, _, err := parseWindow("scheduled_start", start, "scheduled_end", end)
	if err != nil {
		return AvailabilityResult{}, err
	}
	calendar, err := e.Repo.ListWorkerCalendar(ctx, workerID, excludeActivityID)
	if err != nil {
		return AvailabilityResult{}, err
	}
	conflicts := e.filterOverlaps(calendar, start, end)
	return AvailabilityResult{Available: len(conflicts) == 0, ConflictingActivities: conflicts}, nil
}

// conflictsTx re-runs the overlap scan inside a write transaction so an
// assignment sees the calendar it is about to join, not a stale snapshot.
func (e Engine) conflictsTx(ctx context.Context, tx *sql.Tx, workerID, excludeActivityID, start, end string) ([]domain.Activity, error) {
	calendar, err := e.Repo.ListWorkerCalendarTx(ctx, tx, workerID, excludeActivityID)
	if err != nil {
		return nil, err
	}
	return e.filterOverlaps(calendar, start, end), nil
}

func (e Engine) filterOverlaps(calendar []domain.Activity, start, end string) []domain.Activity {
	var conflicts []domain.Activity
	for _, a := range calendar {
		if e.overlaps(a.ScheduledStart, a.ScheduledEnd, start, end) {
			conflicts = append(conflicts, a)
		}
	}
	return conflicts
}

// overlaps compares two normalized UTC RFC3339 intervals. Under the default
// policy intervals that merely touch at an endpoint count as a conflict;
// scheduling.endpoint_touch_conflicts=false narrows this to strict overlap.
func (e Engine) overlaps(aStart, aEnd, bStart, bEnd string) bool {
	if e.Config != nil && !e.Config.Scheduling.EndpointTouchConflicts {
		return aStart < bEnd && aEnd > bStart
	}
	return aStart <= bEnd && aEnd >= bStart
}

func conflictError(conflicts []domain.Activity) apperr.ConflictError {
	ids := make([]string, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ID
	}
	return apperr.ConflictError{
		Reason:      fmt.Sprintf("worker has %d overlapping activities", len(conflicts)),
		ActivityIDs: ids,
	}
}
