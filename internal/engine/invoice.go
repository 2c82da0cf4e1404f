package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
	"fieldline/internal/events"
)

// GenerateClientInvoice bills a client for every verified activity fully
// contained in the period. Selection and the flip to invoiced happen in one
// transaction with a conditional update; if a concurrent run already consumed
// part of the selection the row count comes up short and the whole operation
// aborts with Conflict instead of billing from a stale total. An empty
// selection is not an error: it yields a zero-amount invoice, which is what a
// rerun over an already-billed period produces.
func (e Engine) GenerateClientInvoice(ctx context.Context, clientID, periodStart, periodEnd, actorID string) (domain.Invoice, error) {
	start, end, _, err := parseWindow("period_start", periodStart, "period_end", periodEnd)
	if err != nil {
		return domain.Invoice{}, err
	}
	client, err := e.Repo.GetClient(ctx, clientID)
	if err != nil {
		return domain.Invoice{}, err
	}
	rate := 0.0
	if client.BillingRate != nil {
		rate = *client.BillingRate
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	selected, err := e.Repo.ListVerifiedInWindowTx(ctx, tx, "client_id", clientID, start, end)
	if err != nil {
		return domain.Invoice{}, err
	}
	total := 0.0
	ids := make([]string, len(selected))
	for i, a := range selected {
		total += a.DurationHours * rate
		ids[i] = a.ID
	}

	now := e.ts()
	flipped, err := e.Repo.MarkInvoicedTx(ctx, tx, ids, now)
	if err != nil {
		return domain.Invoice{}, err
	}
	if flipped != int64(len(ids)) {
		return domain.Invoice{}, apperr.ConflictError{
			Reason:      fmt.Sprintf("invoice selection raced: expected %d activities, flipped %d", len(ids), flipped),
			ActivityIDs: ids,
		}
	}

	inv := domain.Invoice{
		ID:          uuid.NewString(),
		Kind:        domain.KindClientBill,
		ClientID:    &clientID,
		TotalAmount: total,
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      domain.InvoiceDraft,
		GeneratedAt: now,
	}
	if err := e.Repo.InsertInvoiceTx(ctx, tx, inv); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.generate", "invoice", inv.ID, actorID, events.EventPayload{
		"kind": inv.Kind, "client_id": clientID, "total_amount": total, "activity_ids": ids,
	}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

// GenerateWorkerPayout computes a payout for the worker's verified activities
// fully contained in the period, at the worker's hourly rate. Unlike client
// billing it leaves the activities verified, so the same hours could be paid
// out again; invoicing.lock_payout_activities makes it flip them the same way
// client billing does.
func (e Engine) GenerateWorkerPayout(ctx context.Context, workerID, periodStart, periodEnd, actorID string) (domain.Invoice, error) {
	start, end, _, err := parseWindow("period_start", periodStart, "period_end", periodEnd)
	if err != nil {
		return domain.Invoice{}, err
	}
	worker, err := e.Repo.GetWorker(ctx, workerID)
	if err != nil {
		return domain.Invoice{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	selected, err := e.Repo.ListVerifiedInWindowTx(ctx, tx, "worker_id", workerID, start, end)
	if err != nil {
		return domain.Invoice{}, err
	}
	total := 0.0
	ids := make([]string, len(selected))
	for i, a := range selected {
		total += a.DurationHours * worker.HourlyRate
		ids[i] = a.ID
	}

	now := e.ts()
	if e.Config != nil && e.Config.Invoicing.LockPayoutActivities {
		flipped, err := e.Repo.MarkInvoicedTx(ctx, tx, ids, now)
		if err != nil {
			return domain.Invoice{}, err
		}
		if flipped != int64(len(ids)) {
			return domain.Invoice{}, apperr.ConflictError{
				Reason:      fmt.Sprintf("payout selection raced: expected %d activities, flipped %d", len(ids), flipped),
				ActivityIDs: ids,
			}
		}
	}

	inv := domain.Invoice{
		ID:          uuid.NewString(),
		Kind:        domain.KindWorkerPayout,
		WorkerID:    &workerID,
		TotalAmount: total,
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      domain.InvoiceDraft,
		GeneratedAt: now,
	}
	if err := e.Repo.InsertInvoiceTx(ctx, tx, inv); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.generate", "invoice", inv.ID, actorID, events.EventPayload{
		"kind": inv.Kind, "worker_id": workerID, "total_amount": total, "activity_ids": ids,
	}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

// SetInvoiceStatus advances an invoice draft -> sent -> paid. Invoices are
// never regenerated or rewound.
func (e Engine) SetInvoiceStatus(ctx context.Context, id, newStatus, actorID string) (domain.Invoice, error) {
	if !domain.ValidInvoiceStatus(newStatus) {
		return domain.Invoice{}, apperr.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}
	inv, err := e.Repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if !domain.InvoiceTransitionAllowed(inv.Status, newStatus) {
		return domain.Invoice{}, apperr.ConflictError{Reason: fmt.Sprintf("cannot transition invoice from %s to %s", inv.Status, newStatus)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateInvoiceStatusTx(ctx, tx, id, newStatus); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.status", "invoice", id, actorID, events.EventPayload{"from": inv.Status, "to": newStatus}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	inv.Status = newStatus
	return inv, nil
}
