package engine

import (
	"context"
	"database/sql"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
)

// HoursSummary is a contract's capacity ledger position.
type HoursSummary struct {
	ContractID     string  `json:"contract_id"`
	TotalHours     float64 `json:"total_hours"`
	UsedHours      float64 `json:"used_hours"`
	RemainingHours float64 `json:"remaining_hours"`
}

// countingStatuses lists the activity statuses whose hours consume contract
// capacity. Verified and invoiced always count; capacity.reserve_unverified
// widens the set so that merely committed work already reserves hours.
func (e Engine) countingStatuses() []string {
	statuses := []string{domain.ActivityVerified, domain.ActivityInvoiced}
	if e.Config != nil && e.Config.Capacity.ReserveUnverified {
		statuses = append(statuses, domain.ActivityScheduled, domain.ActivityInProgress, domain.ActivityDone)
	}
	return statuses
}

// statusCounts reports whether hours in this status are already part of the
// contract's used sum.
func (e Engine) statusCounts(status string) bool {
	for _, s := range e.countingStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// ContractHours reports total/used/remaining hours for a contract.
func (e Engine) ContractHours(ctx context.Context, contractID string) (HoursSummary, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return HoursSummary{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return HoursSummary{}, err
	}
	used, err := e.Repo.SumContractHoursTx(ctx, tx, contractID, e.countingStatuses())
	if err != nil {
		return HoursSummary{}, err
	}
	return HoursSummary{
		ContractID:     c.ID,
		TotalHours:     c.TotalHours,
		UsedHours:      used,
		RemainingHours: c.TotalHours - used,
	}, nil
}

// validateCommitTx is the ledger's look-ahead check: it rejects a commitment
// of requested hours that would push the contract past its purchased total.
// It takes no reservation, so concurrent unverified activities can still
// collectively overbook until one of them verifies; the same check re-runs at
// verification time inside the verifying transaction.
func (e Engine) validateCommitTx(ctx context.Context, tx *sql.Tx, contractID string, requested float64) error {
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return err
	}
	if c.Status == domain.ContractClosed {
		return apperr.ConflictError{Reason: "contract " + contractID + " is closed"}
	}
	used, err := e.Repo.SumContractHoursTx(ctx, tx, contractID, e.countingStatuses())
	if err != nil {
		return err
	}
	remaining := c.TotalHours - used
	if requested > remaining {
		return apperr.CapacityError{
			ContractID: contractID,
			Requested:  requested,
			Total:      c.TotalHours,
			Used:       used,
			Remaining:  remaining,
		}
	}
	return nil
}
