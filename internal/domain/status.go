package domain

// Activity statuses, in lifecycle order.
const (
	ActivityUnassigned = "unassigned"
	ActivityScheduled  = "scheduled"
	ActivityInProgress = "in_progress"
	ActivityDone       = "done"
	ActivityVerified   = "verified"
	ActivityInvoiced   = "invoiced"
)

const (
	InvoiceDraft = "draft"
	InvoiceSent  = "sent"
	InvoicePaid  = "paid"
)

const (
	KindClientBill   = "client_bill"
	KindWorkerPayout = "worker_payout"
)

const (
	ContractActive = "active"
	ContractClosed = "closed"
)

// activityNext is the single transition table for activity statuses. Only the
// immediate successor is reachable; everything else requires force, and
// "invoiced" is written exclusively by the invoice generator.
var activityNext = map[string]string{
	ActivityUnassigned: ActivityScheduled,
	ActivityScheduled:  ActivityInProgress,
	ActivityInProgress: ActivityDone,
	ActivityDone:       ActivityVerified,
	ActivityVerified:   ActivityInvoiced,
}

var invoiceNext = map[string]string{
	InvoiceDraft: InvoiceSent,
	InvoiceSent:  InvoicePaid,
}

func ValidActivityStatus(s string) bool {
	_, ok := activityNext[s]
	return ok || s == ActivityInvoiced
}

func ValidInvoiceStatus(s string) bool {
	_, ok := invoiceNext[s]
	return ok || s == InvoicePaid
}

// ActivityTransitionAllowed reports whether old -> new is a legal forward step.
func ActivityTransitionAllowed(oldStatus, newStatus string) bool {
	return activityNext[oldStatus] == newStatus
}

func InvoiceTransitionAllowed(oldStatus, newStatus string) bool {
	return invoiceNext[oldStatus] == newStatus
}

// OccupiesCalendar reports whether an activity in this status blocks its
// worker's calendar: committed but not yet finished.
func OccupiesCalendar(status string) bool {
	return status == ActivityScheduled || status == ActivityInProgress
}

// CountsAgainstContract reports whether an activity's hours consume contract
// capacity. Only confirmed work counts; scheduling alone does not.
func CountsAgainstContract(status string) bool {
	return status == ActivityVerified || status == ActivityInvoiced
}
