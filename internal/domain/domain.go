package domain

type Worker struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	HourlyRate float64 `json:"hourly_rate"`
	Specialty  string  `json:"specialty,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type Client struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ContactName string   `json:"contact_name"`
	Email       string   `json:"email"`
	BillingRate *float64 `json:"billing_rate,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type Contract struct {
	ID          string  `json:"id"`
	ClientID    string  `json:"client_id"`
	OrderNumber string  `json:"order_number"`
	TotalHours  float64 `json:"total_hours"`
	StartDate   string  `json:"start_date" format:"date-time"`
	EndDate     string  `json:"end_date" format:"date-time"`
	Status      string  `json:"status" enum:"active,closed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Activity struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	ClientID       string  `json:"client_id"`
	ContractID     *string `json:"contract_id,omitempty"`
	WorkerID       *string `json:"worker_id,omitempty"`
	Status         string  `json:"status" enum:"unassigned,scheduled,in_progress,done,verified,invoiced"`
	ScheduledStart string  `json:"scheduled_start" format:"date-time"`
	ScheduledEnd   string  `json:"scheduled_end" format:"date-time"`
	DurationHours  float64 `json:"duration_hours"`
	Location       string  `json:"location,omitempty"`
	Description    string  `json:"description,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Invoice targets exactly one of ClientID (kind=client_bill) or WorkerID
// (kind=worker_payout); the schema enforces the exclusivity.
type Invoice struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind" enum:"client_bill,worker_payout"`
	ClientID    *string `json:"client_id,omitempty"`
	WorkerID    *string `json:"worker_id,omitempty"`
	TotalAmount float64 `json:"total_amount"`
	PeriodStart string  `json:"period_start" format:"date-time"`
	PeriodEnd   string  `json:"period_end" format:"date-time"`
	Status      string  `json:"status" enum:"draft,sent,paid"`
	GeneratedAt string  `json:"generated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
