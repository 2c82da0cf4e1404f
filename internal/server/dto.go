package server

// Request payloads

type CreateWorkerRequest struct {
	ID         *string `json:"id,omitempty"`
	Name       string  `json:"name"`
	HourlyRate float64 `json:"hourly_rate"`
	Specialty  *string `json:"specialty,omitempty"`
}

type UpdateWorkerRequest struct {
	Name       *string  `json:"name,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	Specialty  *string  `json:"specialty,omitempty"`
}

type CreateClientRequest struct {
	ID          *string  `json:"id,omitempty"`
	Name        string   `json:"name"`
	ContactName string   `json:"contact_name,omitempty"`
	Email       string   `json:"email"`
	BillingRate *float64 `json:"billing_rate,omitempty"`
}

type UpdateClientRequest struct {
	Name             *string  `json:"name,omitempty"`
	ContactName      *string  `json:"contact_name,omitempty"`
	Email            *string  `json:"email,omitempty"`
	BillingRate      *float64 `json:"billing_rate,omitempty"`
	ClearBillingRate bool     `json:"clear_billing_rate,omitempty"`
}

type CreateContractRequest struct {
	ID          *string `json:"id,omitempty"`
	ClientID    string  `json:"client_id"`
	OrderNumber string  `json:"order_number"`
	TotalHours  float64 `json:"total_hours"`
	StartDate   string  `json:"start_date" format:"date-time"`
	EndDate     string  `json:"end_date" format:"date-time"`
}

type UpdateContractRequest struct {
	TotalHours *float64 `json:"total_hours,omitempty"`
	StartDate  *string  `json:"start_date,omitempty" format:"date-time"`
	EndDate    *string  `json:"end_date,omitempty" format:"date-time"`
	Status     *string  `json:"status,omitempty" enum:"active,closed"`
}

type CreateActivityRequest struct {
	ID             *string `json:"id,omitempty"`
	Title          string  `json:"title"`
	ClientID       string  `json:"client_id"`
	ContractID     *string `json:"contract_id,omitempty"`
	WorkerID       *string `json:"worker_id,omitempty"`
	ScheduledStart string  `json:"scheduled_start" format:"date-time"`
	ScheduledEnd   string  `json:"scheduled_end" format:"date-time"`
	Location       *string `json:"location,omitempty"`
	Description    *string `json:"description,omitempty"`
}

type UpdateActivityRequest struct {
	Title          *string `json:"title,omitempty"`
	ContractID     *string `json:"contract_id,omitempty"`
	ClearContract  bool    `json:"clear_contract,omitempty"`
	ScheduledStart *string `json:"scheduled_start,omitempty" format:"date-time"`
	ScheduledEnd   *string `json:"scheduled_end,omitempty" format:"date-time"`
	Location       *string `json:"location,omitempty"`
	Description    *string `json:"description,omitempty"`
}

type AssignActivityRequest struct {
	WorkerID *string `json:"worker_id,omitempty"`
}

type SetActivityStatusRequest struct {
	Status string `json:"status" enum:"unassigned,scheduled,in_progress,done,verified"`
}

type AvailabilityCheckRequest struct {
	WorkerID          string  `json:"worker_id"`
	ScheduledStart    string  `json:"scheduled_start" format:"date-time"`
	ScheduledEnd      string  `json:"scheduled_end" format:"date-time"`
	ExcludeActivityID *string `json:"exclude_activity_id,omitempty"`
}

type GenerateInvoiceRequest struct {
	EntityID    string `json:"entity_id"`
	PeriodStart string `json:"period_start" format:"date-time"`
	PeriodEnd   string `json:"period_end" format:"date-time"`
}

type SetInvoiceStatusRequest struct {
	Status string `json:"status" enum:"draft,sent,paid"`
}
