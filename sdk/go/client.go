package fieldlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Fieldline HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Activity represents the API activity model.
type Activity struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	ClientID       string  `json:"client_id"`
	ContractID     *string `json:"contract_id,omitempty"`
	WorkerID       *string `json:"worker_id,omitempty"`
	Status         string  `json:"status"`
	ScheduledStart string  `json:"scheduled_start"`
	ScheduledEnd   string  `json:"scheduled_end"`
	DurationHours  float64 `json:"duration_hours"`
	Location       string  `json:"location,omitempty"`
	Description    string  `json:"description,omitempty"`
}

// Invoice represents a billing or payout record.
type Invoice struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	ClientID    *string `json:"client_id,omitempty"`
	WorkerID    *string `json:"worker_id,omitempty"`
	TotalAmount float64 `json:"total_amount"`
	PeriodStart string  `json:"period_start"`
	PeriodEnd   string  `json:"period_end"`
	Status      string  `json:"status"`
	GeneratedAt string  `json:"generated_at"`
}

// AvailabilityResult is the availability check response.
type AvailabilityResult struct {
	Available             bool       `json:"available"`
	ConflictingActivities []Activity `json:"conflicting_activities"`
}

// HoursSummary is a contract's ledger position.
type HoursSummary struct {
	ContractID     string  `json:"contract_id"`
	TotalHours     float64 `json:"total_hours"`
	UsedHours      float64 `json:"used_hours"`
	RemainingHours float64 `json:"remaining_hours"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateActivity schedules an activity.
func (c *Client) CreateActivity(ctx context.Context, title, clientID, start, end string, contractID, workerID string) (Activity, error) {
	body := map[string]any{
		"title":           title,
		"client_id":       clientID,
		"scheduled_start": start,
		"scheduled_end":   end,
	}
	if contractID != "" {
		body["contract_id"] = contractID
	}
	if workerID != "" {
		body["worker_id"] = workerID
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, "v0/activities", body, &resp)
	return resp, err
}

// AssignActivity assigns a worker; an empty workerID unassigns.
func (c *Client) AssignActivity(ctx context.Context, activityID, workerID string) (Activity, error) {
	body := map[string]any{}
	if workerID != "" {
		body["worker_id"] = workerID
	}
	var resp Activity
	endpoint := fmt.Sprintf("v0/activities/%s/assign", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SetActivityStatus transitions an activity.
func (c *Client) SetActivityStatus(ctx context.Context, activityID, status string, force bool) (Activity, error) {
	endpoint := fmt.Sprintf("v0/activities/%s/status", url.PathEscape(activityID))
	if force {
		endpoint += "?force=true"
	}
	var resp Activity
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// CheckAvailability checks a worker's calendar over an interval.
func (c *Client) CheckAvailability(ctx context.Context, workerID, start, end, excludeActivityID string) (AvailabilityResult, error) {
	body := map[string]any{
		"worker_id":       workerID,
		"scheduled_start": start,
		"scheduled_end":   end,
	}
	if excludeActivityID != "" {
		body["exclude_activity_id"] = excludeActivityID
	}
	var resp AvailabilityResult
	err := c.do(ctx, http.MethodPost, "v0/availability/check", body, &resp)
	return resp, err
}

// ContractHours returns a contract's ledger position.
func (c *Client) ContractHours(ctx context.Context, contractID string) (HoursSummary, error) {
	var resp HoursSummary
	endpoint := fmt.Sprintf("v0/contracts/%s/hours", url.PathEscape(contractID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GenerateClientInvoice bills a client for a period.
func (c *Client) GenerateClientInvoice(ctx context.Context, clientID, periodStart, periodEnd string) (Invoice, error) {
	body := map[string]any{
		"entity_id":    clientID,
		"period_start": periodStart,
		"period_end":   periodEnd,
	}
	var resp Invoice
	err := c.do(ctx, http.MethodPost, "v0/invoices/client", body, &resp)
	return resp, err
}

// GenerateWorkerPayout computes a worker payout for a period.
func (c *Client) GenerateWorkerPayout(ctx context.Context, workerID, periodStart, periodEnd string) (Invoice, error) {
	body := map[string]any{
		"entity_id":    workerID,
		"period_start": periodStart,
		"period_end":   periodEnd,
	}
	var resp Invoice
	err := c.do(ctx, http.MethodPost, "v0/invoices/worker", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
