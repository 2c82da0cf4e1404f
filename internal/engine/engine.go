package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/apperr"
	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

// parseWindow validates a start/end pair and returns the bounds normalized to
// UTC RFC3339 plus the span in hours. Bounds are truncated to whole seconds
// before the span is computed, so the stored duration always equals the
// difference of the stored bounds. Normalized timestamps compare correctly as
// strings, which the repo's range queries rely on.
func parseWindow(startField, start, endField, end string) (string, string, float64, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return "", "", 0, apperr.ValidationError{Field: startField, Reason: "must be an RFC3339 timestamp"}
	}
	t, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return "", "", 0, apperr.ValidationError{Field: endField, Reason: "must be an RFC3339 timestamp"}
	}
	s = s.UTC().Truncate(time.Second)
	t = t.UTC().Truncate(time.Second)
	if !t.After(s) {
		return "", "", 0, apperr.ValidationError{Field: endField, Reason: "must be after " + startField}
	}
	return s.Format(time.RFC3339), t.Format(time.RFC3339), t.Sub(s).Hours(), nil
}

// WorkerCreateOptions are parameters for registering a worker.
type WorkerCreateOptions struct {
	ID         string
	Name       string
	HourlyRate float64
	Specialty  string
	ActorID    string
}

func (e Engine) CreateWorker(ctx context.Context, opts WorkerCreateOptions) (domain.Worker, error) {
	if opts.Name == "" {
		return domain.Worker{}, apperr.ValidationError{Field: "name", Reason: "is required"}
	}
	if opts.HourlyRate <= 0 {
		return domain.Worker{}, apperr.ValidationError{Field: "hourly_rate", Reason: "must be positive"}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	w := domain.Worker{
		ID:         opts.ID,
		Name:       opts.Name,
		HourlyRate: opts.HourlyRate,
		Specialty:  opts.Specialty,
		CreatedAt:  e.ts(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorker(ctx, tx, w); err != nil {
		return domain.Worker{}, err
	}
	if err := e.Events.Append(ctx, tx, "worker.create", "worker", w.ID, opts.ActorID, events.EventPayload{"name": w.Name}); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	return w, nil
}

func (e Engine) UpdateWorker(ctx context.Context, id string, u repo.WorkerUpdate, actorID string) (domain.Worker, error) {
	if u.HourlyRate != nil && *u.HourlyRate <= 0 {
		return domain.Worker{}, apperr.ValidationError{Field: "hourly_rate", Reason: "must be positive"}
	}
	if u.Name != nil && *u.Name == "" {
		return domain.Worker{}, apperr.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Worker{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorker(ctx, tx, id, u); err != nil {
		return domain.Worker{}, err
	}
	if err := e.Events.Append(ctx, tx, "worker.update", "worker", id, actorID, nil); err != nil {
		return domain.Worker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Worker{}, err
	}
	return e.Repo.GetWorker(ctx, id)
}

func (e Engine) DeleteWorker(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteWorker(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "worker.delete", "worker", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ClientCreateOptions are parameters for registering a client.
type ClientCreateOptions struct {
	ID          string
	Name        string
	ContactName string
	Email       string
	BillingRate *float64
	ActorID     string
}

func (e Engine) CreateClient(ctx context.Context, opts ClientCreateOptions) (domain.Client, error) {
	if opts.Name == "" {
		return domain.Client{}, apperr.ValidationError{Field: "name", Reason: "is required"}
	}
	if opts.Email == "" {
		return domain.Client{}, apperr.ValidationError{Field: "email", Reason: "is required"}
	}
	if opts.BillingRate != nil && *opts.BillingRate < 0 {
		return domain.Client{}, apperr.ValidationError{Field: "billing_rate", Reason: "must not be negative"}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	c := domain.Client{
		ID:          opts.ID,
		Name:        opts.Name,
		ContactName: opts.ContactName,
		Email:       opts.Email,
		BillingRate: opts.BillingRate,
		CreatedAt:   e.ts(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if err := e.Events.Append(ctx, tx, "client.create", "client", c.ID, opts.ActorID, events.EventPayload{"name": c.Name}); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func (e Engine) UpdateClient(ctx context.Context, id string, u repo.ClientUpdate, actorID string) (domain.Client, error) {
	if u.Email != nil && *u.Email == "" {
		return domain.Client{}, apperr.ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if u.BillingRate != nil && *u.BillingRate < 0 {
		return domain.Client{}, apperr.ValidationError{Field: "billing_rate", Reason: "must not be negative"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateClient(ctx, tx, id, u); err != nil {
		return domain.Client{}, err
	}
	if err := e.Events.Append(ctx, tx, "client.update", "client", id, actorID, nil); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return e.Repo.GetClient(ctx, id)
}

func (e Engine) DeleteClient(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteClient(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "client.delete", "client", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ContractCreateOptions are parameters for opening an hour contract.
type ContractCreateOptions struct {
	ID          string
	ClientID    string
	OrderNumber string
	TotalHours  float64
	StartDate   string
	EndDate     string
	ActorID     string
}

func (e Engine) CreateContract(ctx context.Context, opts ContractCreateOptions) (domain.Contract, error) {
	if opts.ClientID == "" {
		return domain.Contract{}, apperr.ValidationError{Field: "client_id", Reason: "is required"}
	}
	if opts.OrderNumber == "" {
		return domain.Contract{}, apperr.ValidationError{Field: "order_number", Reason: "is required"}
	}
	if opts.TotalHours <= 0 {
		return domain.Contract{}, apperr.ValidationError{Field: "total_hours", Reason: "must be positive"}
	}
	start, end, _, err := parseWindow("start_date", opts.StartDate, "end_date", opts.EndDate)
	if err != nil {
		return domain.Contract{}, err
	}
	if _, err := e.Repo.GetClient(ctx, opts.ClientID); err != nil {
		return domain.Contract{}, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	c := domain.Contract{
		ID:          opts.ID,
		ClientID:    opts.ClientID,
		OrderNumber: opts.OrderNumber,
		TotalHours:  opts.TotalHours,
		StartDate:   start,
		EndDate:     end,
		Status:      domain.ContractActive,
		CreatedAt:   e.ts(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.create", "contract", c.ID, opts.ActorID, events.EventPayload{"order_number": c.OrderNumber, "total_hours": c.TotalHours}); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

func (e Engine) UpdateContract(ctx context.Context, id string, u repo.ContractUpdate, actorID string) (domain.Contract, error) {
	if u.TotalHours != nil && *u.TotalHours <= 0 {
		return domain.Contract{}, apperr.ValidationError{Field: "total_hours", Reason: "must be positive"}
	}
	if u.Status != nil && *u.Status != domain.ContractActive && *u.Status != domain.ContractClosed {
		return domain.Contract{}, apperr.ValidationError{Field: "status", Reason: "must be active or closed"}
	}
	cur, err := e.Repo.GetContract(ctx, id)
	if err != nil {
		return domain.Contract{}, err
	}
	start, end := cur.StartDate, cur.EndDate
	if u.StartDate != nil {
		start = *u.StartDate
	}
	if u.EndDate != nil {
		end = *u.EndDate
	}
	if u.StartDate != nil || u.EndDate != nil {
		s, t, _, err := parseWindow("start_date", start, "end_date", end)
		if err != nil {
			return domain.Contract{}, err
		}
		u.StartDate, u.EndDate = &s, &t
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateContract(ctx, tx, id, u); err != nil {
		return domain.Contract{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.update", "contract", id, actorID, nil); err != nil {
		return domain.Contract{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contract{}, err
	}
	return e.Repo.GetContract(ctx, id)
}

// DeleteContract removes the contract; referencing activities keep running
// with their contract link nulled by the store.
func (e Engine) DeleteContract(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteContract(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "contract.delete", "contract", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
