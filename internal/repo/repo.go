package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

// Execer is satisfied by both *sql.DB and *sql.Tx. Mutating repo methods take
// one so the engine can run them inside the transaction that also records the
// audit event.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// mapConstraintErr converts SQLite constraint violations into the business
// taxonomy: unique keys and restricted deletes surface as Conflict.
func mapConstraintErr(err error, reason string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "constraint failed") {
		return apperr.ConflictError{Reason: reason}
	}
	return err
}

func (r Repo) InsertWorker(ctx context.Context, x Execer, w domain.Worker) error {
	_, err := x.ExecContext(ctx, `INSERT INTO workers(id,name,hourly_rate,specialty,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.Name, w.HourlyRate, nullable(w.Specialty), w.CreatedAt)
	return mapConstraintErr(err, fmt.Sprintf("worker %s already exists", w.ID))
}

func (r Repo) GetWorker(ctx context.Context, id string) (domain.Worker, error) {
	var w domain.Worker
	var specialty sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,hourly_rate,specialty,created_at FROM workers WHERE id=?`, id).
		Scan(&w.ID, &w.Name, &w.HourlyRate, &specialty, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, apperr.NotFoundError{Kind: "worker", ID: id}
	}
	if specialty.Valid {
		w.Specialty = specialty.String
	}
	return w, err
}

func (r Repo) ListWorkers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,hourly_rate,specialty,created_at FROM workers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Worker
	for rows.Next() {
		var w domain.Worker
		var specialty sql.NullString
		if err := rows.Scan(&w.ID, &w.Name, &w.HourlyRate, &specialty, &w.CreatedAt); err != nil {
			return nil, err
		}
		if specialty.Valid {
			w.Specialty = specialty.String
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// WorkerUpdate carries the optional fields of a partial worker update.
type WorkerUpdate struct {
	Name       *string
	HourlyRate *float64
	Specialty  *string
}

func (r Repo) UpdateWorker(ctx context.Context, x Execer, id string, u WorkerUpdate) error {
	var fields []string
	var args []any
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.HourlyRate != nil {
		fields = append(fields, "hourly_rate=?")
		args = append(args, *u.HourlyRate)
	}
	if u.Specialty != nil {
		fields = append(fields, "specialty=?")
		args = append(args, nullable(*u.Specialty))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := x.ExecContext(ctx, fmt.Sprintf(`UPDATE workers SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "worker", ID: id}
	}
	return nil
}

func (r Repo) DeleteWorker(ctx context.Context, x Execer, id string) error {
	res, err := x.ExecContext(ctx, `DELETE FROM workers WHERE id=?`, id)
	if err != nil {
		return mapConstraintErr(err, fmt.Sprintf("worker %s is still referenced", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "worker", ID: id}
	}
	return nil
}

func (r Repo) InsertClient(ctx context.Context, x Execer, c domain.Client) error {
	_, err := x.ExecContext(ctx, `INSERT INTO clients(id,name,contact_name,email,billing_rate,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Name, c.ContactName, c.Email, nullableFloatPtr(c.BillingRate), c.CreatedAt)
	return mapConstraintErr(err, fmt.Sprintf("client email %s already in use", c.Email))
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	var rate sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,contact_name,email,billing_rate,created_at FROM clients WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.ContactName, &c.Email, &rate, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, apperr.NotFoundError{Kind: "client", ID: id}
	}
	if rate.Valid {
		c.BillingRate = &rate.Float64
	}
	return c, err
}

func (r Repo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,contact_name,email,billing_rate,created_at FROM clients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Client
	for rows.Next() {
		var c domain.Client
		var rate sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Name, &c.ContactName, &c.Email, &rate, &c.CreatedAt); err != nil {
			return nil, err
		}
		if rate.Valid {
			c.BillingRate = &rate.Float64
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ClientUpdate carries the optional fields of a partial client update.
type ClientUpdate struct {
	Name        *string
	ContactName *string
	Email       *string
	BillingRate *float64
	ClearRate   bool
}

func (r Repo) UpdateClient(ctx context.Context, x Execer, id string, u ClientUpdate) error {
	var fields []string
	var args []any
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.ContactName != nil {
		fields = append(fields, "contact_name=?")
		args = append(args, *u.ContactName)
	}
	if u.Email != nil {
		fields = append(fields, "email=?")
		args = append(args, *u.Email)
	}
	if u.ClearRate {
		fields = append(fields, "billing_rate=NULL")
	} else if u.BillingRate != nil {
		fields = append(fields, "billing_rate=?")
		args = append(args, *u.BillingRate)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := x.ExecContext(ctx, fmt.Sprintf(`UPDATE clients SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return mapConstraintErr(err, "client email already in use")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "client", ID: id}
	}
	return nil
}

// DeleteClient fails with Conflict while activities still reference the
// client; contracts and invoices follow the schema's delete rules.
func (r Repo) DeleteClient(ctx context.Context, x Execer, id string) error {
	res, err := x.ExecContext(ctx, `DELETE FROM clients WHERE id=?`, id)
	if err != nil {
		return mapConstraintErr(err, fmt.Sprintf("client %s has activities or contracts", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "client", ID: id}
	}
	return nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entity, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entity.Valid {
			e.EntityID = entity.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
