package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
)

const activityCols = `id,title,client_id,contract_id,worker_id,status,scheduled_start,scheduled_end,duration_hours,location,description,created_at,updated_at`

type activityRow interface {
	Scan(dest ...any) error
}

func scanActivity(row activityRow) (domain.Activity, error) {
	var a domain.Activity
	var contractID, workerID, location, description sql.NullString
	err := row.Scan(&a.ID, &a.Title, &a.ClientID, &contractID, &workerID, &a.Status,
		&a.ScheduledStart, &a.ScheduledEnd, &a.DurationHours, &location, &description, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if contractID.Valid {
		a.ContractID = &contractID.String
	}
	if workerID.Valid {
		a.WorkerID = &workerID.String
	}
	if location.Valid {
		a.Location = location.String
	}
	if description.Valid {
		a.Description = description.String
	}
	return a, nil
}

func (r Repo) InsertActivityTx(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO activities(`+activityCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Title, a.ClientID, nullableStringPtr(a.ContractID), nullableStringPtr(a.WorkerID), a.Status,
		a.ScheduledStart, a.ScheduledEnd, a.DurationHours, nullable(a.Location), nullable(a.Description), a.CreatedAt, a.UpdatedAt)
	return mapConstraintErr(err, fmt.Sprintf("activity %s already exists", a.ID))
}

func (r Repo) UpdateActivityTx(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	_, err := tx.ExecContext(ctx, `UPDATE activities SET title=?, client_id=?, contract_id=?, worker_id=?, status=?, scheduled_start=?, scheduled_end=?, duration_hours=?, location=?, description=?, updated_at=? WHERE id=?`,
		a.Title, a.ClientID, nullableStringPtr(a.ContractID), nullableStringPtr(a.WorkerID), a.Status,
		a.ScheduledStart, a.ScheduledEnd, a.DurationHours, nullable(a.Location), nullable(a.Description), a.UpdatedAt, a.ID)
	return err
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	a, err := scanActivity(r.DB.QueryRowContext(ctx, `SELECT `+activityCols+` FROM activities WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return a, apperr.NotFoundError{Kind: "activity", ID: id}
	}
	return a, err
}

func (r Repo) GetActivityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Activity, error) {
	a, err := scanActivity(tx.QueryRowContext(ctx, `SELECT `+activityCols+` FROM activities WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return a, apperr.NotFoundError{Kind: "activity", ID: id}
	}
	return a, err
}

type ActivityFilters struct {
	ClientID        string
	ContractID      string
	WorkerID        string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.ContractID != "" {
		clauses = append(clauses, "contract_id=?")
		args = append(args, f.ContractID)
	}
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + activityCols + ` FROM activities ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteActivity(ctx context.Context, x Execer, id string) error {
	res, err := x.ExecContext(ctx, `DELETE FROM activities WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "activity", ID: id}
	}
	return nil
}

// ListWorkerCalendar returns the worker's committed-but-unfinished activities
// (the scheduled/in_progress band), optionally excluding one activity so an
// edit can ignore itself.
func (r Repo) ListWorkerCalendar(ctx context.Context, workerID, excludeID string) ([]domain.Activity, error) {
	return r.listWorkerCalendar(ctx, r.DB.QueryContext, workerID, excludeID)
}

func (r Repo) ListWorkerCalendarTx(ctx context.Context, tx *sql.Tx, workerID, excludeID string) ([]domain.Activity, error) {
	return r.listWorkerCalendar(ctx, tx.QueryContext, workerID, excludeID)
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func (r Repo) listWorkerCalendar(ctx context.Context, query queryFunc, workerID, excludeID string) ([]domain.Activity, error) {
	clauses := []string{"worker_id=?", "status IN (?,?)"}
	args := []any{workerID, domain.ActivityScheduled, domain.ActivityInProgress}
	if excludeID != "" {
		clauses = append(clauses, "id != ?")
		args = append(args, excludeID)
	}
	rows, err := query(ctx, `SELECT `+activityCols+` FROM activities WHERE `+strings.Join(clauses, " AND ")+` ORDER BY scheduled_start ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListVerifiedInWindowTx selects verified activities fully contained in the
// period for one client or one worker. RFC3339 UTC timestamps compare
// correctly as strings.
func (r Repo) ListVerifiedInWindowTx(ctx context.Context, tx *sql.Tx, scopeCol, scopeID, periodStart, periodEnd string) ([]domain.Activity, error) {
	if scopeCol != "client_id" && scopeCol != "worker_id" {
		return nil, fmt.Errorf("invalid scope column %q", scopeCol)
	}
	rows, err := tx.QueryContext(ctx, `SELECT `+activityCols+` FROM activities WHERE `+scopeCol+`=? AND status=? AND scheduled_start >= ? AND scheduled_end <= ? ORDER BY scheduled_start ASC, id ASC`,
		scopeID, domain.ActivityVerified, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// MarkInvoicedTx conditionally flips the given activities from verified to
// invoiced and reports how many rows actually changed. A count below
// len(ids) means a concurrent run already consumed part of the selection.
func (r Repo) MarkInvoicedTx(ctx context.Context, tx *sql.Tx, ids []string, updatedAt string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{domain.ActivityInvoiced, updatedAt, domain.ActivityVerified}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := tx.ExecContext(ctx, `UPDATE activities SET status=?, updated_at=? WHERE status=? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountActivitiesByStatus returns per-status counts, optionally scoped to a
// client.
func (r Repo) CountActivitiesByStatus(ctx context.Context, clientID string) (map[string]int, error) {
	query := `SELECT status, count(*) FROM activities GROUP BY status`
	var args []any
	if clientID != "" {
		query = `SELECT status, count(*) FROM activities WHERE client_id=? GROUP BY status`
		args = append(args, clientID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
