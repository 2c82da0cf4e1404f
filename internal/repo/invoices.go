package repo

import (
	"context"
	"database/sql"
	"strings"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
)

const invoiceCols = `id,kind,client_id,worker_id,total_amount,period_start,period_end,status,generated_at`

func scanInvoice(row activityRow) (domain.Invoice, error) {
	var inv domain.Invoice
	var clientID, workerID sql.NullString
	err := row.Scan(&inv.ID, &inv.Kind, &clientID, &workerID, &inv.TotalAmount,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.Status, &inv.GeneratedAt)
	if err != nil {
		return inv, err
	}
	if clientID.Valid {
		inv.ClientID = &clientID.String
	}
	if workerID.Valid {
		inv.WorkerID = &workerID.String
	}
	return inv, nil
}

func (r Repo) InsertInvoiceTx(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invoices(`+invoiceCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.Kind, nullableStringPtr(inv.ClientID), nullableStringPtr(inv.WorkerID),
		inv.TotalAmount, inv.PeriodStart, inv.PeriodEnd, inv.Status, inv.GeneratedAt)
	return err
}

func (r Repo) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	inv, err := scanInvoice(r.DB.QueryRowContext(ctx, `SELECT `+invoiceCols+` FROM invoices WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return inv, apperr.NotFoundError{Kind: "invoice", ID: id}
	}
	return inv, err
}

type InvoiceFilters struct {
	Kind     string
	ClientID string
	WorkerID string
	Status   string
}

func (r Repo) ListInvoices(ctx context.Context, f InvoiceFilters) ([]domain.Invoice, error) {
	var clauses []string
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+invoiceCols+` FROM invoices `+where+` ORDER BY generated_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r Repo) UpdateInvoiceStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invoices SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "invoice", ID: id}
	}
	return nil
}
