package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fieldline/internal/apperr"
	"fieldline/internal/domain"
)

func (r Repo) InsertContract(ctx context.Context, x Execer, c domain.Contract) error {
	_, err := x.ExecContext(ctx, `INSERT INTO contracts(id,client_id,order_number,total_hours,start_date,end_date,status,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.ClientID, c.OrderNumber, c.TotalHours, c.StartDate, c.EndDate, c.Status, c.CreatedAt)
	return mapConstraintErr(err, fmt.Sprintf("order number %s already exists for client %s", c.OrderNumber, c.ClientID))
}

func scanContract(row *sql.Row, id string) (domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(&c.ID, &c.ClientID, &c.OrderNumber, &c.TotalHours, &c.StartDate, &c.EndDate, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, apperr.NotFoundError{Kind: "contract", ID: id}
	}
	return c, err
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return scanContract(r.DB.QueryRowContext(ctx, `SELECT id,client_id,order_number,total_hours,start_date,end_date,status,created_at FROM contracts WHERE id=?`, id), id)
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return scanContract(tx.QueryRowContext(ctx, `SELECT id,client_id,order_number,total_hours,start_date,end_date,status,created_at FROM contracts WHERE id=?`, id), id)
}

type ContractFilters struct {
	ClientID string
	Status   string
}

func (r Repo) ListContracts(ctx context.Context, f ContractFilters) ([]domain.Contract, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,client_id,order_number,total_hours,start_date,end_date,status,created_at FROM contracts `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		var c domain.Contract
		if err := rows.Scan(&c.ID, &c.ClientID, &c.OrderNumber, &c.TotalHours, &c.StartDate, &c.EndDate, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ContractUpdate carries the optional fields of a partial contract update.
type ContractUpdate struct {
	TotalHours *float64
	StartDate  *string
	EndDate    *string
	Status     *string
}

func (r Repo) UpdateContract(ctx context.Context, x Execer, id string, u ContractUpdate) error {
	var fields []string
	var args []any
	if u.TotalHours != nil {
		fields = append(fields, "total_hours=?")
		args = append(args, *u.TotalHours)
	}
	if u.StartDate != nil {
		fields = append(fields, "start_date=?")
		args = append(args, *u.StartDate)
	}
	if u.EndDate != nil {
		fields = append(fields, "end_date=?")
		args = append(args, *u.EndDate)
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := x.ExecContext(ctx, fmt.Sprintf(`UPDATE contracts SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "contract", ID: id}
	}
	return nil
}

// DeleteContract detaches referencing activities (contract_id set to null by
// the schema) rather than deleting them.
func (r Repo) DeleteContract(ctx context.Context, x Execer, id string) error {
	res, err := x.ExecContext(ctx, `DELETE FROM contracts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundError{Kind: "contract", ID: id}
	}
	return nil
}

// SumContractHoursTx sums duration_hours over the contract's activities in
// the given statuses. Read inside the caller's transaction so capacity checks
// and the write they guard see the same ledger state.
func (r Repo) SumContractHoursTx(ctx context.Context, tx *sql.Tx, contractID string, statuses []string) (float64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{contractID}
	for _, s := range statuses {
		args = append(args, s)
	}
	var used float64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(duration_hours),0) FROM activities WHERE contract_id=? AND status IN (`+placeholders+`)`, args...).Scan(&used)
	return used, err
}
