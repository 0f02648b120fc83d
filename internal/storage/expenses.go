package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/ports"
)

const expenseSelect = `
	SELECT e.id, e.user_id, e.category_id, e.account_id, e.amount_cents, e.description, e.expense_date,
	       e.reference_number, e.source, e.created_at, e.updated_at, c.name, c.color
	FROM expenses e
	JOIN categories c ON c.id = e.category_id`

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e       core.Expense
		account sql.NullInt64
		cents   int64
		date    dateValue
		ref     sql.NullString
		source  string
	)
	err := row.Scan(&e.ID, &e.UserID, &e.CategoryID, &account, &cents, &e.Description, &date,
		&ref, &source, &e.CreatedAt, &e.UpdatedAt, &e.CategoryName, &e.CategoryColor)
	if err != nil {
		return core.Expense{}, err
	}
	e.AccountID = ptrInt(account)
	e.Amount = core.FromCents(cents)
	e.Date = date.Date
	e.ReferenceNumber = ref.String
	e.Source = core.ExpenseSource(source)
	return e, nil
}

func (r *Repository) insertExpense(ctx context.Context, q queryer, e core.Expense) (core.Expense, error) {
	now := r.stamp()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Source == "" {
		e.Source = core.SourceManual
	}
	err := q.QueryRowContext(ctx, r.rebind(`
		INSERT INTO expenses (user_id, category_id, account_id, amount_cents, description, expense_date,
		                      reference_number, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		e.UserID, e.CategoryID, nullInt(e.AccountID), core.ToCents(e.Amount), e.Description, r.dateArg(e.Date),
		nullString(e.ReferenceNumber), string(e.Source), r.timeArg(now), r.timeArg(now),
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Expense{}, core.ErrDuplicateTransaction
		}
		return core.Expense{}, core.NewPersistenceError("create expense", err)
	}
	return e, nil
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	created, err := r.insertExpense(ctx, r.db, e)
	if err != nil {
		return core.Expense{}, err
	}
	r.logger.InfoContext(ctx, "Expense saved",
		"expense_id", created.ID, "user_id", created.UserID, "amount", created.Amount.StringFixed(2), "source", created.Source)
	return created, nil
}

// CreateExpenseWithDebit inserts the expense and lowers the account's cached
// balance in one transaction.
func (r *Repository) CreateExpenseWithDebit(ctx context.Context, e core.Expense, accountID int64) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, core.NewPersistenceError("begin expense transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	e.AccountID = &accountID
	created, err := r.insertExpense(ctx, tx, e)
	if err != nil {
		return core.Expense{}, err
	}

	res, err := tx.ExecContext(ctx, r.rebind(`
		UPDATE linked_accounts SET balance_cents = balance_cents - ?
		WHERE id = ? AND user_id = ?`),
		core.ToCents(e.Amount), accountID, e.UserID)
	if err != nil {
		return core.Expense{}, core.NewPersistenceError("debit account", err)
	}
	if err := expectAffected(res); err != nil {
		return core.Expense{}, fmt.Errorf("debit account %d: %w", accountID, err)
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, core.NewPersistenceError("commit expense transaction", err)
	}
	r.logger.InfoContext(ctx, "Expense saved with account debit",
		"expense_id", created.ID, "account_id", accountID, "amount", created.Amount.StringFixed(2))
	return created, nil
}

func (r *Repository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, r.rebind(expenseSelect+` WHERE e.id = ? AND e.user_id = ?`), id, userID))
	if err != nil {
		return core.Expense{}, core.NewPersistenceError("get expense", notFound(err))
	}
	return e, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE expenses SET category_id = ?, amount_cents = ?, description = ?, expense_date = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`),
		e.CategoryID, core.ToCents(e.Amount), e.Description, r.dateArg(e.Date), r.timeArg(r.stamp()), e.ID, e.UserID)
	if err != nil {
		return core.NewPersistenceError("update expense", err)
	}
	return core.NewPersistenceError("update expense", expectAffected(res))
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM expenses WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return core.NewPersistenceError("delete expense", err)
	}
	return core.NewPersistenceError("delete expense", expectAffected(res))
}

func (r *Repository) expenseWhere(userID int64, f ports.ExpenseFilter) (string, []any) {
	clauses := []string{"e.user_id = ?"}
	args := []any{userID}
	if !f.From.IsZero() {
		clauses = append(clauses, "e.expense_date >= ?")
		args = append(args, r.dateArg(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "e.expense_date <= ?")
		args = append(args, r.dateArg(f.To))
	}
	if f.CategoryID != 0 {
		clauses = append(clauses, "e.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		clauses = append(clauses, "LOWER(e.description) LIKE ?")
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *Repository) ListExpenses(ctx context.Context, userID int64, f ports.ExpenseFilter) ([]core.Expense, error) {
	where, args := r.expenseWhere(userID, f)
	query := expenseSelect + where + ` ORDER BY e.expense_date DESC, e.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, core.NewPersistenceError("list expenses", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, core.NewPersistenceError("scan expense", err)
		}
		out = append(out, e)
	}
	return out, core.NewPersistenceError("list expenses", rows.Err())
}

func (r *Repository) CountExpenses(ctx context.Context, userID int64, f ports.ExpenseFilter) (int, error) {
	where, args := r.expenseWhere(userID, f)
	var n int
	if err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM expenses e`+where), args...).Scan(&n); err != nil {
		return 0, core.NewPersistenceError("count expenses", err)
	}
	return n, nil
}

func (r *Repository) SumExpenses(ctx context.Context, userID int64, from, to core.Date) (decimal.Decimal, error) {
	where, args := r.expenseWhere(userID, ports.ExpenseFilter{From: from, To: to})
	var cents int64
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COALESCE(SUM(e.amount_cents), 0) FROM expenses e`+where), args...).Scan(&cents)
	if err != nil {
		return decimal.Zero, core.NewPersistenceError("sum expenses", err)
	}
	return core.FromCents(cents), nil
}

func (r *Repository) ExpenseExistsByReference(ctx context.Context, userID int64, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT EXISTS (SELECT 1 FROM expenses WHERE user_id = ? AND reference_number = ?)`),
		userID, reference).Scan(&exists)
	if err != nil {
		return false, core.NewPersistenceError("check expense reference", err)
	}
	return exists, nil
}
