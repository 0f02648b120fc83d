package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

const userColumns = `id, name, email, password_hash, monthly_budget_cents, alert_threshold, weekly_report, monthly_report, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (core.User, error) {
	var (
		u           core.User
		budgetCents int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &budgetCents,
		&u.AlertThreshold, &u.WeeklyReport, &u.MonthlyReport, &u.CreatedAt)
	if err != nil {
		return core.User{}, err
	}
	u.MonthlyBudget = core.FromCents(budgetCents)
	return u, nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.CreatedAt = r.stamp()
	err := r.db.QueryRowContext(ctx, r.rebind(`
		INSERT INTO users (name, email, password_hash, monthly_budget_cents, alert_threshold, weekly_report, monthly_report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		u.Name, u.Email, u.PasswordHash, core.ToCents(u.MonthlyBudget), u.AlertThreshold,
		u.WeeklyReport, u.MonthlyReport, r.timeArg(u.CreatedAt),
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrEmailTaken
		}
		return core.User{}, core.NewPersistenceError("create user", err)
	}
	r.logger.InfoContext(ctx, "User created", "user_id", u.ID)
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
	if err != nil {
		return core.User{}, core.NewPersistenceError("get user", notFound(err))
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		r.rebind(`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(?)`), email))
	if err != nil {
		return core.User{}, core.NewPersistenceError("get user by email", notFound(err))
	}
	return u, nil
}

// ListUsers returns every user ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, core.NewPersistenceError("list users", err)
	}
	defer rows.Close()
	var out []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, core.NewPersistenceError("list users", err)
		}
		out = append(out, u)
	}
	return out, core.NewPersistenceError("list users", rows.Err())
}

func (r *Repository) UpdateProfile(ctx context.Context, id int64, name, email string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE users SET name = ?, email = ? WHERE id = ?`), name, email, id)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrEmailTaken
		}
		return core.NewPersistenceError("update profile", err)
	}
	return core.NewPersistenceError("update profile", expectAffected(res))
}

func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE users SET password_hash = ? WHERE id = ?`), hash, id)
	if err != nil {
		return core.NewPersistenceError("update password", err)
	}
	return core.NewPersistenceError("update password", expectAffected(res))
}

func (r *Repository) UpdateBudgetSettings(ctx context.Context, id int64, budget decimal.Decimal, threshold int, weekly, monthly bool) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE users SET monthly_budget_cents = ?, alert_threshold = ?, weekly_report = ?, monthly_report = ?
		WHERE id = ?`),
		core.ToCents(budget), threshold, weekly, monthly, id)
	if err != nil {
		return core.NewPersistenceError("update budget settings", err)
	}
	if err := expectAffected(res); err != nil {
		return fmt.Errorf("update budget settings: %w", err)
	}
	r.logger.InfoContext(ctx, "Budget settings updated", "user_id", id, "budget", budget.StringFixed(2), "threshold", threshold)
	return nil
}
