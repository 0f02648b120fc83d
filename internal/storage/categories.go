package storage

import (
	"context"
	"database/sql"
	"fmt"

	"finsight/internal/core"
)

const categoryColumns = `id, name, description, color, user_id, created_at`

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c     core.Category
		owner sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &owner, &c.CreatedAt); err != nil {
		return core.Category{}, err
	}
	c.OwnerID = ptrInt(owner)
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT `+categoryColumns+` FROM categories
		WHERE user_id IS NULL OR user_id = ?
		ORDER BY LOWER(name), id`), userID)
	if err != nil {
		return nil, core.NewPersistenceError("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, core.NewPersistenceError("scan category", err)
		}
		out = append(out, c)
	}
	return out, core.NewPersistenceError("list categories", rows.Err())
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, r.rebind(`SELECT `+categoryColumns+` FROM categories WHERE id = ?`), id))
	if err != nil {
		return core.Category{}, core.NewPersistenceError("get category", notFound(err))
	}
	return c, nil
}

func (r *Repository) FindCategoryByName(ctx context.Context, userID int64, name string) (core.Category, error) {
	// User-owned rows sort before system rows of the same name.
	c, err := scanCategory(r.db.QueryRowContext(ctx, r.rebind(`
		SELECT `+categoryColumns+` FROM categories
		WHERE (user_id IS NULL OR user_id = ?) AND LOWER(name) = LOWER(?)
		ORDER BY CASE WHEN user_id IS NULL THEN 1 ELSE 0 END
		LIMIT 1`), userID, name))
	if err != nil {
		return core.Category{}, core.NewPersistenceError("find category", notFound(err))
	}
	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.CreatedAt = r.stamp()
	err := r.db.QueryRowContext(ctx, r.rebind(`
		INSERT INTO categories (name, description, color, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		c.Name, c.Description, c.Color, nullInt(c.OwnerID), r.timeArg(c.CreatedAt),
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, core.ErrCategoryExists
		}
		return core.Category{}, core.NewPersistenceError("create category", err)
	}
	r.logger.InfoContext(ctx, "Category created", "category_id", c.ID, "name", c.Name)
	return c, nil
}

func (r *Repository) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE categories SET name = ?, description = ?, color = ? WHERE id = ?`),
		c.Name, c.Description, c.Color, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrCategoryExists
		}
		return core.NewPersistenceError("update category", err)
	}
	return core.NewPersistenceError("update category", expectAffected(res))
}

// DeleteCategory removes the row only when no expense references it.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`
		DELETE FROM categories
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM expenses WHERE category_id = ?)`), id, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrCategoryInUse
		}
		return core.NewPersistenceError("delete category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.NewPersistenceError("delete category", err)
	}
	if n == 1 {
		r.logger.InfoContext(ctx, "Category deleted", "category_id", id)
		return nil
	}
	if _, err := r.GetCategory(ctx, id); err != nil {
		return err
	}
	return core.ErrCategoryInUse
}

func (r *Repository) CountCategoryExpenses(ctx context.Context, userID, categoryID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM expenses WHERE user_id = ? AND category_id = ?`),
		userID, categoryID).Scan(&n)
	if err != nil {
		return 0, core.NewPersistenceError("count category expenses", err)
	}
	return n, nil
}

func (r *Repository) ListCategoryBudgets(ctx context.Context, userID int64) ([]core.CategoryBudget, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT user_id, category_id, amount_cents FROM category_budgets
		WHERE user_id = ? ORDER BY category_id`), userID)
	if err != nil {
		return nil, core.NewPersistenceError("list category budgets", err)
	}
	defer rows.Close()

	var out []core.CategoryBudget
	for rows.Next() {
		var (
			b     core.CategoryBudget
			cents int64
		)
		if err := rows.Scan(&b.UserID, &b.CategoryID, &cents); err != nil {
			return nil, core.NewPersistenceError("scan category budget", err)
		}
		b.Amount = core.FromCents(cents)
		out = append(out, b)
	}
	return out, core.NewPersistenceError("list category budgets", rows.Err())
}

func (r *Repository) UpsertCategoryBudget(ctx context.Context, b core.CategoryBudget) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO category_budgets (user_id, category_id, amount_cents) VALUES (?, ?, ?)
		ON CONFLICT (user_id, category_id) DO UPDATE SET amount_cents = excluded.amount_cents`),
		b.UserID, b.CategoryID, core.ToCents(b.Amount))
	if err != nil {
		return core.NewPersistenceError(fmt.Sprintf("upsert budget for category %d", b.CategoryID), err)
	}
	return nil
}

func (r *Repository) DeleteCategoryBudget(ctx context.Context, userID, categoryID int64) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM category_budgets WHERE user_id = ? AND category_id = ?`),
		userID, categoryID)
	return core.NewPersistenceError("delete category budget", err)
}
