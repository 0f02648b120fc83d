package storage

import (
	"context"
	"database/sql"
	"time"

	"finsight/internal/core"
)

const accountSelect = `
	SELECT a.id, a.user_id, a.bank_id, b.name, a.account_number, a.account_name, a.balance_cents,
	       a.external_handle, a.status, a.last_synced, a.created_at
	FROM linked_accounts a
	JOIN banks b ON b.id = a.bank_id`

func scanAccount(row rowScanner) (core.LinkedAccount, error) {
	var (
		a        core.LinkedAccount
		cents    int64
		status   string
		lastSync sql.NullTime
	)
	err := row.Scan(&a.ID, &a.UserID, &a.BankID, &a.BankName, &a.AccountNumber, &a.AccountName, &cents,
		&a.ExternalHandle, &status, &lastSync, &a.CreatedAt)
	if err != nil {
		return core.LinkedAccount{}, err
	}
	a.Balance = core.FromCents(cents)
	a.Status = core.AccountStatus(status)
	if lastSync.Valid {
		t := lastSync.Time
		a.LastSynced = &t
	}
	return a, nil
}

func (r *Repository) ListBanks(ctx context.Context) ([]core.Bank, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, code FROM banks ORDER BY name`)
	if err != nil {
		return nil, core.NewPersistenceError("list banks", err)
	}
	defer rows.Close()

	var out []core.Bank
	for rows.Next() {
		var b core.Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.Code); err != nil {
			return nil, core.NewPersistenceError("scan bank", err)
		}
		out = append(out, b)
	}
	return out, core.NewPersistenceError("list banks", rows.Err())
}

func (r *Repository) GetBank(ctx context.Context, id int64) (core.Bank, error) {
	var b core.Bank
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id, name, code FROM banks WHERE id = ?`), id).Scan(&b.ID, &b.Name, &b.Code)
	if err != nil {
		return core.Bank{}, core.NewPersistenceError("get bank", notFound(err))
	}
	return b, nil
}

func (r *Repository) ListAccounts(ctx context.Context, userID int64, activeOnly bool) ([]core.LinkedAccount, error) {
	query := accountSelect + ` WHERE a.user_id = ?`
	args := []any{userID}
	if activeOnly {
		query += ` AND a.status = ?`
		args = append(args, string(core.AccountActive))
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(query+` ORDER BY a.id`), args...)
	if err != nil {
		return nil, core.NewPersistenceError("list accounts", err)
	}
	defer rows.Close()

	var out []core.LinkedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, core.NewPersistenceError("scan account", err)
		}
		out = append(out, a)
	}
	return out, core.NewPersistenceError("list accounts", rows.Err())
}

func (r *Repository) GetAccount(ctx context.Context, userID, id int64) (core.LinkedAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, r.rebind(accountSelect+` WHERE a.id = ? AND a.user_id = ?`), id, userID))
	if err != nil {
		return core.LinkedAccount{}, core.NewPersistenceError("get account", notFound(err))
	}
	return a, nil
}

func (r *Repository) FindAccount(ctx context.Context, userID, bankID int64, number string) (core.LinkedAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, r.rebind(accountSelect+`
		WHERE a.user_id = ? AND a.bank_id = ? AND a.account_number = ?`), userID, bankID, number))
	if err != nil {
		return core.LinkedAccount{}, core.NewPersistenceError("find account", notFound(err))
	}
	return a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, a core.LinkedAccount) (core.LinkedAccount, error) {
	a.CreatedAt = r.stamp()
	if a.Status == "" {
		a.Status = core.AccountActive
	}
	err := r.db.QueryRowContext(ctx, r.rebind(`
		INSERT INTO linked_accounts (user_id, bank_id, account_number, account_name, balance_cents, external_handle, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		a.UserID, a.BankID, a.AccountNumber, a.AccountName, core.ToCents(a.Balance), a.ExternalHandle,
		string(a.Status), r.timeArg(a.CreatedAt),
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.LinkedAccount{}, core.ErrAccountAlreadyLinked
		}
		return core.LinkedAccount{}, core.NewPersistenceError("create account", err)
	}
	r.logger.InfoContext(ctx, "Account linked", "account_id", a.ID, "user_id", a.UserID)
	return r.GetAccount(ctx, a.UserID, a.ID)
}

func (r *Repository) ReactivateAccount(ctx context.Context, id int64, name, handle string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`
		UPDATE linked_accounts SET status = ?, account_name = ?, external_handle = ? WHERE id = ?`),
		string(core.AccountActive), name, handle, id)
	if err != nil {
		return core.NewPersistenceError("reactivate account", err)
	}
	return core.NewPersistenceError("reactivate account", expectAffected(res))
}

func (r *Repository) SetAccountStatus(ctx context.Context, userID, id int64, status core.AccountStatus) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE linked_accounts SET status = ? WHERE id = ? AND user_id = ?`),
		string(status), id, userID)
	if err != nil {
		return core.NewPersistenceError("set account status", err)
	}
	return core.NewPersistenceError("set account status", expectAffected(res))
}

func (r *Repository) TouchAccountSynced(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE linked_accounts SET last_synced = ? WHERE id = ?`), r.timeArg(at), id)
	if err != nil {
		return core.NewPersistenceError("update last synced", err)
	}
	return core.NewPersistenceError("update last synced", expectAffected(res))
}
