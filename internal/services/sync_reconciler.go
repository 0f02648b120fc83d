package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

// SyncStore is the persistence the reconciler needs.
type SyncStore interface {
	ports.CategoryStore
	ports.ExpenseStore
	ports.AccountStore
}

// fallbackCategory receives feed transactions that carry no category name.
const fallbackCategory = "Uncategorized"

// SyncReconciler merges bank feed transactions into the expense ledger.
//
// Each account is processed on its own: transactions are deduplicated by
// external reference, unknown category names become user categories, and a
// failing transaction is recorded and skipped without undoing earlier imports.
// The account's last_synced stamp is updated whatever the outcome.
type SyncReconciler struct {
	store    SyncStore
	source   ports.TransactionSource
	notifier *NotificationService
	cache    Invalidator
	logger   *log.Logger
	now      func() time.Time
}

func NewSyncReconciler(store SyncStore, source ports.TransactionSource, notifier *NotificationService, cache Invalidator, logger *log.Logger) *SyncReconciler {
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncReconciler{
		store:    store,
		source:   source,
		notifier: notifier,
		cache:    cache,
		logger:   logger.WithComponent(log.ComponentSync),
		now:      time.Now,
	}
}

// SyncAccounts reconciles each account in turn and, when anything was
// imported, leaves the user a success notification with the totals.
func (r *SyncReconciler) SyncAccounts(ctx context.Context, user core.User, accounts []core.LinkedAccount) core.SyncRunReport {
	var run core.SyncRunReport
	for _, account := range accounts {
		if account.UserID != user.ID {
			continue
		}
		run.Add(r.SyncAccount(ctx, account))
	}

	if run.Imported > 0 && r.notifier != nil {
		msg := fmt.Sprintf("Imported %d transaction(s) from %d account(s); %d already present, %d failed.",
			run.Imported, len(run.Accounts), run.Skipped, run.Errored)
		if _, err := r.notifier.Notify(ctx, user, core.NotificationSuccess, "Accounts synced", msg); err != nil {
			r.logger.ErrorContext(ctx, "Failed to create sync notification",
				log.NewFields().WithUser(user.ID).WithError(err).ToSlice()...)
		}
	}
	return run
}

// SyncAccount runs Fetch, Dedup, CategoryResolve and Insert for one account
// and then stamps last_synced.
func (r *SyncReconciler) SyncAccount(ctx context.Context, account core.LinkedAccount) core.SyncReport {
	report := core.SyncReport{AccountID: account.ID, AccountName: account.AccountName}

	txns, err := r.source.FetchTransactions(ctx, account)
	if err != nil {
		report.FetchError = err.Error()
		r.logger.ErrorContext(ctx, "Failed to fetch transactions",
			log.NewFields().WithUser(account.UserID).WithOperation(log.OpSync).WithError(err).
				WithErrorType(log.ErrorTypeNetwork).ToSlice()...)
	}

	resolved := make(map[string]int64)
	for _, tx := range txns {
		res := r.reconcile(ctx, account, tx, resolved)
		if res.Status == core.StatusError {
			r.logger.WarnContext(ctx, "Transaction import failed",
				log.FieldAccountID, account.ID, log.FieldReference, tx.ExternalReference, log.FieldError, res.Error)
		}
		report.Record(res)
	}

	if err := r.store.TouchAccountSynced(ctx, account.ID, r.now()); err != nil {
		r.logger.ErrorContext(ctx, "Failed to update last synced",
			log.NewFields().WithUser(account.UserID).WithError(err).WithErrorType(log.ErrorTypeDatabase).ToSlice()...)
	}
	if report.Imported > 0 && r.cache != nil {
		r.cache.Invalidate(account.UserID)
	}

	r.logger.InfoContext(ctx, "Account synced",
		append(log.NewFields().WithUser(account.UserID).WithSyncCounts(report.Imported, report.Skipped, report.Errored).ToSlice(),
			log.FieldAccountID, account.ID)...)
	return report
}

func (r *SyncReconciler) reconcile(ctx context.Context, account core.LinkedAccount, tx core.ExternalTransaction, resolved map[string]int64) core.TransactionResult {
	res := core.TransactionResult{ExternalTransaction: tx}
	fail := func(err error) core.TransactionResult {
		res.Status = core.StatusError
		res.Error = err.Error()
		return res
	}

	ref := strings.TrimSpace(tx.ExternalReference)
	if ref == "" {
		return fail(errors.New("transaction has no external reference"))
	}

	exists, err := r.store.ExpenseExistsByReference(ctx, account.UserID, ref)
	if err != nil {
		return fail(err)
	}
	if exists {
		res.Status = core.StatusSkipped
		return res
	}

	categoryID, err := r.resolveCategory(ctx, account.UserID, tx.CategoryName, resolved)
	if err != nil {
		return fail(fmt.Errorf("resolve category: %w", err))
	}

	accountID := account.ID
	e := core.Expense{
		UserID:          account.UserID,
		CategoryID:      categoryID,
		Amount:          tx.Amount,
		Description:     syncDescription(tx.Description),
		Date:            tx.Date,
		ReferenceNumber: ref,
		Source:          core.SourceAutoSync,
		AccountID:       &accountID,
	}
	if err := e.Validate(); err != nil {
		return fail(err)
	}

	created, err := r.store.CreateExpense(ctx, e)
	switch {
	case errors.Is(err, core.ErrDuplicateTransaction):
		res.Status = core.StatusSkipped
		return res
	case err != nil:
		return fail(err)
	}
	res.Status = core.StatusImported
	res.ExpenseID = created.ID
	return res
}

// resolveCategory finds or creates the category named by the feed. Results
// are memoised in resolved so one batch never creates the same name twice.
func (r *SyncReconciler) resolveCategory(ctx context.Context, userID int64, name string, resolved map[string]int64) (int64, error) {
	name = syncCategoryName(name)
	key := strings.ToLower(name)
	if id, ok := resolved[key]; ok {
		return id, nil
	}

	c, err := r.store.FindCategoryByName(ctx, userID, name)
	if errors.Is(err, core.ErrNotFound) {
		owner := userID
		c = core.Category{
			Name:        name,
			Description: "Created from account sync",
			Color:       core.CategoryColor(name),
			OwnerID:     &owner,
		}
		if err = c.Validate(); err == nil {
			c, err = r.store.CreateCategory(ctx, c)
		}
		if errors.Is(err, core.ErrCategoryExists) {
			c, err = r.store.FindCategoryByName(ctx, userID, name)
		}
		if err == nil {
			r.logger.InfoContext(ctx, "Category created from sync", log.FieldUserID, userID, log.FieldCategoryID, c.ID)
		}
	}
	if err != nil {
		return 0, err
	}
	resolved[key] = c.ID
	return c.ID, nil
}

// syncCategoryName trims a feed category to a name a user can later edit.
func syncCategoryName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallbackCategory
	}
	if utf8.RuneCountInString(s) > core.MaxCategoryNameLength {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:core.MaxCategoryNameLength]))
	}
	return s
}

func syncDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Bank transaction"
	}
	if utf8.RuneCountInString(s) > core.MaxDescriptionLength {
		runes := []rune(s)
		s = string(runes[:core.MaxDescriptionLength])
	}
	return s
}
