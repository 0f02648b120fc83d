package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

// LedgerStore is the persistence the ledger needs.
type LedgerStore interface {
	ports.UserStore
	ports.CategoryStore
	ports.ExpenseStore
	ports.AccountStore
}

// Invalidator drops cached read models for a user after a write.
type Invalidator interface {
	Invalidate(userID int64)
}

// ExpenseInput is a validated expense form.
type ExpenseInput struct {
	CategoryID  int64
	Amount      decimal.Decimal
	Description string
	Date        core.Date
	// AccountID, when non-zero, debits that linked account in the same transaction.
	AccountID int64
}

type AddExpenseResult struct {
	Expense core.Expense
	Budget  core.BudgetStatus
	Alerted bool
}

// BudgetOverview is the ledger's view of the current month.
type BudgetOverview struct {
	Month       core.DateRange
	Status      core.BudgetStatus
	Threshold   int
	ShouldAlert bool
	Level       string
}

// ExpenseQuery selects a page of expenses.
type ExpenseQuery struct {
	Filter  ports.ExpenseFilter
	Page    int
	PerPage int
}

type ExpensePage struct {
	Items   []core.Expense
	Total   int
	Page    int
	PerPage int
	Pages   int
}

const defaultPerPage = 20

type LedgerService struct {
	store    LedgerStore
	notifier *NotificationService
	cache    Invalidator
	logger   *log.Logger
	now      func() time.Time
}

func NewLedgerService(store LedgerStore, notifier *NotificationService, cache Invalidator, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerService{
		store:    store,
		notifier: notifier,
		cache:    cache,
		logger:   logger.WithComponent(log.ComponentLedger),
		now:      time.Now,
	}
}

// AddExpense records a manual expense. It is the only write path that runs
// the monthly budget gate.
func (s *LedgerService) AddExpense(ctx context.Context, userID int64, in ExpenseInput) (AddExpenseResult, error) {
	e := core.Expense{
		UserID:      userID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
		Source:      core.SourceManual,
	}
	if err := e.Validate(); err != nil {
		return AddExpenseResult{}, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return AddExpenseResult{}, fmt.Errorf("load user: %w", err)
	}
	category, err := s.visibleCategory(ctx, userID, in.CategoryID)
	if err != nil {
		return AddExpenseResult{}, err
	}

	month := core.MonthRange(s.now())
	spent, err := s.store.SumExpenses(ctx, userID, month.From, month.To)
	if err != nil {
		return AddExpenseResult{}, fmt.Errorf("sum month expenses: %w", err)
	}
	before := core.EvaluateBudget(user.MonthlyBudget, []decimal.Decimal{spent})

	if err := core.CanSubmitExpense(user.MonthlyBudget, spent, in.Amount); err != nil {
		s.logger.WarnContext(ctx, "Expense rejected by budget gate",
			log.NewFields().WithUser(userID).WithError(err).WithErrorType(log.ErrorTypeValidation).ToSlice()...)
		return AddExpenseResult{}, err
	}

	var created core.Expense
	if in.AccountID != 0 {
		account, err := s.store.GetAccount(ctx, userID, in.AccountID)
		if err != nil {
			return AddExpenseResult{}, fmt.Errorf("load account: %w", err)
		}
		if !account.Active() {
			return AddExpenseResult{}, fmt.Errorf("account %d is unlinked: %w", account.ID, core.ErrNotFound)
		}
		created, err = s.store.CreateExpenseWithDebit(ctx, e, account.ID)
		if err != nil {
			return AddExpenseResult{}, fmt.Errorf("add expense: %w", err)
		}
	} else {
		created, err = s.store.CreateExpense(ctx, e)
		if err != nil {
			return AddExpenseResult{}, fmt.Errorf("add expense: %w", err)
		}
	}
	created.CategoryName, created.CategoryColor = category.Name, category.Color
	s.invalidate(userID)

	s.logger.InfoContext(ctx, "Expense added",
		log.NewFields().WithUser(userID).WithExpense(created.ID, created.CategoryID, created.Amount.StringFixed(2)).ToSlice()...)

	after := before
	if month.Contains(created.Date) {
		after = before.After(created.Amount)
	}

	res := AddExpenseResult{Expense: created, Budget: after}
	if s.notifier != nil {
		s.notifyQuietly(ctx, user, core.NotificationExpenseAlert, "Expense added",
			fmt.Sprintf("%s for %q was recorded in %s.", core.FormatMoney(created.Amount), created.Description, category.Name))
		res.Alerted = s.maybeAlert(ctx, user, month, before, after)
	}
	return res, nil
}

// maybeAlert emits a budget_alert when the write crossed the user's threshold,
// at most once per calendar month.
func (s *LedgerService) maybeAlert(ctx context.Context, user core.User, month core.DateRange, before, after core.BudgetStatus) bool {
	if !core.ShouldAlert(user.AlertThreshold, before, after) {
		return false
	}
	already, err := s.notifier.HasSince(ctx, user.ID, core.NotificationBudgetAlert, month.From.Time)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to check previous budget alerts",
			log.NewFields().WithUser(user.ID).WithError(err).ToSlice()...)
	}
	if already {
		return false
	}
	msg := fmt.Sprintf("You have used %s%% of your %s monthly budget. Remaining: %s.",
		after.DisplayPercentage(), core.FormatMoney(after.Budget), core.FormatMoney(after.Remaining))
	return s.notifyQuietly(ctx, user, core.NotificationBudgetAlert, "Budget alert", msg)
}

func (s *LedgerService) notifyQuietly(ctx context.Context, user core.User, typ core.NotificationType, title, msg string) bool {
	if _, err := s.notifier.Notify(ctx, user, typ, title, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to create notification",
			log.NewFields().WithUser(user.ID).WithError(err).ToSlice()...)
		return false
	}
	return true
}

// UpdateExpense edits an existing expense. The budget gate is not applied here.
func (s *LedgerService) UpdateExpense(ctx context.Context, userID, expenseID int64, in ExpenseInput) error {
	existing, err := s.store.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return err
	}
	existing.CategoryID = in.CategoryID
	existing.Amount = in.Amount
	existing.Description = strings.TrimSpace(in.Description)
	existing.Date = in.Date
	if err := existing.Validate(); err != nil {
		return err
	}
	if _, err := s.visibleCategory(ctx, userID, in.CategoryID); err != nil {
		return err
	}
	if err := s.store.UpdateExpense(ctx, existing); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	s.invalidate(userID)
	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().WithUser(userID).WithExpense(existing.ID, existing.CategoryID, existing.Amount.StringFixed(2)).ToSlice()...)
	return nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, userID, expenseID int64) error {
	if err := s.store.DeleteExpense(ctx, userID, expenseID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.invalidate(userID)
	s.logger.InfoContext(ctx, "Expense deleted", log.FieldUserID, userID, log.FieldExpenseID, expenseID)
	return nil
}

func (s *LedgerService) GetExpense(ctx context.Context, userID, expenseID int64) (core.Expense, error) {
	return s.store.GetExpense(ctx, userID, expenseID)
}

func (s *LedgerService) ListExpenses(ctx context.Context, userID int64, q ExpenseQuery) (ExpensePage, error) {
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}
	if q.Page < 1 {
		q.Page = 1
	}
	total, err := s.store.CountExpenses(ctx, userID, q.Filter)
	if err != nil {
		return ExpensePage{}, err
	}
	f := q.Filter
	f.Limit = q.PerPage
	f.Offset = (q.Page - 1) * q.PerPage
	items, err := s.store.ListExpenses(ctx, userID, f)
	if err != nil {
		return ExpensePage{}, err
	}
	pages := (total + q.PerPage - 1) / q.PerPage
	if pages == 0 {
		pages = 1
	}
	return ExpensePage{Items: items, Total: total, Page: q.Page, PerPage: q.PerPage, Pages: pages}, nil
}

// Evaluate returns the current month's budget figures for the user.
func (s *LedgerService) Evaluate(ctx context.Context, userID int64) (BudgetOverview, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return BudgetOverview{}, err
	}
	return evaluateMonth(ctx, s.store, user, s.now())
}

func evaluateMonth(ctx context.Context, store ports.ExpenseStore, user core.User, now time.Time) (BudgetOverview, error) {
	month := core.MonthRange(now)
	spent, err := store.SumExpenses(ctx, user.ID, month.From, month.To)
	if err != nil {
		return BudgetOverview{}, fmt.Errorf("sum month expenses: %w", err)
	}
	status := core.EvaluateBudget(user.MonthlyBudget, []decimal.Decimal{spent})
	return BudgetOverview{
		Month:       month,
		Status:      status,
		Threshold:   user.AlertThreshold,
		ShouldAlert: status.AtOrAbove(user.AlertThreshold),
		Level:       status.Level(user.AlertThreshold),
	}, nil
}

func (s *LedgerService) visibleCategory(ctx context.Context, userID, categoryID int64) (core.Category, error) {
	c, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, core.ErrNotFound) || (err == nil && !c.VisibleTo(userID)) {
		return core.Category{}, core.ErrCategoryRequired
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("load category: %w", err)
	}
	return c, nil
}

func (s *LedgerService) invalidate(userID int64) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
