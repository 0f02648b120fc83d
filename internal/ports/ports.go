// Package ports declares the storage and integration boundaries the services
// depend on. internal/storage provides the SQL implementation and
// internal/storage/memory an in-memory one for tests.
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
)

type UserStore interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	UpdateProfile(ctx context.Context, id int64, name, email string) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateBudgetSettings(ctx context.Context, id int64, budget decimal.Decimal, threshold int, weekly, monthly bool) error
}

type CategoryStore interface {
	// ListCategories returns system categories plus those owned by userID.
	ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	// FindCategoryByName matches case-insensitively among categories visible to userID.
	FindCategoryByName(ctx context.Context, userID int64, name string) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, c core.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	CountCategoryExpenses(ctx context.Context, userID, categoryID int64) (int, error)

	ListCategoryBudgets(ctx context.Context, userID int64) ([]core.CategoryBudget, error)
	UpsertCategoryBudget(ctx context.Context, b core.CategoryBudget) error
	DeleteCategoryBudget(ctx context.Context, userID, categoryID int64) error
}

// ExpenseFilter narrows ListExpenses. Zero values mean no constraint.
type ExpenseFilter struct {
	From       core.Date
	To         core.Date
	CategoryID int64
	Search     string
	Limit      int
	Offset     int
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	// CreateExpenseWithDebit inserts e and decrements the linked account's
	// cached balance by e.Amount atomically.
	CreateExpenseWithDebit(ctx context.Context, e core.Expense, accountID int64) (core.Expense, error)
	GetExpense(ctx context.Context, userID, id int64) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, userID, id int64) error
	ListExpenses(ctx context.Context, userID int64, f ExpenseFilter) ([]core.Expense, error)
	CountExpenses(ctx context.Context, userID int64, f ExpenseFilter) (int, error)
	SumExpenses(ctx context.Context, userID int64, from, to core.Date) (decimal.Decimal, error)
	ExpenseExistsByReference(ctx context.Context, userID int64, reference string) (bool, error)
}

type AccountStore interface {
	ListBanks(ctx context.Context) ([]core.Bank, error)
	GetBank(ctx context.Context, id int64) (core.Bank, error)
	ListAccounts(ctx context.Context, userID int64, activeOnly bool) ([]core.LinkedAccount, error)
	GetAccount(ctx context.Context, userID, id int64) (core.LinkedAccount, error)
	// FindAccount looks up by the (user, bank, number) uniqueness key, any status.
	FindAccount(ctx context.Context, userID, bankID int64, number string) (core.LinkedAccount, error)
	CreateAccount(ctx context.Context, a core.LinkedAccount) (core.LinkedAccount, error)
	ReactivateAccount(ctx context.Context, id int64, name, handle string) error
	SetAccountStatus(ctx context.Context, userID, id int64, status core.AccountStatus) error
	TouchAccountSynced(ctx context.Context, id int64, at time.Time) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n core.Notification) (core.Notification, error)
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]core.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	// HasNotificationSince reports whether a notification of type t exists for userID at or after since.
	HasNotificationSince(ctx context.Context, userID int64, t core.NotificationType, since time.Time) (bool, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) error
	DeleteNotification(ctx context.Context, userID, id int64) error
}

// Repository is everything the application persists.
type Repository interface {
	UserStore
	CategoryStore
	ExpenseStore
	AccountStore
	NotificationStore
	Ping(ctx context.Context) error
	Close() error
}

// TransactionSource is a bank feed the reconciler pulls from.
type TransactionSource interface {
	FetchTransactions(ctx context.Context, account core.LinkedAccount) ([]core.ExternalTransaction, error)
}

// NotificationPublisher fans notifications out to out-of-process delivery.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n core.Notification, recipient core.User) error
}

// ReportExporter writes a report somewhere outside the application.
type ReportExporter interface {
	ExportReport(ctx context.Context, user core.User, rep core.Report) (string, error)
}
