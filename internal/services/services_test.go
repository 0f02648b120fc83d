package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/cache"
	"finsight/internal/core"
	"finsight/internal/storage/memory"
)

var testNow = time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store      *memory.Store
	notifier   *NotificationService
	dashboard  *DashboardService
	ledger     *LedgerService
	categories *CategoryService
	reconciler *SyncReconciler
	accounts   *AccountService
	user       core.User
}

func newTestEnv(t *testing.T, budget string, source *FixedSource) *testEnv {
	t.Helper()

	store := memory.New()
	store.SetClock(func() time.Time { return testNow })

	user, err := store.CreateUser(context.Background(), core.User{
		Name:           "Ada",
		Email:          "ada@example.com",
		PasswordHash:   "x",
		MonthlyBudget:  decimal.RequireFromString(budget),
		AlertThreshold: core.DefaultAlertThreshold,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if source == nil {
		source = &FixedSource{}
	}

	env := &testEnv{store: store, user: user}
	env.notifier = NewNotificationService(store, nil, nil)
	env.dashboard = NewDashboardService(store, cache.NewLRUCache[[]core.CategoryTotal](16, time.Minute), nil)
	env.dashboard.now = func() time.Time { return testNow }
	env.ledger = NewLedgerService(store, env.notifier, env.dashboard, nil)
	env.ledger.now = func() time.Time { return testNow }
	env.categories = NewCategoryService(store, env.dashboard, nil)
	env.categories.now = func() time.Time { return testNow }
	env.reconciler = NewSyncReconciler(store, source, env.notifier, env.dashboard, nil)
	env.reconciler.now = func() time.Time { return testNow }
	env.accounts = NewAccountService(store, env.reconciler, nil)
	return env
}

func (e *testEnv) categoryID(t *testing.T, name string) int64 {
	t.Helper()
	c, err := e.store.FindCategoryByName(context.Background(), e.user.ID, name)
	if err != nil {
		t.Fatalf("FindCategoryByName(%q) error = %v", name, err)
	}
	return c.ID
}

func (e *testEnv) linkAccount(t *testing.T, number, balance string) core.LinkedAccount {
	t.Helper()
	banks, err := e.store.ListBanks(context.Background())
	if err != nil || len(banks) == 0 {
		t.Fatalf("ListBanks() = %v, %v", banks, err)
	}
	acct, _, err := e.accounts.Link(context.Background(), e.user.ID, LinkAccountInput{
		BankID:         banks[0].ID,
		AccountNumber:  number,
		AccountName:    "Checking",
		OpeningBalance: decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	return acct
}

func (e *testEnv) notificationsOfType(typ core.NotificationType) int {
	n := 0
	for _, notif := range e.store.Notifications() {
		if notif.Type == typ {
			n++
		}
	}
	return n
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
