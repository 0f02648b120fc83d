package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/ports"
)

var fixedNow = time.Date(2024, 4, 15, 9, 30, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "finsight.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	repo.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustUser(t *testing.T, repo *Repository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), core.User{
		Name:           "Test",
		Email:          email,
		PasswordHash:   "hash",
		MonthlyBudget:  decimal.NewFromInt(1000),
		AlertThreshold: 80,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func mustCategory(t *testing.T, repo *Repository, userID int64, name string) core.Category {
	t.Helper()
	c, err := repo.FindCategoryByName(context.Background(), userID, name)
	if err != nil {
		t.Fatalf("FindCategoryByName(%q) error = %v", name, err)
	}
	return c
}

func TestRebind(t *testing.T) {
	pg := &Repository{driver: DriverPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &Repository{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("file:x.db?mode=memory"); got != "file:x.db?mode=memory" {
		t.Errorf("sqliteDSN kept = %q", got)
	}
	got := sqliteDSN("/tmp/x.db")
	if got != "file:/tmp/x.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" {
		t.Errorf("sqliteDSN = %q", got)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x", nil); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRepository_Users(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := mustUser(t, repo, "a@example.com")

	if _, err := repo.CreateUser(ctx, core.User{Name: "B", Email: "A@example.com", PasswordHash: "h"}); !errors.Is(err, core.ErrEmailTaken) {
		t.Errorf("duplicate email error = %v, want ErrEmailTaken", err)
	}

	got, err := repo.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || !got.MonthlyBudget.Equal(decimal.NewFromInt(1000)) || !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("user = %+v", got)
	}

	if err := repo.UpdateBudgetSettings(ctx, u.ID, decimal.RequireFromString("1234.56"), 90, true, false); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.GetUser(ctx, u.ID)
	if !got.MonthlyBudget.Equal(decimal.RequireFromString("1234.56")) || got.AlertThreshold != 90 || !got.WeeklyReport || got.MonthlyReport {
		t.Errorf("budget settings = %+v", got)
	}

	if _, err := repo.GetUser(ctx, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetUser(999) error = %v", err)
	}
}

func TestRepository_Categories(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := mustUser(t, repo, "cat@example.com")

	cats, err := repo.ListCategories(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 9 {
		t.Fatalf("seeded categories = %d, want 9", len(cats))
	}

	owner := u.ID
	own, err := repo.CreateCategory(ctx, core.Category{Name: "Other", Color: "#000000", OwnerID: &owner})
	if err != nil {
		t.Fatalf("shadowing a system name should be allowed: %v", err)
	}
	if _, err := repo.CreateCategory(ctx, core.Category{Name: "other", Color: "#000000", OwnerID: &owner}); !errors.Is(err, core.ErrCategoryExists) {
		t.Errorf("duplicate category error = %v", err)
	}
	if got := mustCategory(t, repo, u.ID, "OTHER"); got.ID != own.ID {
		t.Errorf("FindCategoryByName preferred %d, want user row %d", got.ID, own.ID)
	}

	if _, err := repo.CreateExpense(ctx, core.Expense{
		UserID: u.ID, CategoryID: own.ID, Amount: decimal.NewFromInt(5), Description: "x", Date: core.NewDate(2024, 4, 1),
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteCategory(ctx, own.ID); !errors.Is(err, core.ErrCategoryInUse) {
		t.Errorf("DeleteCategory(in use) error = %v", err)
	}
	if err := repo.DeleteCategory(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteCategory(missing) error = %v", err)
	}

	if err := repo.UpsertCategoryBudget(ctx, core.CategoryBudget{UserID: u.ID, CategoryID: own.ID, Amount: decimal.NewFromInt(50)}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertCategoryBudget(ctx, core.CategoryBudget{UserID: u.ID, CategoryID: own.ID, Amount: decimal.NewFromInt(75)}); err != nil {
		t.Fatal(err)
	}
	budgets, err := repo.ListCategoryBudgets(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(budgets) != 1 || !budgets[0].Amount.Equal(decimal.NewFromInt(75)) {
		t.Errorf("budgets = %+v", budgets)
	}
}

func TestRepository_Expenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := mustUser(t, repo, "exp@example.com")
	food := mustCategory(t, repo, u.ID, "Food & Dining")
	fun := mustCategory(t, repo, u.ID, "Entertainment")

	add := func(cat int64, amount, desc string, d core.Date, ref string) core.Expense {
		t.Helper()
		e, err := repo.CreateExpense(ctx, core.Expense{
			UserID: u.ID, CategoryID: cat, Amount: decimal.RequireFromString(amount),
			Description: desc, Date: d, ReferenceNumber: ref,
		})
		if err != nil {
			t.Fatalf("CreateExpense(%s) error = %v", desc, err)
		}
		return e
	}
	add(food.ID, "12.34", "Lunch", core.NewDate(2024, 4, 1), "")
	add(food.ID, "20.00", "Dinner", core.NewDate(2024, 4, 20), "TXN-1")
	add(fun.ID, "7.66", "Cinema", core.NewDate(2024, 3, 31), "")

	if _, err := repo.CreateExpense(ctx, core.Expense{
		UserID: u.ID, CategoryID: food.ID, Amount: decimal.NewFromInt(1), Description: "dup", Date: core.NewDate(2024, 4, 2), ReferenceNumber: "TXN-1",
	}); !errors.Is(err, core.ErrDuplicateTransaction) {
		t.Errorf("duplicate reference error = %v", err)
	}
	exists, err := repo.ExpenseExistsByReference(ctx, u.ID, "TXN-1")
	if err != nil || !exists {
		t.Errorf("ExpenseExistsByReference = %v, %v", exists, err)
	}

	april := core.MonthRange(fixedNow)
	sum, err := repo.SumExpenses(ctx, u.ID, april.From, april.To)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(decimal.RequireFromString("32.34")) {
		t.Errorf("april sum = %s, want 32.34", sum)
	}

	tests := []struct {
		name   string
		filter ports.ExpenseFilter
		want   int
	}{
		{"all", ports.ExpenseFilter{}, 3},
		{"april", ports.ExpenseFilter{From: april.From, To: april.To}, 2},
		{"category", ports.ExpenseFilter{CategoryID: fun.ID}, 1},
		{"search", ports.ExpenseFilter{Search: "din"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := repo.CountExpenses(ctx, u.ID, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("CountExpenses() = %d, want %d", n, tt.want)
			}
		})
	}

	list, err := repo.ListExpenses(ctx, u.ID, ports.ExpenseFilter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Description != "Dinner" || list[0].CategoryName != "Food & Dining" {
		t.Errorf("list = %+v", list)
	}
	if !list[0].Date.Equal(core.NewDate(2024, 4, 20).Time) {
		t.Errorf("date round trip = %s", list[0].Date)
	}

	other := mustUser(t, repo, "other@example.com")
	if _, err := repo.GetExpense(ctx, other.ID, list[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign GetExpense() error = %v", err)
	}
	if err := repo.DeleteExpense(ctx, other.ID, list[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign DeleteExpense() error = %v", err)
	}
}

func TestRepository_CreateExpenseWithDebit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := mustUser(t, repo, "debit@example.com")
	cat := mustCategory(t, repo, u.ID, "Shopping")
	banks, err := repo.ListBanks(ctx)
	if err != nil || len(banks) == 0 {
		t.Fatalf("ListBanks() = %v, %v", banks, err)
	}

	acct, err := repo.CreateAccount(ctx, core.LinkedAccount{
		UserID: u.ID, BankID: banks[0].ID, AccountNumber: "12345678", AccountName: "Checking",
		Balance: decimal.NewFromInt(500), Status: core.AccountActive,
	})
	if err != nil {
		t.Fatal(err)
	}

	e := core.Expense{UserID: u.ID, CategoryID: cat.ID, Amount: decimal.RequireFromString("99.99"), Description: "Shoes", Date: core.NewDate(2024, 4, 3)}
	created, err := repo.CreateExpenseWithDebit(ctx, e, acct.ID)
	if err != nil {
		t.Fatalf("CreateExpenseWithDebit() error = %v", err)
	}
	if created.AccountID == nil || *created.AccountID != acct.ID {
		t.Errorf("account id = %v", created.AccountID)
	}
	got, _ := repo.GetAccount(ctx, u.ID, acct.ID)
	if !got.Balance.Equal(decimal.RequireFromString("400.01")) {
		t.Errorf("balance = %s, want 400.01", got.Balance)
	}

	// An account the user does not own: the debit touches no row and the insert rolls back.
	other := mustUser(t, repo, "thief@example.com")
	e.UserID = other.ID
	if _, err := repo.CreateExpenseWithDebit(ctx, e, acct.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign debit error = %v, want ErrNotFound", err)
	}
	n, _ := repo.CountExpenses(ctx, other.ID, ports.ExpenseFilter{})
	if n != 0 {
		t.Errorf("rolled back expense count = %d, want 0", n)
	}
}

func TestRepository_Accounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := mustUser(t, repo, "acct@example.com")
	banks, _ := repo.ListBanks(ctx)

	a := core.LinkedAccount{UserID: u.ID, BankID: banks[0].ID, AccountNumber: "99998888", AccountName: "Savings", Status: core.AccountActive}
	created, err := repo.CreateAccount(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if created.BankName != banks[0].Name {
		t.Errorf("bank name = %q", created.BankName)
	}
	if _, err := repo.CreateAccount(ctx, a); !errors.Is(err, core.ErrAccountAlreadyLinked) {
		t.Errorf("duplicate account error = %v", err)
	}

	if err := repo.SetAccountStatus(ctx, u.ID, created.ID, core.AccountInactive); err != nil {
		t.Fatal(err)
	}
	active, _ := repo.ListAccounts(ctx, u.ID, true)
	if len(active) != 0 {
		t.Errorf("active = %d, want 0", len(active))
	}

	found, err := repo.FindAccount(ctx, u.ID, banks[0].ID, "99998888")
	if err != nil || found.ID != created.ID || found.Active() {
		t.Fatalf("FindAccount() = %+v, %v", found, err)
	}
	if err := repo.ReactivateAccount(ctx, found.ID, "Rainy day", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := repo.TouchAccountSynced(ctx, found.ID, fixedNow); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.GetAccount(ctx, u.ID, found.ID)
	if !got.Active() || got.AccountName != "Rainy day" || got.ExternalHandle != "tok" {
		t.Errorf("reactivated = %+v", got)
	}
	if got.LastSynced == nil || !got.LastSynced.Equal(fixedNow) {
		t.Errorf("last synced = %v", got.LastSynced)
	}
}

func TestRepository_Notifications(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := mustUser(t, repo, "note@example.com")

	n, err := repo.CreateNotification(ctx, core.Notification{UserID: u.ID, Type: core.NotificationBudgetAlert, Title: "t", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateNotification(ctx, core.Notification{UserID: u.ID, Type: core.NotificationSystem, Title: "t", Message: "m"}); err != nil {
		t.Fatal(err)
	}

	month := core.MonthRange(fixedNow)
	has, err := repo.HasNotificationSince(ctx, u.ID, core.NotificationBudgetAlert, month.From.Time)
	if err != nil || !has {
		t.Errorf("HasNotificationSince(month start) = %v, %v", has, err)
	}
	has, _ = repo.HasNotificationSince(ctx, u.ID, core.NotificationBudgetAlert, fixedNow.Add(time.Hour))
	if has {
		t.Error("HasNotificationSince(future) = true")
	}

	if err := repo.MarkRead(ctx, u.ID, n.ID); err != nil {
		t.Fatal(err)
	}
	unread, _ := repo.CountUnread(ctx, u.ID)
	if unread != 1 {
		t.Errorf("unread = %d, want 1", unread)
	}
	if err := repo.MarkAllRead(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	list, _ := repo.ListNotifications(ctx, u.ID, true, 10)
	if len(list) != 0 {
		t.Errorf("unread list = %d, want 0", len(list))
	}
	if err := repo.DeleteNotification(ctx, u.ID+1, n.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign delete error = %v", err)
	}
}
