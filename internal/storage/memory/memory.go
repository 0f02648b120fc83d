// Package memory is an in-process implementation of ports.Repository used by
// tests and local development without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/ports"
)

// SystemCategories mirrors the rows seeded by the SQL migrations.
var SystemCategories = []core.Category{
	{Name: "Food & Dining", Description: "Restaurants, groceries and take-away", Color: "#e15759"},
	{Name: "Transportation", Description: "Fuel, transit and rides", Color: "#4e79a7"},
	{Name: "Housing", Description: "Rent, mortgage and repairs", Color: "#59a14f"},
	{Name: "Utilities", Description: "Electricity, water, internet and phone", Color: "#edc948"},
	{Name: "Entertainment", Description: "Movies, games and subscriptions", Color: "#b07aa1"},
	{Name: "Healthcare", Description: "Doctors, pharmacy and insurance", Color: "#76b7b2"},
	{Name: "Shopping", Description: "Clothing, electronics and household", Color: "#f28e2b"},
	{Name: "Education", Description: "Courses, books and tuition", Color: "#9c755f"},
	{Name: "Other", Description: "Everything else", Color: "#bab0ac"},
}

// Banks mirrors the banks seeded by the SQL migrations.
var Banks = []core.Bank{
	{Name: "First National Bank", Code: "FNB"},
	{Name: "Citywide Credit Union", Code: "CCU"},
	{Name: "Harbor Savings", Code: "HSB"},
	{Name: "Summit Trust", Code: "STR"},
}

// Store implements ports.Repository. The Fail* hooks let tests inject
// persistence failures; a non-nil return aborts the write.
type Store struct {
	mu sync.Mutex

	nextID        int64
	users         map[int64]core.User
	categories    map[int64]core.Category
	expenses      map[int64]core.Expense
	budgets       map[[2]int64]core.CategoryBudget
	banks         map[int64]core.Bank
	accounts      map[int64]core.LinkedAccount
	notifications map[int64]core.Notification

	FailCreateExpense  func(core.Expense) error
	FailUpdateExpense  func(core.Expense) error
	FailCreateCategory func(core.Category) error
	FailAccountDebit   func(accountID int64) error

	now func() time.Time
}

var _ ports.Repository = (*Store)(nil)

// New returns a store seeded with the system categories and banks.
func New() *Store {
	s := &Store{
		users:         make(map[int64]core.User),
		categories:    make(map[int64]core.Category),
		expenses:      make(map[int64]core.Expense),
		budgets:       make(map[[2]int64]core.CategoryBudget),
		banks:         make(map[int64]core.Bank),
		accounts:      make(map[int64]core.LinkedAccount),
		notifications: make(map[int64]core.Notification),
		now:           time.Now,
	}
	for _, c := range SystemCategories {
		c.ID = s.id()
		s.categories[c.ID] = c
	}
	for _, b := range Banks {
		b.ID = s.id()
		s.banks[b.ID] = b
	}
	return s
}

// SetClock overrides the time source used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Users

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, core.ErrEmailTaken
		}
	}
	u.ID = s.id()
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateProfile(_ context.Context, id int64, name, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	for _, other := range s.users {
		if other.ID != id && strings.EqualFold(other.Email, email) {
			return core.ErrEmailTaken
		}
	}
	u.Name, u.Email = name, email
	s.users[id] = u
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

func (s *Store) UpdateBudgetSettings(_ context.Context, id int64, budget decimal.Decimal, threshold int, weekly, monthly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.MonthlyBudget, u.AlertThreshold, u.WeeklyReport, u.MonthlyReport = budget, threshold, weekly, monthly
	s.users[id] = u
	return nil
}

// Categories

func (s *Store) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.VisibleTo(userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (s *Store) FindCategoryByName(_ context.Context, userID int64, name string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCategoryLocked(userID, name)
}

func (s *Store) findCategoryLocked(userID int64, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	var found *core.Category
	for _, c := range s.categories {
		if !c.VisibleTo(userID) || !strings.EqualFold(c.Name, name) {
			continue
		}
		// Prefer the user's own row over a system row of the same name.
		if found == nil || (found.IsSystem() && !c.IsSystem()) {
			c := c
			found = &c
		}
	}
	if found == nil {
		return core.Category{}, core.ErrNotFound
	}
	return *found, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateCategory != nil {
		if err := s.FailCreateCategory(c); err != nil {
			return core.Category{}, err
		}
	}
	for _, existing := range s.categories {
		if sameOwner(existing.OwnerID, c.OwnerID) && strings.EqualFold(existing.Name, c.Name) {
			return core.Category{}, core.ErrCategoryExists
		}
	}
	c.ID = s.id()
	c.CreatedAt = s.now()
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.categories[c.ID]
	if !ok {
		return core.ErrNotFound
	}
	for _, other := range s.categories {
		if other.ID != c.ID && sameOwner(other.OwnerID, existing.OwnerID) && strings.EqualFold(other.Name, c.Name) {
			return core.ErrCategoryExists
		}
	}
	existing.Name, existing.Description, existing.Color = c.Name, c.Description, c.Color
	s.categories[c.ID] = existing
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return core.ErrNotFound
	}
	for _, e := range s.expenses {
		if e.CategoryID == id {
			return core.ErrCategoryInUse
		}
	}
	delete(s.categories, id)
	for k := range s.budgets {
		if k[1] == id {
			delete(s.budgets, k)
		}
	}
	return nil
}

func (s *Store) CountCategoryExpenses(_ context.Context, userID, categoryID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.expenses {
		if e.UserID == userID && e.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListCategoryBudgets(_ context.Context, userID int64) ([]core.CategoryBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.CategoryBudget
	for k, b := range s.budgets {
		if k[0] == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID < out[j].CategoryID })
	return out, nil
}

func (s *Store) UpsertCategoryBudget(_ context.Context, b core.CategoryBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[[2]int64{b.UserID, b.CategoryID}] = b
	return nil
}

func (s *Store) DeleteCategoryBudget(_ context.Context, userID, categoryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.budgets, [2]int64{userID, categoryID})
	return nil
}

// Expenses

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertExpenseLocked(e)
}

func (s *Store) insertExpenseLocked(e core.Expense) (core.Expense, error) {
	if s.FailCreateExpense != nil {
		if err := s.FailCreateExpense(e); err != nil {
			return core.Expense{}, err
		}
	}
	if e.ReferenceNumber != "" {
		for _, existing := range s.expenses {
			if existing.UserID == e.UserID && existing.ReferenceNumber == e.ReferenceNumber {
				return core.Expense{}, core.ErrDuplicateTransaction
			}
		}
	}
	if _, ok := s.categories[e.CategoryID]; !ok {
		return core.Expense{}, fmt.Errorf("category %d: %w", e.CategoryID, core.ErrNotFound)
	}
	now := s.now()
	e.ID = s.id()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Source == "" {
		e.Source = core.SourceManual
	}
	s.expenses[e.ID] = e
	return s.decorateLocked(e), nil
}

func (s *Store) CreateExpenseWithDebit(_ context.Context, e core.Expense, accountID int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok || acct.UserID != e.UserID {
		return core.Expense{}, fmt.Errorf("account %d: %w", accountID, core.ErrNotFound)
	}
	created, err := s.insertExpenseLocked(e)
	if err != nil {
		return core.Expense{}, err
	}
	if s.FailAccountDebit != nil {
		if err := s.FailAccountDebit(accountID); err != nil {
			delete(s.expenses, created.ID) // rollback
			return core.Expense{}, err
		}
	}
	acct.Balance = acct.Balance.Sub(e.Amount)
	s.accounts[accountID] = acct
	return created, nil
}

func (s *Store) GetExpense(_ context.Context, userID, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.Expense{}, core.ErrNotFound
	}
	return s.decorateLocked(e), nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenses[e.ID]
	if !ok || existing.UserID != e.UserID {
		return core.ErrNotFound
	}
	if s.FailUpdateExpense != nil {
		if err := s.FailUpdateExpense(e); err != nil {
			return err
		}
	}
	existing.CategoryID = e.CategoryID
	existing.Amount = e.Amount
	existing.Description = e.Description
	existing.Date = e.Date
	existing.UpdatedAt = s.now()
	s.expenses[e.ID] = existing
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) filterLocked(userID int64, f ports.ExpenseFilter) []core.Expense {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var out []core.Expense
	for _, e := range s.expenses {
		if e.UserID != userID {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From.Time) {
			continue
		}
		if !f.To.IsZero() && e.Date.After(f.To.Time) {
			continue
		}
		if f.CategoryID != 0 && e.CategoryID != f.CategoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Description), search) {
			continue
		}
		out = append(out, s.decorateLocked(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) ListExpenses(_ context.Context, userID int64, f ports.ExpenseFilter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filterLocked(userID, f)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) CountExpenses(_ context.Context, userID int64, f ports.ExpenseFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filterLocked(userID, f)), nil
}

func (s *Store) SumExpenses(_ context.Context, userID int64, from, to core.Date) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, e := range s.filterLocked(userID, ports.ExpenseFilter{From: from, To: to}) {
		total = total.Add(e.Amount)
	}
	return total, nil
}

func (s *Store) ExpenseExistsByReference(_ context.Context, userID int64, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.UserID == userID && e.ReferenceNumber == reference {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) decorateLocked(e core.Expense) core.Expense {
	if c, ok := s.categories[e.CategoryID]; ok {
		e.CategoryName, e.CategoryColor = c.Name, c.Color
	}
	return e
}

// Accounts

func (s *Store) ListBanks(context.Context) ([]core.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Bank, 0, len(s.banks))
	for _, b := range s.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetBank(_ context.Context, id int64) (core.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[id]
	if !ok {
		return core.Bank{}, core.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListAccounts(_ context.Context, userID int64, activeOnly bool) ([]core.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.LinkedAccount
	for _, a := range s.accounts {
		if a.UserID != userID || (activeOnly && !a.Active()) {
			continue
		}
		out = append(out, s.decorateAccountLocked(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, userID, id int64) (core.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return core.LinkedAccount{}, core.ErrNotFound
	}
	return s.decorateAccountLocked(a), nil
}

func (s *Store) FindAccount(_ context.Context, userID, bankID int64, number string) (core.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.UserID == userID && a.BankID == bankID && a.AccountNumber == number {
			return s.decorateAccountLocked(a), nil
		}
	}
	return core.LinkedAccount{}, core.ErrNotFound
}

func (s *Store) CreateAccount(_ context.Context, a core.LinkedAccount) (core.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.UserID == a.UserID && existing.BankID == a.BankID && existing.AccountNumber == a.AccountNumber {
			return core.LinkedAccount{}, core.ErrAccountAlreadyLinked
		}
	}
	a.ID = s.id()
	a.CreatedAt = s.now()
	if a.Status == "" {
		a.Status = core.AccountActive
	}
	s.accounts[a.ID] = a
	return s.decorateAccountLocked(a), nil
}

func (s *Store) ReactivateAccount(_ context.Context, id int64, name, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.ErrNotFound
	}
	a.Status = core.AccountActive
	a.AccountName = name
	a.ExternalHandle = handle
	s.accounts[id] = a
	return nil
}

func (s *Store) SetAccountStatus(_ context.Context, userID, id int64, status core.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return core.ErrNotFound
	}
	a.Status = status
	s.accounts[id] = a
	return nil
}

func (s *Store) TouchAccountSynced(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.ErrNotFound
	}
	a.LastSynced = &at
	s.accounts[id] = a
	return nil
}

func (s *Store) decorateAccountLocked(a core.LinkedAccount) core.LinkedAccount {
	if b, ok := s.banks[a.BankID]; ok {
		a.BankName = b.Name
	}
	return a
}

// Notifications

func (s *Store) CreateNotification(_ context.Context, n core.Notification) (core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	n.CreatedAt = s.now()
	s.notifications[n.ID] = n
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID int64, unreadOnly bool, limit int) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountUnread(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, notif := range s.notifications {
		if notif.UserID == userID && !notif.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) HasNotificationSince(_ context.Context, userID int64, t core.NotificationType, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.UserID == userID && n.Type == t && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) MarkRead(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return core.ErrNotFound
	}
	n.IsRead = true
	s.notifications[id] = n
	return nil
}

func (s *Store) MarkAllRead(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.notifications {
		if n.UserID == userID {
			n.IsRead = true
			s.notifications[id] = n
		}
	}
	return nil
}

func (s *Store) DeleteNotification(_ context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

// Notifications returns a snapshot of every stored notification, oldest first.
func (s *Store) Notifications() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sameOwner(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
