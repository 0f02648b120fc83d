package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	NotificationBudgetAlert   NotificationType = "budget_alert"
	NotificationExpenseAlert  NotificationType = "expense_alert"
	NotificationSystem        NotificationType = "system"
	NotificationSuccess       NotificationType = "success"
	NotificationWeeklyReport  NotificationType = "weekly_report"
	NotificationMonthlyReport NotificationType = "monthly_report"
)

const (
	SourceManual   ExpenseSource = "manual"
	SourceAutoSync ExpenseSource = "auto_sync"
)

const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

// MaxDescriptionLength bounds expense and category descriptions.
const MaxDescriptionLength = 200

// MaxCategoryNameLength bounds category names, in characters.
const MaxCategoryNameLength = 50

// DefaultAlertThreshold is the percentage used assigned to new users.
const DefaultAlertThreshold = 80

type (
	NotificationType string
	ExpenseSource    string
	AccountStatus    string

	Date struct {
		time.Time
	}

	User struct {
		ID             int64
		Name           string
		Email          string
		PasswordHash   string
		MonthlyBudget  decimal.Decimal
		AlertThreshold int
		WeeklyReport   bool
		MonthlyReport  bool
		CreatedAt      time.Time
	}

	// Category is system-wide when OwnerID is nil.
	Category struct {
		ID          int64
		Name        string
		Description string
		Color       string
		OwnerID     *int64
		CreatedAt   time.Time
	}

	Expense struct {
		ID              int64
		UserID          int64
		CategoryID      int64
		Amount          decimal.Decimal
		Description     string
		Date            Date
		ReferenceNumber string
		Source          ExpenseSource
		AccountID       *int64
		CreatedAt       time.Time
		UpdatedAt       time.Time

		// Denormalised for listing.
		CategoryName  string
		CategoryColor string
	}

	CategoryBudget struct {
		UserID     int64
		CategoryID int64
		Amount     decimal.Decimal
	}

	Bank struct {
		ID   int64
		Name string
		Code string
	}

	LinkedAccount struct {
		ID             int64
		UserID         int64
		BankID         int64
		BankName       string
		AccountNumber  string
		AccountName    string
		Balance        decimal.Decimal
		ExternalHandle string
		Status         AccountStatus
		LastSynced     *time.Time
		CreatedAt      time.Time
	}

	Notification struct {
		ID        int64
		UserID    int64
		Type      NotificationType
		Title     string
		Message   string
		IsRead    bool
		CreatedAt time.Time
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses the YYYY-MM-DD form used by forms and storage.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (c Category) IsSystem() bool { return c.OwnerID == nil }

// VisibleTo reports whether the user may attach expenses to c.
func (c Category) VisibleTo(userID int64) bool {
	return c.OwnerID == nil || *c.OwnerID == userID
}

// OwnedBy reports whether the user may edit or delete c.
func (c Category) OwnedBy(userID int64) bool {
	return c.OwnerID != nil && *c.OwnerID == userID
}

func (c Category) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return ErrNameTooLong
	}
	if utf8.RuneCountInString(c.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if c.Color != "" && !ValidColor(c.Color) {
		return ErrInvalidColor
	}
	return nil
}

func (e Expense) Validate() error {
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if e.CategoryID <= 0 {
		return ErrCategoryRequired
	}
	return nil
}

func (a LinkedAccount) Active() bool { return a.Status == AccountActive }

// MaskedNumber hides all but the last four digits of the account number.
func (a LinkedAccount) MaskedNumber() string {
	n := a.AccountNumber
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("•", 4) + n[len(n)-4:]
}

func (u User) Validate() error {
	if u.MonthlyBudget.IsNegative() {
		return ErrInvalidBudget
	}
	if u.AlertThreshold < 0 || u.AlertThreshold > 100 {
		return ErrInvalidThreshold
	}
	return nil
}
