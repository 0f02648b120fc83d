package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrBudgetExceeded       = errors.New("budget exceeded")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")

	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyDescription   = errors.New("description is required")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrCategoryRequired   = errors.New("category is required")
	ErrEmptyName          = errors.New("name is required")
	ErrNameTooLong        = errors.New("name too long (max 50 characters)")
	ErrInvalidColor       = errors.New("color must be a hex value like #1a2b3c")
	ErrInvalidBudget      = errors.New("budget cannot be negative")
	ErrInvalidThreshold   = errors.New("alert threshold must be between 0 and 100")
	ErrInvalidPeriod      = errors.New("invalid report period")

	ErrCategoryInUse        = errors.New("category has expenses and cannot be deleted")
	ErrCategoryExists       = errors.New("a category with this name already exists")
	ErrAccountAlreadyLinked = errors.New("account is already linked")
	ErrInvalidAccountNumber = errors.New("account number must be 4 to 20 digits")

	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// BudgetExceededError carries the figures shown to the user when a manual
// expense would push the month over budget.
type BudgetExceededError struct {
	Budget    decimal.Decimal
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	Attempted decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("adding %s would exceed your monthly budget of %s (spent %s, remaining %s)",
		FormatMoney(e.Attempted), FormatMoney(e.Budget), FormatMoney(e.Spent), FormatMoney(e.Remaining))
}

func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// PersistenceError wraps a storage failure with the operation that caused it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err unless it is nil or already a domain sentinel.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsDomainError reports whether err is one of the package sentinels, which
// callers translate into user-facing messages rather than 500s.
func IsDomainError(err error) bool {
	return DomainCause(err) != nil
}

// DomainCause returns the package sentinel err wraps, or nil.
func DomainCause(err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

var domainErrors = []error{
	ErrInvalidAmount, ErrBudgetExceeded, ErrDuplicateTransaction, ErrNotFound, ErrForbidden,
	ErrInvalidDate, ErrEmptyDescription, ErrDescriptionTooLong, ErrCategoryRequired,
	ErrEmptyName, ErrNameTooLong, ErrInvalidColor, ErrInvalidBudget, ErrInvalidThreshold,
	ErrInvalidPeriod, ErrCategoryInUse, ErrCategoryExists, ErrAccountAlreadyLinked,
	ErrInvalidAccountNumber, ErrInvalidEmail, ErrEmailTaken, ErrWeakPassword,
	ErrInvalidCredentials,
}
