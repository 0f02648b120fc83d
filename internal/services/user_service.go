package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

const minPasswordLength = 8

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type BudgetSettings struct {
	MonthlyBudget  decimal.Decimal
	AlertThreshold int
	WeeklyReport   bool
	MonthlyReport  bool
}

type UserService struct {
	store    ports.UserStore
	notifier *NotificationService
	cache    Invalidator
	logger   *log.Logger
	cost     int
}

// NewUserService builds the service. cost is the bcrypt cost; zero selects
// bcrypt.DefaultCost.
func NewUserService(store ports.UserStore, notifier *NotificationService, cache Invalidator, logger *log.Logger, cost int) *UserService {
	if logger == nil {
		logger = log.Discard()
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{
		store:    store,
		notifier: notifier,
		cache:    cache,
		logger:   logger.WithComponent(log.ComponentAuth),
		cost:     cost,
	}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validateProfile(name, email string) error {
	if name == "" {
		return core.ErrEmptyName
	}
	if utf8.RuneCountInString(name) > 100 {
		return core.ErrNameTooLong
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return core.ErrInvalidEmail
	}
	return nil
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (core.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if err := validateProfile(name, email); err != nil {
		return core.User{}, err
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return core.User{}, core.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, core.User{
		Name:           name,
		Email:          email,
		PasswordHash:   string(hash),
		MonthlyBudget:  decimal.Zero,
		AlertThreshold: core.DefaultAlertThreshold,
	})
	if err != nil {
		return core.User{}, err
	}
	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID)

	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, u, core.NotificationSystem,
			"Welcome to FinSight",
			"Set a monthly budget to start tracking your spending."); err != nil {
			s.logger.WarnContext(ctx, "Welcome notification failed", log.FieldUserID, u.ID, log.FieldError, err)
		}
	}
	return u, nil
}

// Authenticate returns the user for valid credentials. Unknown e-mail and
// wrong password are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Login rejected", log.FieldUserID, u.ID)
		return core.User{}, core.ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (core.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, id int64, name, email string) error {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if err := validateProfile(name, email); err != nil {
		return err
	}
	return s.store.UpdateProfile(ctx, id, name, email)
}

func (s *UserService) ChangePassword(ctx context.Context, id int64, current, next string) error {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return core.ErrInvalidCredentials
	}
	if utf8.RuneCountInString(next) < minPasswordLength {
		return core.ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdatePassword(ctx, id, string(hash))
}

func (s *UserService) UpdateBudgetSettings(ctx context.Context, id int64, in BudgetSettings) error {
	u := core.User{MonthlyBudget: in.MonthlyBudget, AlertThreshold: in.AlertThreshold}
	if err := u.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateBudgetSettings(ctx, id, in.MonthlyBudget.Round(2), in.AlertThreshold, in.WeeklyReport, in.MonthlyReport); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(id)
	}
	s.logger.InfoContext(ctx, "Budget settings updated",
		log.FieldUserID, id,
		log.FieldAmount, in.MonthlyBudget.StringFixed(2))
	return nil
}
