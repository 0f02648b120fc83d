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

type CategoryStore interface {
	ports.CategoryStore
	ports.ExpenseStore
}

type CategoryInput struct {
	Name        string
	Description string
	Color       string
}

// CategoryView is a category with the user's month-to-date figures.
type CategoryView struct {
	core.Category
	MonthSpent   decimal.Decimal
	ExpenseCount int
	Cap          decimal.Decimal
	Editable     bool
}

// CapUsed is the share of the category budget spent this month, zero without a cap.
func (v CategoryView) CapUsed() decimal.Decimal { return core.PercentageUsed(v.Cap, v.MonthSpent) }

func (v CategoryView) OverCap() bool { return v.Cap.IsPositive() && v.MonthSpent.GreaterThan(v.Cap) }

type CategoryService struct {
	store  CategoryStore
	cache  Invalidator
	logger *log.Logger
	now    func() time.Time
}

func NewCategoryService(store CategoryStore, cache Invalidator, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CategoryService{store: store, cache: cache, logger: logger.WithComponent(log.ComponentLedger), now: time.Now}
}

// Options returns the categories a user can file expenses under.
func (s *CategoryService) Options(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.store.ListCategories(ctx, userID)
}

func (s *CategoryService) List(ctx context.Context, userID int64) ([]CategoryView, error) {
	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	caps, err := s.caps(ctx, userID)
	if err != nil {
		return nil, err
	}

	month := core.MonthRange(s.now())
	expenses, err := s.store.ListExpenses(ctx, userID, ports.ExpenseFilter{From: month.From, To: month.To})
	if err != nil {
		return nil, err
	}
	spent := make(map[int64]decimal.Decimal)
	for _, e := range expenses {
		spent[e.CategoryID] = spent[e.CategoryID].Add(e.Amount)
	}

	views := make([]CategoryView, 0, len(cats))
	for _, c := range cats {
		n, err := s.store.CountCategoryExpenses(ctx, userID, c.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, CategoryView{
			Category:     c,
			MonthSpent:   spent[c.ID],
			ExpenseCount: n,
			Cap:          caps[c.ID],
			Editable:     c.OwnedBy(userID),
		})
	}
	return views, nil
}

func (s *CategoryService) caps(ctx context.Context, userID int64) (map[int64]decimal.Decimal, error) {
	budgets, err := s.store.ListCategoryBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal, len(budgets))
	for _, b := range budgets {
		out[b.CategoryID] = b.Amount
	}
	return out, nil
}

// Get returns a category the user owns.
func (s *CategoryService) Get(ctx context.Context, userID, id int64) (core.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	if !c.VisibleTo(userID) {
		return core.Category{}, core.ErrNotFound
	}
	if !c.OwnedBy(userID) {
		return core.Category{}, core.ErrForbidden
	}
	return c, nil
}

func (s *CategoryService) Create(ctx context.Context, userID int64, in CategoryInput) (core.Category, error) {
	owner := userID
	c := core.Category{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Color:       strings.TrimSpace(in.Color),
		OwnerID:     &owner,
	}
	if c.Color == "" {
		c.Color = core.CategoryColor(c.Name)
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	s.invalidate(userID)
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, userID, id int64, in CategoryInput) error {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	c.Name = strings.TrimSpace(in.Name)
	c.Description = strings.TrimSpace(in.Description)
	if color := strings.TrimSpace(in.Color); color != "" {
		c.Color = color
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// Delete removes a user-owned category that has no expenses.
func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountCategoryExpenses(ctx, userID, c.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w (%d expenses)", core.ErrCategoryInUse, n)
	}
	if err := s.store.DeleteCategory(ctx, c.ID); err != nil {
		return err
	}
	s.invalidate(userID)
	s.logger.InfoContext(ctx, "Category deleted", log.FieldUserID, userID, log.FieldCategoryID, id)
	return nil
}

// SetBudget upserts the monthly cap for a category; a zero amount clears it.
func (s *CategoryService) SetBudget(ctx context.Context, userID, categoryID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrInvalidBudget
	}
	c, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, core.ErrNotFound) || (err == nil && !c.VisibleTo(userID)) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}
	if amount.IsZero() {
		err = s.store.DeleteCategoryBudget(ctx, userID, categoryID)
	} else {
		err = s.store.UpsertCategoryBudget(ctx, core.CategoryBudget{UserID: userID, CategoryID: categoryID, Amount: amount})
	}
	if err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

func (s *CategoryService) invalidate(userID int64) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
