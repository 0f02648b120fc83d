package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finsight/internal/cache"
	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

const (
	recentExpenseCount      = 5
	recentNotificationCount = 5
)

type DashboardStore interface {
	ports.UserStore
	ports.CategoryStore
	ports.ExpenseStore
	ports.NotificationStore
}

// Dashboard is everything the landing page renders.
type Dashboard struct {
	User          core.User
	Budget        BudgetOverview
	Breakdown     []core.CategoryTotal
	Recent        []core.Expense
	Notifications []core.Notification
	UnreadCount   int
}

// DashboardService assembles the dashboard. The month's category breakdown is
// cached per user and month; Invalidate drops a user's entries after a write.
type DashboardService struct {
	store  DashboardStore
	cache  cache.Cache[[]core.CategoryTotal]
	logger *log.Logger
	now    func() time.Time
}

func NewDashboardService(store DashboardStore, c cache.Cache[[]core.CategoryTotal], logger *log.Logger) *DashboardService {
	if logger == nil {
		logger = log.Discard()
	}
	return &DashboardService{store: store, cache: c, logger: logger.WithComponent(log.ComponentCache), now: time.Now}
}

func breakdownKey(userID int64, month core.DateRange) string {
	return userPrefix(userID) + month.From.Format("2006-01")
}

func userPrefix(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":"
}

func (s *DashboardService) Invalidate(userID int64) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeletePrefix(userPrefix(userID)); n > 0 {
		s.logger.Debug("Dashboard cache invalidated", log.FieldUserID, userID, log.FieldCount, n)
	}
}

// CacheStats reports the breakdown cache; zero when caching is off.
func (s *DashboardService) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}

func (s *DashboardService) Load(ctx context.Context, userID int64) (Dashboard, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	now := s.now()
	d := Dashboard{User: user}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Budget, err = evaluateMonth(gctx, s.store, user, now)
		return err
	})
	g.Go(func() error {
		var err error
		d.Breakdown, err = s.breakdown(gctx, userID, core.MonthRange(now))
		return err
	})
	g.Go(func() error {
		var err error
		d.Recent, err = s.store.ListExpenses(gctx, userID, ports.ExpenseFilter{Limit: recentExpenseCount})
		return err
	})
	g.Go(func() error {
		var err error
		d.Notifications, err = s.store.ListNotifications(gctx, userID, false, recentNotificationCount)
		return err
	})
	g.Go(func() error {
		var err error
		d.UnreadCount, err = s.store.CountUnread(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("load dashboard: %w", err)
	}
	return d, nil
}

func (s *DashboardService) breakdown(ctx context.Context, userID int64, month core.DateRange) ([]core.CategoryTotal, error) {
	key := breakdownKey(userID, month)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
	}

	expenses, err := s.store.ListExpenses(ctx, userID, ports.ExpenseFilter{From: month.From, To: month.To})
	if err != nil {
		return nil, err
	}
	budgets, err := s.store.ListCategoryBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	caps := make(map[int64]decimal.Decimal, len(budgets))
	for _, b := range budgets {
		caps[b.CategoryID] = b.Amount
	}
	rep := core.BuildReport(core.PeriodMonth, month, expenses, caps)

	if s.cache != nil {
		s.cache.Set(key, rep.ByCategory)
	}
	return rep.ByCategory, nil
}
