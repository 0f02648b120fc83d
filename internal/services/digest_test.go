package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"finsight/internal/core"
)

func TestDigestSchedules(t *testing.T) {
	// testNow is Monday 2024-04-15.
	tests := []struct {
		name       string
		schedule   DigestSchedule
		cycleStart string
		from, to   string
	}{
		{"weekly", WeeklyDigest{}, "2024-04-15", "2024-04-08", "2024-04-14"},
		{"monthly", MonthlyDigest{}, "2024-04-01", "2024-03-01", "2024-03-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := core.DateOf(tt.schedule.CycleStart(testNow)).String(); got != tt.cycleStart {
				t.Errorf("CycleStart() = %s, want %s", got, tt.cycleStart)
			}
			r := tt.schedule.Covered(testNow)
			if r.From.String() != tt.from || r.To.String() != tt.to {
				t.Errorf("Covered() = %s..%s, want %s..%s", r.From, r.To, tt.from, tt.to)
			}
		})
	}
}

func TestDigestProcessor_ProcessDue(t *testing.T) {
	env := newTestEnv(t, "500", nil)
	ctx := context.Background()
	if err := env.store.UpdateBudgetSettings(ctx, env.user.ID, dec("500"), 80, true, true); err != nil {
		t.Fatal(err)
	}
	food := env.categoryID(t, "Food & Dining")
	for _, e := range []core.Expense{
		{UserID: env.user.ID, CategoryID: food, Amount: dec("20"), Description: "Lunch", Date: core.NewDate(2024, 4, 10), Source: core.SourceManual},
		{UserID: env.user.ID, CategoryID: food, Amount: dec("75.50"), Description: "Groceries", Date: core.NewDate(2024, 3, 20), Source: core.SourceManual},
	} {
		if _, err := env.store.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense() error = %v", err)
		}
	}

	p := NewDigestProcessor(env.store, newReportService(env, nil), env.notifier, nil)
	p.now = func() time.Time { return testNow }

	sent, err := p.ProcessDue(ctx)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if sent != 2 {
		t.Fatalf("ProcessDue() sent = %d, want 2", sent)
	}
	if env.notificationsOfType(core.NotificationWeeklyReport) != 1 || env.notificationsOfType(core.NotificationMonthlyReport) != 1 {
		t.Fatalf("expected one weekly and one monthly digest")
	}
	for _, n := range env.store.Notifications() {
		switch n.Type {
		case core.NotificationWeeklyReport:
			if !strings.Contains(n.Message, "20.00") {
				t.Errorf("weekly digest = %q, want the April 10 lunch", n.Message)
			}
		case core.NotificationMonthlyReport:
			if !strings.Contains(n.Message, "March 2024") || !strings.Contains(n.Message, "75.50") {
				t.Errorf("monthly digest = %q", n.Message)
			}
		}
	}

	sent, err = p.ProcessDue(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("second ProcessDue() = %d, %v; want 0, nil", sent, err)
	}
}

func TestDigestProcessor_RespectsOptOut(t *testing.T) {
	env := newTestEnv(t, "500", nil)
	ctx := context.Background()
	if err := env.store.UpdateBudgetSettings(ctx, env.user.ID, dec("500"), 80, false, false); err != nil {
		t.Fatal(err)
	}
	p := NewDigestProcessor(env.store, newReportService(env, nil), env.notifier, nil)
	p.now = func() time.Time { return testNow }

	sent, err := p.ProcessDue(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("ProcessDue() = %d, %v; want 0, nil", sent, err)
	}
}

func TestDigestMessage(t *testing.T) {
	r := core.MonthRange(testNow)
	if got := DigestMessage(core.Report{Range: r}); got != "No expenses recorded for April 2024." {
		t.Errorf("DigestMessage(empty) = %q", got)
	}
	rep := core.Report{
		Range: r, Count: 3, Total: dec("90"), AveragePerDay: dec("3"),
		ByCategory: []core.CategoryTotal{{Name: "Housing", Amount: dec("60"), Share: dec("66.67")}},
	}
	got := DigestMessage(rep)
	for _, want := range []string{"3 expenses", "April 2024", "Top category: Housing", "(67%)"} {
		if !strings.Contains(got, want) {
			t.Errorf("DigestMessage() = %q, missing %q", got, want)
		}
	}
}
