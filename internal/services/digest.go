package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

// DigestSchedule describes one periodic spending report.
type DigestSchedule interface {
	Type() core.NotificationType
	Period() core.Period
	// Enabled reports whether the user opted in.
	Enabled(u core.User) bool
	// CycleStart is the start of the cycle containing now. A digest sent at
	// or after it means the cycle is done.
	CycleStart(now time.Time) time.Time
	// Covered is the last completed range before now.
	Covered(now time.Time) core.DateRange
}

type WeeklyDigest struct{}

func (WeeklyDigest) Type() core.NotificationType { return core.NotificationWeeklyReport }
func (WeeklyDigest) Period() core.Period         { return core.PeriodWeek }
func (WeeklyDigest) Enabled(u core.User) bool    { return u.WeeklyReport }

func (WeeklyDigest) CycleStart(now time.Time) time.Time {
	return core.WeekRange(now).From.Time
}

func (WeeklyDigest) Covered(now time.Time) core.DateRange {
	return core.WeekRange(core.WeekRange(now).From.AddDays(-1).Time)
}

type MonthlyDigest struct{}

func (MonthlyDigest) Type() core.NotificationType { return core.NotificationMonthlyReport }
func (MonthlyDigest) Period() core.Period         { return core.PeriodMonth }
func (MonthlyDigest) Enabled(u core.User) bool    { return u.MonthlyReport }

func (MonthlyDigest) CycleStart(now time.Time) time.Time {
	return core.MonthRange(now).From.Time
}

func (MonthlyDigest) Covered(now time.Time) core.DateRange {
	return core.MonthRange(core.MonthRange(now).From.AddDays(-1).Time)
}

// DefaultDigests is the schedule set used by the worker.
var DefaultDigests = []DigestSchedule{WeeklyDigest{}, MonthlyDigest{}}

// DigestProcessor sends the weekly and monthly spending reports users opted into.
type DigestProcessor struct {
	users     ports.UserStore
	reports   *ReportService
	notifier  *NotificationService
	schedules []DigestSchedule
	logger    *log.Logger
	now       func() time.Time
}

func NewDigestProcessor(users ports.UserStore, reports *ReportService, notifier *NotificationService, logger *log.Logger, schedules ...DigestSchedule) *DigestProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	if len(schedules) == 0 {
		schedules = DefaultDigests
	}
	return &DigestProcessor{
		users:     users,
		reports:   reports,
		notifier:  notifier,
		schedules: schedules,
		logger:    logger.WithComponent(log.ComponentNotification),
		now:       time.Now,
	}
}

// ProcessDue sends every digest whose cycle has no digest yet and returns how
// many were sent. A failure for one user does not stop the others.
func (p *DigestProcessor) ProcessDue(ctx context.Context) (int, error) {
	users, err := p.users.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	now := p.now()
	sent := 0
	for _, u := range users {
		for _, sch := range p.schedules {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			ok, err := p.processUser(ctx, u, sch, now)
			if err != nil {
				p.logger.ErrorContext(ctx, "Failed to send digest",
					log.NewFields().WithUser(u.ID).WithError(err).ToSlice()...,
				)
				continue
			}
			if ok {
				sent++
			}
		}
	}
	if sent > 0 {
		p.logger.InfoContext(ctx, "Digests sent", log.FieldCount, sent)
	}
	return sent, nil
}

func (p *DigestProcessor) processUser(ctx context.Context, u core.User, sch DigestSchedule, now time.Time) (bool, error) {
	if !sch.Enabled(u) {
		return false, nil
	}
	done, err := p.notifier.HasSince(ctx, u.ID, sch.Type(), sch.CycleStart(now))
	if err != nil || done {
		return false, err
	}
	rep, err := p.reports.BuildRange(ctx, u.ID, sch.Period(), sch.Covered(now))
	if err != nil {
		return false, err
	}
	if _, err := p.notifier.Notify(ctx, u, sch.Type(), digestTitle(sch.Period()), DigestMessage(rep)); err != nil {
		return false, err
	}
	return true, nil
}

func digestTitle(p core.Period) string {
	if p == core.PeriodWeek {
		return "Your weekly spending report"
	}
	return "Your monthly spending report"
}

// DigestMessage summarises a report in a sentence or two.
func DigestMessage(rep core.Report) string {
	if rep.Count == 0 {
		return fmt.Sprintf("No expenses recorded for %s.", rep.Range.Label())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You spent %s across %d expenses in %s (%s per day).",
		core.FormatMoney(rep.Total), rep.Count, rep.Range.Label(), core.FormatMoney(rep.AveragePerDay))
	if len(rep.ByCategory) > 0 {
		top := rep.ByCategory[0]
		fmt.Fprintf(&b, " Top category: %s with %s (%s%%).", top.Name, core.FormatMoney(top.Amount), top.Share.StringFixed(0))
	}
	return b.String()
}
