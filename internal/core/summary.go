package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryTotal aggregates spending in one category.
type CategoryTotal struct {
	CategoryID int64
	Name       string
	Color      string
	Amount     decimal.Decimal
	Count      int
	Share      decimal.Decimal // percent of the period total
	Cap        decimal.Decimal // zero when no category budget is set
}

// CapUsed is the percentage of the category budget consumed, zero without a cap.
func (c CategoryTotal) CapUsed() decimal.Decimal {
	return PercentageUsed(c.Cap, c.Amount)
}

// OverCap reports whether a category budget exists and has been passed.
func (c CategoryTotal) OverCap() bool {
	return c.Cap.IsPositive() && c.Amount.GreaterThan(c.Cap)
}

type DailyTotal struct {
	Date   Date
	Amount decimal.Decimal
}

// Report summarises the expenses of a date range.
type Report struct {
	Period        Period
	Range         DateRange
	Total         decimal.Decimal
	Count         int
	AveragePerDay decimal.Decimal
	ByCategory    []CategoryTotal
	Daily         []DailyTotal
	Top           []Expense
	// Expenses holds every in-range expense, newest first.
	Expenses []Expense
}

// TopExpenseCount is the number of largest expenses kept in a report.
const TopExpenseCount = 5

// BuildReport aggregates expenses falling inside r. caps maps category ids
// to their monthly budget and may be nil.
func BuildReport(p Period, r DateRange, expenses []Expense, caps map[int64]decimal.Decimal) Report {
	rep := Report{Period: p, Range: r, Total: decimal.Zero, AveragePerDay: decimal.Zero}

	byCat := make(map[int64]*CategoryTotal)
	byDay := make(map[string]decimal.Decimal)
	var inRange []Expense

	for _, e := range expenses {
		if !r.Contains(e.Date) {
			continue
		}
		inRange = append(inRange, e)
		rep.Total = rep.Total.Add(e.Amount)
		rep.Count++

		ct, ok := byCat[e.CategoryID]
		if !ok {
			ct = &CategoryTotal{CategoryID: e.CategoryID, Name: e.CategoryName, Color: e.CategoryColor, Amount: decimal.Zero}
			if caps != nil {
				ct.Cap = caps[e.CategoryID]
			}
			byCat[e.CategoryID] = ct
		}
		ct.Amount = ct.Amount.Add(e.Amount)
		ct.Count++

		key := e.Date.String()
		byDay[key] = byDay[key].Add(e.Amount)
	}

	for _, ct := range byCat {
		ct.Share = PercentageUsed(rep.Total, ct.Amount)
		rep.ByCategory = append(rep.ByCategory, *ct)
	}
	sort.Slice(rep.ByCategory, func(i, j int) bool {
		a, b := rep.ByCategory[i], rep.ByCategory[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Name < b.Name
	})

	for d := r.From; !d.After(r.To.Time); d = d.AddDays(1) {
		amt, ok := byDay[d.String()]
		if !ok {
			amt = decimal.Zero
		}
		rep.Daily = append(rep.Daily, DailyTotal{Date: d, Amount: amt})
	}

	if days := r.Days(); days > 0 {
		rep.AveragePerDay = rep.Total.Div(decimal.NewFromInt(int64(days))).Round(2)
	}

	rep.Expenses = make([]Expense, len(inRange))
	copy(rep.Expenses, inRange)
	sort.SliceStable(rep.Expenses, func(i, j int) bool {
		a, b := rep.Expenses[i], rep.Expenses[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		return a.ID > b.ID
	})

	sort.SliceStable(inRange, func(i, j int) bool { return inRange[i].Amount.GreaterThan(inRange[j].Amount) })
	if len(inRange) > TopExpenseCount {
		inRange = inRange[:TopExpenseCount]
	}
	rep.Top = inRange
	return rep
}
