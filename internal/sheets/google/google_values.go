package google

import (
	"finsight/internal/core"
)

var (
	categoryHeader = []any{"Category", "Amount", "Expenses", "Share %"}
	expenseHeader  = []any{"Date", "Category", "Description", "Amount", "Source", "Reference"}
)

// reportValues lays a report out as rows: a summary block, the category
// breakdown, then every expense. Amounts are plain decimals so USER_ENTERED
// stores them as numbers.
func reportValues(user core.User, rep core.Report) [][]any {
	rows := [][]any{
		{"FinSight report", user.Name},
		{"Period", rep.Range.Label()},
		{"Total", rep.Total.StringFixed(2)},
		{"Expenses", rep.Count},
		{"Average per day", rep.AveragePerDay.StringFixed(2)},
		{},
		categoryHeader,
	}
	for _, c := range rep.ByCategory {
		rows = append(rows, []any{c.Name, c.Amount.StringFixed(2), c.Count, c.Share.StringFixed(1)})
	}
	rows = append(rows, []any{}, expenseHeader)
	for _, e := range rep.Expenses {
		rows = append(rows, []any{
			e.Date.String(),
			e.CategoryName,
			e.Description,
			e.Amount.StringFixed(2),
			string(e.Source),
			e.ReferenceNumber,
		})
	}
	return rows
}
