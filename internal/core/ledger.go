package core

import "github.com/shopspring/decimal"

// BudgetStatus is the evaluation of one month of spending against a budget.
type BudgetStatus struct {
	Budget         decimal.Decimal
	Spent          decimal.Decimal
	Remaining      decimal.Decimal
	PercentageUsed decimal.Decimal
}

// EvaluateBudget totals the month's expense amounts against budget.
func EvaluateBudget(budget decimal.Decimal, amounts []decimal.Decimal) BudgetStatus {
	spent := SumAmounts(amounts)
	return BudgetStatus{
		Budget:         budget,
		Spent:          spent,
		Remaining:      budget.Sub(spent),
		PercentageUsed: PercentageUsed(budget, spent),
	}
}

// PercentageUsed is spent/budget*100, or zero when budget is zero.
func PercentageUsed(budget, spent decimal.Decimal) decimal.Decimal {
	if budget.IsZero() {
		return decimal.Zero
	}
	return spent.Div(budget).Mul(hundred)
}

// After returns the status as it would be once amount is spent.
func (s BudgetStatus) After(amount decimal.Decimal) BudgetStatus {
	spent := s.Spent.Add(amount)
	return BudgetStatus{
		Budget:         s.Budget,
		Spent:          spent,
		Remaining:      s.Budget.Sub(spent),
		PercentageUsed: PercentageUsed(s.Budget, spent),
	}
}

// AtOrAbove reports whether the percentage used has reached threshold.
func (s BudgetStatus) AtOrAbove(threshold int) bool {
	return s.Budget.IsPositive() && s.PercentageUsed.GreaterThanOrEqual(decimal.NewFromInt(int64(threshold)))
}

// Level buckets the status for display: "ok", "warning" or "danger".
func (s BudgetStatus) Level(threshold int) string {
	switch {
	case s.Budget.IsPositive() && s.PercentageUsed.GreaterThanOrEqual(hundred):
		return "danger"
	case s.AtOrAbove(threshold):
		return "warning"
	default:
		return "ok"
	}
}

// DisplayPercentage rounds the percentage to one decimal place.
func (s BudgetStatus) DisplayPercentage() string {
	return s.PercentageUsed.Round(1).String()
}

// CanSubmitExpense gates a manual expense: the amount must be positive and
// must fit in what is left of the budget. Reaching exactly zero is allowed.
func CanSubmitExpense(budget, spentSoFar, newAmount decimal.Decimal) error {
	if !newAmount.IsPositive() {
		return ErrInvalidAmount
	}
	remaining := budget.Sub(spentSoFar)
	if newAmount.GreaterThan(remaining) {
		return &BudgetExceededError{
			Budget:    budget,
			Spent:     spentSoFar,
			Remaining: remaining,
			Attempted: newAmount,
		}
	}
	return nil
}

// ShouldAlert reports whether going from before to after crosses the alert
// threshold. The first expense of a month counts as a crossing when it lands
// at or above the threshold, so a zero threshold still alerts once.
func ShouldAlert(threshold int, before, after BudgetStatus) bool {
	if !after.AtOrAbove(threshold) {
		return false
	}
	return before.Spent.IsZero() || !before.AtOrAbove(threshold)
}
