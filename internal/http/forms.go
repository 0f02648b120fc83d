package http

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/services"
)

// FieldErrors maps a form field to the message shown next to it.
type FieldErrors map[string]string

func (e FieldErrors) Any() bool { return len(e) > 0 }

// Form DTOs keep the submitted strings so a failed post re-renders with
// the user's input; ToInput converts them into service inputs.

type ExpenseForm struct {
	Amount      string
	Description string
	Date        string
	CategoryID  string
	AccountID   string
}

func bindExpenseForm(p *RequestBodyParser) ExpenseForm {
	return ExpenseForm{
		Amount:      p.Get("amount"),
		Description: p.Get("description"),
		Date:        p.Get("date"),
		CategoryID:  p.Get("category_id"),
		AccountID:   p.Get("account_id"),
	}
}

func expenseFormFrom(e core.Expense) ExpenseForm {
	f := ExpenseForm{
		Amount:      e.Amount.StringFixed(2),
		Description: e.Description,
		Date:        e.Date.String(),
		CategoryID:  strconv.FormatInt(e.CategoryID, 10),
	}
	if e.AccountID != nil {
		f.AccountID = strconv.FormatInt(*e.AccountID, 10)
	}
	return f
}

func (f ExpenseForm) ToInput() (services.ExpenseInput, FieldErrors) {
	errs := FieldErrors{}
	var in services.ExpenseInput

	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		errs["amount"] = "Enter an amount of at least 0.01"
	}
	in.Amount = amount

	in.Description = f.Description
	if f.Description == "" {
		errs["description"] = "Description is required"
	} else if len([]rune(f.Description)) > core.MaxDescriptionLength {
		errs["description"] = core.ErrDescriptionTooLong.Error()
	}

	date, err := core.ParseDate(f.Date)
	if err != nil {
		errs["date"] = "Pick a valid date"
	}
	in.Date = date

	id, err := strconv.ParseInt(f.CategoryID, 10, 64)
	if err != nil || id <= 0 {
		errs["category_id"] = "Choose a category"
	}
	in.CategoryID = id

	if f.AccountID != "" {
		acc, err := strconv.ParseInt(f.AccountID, 10, 64)
		if err != nil || acc < 0 {
			errs["account_id"] = "Choose an account"
		}
		in.AccountID = acc
	}
	return in, errs
}

type CategoryForm struct {
	Name        string
	Description string
	Color       string
}

func bindCategoryForm(p *RequestBodyParser) CategoryForm {
	return CategoryForm{
		Name:        p.Get("name"),
		Description: p.Get("description"),
		Color:       strings.ToLower(p.Get("color")),
	}
}

func (f CategoryForm) ToInput() (services.CategoryInput, FieldErrors) {
	errs := FieldErrors{}
	if f.Name == "" {
		errs["name"] = "Name is required"
	}
	if f.Color != "" && !core.ValidColor(f.Color) {
		errs["color"] = core.ErrInvalidColor.Error()
	}
	return services.CategoryInput{Name: f.Name, Description: f.Description, Color: f.Color}, errs
}

// parseBudgetAmount reads a non-negative money field. Empty means zero.
func parseBudgetAmount(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, true
	}
	d, err := core.ParseNonNegativeAmount(s)
	return d, err == nil
}

type RegisterForm struct {
	Name     string
	Email    string
	Password string
	Confirm  string
}

func bindRegisterForm(p *RequestBodyParser) RegisterForm {
	return RegisterForm{
		Name:     p.Get("name"),
		Email:    p.Get("email"),
		Password: p.Raw("password"),
		Confirm:  p.Raw("confirm_password"),
	}
}

func (f RegisterForm) ToInput() (services.RegisterInput, FieldErrors) {
	errs := FieldErrors{}
	if f.Name == "" {
		errs["name"] = "Name is required"
	}
	if f.Email == "" {
		errs["email"] = "Email is required"
	}
	if f.Password != f.Confirm {
		errs["confirm_password"] = "Passwords do not match"
	}
	return services.RegisterInput{Name: f.Name, Email: f.Email, Password: f.Password}, errs
}

type LoginForm struct {
	Email    string
	Password string
}

func bindLoginForm(p *RequestBodyParser) LoginForm {
	return LoginForm{Email: p.Get("email"), Password: p.Raw("password")}
}

type BudgetForm struct {
	MonthlyBudget  string
	AlertThreshold string
	WeeklyReport   bool
	MonthlyReport  bool
}

func bindBudgetForm(p *RequestBodyParser) BudgetForm {
	return BudgetForm{
		MonthlyBudget:  p.Get("monthly_budget"),
		AlertThreshold: p.Get("alert_threshold"),
		WeeklyReport:   p.Bool("weekly_report"),
		MonthlyReport:  p.Bool("monthly_report"),
	}
}

func budgetFormFrom(u core.User) BudgetForm {
	return BudgetForm{
		MonthlyBudget:  u.MonthlyBudget.StringFixed(2),
		AlertThreshold: strconv.Itoa(u.AlertThreshold),
		WeeklyReport:   u.WeeklyReport,
		MonthlyReport:  u.MonthlyReport,
	}
}

func (f BudgetForm) ToInput() (services.BudgetSettings, FieldErrors) {
	errs := FieldErrors{}
	budget, ok := parseBudgetAmount(f.MonthlyBudget)
	if !ok {
		errs["monthly_budget"] = "Enter a budget of 0 or more"
	}
	threshold, err := strconv.Atoi(f.AlertThreshold)
	if err != nil || threshold < 0 || threshold > 100 {
		errs["alert_threshold"] = core.ErrInvalidThreshold.Error()
	}
	return services.BudgetSettings{
		MonthlyBudget:  budget,
		AlertThreshold: threshold,
		WeeklyReport:   f.WeeklyReport,
		MonthlyReport:  f.MonthlyReport,
	}, errs
}

type ProfileForm struct {
	Name  string
	Email string
}

func bindProfileForm(p *RequestBodyParser) ProfileForm {
	return ProfileForm{Name: p.Get("name"), Email: p.Get("email")}
}

type PasswordForm struct {
	Current string
	New     string
	Confirm string
}

func bindPasswordForm(p *RequestBodyParser) PasswordForm {
	return PasswordForm{
		Current: p.Raw("current_password"),
		New:     p.Raw("new_password"),
		Confirm: p.Raw("confirm_password"),
	}
}

func (f PasswordForm) Validate() FieldErrors {
	errs := FieldErrors{}
	if f.Current == "" {
		errs["current_password"] = "Enter your current password"
	}
	if f.New != f.Confirm {
		errs["confirm_password"] = "Passwords do not match"
	}
	return errs
}

type LinkAccountForm struct {
	BankID         string
	AccountNumber  string
	AccountName    string
	OpeningBalance string
	ExternalHandle string
}

func bindLinkAccountForm(p *RequestBodyParser) LinkAccountForm {
	return LinkAccountForm{
		BankID:         p.Get("bank_id"),
		AccountNumber:  p.Get("account_number"),
		AccountName:    p.Get("account_name"),
		OpeningBalance: p.Get("opening_balance"),
		ExternalHandle: p.Get("external_handle"),
	}
}

func (f LinkAccountForm) ToInput() (services.LinkAccountInput, FieldErrors) {
	errs := FieldErrors{}
	bank, err := strconv.ParseInt(f.BankID, 10, 64)
	if err != nil || bank <= 0 {
		errs["bank_id"] = "Choose a bank"
	}
	if f.AccountNumber == "" {
		errs["account_number"] = "Account number is required"
	}
	if f.AccountName == "" {
		errs["account_name"] = "Give the account a name"
	}
	balance := decimal.Zero
	if f.OpeningBalance != "" {
		b, err := decimal.NewFromString(f.OpeningBalance)
		if err != nil {
			errs["opening_balance"] = "Enter a number"
		}
		balance = b.Round(2)
	}
	return services.LinkAccountInput{
		BankID:         bank,
		AccountNumber:  f.AccountNumber,
		AccountName:    f.AccountName,
		OpeningBalance: balance,
		ExternalHandle: f.ExternalHandle,
	}, errs
}
