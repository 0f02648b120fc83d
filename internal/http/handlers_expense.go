package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
	"finsight/internal/services"
)

type expenseListView struct {
	Result     services.ExpensePage
	Params     ListParams
	Query      string
	Categories []core.Category
}

// PageURL links to page n of the current filter.
func (v expenseListView) PageURL(n int) string {
	u := "/expenses?page=" + strconv.Itoa(n)
	if v.Query != "" {
		u += "&" + v.Query
	}
	return u
}

type expenseFormView struct {
	Form       ExpenseForm
	EditID     int64
	Categories []core.Category
	Accounts   []core.LinkedAccount
	Budget     services.BudgetOverview
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Expenses", "expenses")
	if !ok {
		return
	}
	uid := userID(r)
	params := ParseListParams(r.URL.Query())

	filter := ports.ExpenseFilter{CategoryID: params.CategoryID, Search: params.Search}
	if params.From != "" {
		if d, err := core.ParseDate(params.From); err == nil {
			filter.From = d
		} else {
			p.Errors["from"] = "Invalid start date"
		}
	}
	if params.To != "" {
		if d, err := core.ParseDate(params.To); err == nil {
			filter.To = d
		} else {
			p.Errors["to"] = "Invalid end date"
		}
	}

	result, err := s.svc.Ledger.ListExpenses(r.Context(), uid, services.ExpenseQuery{Filter: filter, Page: params.Page})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	cats, err := s.svc.Categories.Options(r.Context(), uid)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	p.Data = expenseListView{Result: result, Params: params, Query: params.Encode(), Categories: cats}
	s.render(w, r, http.StatusOK, "expenses.html", p)
}

// renderExpenseForm loads the pickers and budget figures around form.
func (s *Server) renderExpenseForm(w http.ResponseWriter, r *http.Request, p *page, status int, view expenseFormView) {
	uid := userID(r)
	var err error
	if view.Categories, err = s.svc.Categories.Options(r.Context(), uid); err != nil {
		s.serverError(w, r, err)
		return
	}
	if view.Accounts, err = s.svc.Accounts.List(r.Context(), uid, true); err != nil {
		s.serverError(w, r, err)
		return
	}
	if view.Budget, err = s.svc.Ledger.Evaluate(r.Context(), uid); err != nil {
		s.serverError(w, r, err)
		return
	}
	p.Data = view
	s.render(w, r, status, "expense_form.html", p)
}

func (s *Server) handleNewExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Add expense", "expenses")
	if !ok {
		return
	}
	form := ExpenseForm{Date: core.DateOf(time.Now()).String()}
	if c := r.URL.Query().Get("category"); c != "" {
		form.CategoryID = c
	}
	s.renderExpenseForm(w, r, p, http.StatusOK, expenseFormView{Form: form})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindExpenseForm(parser)
	uid := userID(r)

	in, errs := form.ToInput()
	var res services.AddExpenseResult
	var err error
	if !errs.Any() {
		res, err = s.svc.Ledger.AddExpense(r.Context(), uid, in)
	}
	if errs.Any() || err != nil {
		p, ok := s.newPage(w, r, "Add expense", "expenses")
		if !ok {
			return
		}
		p.Errors = errs
		status := http.StatusUnprocessableEntity
		if err != nil {
			status = s.expenseWriteFailure(r, p, err)
		}
		s.renderExpenseForm(w, r, p, status, expenseFormView{Form: form})
		return
	}

	msg := fmt.Sprintf("Expense of %s added. %s left this month.",
		core.FormatMoney(res.Expense.Amount), core.FormatMoney(res.Budget.Remaining))
	kind := "success"
	if res.Alerted {
		msg = fmt.Sprintf("Expense of %s added. You have used %s%% of your monthly budget.",
			core.FormatMoney(res.Expense.Amount), res.Budget.DisplayPercentage())
		kind = "warning"
	}
	redirectWithFlash(w, r, "/expenses", kind, msg)
}

// expenseWriteFailure puts err on the page and returns the status to render
// the form with. Storage failures keep the submitted values so the user can
// retry.
func (s *Server) expenseWriteFailure(r *http.Request, p *page, err error) int {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		p.Error = userMessage(err)
		return http.StatusUnprocessableEntity
	}
	s.reqLogger(r).ErrorContext(r.Context(), "Expense write failed",
		log.NewFields().WithUser(userID(r)).WithError(err).WithErrorType(log.ErrorTypeDatabase).ToSlice()...)
	p.Error = "Your expense could not be saved. Please try again."
	return http.StatusInternalServerError
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	p, ok := s.newPage(w, r, "Edit expense", "expenses")
	if !ok {
		return
	}
	e, err := s.svc.Ledger.GetExpense(r.Context(), userID(r), id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.renderExpenseForm(w, r, p, http.StatusOK, expenseFormView{Form: expenseFormFrom(e), EditID: id})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindExpenseForm(parser)

	in, errs := form.ToInput()
	var err error
	if !errs.Any() {
		err = s.svc.Ledger.UpdateExpense(r.Context(), userID(r), id, in)
		if err != nil && statusFor(err) == http.StatusNotFound {
			s.serverError(w, r, err)
			return
		}
	}
	if errs.Any() || err != nil {
		p, ok := s.newPage(w, r, "Edit expense", "expenses")
		if !ok {
			return
		}
		p.Errors = errs
		status := http.StatusUnprocessableEntity
		if err != nil {
			status = s.expenseWriteFailure(r, p, err)
		}
		s.renderExpenseForm(w, r, p, status, expenseFormView{Form: form, EditID: id})
		return
	}
	redirectWithFlash(w, r, "/expenses", "success", "Expense updated.")
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	uid := userID(r)
	if err := s.svc.Ledger.DeleteExpense(r.Context(), uid, id); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.reqLogger(r).InfoContext(r.Context(), "Expense deleted",
		log.FieldUserID, uid,
		log.FieldExpenseID, id)

	if isHTMX(r) {
		NewHTMXResponse().
			TriggerExpenseDeleted(id).
			TriggerBudgetRefresh().
			TriggerSuccessNotification("Expense deleted.").
			Write(w)
		return
	}
	target := "/expenses"
	if ref := r.URL.Query().Get("page"); ref != "" {
		if n, err := strconv.Atoi(ref); err == nil && n > 1 {
			target += "?page=" + strconv.Itoa(n)
		}
	}
	redirectWithFlash(w, r, target, "success", "Expense deleted.")
}
