package http

import (
	"net/http"

	"finsight/internal/core"
	"finsight/internal/services"
)

type categoriesView struct {
	Categories []services.CategoryView
	Form       CategoryForm
	// EditID marks the row whose inline form failed validation.
	EditID   int64
	EditForm CategoryForm
}

func (s *Server) renderCategories(w http.ResponseWriter, r *http.Request, p *page, status int, view categoriesView) {
	cats, err := s.svc.Categories.List(r.Context(), userID(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	view.Categories = cats
	if view.Form.Color == "" {
		view.Form.Color = "#3b82f6"
	}
	p.Data = view
	s.render(w, r, status, "categories.html", p)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Categories", "categories")
	if !ok {
		return
	}
	s.renderCategories(w, r, p, http.StatusOK, categoriesView{})
}

// categoryFailure re-renders the page with err, or hands off to serverError
// when err is not something the user can fix.
func (s *Server) categoryFailure(w http.ResponseWriter, r *http.Request, err error, errs FieldErrors, view categoriesView) {
	status := http.StatusUnprocessableEntity
	if err != nil {
		status = statusFor(err)
		if status >= http.StatusInternalServerError || status == http.StatusNotFound || status == http.StatusForbidden {
			s.serverError(w, r, err)
			return
		}
	}
	if isHTMX(r) && err != nil {
		ErrorResponse(status, userMessage(err)).TriggerErrorNotification(userMessage(err)).Write(w)
		return
	}
	p, ok := s.newPage(w, r, "Categories", "categories")
	if !ok {
		return
	}
	if errs != nil {
		p.Errors = errs
	}
	if err != nil {
		p.Error = userMessage(err)
	}
	s.renderCategories(w, r, p, status, view)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindCategoryForm(parser)
	in, errs := form.ToInput()
	if errs.Any() {
		s.categoryFailure(w, r, nil, errs, categoriesView{Form: form})
		return
	}
	c, err := s.svc.Categories.Create(r.Context(), userID(r), in)
	if err != nil {
		s.categoryFailure(w, r, err, nil, categoriesView{Form: form})
		return
	}
	redirectWithFlash(w, r, "/categories", "success", "Category \""+c.Name+"\" created.")
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
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
	form := bindCategoryForm(parser)
	view := categoriesView{EditID: id, EditForm: form}
	in, errs := form.ToInput()
	if errs.Any() {
		s.categoryFailure(w, r, nil, errs, view)
		return
	}
	if err := s.svc.Categories.Update(r.Context(), userID(r), id, in); err != nil {
		s.categoryFailure(w, r, err, nil, view)
		return
	}
	redirectWithFlash(w, r, "/categories", "success", "Category updated.")
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if err := s.svc.Categories.Delete(r.Context(), userID(r), id); err != nil {
		s.categoryFailure(w, r, err, nil, categoriesView{})
		return
	}
	if isHTMX(r) {
		NewHTMXResponse().
			TriggerBudgetRefresh().
			TriggerSuccessNotification("Category deleted.").
			Write(w)
		return
	}
	redirectWithFlash(w, r, "/categories", "success", "Category deleted.")
}

func (s *Server) handleCategoryBudget(w http.ResponseWriter, r *http.Request) {
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
	amount, valid := parseBudgetAmount(parser.Get("amount"))
	if !valid {
		s.categoryFailure(w, r, core.ErrInvalidBudget, nil, categoriesView{})
		return
	}
	if err := s.svc.Categories.SetBudget(r.Context(), userID(r), id, amount); err != nil {
		s.categoryFailure(w, r, err, nil, categoriesView{})
		return
	}
	msg := "Category budget set to " + core.FormatMoney(amount) + "."
	if amount.IsZero() {
		msg = "Category budget cleared."
	}
	redirectWithFlash(w, r, "/categories", "success", msg)
}
