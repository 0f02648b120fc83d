package http

import (
	"net/http"

	"finsight/internal/services"
)

type budgetView struct {
	Form     BudgetForm
	Overview services.BudgetOverview
}

func (s *Server) renderBudget(w http.ResponseWriter, r *http.Request, p *page, status int, form BudgetForm) {
	o, err := s.svc.Ledger.Evaluate(r.Context(), userID(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	p.Data = budgetView{Form: form, Overview: o}
	s.render(w, r, status, "budget.html", p)
}

func (s *Server) handleBudgetPage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Budget", "budget")
	if !ok {
		return
	}
	s.renderBudget(w, r, p, http.StatusOK, budgetFormFrom(*p.User))
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindBudgetForm(parser)
	in, errs := form.ToInput()
	var err error
	if !errs.Any() {
		err = s.svc.Users.UpdateBudgetSettings(r.Context(), userID(r), in)
		if err != nil && statusFor(err) >= http.StatusInternalServerError {
			s.serverError(w, r, err)
			return
		}
	}
	if errs.Any() || err != nil {
		p, ok := s.newPage(w, r, "Budget", "budget")
		if !ok {
			return
		}
		p.Errors = errs
		if err != nil {
			p.Error = userMessage(err)
		}
		s.renderBudget(w, r, p, http.StatusUnprocessableEntity, form)
		return
	}
	if isHTMX(r) {
		NewHTMXResponse().
			TriggerBudgetRefresh().
			TriggerSuccessNotification("Budget settings saved.").
			Write(w)
		return
	}
	redirectWithFlash(w, r, "/budget", "success", "Budget settings saved.")
}

type profileView struct {
	Profile  ProfileForm
	Password PasswordForm
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Profile", "profile")
	if !ok {
		return
	}
	p.Data = profileView{Profile: ProfileForm{Name: p.User.Name, Email: p.User.Email}}
	s.render(w, r, http.StatusOK, "profile.html", p)
}

// profileFailure re-renders the profile page with the submitted values.
// Passwords are never echoed back.
func (s *Server) profileFailure(w http.ResponseWriter, r *http.Request, err error, errs FieldErrors, profile *ProfileForm) {
	if err != nil {
		if status := statusFor(err); status >= http.StatusInternalServerError || status == http.StatusNotFound {
			s.serverError(w, r, err)
			return
		}
	}
	p, ok := s.newPage(w, r, "Profile", "profile")
	if !ok {
		return
	}
	if errs != nil {
		p.Errors = errs
	}
	if err != nil {
		p.Error = userMessage(err)
	}
	view := profileView{Profile: ProfileForm{Name: p.User.Name, Email: p.User.Email}}
	if profile != nil {
		view.Profile = *profile
	}
	p.Data = view
	status := http.StatusUnprocessableEntity
	if err != nil && statusFor(err) == http.StatusConflict {
		status = http.StatusConflict
	}
	s.render(w, r, status, "profile.html", p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindProfileForm(parser)
	errs := FieldErrors{}
	if form.Name == "" {
		errs["name"] = "Name is required"
	}
	if form.Email == "" {
		errs["email"] = "Email is required"
	}
	if errs.Any() {
		s.profileFailure(w, r, nil, errs, &form)
		return
	}
	if err := s.svc.Users.UpdateProfile(r.Context(), userID(r), form.Name, form.Email); err != nil {
		s.profileFailure(w, r, err, nil, &form)
		return
	}
	redirectWithFlash(w, r, "/profile", "success", "Profile updated.")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindPasswordForm(parser)
	if errs := form.Validate(); errs.Any() {
		s.profileFailure(w, r, nil, errs, nil)
		return
	}
	uid := userID(r)
	if err := s.svc.Users.ChangePassword(r.Context(), uid, form.Current, form.New); err != nil {
		s.profileFailure(w, r, err, nil, nil)
		return
	}
	s.reqLogger(r).InfoContext(r.Context(), "Password changed", "user_id", uid)
	redirectWithFlash(w, r, "/profile", "success", "Password changed.")
}
