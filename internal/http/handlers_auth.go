package http

import (
	"errors"
	"net/http"

	"finsight/internal/core"
	"finsight/internal/log"
)

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	p, _ := s.newPage(w, r, "Sign in", "login")
	p.Data = LoginForm{}
	s.render(w, r, http.StatusOK, "login.html", p)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindLoginForm(parser)

	user, err := s.svc.Users.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		if !errors.Is(err, core.ErrInvalidCredentials) {
			s.serverError(w, r, err)
			return
		}
		s.reqLogger(r).WarnContext(r.Context(), "Login failed",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldErrorType, log.ErrorTypeAuth)
		p, _ := s.newPage(w, r, "Sign in", "login")
		p.Error = userMessage(err)
		p.Data = LoginForm{Email: form.Email}
		s.render(w, r, http.StatusUnprocessableEntity, "login.html", p)
		return
	}

	if err := s.sessions.Login(w, user.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.reqLogger(r).InfoContext(r.Context(), "User signed in", log.FieldUserID, user.ID)
	redirectWithFlash(w, r, "/dashboard", "success", "Welcome back, "+user.Name+".")
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	p, _ := s.newPage(w, r, "Create account", "register")
	p.Data = RegisterForm{}
	s.render(w, r, http.StatusOK, "register.html", p)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindRegisterForm(parser)

	fail := func(msg string, errs FieldErrors) {
		p, _ := s.newPage(w, r, "Create account", "register")
		p.Error = msg
		if errs != nil {
			p.Errors = errs
		}
		p.Data = RegisterForm{Name: form.Name, Email: form.Email}
		s.render(w, r, http.StatusUnprocessableEntity, "register.html", p)
	}

	in, errs := form.ToInput()
	if errs.Any() {
		fail("", errs)
		return
	}
	user, err := s.svc.Users.Register(r.Context(), in)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.serverError(w, r, err)
			return
		}
		fail(userMessage(err), nil)
		return
	}

	if err := s.sessions.Login(w, user.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	redirectWithFlash(w, r, "/budget", "success", "Your account is ready. Set a monthly budget to get started.")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(w)
	redirectWithFlash(w, r, "/login", "info", "You have been signed out.")
}
