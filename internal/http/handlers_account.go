package http

import (
	"errors"
	"fmt"
	"net/http"

	"finsight/internal/core"
	"finsight/internal/log"
)

type accountsView struct {
	Accounts []core.LinkedAccount
	Banks    []core.Bank
	Form     LinkAccountForm
}

func (s *Server) renderAccounts(w http.ResponseWriter, r *http.Request, p *page, status int, form LinkAccountForm) {
	uid := userID(r)
	accounts, err := s.svc.Accounts.List(r.Context(), uid, false)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	banks, err := s.svc.Accounts.Banks(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	p.Data = accountsView{Accounts: accounts, Banks: banks, Form: form}
	s.render(w, r, status, "accounts.html", p)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Bank accounts", "accounts")
	if !ok {
		return
	}
	s.renderAccounts(w, r, p, http.StatusOK, LinkAccountForm{})
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	form := bindLinkAccountForm(parser)
	in, errs := form.ToInput()

	var (
		acct        core.LinkedAccount
		reactivated bool
		err         error
	)
	if !errs.Any() {
		acct, reactivated, err = s.svc.Accounts.Link(r.Context(), userID(r), in)
		switch {
		case errors.Is(err, core.ErrNotFound):
			errs["bank_id"] = "Choose a bank"
			err = nil
		case err != nil && statusFor(err) >= http.StatusInternalServerError:
			s.serverError(w, r, err)
			return
		}
	}
	if errs.Any() || err != nil {
		p, ok := s.newPage(w, r, "Bank accounts", "accounts")
		if !ok {
			return
		}
		p.Errors = errs
		status := http.StatusUnprocessableEntity
		if err != nil {
			p.Error = userMessage(err)
			status = statusFor(err)
		}
		form.AccountNumber = ""
		s.renderAccounts(w, r, p, status, form)
		return
	}

	msg := "Account " + acct.MaskedNumber() + " linked."
	if reactivated {
		msg = "Account " + acct.MaskedNumber() + " re-linked."
	}
	redirectWithFlash(w, r, "/accounts", "success", msg)
}

func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if err := s.svc.Accounts.Unlink(r.Context(), userID(r), id); err != nil {
		s.serverError(w, r, err)
		return
	}
	redirectWithFlash(w, r, "/accounts", "success", "Account unlinked. Its imported expenses were kept.")
}

// syncSummary turns a run report into the flash shown after a sync.
func syncSummary(rep core.SyncRunReport) (kind, msg string) {
	if len(rep.Accounts) == 0 {
		return "info", "No linked accounts to sync."
	}
	msg = fmt.Sprintf("Sync finished: %d imported, %d already present", rep.Imported, rep.Skipped)
	if rep.Errored > 0 {
		return "warning", msg + fmt.Sprintf(", %d failed.", rep.Errored)
	}
	for _, a := range rep.Accounts {
		if a.FetchError != "" {
			return "warning", msg + ". " + a.AccountName + " could not be reached."
		}
	}
	return "success", msg + "."
}

func (s *Server) syncResponse(w http.ResponseWriter, r *http.Request, rep core.SyncRunReport) {
	s.reqLogger(r).InfoContext(r.Context(), "Sync requested",
		log.NewFields().WithUser(userID(r)).WithSyncCounts(rep.Imported, rep.Skipped, rep.Errored).ToSlice()...)

	kind, msg := syncSummary(rep)
	if isHTMX(r) {
		NewHTMXResponse().TriggerBudgetRefresh().TriggerToast(Toast(kind), msg).Write(w)
		return
	}
	redirectWithFlash(w, r, "/accounts", kind, msg)
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	rep, err := s.svc.Accounts.SyncAll(r.Context(), userID(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.syncResponse(w, r, rep)
}

func (s *Server) handleSyncAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	rep, err := s.svc.Accounts.Sync(r.Context(), userID(r), id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.syncResponse(w, r, rep)
}
