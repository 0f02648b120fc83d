package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"finsight/internal/auth"
	"finsight/internal/core"
	"finsight/internal/services"
)

// sanitizeInput strips control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// userID returns the authenticated user. Routes using it sit behind
// auth.RequireUser, so a missing session is a wiring bug.
func userID(r *http.Request) int64 {
	s, ok := auth.FromContext(r.Context())
	if !ok {
		panic("http: userID called on an unauthenticated route")
	}
	return s.UserID
}

// statusFor maps a service error to the response status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrCategoryInUse), errors.Is(err, core.ErrAccountAlreadyLinked),
		errors.Is(err, core.ErrCategoryExists), errors.Is(err, core.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrExportDisabled):
		return http.StatusServiceUnavailable
	case core.IsDomainError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown for err. Internal failures never leak details.
func userMessage(err error) string {
	var budgetErr *core.BudgetExceededError
	switch {
	case errors.As(err, &budgetErr):
		return budgetErr.Error()
	case errors.Is(err, core.ErrCategoryInUse):
		return "This category still has expenses. Move or delete them first."
	case errors.Is(err, services.ErrExportDisabled):
		return "Google Sheets export is not configured."
	case core.IsDomainError(err):
		return domainMessage(err)
	default:
		return "Something went wrong. Please try again."
	}
}

// domainMessage returns the message of the sentinel err wraps, so that
// operation prefixes added while wrapping are not shown.
func domainMessage(err error) string {
	if cause := core.DomainCause(err); cause != nil {
		return capitalize(cause.Error())
	}
	return capitalize(err.Error())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
