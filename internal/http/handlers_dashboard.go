package http

import (
	"net/http"

	"finsight/internal/services"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Dashboard", "dashboard")
	if !ok {
		return
	}
	d, err := s.svc.Dashboard.Load(r.Context(), userID(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	p.Unread = d.UnreadCount
	p.Data = d
	s.render(w, r, http.StatusOK, "dashboard.html", p)
}

// budgetJSON is the /api/v1/budget payload.
type budgetJSON struct {
	Month          string `json:"month"`
	From           string `json:"from"`
	To             string `json:"to"`
	Budget         string `json:"budget"`
	Spent          string `json:"spent"`
	Remaining      string `json:"remaining"`
	PercentageUsed string `json:"percentage_used"`
	Threshold      int    `json:"alert_threshold"`
	ShouldAlert    bool   `json:"should_alert"`
	Level          string `json:"level"`
}

func budgetPayload(o services.BudgetOverview) budgetJSON {
	return budgetJSON{
		Month:          o.Month.Label(),
		From:           o.Month.From.String(),
		To:             o.Month.To.String(),
		Budget:         o.Status.Budget.StringFixed(2),
		Spent:          o.Status.Spent.StringFixed(2),
		Remaining:      o.Status.Remaining.StringFixed(2),
		PercentageUsed: o.Status.DisplayPercentage(),
		Threshold:      o.Threshold,
		ShouldAlert:    o.ShouldAlert,
		Level:          o.Level,
	}
}

func (s *Server) handleAPIBudget(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.Ledger.Evaluate(r.Context(), userID(r))
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetPayload(o))
}

// apiError answers a JSON endpoint failure.
func (s *Server) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.reqLogger(r).ErrorContext(r.Context(), "API request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": userMessage(err)})
}
