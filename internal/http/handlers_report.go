package http

import (
	"bytes"
	"net/http"
	"net/url"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/services"
)

type reportView struct {
	Report        core.Report
	Request       services.ReportRequest
	Query         string
	ExportEnabled bool
	Periods       []core.Period
}

func (v reportView) CSVURL() string { return "/reports/export.csv?" + v.Query }

func (v reportView) ChartURL() string { return "/api/v1/reports/chart?" + v.Query }

func (v reportView) PeriodURL(p core.Period) string { return "/reports?period=" + string(p) }

var reportPeriods = []core.Period{
	core.PeriodWeek, core.PeriodMonth, core.PeriodQuarter, core.PeriodYear, core.PeriodCustom,
}

// reportRequest reads period, from and to from a query or form.
func reportRequest(v url.Values) (services.ReportRequest, error) {
	period, err := core.ParsePeriod(v.Get("period"))
	if err != nil {
		return services.ReportRequest{}, err
	}
	return services.ReportRequest{
		Period: period,
		From:   sanitizeInput(v.Get("from")),
		To:     sanitizeInput(v.Get("to")),
	}, nil
}

func reportQuery(req services.ReportRequest) string {
	v := url.Values{}
	v.Set("period", string(req.Period))
	if req.Period == core.PeriodCustom {
		v.Set("from", req.From)
		v.Set("to", req.To)
	}
	return v.Encode()
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	p, ok := s.newPage(w, r, "Reports", "reports")
	if !ok {
		return
	}
	view := reportView{ExportEnabled: s.svc.Reports.ExportEnabled(), Periods: reportPeriods}

	req, err := reportRequest(r.URL.Query())
	if err != nil {
		req = services.ReportRequest{Period: core.PeriodMonth}
		p.Error = userMessage(err)
	}
	rep, err := s.svc.Reports.Build(r.Context(), userID(r), req)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.serverError(w, r, err)
			return
		}
		// An unusable custom range falls back to the current month.
		p.Error = userMessage(err)
		p.Errors["from"] = "Check the date range"
		view.Request = req
		req = services.ReportRequest{Period: core.PeriodMonth}
		if rep, err = s.svc.Reports.Build(r.Context(), userID(r), req); err != nil {
			s.serverError(w, r, err)
			return
		}
	} else {
		view.Request = req
	}

	view.Report = rep
	view.Query = reportQuery(req)
	p.Data = view
	s.render(w, r, http.StatusOK, "reports.html", p)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	req, err := reportRequest(r.URL.Query())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	rep, err := s.svc.Reports.Build(r.Context(), userID(r), req)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := services.WriteCSV(&buf, rep); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.reqLogger(r).InfoContext(r.Context(), "CSV export",
		log.FieldUserID, userID(r),
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(rep.Expenses))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+services.CSVFilename(rep)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	parser, bad := ParseFormOrFail(r)
	if bad != nil {
		bad.Write(w)
		return
	}
	v := url.Values{}
	for _, k := range []string{"period", "from", "to"} {
		v.Set(k, parser.Get(k))
	}
	back := "/reports"
	req, err := reportRequest(v)
	if err != nil {
		redirectWithFlash(w, r, back, "error", userMessage(err))
		return
	}
	back += "?" + reportQuery(req)

	sheetURL, err := s.svc.Reports.ExportToSheets(r.Context(), userID(r), req)
	if err != nil {
		if isHTMX(r) {
			ErrorResponse(statusFor(err), userMessage(err)).TriggerErrorNotification(userMessage(err)).Write(w)
			return
		}
		redirectWithFlash(w, r, back, "error", userMessage(err))
		return
	}
	msg := "Report exported to Google Sheets: " + sheetURL
	if isHTMX(r) {
		NewHTMXResponse().TriggerSuccessNotification(msg).Write(w)
		return
	}
	redirectWithFlash(w, r, back, "success", msg)
}

func (s *Server) handleAPIChart(w http.ResponseWriter, r *http.Request) {
	req, err := reportRequest(r.URL.Query())
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	rep, err := s.svc.Reports.Build(r.Context(), userID(r), req)
	if err != nil {
		s.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services.Chart(rep))
}
