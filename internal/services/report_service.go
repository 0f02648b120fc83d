package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

// ErrExportDisabled is returned when no report exporter is configured.
var ErrExportDisabled = errors.New("report export is not configured")

type ReportStore interface {
	ports.UserStore
	ports.CategoryStore
	ports.ExpenseStore
}

// ReportRequest selects the period a report covers. From and To are only
// read for the custom period.
type ReportRequest struct {
	Period core.Period
	From   string
	To     string
}

// ChartData is the JSON shape consumed by the report charts.
type ChartData struct {
	Labels     []string        `json:"labels"`
	Daily      []string        `json:"daily"`
	Categories []ChartCategory `json:"categories"`
	Total      string          `json:"total"`
}

type ChartCategory struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	Amount string `json:"amount"`
	Share  string `json:"share"`
}

type ReportService struct {
	store    ReportStore
	exporter ports.ReportExporter
	logger   *log.Logger
	now      func() time.Time
}

// NewReportService builds the service; exporter may be nil.
func NewReportService(store ReportStore, exporter ports.ReportExporter, logger *log.Logger) *ReportService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportService{store: store, exporter: exporter, logger: logger, now: time.Now}
}

func (s *ReportService) ExportEnabled() bool { return s.exporter != nil }

func (s *ReportService) Build(ctx context.Context, userID int64, req ReportRequest) (core.Report, error) {
	period := req.Period
	if period == "" {
		period = core.PeriodMonth
	}
	r, err := core.ResolvePeriod(period, s.now(), req.From, req.To)
	if err != nil {
		return core.Report{}, err
	}
	return s.BuildRange(ctx, userID, period, r)
}

// BuildRange reports on an already resolved range.
func (s *ReportService) BuildRange(ctx context.Context, userID int64, period core.Period, r core.DateRange) (core.Report, error) {
	expenses, err := s.store.ListExpenses(ctx, userID, ports.ExpenseFilter{From: r.From, To: r.To})
	if err != nil {
		return core.Report{}, fmt.Errorf("list report expenses: %w", err)
	}
	budgets, err := s.store.ListCategoryBudgets(ctx, userID)
	if err != nil {
		return core.Report{}, fmt.Errorf("list category budgets: %w", err)
	}
	caps := make(map[int64]decimal.Decimal, len(budgets))
	for _, b := range budgets {
		caps[b.CategoryID] = b.Amount
	}
	return core.BuildReport(period, r, expenses, caps), nil
}

var csvHeader = []string{"Date", "Category", "Description", "Amount", "Source", "Reference"}

// WriteCSV writes one row per expense in the report.
func WriteCSV(w io.Writer, rep core.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range rep.Expenses {
		row := []string{
			e.Date.String(),
			e.CategoryName,
			e.Description,
			e.Amount.StringFixed(2),
			string(e.Source),
			e.ReferenceNumber,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVFilename names the download for a report range.
func CSVFilename(rep core.Report) string {
	return fmt.Sprintf("expenses_%s_%s.csv", rep.Range.From, rep.Range.To)
}

// ExportToSheets pushes the report to the configured spreadsheet and returns
// the sheet URL.
func (s *ReportService) ExportToSheets(ctx context.Context, userID int64, req ReportRequest) (string, error) {
	if s.exporter == nil {
		return "", ErrExportDisabled
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	rep, err := s.Build(ctx, userID, req)
	if err != nil {
		return "", err
	}
	url, err := s.exporter.ExportReport(ctx, user, rep)
	if err != nil {
		s.logger.ErrorContext(ctx, "Report export failed",
			log.FieldUserID, userID,
			log.FieldOperation, log.OpExport,
			log.FieldError, err)
		return "", fmt.Errorf("export report: %w", err)
	}
	s.logger.InfoContext(ctx, "Report exported",
		log.FieldUserID, userID,
		log.FieldCount, len(rep.Expenses))
	return url, nil
}

// Chart reduces a report to the series the charts draw.
func Chart(rep core.Report) ChartData {
	out := ChartData{
		Labels:     make([]string, 0, len(rep.Daily)),
		Daily:      make([]string, 0, len(rep.Daily)),
		Categories: make([]ChartCategory, 0, len(rep.ByCategory)),
		Total:      rep.Total.StringFixed(2),
	}
	for _, d := range rep.Daily {
		out.Labels = append(out.Labels, d.Date.String())
		out.Daily = append(out.Daily, d.Amount.StringFixed(2))
	}
	for _, c := range rep.ByCategory {
		out.Categories = append(out.Categories, ChartCategory{
			Name:   c.Name,
			Color:  c.Color,
			Amount: c.Amount.StringFixed(2),
			Share:  strconv.FormatFloat(c.Share.InexactFloat64(), 'f', 1, 64),
		})
	}
	return out
}
