package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"finsight/internal/core"
)

type recordingExporter struct {
	got core.Report
	err error
}

func (r *recordingExporter) ExportReport(_ context.Context, _ core.User, rep core.Report) (string, error) {
	r.got = rep
	return "https://sheets.example/1", r.err
}

func seedReport(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	food := env.categoryID(t, "Food & Dining")
	fun := env.categoryID(t, "Entertainment")
	for _, in := range []ExpenseInput{
		{CategoryID: food, Amount: dec("30"), Description: "Lunch", Date: core.NewDate(2024, 4, 2)},
		{CategoryID: food, Amount: dec("20"), Description: "Coffee, beans", Date: core.NewDate(2024, 4, 10)},
		{CategoryID: fun, Amount: dec("50"), Description: "Concert", Date: core.NewDate(2024, 4, 12)},
		{CategoryID: fun, Amount: dec("15"), Description: "March movie", Date: core.NewDate(2024, 3, 30)},
	} {
		if _, err := env.ledger.AddExpense(ctx, env.user.ID, in); err != nil {
			t.Fatalf("AddExpense(%s) error = %v", in.Description, err)
		}
	}
}

func newReportService(env *testEnv, exp *recordingExporter) *ReportService {
	var s *ReportService
	if exp == nil {
		s = NewReportService(env.store, nil, nil)
	} else {
		s = NewReportService(env.store, exp, nil)
	}
	s.now = func() time.Time { return testNow }
	return s
}

func TestReportService_BuildMonth(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	seedReport(t, env)
	svc := newReportService(env, nil)

	rep, err := svc.Build(context.Background(), env.user.ID, ReportRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Period != core.PeriodMonth {
		t.Errorf("period = %s, want month", rep.Period)
	}
	if !rep.Total.Equal(dec("100")) || rep.Count != 3 {
		t.Errorf("total = %s count = %d, want 100/3", rep.Total, rep.Count)
	}
	// Equal totals order by name.
	if len(rep.ByCategory) != 2 || rep.ByCategory[0].Name != "Entertainment" {
		t.Errorf("by category = %+v", rep.ByCategory)
	}
	if len(rep.Daily) != 30 {
		t.Errorf("daily points = %d, want 30", len(rep.Daily))
	}
	if len(rep.Expenses) != 3 || rep.Expenses[0].Description != "Concert" {
		t.Errorf("expenses = %+v, want newest first", rep.Expenses)
	}
}

func TestReportService_BuildCustomInvalid(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	svc := newReportService(env, nil)

	_, err := svc.Build(context.Background(), env.user.ID, ReportRequest{Period: core.PeriodCustom, From: "2024-04-10", To: "2024-04-01"})
	if !errors.Is(err, core.ErrInvalidPeriod) {
		t.Errorf("Build() error = %v, want ErrInvalidPeriod", err)
	}
}

func TestWriteCSV(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	seedReport(t, env)
	svc := newReportService(env, nil)
	rep, err := svc.Build(context.Background(), env.user.ID, ReportRequest{Period: core.PeriodYear})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rep); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv does not parse: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want header + 4", len(rows))
	}
	if rows[0][0] != "Date" || rows[0][3] != "Amount" {
		t.Errorf("header = %v", rows[0])
	}
	var quoted bool
	for _, r := range rows[1:] {
		if r[2] == "Coffee, beans" {
			quoted = true
			if r[3] != "20.00" || r[4] != "manual" {
				t.Errorf("row = %v", r)
			}
		}
	}
	if !quoted {
		t.Error("description containing a comma did not round trip")
	}
	if got := CSVFilename(rep); got != "expenses_2024-01-01_2024-12-31.csv" {
		t.Errorf("CSVFilename() = %q", got)
	}
}

func TestReportService_ExportToSheets(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	seedReport(t, env)
	ctx := context.Background()

	if _, err := newReportService(env, nil).ExportToSheets(ctx, env.user.ID, ReportRequest{}); !errors.Is(err, ErrExportDisabled) {
		t.Errorf("ExportToSheets() without exporter error = %v", err)
	}

	exp := &recordingExporter{}
	url, err := newReportService(env, exp).ExportToSheets(ctx, env.user.ID, ReportRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if url == "" || exp.got.Count != 3 {
		t.Errorf("export = %q with %d expenses", url, exp.got.Count)
	}

	exp.err = errors.New("quota")
	if _, err := newReportService(env, exp).ExportToSheets(ctx, env.user.ID, ReportRequest{}); err == nil {
		t.Error("expected exporter error to surface")
	}
}

func TestChart(t *testing.T) {
	r := core.DateRange{From: core.NewDate(2024, 4, 1), To: core.NewDate(2024, 4, 3)}
	rep := core.BuildReport(core.PeriodCustom, r, []core.Expense{
		{ID: 1, CategoryID: 1, CategoryName: "Food", CategoryColor: "#e15759", Amount: dec("10"), Date: core.NewDate(2024, 4, 2)},
	}, nil)

	c := Chart(rep)
	if len(c.Labels) != 3 || c.Daily[1] != "10.00" || c.Daily[0] != "0.00" {
		t.Errorf("chart series = %v %v", c.Labels, c.Daily)
	}
	if len(c.Categories) != 1 || c.Categories[0].Share != "100.0" {
		t.Errorf("chart categories = %+v", c.Categories)
	}
}
