package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"finsight/internal/core"

	"github.com/shopspring/decimal"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{ServiceAccountJSON: "{}"}, nil)
	if err == nil || err.Error() != "missing spreadsheet id" {
		t.Fatalf("New() error = %v, want missing spreadsheet id", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet"}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("New() error = %v", err)
	}
}

func TestNew_InvalidCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sheet", ServiceAccountJSON: "not-json"}, nil)
	if err == nil || !strings.Contains(err.Error(), "sheets service") {
		t.Fatalf("New() error = %v, want sheets service error", err)
	}
}

func TestCredentialsJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"inline", Config{ServiceAccountJSON: ` {"from":"inline"} `}, `{"from":"inline"}`, false},
		{"inline wins over file", Config{ServiceAccountJSON: `{"from":"inline"}`, ServiceAccountFile: file}, `{"from":"inline"}`, false},
		{"file", Config{ServiceAccountFile: file}, `{"from":"file"}`, false},
		{"missing file", Config{ServiceAccountFile: filepath.Join(dir, "nope.json")}, "", true},
		{"nothing", Config{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := credentialsJSON(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("credentialsJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("credentialsJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExportReport_Uninitialized(t *testing.T) {
	e := &Exporter{spreadsheetID: "sheet"}
	if _, err := e.ExportReport(context.Background(), core.User{ID: 1}, core.Report{}); err == nil {
		t.Fatal("expected error without a sheets service")
	}
}

func TestTabTitle(t *testing.T) {
	r := core.DateRange{From: core.NewDate(2024, 3, 1), To: core.NewDate(2024, 3, 31)}
	if got, want := tabTitle(" Report ", 7, r), "Report u7 2024-03-01..2024-03-31"; got != want {
		t.Errorf("tabTitle() = %q, want %q", got, want)
	}
	long := tabTitle(strings.Repeat("x", 120), 7, r)
	if len(long) != 100 {
		t.Errorf("tabTitle() length = %d, want 100", len(long))
	}
}

func TestA1(t *testing.T) {
	tests := []struct {
		title, cells, want string
	}{
		{"Report u1", "A1", "'Report u1'!A1"},
		{"Bob's", "", "'Bob''s'"},
	}
	for _, tt := range tests {
		if got := a1(tt.title, tt.cells); got != tt.want {
			t.Errorf("a1(%q, %q) = %q, want %q", tt.title, tt.cells, got, tt.want)
		}
	}
}

func TestSheetURL(t *testing.T) {
	want := "https://docs.google.com/spreadsheets/d/abc/edit#gid=42"
	if got := sheetURL("abc", 42); got != want {
		t.Errorf("sheetURL() = %q, want %q", got, want)
	}
}

func TestReportValues(t *testing.T) {
	rep := core.Report{
		Range:         core.DateRange{From: core.NewDate(2024, 3, 1), To: core.NewDate(2024, 3, 31)},
		Total:         decimal.RequireFromString("42.5"),
		Count:         2,
		AveragePerDay: decimal.RequireFromString("1.37"),
		ByCategory: []core.CategoryTotal{
			{Name: "Food", Amount: decimal.RequireFromString("42.5"), Count: 2, Share: decimal.NewFromInt(100)},
		},
		Expenses: []core.Expense{
			{Date: core.NewDate(2024, 3, 5), CategoryName: "Food", Description: "Lunch", Amount: decimal.RequireFromString("12.5"), Source: core.SourceManual},
			{Date: core.NewDate(2024, 3, 2), CategoryName: "Food", Description: "Groceries", Amount: decimal.NewFromInt(30), Source: core.SourceAutoSync, ReferenceNumber: "tx-1"},
		},
	}
	rows := reportValues(core.User{Name: "Ada"}, rep)

	// 5 summary rows, blank, header, 1 category, blank, header, 2 expenses
	if len(rows) != 12 {
		t.Fatalf("len(rows) = %d, want 12", len(rows))
	}
	if rows[0][1] != "Ada" {
		t.Errorf("report owner = %v", rows[0][1])
	}
	if rows[1][1] != "March 2024" {
		t.Errorf("period label = %v", rows[1][1])
	}
	if rows[2][1] != "42.50" {
		t.Errorf("total = %v, want 42.50", rows[2][1])
	}
	if rows[7][0] != "Food" || rows[7][3] != "100.0" {
		t.Errorf("category row = %v", rows[7])
	}
	last := rows[len(rows)-1]
	if last[3] != "30.00" || last[4] != "auto_sync" || last[5] != "tx-1" {
		t.Errorf("expense row = %v", last)
	}
}
