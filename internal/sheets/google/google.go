package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const exportTimeout = 30 * time.Second

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID      string
	SheetName          string // prefix of every report tab
	ServiceAccountJSON string
	ServiceAccountFile string
}

// Exporter writes reports into one tab per user and date range.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ ports.ReportExporter = (*Exporter)(nil)

// New builds an Exporter with service account credentials. Inline JSON wins
// over the file path.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Exporter, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := credentialsJSON(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = "Report"
	}
	logger.InfoContext(ctx, "Google Sheets exporter ready", "spreadsheet_id", id, "sheet_prefix", name)
	return &Exporter{svc: svc, spreadsheetID: id, sheetName: name, logger: logger}, nil
}

func credentialsJSON(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// newSheetsService authenticates over a pooled transport.
func newSheetsService(ctx context.Context, credsJSON []byte) (*gsheet.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	creds, err := goauth.CredentialsFromJSON(base, credsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return gsheet.NewService(ctx, goption.WithHTTPClient(oauth2.NewClient(base, creds.TokenSource)))
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// ExportReport replaces the content of the report's tab and returns a link to it.
func (e *Exporter) ExportReport(ctx context.Context, user core.User, rep core.Report) (string, error) {
	if e.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()

	title := tabTitle(e.sheetName, user.ID, rep.Range)
	sheetID, err := e.ensureTab(ctx, title)
	if err != nil {
		return "", err
	}

	rows := reportValues(user, rep)
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, a1(title, "A1"), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("write %s: %w", title, err)
	}

	e.logger.InfoContext(ctx, "Report written",
		log.FieldUserID, user.ID,
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(rep.Expenses),
		"sheet", title)
	return sheetURL(e.spreadsheetID, sheetID), nil
}

// ensureTab returns the id of the named tab, creating it or clearing what an
// earlier export left there.
func (e *Exporter) ensureTab(ctx context.Context, title string) (int64, error) {
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties == nil || sh.Properties.Title != title {
			continue
		}
		if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, a1(title, ""), &gsheet.ClearValuesRequest{}).
			Context(ctx).Do(); err != nil {
			return 0, fmt.Errorf("clear %s: %w", title, err)
		}
		return sh.Properties.SheetId, nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	resp, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// tabTitle names the tab for one user and range. Sheets caps titles at 100 characters.
func tabTitle(base string, userID int64, r core.DateRange) string {
	title := fmt.Sprintf("%s u%d %s..%s", strings.TrimSpace(base), userID, r.From, r.To)
	if len(title) > 100 {
		title = title[:100]
	}
	return title
}

// a1 quotes a tab name for A1 notation and appends an optional cell range.
func a1(title, cells string) string {
	q := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if cells == "" {
		return q
	}
	return q + "!" + cells
}

func sheetURL(spreadsheetID string, sheetID int64) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d", spreadsheetID, sheetID)
}
