// Package plaid reads bank transactions from Plaid for account sync.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

const (
	pageSize        = 500
	defaultLookback = 30 * 24 * time.Hour
	plaidDate       = "2006-01-02"
)

// ErrNoAccessToken is returned for accounts linked without a Plaid access token.
var ErrNoAccessToken = errors.New("account has no Plaid access token")

type Config struct {
	ClientID string
	Secret   string
	Env      string // sandbox or production
	Lookback time.Duration
}

// txn is the subset of a Plaid transaction the sync uses.
type txn struct {
	ID       string
	Date     string
	Amount   float64
	Name     string
	Merchant string
	Category string // personal finance category, primary level
	Legacy   []string
	Pending  bool
}

type transactionsAPI interface {
	transactionsPage(ctx context.Context, accessToken, start, end string, offset int32) ([]txn, int32, error)
}

// Source implements ports.TransactionSource. The account's external handle
// is the Plaid access token.
type Source struct {
	api      transactionsAPI
	lookback time.Duration
	now      func() time.Time
	logger   *log.Logger
}

var _ ports.TransactionSource = (*Source)(nil)

func New(cfg Config, logger *log.Logger) (*Source, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if cfg.ClientID == "" || cfg.Secret == "" {
		return nil, errors.New("missing Plaid client id or secret")
	}
	env, err := environment(cfg.Env)
	if err != nil {
		return nil, err
	}
	pc := plaid.NewConfiguration()
	pc.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	pc.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	pc.UseEnvironment(env)

	return newSource(apiClient{c: plaid.NewAPIClient(pc)}, cfg.Lookback, logger), nil
}

func newSource(api transactionsAPI, lookback time.Duration, logger *log.Logger) *Source {
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &Source{
		api:      api,
		lookback: lookback,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentPlaid),
	}
}

func environment(name string) (plaid.Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sandbox":
		return plaid.Sandbox, nil
	case "production":
		return plaid.Production, nil
	default:
		return "", fmt.Errorf("unknown Plaid environment %q", name)
	}
}

// FetchTransactions returns the posted outflows of the lookback window.
// Pending transactions and credits are left out.
func (s *Source) FetchTransactions(ctx context.Context, account core.LinkedAccount) ([]core.ExternalTransaction, error) {
	if account.ExternalHandle == "" {
		return nil, ErrNoAccessToken
	}
	now := s.now()
	start := now.Add(-s.lookback).Format(plaidDate)
	end := now.Format(plaidDate)

	var (
		out     []core.ExternalTransaction
		offset  int32
		dropped int
	)
	for {
		page, total, err := s.api.transactionsPage(ctx, account.ExternalHandle, start, end, offset)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			if ext, ok := toExternal(t); ok {
				out = append(out, ext)
			} else {
				dropped++
			}
		}
		offset += int32(len(page))
		if len(page) == 0 || offset >= total {
			break
		}
	}

	s.logger.DebugContext(ctx, "Fetched Plaid transactions",
		log.FieldAccountID, account.ID,
		log.FieldCount, len(out),
		"dropped", dropped)
	return out, nil
}

func toExternal(t txn) (core.ExternalTransaction, bool) {
	if t.Pending || t.Amount <= 0 || t.ID == "" {
		return core.ExternalTransaction{}, false
	}
	d, err := core.ParseDate(t.Date)
	if err != nil {
		return core.ExternalTransaction{}, false
	}
	desc := t.Merchant
	if desc == "" {
		desc = t.Name
	}
	return core.ExternalTransaction{
		Date:              d,
		Description:       desc,
		Amount:            decimal.NewFromFloat(t.Amount).Round(2),
		CategoryName:      categoryName(t),
		ExternalReference: t.ID,
	}, true
}

// Plaid personal finance categories mapped onto the seeded category names.
var categoryNames = map[string]string{
	"FOOD_AND_DRINK":      "Food & Dining",
	"TRANSPORTATION":      "Transportation",
	"TRAVEL":              "Travel",
	"RENT_AND_UTILITIES":  "Utilities",
	"HOME_IMPROVEMENT":    "Housing",
	"ENTERTAINMENT":       "Entertainment",
	"MEDICAL":             "Healthcare",
	"GENERAL_MERCHANDISE": "Shopping",
	"PERSONAL_CARE":       "Personal Care",
	"GENERAL_SERVICES":    "Services",
	"LOAN_PAYMENTS":       "Loan Payments",
	"BANK_FEES":           "Bank Fees",
}

func categoryName(t txn) string {
	if t.Category != "" {
		if name, ok := categoryNames[t.Category]; ok {
			return name
		}
		return humanize(t.Category)
	}
	if len(t.Legacy) > 0 && t.Legacy[0] != "" {
		return t.Legacy[0]
	}
	return "Other"
}

// humanize turns GOVERNMENT_AND_NON_PROFIT into "Government And Non Profit".
func humanize(code string) string {
	words := strings.Split(strings.ToLower(code), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type apiClient struct {
	c *plaid.APIClient
}

func (a apiClient) transactionsPage(ctx context.Context, accessToken, start, end string, offset int32) ([]txn, int32, error) {
	req := plaid.NewTransactionsGetRequest(accessToken, start, end)
	opts := plaid.NewTransactionsGetRequestOptions()
	opts.SetCount(pageSize)
	opts.SetOffset(offset)
	req.SetOptions(*opts)

	resp, _, err := a.c.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*req).Execute()
	if err != nil {
		return nil, 0, plaidError(err)
	}
	page := make([]txn, 0, len(resp.GetTransactions()))
	for _, t := range resp.GetTransactions() {
		pfc := t.GetPersonalFinanceCategory()
		page = append(page, txn{
			ID:       t.GetTransactionId(),
			Date:     t.GetDate(),
			Amount:   t.GetAmount(),
			Name:     t.GetName(),
			Merchant: t.GetMerchantName(),
			Category: pfc.GetPrimary(),
			Legacy:   t.GetCategory(),
			Pending:  t.GetPending(),
		})
	}
	return page, resp.GetTotalTransactions(), nil
}

func plaidError(err error) error {
	var apiErr *plaid.GenericOpenAPIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("plaid transactions: %w", err)
	}
	pe, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return fmt.Errorf("plaid transactions: %w", err)
	}
	return fmt.Errorf("plaid transactions: %s: %s", pe.GetErrorCode(), pe.GetErrorMessage())
}
