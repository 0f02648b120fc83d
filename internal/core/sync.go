package core

import (
	"github.com/shopspring/decimal"
)

// TransactionStatus is the outcome of reconciling one external transaction.
type TransactionStatus string

const (
	StatusImported TransactionStatus = "imported"
	StatusSkipped  TransactionStatus = "skipped"
	StatusError    TransactionStatus = "error"
)

// ExternalTransaction is a transaction as reported by a bank feed. Amount is
// the positive outflow.
type ExternalTransaction struct {
	Date              Date
	Description       string
	Amount            decimal.Decimal
	CategoryName      string
	ExternalReference string
}

type TransactionResult struct {
	ExternalTransaction
	Status    TransactionStatus
	ExpenseID int64
	Error     string
}

// SyncReport is the per-account result of a reconciliation run.
type SyncReport struct {
	AccountID    int64
	AccountName  string
	Imported     int
	Skipped      int
	Errored      int
	FetchError   string
	Transactions []TransactionResult
}

// Record appends a result and bumps the matching counter.
func (r *SyncReport) Record(res TransactionResult) {
	switch res.Status {
	case StatusImported:
		r.Imported++
	case StatusSkipped:
		r.Skipped++
	case StatusError:
		r.Errored++
	}
	r.Transactions = append(r.Transactions, res)
}

// SyncRunReport aggregates the reports of every account in a run.
type SyncRunReport struct {
	Accounts []SyncReport
	Imported int
	Skipped  int
	Errored  int
}

func (r *SyncRunReport) Add(rep SyncReport) {
	r.Accounts = append(r.Accounts, rep)
	r.Imported += rep.Imported
	r.Skipped += rep.Skipped
	r.Errored += rep.Errored
}
