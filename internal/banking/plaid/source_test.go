package plaid

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
)

type fakeAPI struct {
	pages   [][]txn
	total   int32
	err     error
	offsets []int32
	start   string
	end     string
}

func (f *fakeAPI) transactionsPage(_ context.Context, _ string, start, end string, offset int32) ([]txn, int32, error) {
	f.offsets = append(f.offsets, offset)
	f.start, f.end = start, end
	if f.err != nil {
		return nil, 0, f.err
	}
	i := len(f.offsets) - 1
	if i >= len(f.pages) {
		return nil, f.total, nil
	}
	return f.pages[i], f.total, nil
}

func TestToExternal(t *testing.T) {
	tests := []struct {
		name     string
		in       txn
		ok       bool
		desc     string
		category string
		amount   string
	}{
		{"merchant preferred", txn{ID: "a", Date: "2024-04-10", Amount: 12.345, Name: "SQ *BLUE BOTTLE", Merchant: "Blue Bottle", Category: "FOOD_AND_DRINK"}, true, "Blue Bottle", "Food & Dining", "12.35"},
		{"name fallback", txn{ID: "b", Date: "2024-04-10", Amount: 40, Name: "Shell"}, true, "Shell", "Other", "40"},
		{"unknown category humanized", txn{ID: "c", Date: "2024-04-10", Amount: 5, Name: "x", Category: "GOVERNMENT_AND_NON_PROFIT"}, true, "x", "Government And Non Profit", "5"},
		{"legacy category", txn{ID: "d", Date: "2024-04-10", Amount: 5, Name: "x", Legacy: []string{"Recreation", "Gyms"}}, true, "x", "Recreation", "5"},
		{"pending dropped", txn{ID: "e", Date: "2024-04-10", Amount: 5, Pending: true}, false, "", "", ""},
		{"credit dropped", txn{ID: "f", Date: "2024-04-10", Amount: -100}, false, "", "", ""},
		{"bad date dropped", txn{ID: "g", Date: "10/04/2024", Amount: 5}, false, "", "", ""},
		{"missing id dropped", txn{Date: "2024-04-10", Amount: 5}, false, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toExternal(tt.in)
			if ok != tt.ok {
				t.Fatalf("toExternal() ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Description != tt.desc || got.CategoryName != tt.category || got.Amount.String() != tt.amount {
				t.Errorf("toExternal() = %q/%q/%s, want %q/%q/%s",
					got.Description, got.CategoryName, got.Amount, tt.desc, tt.category, tt.amount)
			}
			if got.ExternalReference != tt.in.ID {
				t.Errorf("ExternalReference = %q, want %q", got.ExternalReference, tt.in.ID)
			}
		})
	}
}

func TestFetchTransactionsPaginates(t *testing.T) {
	api := &fakeAPI{
		total: 3,
		pages: [][]txn{
			{{ID: "1", Date: "2024-04-01", Amount: 10, Name: "a"}, {ID: "2", Date: "2024-04-02", Amount: 5, Name: "b", Pending: true}},
			{{ID: "3", Date: "2024-04-03", Amount: 7, Name: "c"}},
		},
	}
	s := newSource(api, 10*24*time.Hour, log.Discard())
	s.now = func() time.Time { return time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC) }

	got, err := s.FetchTransactions(context.Background(), core.LinkedAccount{ID: 1, ExternalHandle: "access-sandbox-1"})
	if err != nil {
		t.Fatalf("FetchTransactions() error = %v", err)
	}
	if len(got) != 2 || got[0].ExternalReference != "1" || got[1].ExternalReference != "3" {
		t.Errorf("FetchTransactions() = %+v", got)
	}
	if len(api.offsets) != 2 || api.offsets[1] != 2 {
		t.Errorf("offsets = %v, want [0 2]", api.offsets)
	}
	if api.start != "2024-04-05" || api.end != "2024-04-15" {
		t.Errorf("window = %s..%s", api.start, api.end)
	}
}

func TestFetchTransactionsErrors(t *testing.T) {
	s := newSource(&fakeAPI{}, 0, log.Discard())
	if _, err := s.FetchTransactions(context.Background(), core.LinkedAccount{}); !errors.Is(err, ErrNoAccessToken) {
		t.Errorf("FetchTransactions() without token error = %v", err)
	}

	boom := errors.New("ITEM_LOGIN_REQUIRED")
	s = newSource(&fakeAPI{err: boom}, 0, log.Discard())
	if _, err := s.FetchTransactions(context.Background(), core.LinkedAccount{ExternalHandle: "tok"}); !errors.Is(err, boom) {
		t.Errorf("FetchTransactions() error = %v, want %v", err, boom)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sandbox", Config{ClientID: "id", Secret: "s", Env: "sandbox"}, false},
		{"default env", Config{ClientID: "id", Secret: "s"}, false},
		{"production", Config{ClientID: "id", Secret: "s", Env: "Production"}, false},
		{"unknown env", Config{ClientID: "id", Secret: "s", Env: "staging"}, true},
		{"missing secret", Config{ClientID: "id"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
