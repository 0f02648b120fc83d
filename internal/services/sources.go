package services

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/ports"
)

var (
	_ ports.TransactionSource = (*MockSource)(nil)
	_ ports.TransactionSource = (*FixedSource)(nil)
)

type merchant struct {
	name     string
	category string
}

// mockMerchants mixes seeded category names with ones that do not exist yet,
// so a mock sync also exercises category creation.
var mockMerchants = []merchant{
	{"Whole Foods Market", "Food & Dining"},
	{"Trader Joe's", "Food & Dining"},
	{"Shell Gas Station", "Transportation"},
	{"Uber Trip", "Transportation"},
	{"Netflix Subscription", "Entertainment"},
	{"CVS Pharmacy", "Healthcare"},
	{"Amazon Marketplace", "Shopping"},
	{"City Water & Power", "Utilities"},
	{"Starbucks", "Coffee Shops"},
	{"Planet Fitness", "Fitness"},
	{"Coursera", "Education"},
	{"Delta Air Lines", "Travel"},
}

// MockSource fabricates 5 to 10 plausible card transactions per fetch, dated
// within the last 30 days, each with a fresh TXN-<uuid> reference.
type MockSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewMockSource uses rng when non-nil, otherwise a time-seeded generator.
func NewMockSource(rng *rand.Rand) *MockSource {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &MockSource{rng: rng, now: time.Now}
}

func (m *MockSource) FetchTransactions(ctx context.Context, _ core.LinkedAccount) ([]core.ExternalTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	today := core.DateOf(m.now())
	n := 5 + m.rng.IntN(6)
	out := make([]core.ExternalTransaction, 0, n)
	for range n {
		mc := mockMerchants[m.rng.IntN(len(mockMerchants))]
		cents := int64(500 + m.rng.IntN(24501))
		out = append(out, core.ExternalTransaction{
			Date:              today.AddDays(-m.rng.IntN(30)),
			Description:       mc.name,
			Amount:            decimal.New(cents, -2),
			CategoryName:      mc.category,
			ExternalReference: "TXN-" + uuid.NewString(),
		})
	}
	return out, nil
}

// FixedSource replays the same transactions on every fetch.
type FixedSource struct {
	Transactions []core.ExternalTransaction
	Err          error
}

func (f *FixedSource) FetchTransactions(context.Context, core.LinkedAccount) ([]core.ExternalTransaction, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]core.ExternalTransaction(nil), f.Transactions...), nil
}
