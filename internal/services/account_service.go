package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

type AccountStore interface {
	ports.UserStore
	ports.AccountStore
}

type LinkAccountInput struct {
	BankID         int64
	AccountNumber  string
	AccountName    string
	OpeningBalance decimal.Decimal
	// ExternalHandle is the bank feed credential, e.g. a Plaid access token.
	ExternalHandle string
}

type AccountService struct {
	store      AccountStore
	reconciler *SyncReconciler
	logger     *log.Logger
}

func NewAccountService(store AccountStore, reconciler *SyncReconciler, logger *log.Logger) *AccountService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AccountService{store: store, reconciler: reconciler, logger: logger.WithComponent(log.ComponentSync)}
}

func (s *AccountService) Banks(ctx context.Context) ([]core.Bank, error) {
	return s.store.ListBanks(ctx)
}

func (s *AccountService) List(ctx context.Context, userID int64, activeOnly bool) ([]core.LinkedAccount, error) {
	return s.store.ListAccounts(ctx, userID, activeOnly)
}

// Link attaches a bank account. Re-linking an unlinked account reactivates
// the existing row; linking an active one again is rejected.
func (s *AccountService) Link(ctx context.Context, userID int64, in LinkAccountInput) (core.LinkedAccount, bool, error) {
	number := normalizeAccountNumber(in.AccountNumber)
	if len(number) < 4 || len(number) > 20 {
		return core.LinkedAccount{}, false, core.ErrInvalidAccountNumber
	}
	name := strings.TrimSpace(in.AccountName)
	if name == "" {
		return core.LinkedAccount{}, false, core.ErrEmptyName
	}
	if _, err := s.store.GetBank(ctx, in.BankID); err != nil {
		return core.LinkedAccount{}, false, fmt.Errorf("bank: %w", err)
	}

	existing, err := s.store.FindAccount(ctx, userID, in.BankID, number)
	switch {
	case err == nil && existing.Active():
		return core.LinkedAccount{}, false, core.ErrAccountAlreadyLinked
	case err == nil:
		if err := s.store.ReactivateAccount(ctx, existing.ID, name, in.ExternalHandle); err != nil {
			return core.LinkedAccount{}, false, err
		}
		s.logger.InfoContext(ctx, "Account reactivated", log.FieldUserID, userID, log.FieldAccountID, existing.ID)
		acct, err := s.store.GetAccount(ctx, userID, existing.ID)
		return acct, true, err
	case !errors.Is(err, core.ErrNotFound):
		return core.LinkedAccount{}, false, err
	}

	acct, err := s.store.CreateAccount(ctx, core.LinkedAccount{
		UserID:         userID,
		BankID:         in.BankID,
		AccountNumber:  number,
		AccountName:    name,
		Balance:        in.OpeningBalance,
		ExternalHandle: in.ExternalHandle,
		Status:         core.AccountActive,
	})
	return acct, false, err
}

// Unlink soft-deletes the account; its imported expenses are kept.
func (s *AccountService) Unlink(ctx context.Context, userID, accountID int64) error {
	if err := s.store.SetAccountStatus(ctx, userID, accountID, core.AccountInactive); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Account unlinked", log.FieldUserID, userID, log.FieldAccountID, accountID)
	return nil
}

func (s *AccountService) Sync(ctx context.Context, userID, accountID int64) (core.SyncRunReport, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return core.SyncRunReport{}, err
	}
	acct, err := s.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return core.SyncRunReport{}, err
	}
	if !acct.Active() {
		return core.SyncRunReport{}, fmt.Errorf("account %d is unlinked: %w", accountID, core.ErrNotFound)
	}
	return s.reconciler.SyncAccounts(ctx, user, []core.LinkedAccount{acct}), nil
}

// SyncAll reconciles every active account of the user.
func (s *AccountService) SyncAll(ctx context.Context, userID int64) (core.SyncRunReport, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return core.SyncRunReport{}, err
	}
	accounts, err := s.store.ListAccounts(ctx, userID, true)
	if err != nil {
		return core.SyncRunReport{}, err
	}
	return s.reconciler.SyncAccounts(ctx, user, accounts), nil
}

// SyncDue reconciles the user's active accounts that were never synced or
// not since staleAfter before now.
func (s *AccountService) SyncDue(ctx context.Context, user core.User, staleAfter time.Duration, now time.Time) (core.SyncRunReport, error) {
	accounts, err := s.store.ListAccounts(ctx, user.ID, true)
	if err != nil {
		return core.SyncRunReport{}, err
	}
	due := accounts[:0]
	for _, a := range accounts {
		if a.LastSynced == nil || now.Sub(*a.LastSynced) >= staleAfter {
			due = append(due, a)
		}
	}
	if len(due) == 0 {
		return core.SyncRunReport{}, nil
	}
	return s.reconciler.SyncAccounts(ctx, user, due), nil
}

func normalizeAccountNumber(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return ""
		}
	}
	return b.String()
}
