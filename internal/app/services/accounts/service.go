// Package accounts exposes account provisioning and read-side queries. All
// balance mutation is delegated to the transfer and redemption services so
// the invariants are enforced in one place.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/storage"
	"github.com/agoramesh/ledger/pkg/logger"
)

// Service manages account rows.
type Service struct {
	store storage.Backend
	log   *logger.Logger
}

// New constructs an account service.
func New(store storage.Backend, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, log: log}
}

// EnsurePlatformAccount returns the treasury account, creating the
// singleton row when it does not exist yet. Safe to call repeatedly.
func (s *Service) EnsurePlatformAccount(ctx context.Context) (account.Account, error) {
	var treasury account.Account
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		existing, err := tx.GetTreasuryAccount(ctx)
		if err == nil {
			treasury = existing
			return nil
		}
		if !errors.Is(err, account.ErrNotFound) {
			return err
		}
		treasury, err = tx.CreateAccount(ctx, account.Account{})
		if err != nil {
			return err
		}
		s.log.WithField("account_id", treasury.ID).Info("platform treasury account created")
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return treasury, nil
}

// CreateAccount provisions the account for a principal. Repeat calls return
// the existing row rather than erroring.
func (s *Service) CreateAccount(ctx context.Context, principalID string) (account.Account, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return account.Account{}, fmt.Errorf("principal_id is required")
	}

	var acct account.Account
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		existing, err := tx.GetAccountByPrincipal(ctx, principalID)
		if err == nil {
			acct = existing
			return nil
		}
		if !errors.Is(err, account.ErrNotFound) {
			return err
		}
		pid := principalID
		acct, err = tx.CreateAccount(ctx, account.Account{PrincipalID: &pid})
		if err != nil {
			return err
		}
		s.log.WithField("account_id", acct.ID).
			WithField("principal_id", principalID).
			Info("account created")
		return nil
	})
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

// GetAccountByPrincipal resolves the backing account row for a principal.
func (s *Service) GetAccountByPrincipal(ctx context.Context, principalID string) (account.Account, error) {
	return s.store.GetAccountByPrincipal(ctx, principalID)
}

// GetBalance returns the balance summary for a principal.
func (s *Service) GetBalance(ctx context.Context, principalID string) (account.BalanceSummary, error) {
	acct, err := s.store.GetAccountByPrincipal(ctx, principalID)
	if err != nil {
		return account.BalanceSummary{}, err
	}
	return acct.Summary(), nil
}

// History is a page of ledger entries touching one account.
type History struct {
	Entries  []ledger.Entry `json:"entries"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// GetHistory returns the principal's ledger entries, most recent first,
// with a stable total count.
func (s *Service) GetHistory(ctx context.Context, principalID string, page, pageSize int) (History, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	acct, err := s.store.GetAccountByPrincipal(ctx, principalID)
	if err != nil {
		return History{}, err
	}

	entries, total, err := s.store.ListEntriesByAccount(ctx, acct.ID, page, pageSize)
	if err != nil {
		return History{}, err
	}
	return History{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}
