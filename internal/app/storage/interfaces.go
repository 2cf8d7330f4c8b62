// Package storage defines the persistence contracts for the ledger core.
// Implementations must honour the atomic-unit contract: every mutation made
// inside WithinTx is applied completely or not at all, and the ledger append
// together with its accompanying balance updates always share one unit.
package storage

import (
	"context"
	"errors"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/domain/redemption"
)

// ErrNotFound is returned for missing ledger entries, credit balances and
// payout profiles. Account and redemption misses return their domain
// sentinels directly.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateIdempotencyKey signals that an entry with the same idempotency
// key was appended concurrently. Callers resolve it by re-reading the
// winning entry after rollback.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

// AccountStore persists balance-carrying accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByPrincipal(ctx context.Context, principalID string) (account.Account, error)
	GetTreasuryAccount(ctx context.Context) (account.Account, error)

	// LockAccounts acquires row locks on all given account ids in ascending
	// id order and returns the locked rows. Inside a transaction this is the
	// deadlock-avoidance point for the sender/receiver/treasury triple.
	LockAccounts(ctx context.Context, ids ...string) (map[string]account.Account, error)
}

// LedgerStore persists the append-only hash chain. AppendEntry assigns id,
// sequence and timestamp, links the entry to the previous chain head and
// seals the hash; entries are never updated or deleted.
type LedgerStore interface {
	AppendEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	GetEntry(ctx context.Context, id string) (ledger.Entry, error)
	GetEntryByIdempotencyKey(ctx context.Context, key string) (ledger.Entry, error)
	ListEntriesByAccount(ctx context.Context, accountID string, page, pageSize int) ([]ledger.Entry, int64, error)

	// ListEntriesFrom streams entries in global sequence order. An empty
	// fromID starts at the genesis entry; otherwise iteration starts at the
	// entry with that id, inclusive.
	ListEntriesFrom(ctx context.Context, fromID string) ([]ledger.Entry, error)
}

// RedemptionStore persists withdrawal requests.
type RedemptionStore interface {
	CreateRedemption(ctx context.Context, req redemption.Request) (redemption.Request, error)
	UpdateRedemption(ctx context.Context, req redemption.Request) (redemption.Request, error)
	GetRedemption(ctx context.Context, id string) (redemption.Request, error)
	ListRedemptions(ctx context.Context, principalID string, page, pageSize int) ([]redemption.Request, int64, error)
	ListRedemptionsByStatus(ctx context.Context, status redemption.Status) ([]redemption.Request, error)
}

// CreditStore persists the derived api-credit balances.
type CreditStore interface {
	GetCreditBalance(ctx context.Context, principalID string) (redemption.CreditBalance, error)
	AddCredits(ctx context.Context, principalID string, credits int64) (redemption.CreditBalance, error)
}

// ProfileStore persists payout profiles consumed by the batch sweep.
type ProfileStore interface {
	UpsertPayoutProfile(ctx context.Context, p redemption.Profile) (redemption.Profile, error)
	GetPayoutProfile(ctx context.Context, principalID string) (redemption.Profile, error)
	ListActiveProfiles(ctx context.Context) ([]redemption.Profile, error)
}

// Store aggregates all record access available inside one atomic unit.
type Store interface {
	AccountStore
	LedgerStore
	RedemptionStore
	CreditStore
	ProfileStore
}

// Backend is a Store that can open atomic units. Reads outside WithinTx see
// committed state only.
type Backend interface {
	Store
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
