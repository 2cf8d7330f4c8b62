// Package memory is an in-memory implementation of the storage contracts.
// It is safe for concurrent use and primarily intended for tests and local
// development. WithinTx runs against a deep copy of the state and swaps it
// in on success, so a failed unit leaves no partial effects.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/domain/redemption"
	"github.com/agoramesh/ledger/internal/app/storage"
)

// Store holds all records behind one mutex. Direct calls are individually
// atomic; WithinTx spans a whole unit.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// WithinTx executes fn against a snapshot and commits it atomically when fn
// succeeds.
func (s *Store) WithinTx(_ context.Context, fn func(tx storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(snap); err != nil {
		return err
	}
	s.st = snap
	return nil
}

type state struct {
	accounts           map[string]account.Account
	accountByPrincipal map[string]string
	treasuryID         string

	entries    []ledger.Entry
	entryByID  map[string]int
	entryByKey map[string]string
	nextSeq    int64

	redemptions map[string]redemption.Request
	redemptionOrder []string

	credits  map[string]redemption.CreditBalance
	profiles map[string]redemption.Profile
}

var _ storage.Store = (*state)(nil)

func newState() *state {
	return &state{
		accounts:           make(map[string]account.Account),
		accountByPrincipal: make(map[string]string),
		entryByID:          make(map[string]int),
		entryByKey:         make(map[string]string),
		nextSeq:            1,
		redemptions:        make(map[string]redemption.Request),
		credits:            make(map[string]redemption.CreditBalance),
		profiles:           make(map[string]redemption.Profile),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.accountByPrincipal {
		c.accountByPrincipal[k] = v
	}
	c.treasuryID = st.treasuryID
	c.entries = append([]ledger.Entry(nil), st.entries...)
	for k, v := range st.entryByID {
		c.entryByID[k] = v
	}
	for k, v := range st.entryByKey {
		c.entryByKey[k] = v
	}
	c.nextSeq = st.nextSeq
	for k, v := range st.redemptions {
		c.redemptions[k] = v
	}
	c.redemptionOrder = append([]string(nil), st.redemptionOrder...)
	for k, v := range st.credits {
		c.credits[k] = v
	}
	for k, v := range st.profiles {
		c.profiles[k] = v
	}
	return c
}

// now returns wall time truncated to the precision of the canonical hash
// encoding so round-tripping through any backend cannot change the hash.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// AccountStore implementation -------------------------------------------------

func (st *state) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	} else if _, exists := st.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("account %s already exists", acct.ID)
	}

	if acct.PrincipalID == nil {
		if st.treasuryID != "" {
			return account.Account{}, fmt.Errorf("treasury account already exists")
		}
	} else if existing, ok := st.accountByPrincipal[*acct.PrincipalID]; ok {
		return account.Account{}, fmt.Errorf("principal %s already has account %s", *acct.PrincipalID, existing)
	}

	ts := now()
	acct.CreatedAt = ts
	acct.UpdatedAt = ts
	if acct.Tier == "" {
		acct.Tier = account.TierStandard
	}

	st.accounts[acct.ID] = acct
	if acct.PrincipalID == nil {
		st.treasuryID = acct.ID
	} else {
		st.accountByPrincipal[*acct.PrincipalID] = acct.ID
	}
	return acct, nil
}

func (st *state) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	original, ok := st.accounts[acct.ID]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", acct.ID, account.ErrNotFound)
	}

	acct.PrincipalID = original.PrincipalID
	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = now()

	st.accounts[acct.ID] = acct
	return acct, nil
}

func (st *state) GetAccount(_ context.Context, id string) (account.Account, error) {
	acct, ok := st.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", id, account.ErrNotFound)
	}
	return acct, nil
}

func (st *state) GetAccountByPrincipal(_ context.Context, principalID string) (account.Account, error) {
	id, ok := st.accountByPrincipal[principalID]
	if !ok {
		return account.Account{}, fmt.Errorf("principal %s: %w", principalID, account.ErrNotFound)
	}
	return st.accounts[id], nil
}

func (st *state) GetTreasuryAccount(_ context.Context) (account.Account, error) {
	if st.treasuryID == "" {
		return account.Account{}, fmt.Errorf("treasury: %w", account.ErrNotFound)
	}
	return st.accounts[st.treasuryID], nil
}

func (st *state) LockAccounts(_ context.Context, ids ...string) (map[string]account.Account, error) {
	// The snapshot already isolates the unit; ordering is honoured for
	// contract parity with the SQL store.
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	result := make(map[string]account.Account, len(sorted))
	for _, id := range sorted {
		acct, ok := st.accounts[id]
		if !ok {
			return nil, fmt.Errorf("account %s: %w", id, account.ErrNotFound)
		}
		result[id] = acct
	}
	return result, nil
}

// LedgerStore implementation --------------------------------------------------

func (st *state) AppendEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.IdempotencyKey != nil {
		if _, exists := st.entryByKey[*e.IdempotencyKey]; exists {
			return ledger.Entry{}, storage.ErrDuplicateIdempotencyKey
		}
	}

	e.ID = uuid.NewString()
	e.Seq = st.nextSeq
	st.nextSeq++
	e.CreatedAt = now()

	prevHash := ""
	if n := len(st.entries); n > 0 {
		prevHash = st.entries[n-1].EntryHash
	}
	e.Seal(prevHash)

	st.entryByID[e.ID] = len(st.entries)
	st.entries = append(st.entries, e)
	if e.IdempotencyKey != nil {
		st.entryByKey[*e.IdempotencyKey] = e.ID
	}
	return e, nil
}

func (st *state) GetEntry(_ context.Context, id string) (ledger.Entry, error) {
	idx, ok := st.entryByID[id]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("ledger entry %s: %w", id, storage.ErrNotFound)
	}
	return st.entries[idx], nil
}

func (st *state) GetEntryByIdempotencyKey(_ context.Context, key string) (ledger.Entry, error) {
	id, ok := st.entryByKey[key]
	if !ok {
		return ledger.Entry{}, fmt.Errorf("idempotency key %s: %w", key, storage.ErrNotFound)
	}
	return st.entries[st.entryByID[id]], nil
}

func (st *state) ListEntriesByAccount(_ context.Context, accountID string, page, pageSize int) ([]ledger.Entry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	var matched []ledger.Entry
	for i := len(st.entries) - 1; i >= 0; i-- {
		e := st.entries[i]
		if touches(e, accountID) {
			matched = append(matched, e)
		}
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []ledger.Entry{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func touches(e ledger.Entry, accountID string) bool {
	if e.FromAccount != nil && *e.FromAccount == accountID {
		return true
	}
	return e.ToAccount != nil && *e.ToAccount == accountID
}

func (st *state) ListEntriesFrom(_ context.Context, fromID string) ([]ledger.Entry, error) {
	start := 0
	if fromID != "" {
		idx, ok := st.entryByID[fromID]
		if !ok {
			return nil, fmt.Errorf("ledger entry %s: %w", fromID, storage.ErrNotFound)
		}
		start = idx
	}
	return append([]ledger.Entry(nil), st.entries[start:]...), nil
}

// RedemptionStore implementation ----------------------------------------------

func (st *state) CreateRedemption(_ context.Context, req redemption.Request) (redemption.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, exists := st.redemptions[req.ID]; exists {
		return redemption.Request{}, fmt.Errorf("redemption %s already exists", req.ID)
	}

	req.CreatedAt = now()
	st.redemptions[req.ID] = req
	st.redemptionOrder = append(st.redemptionOrder, req.ID)
	return req, nil
}

func (st *state) UpdateRedemption(_ context.Context, req redemption.Request) (redemption.Request, error) {
	original, ok := st.redemptions[req.ID]
	if !ok {
		return redemption.Request{}, fmt.Errorf("redemption %s: %w", req.ID, redemption.ErrNotFound)
	}
	req.CreatedAt = original.CreatedAt
	st.redemptions[req.ID] = req
	return req, nil
}

func (st *state) GetRedemption(_ context.Context, id string) (redemption.Request, error) {
	req, ok := st.redemptions[id]
	if !ok {
		return redemption.Request{}, fmt.Errorf("redemption %s: %w", id, redemption.ErrNotFound)
	}
	return req, nil
}

func (st *state) ListRedemptions(_ context.Context, principalID string, page, pageSize int) ([]redemption.Request, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	var matched []redemption.Request
	for i := len(st.redemptionOrder) - 1; i >= 0; i-- {
		req := st.redemptions[st.redemptionOrder[i]]
		if principalID == "" || req.PrincipalID == principalID {
			matched = append(matched, req)
		}
	}

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []redemption.Request{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (st *state) ListRedemptionsByStatus(_ context.Context, status redemption.Status) ([]redemption.Request, error) {
	var matched []redemption.Request
	for _, id := range st.redemptionOrder {
		if req := st.redemptions[id]; req.Status == status {
			matched = append(matched, req)
		}
	}
	return matched, nil
}

// CreditStore implementation --------------------------------------------------

func (st *state) GetCreditBalance(_ context.Context, principalID string) (redemption.CreditBalance, error) {
	bal, ok := st.credits[principalID]
	if !ok {
		return redemption.CreditBalance{}, fmt.Errorf("credit balance for %s: %w", principalID, storage.ErrNotFound)
	}
	return bal, nil
}

func (st *state) AddCredits(_ context.Context, principalID string, credits int64) (redemption.CreditBalance, error) {
	bal, ok := st.credits[principalID]
	if !ok {
		bal = redemption.CreditBalance{PrincipalID: principalID}
	}
	bal.CreditsRemaining += credits
	bal.CreditsTotalPurchased += credits
	bal.UpdatedAt = now()
	st.credits[principalID] = bal
	return bal, nil
}

// ProfileStore implementation -------------------------------------------------

func (st *state) UpsertPayoutProfile(_ context.Context, p redemption.Profile) (redemption.Profile, error) {
	p.UpdatedAt = now()
	st.profiles[p.PrincipalID] = p
	return p, nil
}

func (st *state) GetPayoutProfile(_ context.Context, principalID string) (redemption.Profile, error) {
	p, ok := st.profiles[principalID]
	if !ok {
		return redemption.Profile{}, fmt.Errorf("payout profile for %s: %w", principalID, storage.ErrNotFound)
	}
	return p, nil
}

func (st *state) ListActiveProfiles(_ context.Context) ([]redemption.Profile, error) {
	result := make([]redemption.Profile, 0, len(st.profiles))
	for _, p := range st.profiles {
		if p.Active && p.Method != redemption.MethodNone {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PrincipalID < result[j].PrincipalID })
	return result, nil
}

// Direct (non-transactional) delegation ---------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateAccount(ctx, acct)
}

func (s *Store) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateAccount(ctx, acct)
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetAccount(ctx, id)
}

func (s *Store) GetAccountByPrincipal(ctx context.Context, principalID string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetAccountByPrincipal(ctx, principalID)
}

func (s *Store) GetTreasuryAccount(ctx context.Context) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetTreasuryAccount(ctx)
}

func (s *Store) LockAccounts(ctx context.Context, ids ...string) (map[string]account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.LockAccounts(ctx, ids...)
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AppendEntry(ctx, e)
}

func (s *Store) GetEntry(ctx context.Context, id string) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetEntry(ctx, id)
}

func (s *Store) GetEntryByIdempotencyKey(ctx context.Context, key string) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetEntryByIdempotencyKey(ctx, key)
}

func (s *Store) ListEntriesByAccount(ctx context.Context, accountID string, page, pageSize int) ([]ledger.Entry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListEntriesByAccount(ctx, accountID, page, pageSize)
}

func (s *Store) ListEntriesFrom(ctx context.Context, fromID string) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListEntriesFrom(ctx, fromID)
}

func (s *Store) CreateRedemption(ctx context.Context, req redemption.Request) (redemption.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateRedemption(ctx, req)
}

func (s *Store) UpdateRedemption(ctx context.Context, req redemption.Request) (redemption.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateRedemption(ctx, req)
}

func (s *Store) GetRedemption(ctx context.Context, id string) (redemption.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetRedemption(ctx, id)
}

func (s *Store) ListRedemptions(ctx context.Context, principalID string, page, pageSize int) ([]redemption.Request, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListRedemptions(ctx, principalID, page, pageSize)
}

func (s *Store) ListRedemptionsByStatus(ctx context.Context, status redemption.Status) ([]redemption.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListRedemptionsByStatus(ctx, status)
}

func (s *Store) GetCreditBalance(ctx context.Context, principalID string) (redemption.CreditBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetCreditBalance(ctx, principalID)
}

func (s *Store) AddCredits(ctx context.Context, principalID string, credits int64) (redemption.CreditBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AddCredits(ctx, principalID, credits)
}

func (s *Store) UpsertPayoutProfile(ctx context.Context, p redemption.Profile) (redemption.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpsertPayoutProfile(ctx, p)
}

func (s *Store) GetPayoutProfile(ctx context.Context, principalID string) (redemption.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetPayoutProfile(ctx, principalID)
}

func (s *Store) ListActiveProfiles(ctx context.Context) ([]redemption.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListActiveProfiles(ctx)
}

// TamperEntry rewrites a stored entry in place, bypassing the append-only
// contract. It exists only so chain-verification tests can corrupt state.
func (s *Store) TamperEntry(id string, mutate func(*ledger.Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.st.entryByID[id]
	if !ok {
		return fmt.Errorf("ledger entry %s: %w", id, storage.ErrNotFound)
	}
	mutate(&s.st.entries[idx])
	return nil
}
