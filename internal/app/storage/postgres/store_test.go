package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/domain/redemption"
	"github.com/agoramesh/ledger/internal/app/storage"
)

func integrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func TestStoreIntegration_AccountsAndLedger(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	// Service callers pass zero-value structs; the store assigns id, tier
	// and timestamps.
	pid := "itest-" + uuid.NewString()
	acct, err := store.CreateAccount(ctx, account.Account{PrincipalID: &pid})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if acct.ID == "" {
		t.Fatal("store did not assign an account id")
	}
	if acct.Tier != account.TierStandard {
		t.Fatalf("tier default: want %q, got %q", account.TierStandard, acct.Tier)
	}
	if acct.CreatedAt.IsZero() || acct.UpdatedAt.IsZero() {
		t.Fatal("store did not stamp timestamps")
	}

	byPrincipal, err := store.GetAccountByPrincipal(ctx, pid)
	if err != nil {
		t.Fatalf("get by principal: %v", err)
	}
	if byPrincipal.ID != acct.ID {
		t.Fatal("principal lookup mismatch")
	}

	key := "itest-key-" + uuid.NewString()
	entry, err := store.AppendEntry(ctx, ledger.Entry{
		ToAccount:      &acct.ID,
		Amount:         decimal.RequireFromString("12.345678"),
		TxType:         ledger.TxDeposit,
		IdempotencyKey: &key,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.Seq == 0 || entry.EntryHash == "" {
		t.Fatalf("entry not sealed: %+v", entry)
	}

	if _, err := store.AppendEntry(ctx, ledger.Entry{
		ToAccount:      &acct.ID,
		Amount:         decimal.NewFromInt(1),
		TxType:         ledger.TxDeposit,
		IdempotencyKey: &key,
	}); !errors.Is(err, storage.ErrDuplicateIdempotencyKey) {
		t.Fatalf("want ErrDuplicateIdempotencyKey, got %v", err)
	}

	// The stored row must hash identically after the round trip.
	reloaded, err := store.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("reload entry: %v", err)
	}
	if reloaded.ComputeHash() != entry.EntryHash {
		t.Fatal("hash not stable across the database round trip")
	}
}

func TestStoreIntegration_WithinTxRollsBack(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	pid := "itest-" + uuid.NewString()
	acct, err := store.CreateAccount(ctx, account.Account{PrincipalID: &pid})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	boom := errors.New("boom")
	err = store.WithinTx(ctx, func(tx storage.Store) error {
		locked, err := tx.LockAccounts(ctx, acct.ID)
		if err != nil {
			return err
		}
		a := locked[acct.ID]
		a.Balance = decimal.RequireFromString("777")
		if _, err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	reloaded, err := store.GetAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Balance.IsZero() {
		t.Fatalf("rollback leaked balance %s", reloaded.Balance)
	}
}

func TestStoreIntegration_RedemptionsAndProfiles(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()

	pid := "itest-" + uuid.NewString()
	acct, err := store.CreateAccount(ctx, account.Account{PrincipalID: &pid})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	hold, err := store.AppendEntry(ctx, ledger.Entry{
		FromAccount: &acct.ID,
		Amount:      decimal.RequireFromString("30"),
		TxType:      ledger.TxWithdrawal,
	})
	if err != nil {
		t.Fatalf("hold entry: %v", err)
	}

	req, err := store.CreateRedemption(ctx, redemption.Request{
		PrincipalID:   pid,
		Type:          redemption.TypeUPI,
		AmountUSD:     decimal.RequireFromString("30"),
		AmountFiat:    decimal.RequireFromString("2490.00"),
		Status:        redemption.StatusPending,
		LedgerEntryID: hold.ID,
	})
	if err != nil {
		t.Fatalf("create redemption: %v", err)
	}

	req.Status = redemption.StatusProcessing
	if _, err := store.UpdateRedemption(ctx, req); err != nil {
		t.Fatalf("update redemption: %v", err)
	}
	got, err := store.GetRedemption(ctx, req.ID)
	if err != nil {
		t.Fatalf("get redemption: %v", err)
	}
	if got.Status != redemption.StatusProcessing {
		t.Fatalf("status round trip: %s", got.Status)
	}

	if _, err := store.UpsertPayoutProfile(ctx, redemption.Profile{
		PrincipalID: pid,
		Method:      redemption.MethodUPI,
		Details:     redemption.MethodDetails{UPI: &redemption.UPIDetails{VPA: "x@upi"}},
		Active:      true,
	}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	profile, err := store.GetPayoutProfile(ctx, pid)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Details.UPI == nil || profile.Details.UPI.VPA != "x@upi" {
		t.Fatalf("details round trip: %+v", profile.Details)
	}

	if _, err := store.AddCredits(ctx, pid, 1500); err != nil {
		t.Fatalf("add credits: %v", err)
	}
	bal, err := store.AddCredits(ctx, pid, 500)
	if err != nil {
		t.Fatalf("add credits again: %v", err)
	}
	if bal.CreditsRemaining != 2000 {
		t.Fatalf("credits: want 2000, got %d", bal.CreditsRemaining)
	}
}
