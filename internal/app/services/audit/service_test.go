package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/services/transfer"
	"github.com/agoramesh/ledger/internal/app/storage/memory"
)

func seedChain(t *testing.T, store *memory.Store) []ledger.Entry {
	t.Helper()
	svc := transfer.New(store, decimal.Zero, nil)

	aID, bID := "p-a", "p-b"
	a, err := store.CreateAccount(context.Background(), account.Account{PrincipalID: &aID})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	b, err := store.CreateAccount(context.Background(), account.Account{PrincipalID: &bID})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	if _, err := svc.Deposit(context.Background(), a.ID, decimal.RequireFromString("500"), "USD", ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Transfer(context.Background(), a.ID, b.ID, decimal.RequireFromString("10"), ledger.TxPurchase, transfer.Options{}); err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}
	}

	entries, err := store.ListEntriesFrom(context.Background(), "")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	return entries
}

func TestService_VerifyChainIntact(t *testing.T) {
	store := memory.New()
	seedChain(t, store)

	report, err := New(store, nil).VerifyChain(context.Background(), "")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Intact || report.Verified != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestService_VerifyChainEmptyLedger(t *testing.T) {
	report, err := New(memory.New(), nil).VerifyChain(context.Background(), "")
	if err != nil {
		t.Fatalf("verify empty: %v", err)
	}
	if !report.Intact || report.Verified != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestService_VerifyChainDetectsAmountEdit(t *testing.T) {
	store := memory.New()
	entries := seedChain(t, store)
	victim := entries[2]

	if err := store.TamperEntry(victim.ID, func(e *ledger.Entry) {
		e.Amount = decimal.RequireFromString("999999")
	}); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	report, err := New(store, nil).VerifyChain(context.Background(), "")
	if !errors.Is(err, ErrChainBroken) {
		t.Fatalf("want ErrChainBroken, got %v", err)
	}
	if report.Intact {
		t.Fatal("report claims intact after tampering")
	}
	if report.BrokenEntryID != victim.ID {
		t.Fatalf("broken entry: want %s, got %s", victim.ID, report.BrokenEntryID)
	}
	if report.Verified != 2 {
		t.Fatalf("entries before the break: want 2, got %d", report.Verified)
	}
}

func TestService_VerifyChainDetectsRelink(t *testing.T) {
	store := memory.New()
	entries := seedChain(t, store)

	// Rewriting PrevHash alone must still break verification even though
	// the entry's own hash field is untouched.
	if err := store.TamperEntry(entries[1].ID, func(e *ledger.Entry) {
		e.PrevHash = "forged"
	}); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if _, err := New(store, nil).VerifyChain(context.Background(), ""); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("want ErrChainBroken, got %v", err)
	}
}

func TestService_VerifyChainFromEntry(t *testing.T) {
	store := memory.New()
	entries := seedChain(t, store)

	report, err := New(store, nil).VerifyChain(context.Background(), entries[2].ID)
	if err != nil {
		t.Fatalf("verify from entry: %v", err)
	}
	if !report.Intact || report.Verified != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	// Tampering before the start point is invisible to a scoped run.
	if err := store.TamperEntry(entries[0].ID, func(e *ledger.Entry) {
		e.Amount = decimal.RequireFromString("1")
	}); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := New(store, nil).VerifyChain(context.Background(), entries[2].ID); err != nil {
		t.Fatalf("scoped verify should pass: %v", err)
	}
	if _, err := New(store, nil).VerifyChain(context.Background(), ""); !errors.Is(err, ErrChainBroken) {
		t.Fatalf("full verify should fail: %v", err)
	}
}
