package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/storage/memory"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %s: %v", s, err)
	}
	return d
}

func newFundedAccount(t *testing.T, store *memory.Store, svc *Service, principal, balance string) account.Account {
	t.Helper()
	pid := principal
	acct, err := store.CreateAccount(context.Background(), account.Account{PrincipalID: &pid})
	if err != nil {
		t.Fatalf("create account for %s: %v", principal, err)
	}
	if balance != "" && balance != "0" {
		if _, err := svc.Deposit(context.Background(), acct.ID, mustDecimal(t, balance), "USD", ""); err != nil {
			t.Fatalf("fund account for %s: %v", principal, err)
		}
	}
	acct, err = store.GetAccount(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	return acct
}

func TestService_TransferConservesValue(t *testing.T) {
	store := memory.New()
	svc := New(store, decimal.Zero, nil) // defaults to the 2% platform fee

	buyer := newFundedAccount(t, store, svc, "buyer", "1000")
	seller := newFundedAccount(t, store, svc, "seller", "0")

	entry, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "100"), ledger.TxPurchase, Options{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !entry.FeeAmount.Equal(mustDecimal(t, "2")) {
		t.Fatalf("fee should be 2.00, got %s", entry.FeeAmount)
	}

	buyer, _ = store.GetAccount(context.Background(), buyer.ID)
	seller, _ = store.GetAccount(context.Background(), seller.ID)
	treasury, err := store.GetTreasuryAccount(context.Background())
	if err != nil {
		t.Fatalf("treasury should exist after first transfer: %v", err)
	}

	if !buyer.Balance.Equal(mustDecimal(t, "900")) {
		t.Fatalf("buyer balance: want 900, got %s", buyer.Balance)
	}
	if !seller.Balance.Equal(mustDecimal(t, "98")) {
		t.Fatalf("seller balance: want 98, got %s", seller.Balance)
	}
	if !treasury.Balance.Equal(mustDecimal(t, "2")) {
		t.Fatalf("treasury balance: want 2, got %s", treasury.Balance)
	}

	total := buyer.Balance.Add(seller.Balance).Add(treasury.Balance)
	if !total.Equal(mustDecimal(t, "1000")) {
		t.Fatalf("value not conserved: %s", total)
	}

	if !buyer.TotalSpent.Equal(mustDecimal(t, "100")) {
		t.Fatalf("buyer total_spent: want 100, got %s", buyer.TotalSpent)
	}
	if !seller.TotalEarned.Equal(mustDecimal(t, "98")) {
		t.Fatalf("seller total_earned: want 98, got %s", seller.TotalEarned)
	}
	if !seller.TotalFeesPaid.Equal(mustDecimal(t, "2")) {
		t.Fatalf("seller total_fees_paid: want 2, got %s", seller.TotalFeesPaid)
	}
}

func TestService_TransferInsufficientBalance(t *testing.T) {
	store := memory.New()
	svc := New(store, decimal.Zero, nil)

	buyer := newFundedAccount(t, store, svc, "buyer", "10")
	seller := newFundedAccount(t, store, svc, "seller", "0")

	_, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "10.000001"), ledger.TxPurchase, Options{})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}

	// The failed unit must leave no partial effects.
	buyer, _ = store.GetAccount(context.Background(), buyer.ID)
	seller, _ = store.GetAccount(context.Background(), seller.ID)
	if !buyer.Balance.Equal(mustDecimal(t, "10")) {
		t.Fatalf("buyer balance mutated on failure: %s", buyer.Balance)
	}
	if !seller.Balance.IsZero() {
		t.Fatalf("seller balance mutated on failure: %s", seller.Balance)
	}
	if _, _, err := store.ListEntriesByAccount(context.Background(), buyer.ID, 1, 10); err != nil {
		t.Fatalf("list entries: %v", err)
	}
}

func TestService_TransferExactBalanceSucceeds(t *testing.T) {
	store := memory.New()
	svc := New(store, decimal.Zero, nil)

	buyer := newFundedAccount(t, store, svc, "buyer", "10")
	seller := newFundedAccount(t, store, svc, "seller", "0")

	if _, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "10"), ledger.TxPurchase, Options{}); err != nil {
		t.Fatalf("transfer of exact balance: %v", err)
	}
	buyer, _ = store.GetAccount(context.Background(), buyer.ID)
	if !buyer.Balance.IsZero() {
		t.Fatalf("buyer should be emptied exactly, got %s", buyer.Balance)
	}
}

func TestService_TransferValidation(t *testing.T) {
	store := memory.New()
	svc := New(store, decimal.Zero, nil)
	buyer := newFundedAccount(t, store, svc, "buyer", "10")
	seller := newFundedAccount(t, store, svc, "seller", "0")

	if _, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, decimal.Zero, ledger.TxPurchase, Options{}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("zero amount: want ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "-5"), ledger.TxPurchase, Options{}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("negative amount: want ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Transfer(context.Background(), buyer.ID, buyer.ID, mustDecimal(t, "1"), ledger.TxPurchase, Options{}); err == nil {
		t.Fatal("self transfer accepted")
	}
	if _, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "1"), "bogus", Options{}); err == nil {
		t.Fatal("unknown tx type accepted")
	}
	if _, err := svc.Transfer(context.Background(), "missing", seller.ID, mustDecimal(t, "1"), ledger.TxPurchase, Options{}); !errors.Is(err, ErrSenderNotFound) {
		t.Fatalf("want ErrSenderNotFound, got %v", err)
	}
	if _, err := svc.Transfer(context.Background(), buyer.ID, "missing", mustDecimal(t, "1"), ledger.TxPurchase, Options{}); !errors.Is(err, ErrReceiverNotFound) {
		t.Fatalf("want ErrReceiverNotFound, got %v", err)
	}
	if _, err := svc.Transfer(context.Background(), "missing", seller.ID, mustDecimal(t, "1"), ledger.TxPurchase, Options{}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("sender miss should match account.ErrNotFound, got %v", err)
	}
}

func TestService_TransferIdempotentReplay(t *testing.T) {
	store := memory.New()
	svc := New(store, decimal.Zero, nil)

	buyer := newFundedAccount(t, store, svc, "buyer", "100")
	seller := newFundedAccount(t, store, svc, "seller", "0")

	first, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "10"), ledger.TxPurchase, Options{IdempotencyKey: "order-17"})
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	second, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "10"), ledger.TxPurchase, Options{IdempotencyKey: "order-17"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different entry: %s vs %s", second.ID, first.ID)
	}

	buyer, _ = store.GetAccount(context.Background(), buyer.ID)
	if !buyer.Balance.Equal(mustDecimal(t, "90")) {
		t.Fatalf("replay debited again: balance %s", buyer.Balance)
	}
}

func TestService_DebitForPurchaseLazyAccounts(t *testing.T) {
	store := memory.New()
	svc := New(store, decimal.Zero, nil)

	// Buyer needs funds, so pre-create and fund only that side.
	newFundedAccount(t, store, svc, "user-1", "50")

	result, err := svc.DebitForPurchase(context.Background(), "user-1", "dev-9", mustDecimal(t, "25"), "tx-abc")
	if err != nil {
		t.Fatalf("purchase debit: %v", err)
	}
	if !result.BuyerBalance.Balance.Equal(mustDecimal(t, "25")) {
		t.Fatalf("buyer balance: want 25, got %s", result.BuyerBalance.Balance)
	}
	if !result.SellerBalance.Balance.Equal(mustDecimal(t, "24.5")) {
		t.Fatalf("seller balance: want 24.50, got %s", result.SellerBalance.Balance)
	}
	if result.Entry.IdempotencyKey == nil || *result.Entry.IdempotencyKey != "purchase:tx-abc" {
		t.Fatalf("purchase idempotency key missing: %+v", result.Entry.IdempotencyKey)
	}

	// Replaying the same business transaction must not move money again.
	again, err := svc.DebitForPurchase(context.Background(), "user-1", "dev-9", mustDecimal(t, "25"), "tx-abc")
	if err != nil {
		t.Fatalf("replayed purchase: %v", err)
	}
	if again.Entry.ID != result.Entry.ID {
		t.Fatal("replay appended a second entry")
	}
	if !again.BuyerBalance.Balance.Equal(mustDecimal(t, "25")) {
		t.Fatalf("replay debited again: %s", again.BuyerBalance.Balance)
	}
}

func TestService_DepositMintsEntry(t *testing.T) {
	store := memory.New()
	svc := New(store, decimal.Zero, nil)
	pid := "user-1"
	acct, err := store.CreateAccount(context.Background(), account.Account{PrincipalID: &pid})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	entry, err := svc.Deposit(context.Background(), acct.ID, mustDecimal(t, "42.5"), "", "")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if entry.FromAccount != nil {
		t.Fatal("deposit entry must have no source account")
	}
	if entry.TxType != ledger.TxDeposit {
		t.Fatalf("unexpected tx type %s", entry.TxType)
	}
	if !entry.FeeAmount.IsZero() {
		t.Fatalf("deposits are fee free, got %s", entry.FeeAmount)
	}

	acct, _ = store.GetAccount(context.Background(), acct.ID)
	if !acct.Balance.Equal(mustDecimal(t, "42.5")) {
		t.Fatalf("balance: want 42.5, got %s", acct.Balance)
	}
	if !acct.TotalDeposited.Equal(mustDecimal(t, "42.5")) {
		t.Fatalf("total_deposited: want 42.5, got %s", acct.TotalDeposited)
	}

	if _, err := svc.Deposit(context.Background(), acct.ID, decimal.Zero, "", ""); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("zero deposit: want ErrInvalidAmount, got %v", err)
	}
}

func TestService_FeeRoundsHalfUp(t *testing.T) {
	store := memory.New()
	svc := New(store, mustDecimal(t, "0.025"), nil)

	buyer := newFundedAccount(t, store, svc, "buyer", "10")
	seller := newFundedAccount(t, store, svc, "seller", "0")

	// 0.0001 * 0.025 = 0.0000025, which rounds half-up to 0.000003.
	entry, err := svc.Transfer(context.Background(), buyer.ID, seller.ID, mustDecimal(t, "0.0001"), ledger.TxPurchase, Options{})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !entry.FeeAmount.Equal(mustDecimal(t, "0.000003")) {
		t.Fatalf("fee rounding: want 0.000003, got %s", entry.FeeAmount)
	}
}
