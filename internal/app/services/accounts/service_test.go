package accounts

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

func TestService_CreateAccountIdempotent(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	first, err := svc.CreateAccount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.PrincipalID == nil || *first.PrincipalID != "user-1" {
		t.Fatalf("principal not recorded: %+v", first.PrincipalID)
	}
	if first.Tier != account.TierStandard {
		t.Fatalf("default tier: want %s, got %s", account.TierStandard, first.Tier)
	}

	second, err := svc.CreateAccount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("repeat create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeat create made a new account: %s vs %s", second.ID, first.ID)
	}

	if _, err := svc.CreateAccount(context.Background(), "  "); err == nil {
		t.Fatal("blank principal accepted")
	}
}

func TestService_EnsurePlatformAccount(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	first, err := svc.EnsurePlatformAccount(context.Background())
	if err != nil {
		t.Fatalf("ensure treasury: %v", err)
	}
	if !first.IsTreasury() {
		t.Fatal("treasury account should have no principal")
	}

	second, err := svc.EnsurePlatformAccount(context.Background())
	if err != nil {
		t.Fatalf("repeat ensure: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("treasury must be a singleton")
	}
}

func TestService_GetBalance(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	acct, err := svc.CreateAccount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	transferSvc := transfer.New(store, decimal.Zero, nil)
	if _, err := transferSvc.Deposit(context.Background(), acct.ID, decimal.RequireFromString("12.5"), "USD", ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	summary, err := svc.GetBalance(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !summary.Balance.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("balance: want 12.5, got %s", summary.Balance)
	}
	if !summary.TotalDeposited.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("total_deposited: want 12.5, got %s", summary.TotalDeposited)
	}

	if _, err := svc.GetBalance(context.Background(), "nobody"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("want account.ErrNotFound, got %v", err)
	}
}

func TestService_GetHistoryPagination(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	acct, err := svc.CreateAccount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	transferSvc := transfer.New(store, decimal.Zero, nil)
	for i := 0; i < 5; i++ {
		if _, err := transferSvc.Deposit(context.Background(), acct.ID, decimal.RequireFromString("1"), "USD", ""); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	page, err := svc.GetHistory(context.Background(), "user-1", 1, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("total: want 5, got %d", page.Total)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("page size: want 2, got %d", len(page.Entries))
	}
	if page.Entries[0].Seq < page.Entries[1].Seq {
		t.Fatal("history should be most recent first")
	}

	last, err := svc.GetHistory(context.Background(), "user-1", 3, 2)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(last.Entries) != 1 {
		t.Fatalf("last page: want 1 entry, got %d", len(last.Entries))
	}

	// Out-of-range pages are empty, not an error.
	empty, err := svc.GetHistory(context.Background(), "user-1", 9, 2)
	if err != nil {
		t.Fatalf("far page: %v", err)
	}
	if len(empty.Entries) != 0 {
		t.Fatalf("far page should be empty, got %d", len(empty.Entries))
	}

	// Defaults clamp nonsense paging input.
	clamped, err := svc.GetHistory(context.Background(), "user-1", 0, 5000)
	if err != nil {
		t.Fatalf("clamped: %v", err)
	}
	if clamped.Page != 1 || clamped.PageSize != 50 {
		t.Fatalf("clamp: got page=%d size=%d", clamped.Page, clamped.PageSize)
	}

	// Entries all carry the deposit type.
	for _, e := range page.Entries {
		if e.TxType != ledger.TxDeposit {
			t.Fatalf("unexpected tx type %s", e.TxType)
		}
	}
}
