package redemption

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	domain "github.com/agoramesh/ledger/internal/app/domain/redemption"
	"github.com/agoramesh/ledger/internal/app/services/transfer"
	"github.com/agoramesh/ledger/internal/app/storage/memory"
)

func addPrincipal(t *testing.T, store *memory.Store, principal, balance string) {
	t.Helper()
	pid := principal
	acct, err := store.CreateAccount(context.Background(), account.Account{PrincipalID: &pid})
	require.NoError(t, err)
	if balance != "" && balance != "0" {
		svc := transfer.New(store, decimal.Zero, nil)
		_, err = svc.Deposit(context.Background(), acct.ID, decimal.RequireFromString(balance), "USD", "")
		require.NoError(t, err)
	}
}

func addProfile(t *testing.T, svc *Service, principal string, method domain.PayoutMethod) {
	t.Helper()
	_, err := svc.UpsertProfile(context.Background(), domain.Profile{
		PrincipalID: principal,
		Method:      method,
		Active:      true,
	})
	require.NoError(t, err)
}

func TestRunMonthlyPayout(t *testing.T) {
	store := memory.New()
	svc := New(store, nil)

	// Above minimum, UPI rail: swept.
	addPrincipal(t, store, "alice", "120")
	addProfile(t, svc, "alice", domain.MethodUPI)

	// Below the bank minimum of 10.00: skipped.
	addPrincipal(t, store, "bob", "7")
	addProfile(t, svc, "bob", domain.MethodBankWithdrawal)

	// Instant credits path: settles inside the sweep.
	addPrincipal(t, store, "carol", "3")
	addProfile(t, svc, "carol", domain.MethodAPICredits)

	// Active profile but no account row: skipped, not an error.
	_, err := store.UpsertPayoutProfile(context.Background(), domain.Profile{
		PrincipalID: "ghost",
		Method:      domain.MethodUPI,
		Active:      true,
	})
	require.NoError(t, err)

	// No method configured: never considered.
	addPrincipal(t, store, "dave", "500")

	result, err := svc.RunMonthlyPayout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, result.Errors)

	// Swept principals hold nothing afterwards.
	for _, principal := range []string{"alice", "carol"} {
		acct, err := store.GetAccountByPrincipal(context.Background(), principal)
		require.NoError(t, err)
		assert.True(t, acct.Balance.IsZero(), "%s should be swept to zero, holds %s", principal, acct.Balance)
	}

	bob, err := store.GetAccountByPrincipal(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, bob.Balance.Equal(decimal.RequireFromString("7")))

	// Carol's credits settled instantly.
	credits, err := svc.CreditBalance(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), credits.CreditsRemaining)

	// Alice's request waits for processing.
	page, err := svc.List(context.Background(), "alice", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Requests, 1)
	assert.Equal(t, domain.StatusPending, page.Requests[0].Status)
	assert.True(t, page.Requests[0].AmountUSD.Equal(decimal.RequireFromString("120")))
}

func TestRunMonthlyPayout_EmptyProfileSet(t *testing.T) {
	svc := New(memory.New(), nil)
	result, err := svc.RunMonthlyPayout(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Zero(t, result.Skipped)
}
