// Package account defines the balance-carrying account owned by a principal
// (agent or creator) or by the platform treasury.
package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier labels for fee or limit differentiation. The ledger core only stores
// the tier; interpretation is left to callers.
const (
	TierStandard = "standard"
	TierPro      = "pro"
)

// Account holds the balance and lifetime counters for one principal. Exactly
// one account exists per principal and exactly one treasury account (nil
// PrincipalID) exists system wide. Accounts are created lazily and never
// deleted; balances are mutated only by the transfer and deposit services
// inside the same atomic unit as the ledger entry they produce.
type Account struct {
	ID             string          `db:"id" json:"id"`
	PrincipalID    *string         `db:"principal_id" json:"principal_id"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	TotalDeposited decimal.Decimal `db:"total_deposited" json:"total_deposited"`
	TotalEarned    decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalSpent     decimal.Decimal `db:"total_spent" json:"total_spent"`
	TotalFeesPaid  decimal.Decimal `db:"total_fees_paid" json:"total_fees_paid"`
	Tier           string          `db:"tier" json:"tier"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// IsTreasury reports whether this is the platform treasury account.
func (a Account) IsTreasury() bool { return a.PrincipalID == nil }

// BalanceSummary is the read-model returned to balance queries.
type BalanceSummary struct {
	Balance        decimal.Decimal `json:"balance"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	TotalFeesPaid  decimal.Decimal `json:"total_fees_paid"`
}

// Summary projects the account onto its balance read-model.
func (a Account) Summary() BalanceSummary {
	return BalanceSummary{
		Balance:        a.Balance,
		TotalDeposited: a.TotalDeposited,
		TotalEarned:    a.TotalEarned,
		TotalSpent:     a.TotalSpent,
		TotalFeesPaid:  a.TotalFeesPaid,
	}
}
