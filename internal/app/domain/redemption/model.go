// Package redemption defines withdrawal (payout) requests, their state
// machine, per-type minimums and the api-credit balance derived from the
// instant redemption path.
package redemption

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies the payout rail a request targets.
type Type string

const (
	TypeAPICredits     Type = "api_credits"
	TypeGiftCard       Type = "gift_card"
	TypeBankWithdrawal Type = "bank_withdrawal"
	TypeUPI            Type = "upi"
)

// Status is the lifecycle state of a request.
//
//	pending -> {completed | processing} -> {completed | failed | rejected}
//
// completed, rejected and failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusFailed
}

// Minimums holds the smallest redeemable USD amount per type.
var Minimums = map[Type]decimal.Decimal{
	TypeAPICredits:     decimal.RequireFromString("0.10"),
	TypeGiftCard:       decimal.RequireFromString("1.00"),
	TypeUPI:            decimal.RequireFromString("5.00"),
	TypeBankWithdrawal: decimal.RequireFromString("10.00"),
}

// ValidType reports whether t is a known redemption type.
func ValidType(t Type) bool {
	_, ok := Minimums[t]
	return ok
}

// Instant reports whether the type settles synchronously at creation.
func (t Type) Instant() bool { return t == TypeAPICredits }

// Request is one withdrawal request. The held funds are debited from the
// principal's account atomically with creation; LedgerEntryID references
// that withdrawal-hold entry.
type Request struct {
	ID              string          `db:"id" json:"id"`
	PrincipalID     string          `db:"principal_id" json:"principal_id"`
	Type            Type            `db:"redemption_type" json:"redemption_type"`
	AmountUSD       decimal.Decimal `db:"amount_usd" json:"amount_usd"`
	AmountFiat      decimal.Decimal `db:"amount_fiat" json:"amount_fiat"`
	Status          Status          `db:"status" json:"status"`
	PayoutRef       string          `db:"payout_ref" json:"payout_ref,omitempty"`
	LedgerEntryID   string          `db:"ledger_entry_id" json:"ledger_entry_id"`
	AdminNotes      string          `db:"admin_notes" json:"admin_notes,omitempty"`
	RejectionReason string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt     *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// CreditBalance is the derived ledger of non-monetary API credits, produced
// only by the api_credits redemption path. One row per creator, upserted.
type CreditBalance struct {
	PrincipalID           string    `db:"principal_id" json:"principal_id"`
	CreditsRemaining      int64     `db:"credits_remaining" json:"credits_remaining"`
	CreditsTotalPurchased int64     `db:"credits_total_purchased" json:"credits_total_purchased"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// CreditsPerUSD converts redeemed dollars into API credits.
const CreditsPerUSD = 1000

// CreditsFor returns floor(amount * 1000) credits for a USD amount.
func CreditsFor(amountUSD decimal.Decimal) int64 {
	return amountUSD.Mul(decimal.NewFromInt(CreditsPerUSD)).Floor().IntPart()
}

// PayoutMethod is a principal's configured destination for batch payouts.
type PayoutMethod string

const (
	MethodNone           PayoutMethod = "none"
	MethodAPICredits     PayoutMethod = "api_credits"
	MethodGiftCard       PayoutMethod = "gift_card"
	MethodBankWithdrawal PayoutMethod = "bank_withdrawal"
	MethodUPI            PayoutMethod = "upi"
)

// RedemptionType maps a payout method onto the redemption type it produces.
// The boolean is false for MethodNone and unknown methods.
func (m PayoutMethod) RedemptionType() (Type, bool) {
	switch m {
	case MethodAPICredits:
		return TypeAPICredits, true
	case MethodGiftCard:
		return TypeGiftCard, true
	case MethodBankWithdrawal:
		return TypeBankWithdrawal, true
	case MethodUPI:
		return TypeUPI, true
	}
	return "", false
}

// MethodDetails is the tagged per-method destination data. Exactly one of
// the pointers is set, matching Profile.Method.
type MethodDetails struct {
	GiftCard *GiftCardDetails `json:"gift_card,omitempty"`
	Bank     *BankDetails     `json:"bank,omitempty"`
	UPI      *UPIDetails      `json:"upi,omitempty"`
}

// GiftCardDetails selects the gift card brand and delivery address.
type GiftCardDetails struct {
	Brand string `json:"brand"`
	Email string `json:"email"`
}

// BankDetails carries the minimum needed to route a bank transfer.
type BankDetails struct {
	AccountLast4 string `json:"account_last4"`
	RoutingCode  string `json:"routing_code"`
	HolderName   string `json:"holder_name"`
}

// UPIDetails carries the UPI virtual payment address.
type UPIDetails struct {
	VPA string `json:"vpa"`
}

// Profile is a principal's payout configuration, consumed by the monthly
// batch sweep.
type Profile struct {
	PrincipalID string        `json:"principal_id"`
	Method      PayoutMethod  `json:"method"`
	Details     MethodDetails `json:"details"`
	Active      bool          `json:"active"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
