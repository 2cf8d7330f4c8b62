// Package ledger defines the append-only, hash-chained record of every
// balance-affecting event. Entries are immutable once written; each entry
// carries the hash of its predecessor so any after-the-fact edit breaks the
// chain and is detectable by re-verification.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxType classifies a ledger entry.
type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxPurchase   TxType = "purchase"
	TxSale       TxType = "sale"
	TxFee        TxType = "fee"
	TxBurn       TxType = "burn"
	TxBonus      TxType = "bonus"
	TxRefund     TxType = "refund"
	TxWithdrawal TxType = "withdrawal"
	TxTransfer   TxType = "transfer"
)

// ValidTxType reports whether t is a known transaction type.
func ValidTxType(t TxType) bool {
	switch t {
	case TxDeposit, TxPurchase, TxSale, TxFee, TxBurn, TxBonus, TxRefund, TxWithdrawal, TxTransfer:
		return true
	}
	return false
}

// Entry is one immutable ledger record. A nil FromAccount marks a mint or
// deposit; a nil ToAccount marks a burn or withdrawal hold.
type Entry struct {
	ID             string          `db:"id" json:"id"`
	Seq            int64           `db:"seq" json:"seq"`
	FromAccount    *string         `db:"from_account" json:"from_account"`
	ToAccount      *string         `db:"to_account" json:"to_account"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	FeeAmount      decimal.Decimal `db:"fee_amount" json:"fee_amount"`
	BurnAmount     decimal.Decimal `db:"burn_amount" json:"burn_amount"`
	TxType         TxType          `db:"tx_type" json:"tx_type"`
	ReferenceID    *string         `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceType  *string         `db:"reference_type" json:"reference_type,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	Memo           string          `db:"memo" json:"memo,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	PrevHash       string          `db:"prev_hash" json:"prev_hash"`
	EntryHash      string          `db:"entry_hash" json:"entry_hash"`
}

// canonicalTimeLayout is the ISO-8601 UTC encoding used for hashing. The
// microsecond precision matches the 6-decimal money scale so hashes are
// reproducible across store backends.
const canonicalTimeLayout = "2006-01-02T15:04:05.000000Z"

// CanonicalString returns the exact byte sequence that is hashed for an
// entry. Amounts are fixed 6-decimal strings and nil accounts encode as the
// empty string, keeping the encoding whitespace- and type-stable.
func (e Entry) CanonicalString() string {
	fields := []string{
		e.PrevHash,
		deref(e.FromAccount),
		deref(e.ToAccount),
		e.Amount.StringFixed(6),
		e.FeeAmount.StringFixed(6),
		e.BurnAmount.StringFixed(6),
		string(e.TxType),
		e.CreatedAt.UTC().Format(canonicalTimeLayout),
	}
	return strings.Join(fields, "|")
}

// ComputeHash returns the hex SHA-256 of the entry's canonical encoding.
func (e Entry) ComputeHash() string {
	sum := sha256.Sum256([]byte(e.CanonicalString()))
	return hex.EncodeToString(sum[:])
}

// Seal links the entry to its predecessor and stamps the entry hash. The
// store calls this exactly once, at append time, after assigning CreatedAt.
func (e *Entry) Seal(prevHash string) {
	e.PrevHash = prevHash
	e.EntryHash = e.ComputeHash()
}

// Verify recomputes the hash against the given predecessor hash and reports
// whether the entry still links and hashes correctly. Both the stored link
// and the recomputed hash are checked; a tampered PrevHash alone would
// otherwise go unnoticed.
func (e Entry) Verify(prevHash string) bool {
	if e.PrevHash != prevHash {
		return false
	}
	return e.ComputeHash() == e.EntryHash
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
