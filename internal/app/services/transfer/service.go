// Package transfer implements the only component allowed to move value
// between two accounts. Every movement debits the sender, credits the
// receiver net of the platform fee, credits the treasury with the fee and
// appends exactly one ledger entry, all in one atomic unit.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/metrics"
	"github.com/agoramesh/ledger/internal/app/storage"
	"github.com/agoramesh/ledger/pkg/logger"
)

// Sender/receiver variants of the account miss, both matching
// account.ErrNotFound.
var (
	ErrSenderNotFound   = fmt.Errorf("sender: %w", account.ErrNotFound)
	ErrReceiverNotFound = fmt.Errorf("receiver: %w", account.ErrNotFound)
)

// DefaultFeeRate is the platform cut applied to transfers when the service
// is constructed without configuration.
var DefaultFeeRate = decimal.RequireFromString("0.02")

// Service is the transfer engine and deposit pipeline.
type Service struct {
	store   storage.Backend
	feeRate decimal.Decimal
	log     *logger.Logger
}

// New constructs the engine. A non-positive feeRate falls back to
// DefaultFeeRate; a zero fee is expressed as decimal.Zero explicitly via
// WithFeeRate.
func New(store storage.Backend, feeRate decimal.Decimal, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("transfer")
	}
	if feeRate.IsNegative() || feeRate.IsZero() {
		feeRate = DefaultFeeRate
	}
	return &Service{store: store, feeRate: feeRate, log: log}
}

// WithFeeRate overrides the platform fee rate, including zero.
func (s *Service) WithFeeRate(rate decimal.Decimal) *Service {
	s.feeRate = rate
	return s
}

// Options carries the optional transfer parameters.
type Options struct {
	IdempotencyKey string
	ReferenceID    string
	ReferenceType  string
	Memo           string
}

// Transfer moves amount from one account to another. The receiver is
// credited amount minus the platform fee; the fee lands on the treasury
// account, which is created on first use. Retrying with the same
// idempotency key returns the original entry with no further effect.
func (s *Service) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, txType ledger.TxType, opts Options) (ledger.Entry, error) {
	if !amount.IsPositive() {
		return ledger.Entry{}, fmt.Errorf("transfer of %s: %w", amount.StringFixed(6), ledger.ErrInvalidAmount)
	}
	if !ledger.ValidTxType(txType) {
		return ledger.Entry{}, fmt.Errorf("unknown tx type %q", txType)
	}
	if fromID == toID {
		return ledger.Entry{}, fmt.Errorf("cannot transfer from account %s to itself", fromID)
	}

	var entry ledger.Entry
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		if _, err := tx.GetAccount(ctx, fromID); err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return fmt.Errorf("%w (%s)", ErrSenderNotFound, fromID)
			}
			return err
		}
		if _, err := tx.GetAccount(ctx, toID); err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return fmt.Errorf("%w (%s)", ErrReceiverNotFound, toID)
			}
			return err
		}

		if opts.IdempotencyKey != "" {
			existing, err := tx.GetEntryByIdempotencyKey(ctx, opts.IdempotencyKey)
			if err == nil {
				entry = existing
				return nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}

		treasury, err := ensureTreasury(ctx, tx)
		if err != nil {
			return err
		}

		locked, err := tx.LockAccounts(ctx, fromID, toID, treasury.ID)
		if err != nil {
			return err
		}
		sender := locked[fromID]
		receiver := locked[toID]
		treasury = locked[treasury.ID]

		if sender.Balance.LessThan(amount) {
			return fmt.Errorf("account %s holds %s, needs %s: %w",
				fromID, sender.Balance.StringFixed(6), amount.StringFixed(6), ledger.ErrInsufficientBalance)
		}

		fee := amount.Mul(s.feeRate).Round(6)
		net := amount.Sub(fee)

		sender.Balance = sender.Balance.Sub(amount)
		sender.TotalSpent = sender.TotalSpent.Add(amount)
		locked[sender.ID] = sender

		receiver = locked[receiver.ID]
		receiver.Balance = receiver.Balance.Add(net)
		receiver.TotalEarned = receiver.TotalEarned.Add(net)
		receiver.TotalFeesPaid = receiver.TotalFeesPaid.Add(fee)
		locked[receiver.ID] = receiver

		treasury = locked[treasury.ID]
		treasury.Balance = treasury.Balance.Add(fee)
		treasury.TotalEarned = treasury.TotalEarned.Add(fee)
		locked[treasury.ID] = treasury

		for _, acct := range locked {
			if _, err := tx.UpdateAccount(ctx, acct); err != nil {
				return err
			}
		}

		entry, err = tx.AppendEntry(ctx, ledger.Entry{
			FromAccount:    &fromID,
			ToAccount:      &toID,
			Amount:         amount,
			FeeAmount:      fee,
			TxType:         txType,
			ReferenceID:    optional(opts.ReferenceID),
			ReferenceType:  optional(opts.ReferenceType),
			IdempotencyKey: optional(opts.IdempotencyKey),
			Memo:           opts.Memo,
		})
		return err
	})
	if err != nil {
		// A concurrent retry won the unique idempotency slot; its entry is
		// the one effect.
		if errors.Is(err, storage.ErrDuplicateIdempotencyKey) && opts.IdempotencyKey != "" {
			if existing, readErr := s.store.GetEntryByIdempotencyKey(ctx, opts.IdempotencyKey); readErr == nil {
				return existing, nil
			}
		}
		metrics.RecordTransfer(string(txType), "failed")
		return ledger.Entry{}, err
	}

	metrics.RecordTransfer(string(txType), "completed")
	s.log.WithField("entry_id", entry.ID).
		WithField("tx_type", string(txType)).
		WithField("amount", amount.StringFixed(6)).
		Info("transfer posted")
	return entry, nil
}

// PurchaseResult reports both parties' balances after a purchase debit.
type PurchaseResult struct {
	Entry         ledger.Entry           `json:"entry"`
	BuyerBalance  account.BalanceSummary `json:"buyer_balance"`
	SellerBalance account.BalanceSummary `json:"seller_balance"`
}

// DebitForPurchase moves the purchase price from buyer to seller using the
// business transaction id as the idempotency context. Accounts are created
// lazily for both principals.
func (s *Service) DebitForPurchase(ctx context.Context, buyerPrincipal, sellerPrincipal string, amount decimal.Decimal, txID string) (PurchaseResult, error) {
	buyer, err := s.ensurePrincipalAccount(ctx, buyerPrincipal)
	if err != nil {
		return PurchaseResult{}, err
	}
	seller, err := s.ensurePrincipalAccount(ctx, sellerPrincipal)
	if err != nil {
		return PurchaseResult{}, err
	}

	entry, err := s.Transfer(ctx, buyer.ID, seller.ID, amount, ledger.TxPurchase, Options{
		IdempotencyKey: "purchase:" + txID,
		ReferenceID:    txID,
		ReferenceType:  "transaction",
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	buyer, err = s.store.GetAccount(ctx, buyer.ID)
	if err != nil {
		return PurchaseResult{}, err
	}
	seller, err = s.store.GetAccount(ctx, seller.ID)
	if err != nil {
		return PurchaseResult{}, err
	}

	return PurchaseResult{
		Entry:         entry,
		BuyerBalance:  buyer.Summary(),
		SellerBalance: seller.Summary(),
	}, nil
}

// Deposit converts an external fiat or credit event into a balance increase
// and a mint-style ledger entry. No fee applies.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, currency, memo string) (ledger.Entry, error) {
	if !amount.IsPositive() {
		return ledger.Entry{}, fmt.Errorf("deposit of %s: %w", amount.StringFixed(6), ledger.ErrInvalidAmount)
	}
	if currency == "" {
		currency = "USD"
	}
	if memo == "" {
		memo = fmt.Sprintf("deposit (%s)", currency)
	}

	var entry ledger.Entry
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		locked, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return err
		}
		acct := locked[accountID]

		acct.Balance = acct.Balance.Add(amount)
		acct.TotalDeposited = acct.TotalDeposited.Add(amount)
		if _, err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}

		entry, err = tx.AppendEntry(ctx, ledger.Entry{
			ToAccount: &accountID,
			Amount:    amount,
			TxType:    ledger.TxDeposit,
			Memo:      memo,
		})
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	metrics.RecordDeposit()
	s.log.WithField("account_id", accountID).
		WithField("amount", amount.StringFixed(6)).
		Info("deposit credited")
	return entry, nil
}

// ensurePrincipalAccount returns the principal's account, creating it
// lazily.
func (s *Service) ensurePrincipalAccount(ctx context.Context, principalID string) (account.Account, error) {
	acct, err := s.store.GetAccountByPrincipal(ctx, principalID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return account.Account{}, err
	}

	pid := principalID
	created, err := s.store.CreateAccount(ctx, account.Account{PrincipalID: &pid})
	if err != nil {
		// Lost a creation race; the existing account wins.
		if acct, getErr := s.store.GetAccountByPrincipal(ctx, principalID); getErr == nil {
			return acct, nil
		}
		return account.Account{}, err
	}
	return created, nil
}

// ensureTreasury returns the treasury account, creating the singleton row
// inside the current unit when absent.
func ensureTreasury(ctx context.Context, tx storage.Store) (account.Account, error) {
	treasury, err := tx.GetTreasuryAccount(ctx)
	if err == nil {
		return treasury, nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return account.Account{}, err
	}
	return tx.CreateAccount(ctx, account.Account{})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
