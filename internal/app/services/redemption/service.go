// Package redemption drives the withdrawal workflow: hold-debit at
// creation, type-specific processing, creator cancellation, admin override
// and the monthly batch sweep.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	domain "github.com/agoramesh/ledger/internal/app/domain/redemption"
	"github.com/agoramesh/ledger/internal/app/metrics"
	"github.com/agoramesh/ledger/internal/app/storage"
	"github.com/agoramesh/ledger/pkg/logger"
)

// Service is the payout state machine.
type Service struct {
	store     storage.Backend
	minimums  map[domain.Type]decimal.Decimal
	fiatRates map[domain.Type]decimal.Decimal
	log       *logger.Logger
}

// New constructs the workflow with the default per-type minimums.
func New(store storage.Backend, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("redemption")
	}
	minimums := make(map[domain.Type]decimal.Decimal, len(domain.Minimums))
	for t, m := range domain.Minimums {
		minimums[t] = m
	}
	return &Service{
		store:    store,
		minimums: minimums,
		// UPI payouts settle in INR; the remaining rails are USD-native.
		fiatRates: map[domain.Type]decimal.Decimal{
			domain.TypeUPI: decimal.RequireFromString("83.00"),
		},
		log: log,
	}
}

// WithMinimums overrides the per-type redemption minimums.
func (s *Service) WithMinimums(minimums map[domain.Type]decimal.Decimal) *Service {
	for t, m := range minimums {
		s.minimums[t] = m
	}
	return s
}

// WithFiatRate overrides the USD conversion rate for one payout type.
func (s *Service) WithFiatRate(t domain.Type, rate decimal.Decimal) *Service {
	s.fiatRates[t] = rate
	return s
}

// Minimum returns the smallest redeemable amount for a type.
func (s *Service) Minimum(t domain.Type) (decimal.Decimal, bool) {
	m, ok := s.minimums[t]
	return m, ok
}

// Create opens a redemption request, debiting the principal's balance as a
// hold atomically with the request row. api_credits requests settle inline
// and land completed; the other types stay pending for processing.
func (s *Service) Create(ctx context.Context, principalID string, rtype domain.Type, amountUSD decimal.Decimal) (domain.Request, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return domain.Request{}, fmt.Errorf("principal_id is required")
	}
	if !domain.ValidType(rtype) {
		return domain.Request{}, fmt.Errorf("%q: %w", rtype, domain.ErrInvalidType)
	}
	minimum := s.minimums[rtype]
	if amountUSD.LessThan(minimum) {
		return domain.Request{}, fmt.Errorf("%s is below the %s minimum of %s: %w",
			amountUSD.StringFixed(2), rtype, minimum.StringFixed(2), domain.ErrBelowMinimum)
	}

	var req domain.Request
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		acct, err := tx.GetAccountByPrincipal(ctx, principalID)
		if err != nil {
			return err
		}

		locked, err := tx.LockAccounts(ctx, acct.ID)
		if err != nil {
			return err
		}
		acct = locked[acct.ID]

		if acct.Balance.LessThan(amountUSD) {
			return fmt.Errorf("balance %s, requested %s: %w",
				acct.Balance.StringFixed(6), amountUSD.StringFixed(6), ledger.ErrInsufficientBalance)
		}

		acct.Balance = acct.Balance.Sub(amountUSD)
		if _, err := tx.UpdateAccount(ctx, acct); err != nil {
			return err
		}

		reqID := uuid.NewString()
		refType := "redemption"
		hold, err := tx.AppendEntry(ctx, ledger.Entry{
			FromAccount:   &acct.ID,
			Amount:        amountUSD,
			TxType:        ledger.TxWithdrawal,
			ReferenceID:   &reqID,
			ReferenceType: &refType,
			Memo:          fmt.Sprintf("%s redemption hold", rtype),
		})
		if err != nil {
			return err
		}

		req = domain.Request{
			ID:            reqID,
			PrincipalID:   principalID,
			Type:          rtype,
			AmountUSD:     amountUSD,
			AmountFiat:    s.fiatAmount(rtype, amountUSD),
			Status:        domain.StatusPending,
			LedgerEntryID: hold.ID,
		}
		req, err = tx.CreateRedemption(ctx, req)
		if err != nil {
			return err
		}

		if rtype.Instant() {
			if err := s.settleCredits(ctx, tx, &req); err != nil {
				return err
			}
			req, err = tx.UpdateRedemption(ctx, req)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Request{}, err
	}

	metrics.RecordRedemption(string(rtype), string(req.Status))
	s.log.WithField("request_id", req.ID).
		WithField("principal_id", principalID).
		WithField("type", string(rtype)).
		WithField("status", string(req.Status)).
		Info("redemption request created")
	return req, nil
}

func (s *Service) fiatAmount(rtype domain.Type, amountUSD decimal.Decimal) decimal.Decimal {
	rate, ok := s.fiatRates[rtype]
	if !ok {
		return amountUSD.Round(2)
	}
	return amountUSD.Mul(rate).Round(2)
}

// settleCredits is the api_credits processor: instant conversion of the
// held dollars into API credits.
func (s *Service) settleCredits(ctx context.Context, tx storage.Store, req *domain.Request) error {
	credits := domain.CreditsFor(req.AmountUSD)
	if _, err := tx.AddCredits(ctx, req.PrincipalID, credits); err != nil {
		return err
	}

	now := time.Now().UTC()
	req.Status = domain.StatusCompleted
	req.ProcessedAt = &now
	req.CompletedAt = &now
	req.AdminNotes = appendNote(req.AdminNotes, fmt.Sprintf("Converted to %d API credits", credits))
	return nil
}

// advancePayout is the asynchronous processor shared by gift_card,
// bank_withdrawal and upi. A pending request moves to processing and waits
// for the external rail; a processing request is confirmed complete.
func (s *Service) advancePayout(req *domain.Request, notes string) error {
	now := time.Now().UTC()
	switch req.Status {
	case domain.StatusPending:
		req.Status = domain.StatusProcessing
		req.ProcessedAt = &now
		req.AdminNotes = appendNote(req.AdminNotes, placeholderNote(req.Type))
	case domain.StatusProcessing:
		req.Status = domain.StatusCompleted
		req.CompletedAt = &now
		if req.PayoutRef == "" {
			req.PayoutRef = "PAYOUT-" + strings.ToUpper(uuid.NewString()[:8])
		}
	default:
		return fmt.Errorf("status %s: %w", req.Status, domain.ErrNotActive)
	}
	if notes != "" {
		req.AdminNotes = appendNote(req.AdminNotes, notes)
	}
	return nil
}

func placeholderNote(t domain.Type) string {
	switch t {
	case domain.TypeGiftCard:
		return "Gift card dispatch queued"
	case domain.TypeBankWithdrawal:
		return "Bank transfer initiated, awaiting settlement"
	case domain.TypeUPI:
		return "UPI payout initiated, awaiting confirmation"
	default:
		return "Payout queued"
	}
}

// Cancel lets the owning principal withdraw a still-pending request. The
// held amount is fully refunded through a reversing ledger entry.
func (s *Service) Cancel(ctx context.Context, requestID, principalID string) (domain.Request, error) {
	var req domain.Request
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		var err error
		req, err = tx.GetRedemption(ctx, requestID)
		if err != nil {
			return err
		}
		if req.PrincipalID != principalID {
			return fmt.Errorf("request %s: %w", requestID, domain.ErrUnauthorized)
		}
		if req.Status != domain.StatusPending {
			return fmt.Errorf("status %s: %w", req.Status, domain.ErrNotPending)
		}

		if err := s.refundHold(ctx, tx, req, "Redemption cancelled by creator"); err != nil {
			return err
		}

		now := time.Now().UTC()
		req.Status = domain.StatusRejected
		req.RejectionReason = "Cancelled by creator"
		req.ProcessedAt = &now
		req, err = tx.UpdateRedemption(ctx, req)
		return err
	})
	if err != nil {
		return domain.Request{}, err
	}

	metrics.RecordRedemption(string(req.Type), "cancelled")
	s.log.WithField("request_id", req.ID).Info("redemption cancelled and refunded")
	return req, nil
}

// AdminApprove routes a pending or processing request to its processor.
func (s *Service) AdminApprove(ctx context.Context, requestID, notes string) (domain.Request, error) {
	var req domain.Request
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		var err error
		req, err = tx.GetRedemption(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return fmt.Errorf("status %s: %w", req.Status, domain.ErrNotActive)
		}

		if req.Type.Instant() {
			if err := s.settleCredits(ctx, tx, &req); err != nil {
				return err
			}
			if notes != "" {
				req.AdminNotes = appendNote(req.AdminNotes, notes)
			}
		} else if err := s.advancePayout(&req, notes); err != nil {
			return err
		}

		req, err = tx.UpdateRedemption(ctx, req)
		return err
	})
	if err != nil {
		return domain.Request{}, err
	}

	metrics.RecordRedemption(string(req.Type), string(req.Status))
	s.log.WithField("request_id", req.ID).
		WithField("status", string(req.Status)).
		Info("redemption approved")
	return req, nil
}

// AdminReject refunds the held amount and finalises the request as
// rejected. Valid from any non-terminal state; the refund fires exactly
// once because terminal requests are refused here.
func (s *Service) AdminReject(ctx context.Context, requestID, reason string) (domain.Request, error) {
	var req domain.Request
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		var err error
		req, err = tx.GetRedemption(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return fmt.Errorf("status %s: %w", req.Status, domain.ErrNotActive)
		}

		if err := s.refundHold(ctx, tx, req, "Redemption rejected"); err != nil {
			return err
		}

		now := time.Now().UTC()
		req.Status = domain.StatusRejected
		req.RejectionReason = reason
		req.ProcessedAt = &now
		req, err = tx.UpdateRedemption(ctx, req)
		return err
	})
	if err != nil {
		return domain.Request{}, err
	}

	metrics.RecordRedemption(string(req.Type), "rejected")
	s.log.WithField("request_id", req.ID).
		WithField("reason", reason).
		Info("redemption rejected and refunded")
	return req, nil
}

// CompletePayout records the external rail's settlement outcome for a
// processing request. Failure refunds the hold.
func (s *Service) CompletePayout(ctx context.Context, requestID string, success bool, payoutRef string) (domain.Request, error) {
	var req domain.Request
	err := s.store.WithinTx(ctx, func(tx storage.Store) error {
		var err error
		req, err = tx.GetRedemption(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.StatusProcessing {
			return fmt.Errorf("status %s: %w", req.Status, domain.ErrNotActive)
		}

		now := time.Now().UTC()
		if success {
			req.Status = domain.StatusCompleted
			req.CompletedAt = &now
			req.PayoutRef = payoutRef
		} else {
			if err := s.refundHold(ctx, tx, req, "Payout failed, funds returned"); err != nil {
				return err
			}
			req.Status = domain.StatusFailed
			req.CompletedAt = &now
			req.AdminNotes = appendNote(req.AdminNotes, "External payout failed")
		}
		req, err = tx.UpdateRedemption(ctx, req)
		return err
	})
	if err != nil {
		return domain.Request{}, err
	}

	metrics.RecordRedemption(string(req.Type), string(req.Status))
	s.log.WithField("request_id", req.ID).
		WithField("status", string(req.Status)).
		Info("payout settled")
	return req, nil
}

// refundHold credits the held amount back to the principal's account with
// a reversing ledger entry.
func (s *Service) refundHold(ctx context.Context, tx storage.Store, req domain.Request, memo string) error {
	acct, err := tx.GetAccountByPrincipal(ctx, req.PrincipalID)
	if err != nil {
		return err
	}
	locked, err := tx.LockAccounts(ctx, acct.ID)
	if err != nil {
		return err
	}
	acct = locked[acct.ID]

	acct.Balance = acct.Balance.Add(req.AmountUSD)
	if _, err := tx.UpdateAccount(ctx, acct); err != nil {
		return err
	}

	refType := "redemption"
	_, err = tx.AppendEntry(ctx, ledger.Entry{
		ToAccount:     &acct.ID,
		Amount:        req.AmountUSD,
		TxType:        ledger.TxRefund,
		ReferenceID:   &req.ID,
		ReferenceType: &refType,
		Memo:          memo,
	})
	return err
}

// Page is one page of redemption requests.
type Page struct {
	Requests []domain.Request `json:"requests"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// List returns a principal's requests, most recent first. An empty
// principalID lists across all principals (admin view).
func (s *Service) List(ctx context.Context, principalID string, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	requests, total, err := s.store.ListRedemptions(ctx, principalID, page, pageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Requests: requests, Total: total, Page: page, PageSize: pageSize}, nil
}

// MethodInfo describes one redeemable payout type.
type MethodInfo struct {
	Type       domain.Type     `json:"type"`
	MinimumUSD decimal.Decimal `json:"minimum_usd"`
	Instant    bool            `json:"instant"`
}

// Methods lists the available redemption types with their minimums.
func (s *Service) Methods() []MethodInfo {
	ordered := []domain.Type{domain.TypeAPICredits, domain.TypeGiftCard, domain.TypeUPI, domain.TypeBankWithdrawal}
	infos := make([]MethodInfo, 0, len(ordered))
	for _, t := range ordered {
		infos = append(infos, MethodInfo{Type: t, MinimumUSD: s.minimums[t], Instant: t.Instant()})
	}
	return infos
}

// GetRequest returns one request by id.
func (s *Service) GetRequest(ctx context.Context, requestID string) (domain.Request, error) {
	return s.store.GetRedemption(ctx, requestID)
}

// CreditBalance returns a principal's api-credit balance; a principal who
// never redeemed credits has a zero balance.
func (s *Service) CreditBalance(ctx context.Context, principalID string) (domain.CreditBalance, error) {
	bal, err := s.store.GetCreditBalance(ctx, principalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.CreditBalance{PrincipalID: principalID}, nil
		}
		return domain.CreditBalance{}, err
	}
	return bal, nil
}

// ProcessPendingPayouts advances every pending asynchronous request to
// processing. Used by operators after reviewing the queue.
func (s *Service) ProcessPendingPayouts(ctx context.Context) (int, error) {
	pending, err := s.store.ListRedemptionsByStatus(ctx, domain.StatusPending)
	if err != nil {
		return 0, err
	}

	advanced := 0
	for _, req := range pending {
		if req.Type.Instant() {
			continue
		}
		if _, err := s.AdminApprove(ctx, req.ID, ""); err != nil {
			s.log.WithError(err).WithField("request_id", req.ID).Warn("advance pending payout failed")
			continue
		}
		advanced++
	}
	return advanced, nil
}

// UpsertProfile stores a principal's payout configuration for the batch
// sweep.
func (s *Service) UpsertProfile(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	profile.PrincipalID = strings.TrimSpace(profile.PrincipalID)
	if profile.PrincipalID == "" {
		return domain.Profile{}, fmt.Errorf("principal_id is required")
	}
	if profile.Method != domain.MethodNone {
		if _, ok := profile.Method.RedemptionType(); !ok {
			return domain.Profile{}, fmt.Errorf("payout method %q: %w", profile.Method, domain.ErrInvalidType)
		}
	}
	if _, err := s.store.GetAccountByPrincipal(ctx, profile.PrincipalID); err != nil {
		return domain.Profile{}, err
	}
	return s.store.UpsertPayoutProfile(ctx, profile)
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
