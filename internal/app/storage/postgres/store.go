package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/agoramesh/ledger/internal/app/domain/account"
	"github.com/agoramesh/ledger/internal/app/domain/ledger"
	"github.com/agoramesh/ledger/internal/app/domain/redemption"
	"github.com/agoramesh/ledger/internal/app/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// appendLockID serializes ledger appends so sequence order and hash-chain
// order never diverge under concurrent writers.
const appendLockID = 7031

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx so the same CRUD
// methods run inside and outside a transaction.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store implements storage.Backend on PostgreSQL.
type Store struct {
	db *sqlx.DB
	q  queryer
}

var _ storage.Backend = (*Store)(nil)

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// WithinTx runs fn against a store view bound to a single database
// transaction, committing on success and rolling back on error.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- AccountStore -----------------------------------------------------------

const accountColumns = `id, principal_id, balance, total_deposited, total_earned, total_spent, total_fees_paid, tier, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = newID()
	}
	if acct.Tier == "" {
		acct.Tier = account.TierStandard
	}
	ts := time.Now().UTC().Truncate(time.Microsecond)
	acct.CreatedAt = ts
	acct.UpdatedAt = ts

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, acct.ID, acct.PrincipalID, acct.Balance, acct.TotalDeposited, acct.TotalEarned,
		acct.TotalSpent, acct.TotalFeesPaid, acct.Tier, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	acct.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	result, err := s.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $2, total_deposited = $3, total_earned = $4, total_spent = $5,
		    total_fees_paid = $6, tier = $7, updated_at = $8
		WHERE id = $1
	`, acct.ID, acct.Balance, acct.TotalDeposited, acct.TotalEarned, acct.TotalSpent,
		acct.TotalFeesPaid, acct.Tier, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	var acct account.Account
	err := s.q.GetContext(ctx, &acct, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	return acct, err
}

func (s *Store) GetAccountByPrincipal(ctx context.Context, principalID string) (account.Account, error) {
	var acct account.Account
	err := s.q.GetContext(ctx, &acct, `
		SELECT `+accountColumns+` FROM accounts WHERE principal_id = $1
	`, principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	return acct, err
}

func (s *Store) GetTreasuryAccount(ctx context.Context) (account.Account, error) {
	var acct account.Account
	err := s.q.GetContext(ctx, &acct, `
		SELECT `+accountColumns+` FROM accounts WHERE principal_id IS NULL
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	return acct, err
}

// LockAccounts acquires FOR UPDATE row locks in ascending id order so that
// concurrent transfers touching the same accounts never deadlock.
func (s *Store) LockAccounts(ctx context.Context, ids ...string) (map[string]account.Account, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	locked := make(map[string]account.Account, len(unique))
	for _, id := range unique {
		var acct account.Account
		err := s.q.GetContext(ctx, &acct, `
			SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE
		`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		locked[acct.ID] = acct
	}
	return locked, nil
}

// --- LedgerStore ------------------------------------------------------------

const entryColumns = `id, seq, from_account, to_account, amount, fee_amount, burn_amount, tx_type, reference_id, reference_type, idempotency_key, memo, created_at, prev_hash, entry_hash`

type entryRow struct {
	ID             string         `db:"id"`
	Seq            int64          `db:"seq"`
	FromAccount    sql.NullString `db:"from_account"`
	ToAccount      sql.NullString `db:"to_account"`
	Amount         string         `db:"amount"`
	FeeAmount      string         `db:"fee_amount"`
	BurnAmount     string         `db:"burn_amount"`
	TxType         string         `db:"tx_type"`
	ReferenceID    sql.NullString `db:"reference_id"`
	ReferenceType  sql.NullString `db:"reference_type"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	Memo           string         `db:"memo"`
	CreatedAt      time.Time      `db:"created_at"`
	PrevHash       string         `db:"prev_hash"`
	EntryHash      string         `db:"entry_hash"`
}

func (r entryRow) toEntry() (ledger.Entry, error) {
	e := ledger.Entry{
		ID:        r.ID,
		Seq:       r.Seq,
		TxType:    ledger.TxType(r.TxType),
		Memo:      r.Memo,
		CreatedAt: r.CreatedAt.UTC(),
		PrevHash:  r.PrevHash,
		EntryHash: r.EntryHash,
	}
	var err error
	if e.Amount, err = decimalFromNumeric(r.Amount); err != nil {
		return ledger.Entry{}, err
	}
	if e.FeeAmount, err = decimalFromNumeric(r.FeeAmount); err != nil {
		return ledger.Entry{}, err
	}
	if e.BurnAmount, err = decimalFromNumeric(r.BurnAmount); err != nil {
		return ledger.Entry{}, err
	}
	e.FromAccount = nullableString(r.FromAccount)
	e.ToAccount = nullableString(r.ToAccount)
	e.ReferenceID = nullableString(r.ReferenceID)
	e.ReferenceType = nullableString(r.ReferenceType)
	e.IdempotencyKey = nullableString(r.IdempotencyKey)
	return e, nil
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	// Single append point: sequence assignment, prev-hash read, and insert
	// must be atomic relative to other appenders.
	if _, err := s.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockID); err != nil {
		return ledger.Entry{}, err
	}

	if e.IdempotencyKey != nil {
		if _, err := s.GetEntryByIdempotencyKey(ctx, *e.IdempotencyKey); err == nil {
			return ledger.Entry{}, storage.ErrDuplicateIdempotencyKey
		} else if !errors.Is(err, storage.ErrNotFound) {
			return ledger.Entry{}, err
		}
	}

	var prevHash string
	err := s.q.GetContext(ctx, &prevHash, `
		SELECT entry_hash FROM ledger_entries ORDER BY seq DESC LIMIT 1
	`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, err
	}

	e.ID = newID()
	e.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	e.Seal(prevHash)

	row := s.q.QueryRowxContext(ctx, `
		INSERT INTO ledger_entries
			(id, from_account, to_account, amount, fee_amount, burn_amount,
			 tx_type, reference_id, reference_type, idempotency_key, memo,
			 created_at, prev_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`, e.ID, e.FromAccount, e.ToAccount, e.Amount, e.FeeAmount, e.BurnAmount,
		e.TxType, e.ReferenceID, e.ReferenceType, e.IdempotencyKey, e.Memo,
		e.CreatedAt, e.PrevHash, e.EntryHash)
	if err := row.Scan(&e.Seq); err != nil {
		if isUniqueViolation(err) {
			return ledger.Entry{}, storage.ErrDuplicateIdempotencyKey
		}
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (ledger.Entry, error) {
	var row entryRow
	err := s.q.GetContext(ctx, &row, `
		SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, err
	}
	return row.toEntry()
}

func (s *Store) GetEntryByIdempotencyKey(ctx context.Context, key string) (ledger.Entry, error) {
	var row entryRow
	err := s.q.GetContext(ctx, &row, `
		SELECT `+entryColumns+` FROM ledger_entries WHERE idempotency_key = $1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, err
	}
	return row.toEntry()
}

func (s *Store) ListEntriesByAccount(ctx context.Context, accountID string, page, pageSize int) ([]ledger.Entry, int64, error) {
	var total int64
	err := s.q.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE from_account = $1 OR to_account = $1
	`, accountID)
	if err != nil {
		return nil, 0, err
	}

	var rows []entryRow
	err = s.q.SelectContext(ctx, &rows, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE from_account = $1 OR to_account = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}

func (s *Store) ListEntriesFrom(ctx context.Context, entryID string) ([]ledger.Entry, error) {
	var fromSeq int64
	if entryID != "" {
		err := s.q.GetContext(ctx, &fromSeq, `
			SELECT seq FROM ledger_entries WHERE id = $1
		`, entryID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	var rows []entryRow
	err := s.q.SelectContext(ctx, &rows, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE seq >= $1
		ORDER BY seq ASC
	`, fromSeq)
	if err != nil {
		return nil, err
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// --- RedemptionStore --------------------------------------------------------

const redemptionColumns = `id, principal_id, redemption_type, amount_usd, amount_fiat, status, payout_ref, ledger_entry_id, admin_notes, rejection_reason, created_at, processed_at, completed_at`

type redemptionRow struct {
	ID              string       `db:"id"`
	PrincipalID     string       `db:"principal_id"`
	RedemptionType  string       `db:"redemption_type"`
	AmountUSD       string       `db:"amount_usd"`
	AmountFiat      string       `db:"amount_fiat"`
	Status          string       `db:"status"`
	PayoutRef       string       `db:"payout_ref"`
	LedgerEntryID   string       `db:"ledger_entry_id"`
	AdminNotes      string       `db:"admin_notes"`
	RejectionReason string       `db:"rejection_reason"`
	CreatedAt       time.Time    `db:"created_at"`
	ProcessedAt     sql.NullTime `db:"processed_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
}

func (r redemptionRow) toRequest() (redemption.Request, error) {
	req := redemption.Request{
		ID:              r.ID,
		PrincipalID:     r.PrincipalID,
		Type:            redemption.Type(r.RedemptionType),
		Status:          redemption.Status(r.Status),
		PayoutRef:       r.PayoutRef,
		LedgerEntryID:   r.LedgerEntryID,
		AdminNotes:      r.AdminNotes,
		RejectionReason: r.RejectionReason,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	var err error
	if req.AmountUSD, err = decimalFromNumeric(r.AmountUSD); err != nil {
		return redemption.Request{}, err
	}
	if req.AmountFiat, err = decimalFromNumeric(r.AmountFiat); err != nil {
		return redemption.Request{}, err
	}
	if r.ProcessedAt.Valid {
		t := r.ProcessedAt.Time.UTC()
		req.ProcessedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		req.CompletedAt = &t
	}
	return req, nil
}

func (s *Store) CreateRedemption(ctx context.Context, req redemption.Request) (redemption.Request, error) {
	if req.ID == "" {
		req.ID = newID()
	}
	req.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO redemption_requests (`+redemptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, req.ID, req.PrincipalID, string(req.Type), req.AmountUSD, req.AmountFiat,
		string(req.Status), req.PayoutRef, req.LedgerEntryID, req.AdminNotes,
		req.RejectionReason, req.CreatedAt, req.ProcessedAt, req.CompletedAt)
	if err != nil {
		return redemption.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRedemption(ctx context.Context, req redemption.Request) (redemption.Request, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE redemption_requests
		SET status = $2, payout_ref = $3, admin_notes = $4, rejection_reason = $5,
		    processed_at = $6, completed_at = $7
		WHERE id = $1
	`, req.ID, string(req.Status), req.PayoutRef, req.AdminNotes,
		req.RejectionReason, req.ProcessedAt, req.CompletedAt)
	if err != nil {
		return redemption.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return redemption.Request{}, redemption.ErrNotFound
	}
	return req, nil
}

func (s *Store) GetRedemption(ctx context.Context, id string) (redemption.Request, error) {
	var row redemptionRow
	err := s.q.GetContext(ctx, &row, `
		SELECT `+redemptionColumns+` FROM redemption_requests WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return redemption.Request{}, redemption.ErrNotFound
	}
	if err != nil {
		return redemption.Request{}, err
	}
	return row.toRequest()
}

func (s *Store) ListRedemptions(ctx context.Context, principalID string, page, pageSize int) ([]redemption.Request, int64, error) {
	var total int64
	err := s.q.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM redemption_requests WHERE principal_id = $1
	`, principalID)
	if err != nil {
		return nil, 0, err
	}

	var rows []redemptionRow
	err = s.q.SelectContext(ctx, &rows, `
		SELECT `+redemptionColumns+` FROM redemption_requests
		WHERE principal_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, principalID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}

	reqs := make([]redemption.Request, 0, len(rows))
	for _, r := range rows {
		req, err := r.toRequest()
		if err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, req)
	}
	return reqs, total, nil
}

func (s *Store) ListRedemptionsByStatus(ctx context.Context, status redemption.Status) ([]redemption.Request, error) {
	var rows []redemptionRow
	err := s.q.SelectContext(ctx, &rows, `
		SELECT `+redemptionColumns+` FROM redemption_requests
		WHERE status = $1
		ORDER BY created_at ASC
	`, string(status))
	if err != nil {
		return nil, err
	}

	reqs := make([]redemption.Request, 0, len(rows))
	for _, r := range rows {
		req, err := r.toRequest()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// --- CreditStore ------------------------------------------------------------

func (s *Store) GetCreditBalance(ctx context.Context, principalID string) (redemption.CreditBalance, error) {
	var bal redemption.CreditBalance
	err := s.q.GetContext(ctx, &bal, `
		SELECT principal_id, credits_remaining, credits_total_purchased, updated_at
		FROM api_credit_balances
		WHERE principal_id = $1
	`, principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return redemption.CreditBalance{}, storage.ErrNotFound
	}
	return bal, err
}

func (s *Store) AddCredits(ctx context.Context, principalID string, credits int64) (redemption.CreditBalance, error) {
	var bal redemption.CreditBalance
	err := s.q.GetContext(ctx, &bal, `
		INSERT INTO api_credit_balances (principal_id, credits_remaining, credits_total_purchased, updated_at)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (principal_id) DO UPDATE
		SET credits_remaining = api_credit_balances.credits_remaining + EXCLUDED.credits_remaining,
		    credits_total_purchased = api_credit_balances.credits_total_purchased + EXCLUDED.credits_total_purchased,
		    updated_at = EXCLUDED.updated_at
		RETURNING principal_id, credits_remaining, credits_total_purchased, updated_at
	`, principalID, credits, time.Now().UTC())
	if err != nil {
		return redemption.CreditBalance{}, err
	}
	return bal, nil
}

// --- ProfileStore -----------------------------------------------------------

type profileRow struct {
	PrincipalID string    `db:"principal_id"`
	Method      string    `db:"method"`
	Details     []byte    `db:"details"`
	Active      bool      `db:"active"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r profileRow) toProfile() (redemption.Profile, error) {
	p := redemption.Profile{
		PrincipalID: r.PrincipalID,
		Method:      redemption.PayoutMethod(r.Method),
		Active:      r.Active,
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &p.Details); err != nil {
			return redemption.Profile{}, err
		}
	}
	return p, nil
}

func (s *Store) UpsertPayoutProfile(ctx context.Context, p redemption.Profile) (redemption.Profile, error) {
	details, err := json.Marshal(p.Details)
	if err != nil {
		return redemption.Profile{}, err
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO payout_profiles (principal_id, method, details, active, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (principal_id) DO UPDATE
		SET method = EXCLUDED.method, details = EXCLUDED.details,
		    active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`, p.PrincipalID, string(p.Method), details, p.Active, p.UpdatedAt)
	if err != nil {
		return redemption.Profile{}, err
	}
	return p, nil
}

func (s *Store) GetPayoutProfile(ctx context.Context, principalID string) (redemption.Profile, error) {
	var row profileRow
	err := s.q.GetContext(ctx, &row, `
		SELECT principal_id, method, details, active, updated_at
		FROM payout_profiles
		WHERE principal_id = $1
	`, principalID)
	if errors.Is(err, sql.ErrNoRows) {
		return redemption.Profile{}, storage.ErrNotFound
	}
	if err != nil {
		return redemption.Profile{}, err
	}
	return row.toProfile()
}

func (s *Store) ListActiveProfiles(ctx context.Context) ([]redemption.Profile, error) {
	var rows []profileRow
	err := s.q.SelectContext(ctx, &rows, `
		SELECT principal_id, method, details, active, updated_at
		FROM payout_profiles
		WHERE active AND method <> 'none'
		ORDER BY principal_id
	`)
	if err != nil {
		return nil, err
	}

	profiles := make([]redemption.Profile, 0, len(rows))
	for _, r := range rows {
		p, err := r.toProfile()
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// --- helpers ----------------------------------------------------------------

func newID() string {
	return uuid.NewString()
}

func decimalFromNumeric(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
