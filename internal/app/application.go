// Package app ties the ledger services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/agoramesh/ledger/internal/app/config"
	"github.com/agoramesh/ledger/internal/app/domain/redemption"
	"github.com/agoramesh/ledger/internal/app/services/accounts"
	auditsvc "github.com/agoramesh/ledger/internal/app/services/audit"
	redemptionsvc "github.com/agoramesh/ledger/internal/app/services/redemption"
	transfersvc "github.com/agoramesh/ledger/internal/app/services/transfer"
	"github.com/agoramesh/ledger/internal/app/storage"
	"github.com/agoramesh/ledger/internal/app/storage/memory"
	"github.com/agoramesh/ledger/internal/app/system"
	"github.com/agoramesh/ledger/pkg/logger"
)

// Options tunes service construction. Zero values fall back to the
// defaults baked into each service.
type Options struct {
	FeeRate      decimal.Decimal
	Minimums     map[redemption.Type]decimal.Decimal
	UPIFiatRate  decimal.Decimal
	SweepSpec    string
	SweepEnabled bool
}

// OptionsFromConfig lifts the parsed configuration into service options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	feeRate, err := cfg.FeeRate()
	if err != nil {
		return Options{}, err
	}
	rawMinimums, err := cfg.RedemptionMinimums()
	if err != nil {
		return Options{}, err
	}
	minimums := make(map[redemption.Type]decimal.Decimal, len(rawMinimums))
	for name, m := range rawMinimums {
		t := redemption.Type(name)
		if !redemption.ValidType(t) {
			return Options{}, fmt.Errorf("unknown redemption type %q in minimums", name)
		}
		minimums[t] = m
	}
	upiRate, err := cfg.UPIRate()
	if err != nil {
		return Options{}, err
	}
	return Options{
		FeeRate:      feeRate,
		Minimums:     minimums,
		UPIFiatRate:  upiRate,
		SweepSpec:    cfg.Ledger.SweepSpec,
		SweepEnabled: cfg.Ledger.SweepEnabled,
	}, nil
}

// Application holds the wired services and their lifecycle manager.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Store       storage.Backend
	Accounts    *accounts.Service
	Transfers   *transfersvc.Service
	Redemptions *redemptionsvc.Service
	Audit       *auditsvc.Service
}

// New builds a fully initialised application. A nil store defaults to the
// in-memory backend.
func New(store storage.Backend, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if store == nil {
		store = memory.New()
	}

	acctService := accounts.New(store, log)
	transferService := transfersvc.New(store, opts.FeeRate, log)
	redemptionService := redemptionsvc.New(store, log)
	if len(opts.Minimums) > 0 {
		redemptionService.WithMinimums(opts.Minimums)
	}
	if !opts.UPIFiatRate.IsZero() {
		redemptionService.WithFiatRate(redemption.TypeUPI, opts.UPIFiatRate)
	}
	auditService := auditsvc.New(store, log)

	if _, err := acctService.EnsurePlatformAccount(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure treasury account: %w", err)
	}

	manager := system.NewManager()
	if opts.SweepEnabled {
		sweeper := redemptionsvc.NewSweeper(redemptionService, opts.SweepSpec, log)
		if err := manager.Register(sweeper); err != nil {
			return nil, fmt.Errorf("register payout sweeper: %w", err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Store:       store,
		Accounts:    acctService,
		Transfers:   transferService,
		Redemptions: redemptionService,
		Audit:       auditService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
