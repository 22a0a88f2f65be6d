// Package services implements the financial consistency engine: budget
// hierarchy, commitment workflow, contract ceilings, cascading totals,
// deletion guards, the audit trail and next-year forecasts.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/diewo77/go-budgets/actor"
	"github.com/diewo77/go-budgets/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recalculator propagates amount changes inside an open transaction.
type Recalculator interface {
	RecalcBudget(tx *gorm.DB, budgetID uint) error
	OnLineCommittedChanged(tx *gorm.DB, lineID uint) error
	OnPOCommitted(tx *gorm.DB, po *models.PurchaseOrder, delta decimal.Decimal) error
}

// CeilingChecker evaluates a contract ceiling inside an open transaction.
type CeilingChecker interface {
	Check(tx *gorm.DB, contractID uint, amount decimal.Decimal, excludePOID uint) (CeilingCheck, error)
}

// DeletionGuard decides whether an object may be deleted.
type DeletionGuard interface {
	Evaluate(tx *gorm.DB, target Target, id uint) (Decision, error)
}

// Options configures an Engine.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	Now     func() time.Time
	// LegacyAvailable checks funds against max(stored, voted-committed).
	LegacyAvailable bool
	AuditLimitMax   int
}

// Engine wires every component over one database.
type Engine struct {
	Budgets   *BudgetStore
	Orders    *Workflow
	Contracts *ContractTracker
	Recalc    *Recalc
	Guard     *Guard
	Audit     *AuditLog
	Forecast  *ForecastGenerator
	Alerts    *AlertService
	Reference *ReferenceService
}

// New builds the engine.
func New(db *gorm.DB, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	audit := NewAuditLog(db, opts.Logger, opts.Metrics, opts.Now, opts.AuditLimitMax)
	r := &runner{db: db, audit: audit, metrics: opts.Metrics, log: opts.Logger.With("component", "engine"), now: opts.Now}

	recalc := NewRecalc(opts.Logger)
	guard := NewGuard(db)
	contracts := NewContractTracker(r, recalc, guard)

	return &Engine{
		Budgets:   NewBudgetStore(r, recalc, guard),
		Orders:    NewWorkflow(r, recalc, contracts, opts.LegacyAvailable),
		Contracts: contracts,
		Recalc:    recalc,
		Guard:     guard,
		Audit:     audit,
		Forecast:  NewForecastGenerator(r, recalc),
		Alerts:    NewAlertService(db, opts.Now),
		Reference: NewReferenceService(r, guard),
	}
}

// runner is the transaction boundary shared by the mutating components.
type runner struct {
	db      *gorm.DB
	audit   *AuditLog
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
}

// run executes fn in one transaction. Journal entries are flushed only after commit;
// any error rolls everything back and is returned classified.
func (r *runner) run(ctx context.Context, op string, fn func(tx *gorm.DB, j *Journal) error) error {
	start := time.Now()
	j := newJournal(actor.OrSystem(ctx))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, j)
	})
	err = classify(op, err)
	r.metrics.RecordOperation(op, err, time.Since(start))
	if err != nil {
		if KindOf(err) == KindOperational {
			r.log.Error("operation failed", "operation", op, "operation_id", j.operationID, "error", err)
		} else {
			r.log.Info("operation rejected", "operation", op, "kind", KindOf(err), "error", err)
		}
		return err
	}
	r.audit.flush(ctx, j)
	r.log.Debug("operation committed", "operation", op, "operation_id", j.operationID, "actor", j.actor)
	return nil
}

// today returns the current UTC date without time of day.
func (r *runner) today() time.Time {
	return models.TruncateDay(r.now().UTC())
}

func sum(vals []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, vals...)
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
