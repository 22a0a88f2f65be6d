package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-budgets/actor"
	"github.com/diewo77/go-budgets/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "open db")
	require.NoError(t, db.AutoMigrate(models.All()...), "migrate")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	engine   *Engine
	metrics  *Metrics
	entity   *models.Entity
	supplier *models.Supplier
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, Options{})
}

func newFixtureWith(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := setupTestDB(t)
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Metrics = metrics
	opts.Now = func() time.Time { return testNow }
	f := &fixture{
		t:       t,
		ctx:     actor.WithActor(context.Background(), "tester"),
		db:      db,
		engine:  New(db, opts),
		metrics: metrics,
	}
	f.entity, err = f.engine.Budgets.CreateEntity(f.ctx, EntityInput{Code: "dsi", Name: "Information systems"})
	require.NoError(t, err)
	f.supplier, err = f.engine.Reference.CreateSupplier(f.ctx, SupplierInput{Name: "Acme Software"})
	require.NoError(t, err)
	return f
}

// votedLine creates a voted operating budget of the given exercise with one line.
func (f *fixture) votedLine(exercise int, voted string) (*models.AnnualBudget, *models.BudgetLine) {
	f.t.Helper()
	budget, err := f.engine.Budgets.CreateBudget(f.ctx, BudgetInput{EntityID: f.entity.ID, Exercise: exercise, Nature: models.NatureOperating})
	require.NoError(f.t, err)
	line, err := f.engine.Budgets.CreateLine(f.ctx, budget.ID, LineInput{
		Label:          "Licences",
		SupplierID:     &f.supplier.ID,
		ForecastAmount: d(voted),
		VotedAmount:    d(voted),
	})
	require.NoError(f.t, err)
	return budget, line
}

func (f *fixture) contract(number string, amount, max string) *models.Contract {
	f.t.Helper()
	c, err := f.engine.Contracts.CreateContract(f.ctx, ContractInput{
		Number:      number,
		Subject:     "Support and maintenance",
		Type:        models.ContractMaintenance,
		EntityID:    f.entity.ID,
		SupplierID:  f.supplier.ID,
		Nature:      models.NatureOperating,
		AmountHT:    d(amount),
		MaxAmountHT: d(max),
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(f.t, err)
	return c
}

// order creates a purchase order and validates it.
func (f *fixture) order(number, ttc string, lineID, contractID, projectID *uint) *models.PurchaseOrder {
	f.t.Helper()
	po, err := f.engine.Orders.Create(f.ctx, PurchaseOrderInput{
		Number:       number,
		Subject:      "order " + number,
		EntityID:     f.entity.ID,
		SupplierID:   f.supplier.ID,
		ContractID:   contractID,
		BudgetLineID: lineID,
		ProjectID:    projectID,
		AmountHT:     d(ttc),
		AmountTTC:    d(ttc),
	})
	require.NoError(f.t, err)
	res, err := f.engine.Orders.Validate(f.ctx, po.ID, "")
	require.NoError(f.t, err)
	return res.Order
}

func (f *fixture) line(id uint) models.BudgetLine {
	f.t.Helper()
	var l models.BudgetLine
	require.NoError(f.t, f.db.First(&l, id).Error)
	return l
}

func (f *fixture) budget(id uint) models.AnnualBudget {
	f.t.Helper()
	var b models.AnnualBudget
	require.NoError(f.t, f.db.First(&b, id).Error)
	return b
}

func (f *fixture) contractRow(id uint) models.Contract {
	f.t.Helper()
	var c models.Contract
	require.NoError(f.t, f.db.First(&c, id).Error)
	return c
}

func (f *fixture) orderRow(id uint) models.PurchaseOrder {
	f.t.Helper()
	var po models.PurchaseOrder
	require.NoError(f.t, f.db.First(&po, id).Error)
	return po
}

func (f *fixture) auditCount(where string, args ...any) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.AuditEntry{}).Where(where, args...).Count(&n).Error)
	return n
}

func requireAmount(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	require.Truef(t, got.Equal(d(want)), "%s: got %s want %s", msg, got.StringFixed(2), want)
}
