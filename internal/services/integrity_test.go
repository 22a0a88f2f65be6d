package services

import (
	"errors"
	"testing"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanDeleteSupplier(t *testing.T) {
	f := newFixture(t)
	dec, err := f.engine.Guard.CanDelete(f.ctx, TargetSupplier, f.supplier.ID)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Empty(t, dec.Reason)

	f.contract("CT-1", "1000", "0")
	f.order("PO-1", "10", nil, nil, nil)

	dec, err = f.engine.Guard.CanDelete(f.ctx, TargetSupplier, f.supplier.ID)
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.EqualValues(t, 1, dec.Blockers["running contract(s)"])
	assert.EqualValues(t, 1, dec.Blockers["open purchase order(s)"])
	assert.Contains(t, dec.Reason, "supplier")

	err = f.engine.Reference.DeleteSupplier(f.ctx, f.supplier.ID)
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestCanDeleteIgnoresClosedOrders(t *testing.T) {
	f := newFixture(t)
	c := f.contract("CT-1", "1000", "0")
	po, err := f.engine.Orders.Create(f.ctx, PurchaseOrderInput{Number: "PO-1", EntityID: f.entity.ID, SupplierID: f.supplier.ID, ContractID: &c.ID, AmountTTC: d("10")})
	require.NoError(t, err)
	_, err = f.engine.Orders.Cancel(f.ctx, po.ID)
	require.NoError(t, err)

	dec, err := f.engine.Guard.CanDelete(f.ctx, TargetContract, c.ID)
	require.NoError(t, err)
	assert.True(t, dec.Allowed)

	require.NoError(t, f.db.Model(c).Update("status", models.ContractTerminated).Error)
	dec, err = f.engine.Guard.CanDelete(f.ctx, TargetSupplier, f.supplier.ID)
	require.NoError(t, err)
	assert.True(t, dec.Allowed, "terminated contract and cancelled order do not block: %s", dec.Reason)
	require.NoError(t, f.engine.Reference.DeleteSupplier(f.ctx, f.supplier.ID))
}

func TestCanDeleteBudgetLine(t *testing.T) {
	f := newFixture(t)
	_, line := f.votedLine(2025, "1000")
	po := f.order("PO-1", "10", &line.ID, nil, nil)

	dec, err := f.engine.Guard.CanDelete(f.ctx, TargetBudgetLine, line.ID)
	require.NoError(t, err)
	assert.False(t, dec.Allowed, "validated orders are engaged")

	_, err = f.engine.Orders.Commit(f.ctx, po.ID, CommitOptions{})
	require.NoError(t, err)
	_, err = f.engine.Orders.Settle(f.ctx, po.ID, SettleOptions{})
	require.NoError(t, err)
	dec, err = f.engine.Guard.CanDelete(f.ctx, TargetBudgetLine, line.ID)
	require.NoError(t, err)
	assert.False(t, dec.Allowed, "settled orders stay engaged")
	assert.EqualValues(t, 1, dec.Blockers["engaged purchase order(s)"])
}

func TestCanDeleteApplication(t *testing.T) {
	f := newFixture(t)
	app, err := f.engine.Reference.CreateApplication(f.ctx, ApplicationInput{Code: "erp", Name: "ERP"})
	require.NoError(t, err)
	assert.Equal(t, "ERP", app.Code)
	budget, err := f.engine.Budgets.CreateBudget(f.ctx, BudgetInput{EntityID: f.entity.ID, Exercise: 2025, Nature: models.NatureOperating})
	require.NoError(t, err)
	line, err := f.engine.Budgets.CreateLine(f.ctx, budget.ID, LineInput{Label: "ERP run", ApplicationID: &app.ID})
	require.NoError(t, err)

	err = f.engine.Reference.DeleteApplication(f.ctx, app.ID)
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

	frozen := models.LineFrozen
	_, err = f.engine.Budgets.UpdateLine(f.ctx, line.ID, LineUpdate{Status: &frozen})
	require.NoError(t, err)
	require.NoError(t, f.engine.Reference.DeleteApplication(f.ctx, app.ID))

	_, err = f.engine.Reference.CreateApplication(f.ctx, ApplicationInput{Code: "crm", Name: "CRM"})
	require.NoError(t, err)
	_, err = f.engine.Reference.CreateApplication(f.ctx, ApplicationInput{Code: "CRM", Name: "Other"})
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestCanDeleteMissingAndUnknown(t *testing.T) {
	f := newFixture(t)
	for _, target := range []Target{TargetSupplier, TargetContract, TargetBudgetLine, TargetBudget, TargetEntity, TargetApplication} {
		_, err := f.engine.Guard.CanDelete(f.ctx, target, 404)
		assert.True(t, errors.Is(err, ErrNotFound), "%s: got %v", target, err)
	}
	_, err := f.engine.Guard.CanDelete(f.ctx, Target("invoice"), 1)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
}
