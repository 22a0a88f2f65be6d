package services

import (
	"errors"
	"testing"
	"time"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCeiling(t *testing.T) {
	f := newFixture(t)
	c := f.contract("CT-1", "40000", "50000")
	f.order("PO-1", "42000", nil, &c.ID, nil)

	chk, err := f.engine.Contracts.CheckCeiling(f.ctx, c.ID, d("9000"), 0)
	require.NoError(t, err)
	assert.False(t, chk.Allowed)
	requireAmount(t, "42000", chk.Cumulative, "cumulative")
	requireAmount(t, "1000", chk.Overrun, "overrun")

	chk, err = f.engine.Contracts.CheckCeiling(f.ctx, c.ID, d("5000"), 0)
	require.NoError(t, err)
	assert.True(t, chk.Allowed)
	requireAmount(t, "3000", chk.Remaining, "remaining")
	requireAmount(t, "0", chk.Overrun, "overrun")
}

func TestCheckCeilingIgnoresDraftsAndCancelled(t *testing.T) {
	f := newFixture(t)
	c := f.contract("CT-1", "1000", "0")
	_, err := f.engine.Orders.Create(f.ctx, PurchaseOrderInput{Number: "PO-D", EntityID: f.entity.ID, SupplierID: f.supplier.ID, ContractID: &c.ID, AmountTTC: d("900")})
	require.NoError(t, err)
	counted := f.order("PO-V", "600", nil, &c.ID, nil)

	chk, err := f.engine.Contracts.CheckCeiling(f.ctx, c.ID, d("400"), 0)
	require.NoError(t, err)
	assert.True(t, chk.Allowed)
	requireAmount(t, "600", chk.Cumulative, "cumulative")

	// the order being re-evaluated does not count against itself
	chk, err = f.engine.Contracts.CheckCeiling(f.ctx, c.ID, d("600"), counted.ID)
	require.NoError(t, err)
	requireAmount(t, "0", chk.Cumulative, "cumulative without self")
}

func TestCheckCeilingUnlimited(t *testing.T) {
	f := newFixture(t)
	c := f.contract("CT-1", "0", "0")

	chk, err := f.engine.Contracts.CheckCeiling(f.ctx, c.ID, d("1000000"), 0)
	require.NoError(t, err)
	assert.True(t, chk.Allowed)
	assert.True(t, chk.Unlimited)

	_, err = f.engine.Contracts.CheckCeiling(f.ctx, 404, d("1"), 0)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	_, err = f.engine.Contracts.CheckCeiling(f.ctx, c.ID, d("-1"), 0)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
}

func (f *fixture) renewable(number string, end time.Time, renewalsMax int, annual string) *models.Contract {
	f.t.Helper()
	c, err := f.engine.Contracts.CreateContract(f.ctx, ContractInput{
		Number:         number,
		Subject:        "Hosting",
		Type:           models.ContractMaintenance,
		EntityID:       f.entity.ID,
		SupplierID:     f.supplier.ID,
		Nature:         models.NatureOperating,
		AmountHT:       d("12000"),
		AnnualAmountHT: d(annual),
		StartDate:      end.AddDate(-1, 0, 1),
		EndDate:        end,
		RenewalsMax:    renewalsMax,
	})
	require.NoError(f.t, err)
	return c
}

func TestRenewWithinLimit(t *testing.T) {
	f := newFixture(t)
	c := f.renewable("CT-1", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 3, "0")
	require.NoError(t, f.db.Model(c).Update("renewals_done", 2).Error)

	res, err := f.engine.Contracts.Renew(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.RenewalsDone)
	assert.True(t, res.NewEndDate.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)), "new end %s", res.NewEndDate)

	stored := f.contractRow(c.ID)
	assert.Equal(t, models.ContractRenewed, stored.Status)
	assert.Equal(t, 3, stored.RenewalsDone)
	assert.Equal(t, "2026-12-31", stored.EndDate.UTC().Format(time.DateOnly))
	assert.EqualValues(t, 1, f.auditCount("object_type = ? AND object_id = ? AND action = ?", models.ObjectContract, c.ID, models.ActionRenewal))

	_, err = f.engine.Contracts.Renew(f.ctx, c.ID)
	assert.True(t, errors.Is(err, ErrLimitExceeded), "got %v", err)
	assert.Equal(t, 3, f.contractRow(c.ID).RenewalsDone)
}

func TestRenewLeapDay(t *testing.T) {
	f := newFixture(t)
	c := f.renewable("CT-1", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), 1, "0")

	res, err := f.engine.Contracts.Renew(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", res.NewEndDate.Format(time.DateOnly))
}

func TestRenewRejections(t *testing.T) {
	f := newFixture(t)
	plain := f.renewable("CT-1", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 0, "0")
	_, err := f.engine.Contracts.Renew(f.ctx, plain.ID)
	assert.True(t, errors.Is(err, ErrInvalidState), "not renewable: %v", err)

	ended := f.renewable("CT-2", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 2, "0")
	require.NoError(t, f.db.Model(ended).Update("status", models.ContractTerminated).Error)
	_, err = f.engine.Contracts.Renew(f.ctx, ended.ID)
	assert.True(t, errors.Is(err, ErrInvalidState), "terminated: %v", err)

	_, err = f.engine.Contracts.Renew(f.ctx, 404)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestRenewCarriesAnnualAmount(t *testing.T) {
	f := newFixture(t)
	budget, line := f.votedLine(2026, "5000")
	c := f.renewable("CT-1", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 1, "1200")

	res, err := f.engine.Contracts.Renew(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	require.NotNil(t, res.LineID)
	assert.Equal(t, line.ID, *res.LineID)

	l := f.line(line.ID)
	requireAmount(t, "6200", l.VotedAmount, "line voted")
	requireAmount(t, "6200", l.AvailableAmount, "line available")
	requireAmount(t, "6200", f.budget(budget.ID).VotedAmount, "budget voted")
}

func TestRenewWithoutLineWarns(t *testing.T) {
	f := newFixture(t)
	c := f.renewable("CT-1", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 1, "1200")

	res, err := f.engine.Contracts.Renew(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "reconciled manually")
	assert.Nil(t, res.LineID)
	assert.Equal(t, 1, f.contractRow(c.ID).RenewalsDone)
}

func TestDeleteContractGuarded(t *testing.T) {
	f := newFixture(t)
	c := f.contract("CT-1", "1000", "0")
	f.order("PO-1", "10", nil, &c.ID, nil)

	err := f.engine.Contracts.DeleteContract(f.ctx, c.ID)
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Reason, "1 purchase order(s)")

	free := f.contract("CT-2", "1000", "0")
	require.NoError(t, f.engine.Contracts.DeleteContract(f.ctx, free.ID))
	_, err = f.engine.Contracts.GetContract(f.ctx, free.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestCreateContractValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Contracts.CreateContract(f.ctx, ContractInput{Number: "CT-1"})
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindValidation, e.Kind)
	assert.Contains(t, e.Fields, "subject")
	assert.Contains(t, e.Fields, "end_date")

	_, err = f.engine.Contracts.CreateContract(f.ctx, ContractInput{
		Number: "CT-1", Subject: "x", Type: models.ContractMAPA, Nature: models.NatureOperating,
		EntityID: f.entity.ID, SupplierID: 404, EndDate: testNow,
	})
	assert.True(t, errors.Is(err, ErrMissingReference), "got %v", err)
}
