package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareNextYearIdempotent(t *testing.T) {
	f := newFixture(t)
	_, line := f.votedLine(2025, "1000")
	_, err := f.engine.Budgets.CreateLine(f.ctx, line.BudgetID, LineInput{Label: "Hosting", ForecastAmount: d("300")})
	require.NoError(t, err)
	in := PrepareInput{EntityID: f.entity.ID, SourceYear: 2025, TargetYear: 2026}

	n, err := f.engine.Forecast.PrepareNextYear(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	budgets, err := f.engine.Budgets.ListBudgets(f.ctx, BudgetFilter{EntityID: f.entity.ID, Exercise: 2026})
	require.NoError(t, err)
	require.Len(t, budgets, len(models.Natures), "one budget per nature")

	var opex models.AnnualBudget
	for _, b := range budgets {
		assert.Equal(t, models.BudgetInPreparation, b.Status)
		if b.Nature == models.NatureOperating {
			opex = b
		}
	}
	lines, err := f.engine.Budgets.ListLines(f.ctx, opex.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	requireAmount(t, "1000", lines[0].ForecastAmount, "voted amount becomes the forecast")
	requireAmount(t, "0", lines[0].VotedAmount, "nothing voted yet")
	requireAmount(t, "300", lines[1].ForecastAmount, "forecast kept when nothing voted")
	requireAmount(t, "1300", f.budget(opex.ID).ForecastAmount, "budget forecast")

	n, err = f.engine.Forecast.PrepareNextYear(f.ctx, in)
	require.NoError(t, err)
	assert.Zero(t, n)
	lines, err = f.engine.Budgets.ListLines(f.ctx, opex.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestPrepareNextYearMaintenanceContracts(t *testing.T) {
	f := newFixture(t)
	subject := "Annual support for the document management platform and its connectors"
	running, err := f.engine.Contracts.CreateContract(f.ctx, ContractInput{
		Number: "CT-1", Subject: subject, Type: models.ContractMaintenance, Nature: models.NatureOperating,
		EntityID: f.entity.ID, SupplierID: f.supplier.ID, AmountHT: d("2400"),
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	// ended too long before the target year
	_, err = f.engine.Contracts.CreateContract(f.ctx, ContractInput{
		Number: "CT-2", Subject: "Old", Type: models.ContractMaintenance, Nature: models.NatureOperating,
		EntityID: f.entity.ID, SupplierID: f.supplier.ID, AmountHT: d("100"),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	// not a maintenance contract
	_, err = f.engine.Contracts.CreateContract(f.ctx, ContractInput{
		Number: "CT-3", Subject: "Framework", Type: models.ContractOrderFramework, Nature: models.NatureOperating,
		EntityID: f.entity.ID, SupplierID: f.supplier.ID, AmountHT: d("100"),
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	in := PrepareInput{EntityID: f.entity.ID, SourceYear: 2025, TargetYear: 2026}
	preview, err := f.engine.Forecast.PreviewNextYear(f.ctx, in)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.False(t, preview[0].Exists)
	require.NotNil(t, preview[0].ContractID)
	assert.Equal(t, running.ID, *preview[0].ContractID)
	assert.True(t, strings.HasPrefix(preview[0].Label, "Maintenance Acme Software - "))
	assert.Equal(t, "Maintenance Acme Software - "+subject[:40], preview[0].Label)

	var budgets int64
	require.NoError(t, f.db.Model(&models.AnnualBudget{}).Count(&budgets).Error)
	assert.Zero(t, budgets, "preview writes nothing")

	n, err := f.engine.Forecast.PrepareNextYear(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	preview, err = f.engine.Forecast.PreviewNextYear(f.ctx, in)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.True(t, preview[0].Exists)
	assert.EqualValues(t, len(models.Natures), f.auditCount("action = ?", models.ActionPrepare), "one entry per prepared budget")
}

func TestPrepareNextYearValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Forecast.PrepareNextYear(f.ctx, PrepareInput{EntityID: f.entity.ID, SourceYear: 2025, TargetYear: 2025})
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, "must_follow_source_year", e.Fields["target_year"])

	_, err = f.engine.Forecast.PrepareNextYear(f.ctx, PrepareInput{EntityID: 404, SourceYear: 2025, TargetYear: 2026})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestPreviewSuggestionsAndProjects(t *testing.T) {
	f := newFixture(t)
	_, line := f.votedLine(2025, "1000")
	po := f.order("PO-1", "950", &line.ID, nil, nil)
	_, err := f.engine.Orders.Commit(f.ctx, po.ID, CommitOptions{})
	require.NoError(t, err)
	_, err = f.engine.Budgets.CreateLine(f.ctx, line.BudgetID, LineInput{Label: "Hosting", ForecastAmount: d("1000"), VotedAmount: d("1000")})
	require.NoError(t, err)
	erp, err := f.engine.Reference.CreateProject(f.ctx, ProjectInput{Code: "erp", Name: "ERP rollout", EntityID: f.entity.ID, PlannedAmount: d("5000")})
	require.NoError(t, err)
	_, err = f.engine.Reference.CreateProject(f.ctx, ProjectInput{Code: "empty", Name: "No envelope", EntityID: f.entity.ID})
	require.NoError(t, err)

	in := PrepareInput{EntityID: f.entity.ID, SourceYear: 2025, TargetYear: 2026}
	preview, err := f.engine.Forecast.PreviewNextYear(f.ctx, in)
	require.NoError(t, err)
	byLabel := map[string]Proposal{}
	for _, p := range preview {
		byLabel[p.Label] = p
	}
	require.Len(t, byLabel, 3)

	licences := byLabel["Licences"]
	assert.Equal(t, SourceLine, licences.Source)
	requireAmount(t, "1000", licences.ForecastAmount, "forecast seeded from voted")
	requireAmount(t, "1150", licences.Suggestion, "high consumption uplift")
	assert.True(t, licences.Alert)

	hosting := byLabel["Hosting"]
	requireAmount(t, "800", hosting.Suggestion, "low consumption cut")
	assert.False(t, hosting.Alert)

	project, ok := byLabel["Project ERP - ERP rollout"]
	require.True(t, ok)
	assert.Equal(t, SourceProject, project.Source)
	assert.Equal(t, models.NatureCapital, project.Nature)
	require.NotNil(t, project.ProjectID)
	assert.Equal(t, erp.ID, *project.ProjectID)
	requireAmount(t, "5000", project.Suggestion, "remaining envelope")

	n, err := f.engine.Forecast.PrepareNextYear(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "project proposals stay advisory")
}
