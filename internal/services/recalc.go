package services

import (
	"fmt"
	"log/slog"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recalc keeps derived totals of budgets, contracts and projects in line with
// their children. Every method runs on the caller's transaction.
type Recalc struct {
	log *slog.Logger
}

// NewRecalc creates the cascading recalculation engine.
func NewRecalc(log *slog.Logger) *Recalc {
	return &Recalc{log: log.With("component", "recalc")}
}

// RecalcBudget rebuilds a budget's forecast from its non closed lines and, when at
// least one of them carries a voted amount, its voted and available amounts too.
func (c *Recalc) RecalcBudget(tx *gorm.DB, budgetID uint) error {
	var lines []models.BudgetLine
	if err := tx.Where("budget_id = ? AND status <> ?", budgetID, models.LineClosed).Find(&lines).Error; err != nil {
		return fmt.Errorf("load lines of budget %d: %w", budgetID, err)
	}
	forecast, voted := decimal.Zero, decimal.Zero
	anyVoted := false
	for _, l := range lines {
		forecast = forecast.Add(l.ForecastAmount)
		voted = voted.Add(l.VotedAmount)
		if l.VotedAmount.IsPositive() {
			anyVoted = true
		}
	}
	updates := map[string]any{"forecast_amount": forecast}
	if anyVoted {
		var budget models.AnnualBudget
		if err := tx.Select("id", "committed_amount").First(&budget, budgetID).Error; err != nil {
			return fmt.Errorf("load budget %d: %w", budgetID, err)
		}
		updates["voted_amount"] = voted
		updates["available_amount"] = voted.Sub(budget.CommittedAmount)
	}
	if err := tx.Model(&models.AnnualBudget{}).Where("id = ?", budgetID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update budget %d: %w", budgetID, err)
	}
	c.log.Debug("budget recalculated", "budget_id", budgetID, "lines", len(lines), "forecast", money(forecast))
	return nil
}

// OnLineCommittedChanged sets the parent budget committed amount to the sum of its
// lines and its available amount to voted minus committed.
func (c *Recalc) OnLineCommittedChanged(tx *gorm.DB, lineID uint) error {
	var line models.BudgetLine
	if err := tx.Select("id", "budget_id").First(&line, lineID).Error; err != nil {
		return fmt.Errorf("load line %d: %w", lineID, err)
	}
	return c.syncBudgetCommitted(tx, line.BudgetID)
}

func (c *Recalc) syncBudgetCommitted(tx *gorm.DB, budgetID uint) error {
	var committed []decimal.Decimal
	if err := tx.Model(&models.BudgetLine{}).Where("budget_id = ?", budgetID).Pluck("committed_amount", &committed).Error; err != nil {
		return fmt.Errorf("sum committed of budget %d: %w", budgetID, err)
	}
	var budget models.AnnualBudget
	if err := tx.Select("id", "voted_amount").First(&budget, budgetID).Error; err != nil {
		return fmt.Errorf("load budget %d: %w", budgetID, err)
	}
	total := sum(committed)
	return tx.Model(&models.AnnualBudget{}).Where("id = ?", budgetID).Updates(map[string]any{
		"committed_amount": total,
		"available_amount": budget.VotedAmount.Sub(total),
	}).Error
}

// OnPOCommitted moves the contract engagement by delta and rebuilds the project
// totals of the order.
func (c *Recalc) OnPOCommitted(tx *gorm.DB, po *models.PurchaseOrder, delta decimal.Decimal) error {
	if po.ContractID != nil {
		if err := c.moveContractEngagement(tx, *po.ContractID, delta); err != nil {
			return err
		}
	}
	if po.ProjectID != nil {
		if err := c.RecalcProject(tx, *po.ProjectID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Recalc) moveContractEngagement(tx *gorm.DB, contractID uint, delta decimal.Decimal) error {
	var contract models.Contract
	if err := tx.First(&contract, contractID).Error; err != nil {
		return fmt.Errorf("load contract %d: %w", contractID, err)
	}
	engaged := contract.EngagedCumulative.Add(delta)
	if engaged.IsNegative() {
		engaged = decimal.Zero
	}
	updates := map[string]any{"engaged_cumulative": engaged}
	if ceiling := contract.Ceiling(); ceiling.IsPositive() {
		updates["remaining_amount"] = ceiling.Sub(engaged)
	}
	return tx.Model(&models.Contract{}).Where("id = ?", contractID).Updates(updates).Error
}

// RecalcProject sets the project committed amount to the TTC sum of its engaged
// orders and available to planned minus committed.
func (c *Recalc) RecalcProject(tx *gorm.DB, projectID uint) error {
	var project models.Project
	if err := tx.Select("id", "planned_amount").First(&project, projectID).Error; err != nil {
		return fmt.Errorf("load project %d: %w", projectID, err)
	}
	var amounts []decimal.Decimal
	if err := tx.Model(&models.PurchaseOrder{}).
		Where("project_id = ? AND status IN ?", projectID, models.StatusesEngaged).
		Pluck("amount_ttc", &amounts).Error; err != nil {
		return fmt.Errorf("sum orders of project %d: %w", projectID, err)
	}
	committed := sum(amounts)
	return tx.Model(&models.Project{}).Where("id = ?", projectID).Updates(map[string]any{
		"committed_amount": committed,
		"available_amount": project.PlannedAmount.Sub(committed),
	}).Error
}
