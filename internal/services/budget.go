package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/diewo77/go-budgets/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EntityInput struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type EntityUpdate struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type BudgetInput struct {
	EntityID       uint            `json:"entity_id"`
	Exercise       int             `json:"exercise"`
	Nature         models.Nature   `json:"nature"`
	ForecastAmount decimal.Decimal `json:"forecast_amount"`
	Note           string          `json:"note,omitempty"`
}

type BudgetUpdate struct {
	ForecastAmount *decimal.Decimal `json:"forecast_amount,omitempty"`
	Note           *string          `json:"note,omitempty"`
}

// BudgetFilter narrows ListBudgets; zero fields match everything.
type BudgetFilter struct {
	EntityID uint
	Exercise int
	Nature   models.Nature
}

type VoteInput struct {
	Amount decimal.Decimal `json:"amount"`
	Date   *time.Time      `json:"date,omitempty"`
}

type LineInput struct {
	Label          string          `json:"label"`
	Nature         models.Nature   `json:"nature,omitempty"`
	ApplicationID  *uint           `json:"application_id,omitempty"`
	ProjectID      *uint           `json:"project_id,omitempty"`
	SupplierID     *uint           `json:"supplier_id,omitempty"`
	ContractID     *uint           `json:"contract_id,omitempty"`
	ForecastAmount decimal.Decimal `json:"forecast_amount"`
	VotedAmount    decimal.Decimal `json:"voted_amount"`
	AlertThreshold int             `json:"alert_threshold,omitempty"`
	Note           string          `json:"note,omitempty"`
}

type LineUpdate struct {
	Label          *string            `json:"label,omitempty"`
	ForecastAmount *decimal.Decimal   `json:"forecast_amount,omitempty"`
	VotedAmount    *decimal.Decimal   `json:"voted_amount,omitempty"`
	AlertThreshold *int               `json:"alert_threshold,omitempty"`
	Status         *models.LineStatus `json:"status,omitempty"`
	Note           *string            `json:"note,omitempty"`
}

// BudgetStore owns entities, annual budgets and their lines.
type BudgetStore struct {
	*runner
	recalc Recalculator
	guard  DeletionGuard
}

// NewBudgetStore creates the budget hierarchy store.
func NewBudgetStore(r *runner, recalc Recalculator, guard DeletionGuard) *BudgetStore {
	return &BudgetStore{runner: r, recalc: recalc, guard: guard}
}

// ── Entities ────────────────────────────────────────────────────────────────

func (s *BudgetStore) CreateEntity(ctx context.Context, in EntityInput) (*models.Entity, error) {
	const op = "create_entity"
	entity := models.Entity{Code: strings.ToUpper(strings.TrimSpace(in.Code)), Name: strings.TrimSpace(in.Name), Active: true}
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		v := make(validation.Violations)
		validation.Required("code", entity.Code, v)
		validation.Required("name", entity.Name, v)
		if !v.Empty() {
			return invalidInput(op, v)
		}
		var n int64
		if err := tx.Model(&models.Entity{}).Where("code = ?", entity.Code).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return conflict(op, "entity code %s already exists", entity.Code)
		}
		if err := tx.Create(&entity).Error; err != nil {
			return err
		}
		j.Add(models.ObjectEntity, entity.ID, models.ActionCreate, entity.Code, nil, entity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (s *BudgetStore) UpdateEntity(ctx context.Context, id uint, in EntityUpdate) (*models.Entity, error) {
	const op = "update_entity"
	var entity *models.Entity
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		var err error
		if entity, err = fetch[models.Entity](tx, op, "entity", id); err != nil {
			return err
		}
		before := *entity
		updates := map[string]any{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return invalidInput(op, map[string]string{"name": "required"})
			}
			entity.Name = name
			updates["name"] = name
		}
		if in.Active != nil {
			entity.Active = *in.Active
			updates["active"] = *in.Active
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(entity).Updates(updates).Error; err != nil {
			return err
		}
		j.Add(models.ObjectEntity, id, models.ActionUpdate, "", before, *entity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (s *BudgetStore) ListEntities(ctx context.Context) ([]models.Entity, error) {
	var entities []models.Entity
	err := s.db.WithContext(ctx).Order("code").Find(&entities).Error
	return entities, classify("list_entities", err)
}

// DeleteEntity removes an entity with its closed budgets. Open budgets, orders,
// contracts and projects of the entity block the removal.
func (s *BudgetStore) DeleteEntity(ctx context.Context, id uint) error {
	const op = "delete_entity"
	return s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if err := ensureDeletable(tx, s.guard, op, TargetEntity, id); err != nil {
			return err
		}
		// closed budgets go with the entity
		var closed []uint
		if err := tx.Model(&models.AnnualBudget{}).Where("entity_id = ?", id).Pluck("id", &closed).Error; err != nil {
			return err
		}
		if len(closed) > 0 {
			if err := tx.Where("budget_id IN ?", closed).Delete(&models.BudgetLine{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", closed).Delete(&models.AnnualBudget{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.Entity{}, id).Error; err != nil {
			return err
		}
		j.Add(models.ObjectEntity, id, models.ActionDelete, fmt.Sprintf("%d closed budget(s) removed", len(closed)), nil, nil)
		return nil
	})
}

// ── Budgets ─────────────────────────────────────────────────────────────────

func (s *BudgetStore) CreateBudget(ctx context.Context, in BudgetInput) (*models.AnnualBudget, error) {
	const op = "create_budget"
	var budget models.AnnualBudget
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		v := make(validation.Violations)
		validation.RequiredID("entity_id", in.EntityID, v)
		validation.RangeInt("exercise", in.Exercise, 2000, 2100, v)
		validation.OneOf("nature", in.Nature, models.Natures, v)
		validation.NonNegativeAmount("forecast_amount", in.ForecastAmount, v)
		if !v.Empty() {
			return invalidInput(op, v)
		}
		if _, err := fetch[models.Entity](tx, op, "entity", in.EntityID); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.AnnualBudget{}).
			Where("entity_id = ? AND exercise = ? AND nature = ?", in.EntityID, in.Exercise, in.Nature).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return conflict(op, "a %s budget already exists for entity %d in %d", in.Nature, in.EntityID, in.Exercise)
		}
		budget = models.AnnualBudget{
			EntityID:       in.EntityID,
			Exercise:       in.Exercise,
			Nature:         in.Nature,
			ForecastAmount: in.ForecastAmount,
			Status:         models.BudgetInPreparation,
			Note:           in.Note,
		}
		if err := tx.Create(&budget).Error; err != nil {
			return err
		}
		j.Add(models.ObjectBudget, budget.ID, models.ActionCreate, fmt.Sprintf("%s %d", budget.Nature, budget.Exercise), nil, budgetSnapshot(budget))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

func (s *BudgetStore) UpdateBudget(ctx context.Context, id uint, in BudgetUpdate) (*models.AnnualBudget, error) {
	const op = "update_budget"
	var budget *models.AnnualBudget
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		var err error
		if budget, err = fetch[models.AnnualBudget](tx, op, "budget", id); err != nil {
			return err
		}
		if budget.Status == models.BudgetClosed {
			return invalidState(op, "budget %d is closed", id)
		}
		before := budgetSnapshot(*budget)
		updates := map[string]any{}
		if in.ForecastAmount != nil {
			if in.ForecastAmount.IsNegative() {
				return invalidInput(op, map[string]string{"forecast_amount": "must_not_be_negative"})
			}
			budget.ForecastAmount = *in.ForecastAmount
			updates["forecast_amount"] = *in.ForecastAmount
		}
		if in.Note != nil {
			budget.Note = *in.Note
			updates["note"] = *in.Note
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(budget).Updates(updates).Error; err != nil {
			return err
		}
		j.Add(models.ObjectBudget, id, models.ActionUpdate, "", before, budgetSnapshot(*budget))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// GetBudget returns a budget with its lines.
func (s *BudgetStore) GetBudget(ctx context.Context, id uint) (*models.AnnualBudget, error) {
	var budget models.AnnualBudget
	err := s.db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).First(&budget, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("get_budget", "budget %d does not exist", id)
	}
	if err != nil {
		return nil, classify("get_budget", err)
	}
	return &budget, nil
}

func (s *BudgetStore) ListBudgets(ctx context.Context, f BudgetFilter) ([]models.AnnualBudget, error) {
	q := s.db.WithContext(ctx).Model(&models.AnnualBudget{})
	if f.EntityID != 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Exercise != 0 {
		q = q.Where("exercise = ?", f.Exercise)
	}
	if f.Nature != "" {
		q = q.Where("nature = ?", f.Nature)
	}
	var budgets []models.AnnualBudget
	err := q.Order("exercise DESC").Order("entity_id").Order("nature").Find(&budgets).Error
	return budgets, classify("list_budgets", err)
}

// VoteBudget records the voted envelope and moves the budget to VOTED.
func (s *BudgetStore) VoteBudget(ctx context.Context, id uint, in VoteInput) (*models.AnnualBudget, error) {
	const op = "vote_budget"
	var budget *models.AnnualBudget
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if in.Amount.IsNegative() {
			return invalidInput(op, map[string]string{"amount": "must_not_be_negative"})
		}
		var err error
		if budget, err = fetch[models.AnnualBudget](tx, op, "budget", id); err != nil {
			return err
		}
		if !budget.Status.CanMoveTo(models.BudgetVoted) {
			return invalidState(op, "budget %d is %s and cannot be voted", id, budget.Status)
		}
		before := budgetSnapshot(*budget)
		date := s.today()
		if in.Date != nil {
			date = models.TruncateDay(in.Date.UTC())
		}
		budget.VotedAmount = in.Amount
		budget.AvailableAmount = in.Amount.Sub(budget.CommittedAmount)
		budget.Status = models.BudgetVoted
		budget.VoteDate = &date
		if err := tx.Model(budget).Updates(map[string]any{
			"voted_amount":     budget.VotedAmount,
			"available_amount": budget.AvailableAmount,
			"status":           budget.Status,
			"vote_date":        date,
		}).Error; err != nil {
			return err
		}
		j.Add(models.ObjectBudget, id, models.ActionVote, "voted "+money(in.Amount), before, budgetSnapshot(*budget))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// SetBudgetStatus moves a budget forward in its lifecycle.
func (s *BudgetStore) SetBudgetStatus(ctx context.Context, id uint, status models.BudgetStatus) (*models.AnnualBudget, error) {
	const op = "set_budget_status"
	var budget *models.AnnualBudget
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if !status.Valid() {
			return invalidInput(op, map[string]string{"status": "invalid_value"})
		}
		var err error
		if budget, err = fetch[models.AnnualBudget](tx, op, "budget", id); err != nil {
			return err
		}
		if !budget.Status.CanMoveTo(status) {
			return invalidState(op, "budget %d cannot move from %s to %s", id, budget.Status, status)
		}
		prev := budget.Status
		budget.Status = status
		if err := tx.Model(budget).Update("status", status).Error; err != nil {
			return err
		}
		j.Add(models.ObjectBudget, id, models.ActionStatusChange, "", map[string]any{"status": prev}, map[string]any{"status": status})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// DeleteBudget removes a budget and all of its lines once none of them is engaged.
func (s *BudgetStore) DeleteBudget(ctx context.Context, id uint) error {
	const op = "delete_budget"
	return s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if err := ensureDeletable(tx, s.guard, op, TargetBudget, id); err != nil {
			return err
		}
		var lineIDs []uint
		if err := tx.Model(&models.BudgetLine{}).Where("budget_id = ?", id).Pluck("id", &lineIDs).Error; err != nil {
			return err
		}
		if err := detachOrders(tx, lineIDs); err != nil {
			return err
		}
		if err := tx.Where("budget_id = ?", id).Delete(&models.BudgetLine{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.AnnualBudget{}, id).Error; err != nil {
			return err
		}
		for _, lid := range lineIDs {
			j.Add(models.ObjectBudgetLine, lid, models.ActionDelete, fmt.Sprintf("budget %d deleted", id), nil, nil)
		}
		j.Add(models.ObjectBudget, id, models.ActionDelete, fmt.Sprintf("%d line(s) removed", len(lineIDs)), nil, nil)
		return nil
	})
}

// ── Lines ───────────────────────────────────────────────────────────────────

// CreateLine adds a line to a budget and recalculates the budget.
func (s *BudgetStore) CreateLine(ctx context.Context, budgetID uint, in LineInput) (*models.BudgetLine, error) {
	const op = "create_line"
	var line models.BudgetLine
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		v := make(validation.Violations)
		validation.Required("label", in.Label, v)
		validation.NonNegativeAmount("forecast_amount", in.ForecastAmount, v)
		validation.NonNegativeAmount("voted_amount", in.VotedAmount, v)
		if in.Nature != "" {
			validation.OneOf("nature", in.Nature, models.Natures, v)
		}
		if in.AlertThreshold != 0 {
			validation.RangeInt("alert_threshold", in.AlertThreshold, 1, 100, v)
		}
		if !v.Empty() {
			return invalidInput(op, v)
		}
		budget, err := fetch[models.AnnualBudget](tx, op, "budget", budgetID)
		if err != nil {
			return err
		}
		if budget.Status == models.BudgetClosed {
			return invalidState(op, "budget %d is closed", budgetID)
		}
		nature := in.Nature
		if nature == "" {
			nature = budget.Nature
		}
		threshold := in.AlertThreshold
		if threshold == 0 {
			threshold = models.DefaultAlertThreshold
		}
		line = models.BudgetLine{
			BudgetID:       budget.ID,
			Label:          strings.TrimSpace(in.Label),
			Nature:         nature,
			ApplicationID:  in.ApplicationID,
			ProjectID:      in.ProjectID,
			SupplierID:     in.SupplierID,
			ContractID:     in.ContractID,
			ForecastAmount: in.ForecastAmount,
			VotedAmount:    in.VotedAmount,
			AlertThreshold: threshold,
			Note:           in.Note,
			Status:         models.LineActive,
		}
		line.RecomputeAvailable()
		if err := tx.Create(&line).Error; err != nil {
			return err
		}
		if err := s.recalc.RecalcBudget(tx, budget.ID); err != nil {
			return err
		}
		j.Add(models.ObjectBudgetLine, line.ID, models.ActionCreate, line.Label, nil, lineSnapshot(line))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// UpdateLine edits a line, recomputes its balance and recalculates the budget.
func (s *BudgetStore) UpdateLine(ctx context.Context, id uint, in LineUpdate) (*models.BudgetLine, error) {
	const op = "update_line"
	var line *models.BudgetLine
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		var err error
		if line, err = fetch[models.BudgetLine](tx, op, "budget line", id); err != nil {
			return err
		}
		before := lineSnapshot(*line)
		v := make(validation.Violations)
		if in.Label != nil {
			validation.Required("label", *in.Label, v)
			line.Label = strings.TrimSpace(*in.Label)
		}
		if in.ForecastAmount != nil {
			validation.NonNegativeAmount("forecast_amount", *in.ForecastAmount, v)
			line.ForecastAmount = *in.ForecastAmount
		}
		if in.VotedAmount != nil {
			validation.NonNegativeAmount("voted_amount", *in.VotedAmount, v)
			line.VotedAmount = *in.VotedAmount
		}
		if in.AlertThreshold != nil {
			validation.RangeInt("alert_threshold", *in.AlertThreshold, 1, 100, v)
			line.AlertThreshold = *in.AlertThreshold
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				v["status"] = "invalid_value"
			}
			line.Status = *in.Status
		}
		if in.Note != nil {
			line.Note = *in.Note
		}
		if !v.Empty() {
			return invalidInput(op, v)
		}
		line.RecomputeAvailable()
		if err := tx.Model(line).Updates(map[string]any{
			"label":            line.Label,
			"forecast_amount":  line.ForecastAmount,
			"voted_amount":     line.VotedAmount,
			"available_amount": line.AvailableAmount,
			"alert_threshold":  line.AlertThreshold,
			"status":           line.Status,
			"note":             line.Note,
		}).Error; err != nil {
			return err
		}
		if err := s.recalc.RecalcBudget(tx, line.BudgetID); err != nil {
			return err
		}
		j.Add(models.ObjectBudgetLine, id, models.ActionUpdate, "", before, lineSnapshot(*line))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// DeleteLine removes a line no engaged order references.
func (s *BudgetStore) DeleteLine(ctx context.Context, id uint) error {
	const op = "delete_line"
	return s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if err := ensureDeletable(tx, s.guard, op, TargetBudgetLine, id); err != nil {
			return err
		}
		line, err := fetch[models.BudgetLine](tx, op, "budget line", id)
		if err != nil {
			return err
		}
		if err := detachOrders(tx, []uint{id}); err != nil {
			return err
		}
		if err := tx.Delete(&models.BudgetLine{}, id).Error; err != nil {
			return err
		}
		if err := s.recalc.RecalcBudget(tx, line.BudgetID); err != nil {
			return err
		}
		j.Add(models.ObjectBudgetLine, id, models.ActionDelete, line.Label, lineSnapshot(*line), nil)
		return nil
	})
}

func (s *BudgetStore) ListLines(ctx context.Context, budgetID uint) ([]models.BudgetLine, error) {
	var lines []models.BudgetLine
	err := s.db.WithContext(ctx).Where("budget_id = ?", budgetID).Order("id").Find(&lines).Error
	return lines, classify("list_lines", err)
}

// GetLine returns one line.
func (s *BudgetStore) GetLine(ctx context.Context, id uint) (*models.BudgetLine, error) {
	line, err := fetch[models.BudgetLine](s.db.WithContext(ctx), "get_line", "budget line", id)
	return line, classify("get_line", err)
}

// RecalcBudgetFromLines recalculates a budget from its lines in its own transaction.
func (s *BudgetStore) RecalcBudgetFromLines(ctx context.Context, budgetID uint) (*models.AnnualBudget, error) {
	const op = "recalc_budget"
	var budget *models.AnnualBudget
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if _, err := fetch[models.AnnualBudget](tx, op, "budget", budgetID); err != nil {
			return err
		}
		if err := s.recalc.RecalcBudget(tx, budgetID); err != nil {
			return err
		}
		var err error
		budget, err = fetch[models.AnnualBudget](tx, op, "budget", budgetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return budget, nil
}

// BackfillAvailable rewrites every line balance as voted minus committed and
// resynchronises budget totals. It returns the number of lines changed.
func (s *BudgetStore) BackfillAvailable(ctx context.Context) (int, error) {
	const op = "backfill_available"
	changed := 0
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		var lines []models.BudgetLine
		if err := tx.Order("id").Find(&lines).Error; err != nil {
			return err
		}
		budgets := map[uint]struct{}{}
		for i := range lines {
			l := &lines[i]
			budgets[l.BudgetID] = struct{}{}
			want := l.VotedAmount.Sub(l.CommittedAmount)
			if l.AvailableAmount.Equal(want) {
				continue
			}
			if err := tx.Model(l).Update("available_amount", want).Error; err != nil {
				return err
			}
			changed++
		}
		for id := range budgets {
			// committed and available of the budget follow the lines
			if err := s.recalc.OnLineCommittedChanged(tx, firstLineOf(lines, id)); err != nil {
				return err
			}
		}
		if changed > 0 {
			j.Add(models.ObjectBudgetLine, 0, models.ActionBackfill, fmt.Sprintf("%d line balance(s) rewritten", changed), nil, nil)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func firstLineOf(lines []models.BudgetLine, budgetID uint) uint {
	for _, l := range lines {
		if l.BudgetID == budgetID {
			return l.ID
		}
	}
	return 0
}

// detachOrders clears the line reference of orders that are not engaged.
func detachOrders(tx *gorm.DB, lineIDs []uint) error {
	if len(lineIDs) == 0 {
		return nil
	}
	return tx.Model(&models.PurchaseOrder{}).
		Where("budget_line_id IN ?", lineIDs).
		Update("budget_line_id", nil).Error
}

func budgetSnapshot(b models.AnnualBudget) map[string]any {
	return map[string]any{
		"status":    b.Status,
		"forecast":  money(b.ForecastAmount),
		"voted":     money(b.VotedAmount),
		"committed": money(b.CommittedAmount),
		"available": money(b.AvailableAmount),
	}
}

func lineSnapshot(l models.BudgetLine) map[string]any {
	return map[string]any{
		"label":     l.Label,
		"status":    l.Status,
		"forecast":  money(l.ForecastAmount),
		"voted":     money(l.VotedAmount),
		"committed": money(l.CommittedAmount),
		"available": money(l.AvailableAmount),
		"paid":      money(l.PaidAmount),
	}
}
