package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-budgets/actor"
	"github.com/diewo77/go-budgets/internal/models"
	"github.com/diewo77/go-budgets/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseOrderInput struct {
	Number        string          `json:"number"`
	Subject       string          `json:"subject"`
	EntityID      uint            `json:"entity_id"`
	SupplierID    uint            `json:"supplier_id"`
	ContractID    *uint           `json:"contract_id,omitempty"`
	BudgetLineID  *uint           `json:"budget_line_id,omitempty"`
	ProjectID     *uint           `json:"project_id,omitempty"`
	ApplicationID *uint           `json:"application_id,omitempty"`
	AmountHT      decimal.Decimal `json:"amount_ht"`
	AmountTTC     decimal.Decimal `json:"amount_ttc"`
}

// POFilter narrows List; zero fields match everything.
type POFilter struct {
	Status       models.POStatus
	BudgetLineID uint
	ContractID   uint
	ProjectID    uint
	SupplierID   uint
}

// CommitOptions tunes Commit. LineID overrides the line stored on the order.
// Bypass skips the available balance check; OffBudget allows committing
// without any line and implies Bypass otherwise.
type CommitOptions struct {
	LineID         *uint `json:"line_id,omitempty"`
	Bypass         bool  `json:"bypass,omitempty"`
	EnforceCeiling bool  `json:"enforce_ceiling,omitempty"`
	OffBudget      bool  `json:"off_budget,omitempty"`
}

type CommitResult struct {
	Order           *models.PurchaseOrder `json:"order"`
	CommittedAmount decimal.Decimal       `json:"committed_amount"`
	LineID          *uint                 `json:"line_id,omitempty"`
	OffBudget       bool                  `json:"off_budget"`
}

// ReverseOptions tunes ReverseCommitment. Cancel also cancels the order and
// clears its line reference.
type ReverseOptions struct {
	Cancel bool `json:"cancel,omitempty"`
}

type ReverseResult struct {
	Order          *models.PurchaseOrder `json:"order"`
	RefundedAmount decimal.Decimal       `json:"refunded_amount"`
}

// SettleOptions tunes Settle. A nil or zero PaidAmount pays the full TTC amount.
type SettleOptions struct {
	PaidAmount *decimal.Decimal `json:"paid_amount,omitempty"`
}

type SettleResult struct {
	Order             *models.PurchaseOrder `json:"order"`
	PaidAmount        decimal.Decimal       `json:"paid_amount"`
	ProjectAutoClosed bool                  `json:"project_auto_closed"`
}

type ValidateResult struct {
	Order          *models.PurchaseOrder `json:"order"`
	CeilingWarning string                `json:"ceiling_warning,omitempty"`
}

// Workflow drives purchase orders through the commitment state machine.
type Workflow struct {
	*runner
	recalc  Recalculator
	ceiling CeilingChecker
	legacy  bool
}

// NewWorkflow creates the commitment workflow engine.
func NewWorkflow(r *runner, recalc Recalculator, ceiling CeilingChecker, legacyAvailable bool) *Workflow {
	return &Workflow{runner: r, recalc: recalc, ceiling: ceiling, legacy: legacyAvailable}
}

// Create registers a new order in DRAFT.
func (w *Workflow) Create(ctx context.Context, in PurchaseOrderInput) (*models.PurchaseOrder, error) {
	const op = "create_order"
	var po models.PurchaseOrder
	err := w.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		v := make(validation.Violations)
		validation.Required("number", in.Number, v)
		validation.RequiredID("entity_id", in.EntityID, v)
		validation.RequiredID("supplier_id", in.SupplierID, v)
		validation.NonNegativeAmount("amount_ht", in.AmountHT, v)
		validation.PositiveAmount("amount_ttc", in.AmountTTC, v)
		if !v.Empty() {
			return invalidInput(op, v)
		}
		if err := requireRef[models.Supplier](tx, op, "supplier", in.SupplierID); err != nil {
			return err
		}
		if in.ContractID != nil {
			if err := requireRef[models.Contract](tx, op, "contract", *in.ContractID); err != nil {
				return err
			}
		}
		if in.BudgetLineID != nil {
			if err := requireRef[models.BudgetLine](tx, op, "budget line", *in.BudgetLineID); err != nil {
				return err
			}
		}
		if in.ProjectID != nil {
			if err := requireRef[models.Project](tx, op, "project", *in.ProjectID); err != nil {
				return err
			}
		}
		number := strings.TrimSpace(in.Number)
		var n int64
		if err := tx.Model(&models.PurchaseOrder{}).Where("number = ?", number).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return conflict(op, "purchase order number %s already exists", number)
		}
		po = models.PurchaseOrder{
			Number:        number,
			Subject:       strings.TrimSpace(in.Subject),
			EntityID:      in.EntityID,
			SupplierID:    in.SupplierID,
			ContractID:    in.ContractID,
			BudgetLineID:  in.BudgetLineID,
			ProjectID:     in.ProjectID,
			ApplicationID: in.ApplicationID,
			AmountHT:      in.AmountHT,
			AmountTTC:     in.AmountTTC,
			Status:        models.PODraft,
			CreatedBy:     actor.OrSystem(ctx),
		}
		if err := tx.Create(&po).Error; err != nil {
			return err
		}
		j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionCreate, po.Number, nil, orderSnapshot(po))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// Get returns one order.
func (w *Workflow) Get(ctx context.Context, id uint) (*models.PurchaseOrder, error) {
	po, err := fetch[models.PurchaseOrder](w.db.WithContext(ctx), "get_order", "purchase order", id)
	return po, classify("get_order", err)
}

func (w *Workflow) List(ctx context.Context, f POFilter) ([]models.PurchaseOrder, error) {
	q := w.db.WithContext(ctx).Model(&models.PurchaseOrder{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BudgetLineID != 0 {
		q = q.Where("budget_line_id = ?", f.BudgetLineID)
	}
	if f.ContractID != 0 {
		q = q.Where("contract_id = ?", f.ContractID)
	}
	if f.ProjectID != 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.SupplierID != 0 {
		q = q.Where("supplier_id = ?", f.SupplierID)
	}
	var orders []models.PurchaseOrder
	err := q.Order("id DESC").Find(&orders).Error
	return orders, classify("list_orders", err)
}

// Submit moves a draft order to PENDING.
func (w *Workflow) Submit(ctx context.Context, id uint) (*models.PurchaseOrder, error) {
	return w.simpleTransition(ctx, "submit_order", id, models.EventSubmit)
}

// Cancel cancels an order that was never validated.
func (w *Workflow) Cancel(ctx context.Context, id uint) (*models.PurchaseOrder, error) {
	return w.simpleTransition(ctx, "cancel_order", id, models.EventCancel)
}

func (w *Workflow) simpleTransition(ctx context.Context, op string, id uint, ev models.POEvent) (*models.PurchaseOrder, error) {
	var po *models.PurchaseOrder
	err := w.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		var err error
		if po, err = w.load(tx, op, id); err != nil {
			return err
		}
		prev := po.Status
		next, err := w.next(op, po, ev)
		if err != nil {
			return err
		}
		po.Status = next
		if err := tx.Model(po).Update("status", next).Error; err != nil {
			return err
		}
		j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionStatusChange, string(ev), statusOf(prev), statusOf(next))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// Validate approves an order. When it references a contract the ceiling is checked
// in advisory mode and any overrun is returned as a warning.
func (w *Workflow) Validate(ctx context.Context, id uint, validatorID string) (ValidateResult, error) {
	const op = "validate_order"
	var res ValidateResult
	err := w.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		po, err := w.load(tx, op, id)
		if err != nil {
			return err
		}
		prev := po.Status
		next, err := w.next(op, po, models.EventValidate)
		if err != nil {
			return err
		}
		if validatorID == "" {
			validatorID = actor.OrSystem(ctx)
		}
		now := w.now()
		po.Status = next
		po.ValidatedAt = &now
		po.ValidatedBy = validatorID
		if err := tx.Model(po).Updates(map[string]any{
			"status":       next,
			"validated_at": now,
			"validated_by": validatorID,
		}).Error; err != nil {
			return err
		}
		if po.ContractID != nil {
			chk, err := w.ceiling.Check(tx, *po.ContractID, po.AmountTTC, po.ID)
			if err != nil {
				return err
			}
			if !chk.Allowed {
				res.CeilingWarning = chk.Message
			}
		}
		j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionStatusChange, "validated by "+validatorID,
			statusOf(prev), statusOf(next))
		res.Order = po
		return nil
	})
	if err != nil {
		return ValidateResult{}, err
	}
	return res, nil
}

// Commit draws a validated order against its budget line and cascades the new
// totals to the budget, the contract and the project in the same transaction.
func (w *Workflow) Commit(ctx context.Context, id uint, opts CommitOptions) (CommitResult, error) {
	const op = "commit_order"
	var res CommitResult
	err := w.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		po, err := w.load(tx, op, id)
		if err != nil {
			return err
		}
		prev := po.Status
		next, err := w.next(op, po, models.EventCommit)
		if err != nil {
			return err
		}
		now := w.now()

		lineID := opts.LineID
		if lineID == nil {
			lineID = po.BudgetLineID
		}
		if lineID == nil {
			if !opts.OffBudget {
				return missingReference(op, "purchase order %s has no budget line", po.Number)
			}
			po.Status = next
			po.ImputedAt = &now
			po.CommittedAmount = decimal.Zero
			if err := tx.Model(po).Updates(map[string]any{
				"status":           next,
				"imputed_at":       now,
				"committed_amount": decimal.Zero,
			}).Error; err != nil {
				return err
			}
			j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionCommit, "off budget", statusOf(prev), orderSnapshot(*po))
			res = CommitResult{Order: po, CommittedAmount: decimal.Zero, OffBudget: true}
			return nil
		}

		line, err := fetch[models.BudgetLine](tx, op, "budget line", *lineID)
		if err != nil {
			return err
		}
		if line.Status != models.LineActive {
			return invalidState(op, "budget line %d is %s", line.ID, line.Status)
		}
		amount := po.AmountTTC
		available := line.EffectiveAvailable(w.legacy)
		if !opts.Bypass && !opts.OffBudget && available.LessThan(amount) {
			return insufficientFunds(op, amount.Sub(available),
				"available balance insufficient: requested %s, available %s", money(amount), money(available))
		}
		if opts.EnforceCeiling && po.ContractID != nil {
			chk, err := w.ceiling.Check(tx, *po.ContractID, amount, po.ID)
			if err != nil {
				return err
			}
			if !chk.Allowed {
				return insufficientFunds(op, chk.Overrun, "%s", chk.Message)
			}
		}

		lineBefore := lineSnapshot(*line)
		line.CommittedAmount = line.CommittedAmount.Add(amount)
		line.RecomputeAvailable()
		if err := tx.Model(line).Updates(map[string]any{
			"committed_amount": line.CommittedAmount,
			"available_amount": line.AvailableAmount,
		}).Error; err != nil {
			return err
		}

		po.Status = next
		po.ImputedAt = &now
		po.CommittedAmount = amount
		po.BudgetLineID = &line.ID
		if err := tx.Model(po).Updates(map[string]any{
			"status":           next,
			"imputed_at":       now,
			"committed_amount": amount,
			"budget_line_id":   line.ID,
		}).Error; err != nil {
			return err
		}

		if err := w.recalc.OnLineCommittedChanged(tx, line.ID); err != nil {
			return err
		}
		if err := w.recalc.OnPOCommitted(tx, po, amount); err != nil {
			return err
		}

		j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionCommit,
			fmt.Sprintf("%s committed on line %d", money(amount), line.ID), statusOf(prev), orderSnapshot(*po))
		j.Add(models.ObjectBudgetLine, line.ID, models.ActionCommit, po.Number, lineBefore, lineSnapshot(*line))
		res = CommitResult{Order: po, CommittedAmount: amount, LineID: &line.ID}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}
	return res, nil
}

// ReverseCommitment undoes a commitment: the line is credited back, the cascades
// run with the opposite amount and the order returns to VALIDATED.
func (w *Workflow) ReverseCommitment(ctx context.Context, id uint, opts ReverseOptions) (ReverseResult, error) {
	const op = "reverse_order"
	var res ReverseResult
	err := w.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		po, err := w.load(tx, op, id)
		if err != nil {
			return err
		}
		prev := po.Status
		ev := models.EventReverse
		if opts.Cancel {
			ev = models.EventWithdraw
		}
		next, err := w.next(op, po, ev)
		if err != nil {
			return err
		}
		refunded := po.CommittedAmount

		if po.BudgetLineID != nil && refunded.IsPositive() {
			line, err := fetch[models.BudgetLine](tx, op, "budget line", *po.BudgetLineID)
			if err != nil {
				return err
			}
			lineBefore := lineSnapshot(*line)
			line.CommittedAmount = line.CommittedAmount.Sub(refunded)
			if line.CommittedAmount.IsNegative() {
				line.CommittedAmount = decimal.Zero
			}
			line.RecomputeAvailable()
			if err := tx.Model(line).Updates(map[string]any{
				"committed_amount": line.CommittedAmount,
				"available_amount": line.AvailableAmount,
			}).Error; err != nil {
				return err
			}
			if err := w.recalc.OnLineCommittedChanged(tx, line.ID); err != nil {
				return err
			}
			j.Add(models.ObjectBudgetLine, line.ID, models.ActionReverse, po.Number, lineBefore, lineSnapshot(*line))
		}

		updates := map[string]any{"status": next, "committed_amount": decimal.Zero}
		po.Status = next
		po.CommittedAmount = decimal.Zero
		if opts.Cancel {
			updates["budget_line_id"] = nil
			po.BudgetLineID = nil
		}
		if err := tx.Model(po).Updates(updates).Error; err != nil {
			return err
		}
		// project totals are rebuilt from order statuses, so run after the status change
		if err := w.recalc.OnPOCommitted(tx, po, refunded.Neg()); err != nil {
			return err
		}

		j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionReverse,
			"refunded "+money(refunded), statusOf(prev), orderSnapshot(*po))
		res = ReverseResult{Order: po, RefundedAmount: refunded}
		return nil
	})
	if err != nil {
		return ReverseResult{}, err
	}
	return res, nil
}

// Settle marks a committed order as paid. When it was the last open order of its
// project, the project is closed.
func (w *Workflow) Settle(ctx context.Context, id uint, opts SettleOptions) (SettleResult, error) {
	const op = "settle_order"
	var res SettleResult
	err := w.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		po, err := w.load(tx, op, id)
		if err != nil {
			return err
		}
		prev := po.Status
		next, err := w.next(op, po, models.EventSettle)
		if err != nil {
			return err
		}
		paid := po.AmountTTC
		if opts.PaidAmount != nil {
			if opts.PaidAmount.IsNegative() {
				return invalidInput(op, map[string]string{"paid_amount": "must_not_be_negative"})
			}
			if !opts.PaidAmount.IsZero() {
				paid = *opts.PaidAmount
			}
		}
		now := w.now()

		if po.BudgetLineID != nil {
			line, err := fetch[models.BudgetLine](tx, op, "budget line", *po.BudgetLineID)
			if err != nil {
				return err
			}
			line.PaidAmount = line.PaidAmount.Add(paid)
			if err := tx.Model(line).Update("paid_amount", line.PaidAmount).Error; err != nil {
				return err
			}
		}

		po.Status = next
		po.PaidAmount = paid
		po.SettledAt = &now
		if err := tx.Model(po).Updates(map[string]any{
			"status":      next,
			"paid_amount": paid,
			"settled_at":  now,
		}).Error; err != nil {
			return err
		}
		j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionSettle, "paid "+money(paid), statusOf(prev), orderSnapshot(*po))

		if po.ProjectID != nil {
			closed, err := w.autoCloseProject(tx, j, *po.ProjectID, now)
			if err != nil {
				return err
			}
			res.ProjectAutoClosed = closed
		}
		res.Order = po
		res.PaidAmount = paid
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}
	return res, nil
}

func (w *Workflow) autoCloseProject(tx *gorm.DB, j *Journal, projectID uint, now time.Time) (bool, error) {
	project, err := fetch[models.Project](tx, "settle_order", "project", projectID)
	if err != nil {
		return false, err
	}
	if project.Status == models.ProjectClosed || project.Status == models.ProjectCancelled {
		return false, nil
	}
	var open int64
	if err := tx.Model(&models.PurchaseOrder{}).
		Where("project_id = ? AND status NOT IN ?", projectID, models.StatusesClosed).
		Count(&open).Error; err != nil {
		return false, err
	}
	if open > 0 {
		return false, nil
	}
	end := models.TruncateDay(now.UTC())
	if err := tx.Model(project).Updates(map[string]any{
		"status":          models.ProjectClosed,
		"completion":      100,
		"actual_end_date": end,
	}).Error; err != nil {
		return false, err
	}
	j.Add(models.ObjectProject, projectID, models.ActionAutoClose, "all purchase orders settled",
		map[string]any{"status": project.Status, "completion": project.Completion},
		map[string]any{"status": models.ProjectClosed, "completion": 100})
	return true, nil
}

// Delete removes an order that is still a draft.
func (w *Workflow) Delete(ctx context.Context, id uint) error {
	const op = "delete_order"
	return w.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		po, err := w.load(tx, op, id)
		if err != nil {
			return err
		}
		if po.Status != models.PODraft {
			return conflict(op, "purchase order %s is %s, only drafts can be deleted", po.Number, po.Status)
		}
		if err := tx.Delete(&models.PurchaseOrder{}, po.ID).Error; err != nil {
			return err
		}
		j.Add(models.ObjectPurchaseOrder, po.ID, models.ActionDelete, po.Number, orderSnapshot(*po), nil)
		return nil
	})
}

func (w *Workflow) load(tx *gorm.DB, op string, id uint) (*models.PurchaseOrder, error) {
	return fetch[models.PurchaseOrder](tx, op, "purchase order", id)
}

func (w *Workflow) next(op string, po *models.PurchaseOrder, ev models.POEvent) (models.POStatus, error) {
	next, ok := po.Status.Next(ev)
	if !ok {
		return po.Status, invalidState(op, "purchase order %s is %s, %s requires %s",
			po.Number, po.Status, ev, joinStatuses(models.Expects(ev)))
	}
	return next, nil
}

func joinStatuses(ss []models.POStatus) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}

func statusOf(s models.POStatus) map[string]any {
	return map[string]any{"status": s}
}

func orderSnapshot(po models.PurchaseOrder) map[string]any {
	snap := map[string]any{
		"number":    po.Number,
		"status":    po.Status,
		"ttc":       money(po.AmountTTC),
		"committed": money(po.CommittedAmount),
		"paid":      money(po.PaidAmount),
	}
	if po.BudgetLineID != nil {
		snap["budget_line_id"] = *po.BudgetLineID
	}
	return snap
}

// IsInsufficientFunds reports whether err is a funds rejection and returns the shortfall.
func IsInsufficientFunds(err error) (decimal.Decimal, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindInsufficientFunds {
		return e.Amount, true
	}
	return decimal.Zero, false
}
