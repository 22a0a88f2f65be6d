package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/diewo77/go-budgets/internal/models"
	"gorm.io/gorm"
)

// Target names a kind of object the guard can evaluate.
type Target string

const (
	TargetSupplier    Target = "supplier"
	TargetContract    Target = "contract"
	TargetBudgetLine  Target = "budget_line"
	TargetBudget      Target = "budget"
	TargetEntity      Target = "entity"
	TargetApplication Target = "application"
)

// Decision is the guard verdict. Blockers counts dependents per category.
type Decision struct {
	Allowed  bool             `json:"allowed"`
	Reason   string           `json:"reason,omitempty"`
	Blockers map[string]int64 `json:"blockers,omitempty"`
}

// Guard checks referential integrity before destructive operations. It never writes.
type Guard struct {
	db *gorm.DB
}

// NewGuard creates the integrity guard.
func NewGuard(db *gorm.DB) *Guard {
	return &Guard{db: db}
}

// CanDelete reports whether the object may be deleted.
func (g *Guard) CanDelete(ctx context.Context, target Target, id uint) (Decision, error) {
	d, err := g.Evaluate(g.db.WithContext(ctx), target, id)
	return d, classify("can_delete", err)
}

type blocker struct {
	label string
	count func(tx *gorm.DB) (int64, error)
}

// Evaluate runs the guard on the given handle, typically an open transaction.
func (g *Guard) Evaluate(tx *gorm.DB, target Target, id uint) (Decision, error) {
	const op = "can_delete"
	var blockers []blocker
	switch target {
	case TargetSupplier:
		if _, err := fetch[models.Supplier](tx, op, "supplier", id); err != nil {
			return Decision{}, err
		}
		blockers = []blocker{
			{"running contract(s)", countWhere(&models.Contract{}, "supplier_id = ? AND status IN ?", id,
				[]models.ContractStatus{models.ContractActive, models.ContractRenewed, models.ContractDraft})},
			{"open purchase order(s)", countWhere(&models.PurchaseOrder{}, "supplier_id = ? AND status NOT IN ?", id, models.StatusesClosed)},
		}
	case TargetContract:
		if _, err := fetch[models.Contract](tx, op, "contract", id); err != nil {
			return Decision{}, err
		}
		blockers = []blocker{
			{"purchase order(s)", countWhere(&models.PurchaseOrder{}, "contract_id = ? AND status <> ?", id, models.POCancelled)},
		}
	case TargetBudgetLine:
		if _, err := fetch[models.BudgetLine](tx, op, "budget line", id); err != nil {
			return Decision{}, err
		}
		blockers = []blocker{
			{"engaged purchase order(s)", countWhere(&models.PurchaseOrder{}, "budget_line_id = ? AND status IN ?", id, models.StatusesEngaged)},
		}
	case TargetBudget:
		if _, err := fetch[models.AnnualBudget](tx, op, "budget", id); err != nil {
			return Decision{}, err
		}
		blockers = []blocker{
			{"engaged purchase order(s) on its lines", func(tx *gorm.DB) (int64, error) {
				var n int64
				err := tx.Model(&models.PurchaseOrder{}).
					Where("status IN ? AND budget_line_id IN (?)", models.StatusesEngaged,
						tx.Model(&models.BudgetLine{}).Select("id").Where("budget_id = ?", id)).
					Count(&n).Error
				return n, err
			}},
		}
	case TargetEntity:
		if _, err := fetch[models.Entity](tx, op, "entity", id); err != nil {
			return Decision{}, err
		}
		blockers = []blocker{
			{"open budget(s)", countWhere(&models.AnnualBudget{}, "entity_id = ? AND status <> ?", id, models.BudgetClosed)},
			{"purchase order(s)", countWhere(&models.PurchaseOrder{}, "entity_id = ?", id)},
			{"purchase order(s) on its lines", func(tx *gorm.DB) (int64, error) {
				var n int64
				err := tx.Model(&models.PurchaseOrder{}).
					Where("budget_line_id IN (?)", tx.Model(&models.BudgetLine{}).Select("id").
						Where("budget_id IN (?)", tx.Model(&models.AnnualBudget{}).Select("id").Where("entity_id = ?", id))).
					Count(&n).Error
				return n, err
			}},
			{"contract(s)", countWhere(&models.Contract{}, "entity_id = ?", id)},
			{"project(s)", countWhere(&models.Project{}, "entity_id = ?", id)},
		}
	case TargetApplication:
		if _, err := fetch[models.Application](tx, op, "application", id); err != nil {
			return Decision{}, err
		}
		blockers = []blocker{
			{"active budget line(s)", countWhere(&models.BudgetLine{}, "application_id = ? AND status = ?", id, models.LineActive)},
			{"open purchase order(s)", countWhere(&models.PurchaseOrder{}, "application_id = ? AND status NOT IN ?", id, models.StatusesClosed)},
		}
	default:
		return Decision{}, invalidInput(op, map[string]string{"type": "unknown_object_type"})
	}

	d := Decision{Allowed: true}
	var reasons []string
	for _, b := range blockers {
		n, err := b.count(tx)
		if err != nil {
			return Decision{}, fmt.Errorf("count %s: %w", b.label, err)
		}
		if n > 0 {
			if d.Blockers == nil {
				d.Blockers = map[string]int64{}
			}
			d.Blockers[b.label] = n
			reasons = append(reasons, fmt.Sprintf("%d %s", n, b.label))
		}
	}
	if len(reasons) > 0 {
		d.Allowed = false
		d.Reason = fmt.Sprintf("%s %d is still referenced by %s", target, id, strings.Join(reasons, ", "))
	}
	return d, nil
}

func countWhere(model any, query string, args ...any) func(tx *gorm.DB) (int64, error) {
	return func(tx *gorm.DB) (int64, error) {
		var n int64
		err := tx.Model(model).Where(query, args...).Count(&n).Error
		return n, err
	}
}

// ensureDeletable turns a negative decision into a conflict error.
func ensureDeletable(tx *gorm.DB, guard DeletionGuard, op string, target Target, id uint) error {
	d, err := guard.Evaluate(tx, target, id)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return conflict(op, "%s", d.Reason)
	}
	return nil
}
