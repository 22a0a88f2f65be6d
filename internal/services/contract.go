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

type ContractInput struct {
	Number         string                `json:"number"`
	Subject        string                `json:"subject"`
	Type           models.ContractType   `json:"type"`
	Status         models.ContractStatus `json:"status,omitempty"`
	EntityID       uint                  `json:"entity_id"`
	SupplierID     uint                  `json:"supplier_id"`
	ApplicationID  *uint                 `json:"application_id,omitempty"`
	Nature         models.Nature         `json:"nature"`
	AmountHT       decimal.Decimal       `json:"amount_ht"`
	MaxAmountHT    decimal.Decimal       `json:"max_amount_ht"`
	AnnualAmountHT decimal.Decimal       `json:"annual_amount_ht"`
	StartDate      time.Time             `json:"start_date"`
	EndDate        time.Time             `json:"end_date"`
	TacitRenewal   bool                  `json:"tacit_renewal"`
	RenewalsMax    int                   `json:"renewals_max"`
}

// ContractFilter narrows ListContracts.
type ContractFilter struct {
	EntityID   uint
	SupplierID uint
	Status     models.ContractStatus
}

// CeilingCheck is the verdict of a contract ceiling evaluation.
// Remaining is the balance left once the requested amount is added.
type CeilingCheck struct {
	ContractID uint            `json:"contract_id"`
	Allowed    bool            `json:"allowed"`
	Unlimited  bool            `json:"unlimited"`
	Ceiling    decimal.Decimal `json:"ceiling"`
	Cumulative decimal.Decimal `json:"cumulative"`
	Requested  decimal.Decimal `json:"requested"`
	Remaining  decimal.Decimal `json:"remaining"`
	Overrun    decimal.Decimal `json:"overrun"`
	Message    string          `json:"message"`
}

// RenewResult describes a completed renewal. Warning is set when the annual amount
// could not be carried to a budget line.
type RenewResult struct {
	ContractID      uint      `json:"contract_id"`
	PreviousEndDate time.Time `json:"previous_end_date"`
	NewEndDate      time.Time `json:"new_end_date"`
	RenewalsDone    int       `json:"renewals_done"`
	LineID          *uint     `json:"line_id,omitempty"`
	Warning         string    `json:"warning,omitempty"`
}

// ContractTracker manages contracts, their ceilings and renewals.
type ContractTracker struct {
	*runner
	recalc Recalculator
	guard  DeletionGuard
}

// NewContractTracker creates the contract ceiling tracker.
func NewContractTracker(r *runner, recalc Recalculator, guard DeletionGuard) *ContractTracker {
	return &ContractTracker{runner: r, recalc: recalc, guard: guard}
}

func (t *ContractTracker) CreateContract(ctx context.Context, in ContractInput) (*models.Contract, error) {
	const op = "create_contract"
	var contract models.Contract
	err := t.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		v := make(validation.Violations)
		validation.Required("number", in.Number, v)
		validation.Required("subject", in.Subject, v)
		validation.OneOf("type", in.Type, models.ContractTypes, v)
		validation.OneOf("nature", in.Nature, models.Natures, v)
		validation.RequiredID("entity_id", in.EntityID, v)
		validation.RequiredID("supplier_id", in.SupplierID, v)
		validation.NonNegativeAmount("amount_ht", in.AmountHT, v)
		validation.NonNegativeAmount("max_amount_ht", in.MaxAmountHT, v)
		validation.NonNegativeAmount("annual_amount_ht", in.AnnualAmountHT, v)
		if in.EndDate.IsZero() {
			v["end_date"] = "required"
		} else if !in.StartDate.IsZero() && in.EndDate.Before(in.StartDate) {
			v["end_date"] = "before_start_date"
		}
		if in.RenewalsMax < 0 {
			v["renewals_max"] = "must_not_be_negative"
		}
		if !v.Empty() {
			return invalidInput(op, v)
		}
		if err := requireRef[models.Entity](tx, op, "entity", in.EntityID); err != nil {
			return err
		}
		if err := requireRef[models.Supplier](tx, op, "supplier", in.SupplierID); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.Contract{}).Where("number = ?", in.Number).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return conflict(op, "contract number %s already exists", in.Number)
		}
		status := in.Status
		if status == "" {
			status = models.ContractActive
		}
		contract = models.Contract{
			Number:         strings.TrimSpace(in.Number),
			Subject:        strings.TrimSpace(in.Subject),
			Type:           in.Type,
			Status:         status,
			EntityID:       in.EntityID,
			SupplierID:     in.SupplierID,
			ApplicationID:  in.ApplicationID,
			Nature:         in.Nature,
			AmountHT:       in.AmountHT,
			MaxAmountHT:    in.MaxAmountHT,
			AnnualAmountHT: in.AnnualAmountHT,
			StartDate:      models.TruncateDay(in.StartDate.UTC()),
			EndDate:        models.TruncateDay(in.EndDate.UTC()),
			TacitRenewal:   in.TacitRenewal,
			RenewalsMax:    in.RenewalsMax,
		}
		if ceiling := contract.Ceiling(); ceiling.IsPositive() {
			contract.RemainingAmount = ceiling
		}
		if err := tx.Create(&contract).Error; err != nil {
			return err
		}
		j.Add(models.ObjectContract, contract.ID, models.ActionCreate, contract.Number, nil, contractSnapshot(contract))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// GetContract returns a contract with its supplier.
func (t *ContractTracker) GetContract(ctx context.Context, id uint) (*models.Contract, error) {
	var c models.Contract
	err := t.db.WithContext(ctx).Preload("Supplier").First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("get_contract", "contract %d does not exist", id)
	}
	if err != nil {
		return nil, classify("get_contract", err)
	}
	return &c, nil
}

func (t *ContractTracker) ListContracts(ctx context.Context, f ContractFilter) ([]models.Contract, error) {
	q := t.db.WithContext(ctx).Model(&models.Contract{}).Preload("Supplier")
	if f.EntityID != 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.SupplierID != 0 {
		q = q.Where("supplier_id = ?", f.SupplierID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var contracts []models.Contract
	err := q.Order("end_date").Order("id").Find(&contracts).Error
	return contracts, classify("list_contracts", err)
}

// DeleteContract removes a contract no live order references.
func (t *ContractTracker) DeleteContract(ctx context.Context, id uint) error {
	const op = "delete_contract"
	return t.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if err := ensureDeletable(tx, t.guard, op, TargetContract, id); err != nil {
			return err
		}
		c, err := fetch[models.Contract](tx, op, "contract", id)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.PurchaseOrder{}).Where("contract_id = ?", id).Update("contract_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Contract{}, id).Error; err != nil {
			return err
		}
		j.Add(models.ObjectContract, id, models.ActionDelete, c.Number, contractSnapshot(*c), nil)
		return nil
	})
}

// CheckCeiling evaluates whether amount fits under the contract ceiling.
// Counted orders exclude drafts, cancelled orders and excludePOID.
// A rejection is reported in the result, not as an error.
func (t *ContractTracker) CheckCeiling(ctx context.Context, contractID uint, amount decimal.Decimal, excludePOID uint) (CeilingCheck, error) {
	chk, err := t.Check(t.db.WithContext(ctx), contractID, amount, excludePOID)
	return chk, classify("check_ceiling", err)
}

// Check is CheckCeiling on an existing handle.
func (t *ContractTracker) Check(tx *gorm.DB, contractID uint, amount decimal.Decimal, excludePOID uint) (CeilingCheck, error) {
	const op = "check_ceiling"
	if amount.IsNegative() {
		return CeilingCheck{}, invalidInput(op, map[string]string{"amount": "must_not_be_negative"})
	}
	c, err := fetch[models.Contract](tx, op, "contract", contractID)
	if err != nil {
		return CeilingCheck{}, err
	}
	q := tx.Model(&models.PurchaseOrder{}).Where("contract_id = ? AND status NOT IN ?", contractID, models.StatusesNotCounted)
	if excludePOID != 0 {
		q = q.Where("id <> ?", excludePOID)
	}
	var amounts []decimal.Decimal
	if err := q.Pluck("amount_ttc", &amounts).Error; err != nil {
		return CeilingCheck{}, fmt.Errorf("sum orders of contract %d: %w", contractID, err)
	}

	res := CeilingCheck{
		ContractID: contractID,
		Ceiling:    c.Ceiling(),
		Cumulative: sum(amounts),
		Requested:  amount,
	}
	if !res.Ceiling.IsPositive() {
		res.Allowed = true
		res.Unlimited = true
		res.Message = fmt.Sprintf("contract %s has no ceiling", c.Number)
		return res, nil
	}
	after := res.Cumulative.Add(amount)
	res.Remaining = res.Ceiling.Sub(after)
	if after.GreaterThan(res.Ceiling) {
		res.Overrun = after.Sub(res.Ceiling)
		res.Message = fmt.Sprintf("contract %s ceiling exceeded: engaged %s + requested %s > ceiling %s (overrun %s)",
			c.Number, money(res.Cumulative), money(amount), money(res.Ceiling), money(res.Overrun))
		return res, nil
	}
	res.Allowed = true
	res.Message = fmt.Sprintf("contract %s remaining after this order: %s", c.Number, money(res.Remaining))
	return res, nil
}

// Renew extends the contract by one year and carries its annual amount to the
// supplier's line in the budget of the new end year.
func (t *ContractTracker) Renew(ctx context.Context, contractID uint) (RenewResult, error) {
	const op = "renew_contract"
	var res RenewResult
	err := t.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		c, err := fetch[models.Contract](tx, op, "contract", contractID)
		if err != nil {
			return err
		}
		if c.Status == models.ContractTerminated {
			return invalidState(op, "contract %s is terminated", c.Number)
		}
		if !c.Renewable() {
			return invalidState(op, "contract %s has no tacit renewal and no renewal allowance", c.Number)
		}
		if c.RenewalLimitReached() {
			return limitExceeded(op, "contract %s already renewed %d of %d time(s)", c.Number, c.RenewalsDone, c.RenewalsMax)
		}
		prevEnd := c.EndDate
		newEnd := models.AddYear(prevEnd)
		res = RenewResult{ContractID: c.ID, PreviousEndDate: prevEnd, NewEndDate: newEnd, RenewalsDone: c.RenewalsDone + 1}
		if err := tx.Model(c).Updates(map[string]any{
			"end_date":      newEnd,
			"status":        models.ContractRenewed,
			"renewals_done": res.RenewalsDone,
		}).Error; err != nil {
			return err
		}

		if c.AnnualAmountHT.IsPositive() {
			line, err := t.renewalLine(tx, c, newEnd.Year())
			if err != nil {
				return err
			}
			if line == nil {
				res.Warning = fmt.Sprintf("no budget line for supplier %d in %d: annual amount %s must be reconciled manually",
					c.SupplierID, newEnd.Year(), money(c.AnnualAmountHT))
			} else {
				before := lineSnapshot(*line)
				line.ForecastAmount = line.ForecastAmount.Add(c.AnnualAmountHT)
				line.VotedAmount = line.VotedAmount.Add(c.AnnualAmountHT)
				line.AvailableAmount = line.AvailableAmount.Add(c.AnnualAmountHT)
				if err := tx.Model(line).Updates(map[string]any{
					"forecast_amount":  line.ForecastAmount,
					"voted_amount":     line.VotedAmount,
					"available_amount": line.AvailableAmount,
				}).Error; err != nil {
					return err
				}
				if err := t.recalc.RecalcBudget(tx, line.BudgetID); err != nil {
					return err
				}
				res.LineID = &line.ID
				j.Add(models.ObjectBudgetLine, line.ID, models.ActionUpdate,
					fmt.Sprintf("renewal of contract %s: +%s", c.Number, money(c.AnnualAmountHT)), before, lineSnapshot(*line))
			}
		}
		j.Add(models.ObjectContract, c.ID, models.ActionRenewal, res.Warning,
			map[string]any{"end_date": prevEnd.Format(time.DateOnly), "status": c.Status},
			map[string]any{"end_date": newEnd.Format(time.DateOnly), "status": models.ContractRenewed})
		return nil
	})
	if err != nil {
		return RenewResult{}, err
	}
	return res, nil
}

// renewalLine finds the first non closed line of the contract supplier in the entity
// budget of exercise year.
func (t *ContractTracker) renewalLine(tx *gorm.DB, c *models.Contract, year int) (*models.BudgetLine, error) {
	var line models.BudgetLine
	err := tx.Where("supplier_id = ? AND status <> ? AND budget_id IN (?)", c.SupplierID, models.LineClosed,
		tx.Model(&models.AnnualBudget{}).Select("id").Where("entity_id = ? AND exercise = ?", c.EntityID, year)).
		Order("id").First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find renewal line: %w", err)
	}
	return &line, nil
}

func contractSnapshot(c models.Contract) map[string]any {
	return map[string]any{
		"number":    c.Number,
		"status":    c.Status,
		"amount_ht": money(c.AmountHT),
		"max_ht":    money(c.MaxAmountHT),
		"engaged":   money(c.EngagedCumulative),
		"end_date":  c.EndDate.Format(time.DateOnly),
	}
}
