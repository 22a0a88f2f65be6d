package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BudgetStatus represents the lifecycle of an annual budget.
type BudgetStatus string

const (
	BudgetInPreparation BudgetStatus = "IN_PREPARATION"
	BudgetSubmitted     BudgetStatus = "SUBMITTED"
	BudgetVoted         BudgetStatus = "VOTED"
	BudgetClosed        BudgetStatus = "CLOSED"
)

var budgetStatusRank = map[BudgetStatus]int{
	BudgetInPreparation: 0,
	BudgetSubmitted:     1,
	BudgetVoted:         2,
	BudgetClosed:        3,
}

// Valid reports whether s is a known budget status.
func (s BudgetStatus) Valid() bool {
	_, ok := budgetStatusRank[s]
	return ok
}

// CanMoveTo reports whether the lifecycle allows going from s to next.
// Budgets only move forward.
func (s BudgetStatus) CanMoveTo(next BudgetStatus) bool {
	from, ok1 := budgetStatusRank[s]
	to, ok2 := budgetStatusRank[next]
	return ok1 && ok2 && to > from
}

// AnnualBudget is the envelope of one entity for one exercise and nature.
type AnnualBudget struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EntityID uint    `gorm:"not null;uniqueIndex:idx_budget_scope" json:"entity_id"`
	Entity   *Entity `gorm:"foreignKey:EntityID" json:"entity,omitempty"`
	Exercise int     `gorm:"not null;uniqueIndex:idx_budget_scope" json:"exercise"`
	Nature   Nature  `gorm:"size:20;not null;uniqueIndex:idx_budget_scope" json:"nature"`

	ForecastAmount  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"forecast_amount"`
	VotedAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"voted_amount"`
	CommittedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"committed_amount"`
	AvailableAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"available_amount"`

	Status   BudgetStatus `gorm:"size:20;not null;default:'IN_PREPARATION'" json:"status"`
	VoteDate *time.Time   `json:"vote_date,omitempty"`
	Note     string       `gorm:"type:text" json:"note,omitempty"`

	Lines []BudgetLine `gorm:"foreignKey:BudgetID" json:"lines,omitempty"`
}

// LineStatus represents whether a budget line accepts commitments.
type LineStatus string

const (
	LineActive LineStatus = "ACTIVE"
	LineFrozen LineStatus = "FROZEN"
	LineClosed LineStatus = "CLOSED"
)

// Valid reports whether s is a known line status.
func (s LineStatus) Valid() bool {
	return s == LineActive || s == LineFrozen || s == LineClosed
}

// DefaultAlertThreshold is the consumption percentage that raises a line alert.
const DefaultAlertThreshold = 80

// BudgetLine is one spending line of an annual budget.
type BudgetLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BudgetID uint          `gorm:"index;not null" json:"budget_id"`
	Budget   *AnnualBudget `gorm:"foreignKey:BudgetID" json:"-"`

	Label         string `gorm:"size:255;not null" json:"label"`
	Nature        Nature `gorm:"size:20;not null" json:"nature"`
	ApplicationID *uint  `gorm:"index" json:"application_id,omitempty"`
	ProjectID     *uint  `gorm:"index" json:"project_id,omitempty"`
	SupplierID    *uint  `gorm:"index" json:"supplier_id,omitempty"`
	ContractID    *uint  `gorm:"index" json:"contract_id,omitempty"`

	ForecastAmount  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"forecast_amount"`
	VotedAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"voted_amount"`
	CommittedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"committed_amount"`
	AvailableAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"available_amount"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"paid_amount"`

	AlertThreshold int        `gorm:"not null;default:80" json:"alert_threshold"`
	Note           string     `gorm:"type:text" json:"note,omitempty"`
	Status         LineStatus `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
}

// RecomputeAvailable sets AvailableAmount to voted minus committed.
func (l *BudgetLine) RecomputeAvailable() {
	l.AvailableAmount = l.VotedAmount.Sub(l.CommittedAmount)
}

// EffectiveAvailable is the balance funds checks compare against. With legacy set
// the stored balance wins when it is larger, which matches rows written before
// balances were normalised.
func (l *BudgetLine) EffectiveAvailable(legacy bool) decimal.Decimal {
	v := l.VotedAmount.Sub(l.CommittedAmount)
	if legacy && l.AvailableAmount.GreaterThan(v) {
		return l.AvailableAmount
	}
	return v
}

// ConsumptionRate returns committed / voted as a percentage, zero when nothing is voted.
func (l *BudgetLine) ConsumptionRate() decimal.Decimal {
	if !l.VotedAmount.IsPositive() {
		return decimal.Zero
	}
	return l.CommittedAmount.Div(l.VotedAmount).Mul(decimal.NewFromInt(100)).Round(2)
}

// OverThreshold reports whether committed reached the alert threshold of voted.
func (l *BudgetLine) OverThreshold() bool {
	if !l.VotedAmount.IsPositive() {
		return false
	}
	limit := l.VotedAmount.Mul(decimal.NewFromInt(int64(l.AlertThreshold))).Div(decimal.NewFromInt(100))
	return l.CommittedAmount.GreaterThanOrEqual(limit)
}
