package services

import (
	"context"
	"time"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertLevel grades how close a contract is to its end date.
type AlertLevel string

const (
	AlertExpired  AlertLevel = "EXPIRED"
	AlertCritical AlertLevel = "CRITICAL"
	AlertWarning  AlertLevel = "WARNING"
	AlertInfo     AlertLevel = "INFO"
)

// DefaultAlertWindow is the contract alert horizon in days.
const DefaultAlertWindow = 180

// LevelForDays maps remaining days to an alert level.
func LevelForDays(days int) AlertLevel {
	switch {
	case days < 0:
		return AlertExpired
	case days <= 30:
		return AlertCritical
	case days <= 90:
		return AlertWarning
	default:
		return AlertInfo
	}
}

type ContractAlert struct {
	ContractID    uint       `json:"contract_id"`
	Number        string     `json:"number"`
	Subject       string     `json:"subject"`
	Supplier      string     `json:"supplier,omitempty"`
	EndDate       time.Time  `json:"end_date"`
	DaysRemaining int        `json:"days_remaining"`
	TacitRenewal  bool       `json:"tacit_renewal"`
	Level         AlertLevel `json:"level"`
}

type LineAlert struct {
	LineID          uint            `json:"line_id"`
	BudgetID        uint            `json:"budget_id"`
	Label           string          `json:"label"`
	VotedAmount     decimal.Decimal `json:"voted_amount"`
	CommittedAmount decimal.Decimal `json:"committed_amount"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
	ConsumptionRate decimal.Decimal `json:"consumption_rate"`
	Threshold       int             `json:"threshold"`
}

type BudgetSynthesis struct {
	BudgetID        uint                `json:"budget_id"`
	EntityID        uint                `json:"entity_id"`
	Exercise        int                 `json:"exercise"`
	Nature          models.Nature       `json:"nature"`
	Status          models.BudgetStatus `json:"status"`
	ForecastAmount  decimal.Decimal     `json:"forecast_amount"`
	VotedAmount     decimal.Decimal     `json:"voted_amount"`
	CommittedAmount decimal.Decimal     `json:"committed_amount"`
	PaidAmount      decimal.Decimal     `json:"paid_amount"`
	AvailableAmount decimal.Decimal     `json:"available_amount"`
	LineCount       int                 `json:"line_count"`
	ConsumptionRate decimal.Decimal     `json:"consumption_rate"`
}

// AlertService exposes read-only views over contracts and budgets.
type AlertService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAlertService creates the alert service.
func NewAlertService(db *gorm.DB, now func() time.Time) *AlertService {
	return &AlertService{db: db, now: now}
}

// ContractAlerts lists running contracts ending within days, soonest first.
// Contracts already past their end date are included.
func (a *AlertService) ContractAlerts(ctx context.Context, days int) ([]ContractAlert, error) {
	if days <= 0 {
		days = DefaultAlertWindow
	}
	now := a.now().UTC()
	horizon := models.TruncateDay(now).AddDate(0, 0, days)
	var contracts []models.Contract
	err := a.db.WithContext(ctx).Preload("Supplier").
		Where("status IN ? AND end_date <= ?", []models.ContractStatus{models.ContractActive, models.ContractRenewed}, horizon).
		Order("end_date").Order("id").Find(&contracts).Error
	if err != nil {
		return nil, classify("contract_alerts", err)
	}
	out := make([]ContractAlert, 0, len(contracts))
	for _, c := range contracts {
		left := c.DaysUntilEnd(now)
		alert := ContractAlert{
			ContractID:    c.ID,
			Number:        c.Number,
			Subject:       c.Subject,
			EndDate:       c.EndDate,
			DaysRemaining: left,
			TacitRenewal:  c.TacitRenewal,
			Level:         LevelForDays(left),
		}
		if c.Supplier != nil {
			alert.Supplier = c.Supplier.Name
		}
		out = append(out, alert)
	}
	return out, nil
}

// LineAlerts lists active lines whose committed amount reached their threshold.
// A zero budgetID scans every budget.
func (a *AlertService) LineAlerts(ctx context.Context, budgetID uint) ([]LineAlert, error) {
	q := a.db.WithContext(ctx).Where("status = ?", models.LineActive)
	if budgetID != 0 {
		q = q.Where("budget_id = ?", budgetID)
	}
	var lines []models.BudgetLine
	if err := q.Order("id").Find(&lines).Error; err != nil {
		return nil, classify("line_alerts", err)
	}
	out := []LineAlert{}
	for i := range lines {
		l := &lines[i]
		if !l.OverThreshold() {
			continue
		}
		out = append(out, LineAlert{
			LineID:          l.ID,
			BudgetID:        l.BudgetID,
			Label:           l.Label,
			VotedAmount:     l.VotedAmount,
			CommittedAmount: l.CommittedAmount,
			AvailableAmount: l.AvailableAmount,
			ConsumptionRate: l.ConsumptionRate(),
			Threshold:       l.AlertThreshold,
		})
	}
	return out, nil
}

// Synthesis summarises every budget of an exercise. A zero entityID covers all entities.
func (a *AlertService) Synthesis(ctx context.Context, exercise int, entityID uint) ([]BudgetSynthesis, error) {
	q := a.db.WithContext(ctx).Preload("Lines")
	if exercise != 0 {
		q = q.Where("exercise = ?", exercise)
	}
	if entityID != 0 {
		q = q.Where("entity_id = ?", entityID)
	}
	var budgets []models.AnnualBudget
	if err := q.Order("entity_id").Order("nature").Find(&budgets).Error; err != nil {
		return nil, classify("synthesis", err)
	}
	out := make([]BudgetSynthesis, 0, len(budgets))
	for _, b := range budgets {
		paid := decimal.Zero
		for _, l := range b.Lines {
			paid = paid.Add(l.PaidAmount)
		}
		rate := decimal.Zero
		if b.VotedAmount.IsPositive() {
			rate = b.CommittedAmount.Div(b.VotedAmount).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out = append(out, BudgetSynthesis{
			BudgetID:        b.ID,
			EntityID:        b.EntityID,
			Exercise:        b.Exercise,
			Nature:          b.Nature,
			Status:          b.Status,
			ForecastAmount:  b.ForecastAmount,
			VotedAmount:     b.VotedAmount,
			CommittedAmount: b.CommittedAmount,
			PaidAmount:      paid,
			AvailableAmount: b.AvailableAmount,
			LineCount:       len(b.Lines),
			ConsumptionRate: rate,
		})
	}
	return out, nil
}
