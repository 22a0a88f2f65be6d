package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// maintenanceLookback is how long before the target year a maintenance contract may
// have ended and still be carried over.
const maintenanceLookback = 6

const (
	maintenanceSubjectLen = 40
	projectNameLen        = 50
)

// ProposalSource tells where a next-year proposal comes from.
type ProposalSource string

const (
	SourceLine     ProposalSource = "LINE"
	SourceContract ProposalSource = "CONTRACT"
	// SourceProject proposals are advisory: PrepareNextYear never creates them.
	SourceProject ProposalSource = "PROJECT"
)

type PrepareInput struct {
	EntityID   uint `json:"entity_id"`
	SourceYear int  `json:"source_year"`
	TargetYear int  `json:"target_year"`
}

// Proposal is one candidate line for the next year. Suggestion is the amount the
// consumption of the source year points to; ForecastAmount is what PrepareNextYear seeds.
type Proposal struct {
	Source          ProposalSource  `json:"source"`
	Nature          models.Nature   `json:"nature"`
	Label           string          `json:"label"`
	ForecastAmount  decimal.Decimal `json:"forecast_amount"`
	Suggestion      decimal.Decimal `json:"suggestion"`
	Reason          string          `json:"reason"`
	SourceLineID    *uint           `json:"source_line_id,omitempty"`
	ContractID      *uint           `json:"contract_id,omitempty"`
	ProjectID       *uint           `json:"project_id,omitempty"`
	ConsumptionRate decimal.Decimal `json:"consumption_rate"`
	Alert           bool            `json:"alert"`
	Exists          bool            `json:"exists"`

	line models.BudgetLine
}

// ForecastGenerator drafts next-year budgets from the current year and running contracts.
type ForecastGenerator struct {
	*runner
	recalc Recalculator
}

// NewForecastGenerator creates the forecast generator.
func NewForecastGenerator(r *runner, recalc Recalculator) *ForecastGenerator {
	return &ForecastGenerator{runner: r, recalc: recalc}
}

// PrepareNextYear creates, for each nature, the target budget when missing and the
// lines it lacks by label: copies of the source lines and one line per maintenance
// contract still running. It returns the number of lines created and is idempotent.
func (f *ForecastGenerator) PrepareNextYear(ctx context.Context, in PrepareInput) (int, error) {
	const op = "prepare_next_year"
	created := 0
	err := f.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if err := validatePrepare(op, in); err != nil {
			return err
		}
		if _, err := fetch[models.Entity](tx, op, "entity", in.EntityID); err != nil {
			return err
		}
		for _, nature := range models.Natures {
			target, isNew, err := f.ensureBudget(tx, in.EntityID, in.TargetYear, nature)
			if err != nil {
				return err
			}
			if isNew {
				j.Add(models.ObjectBudget, target.ID, models.ActionCreate,
					fmt.Sprintf("%s %d prepared from %d", nature, in.TargetYear, in.SourceYear), nil, budgetSnapshot(*target))
			}
			proposals, err := f.proposals(tx, in, nature, target.ID)
			if err != nil {
				return err
			}
			n := 0
			for _, p := range proposals {
				if p.Exists {
					continue
				}
				line := p.line
				line.BudgetID = target.ID
				if err := tx.Create(&line).Error; err != nil {
					return fmt.Errorf("create line %q: %w", line.Label, err)
				}
				n++
			}
			if n == 0 && !isNew {
				continue
			}
			if err := f.recalc.RecalcBudget(tx, target.ID); err != nil {
				return err
			}
			j.Add(models.ObjectBudget, target.ID, models.ActionPrepare,
				fmt.Sprintf("%d line(s) generated from %d", n, in.SourceYear), nil, map[string]any{"lines_created": n})
			created += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// PreviewNextYear lists what PrepareNextYear would do without writing anything,
// plus advisory proposals for projects of the entity that still have a remaining envelope.
func (f *ForecastGenerator) PreviewNextYear(ctx context.Context, in PrepareInput) ([]Proposal, error) {
	const op = "preview_next_year"
	if err := validatePrepare(op, in); err != nil {
		return nil, err
	}
	db := f.db.WithContext(ctx)
	if _, err := fetch[models.Entity](db, op, "entity", in.EntityID); err != nil {
		return nil, err
	}
	var out []Proposal
	for _, nature := range models.Natures {
		var targetID uint
		var target models.AnnualBudget
		err := db.Where("entity_id = ? AND exercise = ? AND nature = ?", in.EntityID, in.TargetYear, nature).First(&target).Error
		switch {
		case err == nil:
			targetID = target.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, classify(op, err)
		}
		proposals, err := f.proposals(db, in, nature, targetID)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, proposals...)
	}
	return out, nil
}

func validatePrepare(op string, in PrepareInput) error {
	v := map[string]string{}
	if in.EntityID == 0 {
		v["entity_id"] = "required"
	}
	if in.SourceYear == 0 {
		v["source_year"] = "required"
	}
	if in.TargetYear <= in.SourceYear {
		v["target_year"] = "must_follow_source_year"
	}
	if len(v) > 0 {
		return invalidInput(op, v)
	}
	return nil
}

func (f *ForecastGenerator) ensureBudget(tx *gorm.DB, entityID uint, year int, nature models.Nature) (*models.AnnualBudget, bool, error) {
	var b models.AnnualBudget
	err := tx.Where("entity_id = ? AND exercise = ? AND nature = ?", entityID, year, nature).First(&b).Error
	if err == nil {
		return &b, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	b = models.AnnualBudget{EntityID: entityID, Exercise: year, Nature: nature, Status: models.BudgetInPreparation}
	if err := tx.Create(&b).Error; err != nil {
		return nil, false, fmt.Errorf("create %s budget %d: %w", nature, year, err)
	}
	return &b, true, nil
}

// proposals builds candidate lines for one nature. targetID may be zero when the
// target budget does not exist yet.
func (f *ForecastGenerator) proposals(tx *gorm.DB, in PrepareInput, nature models.Nature, targetID uint) ([]Proposal, error) {
	existing := map[string]bool{}
	if targetID != 0 {
		var labels []string
		if err := tx.Model(&models.BudgetLine{}).Where("budget_id = ?", targetID).Pluck("label", &labels).Error; err != nil {
			return nil, err
		}
		for _, l := range labels {
			existing[l] = true
		}
	}

	var out []Proposal
	add := func(p Proposal) {
		p.Exists = existing[p.Label]
		existing[p.Label] = true
		out = append(out, p)
	}

	var source models.AnnualBudget
	err := tx.Where("entity_id = ? AND exercise = ? AND nature = ?", in.EntityID, in.SourceYear, nature).First(&source).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		var lines []models.BudgetLine
		if err := tx.Where("budget_id = ?", source.ID).Order("id").Find(&lines).Error; err != nil {
			return nil, err
		}
		for i := range lines {
			src := lines[i]
			forecast := src.ForecastAmount
			if src.VotedAmount.IsPositive() {
				forecast = src.VotedAmount
			}
			srcID := src.ID
			suggestion, reason := suggest(src)
			add(Proposal{
				Source:          SourceLine,
				Nature:          nature,
				Label:           src.Label,
				ForecastAmount:  forecast,
				Suggestion:      suggestion,
				Reason:          reason,
				SourceLineID:    &srcID,
				ContractID:      src.ContractID,
				ProjectID:       src.ProjectID,
				ConsumptionRate: src.ConsumptionRate(),
				Alert:           src.VotedAmount.LessThan(src.CommittedAmount) || src.ConsumptionRate().GreaterThan(decimal.NewFromInt(90)),
				line: models.BudgetLine{
					Label:          src.Label,
					Nature:         src.Nature,
					ApplicationID:  src.ApplicationID,
					ProjectID:      src.ProjectID,
					SupplierID:     src.SupplierID,
					ContractID:     src.ContractID,
					ForecastAmount: forecast,
					AlertThreshold: src.AlertThreshold,
					Note:           fmt.Sprintf("Generated from %d", in.SourceYear),
					Status:         models.LineActive,
				},
			})
		}
	}

	cutoff := time.Date(in.TargetYear, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -maintenanceLookback, 0)
	var contracts []models.Contract
	if err := tx.Preload("Supplier").
		Where("entity_id = ? AND nature = ? AND type = ? AND status IN ? AND end_date >= ?",
			in.EntityID, nature, models.ContractMaintenance,
			[]models.ContractStatus{models.ContractActive, models.ContractRenewed}, cutoff).
		Order("id").Find(&contracts).Error; err != nil {
		return nil, err
	}
	for i := range contracts {
		c := contracts[i]
		cid := c.ID
		supplierID := c.SupplierID
		label := maintenanceLabel(c)
		add(Proposal{
			Source:         SourceContract,
			Nature:         nature,
			Label:          label,
			ForecastAmount: c.AmountHT,
			Suggestion:     c.AmountHT,
			Reason:         "running maintenance contract",
			ContractID:     &cid,
			line: models.BudgetLine{
				Label:          label,
				Nature:         nature,
				ApplicationID:  c.ApplicationID,
				SupplierID:     &supplierID,
				ContractID:     &cid,
				ForecastAmount: c.AmountHT,
				AlertThreshold: models.DefaultAlertThreshold,
				Note:           fmt.Sprintf("Maintenance contract %s", c.Number),
				Status:         models.LineActive,
			},
		})
	}
	return out, nil
}

// projectProposals appends one proposal per open project of the entity with a
// remaining envelope, skipping labels already proposed.
func (f *ForecastGenerator) projectProposals(tx *gorm.DB, in PrepareInput, out []Proposal) ([]Proposal, error) {
	var projects []models.Project
	if err := tx.Where("entity_id = ? AND status IN ?", in.EntityID,
		[]models.ProjectStatus{models.ProjectActive, models.ProjectOnHold}).
		Order("code").Find(&projects).Error; err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, p := range out {
		seen[p.Label] = true
	}
	for i := range projects {
		p := projects[i]
		remaining := p.PlannedAmount.Sub(p.CommittedAmount)
		if !remaining.IsPositive() {
			continue
		}
		label := "Project " + p.Code + " - " + truncateRunes(strings.TrimSpace(p.Name), projectNameLen)
		if seen[label] {
			continue
		}
		seen[label] = true
		rate := decimal.Zero
		if p.PlannedAmount.IsPositive() {
			rate = p.CommittedAmount.Div(p.PlannedAmount).Mul(decimal.NewFromInt(100)).Round(2)
		}
		pid := p.ID
		out = append(out, Proposal{
			Source:          SourceProject,
			Nature:          models.NatureCapital,
			Label:           label,
			ForecastAmount:  remaining,
			Suggestion:      remaining,
			Reason:          "active project remaining envelope",
			ProjectID:       &pid,
			ConsumptionRate: rate,
		})
	}
	return out, nil
}

var (
	overrunMargin = decimal.RequireFromString("1.10")
	highUplift    = decimal.RequireFromString("1.15")
	lowCut        = decimal.RequireFromString("0.80")
)

// suggest derives a next-year amount from how much of the line was consumed.
func suggest(l models.BudgetLine) (decimal.Decimal, string) {
	rate := l.ConsumptionRate()
	switch {
	case l.CommittedAmount.GreaterThan(l.VotedAmount):
		return l.CommittedAmount.Mul(overrunMargin).Round(2), "overrun, committed +10%"
	case rate.GreaterThan(decimal.NewFromInt(90)):
		return l.VotedAmount.Mul(highUplift).Round(2), "consumption above 90%, voted +15%"
	case l.VotedAmount.IsPositive() && rate.LessThan(decimal.NewFromInt(30)):
		return l.VotedAmount.Mul(lowCut).Round(2), "consumption below 30%, voted -20%"
	case l.VotedAmount.IsPositive():
		return l.VotedAmount, "renewal"
	default:
		return l.ForecastAmount, "renewal"
	}
}

func maintenanceLabel(c models.Contract) string {
	supplier := fmt.Sprintf("supplier %d", c.SupplierID)
	if c.Supplier != nil && c.Supplier.Name != "" {
		supplier = c.Supplier.Name
	}
	return "Maintenance " + supplier + " - " + truncateRunes(strings.TrimSpace(c.Subject), maintenanceSubjectLen)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
