package services

import (
	"context"
	"strings"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/diewo77/go-budgets/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SupplierInput struct {
	Name string `json:"name"`
}

type ApplicationInput struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type ProjectInput struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	EntityID      uint            `json:"entity_id"`
	PlannedAmount decimal.Decimal `json:"planned_amount"`
}

// ReferenceService holds the few reference records the engine cascades into.
type ReferenceService struct {
	*runner
	guard DeletionGuard
}

func NewReferenceService(r *runner, guard DeletionGuard) *ReferenceService {
	return &ReferenceService{runner: r, guard: guard}
}

func (s *ReferenceService) CreateSupplier(ctx context.Context, in SupplierInput) (*models.Supplier, error) {
	const op = "create_supplier"
	sup := models.Supplier{Name: strings.TrimSpace(in.Name), Active: true}
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if sup.Name == "" {
			return invalidInput(op, map[string]string{"name": "required"})
		}
		if err := tx.Create(&sup).Error; err != nil {
			return err
		}
		j.Add(models.ObjectSupplier, sup.ID, models.ActionCreate, sup.Name, nil, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *ReferenceService) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	var out []models.Supplier
	err := s.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, classify("list_suppliers", err)
}

// DeleteSupplier removes a supplier without running contracts or open orders.
func (s *ReferenceService) DeleteSupplier(ctx context.Context, id uint) error {
	const op = "delete_supplier"
	return s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if err := ensureDeletable(tx, s.guard, op, TargetSupplier, id); err != nil {
			return err
		}
		if err := tx.Delete(&models.Supplier{}, id).Error; err != nil {
			return err
		}
		j.Add(models.ObjectSupplier, id, models.ActionDelete, "", nil, nil)
		return nil
	})
}

func (s *ReferenceService) CreateApplication(ctx context.Context, in ApplicationInput) (*models.Application, error) {
	const op = "create_application"
	app := models.Application{Code: strings.ToUpper(strings.TrimSpace(in.Code)), Name: strings.TrimSpace(in.Name), Status: models.ApplicationActive}
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		v := make(validation.Violations)
		validation.Required("code", app.Code, v)
		validation.Required("name", app.Name, v)
		if !v.Empty() {
			return invalidInput(op, v)
		}
		var n int64
		if err := tx.Model(&models.Application{}).Where("code = ?", app.Code).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return conflict(op, "application code %s already exists", app.Code)
		}
		if err := tx.Create(&app).Error; err != nil {
			return err
		}
		j.Add(models.ObjectApplication, app.ID, models.ActionCreate, app.Code, nil, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// DeleteApplication removes an application no active line or open order uses.
func (s *ReferenceService) DeleteApplication(ctx context.Context, id uint) error {
	const op = "delete_application"
	return s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		if err := ensureDeletable(tx, s.guard, op, TargetApplication, id); err != nil {
			return err
		}
		if err := tx.Delete(&models.Application{}, id).Error; err != nil {
			return err
		}
		j.Add(models.ObjectApplication, id, models.ActionDelete, "", nil, nil)
		return nil
	})
}

func (s *ReferenceService) CreateProject(ctx context.Context, in ProjectInput) (*models.Project, error) {
	const op = "create_project"
	p := models.Project{
		Code:            strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:            strings.TrimSpace(in.Name),
		EntityID:        in.EntityID,
		Status:          models.ProjectActive,
		PlannedAmount:   in.PlannedAmount,
		AvailableAmount: in.PlannedAmount,
	}
	err := s.run(ctx, op, func(tx *gorm.DB, j *Journal) error {
		v := make(validation.Violations)
		validation.Required("code", p.Code, v)
		validation.Required("name", p.Name, v)
		validation.NonNegativeAmount("planned_amount", p.PlannedAmount, v)
		if !v.Empty() {
			return invalidInput(op, v)
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		j.Add(models.ObjectProject, p.ID, models.ActionCreate, p.Code, nil, map[string]any{"planned": money(p.PlannedAmount)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject returns one project.
func (s *ReferenceService) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	p, err := fetch[models.Project](s.db.WithContext(ctx), "get_project", "project", id)
	return p, classify("get_project", err)
}

func (s *ReferenceService) ListProjects(ctx context.Context) ([]models.Project, error) {
	var out []models.Project
	err := s.db.WithContext(ctx).Order("code").Find(&out).Error
	return out, classify("list_projects", err)
}
