package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectStatus represents the lifecycle of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectOnHold    ProjectStatus = "ON_HOLD"
	ProjectClosed    ProjectStatus = "CLOSED"
	ProjectCancelled ProjectStatus = "CANCELLED"
)

// Project groups purchase orders under a planned envelope.
type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code          string        `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name          string        `gorm:"size:255;not null" json:"name"`
	EntityID      uint          `gorm:"index" json:"entity_id"`
	Status        ProjectStatus `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	Completion    int           `gorm:"not null" json:"completion"`
	ActualEndDate *time.Time    `json:"actual_end_date,omitempty"`

	PlannedAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"planned_amount"`
	CommittedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"committed_amount"`
	AvailableAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"available_amount"`
}
