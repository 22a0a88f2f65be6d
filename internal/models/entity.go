package models

import "time"

// Nature is the accounting section a budget, line or contract belongs to.
type Nature string

const (
	NatureOperating Nature = "OPERATING"
	NatureCapital   Nature = "CAPITAL"
)

// Natures lists every nature in budget preparation order.
var Natures = []Nature{NatureOperating, NatureCapital}

// Valid reports whether n is a known nature.
func (n Nature) Valid() bool {
	return n == NatureOperating || n == NatureCapital
}

// Entity is an organisational unit owning budgets and contracts.
type Entity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code   string `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Name   string `gorm:"size:255;not null" json:"name"`
	Active bool   `gorm:"not null" json:"active"`
}

// Supplier is reference data referenced by contracts, lines and purchase orders.
type Supplier struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name   string `gorm:"size:255;not null" json:"name"`
	Active bool   `gorm:"not null" json:"active"`
}

// ApplicationStatus tracks the lifecycle of a business application.
type ApplicationStatus string

const (
	ApplicationActive  ApplicationStatus = "ACTIVE"
	ApplicationRetired ApplicationStatus = "RETIRED"
)

// Application is a business application budget lines and orders can be attached to.
type Application struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code   string            `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name   string            `gorm:"size:255;not null" json:"name"`
	Status ApplicationStatus `gorm:"size:20;default:'ACTIVE'" json:"status"`
}
