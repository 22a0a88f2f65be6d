package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ContractType is the procurement vehicle of a contract.
type ContractType string

const (
	ContractOrderFramework     ContractType = "ORDER_FRAMEWORK"
	ContractMaintenance        ContractType = "MAINTENANCE"
	ContractMAPA               ContractType = "MAPA"
	ContractFrameworkAgreement ContractType = "FRAMEWORK_AGREEMENT"
	ContractOffMarket          ContractType = "OFF_MARKET"
)

// ContractTypes lists the accepted contract types.
var ContractTypes = []ContractType{
	ContractOrderFramework, ContractMaintenance, ContractMAPA, ContractFrameworkAgreement, ContractOffMarket,
}

// ContractStatus represents the lifecycle of a contract.
type ContractStatus string

const (
	ContractDraft      ContractStatus = "DRAFT"
	ContractActive     ContractStatus = "ACTIVE"
	ContractRenewed    ContractStatus = "RENEWED"
	ContractExpired    ContractStatus = "EXPIRED"
	ContractTerminated ContractStatus = "TERMINATED"
)

// Contract is a supplier agreement with an optional spending ceiling.
type Contract struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Number        string         `gorm:"size:50;uniqueIndex;not null" json:"number"`
	Subject       string         `gorm:"size:500;not null" json:"subject"`
	Type          ContractType   `gorm:"size:30;not null" json:"type"`
	Status        ContractStatus `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	EntityID      uint           `gorm:"index;not null" json:"entity_id"`
	SupplierID    uint           `gorm:"index;not null" json:"supplier_id"`
	Supplier      *Supplier      `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	ApplicationID *uint          `gorm:"index" json:"application_id,omitempty"`
	Nature        Nature         `gorm:"size:20;not null" json:"nature"`

	AmountHT          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_ht"`
	MaxAmountHT       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"max_amount_ht"`
	AnnualAmountHT    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"annual_amount_ht"`
	EngagedCumulative decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"engaged_cumulative"`
	RemainingAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"remaining_amount"`

	StartDate    time.Time `gorm:"not null" json:"start_date"`
	EndDate      time.Time `gorm:"not null" json:"end_date"`
	TacitRenewal bool      `gorm:"not null" json:"tacit_renewal"`
	RenewalsDone int       `gorm:"not null" json:"renewals_done"`
	RenewalsMax  int       `gorm:"not null" json:"renewals_max"`
}

// Ceiling returns the spending cap: the max amount when set, the base amount otherwise.
// A non-positive ceiling means the contract is uncapped.
func (c *Contract) Ceiling() decimal.Decimal {
	if c.MaxAmountHT.IsPositive() {
		return c.MaxAmountHT
	}
	return c.AmountHT
}

// Renewable reports whether the contract can be renewed at all.
func (c *Contract) Renewable() bool {
	return c.TacitRenewal || c.RenewalsMax > 0
}

// RenewalLimitReached reports whether one more renewal would exceed the maximum.
func (c *Contract) RenewalLimitReached() bool {
	return c.RenewalsMax > 0 && c.RenewalsDone+1 > c.RenewalsMax
}

// IsRunning reports whether the contract is in force.
func (c *Contract) IsRunning() bool {
	return c.Status == ContractActive || c.Status == ContractRenewed
}

// DaysUntilEnd returns the number of calendar days from now to the end date.
func (c *Contract) DaysUntilEnd(now time.Time) int {
	return int(math.Round(TruncateDay(c.EndDate).Sub(TruncateDay(now)).Hours() / 24))
}

// AddYear moves t forward one calendar year; 29 February maps to 28 February.
func AddYear(t time.Time) time.Time {
	y, m, d := t.Date()
	if m == time.February && d == 29 {
		d = 28
	}
	return time.Date(y+1, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// TruncateDay drops the time of day, keeping the location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
