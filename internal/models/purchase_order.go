package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// POStatus represents where a purchase order stands in the commitment workflow.
type POStatus string

const (
	PODraft     POStatus = "DRAFT"
	POPending   POStatus = "PENDING"
	POValidated POStatus = "VALIDATED"
	POCommitted POStatus = "COMMITTED"
	POSettled   POStatus = "SETTLED"
	POCancelled POStatus = "CANCELLED"
)

// POEvent is a workflow action applied to a purchase order.
type POEvent string

const (
	EventSubmit   POEvent = "submit"
	EventValidate POEvent = "validate"
	EventCommit   POEvent = "commit"
	EventSettle   POEvent = "settle"
	EventCancel   POEvent = "cancel"
	EventReverse  POEvent = "reverse"
	// EventWithdraw reverses a commitment and cancels the order in one step.
	EventWithdraw POEvent = "withdraw"
)

type poTransition struct {
	from []POStatus
	to   POStatus
}

var poTransitions = map[POEvent]poTransition{
	EventSubmit:   {from: []POStatus{PODraft}, to: POPending},
	EventValidate: {from: []POStatus{PODraft, POPending}, to: POValidated},
	EventCommit:   {from: []POStatus{POValidated}, to: POCommitted},
	EventSettle:   {from: []POStatus{POCommitted}, to: POSettled},
	EventCancel:   {from: []POStatus{PODraft, POPending}, to: POCancelled},
	EventReverse:  {from: []POStatus{POCommitted}, to: POValidated},
	EventWithdraw: {from: []POStatus{POCommitted}, to: POCancelled},
}

// Next returns the status reached by applying ev, or false when ev is not allowed from s.
func (s POStatus) Next(ev POEvent) (POStatus, bool) {
	t, ok := poTransitions[ev]
	if !ok {
		return s, false
	}
	for _, f := range t.from {
		if f == s {
			return t.to, true
		}
	}
	return s, false
}

// Expects lists the statuses ev can be applied from.
func Expects(ev POEvent) []POStatus {
	return poTransitions[ev].from
}

// Status groups used by the guards and the cascades.
var (
	// StatusesEngaged are orders that consume line budget.
	StatusesEngaged = []POStatus{POValidated, POCommitted, POSettled}
	// StatusesClosed are orders with nothing left to do.
	StatusesClosed = []POStatus{POSettled, POCancelled}
	// StatusesNotCounted are orders ignored by the contract ceiling.
	StatusesNotCounted = []POStatus{POCancelled, PODraft}
)

// PurchaseOrder is a commitment drawn against a budget line.
type PurchaseOrder struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Number  string `gorm:"size:50;uniqueIndex;not null" json:"number"`
	Subject string `gorm:"size:500" json:"subject"`

	EntityID      uint  `gorm:"index;not null" json:"entity_id"`
	SupplierID    uint  `gorm:"index;not null" json:"supplier_id"`
	ContractID    *uint `gorm:"index" json:"contract_id,omitempty"`
	BudgetLineID  *uint `gorm:"index" json:"budget_line_id,omitempty"`
	ProjectID     *uint `gorm:"index" json:"project_id,omitempty"`
	ApplicationID *uint `gorm:"index" json:"application_id,omitempty"`

	AmountHT        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_ht"`
	AmountTTC       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_ttc"`
	CommittedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"committed_amount"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"paid_amount"`

	Status      POStatus   `gorm:"size:20;not null;default:'DRAFT'" json:"status"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	ValidatedBy string     `gorm:"size:100" json:"validated_by,omitempty"`
	ImputedAt   *time.Time `json:"imputed_at,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
	CreatedBy   string     `gorm:"size:100" json:"created_by,omitempty"`
}
