package models

import "time"

// Object types recorded in the audit trail.
const (
	ObjectEntity        = "ENTITY"
	ObjectBudget        = "BUDGET"
	ObjectBudgetLine    = "BUDGET_LINE"
	ObjectContract      = "CONTRACT"
	ObjectPurchaseOrder = "PURCHASE_ORDER"
	ObjectProject       = "PROJECT"
	ObjectSupplier      = "SUPPLIER"
	ObjectApplication   = "APPLICATION"
)

// Audit actions.
const (
	ActionCreate       = "CREATE"
	ActionUpdate       = "UPDATE"
	ActionDelete       = "DELETE"
	ActionStatusChange = "STATUS_CHANGE"
	ActionCommit       = "COMMIT"
	ActionReverse      = "REVERSE"
	ActionSettle       = "SETTLE"
	ActionVote         = "VOTE"
	ActionRenewal      = "RENEWAL"
	ActionAutoClose    = "AUTO_CLOSE"
	ActionPrepare      = "PREPARE_NEXT_YEAR"
	ActionBackfill     = "BACKFILL"
)

// AuditEntry is one append-only record of a financial mutation.
// Entries written by the same engine operation share OperationID.
type AuditEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	OperationID string    `gorm:"size:36;index" json:"operation_id"`
	Actor       string    `gorm:"size:100" json:"actor"`
	ObjectType  string    `gorm:"size:50;index:idx_audit_object" json:"object_type"`
	ObjectID    uint      `gorm:"index:idx_audit_object" json:"object_id"`
	Action      string    `gorm:"size:50;not null" json:"action"`
	Detail      string    `gorm:"type:text" json:"detail,omitempty"`
	Before      *string   `gorm:"type:text" json:"before,omitempty"`
	After       *string   `gorm:"type:text" json:"after,omitempty"`
}

// All returns every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Entity{}, &Supplier{}, &Application{}, &Project{},
		&AnnualBudget{}, &BudgetLine{}, &Contract{}, &PurchaseOrder{}, &AuditEntry{},
	}
}
