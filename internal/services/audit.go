package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 200
	maxAuditLimit     = 1000
)

// Journal collects the audit entries of one operation while its transaction runs.
// Entries are only written once the transaction commits.
type Journal struct {
	operationID string
	actor       string
	entries     []models.AuditEntry
}

func newJournal(actorID string) *Journal {
	return &Journal{operationID: uuid.NewString(), actor: actorID}
}

// OperationID groups every entry of the operation.
func (j *Journal) OperationID() string { return j.operationID }

// Add queues an entry. before and after are JSON encoded when non nil.
func (j *Journal) Add(objectType string, objectID uint, action, detail string, before, after any) {
	j.entries = append(j.entries, models.AuditEntry{
		OperationID: j.operationID,
		Actor:       j.actor,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Action:      action,
		Detail:      detail,
		Before:      snapshot(before),
		After:       snapshot(after),
	})
}

func snapshot(v any) *string {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

// AuditFilter narrows ListAudit results.
type AuditFilter struct {
	ObjectType  string
	ObjectID    uint
	OperationID string
	Limit       int
}

// AuditLog is the append-only trail of financial mutations.
type AuditLog struct {
	db       *gorm.DB
	log      *slog.Logger
	metrics  *Metrics
	now      func() time.Time
	maxLimit int
}

// NewAuditLog creates an audit log writing to db.
func NewAuditLog(db *gorm.DB, log *slog.Logger, metrics *Metrics, now func() time.Time, maxLimit int) *AuditLog {
	if maxLimit <= 0 {
		maxLimit = maxAuditLimit
	}
	return &AuditLog{db: db, log: log.With("component", "audit"), metrics: metrics, now: now, maxLimit: maxLimit}
}

// Record appends one entry. It never fails the caller: write errors are logged and counted.
func (a *AuditLog) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now()
	}
	if entry.OperationID == "" {
		entry.OperationID = uuid.NewString()
	}
	err := a.db.WithContext(ctx).Create(&entry).Error
	a.metrics.RecordAudit(entry.ObjectType, err)
	if err != nil {
		a.log.Error("audit write failed",
			"object_type", entry.ObjectType, "object_id", entry.ObjectID, "action", entry.Action, "error", err)
	}
}

func (a *AuditLog) flush(ctx context.Context, j *Journal) {
	for _, e := range j.entries {
		a.Record(ctx, e)
	}
	j.entries = nil
}

// List returns entries matching f, most recent first.
func (a *AuditLog) List(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > a.maxLimit {
		limit = a.maxLimit
	}
	q := a.db.WithContext(ctx).Model(&models.AuditEntry{})
	if f.ObjectType != "" {
		q = q.Where("object_type = ?", f.ObjectType)
	}
	if f.ObjectID != 0 {
		q = q.Where("object_id = ?", f.ObjectID)
	}
	if f.OperationID != "" {
		q = q.Where("operation_id = ?", f.OperationID)
	}
	var entries []models.AuditEntry
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, classify("list_audit", err)
	}
	return entries, nil
}
