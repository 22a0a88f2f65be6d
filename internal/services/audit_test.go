package services

import (
	"context"
	"errors"
	"testing"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAuditCommitEntries(t *testing.T) {
	f := newFixture(t)
	_, line := f.votedLine(2025, "1000")
	po := f.order("PO-1", "400", &line.ID, nil, nil)
	_, err := f.engine.Orders.Commit(f.ctx, po.ID, CommitOptions{})
	require.NoError(t, err)

	entries, err := f.engine.Audit.List(f.ctx, AuditFilter{ObjectType: models.ObjectPurchaseOrder, ObjectID: po.ID})
	require.NoError(t, err)
	require.Len(t, entries, 3, "create, validate, commit")
	assert.Equal(t, models.ActionCommit, entries[0].Action, "most recent first")
	assert.Equal(t, models.ActionCreate, entries[2].Action)
	assert.Equal(t, "tester", entries[0].Actor)
	require.NotNil(t, entries[0].Before)
	require.NotNil(t, entries[0].After)
	assert.Contains(t, *entries[0].After, `"status":"COMMITTED"`)

	op, err := f.engine.Audit.List(f.ctx, AuditFilter{OperationID: entries[0].OperationID})
	require.NoError(t, err)
	require.Len(t, op, 2, "order and line entries share the operation")
	types := []string{op[0].ObjectType, op[1].ObjectType}
	assert.ElementsMatch(t, []string{models.ObjectPurchaseOrder, models.ObjectBudgetLine}, types)
	assert.NotEqual(t, entries[0].OperationID, entries[1].OperationID)
}

func TestAuditNothingOnRollback(t *testing.T) {
	f := newFixture(t)
	_, line := f.votedLine(2025, "100")
	po := f.order("PO-1", "400", &line.ID, nil, nil)
	before := f.auditCount("1 = 1")

	_, err := f.engine.Orders.Commit(f.ctx, po.ID, CommitOptions{})
	require.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Equal(t, before, f.auditCount("1 = 1"))

	sentinel := errors.New("boom")
	err = f.engine.Orders.run(f.ctx, "failing", func(tx *gorm.DB, j *Journal) error {
		j.Add(models.ObjectBudgetLine, line.ID, models.ActionUpdate, "never written", nil, nil)
		return sentinel
	})
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, KindOperational, KindOf(err))
	assert.Equal(t, before, f.auditCount("1 = 1"))
}

func TestAuditSystemActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Reference.CreateSupplier(context.Background(), SupplierInput{Name: "Anonymous"})
	require.NoError(t, err)
	entries, err := f.engine.Audit.List(f.ctx, AuditFilter{ObjectType: models.ObjectSupplier, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0].Actor)
}

func TestAuditListLimit(t *testing.T) {
	f := newFixtureWith(t, Options{AuditLimitMax: 5})
	for i := 0; i < 8; i++ {
		f.engine.Audit.Record(f.ctx, models.AuditEntry{ObjectType: models.ObjectEntity, ObjectID: 7, Action: models.ActionUpdate})
	}
	entries, err := f.engine.Audit.List(f.ctx, AuditFilter{ObjectType: models.ObjectEntity, ObjectID: 7, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, entries, 5, "limit is capped")
	assert.Greater(t, entries[0].ID, entries[1].ID)

	entries, err = f.engine.Audit.List(f.ctx, AuditFilter{ObjectType: models.ObjectEntity, ObjectID: 7, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.NotEmpty(t, entries[0].OperationID)
}

func TestAuditWriteFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	_, line := f.votedLine(2025, "1000")
	po := f.order("PO-1", "400", &line.ID, nil, nil)
	require.NoError(t, f.db.Migrator().DropTable(&models.AuditEntry{}))

	res, err := f.engine.Orders.Commit(f.ctx, po.ID, CommitOptions{})
	require.NoError(t, err, "audit failures never fail the operation")
	requireAmount(t, "400", res.CommittedAmount, "committed")
	assert.Equal(t, models.POCommitted, f.orderRow(po.ID).Status)
	requireAmount(t, "600", f.line(line.ID).AvailableAmount, "line available")
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.auditFailuresTotal), "order and line entries")
}
