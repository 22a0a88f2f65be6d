package services

import (
	"errors"
	"testing"

	"github.com/diewo77/go-budgets/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordOperations(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Reference.CreateSupplier(f.ctx, SupplierInput{Name: ""})
	require.True(t, errors.Is(err, ErrValidation))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.operationsTotal.WithLabelValues("create_supplier", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.operationsTotal.WithLabelValues("create_supplier", "rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.rejectionsTotal.WithLabelValues("create_supplier", string(KindValidation))))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.auditEntriesTotal.WithLabelValues(models.ObjectSupplier)))
	assert.Zero(t, testutil.ToFloat64(f.metrics.auditFailuresTotal))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation("op", nil, 0)
		m.RecordAudit(models.ObjectBudget, errors.New("x"))
	})
}
