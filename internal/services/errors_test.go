package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestErrorKinds(t *testing.T) {
	err := insufficientFunds("commit_order", d("12.5"), "short by %s", "12.50")
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "commit_order: insufficient_funds: short by 12.50", err.Error())

	wrapped := fmt.Errorf("outer: %w", err)
	amount, ok := IsInsufficientFunds(wrapped)
	assert.True(t, ok)
	assert.True(t, amount.Equal(d("12.5")))
	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	nf := classify("get", fmt.Errorf("load: %w", gorm.ErrRecordNotFound))
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.True(t, errors.Is(nf, gorm.ErrRecordNotFound))

	op := classify("get", errors.New("disk full"))
	assert.Equal(t, KindOperational, KindOf(op))

	engine := conflict("delete", "in use")
	assert.Same(t, engine, classify("other", engine))
	assert.Equal(t, KindOperational, KindOf(errors.New("plain")))
}
