package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolationsErr(t *testing.T) {
	v := Violations{}
	assert.NoError(t, v.Err())

	v.Add("buyer.name", "required")
	v.Add("buyer.name", "too_long")
	v.Add("discount", "exceeds_price")

	err := v.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: buyer.name: required, discount: exceeds_price", err.Error())

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	code, ok := ve.Field("buyer.name")
	assert.True(t, ok)
	assert.Equal(t, "required", code)
}

func TestKindsSurviveWrapping(t *testing.T) {
	inv := fmt.Errorf("close sale: %w", NewInvariantViolation("close_sale", "already sold"))
	assert.True(t, errors.Is(inv, ErrInvariant))
	assert.False(t, errors.Is(inv, ErrPersistence))

	conflict := &NumberingConflictError{Scope: "contract", Attempts: 3, Err: errors.New("duplicate")}
	assert.True(t, errors.Is(conflict, ErrNumberingConflict))
	assert.Contains(t, conflict.Error(), "3 attempts")
}

func TestPersistenceKeepsExistingKind(t *testing.T) {
	base := errors.New("connection refused")
	err := Persistence("create contract", base)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, base))

	inv := NewInvariantViolation("close_sale", "already sold")
	assert.Same(t, inv, Persistence("close sale", inv))
	assert.Nil(t, Persistence("noop", nil))
}
