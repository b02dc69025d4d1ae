package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("claim: %w", NewClaimConflict(uuid.New()))

	assert.True(t, stderrors.Is(err, ClaimConflict))
	assert.False(t, stderrors.Is(err, DuplicateSchedule))
	assert.Equal(t, ErrClaimConflict, CodeOf(err))
}

func TestAppError_UnwrapKeepsCause(t *testing.T) {
	cause := stderrors.New("smtp: 554 rejected")
	err := NewDelivery(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, DeliveryFailed)
	assert.Equal(t, "delivery failed: smtp: 554 rejected", err.Error())
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrInternal, CodeOf(stderrors.New("boom")))
}
