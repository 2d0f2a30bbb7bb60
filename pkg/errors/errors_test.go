package errors

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesTemplateByCode(t *testing.T) {
	err := Clone(ErrAlreadyDeparted, "student already left campus")
	wrapped := fmt.Errorf("depart: %w", err)

	assert.ErrorIs(t, wrapped, ErrAlreadyDeparted)
	assert.NotErrorIs(t, wrapped, ErrNoOpenVisit)
	assert.Equal(t, "student already left campus", err.Error())
	assert.Equal(t, "ALREADY_DEPARTED", Code(wrapped))
}

func TestStorageIsRetryable(t *testing.T) {
	err := Storage(sql.ErrConnDone, "failed to record departure")

	require.True(t, Retryable(err))
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, Retryable(ErrNotFound))
	assert.False(t, Retryable(nil))
}

func TestFromErrorWrapsUntypedErrors(t *testing.T) {
	appErr := FromError(sql.ErrTxDone)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, ErrInternal.Status, appErr.Status)
	assert.Nil(t, FromError(nil))
	assert.Equal(t, "", Code(nil))
}
