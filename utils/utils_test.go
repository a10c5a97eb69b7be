package utils

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, strings.ToUpper(code), code)

	other, err := GenerateCode(4)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestTicketNumber(t *testing.T) {
	number, err := TicketNumber()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(number, "TKT-"))
	assert.Len(t, number, 12)
}

func TestTransactionNumber(t *testing.T) {
	number, err := TransactionNumber()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(number, "TXN-"))
	assert.Len(t, number, 14)
}

func TestCircuitBreaker_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	for i := 0; i < 20; i++ {
		cb.Execute(context.Background(), func() (any, error) {
			return nil, boom
		})
	}

	assert.Equal(t, BreakerOpen, cb.State())

	_, err := cb.Execute(context.Background(), func() (any, error) {
		return "unreachable", nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
}
