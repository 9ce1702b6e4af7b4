package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := E(ErrWrongNetwork, "stayed on mainnet")
	assert.Equal(t, ErrWrongNetwork, KindOf(err))
	assert.True(t, IsKind(err, ErrWrongNetwork))
	assert.False(t, IsKind(err, ErrUserRejected))

	// Unclassified errors default to the remote failure bucket.
	assert.Equal(t, ErrRemoteCallFailed, KindOf(errors.New("boom")))
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	inner := WrapErr(ErrUserRejected, "declined", errors.New("code 4001"))
	outer := fmt.Errorf("connect: %w", inner)
	assert.Equal(t, ErrUserRejected, KindOf(outer))
}

func TestInsufficientFundsErrorCopiesAmounts(t *testing.T) {
	required := big.NewInt(1000)
	available := big.NewInt(25)
	err := InsufficientFundsError(required, available)

	// Mutating the originals must not reach into the error.
	required.SetInt64(0)
	available.SetInt64(0)

	require.Equal(t, ErrInsufficientFunds, err.Kind)
	assert.Equal(t, big.NewInt(1000), err.Required)
	assert.Equal(t, big.NewInt(25), err.Available)
	assert.Contains(t, err.Error(), "1000")
}

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "NOT_READY", E(ErrNotReady, "").Error())
	assert.Equal(t, "INVALID_DAYS: at least one day", E(ErrInvalidDays, "at least one day").Error())

	wrapped := WrapErr(ErrRemoteCallFailed, "rpc", errors.New("timeout"))
	assert.ErrorContains(t, wrapped, "timeout")
	assert.Equal(t, "timeout", errors.Unwrap(wrapped).Error())
}
