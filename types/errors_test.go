package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	base := errors.New("rpc timeout")
	err := NewError(KindTransientFetch, "fetch prices", base).WithVenue("uniswap_v3")
	wrapped := fmt.Errorf("aggregate: %w", err)

	assert.True(t, errors.Is(wrapped, ErrTransientFetch))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, KindTransientFetch, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(base))
	assert.Contains(t, err.Error(), "venue=uniswap_v3")
	assert.Contains(t, err.Error(), "rpc timeout")
}

func TestErrorf(t *testing.T) {
	err := Errorf(KindValidation, "validate", "position %d exceeds cap %d", 20, 10).WithPair("WETH/USDC")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validate: validation_failure [pair=WETH/USDC]: position 20 exceeds cap 10", err.Error())
}
