package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsIdentity(t *testing.T) {
	err := Wrap(ErrMintLimitExceeded, "user %s tier %d", "alice", 2)

	assert.ErrorIs(t, err, ErrMintLimitExceeded)
	assert.NotErrorIs(t, err, ErrTierCompleted)
	assert.Equal(t, "MintLimitExceeded: mint limit exceeded (user alice tier 2)", err.Error())
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("buy: %w", Wrap(ErrStalePrice, "age 61s"))

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindPricing, got.Kind)
	assert.True(t, errors.Is(wrapped, ErrStalePrice))

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
