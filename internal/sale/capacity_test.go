package sale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodesale/internal/failure"
	"nodesale/internal/storage"
)

func testAllocation(quantity uint64) *allocation {
	return &allocation{
		phase:    &storage.SalePhase{Name: "genesis", TotalTiers: 2},
		tier:     &storage.Tier{PhaseName: "genesis", TierID: 1, Quantity: 10, WhitelistQuantity: 2, MintLimit: 5},
		user:     &storage.UserAccount{PhaseName: "genesis", User: "alice"},
		userTier: &storage.UserTierAccount{PhaseName: "genesis", TierID: 1, User: "alice"},
		quantity: quantity,
	}
}

func TestAllocationChecks(t *testing.T) {
	a := testAllocation(0)
	assert.ErrorIs(t, a.check(), failure.ErrValueIsZero)

	a = testAllocation(3)
	a.tier.IsCompleted = true
	assert.ErrorIs(t, a.check(), failure.ErrTierCompleted)

	a = testAllocation(8)
	a.tier.TotalMint = 3
	assert.ErrorIs(t, a.check(), failure.ErrTierOutOfRange)

	a = testAllocation(3)
	a.userTier.TotalMint = 3
	assert.ErrorIs(t, a.check(), failure.ErrMintLimitExceeded)

	a = testAllocation(3)
	a.whitelist = true
	assert.ErrorIs(t, a.check(), failure.ErrWhitelistQuantityExceeded)

	a = testAllocation(1)
	a.tier.TierID = 2
	a.sequenced = true
	assert.ErrorIs(t, a.check(), failure.ErrInvalidTierSequence)
	a.whitelist = true
	assert.NoError(t, a.check())

	a = testAllocation(1)
	a.tier.TotalMint = 4
	a.itemID = 4
	assert.ErrorIs(t, a.check(), failure.ErrInvalidItemId)
	a.itemID = 5
	assert.NoError(t, a.check())
}

func TestAllocationApply(t *testing.T) {
	a := testAllocation(2)
	a.channel = channelBuy
	a.whitelist = true
	a.tier.TotalMint = 8
	assert.Equal(t, []uint64{9, 10}, a.itemIDs())

	completed, err := a.apply(DiscountAmounts{
		Base: Amount{USD: 200},
		User: Amount{USD: 10},
		Full: Amount{USD: 19},
		Half: Amount{USD: 9},
	})
	require.NoError(t, err)
	assert.True(t, completed)
	assert.True(t, a.tier.IsCompleted)
	assert.Equal(t, uint32(1), a.phase.TotalCompletedTiers)

	for _, totals := range []storage.Totals{a.phase.Totals, a.user.Totals, a.userTier.Totals} {
		assert.Equal(t, storage.Totals{
			TotalMint:          2,
			TotalBuy:           2,
			TotalPayment:       200,
			TotalDiscount:      28,
			TotalUserDiscount:  10,
			TotalWhitelistMint: 2,
		}, totals)
	}
	assert.Equal(t, uint64(10), a.tier.TotalMint)

	// completion is recorded once
	assert.False(t, completeTier(a.phase, a.tier))
	assert.Equal(t, uint32(1), a.phase.TotalCompletedTiers)
}
