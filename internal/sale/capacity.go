package sale

import (
	"nodesale/internal/failure"
	"nodesale/internal/fixedpoint"
	"nodesale/internal/storage"
)

type channel int

const (
	channelBuy channel = iota
	channelBuyWithToken
	channelAirdrop
)

// allocation reserves quantity consecutive item ids of a tier for a user. The
// records are loaded inside the operation's transaction; check never mutates
// them and apply is only called once every check passed.
type allocation struct {
	phase    *storage.SalePhase
	tier     *storage.Tier
	user     *storage.UserAccount
	userTier *storage.UserTierAccount

	quantity  uint64
	channel   channel
	whitelist bool
	// sequenced requires every lower tier to be completed.
	sequenced bool
	// itemID, when set, is the id the caller expects to receive next.
	itemID uint64
}

func (a *allocation) check() error {
	if a.tier.IsCompleted {
		return failure.Wrap(failure.ErrTierCompleted, "phase %q tier %d", a.tier.PhaseName, a.tier.TierID)
	}
	if a.quantity == 0 {
		return failure.Wrap(failure.ErrValueIsZero, "quantity")
	}
	next := a.tier.TotalMint + 1
	if a.itemID != 0 && a.itemID != next {
		return failure.Wrap(failure.ErrInvalidItemId, "presented %d, next is %d", a.itemID, next)
	}
	last, err := fixedpoint.Add(a.tier.TotalMint, a.quantity)
	if err != nil || last > a.tier.Quantity {
		return failure.Wrap(failure.ErrTierOutOfRange, "%d + %d exceeds %d", a.tier.TotalMint, a.quantity, a.tier.Quantity)
	}
	owned, err := fixedpoint.Add(a.userTier.TotalMint, a.quantity)
	if err != nil || owned > a.tier.MintLimit {
		return failure.Wrap(failure.ErrMintLimitExceeded, "%d + %d exceeds %d", a.userTier.TotalMint, a.quantity, a.tier.MintLimit)
	}
	if a.whitelist {
		listed, err := fixedpoint.Add(a.tier.TotalWhitelistMint, a.quantity)
		if err != nil || listed > a.tier.WhitelistQuantity {
			return failure.Wrap(failure.ErrWhitelistQuantityExceeded, "%d + %d exceeds %d", a.tier.TotalWhitelistMint, a.quantity, a.tier.WhitelistQuantity)
		}
	} else if a.sequenced && a.tier.TierID != a.phase.TotalCompletedTiers+1 {
		return failure.Wrap(failure.ErrInvalidTierSequence, "tier %d while %d tiers completed", a.tier.TierID, a.phase.TotalCompletedTiers)
	}
	return nil
}

// itemIDs lists the ids the allocation reserves.
func (a *allocation) itemIDs() []uint64 {
	ids := make([]uint64, 0, a.quantity)
	for i := uint64(1); i <= a.quantity; i++ {
		ids = append(ids, a.tier.TotalMint+i)
	}
	return ids
}

// apply adds the allocation and its USD amounts to the phase, tier and user
// totals. It reports whether this allocation completed the tier.
func (a *allocation) apply(amounts DiscountAmounts) (bool, error) {
	delta := storage.Totals{
		TotalMint:         a.quantity,
		TotalPayment:      amounts.Base.USD,
		TotalUserDiscount: amounts.User.USD,
	}
	discount, err := fixedpoint.Add(amounts.Full.USD, amounts.Half.USD)
	if err != nil {
		return false, err
	}
	delta.TotalDiscount = discount
	switch a.channel {
	case channelBuy:
		delta.TotalBuy = a.quantity
	case channelBuyWithToken:
		delta.TotalBuyWithToken = a.quantity
	case channelAirdrop:
		delta.TotalAirdrop = a.quantity
	}
	if a.whitelist {
		delta.TotalWhitelistMint = a.quantity
	}

	for _, totals := range []*storage.Totals{&a.phase.Totals, &a.tier.Totals, &a.user.Totals, &a.userTier.Totals} {
		if err := addTotals(totals, delta); err != nil {
			return false, err
		}
	}
	return completeTier(a.phase, a.tier), nil
}

// completeTier marks the tier completed the first time it is found sold out.
// Calling it again on a completed tier changes nothing.
func completeTier(phase *storage.SalePhase, tier *storage.Tier) bool {
	if tier.IsCompleted || tier.TotalMint < tier.Quantity {
		return false
	}
	tier.IsCompleted = true
	phase.TotalCompletedTiers++
	return true
}

func addTotals(t *storage.Totals, d storage.Totals) error {
	pairs := []struct {
		dst *uint64
		add uint64
	}{
		{&t.TotalMint, d.TotalMint},
		{&t.TotalBuy, d.TotalBuy},
		{&t.TotalBuyWithToken, d.TotalBuyWithToken},
		{&t.TotalAirdrop, d.TotalAirdrop},
		{&t.TotalPayment, d.TotalPayment},
		{&t.TotalDiscount, d.TotalDiscount},
		{&t.TotalUserDiscount, d.TotalUserDiscount},
		{&t.TotalWhitelistMint, d.TotalWhitelistMint},
	}
	for _, p := range pairs {
		sum, err := fixedpoint.Add(*p.dst, p.add)
		if err != nil {
			return err
		}
		*p.dst = sum
	}
	return nil
}
