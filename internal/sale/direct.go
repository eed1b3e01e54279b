package sale

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nodesale/internal/event"
	"nodesale/internal/failure"
	"nodesale/internal/issuance"
	"nodesale/internal/oracle"
	"nodesale/internal/payment"
	"nodesale/internal/storage"
)

// BuyDirectRequest buys and issues the next item of a tier in one call. The
// caller presents the item id it expects, which must be the tier's next one.
type BuyDirectRequest struct {
	SigningKey  string    `json:"-"`
	Phase       string    `json:"-"`
	TierID      uint32    `json:"tier_id"`
	User        string    `json:"user"`
	ItemID      uint64    `json:"item_id"`
	Collection  string    `json:"collection"`
	PriceFeedID string    `json:"price_feed_id"`
	Receivers   Receivers `json:"receivers"`
	Discounts   Discounts `json:"discounts"`
}

type AirdropRequest struct {
	SigningKey string `json:"-"`
	Phase      string `json:"-"`
	TierID     uint32 `json:"tier_id"`
	User       string `json:"user"`
	ItemID     uint64 `json:"item_id"`
	Collection string `json:"collection"`
}

type DirectResult struct {
	ItemID  uint64          `json:"item_id"`
	Asset   issuance.Asset  `json:"asset"`
	Amounts DiscountAmounts `json:"amounts"`
}

func (e *Engine) BuyDirect(ctx context.Context, req BuyDirectRequest) (*DirectResult, error) {
	reading := e.oracle.Fetch(ctx, req.PriceFeedID)
	var result *DirectResult
	err := e.run(ctx, "buy_direct", func(ctx context.Context, u *unit) error {
		if blank(req.User) {
			return failure.Wrap(failure.ErrInvalidArgument, "user required")
		}
		if req.ItemID == 0 {
			return failure.Wrap(failure.ErrInvalidItemId, "item id required")
		}
		a, err := records(u.repo, req.Phase, req.TierID, req.User)
		if err != nil {
			return err
		}
		if err := authorize(a.phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		if !a.phase.BuyEnabled || !a.tier.BuyEnabled {
			return failure.ErrBuyDisabled
		}
		if err := checkReceivers(a.phase, req.Receivers, req.Discounts); err != nil {
			return err
		}
		if err := checkFeed(a.phase.PriceFeedID, req.PriceFeedID); err != nil {
			return err
		}
		if req.Collection != a.tier.Collection {
			return failure.Wrap(failure.ErrCollectionMismatch, "presented %q", req.Collection)
		}
		a.quantity, a.channel, a.sequenced, a.itemID = 1, channelBuy, true, req.ItemID
		if err := a.check(); err != nil {
			return err
		}
		scale, err := ParseScale(a.phase.DiscountScale)
		if err != nil {
			return err
		}
		if err := req.Discounts.Validate(scale); err != nil {
			return err
		}

		s := settlement{asset: payment.NativeAsset, feed: a.phase.PriceFeedID, maxAge: e.nativeMaxPriceAge}
		if s.baseUnits, err = oracle.BaseUnits(e.nativeDecimals); err != nil {
			return err
		}
		amounts, err := e.quote(a.tier, 1, reading, s, req.Discounts, scale)
		if err != nil {
			return err
		}
		memo := fmt.Sprintf("%s/%d item %d", req.Phase, req.TierID, req.ItemID)
		if err := e.pay(ctx, req.User, s, amounts, req.Receivers, memo); err != nil {
			return err
		}

		asset, err := e.issueDirect(ctx, u, a, amounts)
		if err != nil {
			return err
		}
		result = &DirectResult{ItemID: req.ItemID, Asset: asset, Amounts: amounts}
		evt := purchaseEvent(directOrder(a, req.ItemID), amounts, s.asset, req.Receivers)
		evt.AssetHandle = asset.Handle
		return u.emit(event.BoughtEventType, req.Phase, evt)
	})
	return result, err
}

// Airdrop issues the next item of a tier without payment. Airdrops are not
// bound to the tier sequence.
func (e *Engine) Airdrop(ctx context.Context, req AirdropRequest) (*DirectResult, error) {
	var result *DirectResult
	err := e.run(ctx, "airdrop", func(ctx context.Context, u *unit) error {
		if blank(req.User) {
			return failure.Wrap(failure.ErrInvalidArgument, "user required")
		}
		if req.ItemID == 0 {
			return failure.Wrap(failure.ErrInvalidItemId, "item id required")
		}
		a, err := records(u.repo, req.Phase, req.TierID, req.User)
		if err != nil {
			return err
		}
		if err := authorize(a.phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		if !a.phase.AirdropEnabled || !a.tier.AirdropEnabled {
			return failure.ErrAirdropDisabled
		}
		if req.Collection != a.tier.Collection {
			return failure.Wrap(failure.ErrCollectionMismatch, "presented %q", req.Collection)
		}
		a.quantity, a.channel, a.itemID = 1, channelAirdrop, req.ItemID
		if err := a.check(); err != nil {
			return err
		}

		asset, err := e.issueDirect(ctx, u, a, DiscountAmounts{})
		if err != nil {
			return err
		}
		result = &DirectResult{ItemID: req.ItemID, Asset: asset}
		evt := purchaseEvent(directOrder(a, req.ItemID), DiscountAmounts{}, "", Receivers{})
		evt.AssetHandle = asset.Handle
		return u.emit(event.AirdroppedEventType, req.Phase, evt)
	})
	return result, err
}

// issueDirect issues the allocation's single item and records the
// allocation. The item id is read before apply moves total_mint past it.
func (e *Engine) issueDirect(ctx context.Context, u *unit, a *allocation, amounts DiscountAmounts) (issuance.Asset, error) {
	itemID := a.tier.TotalMint + 1
	asset, err := e.issuer.Issue(ctx, issuance.Request{
		Owner:      a.user.User,
		Collection: a.tier.Collection,
		Phase:      a.phase.Name,
		TierID:     a.tier.TierID,
		ItemID:     itemID,
		Name:       issuance.ItemName(a.phase.DisplayName, itemID),
		Symbol:     a.phase.Symbol,
		URI:        issuance.ItemURI(a.phase.MetadataBaseURI, a.tier.TierID, itemID),
	})
	if err != nil {
		if _, ok := failure.As(err); ok {
			return issuance.Asset{}, err
		}
		return issuance.Asset{}, failure.Wrap(failure.ErrIssuanceFailed, "item %d: %v", itemID, err)
	}

	completed, err := a.apply(amounts)
	if err != nil {
		return issuance.Asset{}, err
	}
	if err := a.save(u.repo); err != nil {
		return issuance.Asset{}, err
	}
	if completed {
		if err := e.tierCompleted(u, a); err != nil {
			return issuance.Asset{}, err
		}
	}
	e.logger.Info("item issued directly",
		zap.String("phase", a.phase.Name),
		zap.Uint32("tier", a.tier.TierID),
		zap.String("user", a.user.User),
		zap.Uint64("item", itemID),
	)
	return asset, nil
}

// directOrder describes a direct purchase in order terms for its event.
func directOrder(a *allocation, itemID uint64) *storage.Order {
	return &storage.Order{
		PhaseName: a.phase.Name,
		User:      a.user.User,
		TierID:    a.tier.TierID,
		Quantity:  1,
		TokenIDs:  []uint64{itemID},
	}
}
