package sale

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"nodesale/internal/event"
	"nodesale/internal/failure"
	"nodesale/internal/fixedpoint"
	"nodesale/internal/issuance"
	"nodesale/internal/oracle"
	"nodesale/internal/payment"
	"nodesale/internal/storage"
)

// Receivers are the accounts the caller presents for the proceeds. The
// payment receiver must match the phase configuration.
type Receivers struct {
	PaymentReceiver      string `json:"payment_receiver"`
	FullDiscountReceiver string `json:"full_discount_receiver"`
	HalfDiscountReceiver string `json:"half_discount_receiver"`
}

type BuyRequest struct {
	SigningKey  string    `json:"-"`
	Phase       string    `json:"-"`
	TierID      uint32    `json:"tier_id"`
	User        string    `json:"user"`
	OrderID     uint64    `json:"order_id"`
	Quantity    uint64    `json:"quantity"`
	PriceFeedID string    `json:"price_feed_id"`
	Receivers   Receivers `json:"receivers"`
	Discounts   Discounts `json:"discounts"`
	Whitelist   bool      `json:"whitelist"`
}

// BuyWithTokenRequest pays for the order in the phase payment token Mint,
// priced with the token's own feed.
type BuyWithTokenRequest struct {
	BuyRequest
	Mint string `json:"mint"`
}

type CreateOrderReceiptRequest struct {
	BackKey     string `json:"-"`
	Phase       string `json:"-"`
	TierID      uint32 `json:"tier_id"`
	User        string `json:"user"`
	OrderID     uint64 `json:"order_id"`
	Quantity    uint64 `json:"quantity"`
	FollowTiers bool   `json:"follow_tiers"`
}

type FillOrderRequest struct {
	SigningKey string `json:"-"`
	Phase      string `json:"-"`
	User       string `json:"user"`
	OrderID    uint64 `json:"order_id"`
	ItemID     uint64 `json:"item_id"`
	Collection string `json:"collection"`
}

type FillResult struct {
	Order *storage.Order `json:"order"`
	Asset issuance.Asset `json:"asset"`
}

// settlement describes how a purchase is priced and paid.
type settlement struct {
	asset     string
	feed      string
	baseUnits uint64
	maxAge    time.Duration
	mint      *string
}

// records loads the records every capacity check needs.
func records(repo *storage.Repository, phaseName string, tierID uint32, user string) (*allocation, error) {
	phase, err := repo.Phase(phaseName)
	if err != nil {
		return nil, err
	}
	tier, err := repo.Tier(phaseName, tierID)
	if err != nil {
		return nil, err
	}
	account, err := repo.UserAccount(phaseName, user)
	if err != nil {
		return nil, err
	}
	tierAccount, err := repo.UserTierAccount(phaseName, tierID, user)
	if err != nil {
		return nil, err
	}
	return &allocation{phase: phase, tier: tier, user: account, userTier: tierAccount}, nil
}

// save persists the records touched by an allocation.
func (a *allocation) save(repo *storage.Repository) error {
	if err := repo.SavePhase(a.phase); err != nil {
		return err
	}
	if err := repo.SaveTier(a.tier); err != nil {
		return err
	}
	if err := repo.SaveUserAccount(a.user); err != nil {
		return err
	}
	return repo.SaveUserTierAccount(a.userTier)
}

func checkOrderID(user *storage.UserAccount, orderID uint64) error {
	if orderID != user.TotalOrders+1 {
		return failure.Wrap(failure.ErrInvalidOrderId, "expected order %d, got %d", user.TotalOrders+1, orderID)
	}
	return nil
}

func checkReceivers(phase *storage.SalePhase, r Receivers, d Discounts) error {
	if r.PaymentReceiver != phase.PaymentReceiver {
		return failure.Wrap(failure.ErrPaymentReceiverMismatch, "presented %q", r.PaymentReceiver)
	}
	if d.Full.Allow && blank(r.FullDiscountReceiver) {
		return failure.Wrap(failure.ErrMissingDiscountReceiver, "full discount")
	}
	if d.Half.Allow && blank(r.HalfDiscountReceiver) {
		return failure.Wrap(failure.ErrMissingDiscountReceiver, "half discount")
	}
	return nil
}

func checkFeed(configured, presented string) error {
	if oracle.NormalizeFeedID(configured) != oracle.NormalizeFeedID(presented) {
		return failure.Wrap(failure.ErrOracleMismatch, "presented %q", presented)
	}
	return nil
}

// quote prices quantity items of the tier in the settlement asset and
// applies the discounts. A price that converts to zero base units fails.
func (e *Engine) quote(tier *storage.Tier, quantity uint64, reading oracle.Reading, s settlement, d Discounts, scale Scale) (DiscountAmounts, error) {
	usd, err := fixedpoint.Mul(tier.Price, quantity)
	if err != nil {
		return DiscountAmounts{}, err
	}
	q, err := e.oracle.Check(reading, s.feed, e.now(), s.maxAge)
	if err != nil {
		return DiscountAmounts{}, err
	}
	native, err := oracle.Convert(s.baseUnits, q, usd)
	if err != nil {
		return DiscountAmounts{}, err
	}
	if usd > 0 && native == 0 {
		return DiscountAmounts{}, failure.Wrap(failure.ErrPriceTooLow, "%d usd at %d×10^%d", usd, q.Price, q.Exponent)
	}
	return ComputeDiscounts(Amount{USD: usd, Native: native}, d, scale)
}

// pay moves the discounts and the net amount from the buyer. Any failed
// transfer aborts the operation.
func (e *Engine) pay(ctx context.Context, from string, s settlement, amounts DiscountAmounts, r Receivers, memo string) error {
	transfers := []payment.Transfer{
		{From: from, To: r.FullDiscountReceiver, Asset: s.asset, Amount: amounts.Full.Native, Memo: memo + " full discount"},
		{From: from, To: r.HalfDiscountReceiver, Asset: s.asset, Amount: amounts.Half.Native, Memo: memo + " half discount"},
		{From: from, To: r.PaymentReceiver, Asset: s.asset, Amount: amounts.Net.Native, Memo: memo},
	}
	for _, t := range transfers {
		if t.Amount == 0 {
			continue
		}
		if err := e.transferer.Transfer(ctx, t); err != nil {
			if _, ok := failure.As(err); ok {
				return err
			}
			return failure.Wrap(failure.ErrTransferFailed, "%s: %v", t.Memo, err)
		}
	}
	return nil
}

func (e *Engine) Buy(ctx context.Context, req BuyRequest) (*storage.Order, error) {
	reading := e.oracle.Fetch(ctx, req.PriceFeedID)
	var order *storage.Order
	err := e.run(ctx, "buy", func(ctx context.Context, u *unit) error {
		var err error
		order, err = e.buy(ctx, u, req, "", reading)
		return err
	})
	return order, err
}

func (e *Engine) BuyWithToken(ctx context.Context, req BuyWithTokenRequest) (*storage.Order, error) {
	reading := e.oracle.Fetch(ctx, req.PriceFeedID)
	var order *storage.Order
	err := e.run(ctx, "buy_with_token", func(ctx context.Context, u *unit) error {
		if blank(req.Mint) {
			return failure.Wrap(failure.ErrPaymentTokenMismatch, "mint required")
		}
		var err error
		order, err = e.buy(ctx, u, req.BuyRequest, req.Mint, reading)
		return err
	})
	return order, err
}

// buy creates a paid order. An empty mint pays in the native currency. The
// quote is fetched by the caller before the transaction opens.
func (e *Engine) buy(ctx context.Context, u *unit, req BuyRequest, mint string, reading oracle.Reading) (*storage.Order, error) {
	if blank(req.User) {
		return nil, failure.Wrap(failure.ErrInvalidArgument, "user required")
	}
	a, err := records(u.repo, req.Phase, req.TierID, req.User)
	if err != nil {
		return nil, err
	}
	if err := authorize(a.phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
		return nil, err
	}

	s := settlement{asset: payment.NativeAsset, feed: a.phase.PriceFeedID, maxAge: e.nativeMaxPriceAge}
	source := storage.OrderSourceBuy
	a.channel = channelBuy
	if mint == "" {
		if !a.phase.BuyEnabled || !a.tier.BuyEnabled {
			return nil, failure.ErrBuyDisabled
		}
		if s.baseUnits, err = oracle.BaseUnits(e.nativeDecimals); err != nil {
			return nil, err
		}
	} else {
		if !a.phase.BuyWithTokenEnabled || !a.tier.BuyWithTokenEnabled {
			return nil, failure.ErrBuyWithTokenDisabled
		}
		token, err := u.repo.PaymentToken(req.Phase, mint)
		if err != nil {
			return nil, err
		}
		if !token.Enabled {
			return nil, failure.Wrap(failure.ErrPaymentTokenDisabled, "%q", mint)
		}
		if s.baseUnits, err = oracle.BaseUnits(token.Decimals); err != nil {
			return nil, err
		}
		s.asset, s.feed, s.maxAge, s.mint = token.Mint, token.PriceFeedID, e.tokenMaxPriceAge, &token.Mint
		source = storage.OrderSourceBuyWithToken
		a.channel = channelBuyWithToken
	}

	if err := checkReceivers(a.phase, req.Receivers, req.Discounts); err != nil {
		return nil, err
	}
	if err := checkFeed(s.feed, req.PriceFeedID); err != nil {
		return nil, err
	}
	a.quantity, a.whitelist, a.sequenced = req.Quantity, req.Whitelist, true
	if err := a.check(); err != nil {
		return nil, err
	}
	scale, err := ParseScale(a.phase.DiscountScale)
	if err != nil {
		return nil, err
	}
	if err := req.Discounts.Validate(scale); err != nil {
		return nil, err
	}
	if err := checkOrderID(a.user, req.OrderID); err != nil {
		return nil, err
	}

	amounts, err := e.quote(a.tier, req.Quantity, reading, s, req.Discounts, scale)
	if err != nil {
		return nil, err
	}
	memo := fmt.Sprintf("%s/%d order %d", req.Phase, req.TierID, req.OrderID)
	if err := e.pay(ctx, req.User, s, amounts, req.Receivers, memo); err != nil {
		return nil, err
	}

	order := newOrder(a, req.OrderID, source)
	order.IsWhitelist = req.Whitelist
	order.PaymentMint = s.mint
	setAmounts(order, amounts)
	if err := e.reserve(u, a, order); err != nil {
		return nil, err
	}

	e.logger.Info("order created",
		zap.String("phase", req.Phase),
		zap.Uint32("tier", req.TierID),
		zap.String("user", req.User),
		zap.Uint64("order", req.OrderID),
		zap.Uint64s("items", order.TokenIDs),
		zap.Uint64("payment", amounts.Base.Native),
		zap.String("asset", s.asset),
	)
	return order, u.emit(event.OrderCreatedEventType, req.Phase, purchaseEvent(order, amounts, s.asset, req.Receivers))
}

// CreateOrderReceipt reserves items for an order settled elsewhere. It moves
// no funds and counts as an airdrop.
func (e *Engine) CreateOrderReceipt(ctx context.Context, req CreateOrderReceiptRequest) (*storage.Order, error) {
	var order *storage.Order
	err := e.run(ctx, "create_order_receipt", func(_ context.Context, u *unit) error {
		if blank(req.User) {
			return failure.Wrap(failure.ErrInvalidArgument, "user required")
		}
		a, err := records(u.repo, req.Phase, req.TierID, req.User)
		if err != nil {
			return err
		}
		if err := authorize(a.phase.BackAuthority, req.BackKey, RoleBack); err != nil {
			return err
		}
		a.quantity, a.channel, a.sequenced = req.Quantity, channelAirdrop, req.FollowTiers
		if err := a.check(); err != nil {
			return err
		}
		if err := checkOrderID(a.user, req.OrderID); err != nil {
			return err
		}

		order = newOrder(a, req.OrderID, storage.OrderSourceReceipt)
		if err := e.reserve(u, a, order); err != nil {
			return err
		}
		return u.emit(event.OrderReceiptCreatedEventType, req.Phase, purchaseEvent(order, DiscountAmounts{}, "", Receivers{}))
	})
	return order, err
}

func newOrder(a *allocation, orderID uint64, source storage.OrderSource) *storage.Order {
	ids := a.itemIDs()
	return &storage.Order{
		PhaseName:        a.phase.Name,
		User:             a.user.User,
		OrderID:          orderID,
		TierID:           a.tier.TierID,
		Source:           source,
		Quantity:         a.quantity,
		TokenIDs:         ids,
		IsTokenIDsMinted: make([]bool, len(ids)),
	}
}

func setAmounts(order *storage.Order, amounts DiscountAmounts) {
	order.PaymentUSD = amounts.Base.USD
	order.UserDiscountUSD = amounts.User.USD
	order.FullDiscountUSD = amounts.Full.USD
	order.HalfDiscountUSD = amounts.Half.USD
	order.NetPaymentUSD = amounts.Net.USD
	order.PaymentNative = amounts.Base.Native
	order.UserDiscountNative = amounts.User.Native
	order.FullDiscountNative = amounts.Full.Native
	order.HalfDiscountNative = amounts.Half.Native
	order.NetPaymentNative = amounts.Net.Native
}

// reserve records the order and the allocation it consumed.
func (e *Engine) reserve(u *unit, a *allocation, order *storage.Order) error {
	amounts := DiscountAmounts{
		Base: Amount{USD: order.PaymentUSD},
		User: Amount{USD: order.UserDiscountUSD},
		Full: Amount{USD: order.FullDiscountUSD},
		Half: Amount{USD: order.HalfDiscountUSD},
	}
	completed, err := a.apply(amounts)
	if err != nil {
		return err
	}
	a.user.TotalOrders++
	if err := a.save(u.repo); err != nil {
		return err
	}
	if err := u.repo.SaveOrder(order); err != nil {
		return err
	}
	if completed {
		return e.tierCompleted(u, a)
	}
	return nil
}

func (e *Engine) tierCompleted(u *unit, a *allocation) error {
	e.logger.Info("tier completed",
		zap.String("phase", a.phase.Name),
		zap.Uint32("tier", a.tier.TierID),
		zap.Uint32("completed_tiers", a.phase.TotalCompletedTiers),
	)
	return u.emit(event.TierCompletedEventType, a.phase.Name, event.TierCompletedEvent{
		Phase:               a.phase.Name,
		TierID:              a.tier.TierID,
		TotalCompletedTiers: a.phase.TotalCompletedTiers,
	})
}

// FillOrder issues one reserved item of an order. The item's flag is checked
// before the issuer is called, so an item is never issued twice.
func (e *Engine) FillOrder(ctx context.Context, req FillOrderRequest) (*FillResult, error) {
	var result *FillResult
	err := e.run(ctx, "fill_order", func(ctx context.Context, u *unit) error {
		phase, err := u.repo.Phase(req.Phase)
		if err != nil {
			return err
		}
		if err := authorize(phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		order, err := u.repo.Order(req.Phase, req.User, req.OrderID)
		if err != nil {
			return err
		}
		tier, err := u.repo.Tier(req.Phase, order.TierID)
		if err != nil {
			return err
		}
		if req.Collection != tier.Collection {
			return failure.Wrap(failure.ErrCollectionMismatch, "presented %q", req.Collection)
		}
		if order.IsCompleted {
			return failure.Wrap(failure.ErrOrderAlreadyFilled, "order %d", order.OrderID)
		}
		idx := slices.Index(order.TokenIDs, req.ItemID)
		if idx < 0 {
			return failure.Wrap(failure.ErrInvalidOrderItemId, "item %d not in order %d", req.ItemID, order.OrderID)
		}
		if order.IsTokenIDsMinted[idx] {
			return failure.Wrap(failure.ErrOrderItemAlreadyFilled, "item %d", req.ItemID)
		}

		asset, err := e.issuer.Issue(ctx, issuance.Request{
			Owner:      order.User,
			Collection: tier.Collection,
			Phase:      phase.Name,
			TierID:     tier.TierID,
			ItemID:     req.ItemID,
			Name:       issuance.ItemName(phase.DisplayName, req.ItemID),
			Symbol:     phase.Symbol,
			URI:        issuance.ItemURI(phase.MetadataBaseURI, tier.TierID, req.ItemID),
		})
		if err != nil {
			if _, ok := failure.As(err); ok {
				return err
			}
			return failure.Wrap(failure.ErrIssuanceFailed, "item %d: %v", req.ItemID, err)
		}

		order.IsTokenIDsMinted[idx] = true
		order.IsCompleted = !slices.Contains(order.IsTokenIDsMinted, false)
		if err := u.repo.SaveOrder(order); err != nil {
			return err
		}
		result = &FillResult{Order: order, Asset: asset}
		return u.emit(event.OrderFilledEventType, phase.Name, event.OrderFilledEvent{
			Phase:          phase.Name,
			TierID:         tier.TierID,
			User:           order.User,
			OrderID:        order.OrderID,
			ItemID:         req.ItemID,
			Collection:     tier.Collection,
			AssetHandle:    asset.Handle,
			OrderCompleted: order.IsCompleted,
		})
	})
	return result, err
}

func purchaseEvent(order *storage.Order, amounts DiscountAmounts, asset string, r Receivers) event.PurchaseEvent {
	return event.PurchaseEvent{
		Phase:       order.PhaseName,
		TierID:      order.TierID,
		User:        order.User,
		OrderID:     order.OrderID,
		Quantity:    order.Quantity,
		ItemIDs:     order.TokenIDs,
		IsWhitelist: order.IsWhitelist,
		Amounts:     eventAmounts(amounts, asset, r),
	}
}

func eventAmounts(amounts DiscountAmounts, asset string, r Receivers) event.Amounts {
	return event.Amounts{
		PaymentUSD:         amounts.Base.USD,
		UserDiscountUSD:    amounts.User.USD,
		FullDiscountUSD:    amounts.Full.USD,
		HalfDiscountUSD:    amounts.Half.USD,
		NetPaymentUSD:      amounts.Net.USD,
		Payment:            amounts.Base.Native,
		UserDiscount:       amounts.User.Native,
		FullDiscount:       amounts.Full.Native,
		HalfDiscount:       amounts.Half.Native,
		NetPayment:         amounts.Net.Native,
		PaymentAsset:       asset,
		FullDiscountTarget: r.FullDiscountReceiver,
		HalfDiscountTarget: r.HalfDiscountReceiver,
	}
}
