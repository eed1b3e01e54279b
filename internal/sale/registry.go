package sale

import (
	"context"
	"fmt"
	"strings"

	"nodesale/internal/event"
	"nodesale/internal/failure"
	"nodesale/internal/oracle"
	"nodesale/internal/storage"
)

type CreatePhaseRequest struct {
	RootKey          string `json:"-"`
	Name             string `json:"name"`
	TotalTiers       uint32 `json:"total_tiers"`
	SigningAuthority string `json:"signing_authority"`
	BackAuthority    string `json:"back_authority"`
	PriceFeedID      string `json:"price_feed_id"`
	PaymentReceiver  string `json:"payment_receiver"`
	DisplayName      string `json:"display_name"`
	Symbol           string `json:"symbol"`
	MetadataBaseURI  string `json:"metadata_base_uri"`
	DiscountScale    string `json:"discount_scale"`
}

type UpdatePhaseRequest struct {
	SigningKey          string `json:"-"`
	Name                string `json:"-"`
	PriceFeedID         string `json:"price_feed_id"`
	PaymentReceiver     string `json:"payment_receiver"`
	DisplayName         string `json:"display_name"`
	Symbol              string `json:"symbol"`
	MetadataBaseURI     string `json:"metadata_base_uri"`
	BuyEnabled          bool   `json:"buy_enabled"`
	BuyWithTokenEnabled bool   `json:"buy_with_token_enabled"`
	AirdropEnabled      bool   `json:"airdrop_enabled"`
}

type RotatePhaseKeysRequest struct {
	RootKey          string `json:"-"`
	Name             string `json:"-"`
	SigningAuthority string `json:"signing_authority"`
	BackAuthority    string `json:"back_authority"`
}

type CreateTierRequest struct {
	SigningKey        string `json:"-"`
	Phase             string `json:"-"`
	TierID            uint32 `json:"tier_id"`
	Collection        string `json:"collection"`
	Price             uint64 `json:"price"`
	Quantity          uint64 `json:"quantity"`
	WhitelistQuantity uint64 `json:"whitelist_quantity"`
	MintLimit         uint64 `json:"mint_limit"`
}

// UpdateTierRequest replaces the editable tier settings. A zero Quantity
// leaves the quantity unchanged.
type UpdateTierRequest struct {
	SigningKey          string `json:"-"`
	Phase               string `json:"-"`
	TierID              uint32 `json:"-"`
	Price               uint64 `json:"price"`
	MintLimit           uint64 `json:"mint_limit"`
	Quantity            uint64 `json:"quantity"`
	WhitelistQuantity   uint64 `json:"whitelist_quantity"`
	BuyEnabled          bool   `json:"buy_enabled"`
	BuyWithTokenEnabled bool   `json:"buy_with_token_enabled"`
	AirdropEnabled      bool   `json:"airdrop_enabled"`
}

type CreatePaymentTokenRequest struct {
	SigningKey  string `json:"-"`
	Phase       string `json:"-"`
	Mint        string `json:"mint"`
	Decimals    uint8  `json:"decimals"`
	PriceFeedID string `json:"price_feed_id"`
}

type UpdatePaymentTokenRequest struct {
	SigningKey  string `json:"-"`
	Phase       string `json:"-"`
	Mint        string `json:"-"`
	PriceFeedID string `json:"price_feed_id"`
	Enabled     bool   `json:"enabled"`
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Initialize records the main signing authority. It can only happen once.
func (e *Engine) Initialize(ctx context.Context, mainKey string) error {
	if blank(mainKey) {
		return failure.Wrap(failure.ErrInvalidArgument, "main signing authority required")
	}
	return e.run(ctx, "initialize", func(_ context.Context, u *unit) error {
		_, err := u.repo.RootConfig()
		if err == nil {
			return failure.ErrAlreadyInitialized
		}
		if !isCode(err, failure.ErrNotInitialized) {
			return err
		}
		if err := u.repo.SaveRootConfig(&storage.RootConfig{MainSigningAuthority: mainKey}); err != nil {
			return err
		}
		return u.emit(event.InitializedEventType, "", event.KeyRotatedEvent{Role: string(RoleRoot), Authority: mainKey})
	})
}

func (e *Engine) RotateMainKey(ctx context.Context, rootKey, next string) error {
	if blank(next) {
		return failure.Wrap(failure.ErrInvalidArgument, "next main signing authority required")
	}
	return e.run(ctx, "rotate_main_key", func(_ context.Context, u *unit) error {
		cfg, err := u.repo.RootConfig()
		if err != nil {
			return err
		}
		if err := authorize(cfg.MainSigningAuthority, rootKey, RoleRoot); err != nil {
			return err
		}
		cfg.MainSigningAuthority = next
		if err := u.repo.SaveRootConfig(cfg); err != nil {
			return err
		}
		return u.emit(event.KeyRotatedEventType, "", event.KeyRotatedEvent{Role: string(RoleRoot), Authority: next})
	})
}

func (e *Engine) CreatePhase(ctx context.Context, req CreatePhaseRequest) (*storage.SalePhase, error) {
	var created *storage.SalePhase
	err := e.run(ctx, "create_phase", func(_ context.Context, u *unit) error {
		cfg, err := u.repo.RootConfig()
		if err != nil {
			return err
		}
		if err := authorize(cfg.MainSigningAuthority, req.RootKey, RoleRoot); err != nil {
			return err
		}
		if req.TotalTiers == 0 {
			return failure.Wrap(failure.ErrValueIsZero, "total tiers")
		}
		if blank(req.Name) || blank(req.SigningAuthority) || blank(req.BackAuthority) ||
			blank(req.PriceFeedID) || blank(req.PaymentReceiver) {
			return failure.Wrap(failure.ErrInvalidArgument, "name, authorities, price feed and payment receiver required")
		}
		scale, err := ParseScale(req.DiscountScale)
		if err != nil {
			return err
		}
		if _, err := u.repo.Phase(req.Name); err == nil {
			return failure.Wrap(failure.ErrPhaseExists, "%q", req.Name)
		} else if !isCode(err, failure.ErrPhaseNotFound) {
			return err
		}

		phase := &storage.SalePhase{
			Name:                req.Name,
			SigningAuthority:    req.SigningAuthority,
			BackAuthority:       req.BackAuthority,
			PriceFeedID:         oracle.NormalizeFeedID(req.PriceFeedID),
			PaymentReceiver:     req.PaymentReceiver,
			BuyEnabled:          true,
			BuyWithTokenEnabled: true,
			AirdropEnabled:      true,
			TotalTiers:          req.TotalTiers,
			DisplayName:         req.DisplayName,
			Symbol:              req.Symbol,
			MetadataBaseURI:     req.MetadataBaseURI,
			DiscountScale:       string(scale),
		}
		if err := u.repo.SavePhase(phase); err != nil {
			return err
		}
		created = phase
		return u.emit(event.PhaseCreatedEventType, phase.Name, phaseEvent(phase))
	})
	return created, err
}

func (e *Engine) UpdatePhase(ctx context.Context, req UpdatePhaseRequest) (*storage.SalePhase, error) {
	var updated *storage.SalePhase
	err := e.run(ctx, "update_phase", func(_ context.Context, u *unit) error {
		phase, err := u.repo.Phase(req.Name)
		if err != nil {
			return err
		}
		if err := authorize(phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		if blank(req.PriceFeedID) || blank(req.PaymentReceiver) {
			return failure.Wrap(failure.ErrInvalidArgument, "price feed and payment receiver required")
		}
		phase.PriceFeedID = oracle.NormalizeFeedID(req.PriceFeedID)
		phase.PaymentReceiver = req.PaymentReceiver
		phase.DisplayName = req.DisplayName
		phase.Symbol = req.Symbol
		phase.MetadataBaseURI = req.MetadataBaseURI
		phase.BuyEnabled = req.BuyEnabled
		phase.BuyWithTokenEnabled = req.BuyWithTokenEnabled
		phase.AirdropEnabled = req.AirdropEnabled
		if err := u.repo.SavePhase(phase); err != nil {
			return err
		}
		updated = phase
		return u.emit(event.PhaseUpdatedEventType, phase.Name, phaseEvent(phase))
	})
	return updated, err
}

func (e *Engine) RotatePhaseKeys(ctx context.Context, req RotatePhaseKeysRequest) error {
	return e.run(ctx, "rotate_phase_keys", func(_ context.Context, u *unit) error {
		cfg, err := u.repo.RootConfig()
		if err != nil {
			return err
		}
		if err := authorize(cfg.MainSigningAuthority, req.RootKey, RoleRoot); err != nil {
			return err
		}
		phase, err := u.repo.Phase(req.Name)
		if err != nil {
			return err
		}
		if blank(req.SigningAuthority) && blank(req.BackAuthority) {
			return failure.Wrap(failure.ErrInvalidArgument, "no key to rotate")
		}
		if !blank(req.SigningAuthority) {
			phase.SigningAuthority = req.SigningAuthority
			if err := u.emit(event.KeyRotatedEventType, phase.Name, event.KeyRotatedEvent{Phase: phase.Name, Role: string(RoleSigning), Authority: req.SigningAuthority}); err != nil {
				return err
			}
		}
		if !blank(req.BackAuthority) {
			phase.BackAuthority = req.BackAuthority
			if err := u.emit(event.KeyRotatedEventType, phase.Name, event.KeyRotatedEvent{Phase: phase.Name, Role: string(RoleBack), Authority: req.BackAuthority}); err != nil {
				return err
			}
		}
		return u.repo.SavePhase(phase)
	})
}

func (e *Engine) CreateTier(ctx context.Context, req CreateTierRequest) (*storage.Tier, error) {
	var created *storage.Tier
	err := e.run(ctx, "create_tier", func(_ context.Context, u *unit) error {
		phase, err := u.repo.Phase(req.Phase)
		if err != nil {
			return err
		}
		switch {
		case req.Price == 0:
			return failure.Wrap(failure.ErrValueIsZero, "price")
		case req.Quantity == 0:
			return failure.Wrap(failure.ErrValueIsZero, "quantity")
		case req.MintLimit == 0:
			return failure.Wrap(failure.ErrValueIsZero, "mint limit")
		}
		if err := authorize(phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		if req.TierID > phase.TotalTiers || phase.TotalInitializedTiers >= phase.TotalTiers {
			return failure.Wrap(failure.ErrTierIdOutOfRange, "tier %d of %d", req.TierID, phase.TotalTiers)
		}
		if req.TierID != phase.TotalInitializedTiers+1 {
			return failure.Wrap(failure.ErrInvalidTierId, "expected tier %d, got %d", phase.TotalInitializedTiers+1, req.TierID)
		}
		if req.WhitelistQuantity > req.Quantity {
			return failure.Wrap(failure.ErrInvalidWhitelistQuantity, "%d exceeds quantity %d", req.WhitelistQuantity, req.Quantity)
		}

		collection := req.Collection
		if blank(collection) {
			collection = fmt.Sprintf("%s/tier-%d", phase.Name, req.TierID)
		}
		tier := &storage.Tier{
			PhaseName:           phase.Name,
			TierID:              req.TierID,
			Collection:          collection,
			Price:               req.Price,
			Quantity:            req.Quantity,
			WhitelistQuantity:   req.WhitelistQuantity,
			MintLimit:           req.MintLimit,
			BuyEnabled:          true,
			BuyWithTokenEnabled: true,
			AirdropEnabled:      true,
		}
		if err := u.repo.SaveTier(tier); err != nil {
			return err
		}
		phase.TotalInitializedTiers++
		if err := u.repo.SavePhase(phase); err != nil {
			return err
		}
		created = tier
		return u.emit(event.TierCreatedEventType, phase.Name, tierEvent(tier))
	})
	return created, err
}

func (e *Engine) UpdateTier(ctx context.Context, req UpdateTierRequest) (*storage.Tier, error) {
	var updated *storage.Tier
	err := e.run(ctx, "update_tier", func(_ context.Context, u *unit) error {
		phase, err := u.repo.Phase(req.Phase)
		if err != nil {
			return err
		}
		if req.Price == 0 {
			return failure.Wrap(failure.ErrValueIsZero, "price")
		}
		if req.MintLimit == 0 {
			return failure.Wrap(failure.ErrValueIsZero, "mint limit")
		}
		if err := authorize(phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		tier, err := u.repo.Tier(req.Phase, req.TierID)
		if err != nil {
			return err
		}

		quantity := tier.Quantity
		if req.Quantity != 0 && req.Quantity != tier.Quantity {
			if tier.IsCompleted {
				return failure.Wrap(failure.ErrTierCompleted, "quantity of a completed tier is final")
			}
			if req.Quantity <= tier.TotalMint {
				return failure.Wrap(failure.ErrInvalidQuantity, "%d does not exceed %d already minted", req.Quantity, tier.TotalMint)
			}
			quantity = req.Quantity
		}
		if req.MintLimit < tier.MintLimit {
			minted, err := u.repo.MaxUserTierMint(req.Phase, req.TierID)
			if err != nil {
				return err
			}
			if req.MintLimit < minted {
				return failure.Wrap(failure.ErrInvalidMintLimit, "%d below %d already minted by one user", req.MintLimit, minted)
			}
		}
		if req.WhitelistQuantity > quantity || req.WhitelistQuantity < tier.TotalWhitelistMint {
			return failure.Wrap(failure.ErrInvalidWhitelistQuantity, "%d outside [%d, %d]", req.WhitelistQuantity, tier.TotalWhitelistMint, quantity)
		}

		tier.Price = req.Price
		tier.MintLimit = req.MintLimit
		tier.Quantity = quantity
		tier.WhitelistQuantity = req.WhitelistQuantity
		tier.BuyEnabled = req.BuyEnabled
		tier.BuyWithTokenEnabled = req.BuyWithTokenEnabled
		tier.AirdropEnabled = req.AirdropEnabled
		if err := u.repo.SaveTier(tier); err != nil {
			return err
		}
		updated = tier
		return u.emit(event.TierUpdatedEventType, phase.Name, tierEvent(tier))
	})
	return updated, err
}

func (e *Engine) CreatePaymentToken(ctx context.Context, req CreatePaymentTokenRequest) (*storage.PaymentToken, error) {
	var created *storage.PaymentToken
	err := e.run(ctx, "create_payment_token", func(_ context.Context, u *unit) error {
		phase, err := u.repo.Phase(req.Phase)
		if err != nil {
			return err
		}
		if err := authorize(phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		if blank(req.Mint) || blank(req.PriceFeedID) {
			return failure.Wrap(failure.ErrInvalidArgument, "mint and price feed required")
		}
		if _, err := oracle.BaseUnits(req.Decimals); err != nil {
			return err
		}
		if _, err := u.repo.PaymentToken(req.Phase, req.Mint); err == nil {
			return failure.Wrap(failure.ErrPaymentTokenExists, "%q", req.Mint)
		} else if !isCode(err, failure.ErrPaymentTokenNotFound) {
			return err
		}
		token := &storage.PaymentToken{
			PhaseName:   phase.Name,
			Mint:        req.Mint,
			Decimals:    req.Decimals,
			PriceFeedID: oracle.NormalizeFeedID(req.PriceFeedID),
			Enabled:     true,
		}
		if err := u.repo.SavePaymentToken(token); err != nil {
			return err
		}
		created = token
		return u.emit(event.PaymentTokenCreatedEventType, phase.Name, paymentTokenEvent(token))
	})
	return created, err
}

func (e *Engine) UpdatePaymentToken(ctx context.Context, req UpdatePaymentTokenRequest) (*storage.PaymentToken, error) {
	var updated *storage.PaymentToken
	err := e.run(ctx, "update_payment_token", func(_ context.Context, u *unit) error {
		phase, err := u.repo.Phase(req.Phase)
		if err != nil {
			return err
		}
		if err := authorize(phase.SigningAuthority, req.SigningKey, RoleSigning); err != nil {
			return err
		}
		token, err := u.repo.PaymentToken(req.Phase, req.Mint)
		if err != nil {
			return err
		}
		if !blank(req.PriceFeedID) {
			token.PriceFeedID = oracle.NormalizeFeedID(req.PriceFeedID)
		}
		token.Enabled = req.Enabled
		if err := u.repo.SavePaymentToken(token); err != nil {
			return err
		}
		updated = token
		return u.emit(event.PaymentTokenUpdatedEventType, phase.Name, paymentTokenEvent(token))
	})
	return updated, err
}

func isCode(err error, base *failure.Error) bool {
	f, ok := failure.As(err)
	return ok && f.Code == base.Code
}

func phaseEvent(p *storage.SalePhase) event.PhaseEvent {
	return event.PhaseEvent{
		Phase:               p.Name,
		TotalTiers:          p.TotalTiers,
		SigningAuthority:    p.SigningAuthority,
		BackAuthority:       p.BackAuthority,
		PriceFeedID:         p.PriceFeedID,
		PaymentReceiver:     p.PaymentReceiver,
		BuyEnabled:          p.BuyEnabled,
		BuyWithTokenEnabled: p.BuyWithTokenEnabled,
		AirdropEnabled:      p.AirdropEnabled,
		DiscountScale:       p.DiscountScale,
	}
}

func tierEvent(t *storage.Tier) event.TierEvent {
	return event.TierEvent{
		Phase:               t.PhaseName,
		TierID:              t.TierID,
		Collection:          t.Collection,
		Price:               t.Price,
		Quantity:            t.Quantity,
		WhitelistQuantity:   t.WhitelistQuantity,
		MintLimit:           t.MintLimit,
		IsCompleted:         t.IsCompleted,
		BuyEnabled:          t.BuyEnabled,
		BuyWithTokenEnabled: t.BuyWithTokenEnabled,
		AirdropEnabled:      t.AirdropEnabled,
	}
}

func paymentTokenEvent(t *storage.PaymentToken) event.PaymentTokenEvent {
	return event.PaymentTokenEvent{
		Phase:       t.PhaseName,
		Mint:        t.Mint,
		Decimals:    t.Decimals,
		PriceFeedID: t.PriceFeedID,
		Enabled:     t.Enabled,
	}
}
