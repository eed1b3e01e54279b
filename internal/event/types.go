package event

const (
	InitializedEventType         EventType = "sale.initialized"
	KeyRotatedEventType          EventType = "sale.key_rotated"
	PhaseCreatedEventType        EventType = "sale.phase_created"
	PhaseUpdatedEventType        EventType = "sale.phase_updated"
	TierCreatedEventType         EventType = "sale.tier_created"
	TierUpdatedEventType         EventType = "sale.tier_updated"
	TierCompletedEventType       EventType = "sale.tier_completed"
	PaymentTokenCreatedEventType EventType = "sale.payment_token_created"
	PaymentTokenUpdatedEventType EventType = "sale.payment_token_updated"
	OrderCreatedEventType        EventType = "sale.order_created"
	OrderReceiptCreatedEventType EventType = "sale.order_receipt_created"
	OrderFilledEventType         EventType = "sale.order_filled"
	BoughtEventType              EventType = "sale.bought"
	AirdroppedEventType          EventType = "sale.airdropped"
)

// KeyRotatedEvent reports a new authority. Phase is empty for the main
// signing key.
type KeyRotatedEvent struct {
	Phase     string `json:"phase,omitempty"`
	Role      string `json:"role"`
	Authority string `json:"authority"`
}

type PhaseEvent struct {
	Phase               string `json:"phase"`
	TotalTiers          uint32 `json:"total_tiers"`
	SigningAuthority    string `json:"signing_authority"`
	BackAuthority       string `json:"back_authority"`
	PriceFeedID         string `json:"price_feed_id"`
	PaymentReceiver     string `json:"payment_receiver"`
	BuyEnabled          bool   `json:"buy_enabled"`
	BuyWithTokenEnabled bool   `json:"buy_with_token_enabled"`
	AirdropEnabled      bool   `json:"airdrop_enabled"`
	DiscountScale       string `json:"discount_scale"`
}

type TierEvent struct {
	Phase               string `json:"phase"`
	TierID              uint32 `json:"tier_id"`
	Collection          string `json:"collection"`
	Price               uint64 `json:"price"`
	Quantity            uint64 `json:"quantity"`
	WhitelistQuantity   uint64 `json:"whitelist_quantity"`
	MintLimit           uint64 `json:"mint_limit"`
	IsCompleted         bool   `json:"is_completed"`
	BuyEnabled          bool   `json:"buy_enabled"`
	BuyWithTokenEnabled bool   `json:"buy_with_token_enabled"`
	AirdropEnabled      bool   `json:"airdrop_enabled"`
}

type PaymentTokenEvent struct {
	Phase       string `json:"phase"`
	Mint        string `json:"mint"`
	Decimals    uint8  `json:"decimals"`
	PriceFeedID string `json:"price_feed_id"`
	Enabled     bool   `json:"enabled"`
}

// Amounts are given in USD price units and in the paid asset's base units.
type Amounts struct {
	PaymentUSD         uint64 `json:"payment_usd"`
	UserDiscountUSD    uint64 `json:"user_discount_usd"`
	FullDiscountUSD    uint64 `json:"full_discount_usd"`
	HalfDiscountUSD    uint64 `json:"half_discount_usd"`
	NetPaymentUSD      uint64 `json:"net_payment_usd"`
	Payment            uint64 `json:"payment"`
	UserDiscount       uint64 `json:"user_discount"`
	FullDiscount       uint64 `json:"full_discount"`
	HalfDiscount       uint64 `json:"half_discount"`
	NetPayment         uint64 `json:"net_payment"`
	PaymentAsset       string `json:"payment_asset,omitempty"`
	FullDiscountTarget string `json:"full_discount_receiver,omitempty"`
	HalfDiscountTarget string `json:"half_discount_receiver,omitempty"`
}

// PurchaseEvent covers orders, receipts, direct buys and airdrops.
type PurchaseEvent struct {
	Phase       string   `json:"phase"`
	TierID      uint32   `json:"tier_id"`
	User        string   `json:"user"`
	OrderID     uint64   `json:"order_id,omitempty"`
	Quantity    uint64   `json:"quantity"`
	ItemIDs     []uint64 `json:"item_ids"`
	IsWhitelist bool     `json:"is_whitelist"`
	Amounts     Amounts  `json:"amounts"`
	AssetHandle string   `json:"asset_handle,omitempty"`
}

type OrderFilledEvent struct {
	Phase          string `json:"phase"`
	TierID         uint32 `json:"tier_id"`
	User           string `json:"user"`
	OrderID        uint64 `json:"order_id"`
	ItemID         uint64 `json:"item_id"`
	Collection     string `json:"collection"`
	AssetHandle    string `json:"asset_handle"`
	OrderCompleted bool   `json:"order_completed"`
}

type TierCompletedEvent struct {
	Phase               string `json:"phase"`
	TierID              uint32 `json:"tier_id"`
	TotalCompletedTiers uint32 `json:"total_completed_tiers"`
}
