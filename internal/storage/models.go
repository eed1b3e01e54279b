package storage

import "time"

// Totals are the running counters kept on phases, tiers and user records.
// USD amounts are in the tier price unit; discounts exclude the user discount,
// which is tracked separately.
type Totals struct {
	TotalMint          uint64 `gorm:"default:0" json:"total_mint"`
	TotalBuy           uint64 `gorm:"default:0" json:"total_buy"`
	TotalBuyWithToken  uint64 `gorm:"default:0" json:"total_buy_with_token"`
	TotalAirdrop       uint64 `gorm:"default:0" json:"total_airdrop"`
	TotalPayment       uint64 `gorm:"default:0" json:"total_payment"`
	TotalDiscount      uint64 `gorm:"default:0" json:"total_discount"`
	TotalUserDiscount  uint64 `gorm:"default:0" json:"total_user_discount"`
	TotalWhitelistMint uint64 `gorm:"default:0" json:"total_whitelist_mint"`
}

type RootConfig struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	MainSigningAuthority string    `gorm:"not null" json:"main_signing_authority"`
	Version              int64     `gorm:"not null" json:"version"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type SalePhase struct {
	Name                  string `gorm:"primaryKey" json:"name"`
	SigningAuthority      string `gorm:"not null" json:"signing_authority"`
	BackAuthority         string `gorm:"not null" json:"back_authority"`
	PriceFeedID           string `gorm:"not null" json:"price_feed_id"`
	PaymentReceiver       string `gorm:"not null" json:"payment_receiver"`
	BuyEnabled            bool   `json:"buy_enabled"`
	BuyWithTokenEnabled   bool   `json:"buy_with_token_enabled"`
	AirdropEnabled        bool   `json:"airdrop_enabled"`
	TotalTiers            uint32 `json:"total_tiers"`
	TotalInitializedTiers uint32 `json:"total_initialized_tiers"`
	TotalCompletedTiers   uint32 `json:"total_completed_tiers"`
	Totals                `gorm:"embedded" json:"totals"`
	DisplayName           string    `json:"display_name"`
	Symbol                string    `json:"symbol"`
	MetadataBaseURI       string    `json:"metadata_base_uri"`
	DiscountScale         string    `gorm:"not null" json:"discount_scale"`
	Version               int64     `gorm:"not null" json:"version"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Tier struct {
	PhaseName           string `gorm:"primaryKey" json:"phase_name"`
	TierID              uint32 `gorm:"primaryKey;autoIncrement:false" json:"tier_id"`
	Collection          string `gorm:"not null" json:"collection"`
	Price               uint64 `gorm:"not null" json:"price"`
	Quantity            uint64 `gorm:"not null" json:"quantity"`
	WhitelistQuantity   uint64 `json:"whitelist_quantity"`
	MintLimit           uint64 `gorm:"not null" json:"mint_limit"`
	IsCompleted         bool   `json:"is_completed"`
	BuyEnabled          bool   `json:"buy_enabled"`
	BuyWithTokenEnabled bool   `json:"buy_with_token_enabled"`
	AirdropEnabled      bool   `json:"airdrop_enabled"`
	Totals              `gorm:"embedded" json:"totals"`
	Version             int64     `gorm:"not null" json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type PaymentToken struct {
	PhaseName   string    `gorm:"primaryKey" json:"phase_name"`
	Mint        string    `gorm:"primaryKey" json:"mint"`
	Decimals    uint8     `json:"decimals"`
	PriceFeedID string    `gorm:"not null" json:"price_feed_id"`
	Enabled     bool      `json:"enabled"`
	Version     int64     `gorm:"not null" json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UserAccount struct {
	PhaseName   string `gorm:"primaryKey" json:"phase_name"`
	User        string `gorm:"primaryKey" json:"user"`
	Totals      `gorm:"embedded" json:"totals"`
	TotalOrders uint64    `json:"total_orders"`
	Version     int64     `gorm:"not null" json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UserTierAccount struct {
	PhaseName string `gorm:"primaryKey" json:"phase_name"`
	TierID    uint32 `gorm:"primaryKey;autoIncrement:false" json:"tier_id"`
	User      string `gorm:"primaryKey" json:"user"`
	Totals    `gorm:"embedded" json:"totals"`
	Version   int64     `gorm:"not null" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderSource string

const (
	OrderSourceBuy          OrderSource = "buy"
	OrderSourceBuyWithToken OrderSource = "buy_with_token"
	OrderSourceReceipt      OrderSource = "receipt"
)

type Order struct {
	PhaseName          string      `gorm:"primaryKey" json:"phase_name"`
	User               string      `gorm:"primaryKey" json:"user"`
	OrderID            uint64      `gorm:"primaryKey;autoIncrement:false" json:"order_id"`
	TierID             uint32      `gorm:"not null;index" json:"tier_id"`
	Source             OrderSource `gorm:"not null" json:"source"`
	Quantity           uint64      `gorm:"not null" json:"quantity"`
	IsCompleted        bool        `json:"is_completed"`
	IsWhitelist        bool        `json:"is_whitelist"`
	TokenIDs           []uint64    `gorm:"serializer:json" json:"token_ids"`
	IsTokenIDsMinted   []bool      `gorm:"serializer:json" json:"is_token_ids_minted"`
	PaymentUSD         uint64      `json:"payment_usd"`
	UserDiscountUSD    uint64      `json:"user_discount_usd"`
	FullDiscountUSD    uint64      `json:"full_discount_usd"`
	HalfDiscountUSD    uint64      `json:"half_discount_usd"`
	NetPaymentUSD      uint64      `json:"net_payment_usd"`
	PaymentNative      uint64      `json:"payment_native"`
	UserDiscountNative uint64      `json:"user_discount_native"`
	FullDiscountNative uint64      `json:"full_discount_native"`
	HalfDiscountNative uint64      `json:"half_discount_native"`
	NetPaymentNative   uint64      `json:"net_payment_native"`
	PaymentMint        *string     `json:"payment_mint"`
	Version            int64       `gorm:"not null" json:"version"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Balance is an account's holding of one asset in the local payment ledger.
type Balance struct {
	Account   string    `gorm:"primaryKey" json:"account"`
	Asset     string    `gorm:"primaryKey" json:"asset"`
	Amount    uint64    `json:"amount"`
	Version   int64     `gorm:"not null" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TransferRecord struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Sender    string    `gorm:"not null;index" json:"sender"`
	Recipient string    `gorm:"not null;index" json:"recipient"`
	Asset     string    `gorm:"not null" json:"asset"`
	Amount    uint64    `json:"amount"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"created_at"`
}

// IssuedItem is one asset produced by the issuance registry. The primary key
// makes a second issuance of the same item id impossible.
type IssuedItem struct {
	PhaseName  string    `gorm:"primaryKey" json:"phase_name"`
	TierID     uint32    `gorm:"primaryKey;autoIncrement:false" json:"tier_id"`
	ItemID     uint64    `gorm:"primaryKey;autoIncrement:false" json:"item_id"`
	Owner      string    `gorm:"not null;index" json:"owner"`
	Collection string    `gorm:"not null" json:"collection"`
	Handle     string    `gorm:"not null;uniqueIndex" json:"handle"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	URI        string    `json:"uri"`
	CreatedAt  time.Time `json:"created_at"`
}

type EventRecord struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"not null;index" json:"type"`
	PhaseName string    `gorm:"index" json:"phase_name"`
	Payload   string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func allModels() []any {
	return []any{
		&RootConfig{},
		&SalePhase{},
		&Tier{},
		&PaymentToken{},
		&UserAccount{},
		&UserTierAccount{},
		&Order{},
		&Balance{},
		&TransferRecord{},
		&IssuedItem{},
		&EventRecord{},
	}
}
