// Package failure defines the typed failures returned by every sale
// operation. A failure carries a stable code, the kind it belongs to and a
// human readable message; errors.Is matches on the code alone so callers can
// compare against the exported sentinels even when detail was attached.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindConfiguration Kind = "configuration"
	KindCapacity      Kind = "capacity"
	KindPricing       Kind = "pricing"
	KindOrderState    Kind = "order-state"
	KindPayment       Kind = "payment"
	KindNotFound      Kind = "not-found"
	KindConflict      Kind = "conflict"
)

type Code string

type Error struct {
	Code    Code
	Kind    Kind
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func define(code Code, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

// Wrap returns a copy of base carrying detail.
func Wrap(base *Error, format string, args ...any) *Error {
	return &Error{
		Code:    base.Code,
		Kind:    base.Kind,
		Message: base.Message,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// As extracts the failure from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Authorization
var (
	ErrUnauthorizedRoot    = define("InvalidMainSigningAuthority", KindAuthorization, "invalid main signing authority")
	ErrUnauthorizedSigning = define("InvalidSigningAuthority", KindAuthorization, "invalid signing authority")
	ErrUnauthorizedBack    = define("InvalidBackAuthority", KindAuthorization, "invalid back authority")
)

// Configuration
var (
	ErrValueIsZero              = define("ValueIsZero", KindConfiguration, "value is zero")
	ErrAlreadyInitialized       = define("AlreadyInitialized", KindConfiguration, "sale config already initialized")
	ErrNotInitialized           = define("NotInitialized", KindConfiguration, "sale config not initialized")
	ErrPhaseExists              = define("PhaseExists", KindConfiguration, "sale phase already exists")
	ErrPaymentTokenExists       = define("PaymentTokenExists", KindConfiguration, "payment token already exists")
	ErrInvalidTierId            = define("InvalidTierId", KindConfiguration, "invalid tier id")
	ErrTierIdOutOfRange         = define("TierIdOutOfRange", KindConfiguration, "tier id out of range")
	ErrInvalidWhitelistQuantity = define("InvalidWhitelistQuantity", KindConfiguration, "invalid whitelist quantity")
	ErrInvalidQuantity          = define("InvalidQuantity", KindConfiguration, "invalid quantity")
	ErrInvalidMintLimit         = define("InvalidMintLimit", KindConfiguration, "mint limit below a user's minted total")
	ErrOracleMismatch           = define("InvalidPriceFeed", KindConfiguration, "price feed does not match configuration")
	ErrPaymentReceiverMismatch  = define("InvalidPaymentReceiver", KindConfiguration, "payment receiver does not match configuration")
	ErrCollectionMismatch       = define("InvalidTierCollection", KindConfiguration, "collection does not match tier")
	ErrPaymentTokenMismatch     = define("InvalidPaymentTokenMint", KindConfiguration, "payment token mint does not match configuration")
	ErrMissingDiscountReceiver  = define("MissingDiscountReceiver", KindConfiguration, "discount receiver required")
	ErrInvalidDiscountScale     = define("InvalidDiscountScale", KindConfiguration, "unknown discount scale")
	ErrBuyDisabled              = define("BuyDisabled", KindConfiguration, "buy is disabled")
	ErrBuyWithTokenDisabled     = define("BuyWithTokenDisabled", KindConfiguration, "buy with token is disabled")
	ErrAirdropDisabled          = define("AirdropDisabled", KindConfiguration, "airdrop is disabled")
	ErrPaymentTokenDisabled     = define("PaymentTokenDisabled", KindConfiguration, "payment token is disabled")
	ErrInvalidArgument          = define("InvalidArgument", KindConfiguration, "invalid argument")
)

// Capacity
var (
	ErrTierCompleted             = define("PhaseTierIsCompleted", KindCapacity, "phase tier is completed")
	ErrTierOutOfRange            = define("TierOutOfRange", KindCapacity, "item id exceeds tier quantity")
	ErrMintLimitExceeded         = define("MintLimitExceeded", KindCapacity, "mint limit exceeded")
	ErrWhitelistQuantityExceeded = define("WhitelistQuantityExceeded", KindCapacity, "whitelist quantity exceeded")
	ErrInvalidTierSequence       = define("InvalidTierSequence", KindCapacity, "lower tiers are not completed")
	ErrInvalidItemId             = define("InvalidTokenId", KindCapacity, "item id is not the next available id")
)

// Pricing
var (
	ErrStalePrice          = define("StalePrice", KindPricing, "oracle price is stale")
	ErrInvalidOraclePrice  = define("InvalidOraclePrice", KindPricing, "oracle price is not positive")
	ErrOracleUnavailable   = define("OracleUnavailable", KindPricing, "oracle price unavailable")
	ErrArithmeticOverflow  = define("ArithmeticOverflow", KindPricing, "arithmetic overflow")
	ErrPriceTooLow         = define("PriceTooLow", KindPricing, "usd amount converts to zero base units")
	ErrInvalidDiscount     = define("InvalidDiscount", KindPricing, "invalid discount")
	ErrInvalidUserDiscount = define("InvalidUserDiscount", KindPricing, "invalid user discount")
)

// Order state
var (
	ErrInvalidOrderId         = define("InvalidOrderId", KindOrderState, "invalid order id")
	ErrInvalidOrderItemId     = define("InvalidOrderTokenId", KindOrderState, "item id not reserved by order")
	ErrOrderItemAlreadyFilled = define("OrderTokenIdFilled", KindOrderState, "order item already filled")
	ErrOrderAlreadyFilled     = define("OrderIsFilled", KindOrderState, "order is filled")
	ErrItemAlreadyIssued      = define("ItemAlreadyIssued", KindOrderState, "item already issued")
)

// Payment
var (
	ErrInsufficientFunds = define("InsufficientFunds", KindPayment, "insufficient funds")
	ErrTransferFailed    = define("TransferFailed", KindPayment, "transfer failed")
	ErrIssuanceFailed    = define("IssuanceFailed", KindPayment, "issuance failed")
)

// Lookup and concurrency
var (
	ErrPhaseNotFound        = define("PhaseNotFound", KindNotFound, "sale phase not found")
	ErrTierNotFound         = define("TierNotFound", KindNotFound, "tier not found")
	ErrPaymentTokenNotFound = define("PaymentTokenNotFound", KindNotFound, "payment token not found")
	ErrOrderNotFound        = define("OrderNotFound", KindNotFound, "order not found")
	ErrUserNotFound         = define("UserNotFound", KindNotFound, "user not found")
	ErrConcurrentUpdate     = define("ConcurrentUpdate", KindConflict, "record modified concurrently")
)
