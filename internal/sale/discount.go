package sale

import (
	"nodesale/internal/failure"
	"nodesale/internal/fixedpoint"
)

// Scale is the unit full and half discounts are expressed in. It is fixed
// when the phase is created.
type Scale string

const (
	ScaleBasisPoints Scale = "bps"
	ScalePercent     Scale = "percent"
)

// UserDiscountDenominator applies to user discounts on every scale.
const UserDiscountDenominator = 10_000

func ParseScale(s string) (Scale, error) {
	switch Scale(s) {
	case "", ScaleBasisPoints:
		return ScaleBasisPoints, nil
	case ScalePercent:
		return ScalePercent, nil
	}
	return "", failure.Wrap(failure.ErrInvalidDiscountScale, "%q", s)
}

func (s Scale) Denominator() (uint64, error) {
	switch s {
	case ScaleBasisPoints:
		return 10_000, nil
	case ScalePercent:
		return 100, nil
	}
	return 0, failure.Wrap(failure.ErrInvalidDiscountScale, "%q", string(s))
}

type Discount struct {
	Allow bool   `json:"allow"`
	Value uint64 `json:"value"`
}

type Discounts struct {
	User Discount `json:"user"`
	Full Discount `json:"full"`
	Half Discount `json:"half"`
}

// Amount is the same quantity expressed in USD price units and in base units
// of the paying asset.
type Amount struct {
	USD    uint64 `json:"usd"`
	Native uint64 `json:"native"`
}

type DiscountAmounts struct {
	Base      Amount `json:"base"`
	User      Amount `json:"user"`
	AfterUser Amount `json:"after_user"`
	Full      Amount `json:"full"`
	Half      Amount `json:"half"`
	Net       Amount `json:"net"`
}

// Validate checks the discount configuration without computing anything.
func (d Discounts) Validate(scale Scale) error {
	den, err := scale.Denominator()
	if err != nil {
		return err
	}
	for _, discount := range []Discount{d.User, d.Full, d.Half} {
		if discount.Allow && discount.Value == 0 {
			return failure.Wrap(failure.ErrValueIsZero, "enabled discount is zero")
		}
	}
	if d.User.Allow && d.User.Value >= UserDiscountDenominator {
		return failure.Wrap(failure.ErrInvalidUserDiscount, "%d of %d", d.User.Value, UserDiscountDenominator)
	}
	var stacked uint64
	if d.Full.Allow {
		stacked = d.Full.Value
	}
	if d.Half.Allow {
		if stacked, err = fixedpoint.Add(stacked, d.Half.Value); err != nil {
			return failure.Wrap(failure.ErrInvalidDiscount, "full and half overflow")
		}
	}
	if stacked >= den {
		return failure.Wrap(failure.ErrInvalidDiscount, "full and half total %d of %d", stacked, den)
	}
	return nil
}

// ComputeDiscounts applies the user discount to base first, then takes the
// full and half discounts from what is left. Net is what the payment
// receiver gets.
func ComputeDiscounts(base Amount, d Discounts, scale Scale) (DiscountAmounts, error) {
	if err := d.Validate(scale); err != nil {
		return DiscountAmounts{}, err
	}
	den, _ := scale.Denominator()

	out := DiscountAmounts{Base: base}
	var err error
	if d.User.Allow {
		if out.User, err = portion(base, d.User.Value, UserDiscountDenominator); err != nil {
			return DiscountAmounts{}, err
		}
	}
	out.AfterUser = Amount{USD: base.USD - out.User.USD, Native: base.Native - out.User.Native}

	if d.Full.Allow {
		if out.Full, err = portion(out.AfterUser, d.Full.Value, den); err != nil {
			return DiscountAmounts{}, err
		}
	}
	if d.Half.Allow {
		if out.Half, err = portion(out.AfterUser, d.Half.Value, den); err != nil {
			return DiscountAmounts{}, err
		}
	}
	out.Net = Amount{
		USD:    out.AfterUser.USD - out.Full.USD - out.Half.USD,
		Native: out.AfterUser.Native - out.Full.Native - out.Half.Native,
	}
	return out, nil
}

func portion(a Amount, value, den uint64) (Amount, error) {
	usd, err := fixedpoint.MulDiv(a.USD, value, den)
	if err != nil {
		return Amount{}, err
	}
	native, err := fixedpoint.MulDiv(a.Native, value, den)
	if err != nil {
		return Amount{}, err
	}
	return Amount{USD: usd, Native: native}, nil
}
