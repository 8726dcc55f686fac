package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// PayoutPolicy holds the even-money multiplier and the platform fee rate.
// The fee applies to the gross payout of winning trades only; refunds carry
// no fee.
type PayoutPolicy struct {
	Multiplier decimal.Decimal
	FeeRate    decimal.Decimal
}

// DefaultPayoutPolicy pays 2x the stake less a 2.5% fee on the gross.
func DefaultPayoutPolicy() PayoutPolicy {
	return PayoutPolicy{
		Multiplier: decimal.NewFromInt(2),
		FeeRate:    decimal.RequireFromString("0.025"),
	}
}

// ParsePayoutPolicy builds a policy from config strings.
func ParsePayoutPolicy(multiplier, feeRate string) (PayoutPolicy, error) {
	m, err := decimal.NewFromString(multiplier)
	if err != nil {
		return PayoutPolicy{}, fmt.Errorf("settlement: payout multiplier %q: %w", multiplier, err)
	}
	f, err := decimal.NewFromString(feeRate)
	if err != nil {
		return PayoutPolicy{}, fmt.Errorf("settlement: fee rate %q: %w", feeRate, err)
	}
	if !m.IsPositive() {
		return PayoutPolicy{}, fmt.Errorf("settlement: payout multiplier must be positive, got %s: %w", m, domain.ErrInvalidAmount)
	}
	if f.IsNegative() || f.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return PayoutPolicy{}, fmt.Errorf("settlement: fee rate must be in [0, 1), got %s: %w", f, domain.ErrInvalidAmount)
	}
	return PayoutPolicy{Multiplier: m, FeeRate: f}, nil
}

// PayoutBreakdown is the result of pricing one winning trade.
type PayoutBreakdown struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
}

// Compute prices a winning stake. Arithmetic is exact; no rounding is applied.
func (p PayoutPolicy) Compute(stake decimal.Decimal) PayoutBreakdown {
	gross := stake.Mul(p.Multiplier)
	fee := gross.Mul(p.FeeRate)
	return PayoutBreakdown{Gross: gross, Fee: fee, Net: gross.Sub(fee)}
}
