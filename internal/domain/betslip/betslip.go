// Package betslip holds the pure betslip rules: ticket classification and
// fixed-point payout.
package betslip

import (
	"github.com/shopspring/decimal"

	"github.com/okian/slipsync/internal/domain/model"
)

// scale is the fixed-point factor applied to stake and odds (two decimals).
var scale = decimal.NewFromInt(100)

// Classify derives the ticket type from the bets on a slip.
//
// Two or more bets form a Multiple when every "<event>-<group>" prefix is
// distinct, and a System as soon as one prefix repeats.
func Classify(bets []model.UserBet) model.BetslipType {
	switch len(bets) {
	case 0:
		return model.BetslipNone
	case 1:
		return model.BetslipSingle
	}
	seen := make(map[string]struct{}, len(bets))
	for _, b := range bets {
		p := model.BetPrefix(b.ID)
		if _, dup := seen[p]; dup {
			return model.BetslipSystem
		}
		seen[p] = struct{}{}
	}
	return model.BetslipMultiple
}

// ClassifySlip classifies a possibly nil betslip.
func ClassifySlip(slip *model.Betslip) model.BetslipType {
	if slip == nil {
		return model.BetslipNone
	}
	return Classify(slip.Bets)
}

// Payout multiplies stake by every odd in fixed point: each factor is scaled
// by 100 and rounded to an integer, the integers are multiplied exactly and
// the product is divided by 100^factors and rounded to two decimals.
// The result does not depend on the order of odds.
func Payout(stake decimal.Decimal, odds ...decimal.Decimal) decimal.Decimal {
	product := stake.Mul(scale).Round(0)
	for _, o := range odds {
		product = product.Mul(o.Mul(scale).Round(0))
	}
	return product.Shift(int32(-2 * (len(odds) + 1))).Round(2)
}

// PayoutFloat is Payout for float inputs, as carried by the catalog.
func PayoutFloat(stake float64, odds ...float64) decimal.Decimal {
	ds := make([]decimal.Decimal, len(odds))
	for i, o := range odds {
		ds[i] = decimal.NewFromFloat(o)
	}
	return Payout(decimal.NewFromFloat(stake), ds...)
}
