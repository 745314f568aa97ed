package service

import (
	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountedAmount computes round(price - price*discount/100) in minor units,
// rounding half away from zero. Discounts outside (0, 100] leave the price
// unchanged or bring it to zero.
func DiscountedAmount(price int64, discountPercent float64) int64 {
	if discountPercent <= 0 {
		return price
	}
	if discountPercent >= 100 {
		return 0
	}

	p := decimal.NewFromInt(price)
	discount := p.Mul(decimal.NewFromFloat(discountPercent)).Div(hundred)
	return p.Sub(discount).Round(0).IntPart()
}

// quote prices a package with an optional promotion and returns the amount to
// charge plus the snapshot to store on the payment.
func quote(pkg *domain.Package, promo *domain.Promotion) (int64, *domain.AppliedPromotion) {
	if promo == nil {
		return pkg.Price, nil
	}
	return DiscountedAmount(pkg.Price, promo.DiscountPercent), &domain.AppliedPromotion{
		PromotionID:     promo.ID,
		Code:            promo.Code,
		DiscountPercent: promo.DiscountPercent,
		OriginalAmount:  pkg.Price,
	}
}
