/**
 * @description
 * Static catalog lookups for the subscription tiers: the grocery line items
 * each tier ships and the price each (tier, billing cycle) pair bills at.
 * The catalog service owns the real product data; this package carries the
 * tier composition the billing engine needs to snapshot deliveries and
 * price invoices.
 *
 * @notes
 * - All prices are in kobo.
 */

package catalog

import (
	"fmt"
	"strings"

	"github.com/HeartyTjan/bukafresh-store/internal/domain"
)

var tierItems = map[string][]domain.LineItem{
	domain.TierEssentials: {
		{ProductID: "prod-rice", Name: "Premium Rice", Quantity: 2, Unit: "kg", Price: 500000},
		{ProductID: "prod-beans", Name: "Brown Beans", Quantity: 1, Unit: "kg", Price: 250000},
		{ProductID: "prod-tomatoes", Name: "Fresh Tomatoes", Quantity: 2, Unit: "kg", Price: 160000},
	},
	domain.TierStandard: {
		{ProductID: "prod-chicken", Name: "Fresh Chicken", Quantity: 2, Unit: "kg", Price: 700000},
		{ProductID: "prod-rice", Name: "Premium Rice", Quantity: 3, Unit: "kg", Price: 750000},
		{ProductID: "prod-vegetables", Name: "Mixed Vegetables", Quantity: 1, Unit: "bundle", Price: 300000},
		{ProductID: "prod-fish", Name: "Fresh Fish", Quantity: 1, Unit: "kg", Price: 450000},
	},
	domain.TierPremium: {
		{ProductID: "prod-beef", Name: "Premium Beef", Quantity: 2, Unit: "kg", Price: 1200000},
		{ProductID: "prod-chicken", Name: "Organic Chicken", Quantity: 2, Unit: "kg", Price: 800000},
		{ProductID: "prod-seafood", Name: "Fresh Seafood Mix", Quantity: 1, Unit: "kg", Price: 1500000},
		{ProductID: "prod-premium-rice", Name: "Basmati Rice", Quantity: 5, Unit: "kg", Price: 1250000},
		{ProductID: "prod-organic-vegetables", Name: "Organic Vegetable Bundle", Quantity: 2, Unit: "bundle", Price: 800000},
	},
}

// weekly/monthly price per tier, in kobo.
var tierPrices = map[string]map[string]int64{
	domain.TierEssentials: {domain.CycleWeekly: 8000000, domain.CycleMonthly: 7000000},
	domain.TierStandard:   {domain.CycleWeekly: 14000000, domain.CycleMonthly: 11000000},
	domain.TierPremium:    {domain.CycleWeekly: 32000000, domain.CycleMonthly: 25000000},
}

// ItemsForTier returns a copy of the line items included in a tier's box.
func ItemsForTier(tier string) ([]domain.LineItem, error) {
	items, ok := tierItems[strings.ToUpper(tier)]
	if !ok {
		return nil, fmt.Errorf("invalid subscription tier: %q", tier)
	}
	out := make([]domain.LineItem, len(items))
	copy(out, items)
	return out, nil
}

// PriceForTier returns the invoice amount in kobo for a tier and billing cycle.
func PriceForTier(tier, cycle string) (int64, error) {
	cycles, ok := tierPrices[strings.ToUpper(tier)]
	if !ok {
		return 0, fmt.Errorf("invalid subscription tier: %q", tier)
	}
	price, ok := cycles[strings.ToUpper(cycle)]
	if !ok {
		return 0, fmt.Errorf("invalid billing cycle: %q", cycle)
	}
	return price, nil
}

// MaxDeliveriesPerMonth returns how many deliveries a billing cycle entitles
// the subscriber to each calendar month.
func MaxDeliveriesPerMonth(cycle string) int {
	if strings.ToUpper(cycle) == domain.CycleWeekly {
		return 4
	}
	return 1
}

// ValidTier reports whether the tier is one this catalog serves.
func ValidTier(tier string) bool {
	_, ok := tierItems[strings.ToUpper(tier)]
	return ok
}

// ValidCycle reports whether the billing cycle is supported.
func ValidCycle(cycle string) bool {
	switch strings.ToUpper(cycle) {
	case domain.CycleMonthly, domain.CycleWeekly:
		return true
	}
	return false
}
