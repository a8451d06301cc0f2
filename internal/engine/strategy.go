// Package engine implements barrier monitoring, lifecycle status
// derivation and coupon accrual for structured notes.
package engine

import (
	"notes-tracker/internal/errors"
	"notes-tracker/internal/models"
)

// KOAggregation selects how underlying prices combine for a knock-out check.
type KOAggregation int

const (
	// KOAllUnderlyings requires every underlying at or above its KO level
	// simultaneously.
	KOAllUnderlyings KOAggregation = iota
	// KOWorstPerformer tests only the worst performing underlying (lowest
	// last/spot ratio) against its KO level.
	KOWorstPerformer
)

func (a KOAggregation) String() string {
	if a == KOWorstPerformer {
		return "worst_performer"
	}
	return "all_underlyings"
}

// KIAggregation selects how underlying prices combine for a knock-in check.
type KIAggregation int

const (
	// KIAnyUnderlying triggers when at least one underlying is at or below
	// its KI level.
	KIAnyUnderlying KIAggregation = iota
	// KIWorstPerformer tests only the worst performing underlying against
	// its KI level.
	KIWorstPerformer
)

func (a KIAggregation) String() string {
	if a == KIWorstPerformer {
		return "worst_performer"
	}
	return "any_underlying"
}

// Strategy is the barrier evaluation strategy resolved from a product
// type. One strategy is resolved per note and threaded through both the
// barrier engine and the coupon engine.
type Strategy struct {
	Product      models.ProductType
	KOAgg        KOAggregation
	KIAgg        KIAggregation
	StepDownKO   bool
	MemoryCoupon bool
}

// strategyTable is the closed, versioned mapping from product type to
// strategy. Adding a product type means adding exactly one row here.
var strategyTable = map[models.ProductType]Strategy{
	models.ProductFCN:     {Product: models.ProductFCN, KOAgg: KOAllUnderlyings, KIAgg: KIAnyUnderlying},
	models.ProductWOFCN:   {Product: models.ProductWOFCN, KOAgg: KOWorstPerformer, KIAgg: KIWorstPerformer},
	models.ProductACCU:    {Product: models.ProductACCU, KOAgg: KOAllUnderlyings, KIAgg: KIAnyUnderlying},
	models.ProductDECU:    {Product: models.ProductDECU, KOAgg: KOAllUnderlyings, KIAgg: KIAnyUnderlying},
	models.ProductPhoenix: {Product: models.ProductPhoenix, KOAgg: KOWorstPerformer, KIAgg: KIWorstPerformer, StepDownKO: true, MemoryCoupon: true},
	models.ProductDCN:     {Product: models.ProductDCN, KOAgg: KOAllUnderlyings, KIAgg: KIAnyUnderlying},
	models.ProductWOBEN:   {Product: models.ProductWOBEN, KOAgg: KOWorstPerformer, KIAgg: KIWorstPerformer},
	models.ProductTwinWin: {Product: models.ProductTwinWin, KOAgg: KOAllUnderlyings, KIAgg: KIAnyUnderlying},
}

// ResolveStrategy maps a product type to its barrier evaluation strategy.
// A product type outside the table fails with ErrUnknownProduct; there is
// no silent default.
func ResolveStrategy(product models.ProductType) (Strategy, error) {
	strat, ok := strategyTable[product]
	if !ok {
		return Strategy{}, errors.Wrapf(errors.ErrUnknownProduct, "product %q", string(product))
	}
	return strat, nil
}

// KnownProducts returns the product types the resolver accepts, for
// display and validation.
func KnownProducts() []models.ProductType {
	return []models.ProductType{
		models.ProductFCN,
		models.ProductWOFCN,
		models.ProductACCU,
		models.ProductDECU,
		models.ProductPhoenix,
		models.ProductDCN,
		models.ProductWOBEN,
		models.ProductTwinWin,
	}
}
