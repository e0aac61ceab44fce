package pricing

import (
	"fmt"
	"math"
	"strings"

	"fieldops_backend/platform/apperr"
)

const (
	maxConcreteEntries = 3

	DiscountPercent = "percent"
	DiscountAmount  = "amount"

	CategoryService  = "service"
	CategoryAddOn    = "addon"
	CategoryTravel   = "travel"
	CategoryDiscount = "discount"
)

var concreteKinds = map[string]bool{
	"driveway":  true,
	"patio":     true,
	"sidewalk":  true,
	"pool_deck": true,
}

// ConcreteSurface is one structured concrete measurement.
type ConcreteSurface struct {
	Kind string  `json:"kind" validate:"required"`
	SqFt float64 `json:"sqft" validate:"gt=0"`
}

// Discount is a manual percent or flat-amount reduction.
// Percent values are 0-100; amount values are cents.
type Discount struct {
	Type  string  `json:"type" validate:"required,oneof=percent amount"`
	Value float64 `json:"value"`
}

// Input is everything the engine needs to price a job.
type Input struct {
	ZoneID              string            `json:"zoneId"`
	ServiceIDs          []string          `json:"services"`
	AddOnIDs            []string          `json:"addOns,omitempty"`
	SurfaceAreaSqFt     *float64          `json:"surfaceAreaSqFt,omitempty"`
	PriceOverrides      map[string]int64  `json:"priceOverrides,omitempty"`
	ConcreteSurfaces    []ConcreteSurface `json:"concreteSurfaces,omitempty"`
	ManualConcreteCents []int64           `json:"manualConcreteCents,omitempty"`
	Discount            *Discount         `json:"discount,omitempty"`
	DepositRate         *float64          `json:"depositRate,omitempty"`
}

// LineItem is one row of the priced breakdown. Discounts carry a negative amount.
type LineItem struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
	Category    string `json:"category"`
}

// Breakdown is the full priced result.
type Breakdown struct {
	ZoneID             string     `json:"zoneId"`
	ServicesTotalCents int64      `json:"servicesTotalCents"`
	AddOnsTotalCents   int64      `json:"addOnsTotalCents"`
	TravelFeeCents     int64      `json:"travelFeeCents"`
	SubtotalCents      int64      `json:"subtotalCents"`
	DiscountCents      int64      `json:"discountCents"`
	TotalCents         int64      `json:"totalCents"`
	DepositRate        float64    `json:"depositRate"`
	DepositDueCents    int64      `json:"depositDueCents"`
	BalanceDueCents    int64      `json:"balanceDueCents"`
	LineItems          []LineItem `json:"lineItems"`
}

// Engine prices quotes against a catalog.
type Engine struct {
	catalog *Catalog
}

// NewEngine creates an Engine for catalog.
func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Catalog returns the catalog the engine prices against.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// roundCents rounds a float to the nearest cent (integer)
func roundCents(v float64) int64 {
	return int64(math.Round(v))
}

// CalculateBreakdown prices in. Any invalid field fails the whole call with a
// validation error; no partial breakdown is returned.
func (e *Engine) CalculateBreakdown(in Input) (Breakdown, error) {
	serviceIDs := dedupe(in.ServiceIDs)
	if len(serviceIDs) == 0 {
		return Breakdown{}, invalid(apperr.ReasonServicesRequired, "at least one service is required")
	}

	depositRate, err := e.resolveDepositRate(in.DepositRate)
	if err != nil {
		return Breakdown{}, err
	}

	concreteCents, hasConcrete, err := e.concreteOverride(in.ConcreteSurfaces, in.ManualConcreteCents)
	if err != nil {
		return Breakdown{}, err
	}

	for id, cents := range in.PriceOverrides {
		if cents < 0 {
			return Breakdown{}, invalid(apperr.ReasonInvalidOverride, fmt.Sprintf("price override for %q must not be negative", id))
		}
	}

	var area float64
	if in.SurfaceAreaSqFt != nil {
		area = *in.SurfaceAreaSqFt
		if area < 0 || math.IsNaN(area) || math.IsInf(area, 0) {
			return Breakdown{}, invalid(apperr.ReasonValidation, "surface area must be a non-negative number")
		}
	}

	zone := e.catalog.Zone(in.ZoneID)
	items := make([]LineItem, 0, len(serviceIDs)+len(in.AddOnIDs)+2)

	var servicesTotal int64
	includesTravel := false
	for _, id := range serviceIDs {
		svc, ok := e.catalog.Service(id)
		if !ok {
			return Breakdown{}, invalid(apperr.ReasonUnknownService, fmt.Sprintf("unknown service %q", id))
		}
		price := servicePrice(svc, area, in.PriceOverrides, concreteCents, hasConcrete)
		servicesTotal += price
		includesTravel = includesTravel || svc.IncludesTravel
		items = append(items, LineItem{ID: "service:" + svc.ID, Label: svc.Name, AmountCents: price, Category: CategoryService})
	}

	var addOnsTotal int64
	for _, id := range dedupe(in.AddOnIDs) {
		addOn, ok := e.catalog.AddOn(id)
		if !ok {
			return Breakdown{}, invalid(apperr.ReasonUnknownAddOn, fmt.Sprintf("unknown add-on %q", id))
		}
		addOnsTotal += addOn.PriceCents
		items = append(items, LineItem{ID: "addon:" + addOn.ID, Label: addOn.Name, AmountCents: addOn.PriceCents, Category: CategoryAddOn})
	}

	travel := zone.TravelFeeCents
	if includesTravel {
		travel = 0
	}
	if travel > 0 {
		items = append(items, LineItem{ID: "travel", Label: "Travel fee (" + zone.Name + ")", AmountCents: travel, Category: CategoryTravel})
	}

	subtotal := servicesTotal + addOnsTotal + travel

	discount, label, err := computeDiscount(subtotal, in.Discount)
	if err != nil {
		return Breakdown{}, err
	}
	if discount > 0 {
		items = append(items, LineItem{ID: "discount", Label: label, AmountCents: -discount, Category: CategoryDiscount})
	}

	total := subtotal - discount
	deposit := roundCents(float64(total) * depositRate)
	balance := total - deposit
	if balance < 0 {
		balance = 0
	}

	return Breakdown{
		ZoneID:             zone.ID,
		ServicesTotalCents: servicesTotal,
		AddOnsTotalCents:   addOnsTotal,
		TravelFeeCents:     travel,
		SubtotalCents:      subtotal,
		DiscountCents:      discount,
		TotalCents:         total,
		DepositRate:        depositRate,
		DepositDueCents:    deposit,
		BalanceDueCents:    balance,
		LineItems:          items,
	}, nil
}

// servicePrice applies the precedence rules for one service. The driveway
// only takes an override from concrete pricing, never a direct one.
func servicePrice(svc Service, area float64, overrides map[string]int64, concreteCents int64, hasConcrete bool) int64 {
	if svc.Flat {
		return svc.BasePriceCents
	}
	if svc.ID == DrivewayServiceID {
		if hasConcrete {
			return concreteCents
		}
		return formulaPrice(svc, area)
	}
	if override, ok := overrides[svc.ID]; ok {
		return override
	}
	return formulaPrice(svc, area)
}

func formulaPrice(svc Service, area float64) int64 {
	price := svc.BasePriceCents + roundCents(area*svc.PerSqFtCents)
	if price < svc.BasePriceCents {
		return svc.BasePriceCents
	}
	return price
}

// concreteOverride sums structured surfaces, or manual amounts when no
// structured surfaces are present.
func (e *Engine) concreteOverride(surfaces []ConcreteSurface, manual []int64) (int64, bool, error) {
	if len(surfaces) > maxConcreteEntries || len(manual) > maxConcreteEntries {
		return 0, false, invalid(apperr.ReasonInvalidConcrete, fmt.Sprintf("at most %d concrete entries are allowed", maxConcreteEntries))
	}

	if len(surfaces) > 0 {
		var total int64
		for i, s := range surfaces {
			kind := strings.ToLower(strings.TrimSpace(s.Kind))
			if !concreteKinds[kind] {
				return 0, false, invalid(apperr.ReasonInvalidConcrete, fmt.Sprintf("concrete surface %d has unknown kind %q", i+1, s.Kind))
			}
			if s.SqFt <= 0 || math.IsNaN(s.SqFt) || math.IsInf(s.SqFt, 0) {
				return 0, false, invalid(apperr.ReasonInvalidConcrete, fmt.Sprintf("concrete surface %d needs a positive square footage", i+1))
			}
			total += roundCents(s.SqFt * e.catalog.ConcreteRatePerSqFtCents)
		}
		return total, true, nil
	}

	if len(manual) > 0 {
		var total int64
		for i, cents := range manual {
			if cents < 0 {
				return 0, false, invalid(apperr.ReasonInvalidConcrete, fmt.Sprintf("manual concrete amount %d must not be negative", i+1))
			}
			total += cents
		}
		return total, true, nil
	}

	return 0, false, nil
}

func computeDiscount(subtotal int64, d *Discount) (int64, string, error) {
	if d == nil {
		return 0, "", nil
	}
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
		return 0, "", invalid(apperr.ReasonInvalidDiscount, "discount value must be a number")
	}

	var amount int64
	var label string
	switch d.Type {
	case DiscountPercent:
		if d.Value < 0 || d.Value > 100 {
			return 0, "", invalid(apperr.ReasonInvalidDiscount, "percent discount must be between 0 and 100")
		}
		amount = roundCents(float64(subtotal) * d.Value / 100)
		label = fmt.Sprintf("Discount (%g%%)", d.Value)
	case DiscountAmount:
		if d.Value < 0 {
			return 0, "", invalid(apperr.ReasonInvalidDiscount, "discount amount must not be negative")
		}
		amount = roundCents(d.Value)
		label = "Discount"
	default:
		return 0, "", invalid(apperr.ReasonInvalidDiscount, fmt.Sprintf("unknown discount type %q", d.Type))
	}

	if amount > subtotal {
		amount = subtotal
	}
	return amount, label, nil
}

func (e *Engine) resolveDepositRate(rate *float64) (float64, error) {
	if rate == nil {
		return e.catalog.DefaultDepositRate, nil
	}
	r := *rate
	if math.IsNaN(r) || r <= 0 || r > 1 {
		return 0, invalid(apperr.ReasonInvalidDeposit, "deposit rate must be greater than 0 and at most 1")
	}
	return r, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func invalid(reason, message string) error {
	return apperr.Validation(message).WithReason(reason).WithOp("pricing.CalculateBreakdown")
}
