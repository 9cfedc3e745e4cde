// Package pricing turns raw supplier quotes into sellable offers: currency
// conversion into EUR, the landed-cost markup for imported stock, delivery
// labels, stock status mapping and supplier feed cleanup. Everything here is
// a pure function over values; adapters call in after parsing their wire data.
package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tsonev198862/autofix-api/internal/validator"
)

type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockOnOrder    StockStatus = "on_order"
	StockOutOfStock StockStatus = "out_of_stock"
)

// Result is the common offer record all suppliers normalize into.
type Result struct {
	PartNumber    string      `json:"partNumber"`
	Description   string      `json:"description"`
	Brand         string      `json:"brand"`
	PriceEUR      float64     `json:"priceEur"`
	SellPrice     float64     `json:"sellPrice"`
	StockStatus   StockStatus `json:"stockStatus"`
	StockQty      int         `json:"stockQty"`
	DeliveryLabel string      `json:"delivery"`
	WeightKg      float64     `json:"weightKg"`
	SourceID      string      `json:"source"`
	SupplierName  string      `json:"supplier"`
}

// Landed-cost constants for imported stock.
const (
	dutyRate        = 0.05
	vatRate         = 0.20
	shippingPerKg   = 12.00
	defaultWeightKg = 0.5
)

// Round2 rounds to cents, half away from zero.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// ToEUR converts an origin-currency price into EUR at the given rate,
// rounded to cents.
func ToEUR(price, rate float64) float64 {
	f, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(rate)).Round(2).Float64()
	return f
}

// Landed computes the sell price for imported stock:
// (priceEUR * (1+duty) + weightKg * shippingPerKg) * (1+vat).
// A missing weight defaults to 0.5 kg.
func Landed(priceEUR, weightKg float64) float64 {
	if weightKg <= 0 {
		weightKg = defaultWeightKg
	}
	price := decimal.NewFromFloat(priceEUR)
	withDuty := price.Mul(decimal.NewFromFloat(1 + dutyRate)).Round(2)
	shipping := decimal.NewFromFloat(weightKg).Mul(decimal.NewFromFloat(shippingPerKg)).Round(2)
	landed := withDuty.Add(shipping).Mul(decimal.NewFromFloat(1 + vatRate)).Round(2)
	f, _ := landed.Float64()
	return f
}

// DeliveryLabel renders a day estimate as "N days" or "N-M days".
func DeliveryLabel(minDays, maxDays int) string {
	if minDays < 0 {
		minDays = 0
	}
	if maxDays <= minDays {
		return fmt.Sprintf("%d days", minDays)
	}
	return fmt.Sprintf("%d-%d days", minDays, maxDays)
}

// StockFromQty maps a raw quantity to the 3-way status. Discontinued lines
// are out of stock regardless of the reported quantity.
func StockFromQty(qty int, discontinued bool) StockStatus {
	switch {
	case discontinued:
		return StockOutOfStock
	case qty > 0:
		return StockInStock
	default:
		return StockOnOrder
	}
}

// Brands whose part numbers are separator-insensitive: catalogue form strips
// separators and uppercases. All other brands pass through unchanged.
var majorBrands = map[string]bool{
	"TOYOTA":     true,
	"LEXUS":      true,
	"NISSAN":     true,
	"HONDA":      true,
	"MAZDA":      true,
	"MITSUBISHI": true,
	"SUBARU":     true,
	"SUZUKI":     true,
	"BMW":        true,
	"VAG":        true,
}

func FormatPartNumber(brand, part string) string {
	if majorBrands[strings.ToUpper(strings.TrimSpace(brand))] {
		return validator.NormalizeStrict(part)
	}
	return part
}

// ExactMatches keeps only results whose normalized part number equals the
// normalized query.
func ExactMatches(results []Result, query string) []Result {
	want := validator.NormalizeStrict(query)
	out := results[:0]
	for _, r := range results {
		if validator.NormalizeStrict(r.PartNumber) == want {
			out = append(out, r)
		}
	}
	return out
}

// ExcludeBrands drops results whose brand appears on the denylist
// (case-insensitive).
func ExcludeBrands(results []Result, denylist []string) []Result {
	if len(denylist) == 0 {
		return results
	}
	banned := make(map[string]bool, len(denylist))
	for _, b := range denylist {
		banned[strings.ToUpper(strings.TrimSpace(b))] = true
	}
	out := results[:0]
	for _, r := range results {
		if !banned[strings.ToUpper(strings.TrimSpace(r.Brand))] {
			out = append(out, r)
		}
	}
	return out
}

// CheapestPerBrand deduplicates a feed keeping the lowest sell price per
// brand, preserving price order within the survivors.
func CheapestPerBrand(results []Result) []Result {
	best := make(map[string]Result, len(results))
	for _, r := range results {
		key := strings.ToUpper(strings.TrimSpace(r.Brand))
		if cur, ok := best[key]; !ok || r.SellPrice < cur.SellPrice {
			best[key] = r
		}
	}
	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SellPrice < out[j].SellPrice })
	return out
}

// OnlyInStock keeps rows the supplier reports as on the shelf.
func OnlyInStock(results []Result) []Result {
	out := results[:0]
	for _, r := range results {
		if r.StockStatus == StockInStock {
			out = append(out, r)
		}
	}
	return out
}
