package suppliers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/rates"
	"github.com/tsonev198862/autofix-api/internal/validator"
)

// Impex is the Japanese stock feed: a stateless JSON API queried with a fixed
// API key. Prices arrive in JPY and are sold at landed cost.
type Impex struct {
	baseURL        string
	apiKey         string
	excludedBrands []string
	client         *http.Client
	log            *slog.Logger
}

func NewImpex(baseURL, apiKey string, excludedBrands []string, client *http.Client, logger *slog.Logger) *Impex {
	return &Impex{baseURL: baseURL, apiKey: apiKey, excludedBrands: excludedBrands, client: client, log: logger}
}

func (s *Impex) ID() string   { return "impex" }
func (s *Impex) Name() string { return "Impex Japan" }

type impexItem struct {
	Number       string  `json:"number"`
	Name         string  `json:"name"`
	Brand        string  `json:"brand"`
	Price        float64 `json:"price"`
	Weight       float64 `json:"weight"`
	Stock        int     `json:"stock"`
	DeliveryDays int     `json:"delivery_days"`
	Discontinued bool    `json:"discontinued"`
}

func (s *Impex) Search(ctx context.Context, part string, rs rates.Snapshot) ([]pricing.Result, error) {
	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("code", validator.NormalizeStrict(part))
	// fixed pricing-factor parameters expected by the upstream
	q.Set("rate1", "1.0")
	q.Set("rate2", "1.0")
	q.Set("firm", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("impex request: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		s.log.Warn("impex returned non-OK status", "status", resp.StatusCode)
		return nil, nil
	}

	var payload struct {
		Items []impexItem `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, err)
	}
	if len(payload.Items) == 0 {
		return nil, nil
	}
	return s.normalize(payload.Items, rs, part), nil
}

// normalize converts JPY quotes to landed EUR prices, keeps only exact
// matches for the queried number, drops denylisted aftermarket brands and
// keeps the cheapest offer per brand.
func (s *Impex) normalize(items []impexItem, rs rates.Snapshot, query string) []pricing.Result {
	out := make([]pricing.Result, 0, len(items))
	for _, it := range items {
		if it.Price <= 0 {
			continue
		}
		eur := pricing.ToEUR(it.Price, rs.JPYToEUR)
		days := it.DeliveryDays
		if days <= 0 {
			days = 7
		}
		out = append(out, pricing.Result{
			PartNumber:    pricing.FormatPartNumber(it.Brand, it.Number),
			Description:   it.Name,
			Brand:         it.Brand,
			PriceEUR:      eur,
			SellPrice:     pricing.Landed(eur, it.Weight),
			StockStatus:   pricing.StockFromQty(it.Stock, it.Discontinued),
			StockQty:      it.Stock,
			DeliveryLabel: pricing.DeliveryLabel(days+14, days+21),
			WeightKg:      it.Weight,
			SourceID:      s.ID(),
			SupplierName:  s.Name(),
		})
	}
	out = pricing.ExactMatches(out, query)
	out = pricing.ExcludeBrands(out, s.excludedBrands)
	return pricing.CheapestPerBrand(out)
}
