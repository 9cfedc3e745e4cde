package suppliers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tsonev198862/autofix-api/internal/config"
	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/rates"
	"github.com/tsonev198862/autofix-api/internal/session"
	"github.com/tsonev198862/autofix-api/internal/validator"
)

// Token expiry safety margin: never use a bearer token in its last minutes.
const apecTokenMargin = 5 * time.Minute

// Apec is the European distributor behind an OAuth-style API: password-grant
// bearer token, a delivery-point lookup the search depends on, and a
// two-stage brand-filtered search. Prices are quoted in EUR.
type Apec struct {
	baseURL string
	creds   config.Credentials
	client  *http.Client
	log     *slog.Logger

	token *session.Store

	dpMu       sync.Mutex
	dpLoaded   bool
	deliveryID int
}

// NewApec fails when credentials are missing; only this supplier is disabled.
func NewApec(baseURL string, creds config.Credentials, client *http.Client, logger *slog.Logger) (*Apec, error) {
	if err := creds.Check(); err != nil {
		return nil, fmt.Errorf("apec: %w", err)
	}
	return &Apec{baseURL: baseURL, creds: creds, client: client, log: logger, token: session.NewStore()}, nil
}

func (s *Apec) ID() string          { return "apec" }
func (s *Apec) Name() string        { return "APEC" }
func (s *Apec) SessionActive() bool { return s.token.Active() }

// Warmup acquires the token and the delivery point ahead of the fan-out.
func (s *Apec) Warmup(ctx context.Context) error {
	tok, err := s.ensureToken(ctx)
	if err != nil {
		return err
	}
	_, err = s.deliveryPoint(ctx, tok)
	return err
}

func (s *Apec) ensureToken(ctx context.Context) (string, error) {
	if tok, ok := s.token.Valid(time.Now()); ok {
		return tok, nil
	}
	return s.login(ctx)
}

func (s *Apec) login(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", s.creds.Username)
	form.Set("password", s.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("apec token request: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadResponse, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - apecTokenMargin
	if ttl <= 0 {
		ttl = time.Duration(tok.ExpiresIn) * time.Second / 2
	}
	s.token.Put(tok.AccessToken, ttl)
	return tok.AccessToken, nil
}

// deliveryPoint is fetched once and kept for the process lifetime. The first
// configured point wins; without one the upstream accepts 0.
func (s *Apec) deliveryPoint(ctx context.Context, tok string) (int, error) {
	s.dpMu.Lock()
	if s.dpLoaded {
		id := s.deliveryID
		s.dpMu.Unlock()
		return id, nil
	}
	s.dpMu.Unlock()

	var points []struct {
		ID int `json:"id"`
	}
	if err := s.getJSON(ctx, "/api/delivery-points", tok, &points); err != nil {
		return 0, err
	}
	id := 0
	if len(points) > 0 {
		id = points[0].ID
	}

	s.dpMu.Lock()
	s.dpLoaded = true
	s.deliveryID = id
	s.dpMu.Unlock()
	return id, nil
}

func (s *Apec) getJSON(ctx context.Context, path, tok string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		s.token.Invalidate()
		return fmt.Errorf("%w: status 401 on %s", ErrAuthFailed, path)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d on %s", ErrBadResponse, resp.StatusCode, path)
	}
	return json.Unmarshal(body, out)
}

type apecItem struct {
	PartNumber   string   `json:"partNumber"`
	Description  string   `json:"description"`
	Brand        string   `json:"brand"`
	Price        *float64 `json:"price"`
	Qty          int      `json:"qty"`
	DeliveryDays int      `json:"deliveryDays"`
}

func (s *Apec) Search(ctx context.Context, part string, rs rates.Snapshot) ([]pricing.Result, error) {
	items, err := s.search(ctx, part)
	if err != nil {
		// one re-login-and-retry on a stale token, nothing more
		if !errors.Is(err, ErrAuthFailed) {
			return nil, err
		}
		if _, lerr := s.login(ctx); lerr != nil {
			return nil, lerr
		}
		if items, err = s.search(ctx, part); err != nil {
			return nil, err
		}
	}
	return s.normalize(items), nil
}

func (s *Apec) search(ctx context.Context, part string) ([]apecItem, error) {
	tok, err := s.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	code := validator.NormalizeStrict(part)

	var brands []struct {
		BrandID int    `json:"brandId"`
		Name    string `json:"name"`
	}
	if err := s.getJSON(ctx, "/api/parts/"+url.PathEscape(code)+"/brands", tok, &brands); err != nil {
		return nil, err
	}
	if len(brands) == 0 {
		return nil, nil
	}
	if len(brands) > 3 {
		brands = brands[:3]
	}

	dp, err := s.deliveryPoint(ctx, tok)
	if err != nil {
		return nil, err
	}

	reqBody := struct {
		DeliveryPointID int `json:"deliveryPointId"`
		Items           []struct {
			PartNumber string `json:"partNumber"`
			BrandID    int    `json:"brandId"`
		} `json:"items"`
	}{DeliveryPointID: dp}
	for _, b := range brands {
		reqBody.Items = append(reqBody.Items, struct {
			PartNumber string `json:"partNumber"`
			BrandID    int    `json:"brandId"`
		}{PartNumber: code, BrandID: b.BrandID})
	}
	raw, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/search", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apec search: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		s.token.Invalidate()
		return nil, fmt.Errorf("%w: status 401 on search", ErrAuthFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d on search", ErrBadResponse, resp.StatusCode)
	}

	var items []apecItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, err)
	}
	return items, nil
}

// APEC quotes EUR; the sell price passes through unchanged.
func (s *Apec) normalize(items []apecItem) []pricing.Result {
	out := make([]pricing.Result, 0, len(items))
	for _, it := range items {
		if it.Price == nil || *it.Price <= 0 {
			continue
		}
		eur := pricing.Round2(*it.Price)
		days := it.DeliveryDays
		if days <= 0 {
			days = 2
		}
		out = append(out, pricing.Result{
			PartNumber:    pricing.FormatPartNumber(it.Brand, it.PartNumber),
			Description:   it.Description,
			Brand:         it.Brand,
			PriceEUR:      eur,
			SellPrice:     eur,
			StockStatus:   pricing.StockFromQty(it.Qty, false),
			StockQty:      it.Qty,
			DeliveryLabel: pricing.DeliveryLabel(days, days+1),
			SourceID:      s.ID(),
			SupplierName:  s.Name(),
		})
	}
	return out
}
