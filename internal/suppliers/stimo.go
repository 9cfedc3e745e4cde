package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/tsonev198862/autofix-api/internal/config"
	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/rates"
	"github.com/tsonev198862/autofix-api/internal/session"
	"github.com/tsonev198862/autofix-api/internal/validator"
)

// The upstream drops sessions after about half an hour; 25 minutes avoids
// searching on a session in its last moments.
const stimoSessionTTL = 25 * time.Minute

// Markers on the scraped pages. If the shop's markup changes these are the
// only strings that need adjusting.
const (
	stimoLoginPrompt      = "Вход в систему"
	stimoResultsMarker    = `id="results"`
	stimoHeaderLabel      = "артикул"
	stimoOutOfStockMarker = "нет в наличии"
)

// Stimo has no API at all; the adapter logs in like a browser (three requests
// accumulating cookies) and scrapes the search results table. Pages are
// served as Windows-1251. Prices are quoted in EUR with comma decimals.
type Stimo struct {
	baseURL string
	creds   config.Credentials
	client  *http.Client
	log     *slog.Logger

	cookies *session.Store
}

func NewStimo(baseURL string, creds config.Credentials, client *http.Client, logger *slog.Logger) *Stimo {
	// redirects are followed manually so Set-Cookie headers on the
	// intermediate responses are not lost
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Stimo{baseURL: baseURL, creds: creds, client: &c, log: logger, cookies: session.NewStore()}
}

func (s *Stimo) ID() string          { return "stimo" }
func (s *Stimo) Name() string        { return "Stimo" }
func (s *Stimo) SessionActive() bool { return s.cookies.Active() }

// cookieSet accumulates cookies across the login sequence. A later value for
// the same name overwrites the earlier one; insertion order is preserved.
type cookieSet struct {
	order []string
	vals  map[string]string
}

func newCookieSet() *cookieSet {
	return &cookieSet{vals: make(map[string]string)}
}

func (c *cookieSet) absorb(resp *http.Response) {
	for _, sc := range resp.Header.Values("Set-Cookie") {
		pair, _, _ := strings.Cut(sc, ";")
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		if _, seen := c.vals[name]; !seen {
			c.order = append(c.order, name)
		}
		c.vals[name] = value
	}
}

func (c *cookieSet) String() string {
	parts := make([]string, 0, len(c.order))
	for _, name := range c.order {
		parts = append(parts, name+"="+c.vals[name])
	}
	return strings.Join(parts, "; ")
}

func (s *Stimo) ensureCookies(ctx context.Context) (string, error) {
	if ck, ok := s.cookies.Valid(time.Now()); ok {
		return ck, nil
	}
	return s.login(ctx)
}

// login walks the browser's three-step sequence: home page for the initial
// cookie, credentials POST, then the post-login redirect.
func (s *Stimo) login(ctx context.Context) (string, error) {
	if err := s.creds.Check(); err != nil {
		return "", err
	}
	jar := newCookieSet()

	resp, err := s.get(ctx, s.baseURL+"/", "")
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	jar.absorb(resp)

	form := url.Values{}
	form.Set("login", s.creds.Username)
	form.Set("password", s.creds.Password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/login.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", jar.String())
	resp, err = s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stimo login: %w", err)
	}
	resp.Body.Close()
	jar.absorb(resp)

	if loc := resp.Header.Get("Location"); loc != "" {
		target := loc
		if strings.HasPrefix(loc, "/") {
			target = s.baseURL + loc
		}
		resp, err = s.get(ctx, target, jar.String())
		if err != nil {
			return "", err
		}
		resp.Body.Close()
		jar.absorb(resp)
	}

	ck := jar.String()
	if ck == "" {
		return "", fmt.Errorf("%w: no session cookies after login", ErrAuthFailed)
	}
	s.cookies.Put(ck, stimoSessionTTL)
	return ck, nil
}

func (s *Stimo) get(ctx context.Context, target, cookies string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stimo request: %w", err)
	}
	return resp, nil
}

func (s *Stimo) Search(ctx context.Context, part string, rs rates.Snapshot) ([]pricing.Result, error) {
	ck, err := s.ensureCookies(ctx)
	if err != nil {
		return nil, err
	}
	code := validator.NormalizeLoose(part)
	resp, err := s.get(ctx, s.baseURL+"/search.php?code="+url.QueryEscape(code), ck)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search page returned status %d", ErrBadResponse, resp.StatusCode)
	}

	page, err := charmap.Windows1251.NewDecoder().String(string(raw))
	if err != nil {
		page = string(raw)
	}

	// A login prompt without the results section means the session died
	// upstream. Invalidate and come back empty; the next request re-logs-in.
	if strings.Contains(page, stimoLoginPrompt) && !strings.Contains(page, stimoResultsMarker) {
		s.cookies.Invalidate()
		return nil, fmt.Errorf("%w: session rejected by search page", ErrAuthFailed)
	}

	return s.normalize(parseStimoTable(page)), nil
}

type stimoRow struct {
	code         string
	brand        string
	name         string
	price        float64
	qty          int
	availability string
	weight       float64
	delivery     string
}

var (
	stimoRowRe  = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	stimoCellRe = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
	htmlTagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
)

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

func cleanCell(s string) string {
	return strings.TrimSpace(htmlEntities.Replace(htmlTagRe.ReplaceAllString(s, "")))
}

// parseStimoTable extracts the 8-column results table row by row. Header rows
// (first cell equal to the column label, case-insensitive) and rows with an
// empty key cell are skipped.
func parseStimoTable(page string) []stimoRow {
	var rows []stimoRow
	for _, rm := range stimoRowRe.FindAllStringSubmatch(page, -1) {
		cells := stimoCellRe.FindAllStringSubmatch(rm[1], -1)
		if len(cells) < 8 {
			continue
		}
		vals := make([]string, 8)
		for i := 0; i < 8; i++ {
			vals[i] = cleanCell(cells[i][1])
		}
		if vals[0] == "" || strings.EqualFold(vals[0], stimoHeaderLabel) {
			continue
		}
		qty, _ := strconv.Atoi(strings.TrimSpace(vals[4]))
		rows = append(rows, stimoRow{
			code:         vals[0],
			brand:        vals[1],
			name:         vals[2],
			price:        parseCommaPrice(vals[3]),
			qty:          qty,
			availability: vals[5],
			weight:       parseCommaPrice(vals[6]),
			delivery:     vals[7],
		})
	}
	return rows
}

// parseCommaPrice handles "12,50 €" style values: currency symbols stripped,
// comma as the decimal separator.
func parseCommaPrice(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// Stimo is a local warehouse: EUR prices pass through, and only rows without
// the out-of-stock marker are offered.
func (s *Stimo) normalize(rows []stimoRow) []pricing.Result {
	out := make([]pricing.Result, 0, len(rows))
	for _, r := range rows {
		if r.price <= 0 {
			continue
		}
		inStock := !strings.Contains(strings.ToLower(r.availability), stimoOutOfStockMarker)
		status := pricing.StockInStock
		if !inStock {
			status = pricing.StockOutOfStock
		}
		eur := pricing.Round2(r.price)
		label := r.delivery
		if label == "" {
			label = pricing.DeliveryLabel(1, 2)
		}
		out = append(out, pricing.Result{
			PartNumber:    pricing.FormatPartNumber(r.brand, r.code),
			Description:   r.name,
			Brand:         r.brand,
			PriceEUR:      eur,
			SellPrice:     eur,
			StockStatus:   status,
			StockQty:      r.qty,
			DeliveryLabel: label,
			WeightKg:      r.weight,
			SourceID:      s.ID(),
			SupplierName:  s.Name(),
		})
	}
	return pricing.OnlyInStock(out)
}
