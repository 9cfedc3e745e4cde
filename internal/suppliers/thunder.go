package suppliers

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/tsonev198862/autofix-api/internal/config"
	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/rates"
	"github.com/tsonev198862/autofix-api/internal/session"
	"github.com/tsonev198862/autofix-api/internal/validator"
)

const thunderSessionTTL = 30 * time.Minute

// Thunder wraps the PitMax warehouse RPC: pipe-delimited call signatures over
// plain POST, responses as prefixed pseudo-JSON string tables carrying no
// field names at all. Field identity is recovered by shape heuristics, which
// is the best the wire format allows. Prices are quoted in USD.
//
// The upstream serves an expired certificate chain it refuses to fix, so TLS
// verification is disabled for this host only.
type Thunder struct {
	baseURL string
	creds   config.Credentials
	client  *http.Client
	log     *slog.Logger

	sess *session.Store
}

func NewThunder(baseURL string, creds config.Credentials, timeout time.Duration, logger *slog.Logger) *Thunder {
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return &Thunder{baseURL: baseURL, creds: creds, client: client, log: logger, sess: session.NewStore()}
}

func (s *Thunder) ID() string          { return "thunder" }
func (s *Thunder) Name() string        { return "PitMax" }
func (s *Thunder) SessionActive() bool { return s.sess.Active() }

// call posts a pipe-delimited payload with the fixed protocol headers.
func (s *Thunder) call(ctx context.Context, sessionID string, fields ...string) (string, error) {
	payload := strings.Join(fields, "|")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rpc", strings.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Proto-Version", "2")
	req.Header.Set("X-Client", "autofix")
	if sessionID != "" {
		req.Header.Set("Cookie", "sid="+sessionID)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("thunder rpc: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: rpc returned status %d", ErrBadResponse, resp.StatusCode)
	}
	return string(body), nil
}

func (s *Thunder) ensureSession(ctx context.Context) (string, error) {
	if sid, ok := s.sess.Valid(time.Now()); ok {
		return sid, nil
	}
	if err := s.creds.Check(); err != nil {
		return "", err
	}
	body, err := s.call(ctx, "", "1", "login", s.creds.Username, s.creds.Password)
	if err != nil {
		return "", err
	}
	// success is a fixed prefix followed by the session id
	rest, ok := strings.CutPrefix(body, "ok|")
	if !ok {
		return "", fmt.Errorf("%w: login response %q", ErrAuthFailed, truncate(body, 40))
	}
	sid, _, _ := strings.Cut(rest, "|")
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return "", fmt.Errorf("%w: empty session id", ErrAuthFailed)
	}
	s.sess.Put(sid, thunderSessionTTL)
	return sid, nil
}

func (s *Thunder) Search(ctx context.Context, part string, rs rates.Snapshot) ([]pricing.Result, error) {
	sid, err := s.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	findBody, err := s.call(ctx, sid, "2", "findproduct", validator.NormalizeStrict(part))
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(findBody, "err|auth") {
		s.sess.Invalidate()
		return nil, fmt.Errorf("%w: session rejected", ErrAuthFailed)
	}
	tokens := parseStringTable(findBody)
	if len(tokens) == 0 {
		return nil, nil
	}
	prod := recoverProduct(tokens)
	if prod.id == "" {
		return nil, nil
	}

	availBody, err := s.call(ctx, sid, "2", "getavailability", prod.id)
	if err != nil {
		return nil, err
	}
	options := scanOptions(parseStringTable(availBody))
	return s.normalize(prod, options, rs), nil
}

// --- pseudo-JSON string table parsing ---

var quotedStringRe = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

// parseStringTable extracts the quoted strings from the bracket-delimited
// blob after the response prefix. The payload looks like JSON but is not
// (bare tokens, trailing commas), so brackets are matched by depth and, if
// that fails, the quoted strings are scanned out directly.
func parseStringTable(body string) []string {
	start := strings.IndexByte(body, '[')
	if start < 0 {
		return nil
	}
	depth := 0
	end := -1
	inString := false
	escaped := false
	for i := start; i < len(body); i++ {
		c := body[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	region := body[start:]
	if end >= 0 {
		region = body[start : end+1]
	}
	var tokens []string
	for _, m := range quotedStringRe.FindAllStringSubmatch(region, -1) {
		t := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(m[1], `\"`, `"`), `\\`, `\`))
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// --- heuristic field recovery ---

type thunderProduct struct {
	id     string
	oem    string
	name   string
	brand  string
	weight float64
}

var (
	allDigitsRe  = regexp.MustCompile(`^\d+$`)
	oemTokenRe   = regexp.MustCompile(`^[A-Za-z0-9-]{5,}$`)
	alphaTokenRe = regexp.MustCompile(`^[A-Za-z]{2,12}$`)
	weightRe     = regexp.MustCompile(`^\d{1,3}[.,]\d{1,3}$`)
)

func hasNonLatinScript(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.In(r, unicode.Latin) {
			return true
		}
	}
	return false
}

// recoverProduct assigns fields purely by token shape, since the wire format
// carries no names for instance data:
//
//	product id — first all-digit token of length >= 5
//	OEM number — first alphanumeric-with-dashes token of length >= 5 that is
//	             not purely numeric
//	name       — first token containing non-Latin script
//	brand      — last short alphabetic token
//	weight     — first token matching a small decimal
func recoverProduct(tokens []string) thunderProduct {
	var p thunderProduct
	for _, t := range tokens {
		switch {
		case p.id == "" && len(t) >= 5 && allDigitsRe.MatchString(t):
			p.id = t
		case p.oem == "" && oemTokenRe.MatchString(t) && !allDigitsRe.MatchString(t):
			p.oem = t
		case p.name == "" && hasNonLatinScript(t):
			p.name = t
		case p.weight == 0 && weightRe.MatchString(t):
			p.weight, _ = strconv.ParseFloat(strings.ReplaceAll(t, ",", "."), 64)
		}
		if alphaTokenRe.MatchString(t) {
			p.brand = t
		}
	}
	return p
}

// --- availability option scanning ---

type thunderOption struct {
	price float64
	days  int
	kind  string
}

// Availability responses interleave label strings with unnamed numbers. For
// every known label the next few tokens are scanned for a decimal price and a
// plausible lead time.
var thunderLabels = map[string]string{
	"заказ":           "order",
	"клиентская цена": "client",
}

const optionScanWindow = 5

func scanOptions(tokens []string) []thunderOption {
	var options []thunderOption
	for i, t := range tokens {
		kind, ok := thunderLabels[strings.ToLower(t)]
		if !ok {
			continue
		}
		opt := thunderOption{kind: kind, days: -1}
		for j := i + 1; j < len(tokens) && j <= i+optionScanWindow; j++ {
			v := strings.ReplaceAll(tokens[j], ",", ".")
			if opt.price == 0 && strings.Contains(v, ".") {
				if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
					opt.price = f
					continue
				}
			}
			if opt.days < 0 && allDigitsRe.MatchString(tokens[j]) {
				if n, err := strconv.Atoi(tokens[j]); err == nil && n <= 365 {
					opt.days = n
				}
			}
		}
		if opt.price > 0 || opt.days >= 0 {
			options = append(options, opt)
		}
	}
	return options
}

// selectOptions picks the cheapest option and, when a distinct option is
// strictly faster, that one as well. The asymmetry mirrors the upstream's
// observed behavior and is kept deliberately. Options without a price cannot
// be quoted and are never selected.
func selectOptions(options []thunderOption) []thunderOption {
	var priced []thunderOption
	for _, o := range options {
		if o.price > 0 {
			priced = append(priced, o)
		}
	}
	if len(priced) == 0 {
		return nil
	}
	cheapest := priced[0]
	for _, o := range priced[1:] {
		if o.price < cheapest.price {
			cheapest = o
		}
	}
	out := []thunderOption{cheapest}
	fastest := cheapest
	for _, o := range priced {
		if o.days >= 0 && (fastest.days < 0 || o.days < fastest.days) {
			fastest = o
		}
	}
	if fastest != cheapest && fastest.days >= 0 && (cheapest.days < 0 || fastest.days < cheapest.days) {
		out = append(out, fastest)
	}
	return out
}

func (s *Thunder) normalize(p thunderProduct, options []thunderOption, rs rates.Snapshot) []pricing.Result {
	selected := selectOptions(options)
	out := make([]pricing.Result, 0, len(selected))
	for i, o := range selected {
		if o.price <= 0 {
			continue
		}
		eur := pricing.ToEUR(o.price, rs.USDToEUR)
		days := o.days
		if days < 0 {
			days = 10
		}
		desc := p.name
		if i > 0 {
			desc += " (fastest option)"
		}
		out = append(out, pricing.Result{
			PartNumber:    pricing.FormatPartNumber(p.brand, p.oem),
			Description:   desc,
			Brand:         p.brand,
			PriceEUR:      eur,
			SellPrice:     eur,
			StockStatus:   pricing.StockOnOrder,
			StockQty:      0,
			DeliveryLabel: pricing.DeliveryLabel(days+2, days+4),
			WeightKg:      p.weight,
			SourceID:      s.ID(),
			SupplierName:  s.Name(),
		})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
