package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tsonev198862/autofix-api/internal/config"
	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/rates"
	"github.com/tsonev198862/autofix-api/internal/session"
	"github.com/tsonev198862/autofix-api/internal/validator"
)

// Customer ids stay valid well past this; 30 minutes keeps us clear of the
// upstream's real timeout.
const emexSessionTTL = 30 * time.Minute

// Emex speaks SOAP. The envelopes are tiny and the service predates any
// usable WSDL, so responses are scanned for tag/value pairs directly instead
// of going through an XML parser. Prices are quoted in USD.
type Emex struct {
	baseURL string
	creds   config.Credentials
	client  *http.Client
	log     *slog.Logger

	customer *session.Store
}

func NewEmex(baseURL string, creds config.Credentials, client *http.Client, logger *slog.Logger) *Emex {
	return &Emex{baseURL: baseURL, creds: creds, client: client, log: logger, customer: session.NewStore()}
}

func (s *Emex) ID() string          { return "emex" }
func (s *Emex) Name() string        { return "Emex" }
func (s *Emex) SessionActive() bool { return s.customer.Active() }

const emexLoginEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <Login xmlns="http://emexdwc.ae/">
      <UserName>%s</UserName>
      <Password>%s</Password>
    </Login>
  </soap:Body>
</soap:Envelope>`

const emexSearchEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <SearchPart xmlns="http://emexdwc.ae/">
      <CustomerId>%s</CustomerId>
      <DetailNum>%s</DetailNum>
    </SearchPart>
  </soap:Body>
</soap:Envelope>`

func (s *Emex) soapCall(ctx context.Context, action, envelope string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/service.asmx", strings.NewReader(envelope))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://emexdwc.ae/"+action)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("emex %s: %w", action, err)
	}
	body, err := readBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s returned status %d", ErrBadResponse, action, resp.StatusCode)
	}
	return string(body), nil
}

func (s *Emex) ensureCustomer(ctx context.Context) (string, error) {
	if id, ok := s.customer.Valid(time.Now()); ok {
		return id, nil
	}
	body, err := s.soapCall(ctx, "Login", fmt.Sprintf(emexLoginEnvelope, xmlEscape(s.creds.Username), xmlEscape(s.creds.Password)))
	if err != nil {
		return "", err
	}
	id := xmlTagValue(body, "CustomerId")
	if id == "" || id == "0" {
		return "", fmt.Errorf("%w: login rejected (CustomerId=%q)", ErrAuthFailed, id)
	}
	s.customer.Put(id, emexSessionTTL)
	return id, nil
}

func (s *Emex) Search(ctx context.Context, part string, rs rates.Snapshot) ([]pricing.Result, error) {
	if err := s.creds.Check(); err != nil {
		return nil, err
	}
	customer, err := s.ensureCustomer(ctx)
	if err != nil {
		return nil, err
	}
	body, err := s.soapCall(ctx, "SearchPart", fmt.Sprintf(emexSearchEnvelope, xmlEscape(customer), xmlEscape(validator.NormalizeStrict(part))))
	if err != nil {
		return nil, err
	}
	if strings.Contains(body, "<faultstring>") {
		// the usual fault here is an expired customer id
		s.customer.Invalidate()
		return nil, fmt.Errorf("%w: SOAP fault: %s", ErrAuthFailed, xmlTagValue(body, "faultstring"))
	}
	return s.normalize(parseEmexItems(body), rs), nil
}

type emexItem struct {
	num          string
	make         string
	name         string
	price        float64
	weight       float64
	qty          int
	deliveryDays int
}

// parseEmexItems walks every repeated DetailInfo block and pattern-matches
// the tag/value pairs inside it. English name wins over the local one.
func parseEmexItems(body string) []emexItem {
	var items []emexItem
	for _, block := range xmlTagBlocks(body, "DetailInfo") {
		name := xmlTagValue(block, "DetailNameEng")
		if name == "" {
			name = xmlTagValue(block, "DetailName")
		}
		items = append(items, emexItem{
			num:          xmlTagValue(block, "DetailNum"),
			make:         xmlTagValue(block, "MakeName"),
			name:         name,
			price:        parseFloatTag(block, "Price"),
			weight:       parseFloatTag(block, "Weight"),
			qty:          int(parseFloatTag(block, "Quantity")),
			deliveryDays: int(parseFloatTag(block, "DeliveryDays")),
		})
	}
	return items
}

func (s *Emex) normalize(items []emexItem, rs rates.Snapshot) []pricing.Result {
	out := make([]pricing.Result, 0, len(items))
	for _, it := range items {
		if it.price <= 0 {
			continue
		}
		eur := pricing.ToEUR(it.price, rs.USDToEUR)
		days := it.deliveryDays
		if days <= 0 {
			days = 5
		}
		out = append(out, pricing.Result{
			PartNumber:    pricing.FormatPartNumber(it.make, it.num),
			Description:   it.name,
			Brand:         it.make,
			PriceEUR:      eur,
			SellPrice:     pricing.Landed(eur, it.weight),
			StockStatus:   pricing.StockFromQty(it.qty, false),
			StockQty:      it.qty,
			DeliveryLabel: pricing.DeliveryLabel(days+7, days+10),
			WeightKg:      it.weight,
			SourceID:      s.ID(),
			SupplierName:  s.Name(),
		})
	}
	return out
}

// --- tag scanning over raw XML text ---

var xmlTagRes sync.Map // tag name -> *regexp.Regexp, value form

func tagRe(tag string) *regexp.Regexp {
	if re, ok := xmlTagRes.Load(tag); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `(?:\s[^>]*)?>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	xmlTagRes.Store(tag, re)
	return re
}

// xmlTagValue returns the trimmed text of the first occurrence of tag.
func xmlTagValue(body, tag string) string {
	m := tagRe(tag).FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(xmlUnescape(m[1]))
}

// xmlTagBlocks returns the inner text of every occurrence of tag.
func xmlTagBlocks(body, tag string) []string {
	var blocks []string
	for _, m := range tagRe(tag).FindAllStringSubmatch(body, -1) {
		blocks = append(blocks, m[1])
	}
	return blocks
}

func parseFloatTag(body, tag string) float64 {
	v := strings.ReplaceAll(xmlTagValue(body, tag), ",", ".")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
var xmlUnescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

func xmlEscape(s string) string   { return xmlEscaper.Replace(s) }
func xmlUnescape(s string) string { return xmlUnescaper.Replace(s) }
