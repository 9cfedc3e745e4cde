package suppliers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsonev198862/autofix-api/internal/config"
	"github.com/tsonev198862/autofix-api/internal/pricing"
)

const emexLoginOK = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body><LoginResponse><LoginResult><CustomerId>77812</CustomerId></LoginResult></LoginResponse></soap:Body>
</soap:Envelope>`

const emexLoginRejected = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body><LoginResponse><LoginResult><CustomerId>0</CustomerId></LoginResult></LoginResponse></soap:Body>
</soap:Envelope>`

const emexSearchResponse = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
 <soap:Body><SearchPartResponse><SearchPartResult>
  <DetailInfo>
    <DetailNum>31110-25000</DetailNum>
    <MakeName>Hyundai</MakeName>
    <DetailName>Насос топливный</DetailName>
    <DetailNameEng>Fuel pump</DetailNameEng>
    <Price>45.50</Price>
    <Weight>1.2</Weight>
    <Quantity>4</Quantity>
    <DeliveryDays>9</DeliveryDays>
  </DetailInfo>
  <DetailInfo>
    <DetailNum>31110-25000</DetailNum>
    <MakeName>Mando</MakeName>
    <DetailName>Насос</DetailName>
    <Price>0</Price>
    <Quantity>2</Quantity>
  </DetailInfo>
 </SearchPartResult></SearchPartResponse></soap:Body>
</soap:Envelope>`

func TestParseEmexItems(t *testing.T) {
	items := parseEmexItems(emexSearchResponse)
	require.Len(t, items, 2)

	assert.Equal(t, "31110-25000", items[0].num)
	assert.Equal(t, "Hyundai", items[0].make)
	assert.Equal(t, "Fuel pump", items[0].name) // English name wins
	assert.Equal(t, 45.50, items[0].price)
	assert.Equal(t, 1.2, items[0].weight)
	assert.Equal(t, 4, items[0].qty)
	assert.Equal(t, 9, items[0].deliveryDays)

	// no English name: local fallback
	assert.Equal(t, "Насос", items[1].name)
	assert.Equal(t, 0.0, items[1].price)
}

func TestXMLTagScanning(t *testing.T) {
	body := `<A attr="x"> first </A><B>&amp;val</B><A>second</A>`
	assert.Equal(t, "first", xmlTagValue(body, "A"))
	assert.Equal(t, "&val", xmlTagValue(body, "B"))
	assert.Equal(t, "", xmlTagValue(body, "C"))
	assert.Len(t, xmlTagBlocks(body, "A"), 2)
}

func emexServer(t *testing.T, loginBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body := string(raw)
		switch {
		case strings.Contains(body, "<Login"):
			io.WriteString(w, loginBody)
		case strings.Contains(body, "<SearchPart"):
			if !strings.Contains(body, "<CustomerId>77812</CustomerId>") {
				io.WriteString(w, `<faultstring>invalid session</faultstring>`)
				return
			}
			io.WriteString(w, emexSearchResponse)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmexSearch(t *testing.T) {
	srv := emexServer(t, emexLoginOK)
	s := NewEmex(srv.URL, config.Credentials{Username: "u", Password: "p"}, srv.Client(), testLogger())

	res, err := s.Search(context.Background(), "31110-25000", testRates)
	require.NoError(t, err)
	require.Len(t, res, 1) // zero-price row filtered

	r := res[0]
	assert.Equal(t, "Hyundai", r.Brand)
	assert.Equal(t, "Fuel pump", r.Description)
	assert.Equal(t, pricing.ToEUR(45.50, testRates.USDToEUR), r.PriceEUR)
	assert.Equal(t, pricing.Landed(r.PriceEUR, 1.2), r.SellPrice)
	assert.Equal(t, "16-19 days", r.DeliveryLabel)
	assert.Equal(t, "emex", r.SourceID)
	assert.True(t, s.SessionActive())
}

func TestEmexLoginRejected(t *testing.T) {
	srv := emexServer(t, emexLoginRejected)
	s := NewEmex(srv.URL, config.Credentials{Username: "u", Password: "p"}, srv.Client(), testLogger())

	_, err := s.Search(context.Background(), "31110-25000", testRates)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, s.SessionActive())
}

func TestEmexFaultInvalidatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if strings.Contains(string(raw), "<Login") {
			io.WriteString(w, emexLoginOK)
			return
		}
		io.WriteString(w, `<soap:Envelope><soap:Body><soap:Fault><faultstring>session expired</faultstring></soap:Fault></soap:Body></soap:Envelope>`)
	}))
	defer srv.Close()

	s := NewEmex(srv.URL, config.Credentials{Username: "u", Password: "p"}, srv.Client(), testLogger())
	_, err := s.Search(context.Background(), "31110-25000", testRates)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.False(t, s.SessionActive())
}

func TestEmexMissingCredentials(t *testing.T) {
	s := NewEmex("http://example.invalid", config.Credentials{}, http.DefaultClient, testLogger())
	_, err := s.Search(context.Background(), "31110-25000", testRates)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}
