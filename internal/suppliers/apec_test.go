package suppliers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsonev198862/autofix-api/internal/config"
)

type apecUpstream struct {
	tokenCalls  int32
	searchCalls int32
	rejectOnce  bool
}

func (u *apecUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.tokenCalls, 1)
		_ = r.ParseForm()
		if r.FormValue("username") != "user" || r.FormValue("password") != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-abc", "expires_in": 3600})
	})
	mux.HandleFunc("/api/delivery-points", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"id": 42}, {"id": 99}})
	})
	mux.HandleFunc("/api/parts/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/brands") {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"brandId": 1, "name": "Apec Braking"},
			{"brandId": 2, "name": "Apec Steering"},
			{"brandId": 3, "name": "Apec Hubs"},
			{"brandId": 4, "name": "Apec Misc"},
		})
	})
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.searchCalls, 1)
		if u.rejectOnce {
			u.rejectOnce = false
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			DeliveryPointID int `json:"deliveryPointId"`
			Items           []struct {
				PartNumber string `json:"partNumber"`
				BrandID    int    `json:"brandId"`
			} `json:"items"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.DeliveryPointID != 42 || len(req.Items) != 3 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		nilPrice := map[string]any{"partNumber": "PAD1001", "brand": "Apec Misc", "price": nil}
		json.NewEncoder(w).Encode([]map[string]any{
			{"partNumber": "PAD1001", "description": "Brake pad set", "brand": "Apec Braking", "price": 34.5, "qty": 6, "deliveryDays": 2},
			{"partNumber": "PAD1001", "description": "Brake pad set", "brand": "Apec Steering", "price": -1.0, "qty": 2},
			nilPrice,
		})
	})
	return mux
}

func newTestApec(t *testing.T, u *apecUpstream) (*Apec, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(u.handler())
	t.Cleanup(srv.Close)
	s, err := NewApec(srv.URL, config.Credentials{Username: "user", Password: "pass"}, srv.Client(), testLogger())
	require.NoError(t, err)
	return s, srv
}

func TestApecMissingCredentials(t *testing.T) {
	_, err := NewApec("http://example.invalid", config.Credentials{}, http.DefaultClient, testLogger())
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestApecSearch(t *testing.T) {
	u := &apecUpstream{}
	s, _ := newTestApec(t, u)

	res, err := s.Search(context.Background(), "pad 1001", testRates)
	require.NoError(t, err)

	// null and non-positive prices are dropped
	require.Len(t, res, 1)
	assert.Equal(t, "PAD1001", res[0].PartNumber)
	assert.Equal(t, 34.5, res[0].PriceEUR)
	assert.Equal(t, res[0].PriceEUR, res[0].SellPrice)
	assert.Equal(t, "2-3 days", res[0].DeliveryLabel)
	assert.Equal(t, "apec", res[0].SourceID)
}

func TestApecTokenCachedAcrossSearches(t *testing.T) {
	u := &apecUpstream{}
	s, _ := newTestApec(t, u)

	_, err := s.Search(context.Background(), "PAD1001", testRates)
	require.NoError(t, err)
	_, err = s.Search(context.Background(), "PAD1001", testRates)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&u.tokenCalls))
	assert.True(t, s.SessionActive())
}

func TestApecReloginOnceOn401(t *testing.T) {
	u := &apecUpstream{rejectOnce: true}
	s, _ := newTestApec(t, u)

	res, err := s.Search(context.Background(), "PAD1001", testRates)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	// first token, then a fresh one after the 401
	assert.EqualValues(t, 2, atomic.LoadInt32(&u.tokenCalls))
}

func TestApecNoBrandsMeansEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-abc", "expires_in": 3600})
	})
	mux.HandleFunc("/api/parts/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := NewApec(srv.URL, config.Credentials{Username: "user", Password: "pass"}, srv.Client(), testLogger())
	require.NoError(t, err)

	res, err := s.Search(context.Background(), "PAD1001", testRates)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestApecWarmupPrimesTokenAndDeliveryPoint(t *testing.T) {
	u := &apecUpstream{}
	s, _ := newTestApec(t, u)

	require.NoError(t, s.Warmup(context.Background()))
	assert.True(t, s.SessionActive())
	assert.EqualValues(t, 1, atomic.LoadInt32(&u.tokenCalls))

	// search reuses everything the warmup fetched
	_, err := s.Search(context.Background(), "PAD1001", testRates)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&u.tokenCalls))
}
