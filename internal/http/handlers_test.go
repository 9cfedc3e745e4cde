package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ht "github.com/tsonev198862/autofix-api/internal/http"
	"github.com/tsonev198862/autofix-api/internal/models"
	"github.com/tsonev198862/autofix-api/internal/obs"
	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/search"
)

type mockAggregator struct {
	searchFunc func(ctx context.Context, query string) (search.Outcome, error)
	flags      map[string]bool
}

func (m *mockAggregator) Search(ctx context.Context, query string) (search.Outcome, error) {
	return m.searchFunc(ctx, query)
}

func (m *mockAggregator) SessionFlags() map[string]bool { return m.flags }

type mockRateLimiter struct {
	allow bool
}

func (m *mockRateLimiter) Allow(ip string) bool { return m.allow }

func newTestHandler(agg ht.AggregatorService, allow bool) *ht.Handler {
	return ht.NewHandler(agg, &mockRateLimiter{allow: allow}, obs.NewMetrics(prometheus.NewRegistry()))
}

func TestHandlerSearchOK(t *testing.T) {
	agg := &mockAggregator{
		searchFunc: func(ctx context.Context, query string) (search.Outcome, error) {
			return search.Outcome{
				Query:      query,
				Counts:     map[string]int{"impex": 2, "emex": 0},
				TotalCount: 2,
				ElapsedMs:  12,
				Results: []pricing.Result{
					{PartNumber: "P1", SellPrice: 10.50, SourceID: "impex"},
					{PartNumber: "P1", SellPrice: 12.00, SourceID: "impex"},
				},
			}, nil
		},
	}
	h := newTestHandler(agg, true)

	req := httptest.NewRequest("GET", "/search?q=90919-01210", nil)
	req.RemoteAddr = "1.2.3.4:1234"
	w := httptest.NewRecorder()
	h.Search(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "90919-01210", body["query"])
	assert.EqualValues(t, 2, body["totalCount"])
	assert.EqualValues(t, 2, body["impexCount"])
	assert.EqualValues(t, 0, body["emexCount"])
	results, ok := body["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 2)
}

func TestHandlerSearchValidationError(t *testing.T) {
	agg := &mockAggregator{
		searchFunc: func(ctx context.Context, query string) (search.Outcome, error) {
			return search.Outcome{}, fmt.Errorf("%w: part number must be at least 3 characters", models.ErrValidation)
		},
	}
	h := newTestHandler(agg, true)

	req := httptest.NewRequest("GET", "/search?q=ab", nil)
	req.RemoteAddr = "1.2.3.4:1234"
	w := httptest.NewRecorder()
	h.Search(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestHandlerSearchInternalError(t *testing.T) {
	agg := &mockAggregator{
		searchFunc: func(ctx context.Context, query string) (search.Outcome, error) {
			return search.Outcome{}, errors.New("aggregator failed")
		},
	}
	h := newTestHandler(agg, true)

	req := httptest.NewRequest("GET", "/search?q=90919-01210", nil)
	req.RemoteAddr = "1.2.3.4:1234"
	w := httptest.NewRecorder()
	h.Search(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
}

func TestHandlerSearchRateLimited(t *testing.T) {
	agg := &mockAggregator{
		searchFunc: func(ctx context.Context, query string) (search.Outcome, error) {
			t.Fatal("aggregator must not be called when rate limited")
			return search.Outcome{}, nil
		},
	}
	h := newTestHandler(agg, false)

	req := httptest.NewRequest("GET", "/search?q=90919-01210", nil)
	req.RemoteAddr = "1.2.3.4:1234"
	w := httptest.NewRecorder()
	h.Search(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode)
}

func TestHandlerStatus(t *testing.T) {
	agg := &mockAggregator{flags: map[string]bool{"apec": true, "stimo": false}}
	h := newTestHandler(agg, true)

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	h.Status(w, req)

	var body struct {
		Sessions map[string]bool `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&body))
	assert.True(t, body.Sessions["apec"])
	assert.False(t, body.Sessions["stimo"])
}

func TestHandlerHealthz(t *testing.T) {
	h := newTestHandler(&mockAggregator{}, true)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	h.Healthz(w, req)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
}
