// Package rates provides EUR conversion rates for the pricing engine. Rates
// are fetched from an external FX source and cached for 12 hours; when the
// source is unreachable the provider degrades to the last known snapshot, or
// to a hardcoded one, so a search never blocks on FX availability.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Snapshot struct {
	JPYToEUR  float64   `json:"jpyToEur"`
	USDToEUR  float64   `json:"usdToEur"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Fallback is used when no rate has ever been fetched successfully.
var Fallback = Snapshot{JPYToEUR: 0.0061, USDToEUR: 0.92}

const cacheTTL = 12 * time.Hour

type Provider struct {
	url    string
	client *http.Client
	log    *slog.Logger

	mu       sync.Mutex
	last     *Snapshot
	fetching bool
	waiters  []chan Snapshot
}

func NewProvider(url string, client *http.Client, logger *slog.Logger) *Provider {
	return &Provider{url: url, client: client, log: logger}
}

// Get returns the current snapshot. Concurrent callers during a refresh
// collapse onto a single upstream fetch. Get never fails.
func (p *Provider) Get(ctx context.Context) Snapshot {
	p.mu.Lock()
	now := time.Now()
	if p.last != nil && now.Sub(p.last.FetchedAt) < cacheTTL {
		s := *p.last
		p.mu.Unlock()
		return s
	}
	if p.fetching {
		ch := make(chan Snapshot, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return p.best()
		case s := <-ch:
			return s
		}
	}
	p.fetching = true
	p.mu.Unlock()

	s, err := p.fetch(ctx)

	p.mu.Lock()
	if err != nil {
		p.log.Warn("rate fetch failed, using stale or fallback rates", "error", err)
		s = p.bestLocked()
	} else {
		p.last = &s
	}
	p.fetching = false
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w <- s
		close(w)
	}
	return s
}

func (p *Provider) best() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bestLocked()
}

func (p *Provider) bestLocked() Snapshot {
	if p.last != nil {
		return *p.last
	}
	return Fallback
}

// The FX endpoint quotes how many units of each currency one EUR buys, so the
// stored multipliers are the reciprocals.
func (p *Provider) fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Snapshot{}, fmt.Errorf("decoding rate response: %w", err)
	}
	jpy, usd := body.Rates["JPY"], body.Rates["USD"]
	if jpy <= 0 || usd <= 0 {
		return Snapshot{}, fmt.Errorf("rate source returned non-positive rates (JPY=%v USD=%v)", jpy, usd)
	}
	return Snapshot{JPYToEUR: 1 / jpy, USDToEUR: 1 / usd, FetchedAt: time.Now()}, nil
}
