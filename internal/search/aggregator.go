package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tsonev198862/autofix-api/internal/models"
	"github.com/tsonev198862/autofix-api/internal/obs"
	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/rates"
)

// MaxResults caps the merged, price-sorted result list.
const MaxResults = 60

// Aggregator fans a part query out to all suppliers concurrently and merges
// whatever came back. One supplier failing never fails the search.
type Aggregator struct {
	sources       []Source
	rates         *rates.Provider
	sourceTimeout time.Duration
	metrics       *obs.Metrics
	log           *slog.Logger
}

func NewAggregator(sources []Source, rp *rates.Provider, sourceTimeout time.Duration, m *obs.Metrics, logger *slog.Logger) *Aggregator {
	return &Aggregator{sources: sources, rates: rp, sourceTimeout: sourceTimeout, metrics: m, log: logger}
}

func (a *Aggregator) Search(ctx context.Context, query string) (Outcome, error) {
	start := time.Now()

	q, err := models.NewPartQuery(query)
	if err != nil {
		return Outcome{}, err
	}

	// Rates and token-auth session warmup run before the fan-out, in parallel
	// with each other. Warmup is best-effort; its supplier degrades on its own.
	var (
		rs     rates.Snapshot
		warmWG sync.WaitGroup
	)
	warmWG.Add(1)
	go func() {
		defer warmWG.Done()
		rs = a.rates.Get(ctx)
	}()
	for _, s := range a.sources {
		w, ok := s.(Warmer)
		if !ok {
			continue
		}
		warmWG.Add(1)
		go func(id string) {
			defer warmWG.Done()
			if err := w.Warmup(ctx); err != nil {
				a.log.Warn("supplier warmup failed", "supplier", id, "error", err)
			}
		}(s.ID())
	}
	warmWG.Wait()

	resCh := make(chan sourceResult, len(a.sources))
	var wg sync.WaitGroup
	for _, s := range a.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.log.Error("supplier panic recovered", "supplier", src.ID(), "panic", r)
					a.metrics.IncSupplierFailure(src.ID())
					resCh <- sourceResult{id: src.ID(), err: fmt.Errorf("panic: %v", r)}
				}
			}()

			cctx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
			defer cancel()

			callStart := time.Now()
			items, err := src.Search(cctx, q.Raw, rs)
			a.metrics.ObserveSupplierLatency(src.ID(), time.Since(callStart).Seconds())

			if err != nil {
				a.metrics.IncSupplierFailure(src.ID())
				a.log.Warn("supplier search failed", "supplier", src.ID(), "query", q.Raw, "error", err)
				resCh <- sourceResult{id: src.ID(), err: err}
				return
			}
			resCh <- sourceResult{id: src.ID(), items: items}
		}(s)
	}

	go func() {
		wg.Wait()
		close(resCh)
	}()

	counts := make(map[string]int, len(a.sources))
	for _, s := range a.sources {
		counts[s.ID()] = 0
	}
	var all []pricing.Result
	for r := range resCh {
		if r.err != nil {
			continue
		}
		counts[r.id] = len(r.items)
		all = append(all, r.items...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].SellPrice < all[j].SellPrice })
	if len(all) > MaxResults {
		all = all[:MaxResults]
	}

	return Outcome{
		Query:      q.Raw,
		Counts:     counts,
		TotalCount: len(all),
		ElapsedMs:  time.Since(start).Milliseconds(),
		Rates:      rs,
		Results:    all,
	}, nil
}

// SessionFlags reports per-supplier session cache validity for /status.
func (a *Aggregator) SessionFlags() map[string]bool {
	flags := make(map[string]bool)
	for _, s := range a.sources {
		if h, ok := s.(SessionStatus); ok {
			flags[s.ID()] = h.SessionActive()
		}
	}
	return flags
}
