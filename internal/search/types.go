package search

import (
	"context"

	"github.com/tsonev198862/autofix-api/internal/pricing"
	"github.com/tsonev198862/autofix-api/internal/rates"
)

// Source is one upstream supplier behind its protocol adapter. Search returns
// normalized offers; an error means that supplier contributes zero results.
type Source interface {
	ID() string
	Name() string
	Search(ctx context.Context, part string, rs rates.Snapshot) ([]pricing.Result, error)
}

// Warmer is implemented by sources that want their session primed before the
// fan-out (the token-auth supplier acquires its token and delivery point).
type Warmer interface {
	Warmup(ctx context.Context) error
}

// SessionStatus is implemented by sources holding a cached login session.
type SessionStatus interface {
	SessionActive() bool
}

type sourceResult struct {
	id    string
	items []pricing.Result
	err   error
}

// Outcome is built fresh for every search and never cached.
type Outcome struct {
	Query      string           `json:"query"`
	Counts     map[string]int   `json:"-"`
	TotalCount int              `json:"totalCount"`
	ElapsedMs  int64            `json:"elapsed"`
	Rates      rates.Snapshot   `json:"rates"`
	Results    []pricing.Result `json:"results"`
}
