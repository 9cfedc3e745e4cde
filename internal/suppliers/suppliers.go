// Package suppliers contains one adapter per upstream parts system. Each
// adapter speaks its supplier's native protocol (JSON, OAuth-style REST,
// SOAP/XML, scraped HTML, or a string-table RPC), handles its own session
// lifecycle and normalizes raw quotes through the pricing package.
package suppliers

import (
	"errors"
	"io"
	"net/http"
)

// ErrAuthFailed indicates a login failure or a stale session detected
// mid-search. The adapter invalidates its cache; the next call re-logs-in.
var ErrAuthFailed = errors.New("supplier authentication failed")

// ErrBadResponse indicates a malformed or unexpected upstream response.
var ErrBadResponse = errors.New("unexpected supplier response")

// readBody drains a response body with a sane size cap. Supplier pages and
// envelopes are small; anything past 4 MB is garbage.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
