// Package fetch implements the Module Loader's fetch chain:
// an ordered list of fetchers consulted in turn, the first to return
// non-empty bytes wins. Grounded on internal/rendezvous/client.go (ctx-aware
// *http.Client wrapper) for Fetcher and internal/avatar/cache.go (hash-gated
// on-disk cache) for the cache-fetcher shape.
package fetch

import "context"

// Fetcher is one link in the fetch chain. Returning (nil, nil) means "I
// don't have it, try the next fetcher" — not an error.
type Fetcher interface {
	Fetch(ctx context.Context, applicationName, id, sha256Hex, url string) ([]byte, error)
}

// Chain consults fetchers in order and returns the first non-empty result.
type Chain []Fetcher

func (c Chain) Fetch(ctx context.Context, applicationName, id, sha256Hex, url string) ([]byte, error) {
	for _, f := range c {
		b, err := f.Fetch(ctx, applicationName, id, sha256Hex, url)
		if err != nil {
			return nil, err
		}
		if len(b) > 0 {
			return b, nil
		}
	}
	return nil, nil
}
