package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP GETs url, propagating any transport error as-is; the downloadFailed
// notification itself is emitted by the loader, which wraps this fetcher
// with its listener. Grounded on internal/rendezvous/client.go's ctx-aware
// *http.Client wrapper.
type HTTP struct {
	Client *http.Client
}

// NewHTTP returns an HTTP fetcher with a sane default timeout.
func NewHTTP() *HTTP {
	return &HTTP{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *HTTP) Fetch(ctx context.Context, applicationName, id, sha256Hex, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}
