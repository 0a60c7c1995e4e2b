package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const maxRedirects = 5

// HTTPChecker issues a GET and records whatever status comes back.
type HTTPChecker struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{
		// The deadline lives on the request context so the classifier can see it.
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		Timeout: timeout,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) domain.Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	fail := func(err error) domain.Outcome {
		return domain.Outcome{
			Status:    domain.StatusTransportFailure,
			LatencyMS: time.Since(start).Milliseconds(),
			Error:     classify(ctx, err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("User-Agent", "sitewatch/1.0")

	resp, err := h.Client.Do(req)
	if err != nil {
		return fail(err)
	}
	latency := time.Since(start).Milliseconds()
	// drain a little so keep-alive connections can be reused
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	resp.Body.Close()

	return domain.Outcome{Status: resp.StatusCode, LatencyMS: latency}
}
