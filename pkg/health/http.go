package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker considers the workload alive when its endpoint answers with a
// status inside the expected range
type HTTPChecker struct {
	URL               string
	ExpectedStatusMin int
	ExpectedStatusMax int
	Client            *http.Client
}

// NewHTTPChecker creates an HTTP liveness checker accepting 200-399
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client:            &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return result("liveness", start, false, fmt.Sprintf("failed to create request: %v", err))
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return result("liveness", start, false, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax
	msg := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		msg = fmt.Sprintf("%s (expected %d-%d)", msg, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}
	return result("liveness", start, healthy, msg)
}

func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithStatusRange sets the expected status code range
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}
