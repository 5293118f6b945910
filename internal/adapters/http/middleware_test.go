package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Floyce/OCR-Sorter/internal/config"
	"github.com/Floyce/OCR-Sorter/internal/observability/metrics"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)
	env := newTestEnv(t, config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, WithMetrics(serverMetrics))

	res1 := env.do(http.MethodGet, "/v1/buckets", nil)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := env.do(http.MethodGet, "/v1/buckets", nil)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	if res := env.do(http.MethodGet, "/healthz", nil); res.Code != http.StatusOK {
		t.Fatalf("healthz must bypass the limiter, got %d", res.Code)
	}
	n, err := testutil.GatherAndCount(serverMetrics.Registry(), "ocr_sorter_http_rate_limited_total")
	if err != nil || n != 1 {
		t.Fatalf("expected rate limited series, got n=%d err=%v", n, err)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if seen != "req-42" || res.Header().Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected request id to be propagated, got ctx=%q header=%q", seen, res.Header().Get(requestIDHeader))
	}
}
