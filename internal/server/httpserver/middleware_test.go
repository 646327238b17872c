package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/metastore-go/internal/telemetry/logger"
	"github.com/yndnr/metastore-go/internal/telemetry/metric"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("order = %v, want a,b,c", order)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		if _, ok := r.Context().Value(ContextKeyStartTime).(time.Time); !ok {
			t.Error("start time missing from context")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.HasPrefix(seen, "req-") || len(seen) != len("req-")+26 {
		t.Errorf("generated request ID = %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("header = %q, context = %q", rec.Header().Get("X-Request-ID"), seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "client-id" {
		t.Errorf("propagated request ID = %q, want client-id", seen)
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})(okHandler)

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := range 2 {
		if rec := do("10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}
	rec := do("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-Error-Code") != "MS-SYS-4290" {
		t.Errorf("headers = %v", rec.Header())
	}

	// Other clients have their own bucket.
	if rec := do("10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}
}

func TestLimiterSet_EvictsIdleClients(t *testing.T) {
	set := newLimiterSet(RateLimitConfig{RequestsPerSecond: 5, IdleTimeout: time.Minute})
	now := time.Now()
	set.get("10.0.0.1", now)
	set.get("10.0.0.2", now.Add(90*time.Second))

	if len(set.clients) != 1 {
		t.Fatalf("clients = %d, want 1 after sweep", len(set.clients))
	}
	if _, ok := set.clients["10.0.0.2"]; !ok {
		t.Error("active client was evicted")
	}
}

func TestAudit_RecordsMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	mux := http.NewServeMux()
	mux.Handle("GET /things/{id}", Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}),
		RequestID(),
		Audit(discardLogger(), reg),
	))

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/1", nil))
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/2", nil))

	got := testutil.ToFloat64(reg.RequestsTotal.WithLabelValues(http.MethodGet, "GET /things/{id}", "404"))
	if got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["code"] != "MS-SYS-5000" {
		t.Errorf("code = %q", body["code"])
	}
}

func TestNetworkACL(t *testing.T) {
	h := NetworkACL(&NetworkACLConfig{
		AllowList: []string{"127.0.0.1", "10.1.0.0/16", "not-an-ip", "300.0.0.0/8"},
		Logger:    discardLogger(),
	})(okHandler)

	tests := []struct {
		remote string
		xff    string
		want   int
	}{
		{"127.0.0.1:5000", "", http.StatusOK},
		{"10.1.2.3:5000", "", http.StatusOK},
		{"10.2.0.1:5000", "", http.StatusForbidden},
		{"192.168.1.1:5000", "10.1.9.9", http.StatusOK},
		{"[::1]:5000", "", http.StatusForbidden},
		{"garbage", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("remote %s xff %q: status = %d, want %d", tt.remote, tt.xff, rec.Code, tt.want)
		}
	}

	open := NetworkACL(&NetworkACLConfig{})(okHandler)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("empty allowlist status = %d, want 200", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := getClientIP(req); got != "2001:db8::1" {
		t.Errorf("ipv6 = %q", got)
	}

	req.Header.Set("X-Real-IP", "10.0.0.7")
	if got := getClientIP(req); got != "10.0.0.7" {
		t.Errorf("x-real-ip = %q", got)
	}

	req.Header.Set("X-Forwarded-For", " 10.0.0.8 , 10.0.0.9")
	if got := getClientIP(req); got != "10.0.0.8" {
		t.Errorf("x-forwarded-for = %q", got)
	}
}
