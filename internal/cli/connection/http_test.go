package connection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newClient(t *testing.T, server string) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(server, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name   string
		server string
		want   string
	}{
		{"with http prefix", "http://localhost:8080", "http://localhost:8080"},
		{"with https prefix", "https://localhost:8080/", "https://localhost:8080"},
		{"without prefix", "localhost:8080", "http://localhost:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newClient(t, tt.server).BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewHTTPClient_BadTLSFiles(t *testing.T) {
	if _, err := NewHTTPClient("localhost:1", Options{CACertFile: "/nonexistent/ca.pem"}); err == nil {
		t.Error("expected error for missing CA file")
	}
	if _, err := NewHTTPClient("localhost:1", Options{ClientCertFile: "/nonexistent/c.pem", ClientKeyFile: "/nonexistent/k.pem"}); err == nil {
		t.Error("expected error for missing client certificate")
	}
}

func TestHTTPClient_Methods(t *testing.T) {
	type seen struct {
		method, path, contentType, body string
	}
	var got seen
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = seen{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(b)}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "metastore-cli/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newClient(t, server.URL)
	ctx := context.Background()
	body := map[string]string{"value": "v"}

	calls := []struct {
		do   func() (*http.Response, error)
		want seen
	}{
		{func() (*http.Response, error) { return c.Get(ctx, "/a") }, seen{"GET", "/a", "", ""}},
		{func() (*http.Response, error) { return c.Post(ctx, "/b", body) }, seen{"POST", "/b", "application/json", `{"value":"v"}`}},
		{func() (*http.Response, error) { return c.Put(ctx, "/c", body) }, seen{"PUT", "/c", "application/json", `{"value":"v"}`}},
		{func() (*http.Response, error) { return c.Delete(ctx, "/d") }, seen{"DELETE", "/d", "", ""}},
		{func() (*http.Response, error) { return c.Post(ctx, "/e", nil) }, seen{"POST", "/e", "", ""}},
	}
	for _, call := range calls {
		resp, err := call.do()
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if got != call.want {
			t.Errorf("server saw %+v, want %+v", got, call.want)
		}
	}
}

func TestParseResponse_Success(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"code":"OK","data":{"key":"db1","version":7}}`)),
	}

	var result struct {
		Key     string `json:"key"`
		Version uint64 `json:"version"`
	}
	if err := ParseResponse(resp, &result); err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if result.Key != "db1" || result.Version != 7 {
		t.Errorf("result = %+v", result)
	}
}

func TestParseResponse_Error(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"code": "MS-ROW-4040", "message": "row not found"})
	resp := &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader(string(body))),
	}

	err := ParseResponse(resp, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "MS-ROW-4040" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if err.Error() != "[MS-ROW-4040] row not found" {
		t.Errorf("Error() = %q", err.Error())
	}

	resp = &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("<html>")),
	}
	if err := ParseResponse(resp, nil); err == nil || err.Error() != "request failed with status 502" {
		t.Errorf("non-JSON error = %v", err)
	}
}

func TestParseResponse_NilTarget(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ignored")),
	}
	if err := ParseResponse(resp, nil); err != nil {
		t.Errorf("ParseResponse(nil target) = %v", err)
	}
}
