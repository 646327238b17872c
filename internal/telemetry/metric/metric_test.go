package metric

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_ObserveIndexBuild(t *testing.T) {
	r := NewRegistry()

	r.ObserveIndexBuild(nil, 20*time.Millisecond, 42, 1024)
	r.ObserveIndexBuild(errors.New("disk full"), time.Millisecond, 0, 0)

	if got := testutil.ToFloat64(r.IndexBuilds.WithLabelValues(ResultOK)); got != 1 {
		t.Errorf("ok builds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.IndexBuilds.WithLabelValues(ResultError)); got != 1 {
		t.Errorf("error builds = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.IndexEntries); got != 42 {
		t.Errorf("entries = %v, want 42", got)
	}
	if got := testutil.ToFloat64(r.IndexBytes); got != 1024 {
		t.Errorf("bytes = %v, want 1024", got)
	}
}

func TestRegistry_ObserveRecoveryAndMutations(t *testing.T) {
	r := NewRegistry()
	r.ObserveRecovery(RecoveryIndex, time.Second, 10, 3)
	r.IncMutation(2, "insert")
	r.IncMutation(2, "insert")

	if got := testutil.ToFloat64(r.Recoveries.WithLabelValues(RecoveryIndex)); got != 1 {
		t.Errorf("recoveries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ReplayedRecords.WithLabelValues("wal")); got != 3 {
		t.Errorf("replayed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.Mutations.WithLabelValues("2", "insert")); got != 2 {
		t.Errorf("mutations = %v, want 2", got)
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	r.IncMutation(0, "delete")
	r.ObserveRequest("GET", "/health", 200, time.Millisecond)
	r.ObserveIndexBuild(nil, time.Second, 1, 1)
	r.ObserveRecovery(RecoveryReplay, time.Second, 0, 1)
	if err := r.Register(NewCollector(func() Stats { return Stats{} })); err != nil {
		t.Errorf("Register on nil registry: %v", err)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil registry handler code = %d, want 404", rec.Code)
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(func() Stats {
		return Stats{RowsPerTable: []int{3, 0, 7}, WALBytes: 4096, WALSegments: 2}
	})

	if n := testutil.CollectAndCount(c); n != 5 {
		t.Fatalf("CollectAndCount = %d, want 5", n)
	}

	want := `
# HELP metastore_wal_segments Number of WAL segments on disk
# TYPE metastore_wal_segments gauge
metastore_wal_segments 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "metastore_wal_segments"); err != nil {
		t.Error(err)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCollector(func() Stats { return Stats{RowsPerTable: []int{1}} })); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.ObserveRequest("GET", "/health", 200, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{
		"metastore_rows_live",
		"metastore_http_requests_total",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
