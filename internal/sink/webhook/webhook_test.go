package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
	"github.com/crimson-sun/waflog/internal/testdata"
)

func testEntry(status int) model.Entry {
	return testdata.Entry(status)
}

func TestBatchFlushAtBatchSize(t *testing.T) {
	var mu sync.Mutex
	var received [][]model.Entry

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []model.Entry
		json.Unmarshal(body, &batch)
		mu.Lock()
		received = append(received, batch)
		mu.Unlock()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(3), WithFlushInterval(10*time.Second))

	for i := 0; i < 3; i++ {
		out.Write(context.Background(), testEntry(200))
	}

	// Give the POST a moment to complete.
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(received))
	}
	if len(received[0]) != 3 {
		t.Errorf("batch size = %d, want 3", len(received[0]))
	}
}

func TestTimerFlushBeforeBatchSize(t *testing.T) {
	var mu sync.Mutex
	var received [][]model.Entry

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []model.Entry
		json.Unmarshal(body, &batch)
		mu.Lock()
		received = append(received, batch)
		mu.Unlock()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(100), WithFlushInterval(100*time.Millisecond))

	out.Write(context.Background(), testEntry(200))

	// Wait for the timer to fire.
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 timer-triggered batch, got %d", len(received))
	}
	if len(received[0]) != 1 {
		t.Errorf("batch size = %d, want 1", len(received[0]))
	}
}

func TestRetryOn5xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(10*time.Millisecond))
	if err := out.Write(context.Background(), testEntry(200)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}

	if attempts.Load() < 3 {
		t.Errorf("expected at least 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(400)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1))
	err := out.Write(context.Background(), testEntry(200))

	time.Sleep(200 * time.Millisecond)

	if err == nil {
		t.Error("expected error for 400 response")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt for 4xx, got %d", attempts.Load())
	}
}

func TestCustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Custom-Auth")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL,
		WithBatchSize(1),
		WithHeaders(map[string]string{"X-Custom-Auth": "secret123"}),
	)

	out.Write(context.Background(), testEntry(200))
	time.Sleep(100 * time.Millisecond)

	if gotAuth != "secret123" {
		t.Errorf("custom header = %q, want secret123", gotAuth)
	}
}

func TestTimerFlushErrorCallbackInvoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
	}))
	defer srv.Close()

	var errCount atomic.Int64
	out := New(srv.URL,
		WithBatchSize(100),
		WithFlushInterval(50*time.Millisecond),
		WithOnError(func(err error) { errCount.Add(1) }),
	)

	out.Write(context.Background(), testEntry(200))

	// Wait for timer-triggered flush + HTTP round-trip.
	time.Sleep(300 * time.Millisecond)

	if errCount.Load() != 1 {
		t.Errorf("expected error callback called 1 time, got %d", errCount.Load())
	}

	out.Close()
}

func TestCloseFlushesRemaining(t *testing.T) {
	var mu sync.Mutex
	var received [][]model.Entry

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch []model.Entry
		json.Unmarshal(body, &batch)
		mu.Lock()
		received = append(received, batch)
		mu.Unlock()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(100), WithFlushInterval(10*time.Second))

	out.Write(context.Background(), testEntry(200))
	out.Write(context.Background(), testEntry(200))

	out.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 batch on Close, got %d", len(received))
	}
	if len(received[0]) != 2 {
		t.Errorf("batch size = %d, want 2", len(received[0]))
	}
}

func TestRetriesExhausted(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(503)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Millisecond))
	if err := out.Write(context.Background(), testEntry(200)); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts.Load() != maxRetries+1 {
		t.Errorf("attempts = %d, want %d", attempts.Load(), maxRetries+1)
	}
}

func TestSummaryBatchAndHeaders(t *testing.T) {
	var gotSize, gotBlocked string
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSize = r.Header.Get(HeaderBatchSize)
		gotBlocked = r.Header.Get(HeaderBlocked)
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(204)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(3), WithSummary())
	out.Write(context.Background(), testEntry(200))
	out.Write(context.Background(), testEntry(403))
	if err := out.Write(context.Background(), testEntry(403)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if gotSize != "3" || gotBlocked != "2" {
		t.Errorf("batch headers = %s/%s, want 3/2", gotSize, gotBlocked)
	}
	if len(got) != 3 {
		t.Fatalf("got %d summaries, want 3", len(got))
	}
	if _, ok := got[0]["general_request_data"]; ok {
		t.Error("summary batch should not carry full entries")
	}
	if got[1]["status"] != float64(403) || got[1]["attack_class"] != "SQLi" {
		t.Errorf("unexpected summary: %v", got[1])
	}
}

func TestRetryOn429(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	out := New(srv.URL, WithBatchSize(1), WithBackoff(time.Millisecond))
	if err := out.Write(context.Background(), testEntry(200)); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestFromConfig(t *testing.T) {
	var gotAuth, gotTenant string
	var gotBatch []model.Entry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotTenant = r.Header.Get("X-Tenant")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBatch)
		w.WriteHeader(204)
	}))
	defer srv.Close()

	ctor, err := sink.Get("webhook")
	if err != nil {
		t.Fatalf("webhook sink not registered: %v", err)
	}
	s, err := ctor(sink.Config{
		Name:     "webhook",
		Endpoint: srv.URL,
		Token:    "tok",
		Extra:    map[string]string{"batch_size": "2", "header.X-Tenant": "acme"},
	})
	if err != nil {
		t.Fatalf("constructor error: %v", err)
	}

	s.Write(context.Background(), testEntry(200))
	if err := s.Write(context.Background(), testEntry(403)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if gotTenant != "acme" {
		t.Errorf("X-Tenant = %q, want acme", gotTenant)
	}
	if len(gotBatch) != 2 || gotBatch[1].Request.HTTPStatus != 403 {
		t.Errorf("unexpected batch: %+v", gotBatch)
	}
	s.Close()
}

func TestFromConfigInvalid(t *testing.T) {
	tests := []sink.Config{
		{Name: "webhook"},
		{Name: "webhook", Endpoint: "http://x", Extra: map[string]string{"batch_size": "0"}},
		{Name: "webhook", Endpoint: "http://x", Extra: map[string]string{"flush_interval": "soon"}},
		{Name: "webhook", Endpoint: "http://x", Extra: map[string]string{"format": "xml"}},
	}
	for _, cfg := range tests {
		if _, err := fromConfig(cfg); err == nil {
			t.Errorf("fromConfig(%+v) expected error", cfg)
		}
	}
}
