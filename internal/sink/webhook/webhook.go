package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultTimeout       = 10 * time.Second
	defaultBackoff       = time.Second
	maxRetries           = 3
)

func init() {
	sink.Register("webhook", fromConfig)
}

// fromConfig builds a webhook sink. Extra keys: batch_size, flush_interval,
// format=summary, and header.<Name> for custom headers.
func fromConfig(cfg sink.Config) (sink.Sink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("webhook: endpoint is required")
	}
	var opts []Option
	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	for k, v := range cfg.Extra {
		switch {
		case k == "batch_size":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("webhook: invalid batch_size %q", v)
			}
			opts = append(opts, WithBatchSize(n))
		case k == "flush_interval":
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("webhook: invalid flush_interval %q", v)
			}
			opts = append(opts, WithFlushInterval(d))
		case k == "format":
			if v != "summary" && v != "full" {
				return nil, fmt.Errorf("webhook: invalid format %q", v)
			}
			if v == "summary" {
				opts = append(opts, WithSummary())
			}
		case strings.HasPrefix(k, "header."):
			headers[strings.TrimPrefix(k, "header.")] = v
		}
	}
	opts = append(opts, WithHeaders(headers))
	return New(cfg.Endpoint, opts...), nil
}

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithBatchSize sets the number of entries accumulated before a flush. Default: 50.
func WithBatchSize(n int) Option {
	return func(o *Output) { o.batchSize = n }
}

// WithFlushInterval sets the maximum time between flushes. Default: 5s.
func WithFlushInterval(d time.Duration) Option {
	return func(o *Output) { o.flushInterval = d }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithBackoff sets the delay before the first retry; later retries double it.
// Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// WithSummary posts each batch as sink.Summary values instead of full entries.
func WithSummary() Option {
	return func(o *Output) { o.summary = true }
}

// WithOnError sets a callback invoked when a timer-triggered flush fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.errFunc = f }
}

// Output POSTs batched entries to an HTTP endpoint as a JSON array. Entries
// accumulate until batchSize is reached or flushInterval elapses. Each POST
// carries the batch size and its blocked count in headers so receivers can
// triage without decoding the body.
type Output struct {
	client        *http.Client
	url           string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	backoff       time.Duration
	summary       bool
	errFunc       func(error)
	mu            sync.Mutex
	pending       []model.Entry
	timer         *time.Timer
}

// New creates a webhook output targeting the given URL.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client:        &http.Client{Timeout: defaultTimeout},
		url:           url,
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		backoff:       defaultBackoff,
		errFunc:       func(err error) { slog.Warn("webhook flush error", "error", err) },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Write adds an entry to the batch, flushing when batchSize is reached. The
// first entry of a batch arms the flush timer.
func (o *Output) Write(_ context.Context, entry model.Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pending = append(o.pending, entry)

	if len(o.pending) >= o.batchSize {
		return o.flushLocked()
	}

	if len(o.pending) == 1 {
		o.timer = time.AfterFunc(o.flushInterval, func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if err := o.flushLocked(); err != nil {
				o.errFunc(err)
			}
		})
	}
	return nil
}

// Close flushes any remaining entries and stops the timer.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if len(o.pending) > 0 {
		return o.flushLocked()
	}
	return nil
}

// Headers set on every batch POST.
const (
	HeaderBatchSize = "X-Waflog-Batch-Size"
	HeaderBlocked   = "X-Waflog-Blocked"
)

// flushLocked sends the pending batch. Caller must hold o.mu.
func (o *Output) flushLocked() error {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if len(o.pending) == 0 {
		return nil
	}
	batch := o.pending
	o.pending = nil

	var payload any = batch
	if o.summary {
		summaries := make([]sink.Summary, len(batch))
		for i, e := range batch {
			summaries[i] = sink.Summarize(e)
		}
		payload = summaries
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	blocked := 0
	for _, e := range batch {
		if e.Blocked() {
			blocked++
		}
	}
	hdr := http.Header{}
	for k, v := range o.headers {
		hdr.Set(k, v)
	}
	hdr.Set("Content-Type", "application/json")
	hdr.Set(HeaderBatchSize, strconv.Itoa(len(batch)))
	hdr.Set(HeaderBlocked, strconv.Itoa(blocked))
	return o.post(body, hdr)
}

// post delivers one batch. 429 and 5xx responses are retried with a doubling
// delay; any other failure status is final.
func (o *Output) post(body []byte, hdr http.Header) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(o.backoff << (attempt - 1))
		}
		var retry bool
		retry, err = o.send(body, hdr)
		if err == nil || !retry {
			return err
		}
	}
	return fmt.Errorf("webhook: giving up after %d attempts: %w", maxRetries+1, err)
}

func (o *Output) send(body []byte, hdr http.Header) (retry bool, err error) {
	req, err := http.NewRequest(http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook: %w", err)
	}
	req.Header = hdr.Clone()

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("webhook: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
	}
}
