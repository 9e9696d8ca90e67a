package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

func init() {
	sink.Register("stdout", func(cfg sink.Config) (sink.Sink, error) {
		return New(os.Stdout, cfg.Extra["pretty"] == "true", cfg.Extra["format"] == "summary"), nil
	})
}

// Output writes JSON-encoded entries to a writer, one document per entry.
type Output struct {
	mu      sync.Mutex
	enc     *json.Encoder
	summary bool
}

// New creates an Output writing to w. With pretty the JSON is indented; with
// summaryOnly each entry is reduced to its request line and verdict.
func New(w io.Writer, pretty, summaryOnly bool) *Output {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Output{enc: enc, summary: summaryOnly}
}

func (o *Output) Write(_ context.Context, entry model.Entry) error {
	var v any = entry
	if o.summary {
		v = sink.Summarize(entry)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.enc.Encode(v); err != nil {
		return fmt.Errorf("stdout sink: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
