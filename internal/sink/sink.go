// Package sink delivers committed log entries to systems outside the store.
package sink

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
)

// Sink receives entries after they have been durably appended.
type Sink interface {
	Write(ctx context.Context, entry model.Entry) error
	Close() error
}

// Config holds the settings for one configured sink.
type Config struct {
	Name     string            `yaml:"name"`
	Endpoint string            `yaml:"endpoint"`
	Token    string            `yaml:"token"`
	Extra    map[string]string `yaml:"extra"`
}

// Summary is the compact form of an entry: the request line and the verdict.
type Summary struct {
	Timestamp   time.Time         `json:"timestamp"`
	SourceIP    model.Addr        `json:"source_ip"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Status      int               `json:"status"`
	AttackClass model.AttackClass `json:"attack_class"`
	Confidence  float64           `json:"confidence"`
}

// Summarize reduces e to its Summary.
func Summarize(e model.Entry) Summary {
	return Summary{
		Timestamp:   e.Request.Timestamp,
		SourceIP:    e.Request.SourceIP,
		Method:      e.Request.RequestMethod,
		Path:        e.Request.RequestedPath,
		Status:      e.Request.HTTPStatus,
		AttackClass: e.Detection.AttackClass,
		Confidence:  e.Detection.Confidence,
	}
}

// Filter decides whether an entry is delivered to a sink.
type Filter func(model.Entry) bool

// FilterFromConfig builds the delivery filter for cfg from two Extra keys:
// classes, a "|"-separated list of attack classes, and blocked_only. A nil
// Filter accepts every entry.
func FilterFromConfig(cfg Config) (Filter, error) {
	var classes map[model.AttackClass]bool
	if v := strings.TrimSpace(cfg.Extra["classes"]); v != "" {
		classes = map[model.AttackClass]bool{}
		for _, c := range strings.Split(v, "|") {
			if c = strings.TrimSpace(c); c != "" {
				classes[model.AttackClass(c)] = true
			}
		}
	}
	blockedOnly := false
	if v, ok := cfg.Extra["blocked_only"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked_only %q", v)
		}
		blockedOnly = b
	}

	if classes == nil && !blockedOnly {
		return nil, nil
	}
	return func(e model.Entry) bool {
		if blockedOnly && !e.Blocked() {
			return false
		}
		return classes == nil || classes[e.Detection.AttackClass]
	}, nil
}
