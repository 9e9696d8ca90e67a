// Package generator fabricates synthetic WAF log entries for the simulator.
//
// Everything except the timestamp, status, attack label, method, source
// address and confidence is fixed example data. Nothing here inspects a real
// request.
package generator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
)

var (
	// ErrNegativeOffset is returned by Generate for an hour offset below zero.
	ErrNegativeOffset = errors.New("hour offset must be non-negative")
	// ErrOffsetTooLarge is returned by Generate for an hour offset that does
	// not fit in a time.Duration.
	ErrOffsetTooLarge = errors.New("hour offset too large")
)

// MaxHourOffset is the largest offset Generate accepts.
const MaxHourOffset = math.MaxInt64 / int64(time.Hour)

var (
	statuses = []int{200, 403}
	methods  = []string{"GET", "POST"}
)

const (
	minConfidence = 0.1
	maxConfidence = 1.0
	minSourcePort = 10000
	maxSourcePort = 60000
)

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the output reproducible. A zero seed keeps the default
// time-based source.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		if seed != 0 {
			g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		}
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// Generator produces synthetic entries. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex // guards rng
	rng *rand.Rand
	now func() time.Time
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	seed := uint64(time.Now().UnixNano())
	g := &Generator{
		rng: rand.New(rand.NewPCG(seed, seed>>1)),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one entry whose timestamp is hourOffset hours before now.
func (g *Generator) Generate(hourOffset int) (model.Entry, error) {
	if hourOffset < 0 {
		return model.Entry{}, fmt.Errorf("generate: %w: %d", ErrNegativeOffset, hourOffset)
	}
	if int64(hourOffset) > MaxHourOffset {
		return model.Entry{}, fmt.Errorf("generate: %w: %d", ErrOffsetTooLarge, hourOffset)
	}

	g.mu.Lock()
	status := statuses[g.rng.IntN(len(statuses))]
	class := model.KnownAttackClasses[g.rng.IntN(len(model.KnownAttackClasses))]
	method := methods[g.rng.IntN(len(methods))]
	sourceIP := strconv.Itoa(1 + g.rng.IntN(255))
	sourcePort := minSourcePort + g.rng.IntN(maxSourcePort-minSourcePort+1)
	confidence := minConfidence + g.rng.Float64()*(maxConfidence-minConfidence)
	g.mu.Unlock()

	normal, malicious := 1, 0
	if status != 200 {
		normal, malicious = 0, 1
	}

	e := model.Entry{
		Request: model.RequestData{
			Timestamp:     g.now().UTC().Add(-time.Duration(hourOffset) * time.Hour),
			SourceIP:      model.Addr(sourceIP),
			DestIP:        "7",
			SourcePort:    sourcePort,
			DestPort:      80,
			RequestMethod: method,
			RequestedPath: "/login",
			QueryParams:   map[string]string{},
			UserAgent:     "curl/8.10.1",
			Referrer:      "Unknown",
			HTTPStatus:    status,
		},
		Traffic: model.TrafficStats{
			RequestsPerSecond: 1.0,
			PacketsPerSecond:  150.0,
			PacketLength:      40,
			BytesPerSecond:    6000.0,
			UniqueIPs:         []model.Addr{"8"},
		},
		Anomaly: model.AnomalyMetrics{
			URLLength:            27,
			BodyLength:           25,
			Spaces:               4,
			SQLInjectionPatterns: 2,
		},
		Detection: model.Detection{
			AttackClass:          class,
			Confidence:           confidence,
			AnomalyScore:         1.508619785308838,
			FeatureContributions: featureContributions(),
		},
		Performance: model.PerformanceInfo{
			TotalRequests:          1,
			NormalRequests:         normal,
			MaliciousRequests:      malicious,
			AvgProcessingTime:      1.3449146747589111,
			FrequentAttackPatterns: []string{},
		},
	}
	return e, nil
}

// featureContributions mirrors the anomaly metrics in feature order:
// url_length, body_length, four zero counters, spaces, sql patterns, then
// four more zeros.
func featureContributions() map[string]float64 {
	values := []float64{27, 25, 0, 0, 0, 0, 4, 2, 0, 0, 0, 0}
	m := make(map[string]float64, len(values))
	for i, v := range values {
		m["feature_"+strconv.Itoa(i)] = v
	}
	return m
}
