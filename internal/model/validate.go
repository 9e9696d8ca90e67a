package model

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidEntry is wrapped by every error returned from Validate.
var ErrInvalidEntry = errors.New("invalid entry")

// Validate checks the invariants an entry must satisfy before it is stored.
// All violations are reported together.
func (e Entry) Validate() error {
	var errs []error

	if e.Request.Timestamp.IsZero() {
		errs = append(errs, errors.New("timestamp is required"))
	}
	if e.Request.HTTPStatus < 0 {
		errs = append(errs, fmt.Errorf("http_status %d is negative", e.Request.HTTPStatus))
	}
	if e.Request.SourcePort < 0 || e.Request.SourcePort > 65535 {
		errs = append(errs, fmt.Errorf("source_port %d out of range", e.Request.SourcePort))
	}
	if e.Request.DestPort < 0 || e.Request.DestPort > 65535 {
		errs = append(errs, fmt.Errorf("dest_port %d out of range", e.Request.DestPort))
	}
	if e.Detection.AttackClass == "" {
		errs = append(errs, errors.New("attack_class is required"))
	}
	if c := e.Detection.Confidence; math.IsNaN(c) || c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("ml_confidence_score %v not in [0, 1]", c))
	}
	errs = append(errs, e.checkFinite()...)

	p := e.Performance
	if p.TotalRequests < 0 || p.NormalRequests < 0 || p.MaliciousRequests < 0 {
		errs = append(errs, errors.New("request counters must be non-negative"))
	}
	if p.NormalRequests+p.MaliciousRequests != p.TotalRequests {
		errs = append(errs, fmt.Errorf("normal_requests (%d) + malicious_requests (%d) != total_requests_handled (%d)",
			p.NormalRequests, p.MaliciousRequests, p.TotalRequests))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidEntry, errors.Join(errs...))
}

// checkFinite reports float fields holding NaN or an infinity, which JSON
// cannot encode.
func (e Entry) checkFinite() []error {
	var errs []error
	check := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s %v is not finite", name, v))
		}
	}
	check("total_requests_per_second", e.Traffic.RequestsPerSecond)
	check("packets_per_second", e.Traffic.PacketsPerSecond)
	check("traffic_volume_bytes_per_second", e.Traffic.BytesPerSecond)
	check("anomaly_score", e.Detection.AnomalyScore)
	check("average_processing_time", e.Performance.AvgProcessingTime)
	if e.Performance.Accuracy != nil {
		check("attack_detection_accuracy", *e.Performance.Accuracy)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Detection.FeatureContributions)) {
		check("feature_contributions."+k, e.Detection.FeatureContributions[k])
	}
	return errs
}

// Normalize returns a copy of e ready for persistence: the timestamp in UTC,
// free-text request fields in Unicode NFC, and empty collections instead of
// nil so they encode as {} and [].
func (e Entry) Normalize() Entry {
	r := &e.Request
	r.Timestamp = r.Timestamp.UTC()
	r.RequestedPath = norm.NFC.String(r.RequestedPath)
	r.UserAgent = norm.NFC.String(r.UserAgent)
	r.Referrer = norm.NFC.String(r.Referrer)

	params := make(map[string]string, len(r.QueryParams))
	for k, v := range r.QueryParams {
		params[norm.NFC.String(k)] = norm.NFC.String(v)
	}
	r.QueryParams = params

	e.Traffic.UniqueIPs = append([]Addr{}, e.Traffic.UniqueIPs...)

	features := make(map[string]float64, len(e.Detection.FeatureContributions))
	for k, v := range e.Detection.FeatureContributions {
		features[k] = v
	}
	e.Detection.FeatureContributions = features

	e.Performance.FrequentAttackPatterns = append([]string{}, e.Performance.FrequentAttackPatterns...)
	if e.Performance.Accuracy != nil {
		acc := *e.Performance.Accuracy
		e.Performance.Accuracy = &acc
	}
	return e
}

// Blocked reports whether the WAF rejected the request.
func (e Entry) Blocked() bool {
	return e.Request.HTTPStatus == 403
}

