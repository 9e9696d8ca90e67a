// Package testdata provides fixture entries shared by package tests.
package testdata

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crimson-sun/waflog/internal/model"
)

// legacy_logs.json was written by an earlier version of the simulator:
// numeric dest_ip and unique_ips, microsecond timestamps with a +00:00 offset.
//
//go:embed legacy_logs.json
var legacyJSON []byte

// LegacyJSON returns a copy of the embedded legacy log file.
func LegacyJSON() []byte {
	return append([]byte(nil), legacyJSON...)
}

// LoadLegacy decodes the embedded legacy log file.
func LoadLegacy() ([]model.Entry, error) {
	var entries []model.Entry
	if err := json.Unmarshal(legacyJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse legacy_logs.json: %w", err)
	}
	return entries, nil
}

// Entry returns a valid, normalized entry with the given HTTP status. Status
// 403 is attributed as malicious, anything else as normal.
func Entry(status int) model.Entry {
	normal, malicious := 1, 0
	class := model.AttackNone
	if status == 403 {
		normal, malicious = 0, 1
		class = model.AttackSQLi
	}
	e := model.Entry{
		Request: model.RequestData{
			Timestamp:     time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
			SourceIP:      "10.0.0.1",
			DestIP:        "7",
			SourcePort:    40000,
			DestPort:      80,
			RequestMethod: "GET",
			RequestedPath: "/login",
			QueryParams:   map[string]string{"user": "admin"},
			UserAgent:     "curl/8.10.1",
			Referrer:      "Unknown",
			HTTPStatus:    status,
		},
		Traffic: model.TrafficStats{
			RequestsPerSecond: 1,
			PacketsPerSecond:  150,
			PacketLength:      40,
			BytesPerSecond:    6000,
			UniqueIPs:         []model.Addr{"8"},
		},
		Anomaly: model.AnomalyMetrics{URLLength: 27, BodyLength: 25, Spaces: 4, SQLInjectionPatterns: 2},
		Detection: model.Detection{
			AttackClass:          class,
			Confidence:           0.75,
			AnomalyScore:         1.5,
			FeatureContributions: map[string]float64{"feature_0": 27, "feature_1": 25},
		},
		Performance: model.PerformanceInfo{
			TotalRequests:     1,
			NormalRequests:    normal,
			MaliciousRequests: malicious,
			AvgProcessingTime: 1.34,
		},
	}
	return e.Normalize()
}
