// Package influx writes one time-series point per committed entry.
package influx

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
)

// Measurement is the InfluxDB measurement every point is written to.
const Measurement = "waf_detection"

func init() {
	sink.Register("influx", fromConfig)
}

// fromConfig connects to cfg.Endpoint with cfg.Token. Extra keys org and
// bucket are required.
func fromConfig(cfg sink.Config) (sink.Sink, error) {
	org, bucket := cfg.Extra["org"], cfg.Extra["bucket"]
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("influx: endpoint is required"))
	}
	if org == "" {
		errs = append(errs, errors.New("influx: extra.org is required"))
	}
	if bucket == "" {
		errs = append(errs, errors.New("influx: extra.bucket is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return New(cfg.Endpoint, cfg.Token, org, bucket), nil
}

// Output writes entries through the blocking write API, so every Write is
// one HTTP round trip.
type Output struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// New creates an Output for the given server, token, org and bucket.
func New(url, token, org, bucket string) *Output {
	client := influxdb2.NewClient(url, token)
	return &Output{client: client, writeAPI: client.WriteAPIBlocking(org, bucket)}
}

func (o *Output) Write(ctx context.Context, entry model.Entry) error {
	if err := o.writeAPI.WritePoint(ctx, point(entry)); err != nil {
		return fmt.Errorf("influx: write: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	o.client.Close()
	return nil
}

// point maps an entry to a point tagged by verdict and request shape.
func point(e model.Entry) *write.Point {
	tags := map[string]string{
		"attack_class":   string(e.Detection.AttackClass),
		"request_method": e.Request.RequestMethod,
		"http_status":    strconv.Itoa(e.Request.HTTPStatus),
	}
	fields := map[string]interface{}{
		"confidence":             e.Detection.Confidence,
		"anomaly_score":          e.Detection.AnomalyScore,
		"source_ip":              string(e.Request.SourceIP),
		"requested_path":         e.Request.RequestedPath,
		"requests_per_second":    e.Traffic.RequestsPerSecond,
		"bytes_per_second":       e.Traffic.BytesPerSecond,
		"total_requests":         e.Performance.TotalRequests,
		"malicious_requests":     e.Performance.MaliciousRequests,
		"avg_processing_time":    e.Performance.AvgProcessingTime,
		"sql_injection_patterns": e.Anomaly.SQLInjectionPatterns,
		"xss_patterns":           e.Anomaly.XSSPatterns,
	}
	return influxdb2.NewPoint(Measurement, tags, fields, e.Request.Timestamp)
}
