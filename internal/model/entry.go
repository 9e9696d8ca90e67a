package model

import "time"

// AttackClass is the label assigned by the detection stage.
type AttackClass string

const (
	AttackNone               AttackClass = "None"
	AttackSQLi               AttackClass = "SQLi"
	AttackDDoS               AttackClass = "DDoS"
	AttackXSS                AttackClass = "XSS"
	AttackDirectoryTraversal AttackClass = "DirectoryTraversal"
	AttackCommandInjection   AttackClass = "CommandInjection"
)

// KnownAttackClasses lists the labels the simulator emits. Stored entries may
// carry labels outside this set.
var KnownAttackClasses = []AttackClass{
	AttackNone,
	AttackSQLi,
	AttackDDoS,
	AttackXSS,
	AttackDirectoryTraversal,
	AttackCommandInjection,
}

// Known reports whether c is one of KnownAttackClasses.
func (c AttackClass) Known() bool {
	for _, k := range KnownAttackClasses {
		if c == k {
			return true
		}
	}
	return false
}

// Entry is one WAF log record. Field names on the wire match the log file
// written by earlier versions of the simulator.
type Entry struct {
	Request     RequestData     `json:"general_request_data"`
	Traffic     TrafficStats    `json:"traffic_ddos_monitoring"`
	Anomaly     AnomalyMetrics  `json:"anomaly_detection_metrics"`
	Detection   Detection       `json:"ml_attack_detection"`
	Performance PerformanceInfo `json:"log_performance_insights"`
}

// RequestData holds connection and HTTP request metadata.
type RequestData struct {
	Timestamp     time.Time         `json:"timestamp"`
	SourceIP      Addr              `json:"source_ip"`
	DestIP        Addr              `json:"dest_ip"`
	SourcePort    int               `json:"source_port"`
	DestPort      int               `json:"dest_port"`
	RequestMethod string            `json:"request_method"`
	RequestedPath string            `json:"requested_path"`
	QueryParams   map[string]string `json:"query_params"`
	UserAgent     string            `json:"user_agent"`
	Referrer      string            `json:"referrer"`
	HTTPStatus    int               `json:"http_status"`
}

// TrafficStats holds rate and volume counters observed around the request.
type TrafficStats struct {
	RequestsPerSecond float64 `json:"total_requests_per_second"`
	PacketsPerSecond  float64 `json:"packets_per_second"`
	PacketLength      int     `json:"packet_length"`
	BytesPerSecond    float64 `json:"traffic_volume_bytes_per_second"`
	UniqueIPs         []Addr  `json:"unique_ips"`
	FlaggedDDoS       int     `json:"flagged_ddos_attacks"`
}

// AnomalyMetrics holds the request features fed to the detector.
type AnomalyMetrics struct {
	PathEntropy                int `json:"path_entropy"`
	BodyEntropy                int `json:"body_entropy"`
	URLLength                  int `json:"url_length"`
	BodyLength                 int `json:"body_length"`
	SingleQuotes               int `json:"single_quotes_count"`
	DoubleQuotes               int `json:"double_quotes_count"`
	Dashes                     int `json:"dashes_count"`
	Braces                     int `json:"braces_count"`
	Spaces                     int `json:"spaces_count"`
	SQLInjectionPatterns       int `json:"sql_injection_patterns"`
	XSSPatterns                int `json:"xss_patterns"`
	DirectoryTraversalAttempts int `json:"directory_traversal_attempts"`
	CommandInjections          int `json:"command_injection_count"`
	CSRF                       int `json:"csrf_count"`
}

// Detection is the classifier verdict for the request.
type Detection struct {
	AttackClass          AttackClass        `json:"attack_class"`
	Confidence           float64            `json:"ml_confidence_score"`
	AnomalyScore         float64            `json:"anomaly_score"`
	FeatureContributions map[string]float64 `json:"feature_contributions"`
}

// PerformanceInfo summarizes handling statistics attributed to the entry.
type PerformanceInfo struct {
	TotalRequests          int      `json:"total_requests_handled"`
	NormalRequests         int      `json:"normal_requests"`
	MaliciousRequests      int      `json:"malicious_requests"`
	Accuracy               *float64 `json:"attack_detection_accuracy"`
	AvgProcessingTime      float64  `json:"average_processing_time"`
	FrequentAttackPatterns []string `json:"most_frequent_attack_patterns"`
}
