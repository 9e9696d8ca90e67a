package waflog

import "github.com/crimson-sun/waflog/internal/model"

// Entry is one WAF log record as served by GET /api/logs.
type Entry = model.Entry

// AttackClass is the detection label of an entry.
type AttackClass = model.AttackClass

// Attack labels emitted by the simulator.
const (
	AttackNone               = model.AttackNone
	AttackSQLi               = model.AttackSQLi
	AttackDDoS               = model.AttackDDoS
	AttackXSS                = model.AttackXSS
	AttackDirectoryTraversal = model.AttackDirectoryTraversal
	AttackCommandInjection   = model.AttackCommandInjection
)

// Health is the body of GET /api/health.
type Health struct {
	Status  string `json:"status"`
	Entries int    `json:"entries"`
}
