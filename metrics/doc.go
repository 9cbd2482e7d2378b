// Package metrics tracks query latency, throughput and uptime, and defines
// the Observer hook used to export service events.
//
// Every tracker owns its lock. None of them is ever held together with the
// index state lock.
package metrics
