// Package metrics provides a minimal instrumentation surface with a no-op
// default and an optional Prometheus-backed implementation.
package metrics

import (
	"sync"
	"time"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncPassTotal(role, model string, success bool)
	ObservePassSeconds(role, model string, success bool, seconds float64)
	ObserveAgreement(domain string, score float64)
	IncToolTotal(tool string, success bool)
	ObserveToolSeconds(tool string, success bool, seconds float64)
	IncDBOpTotal(op string, success bool)
	ObserveDBOpSeconds(op string, success bool, seconds float64)
}

// noopRecorder implements Recorder with no-ops.
type noopRecorder struct{}

func (n *noopRecorder) IncPassTotal(string, string, bool)                {}
func (n *noopRecorder) ObservePassSeconds(string, string, bool, float64) {}
func (n *noopRecorder) ObserveAgreement(string, float64)                 {}
func (n *noopRecorder) IncToolTotal(string, bool)                        {}
func (n *noopRecorder) ObserveToolSeconds(string, bool, float64)         {}
func (n *noopRecorder) IncDBOpTotal(string, bool)                        {}
func (n *noopRecorder) ObserveDBOpSeconds(string, bool, float64)         {}

var (
	recMu    sync.RWMutex
	recorder Recorder = &noopRecorder{}
)

// Default returns the current recorder.
func Default() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

// SetRecorder swaps the global recorder implementation. Nil restores the no-op.
func SetRecorder(r Recorder) {
	recMu.Lock()
	defer recMu.Unlock()
	if r == nil {
		r = &noopRecorder{}
	}
	recorder = r
}

// TimePass times one extraction pass in the given role.
func TimePass(role, model string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncPassTotal(role, model, success)
		Default().ObservePassSeconds(role, model, success, dur)
	}
}

// TimeTool times one MCP tool call or HTTP API request.
func TimeTool(tool string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncToolTotal(tool, success)
		Default().ObserveToolSeconds(tool, success, dur)
	}
}

// TimeOp is a helper to time DB operations.
func TimeOp(op string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncDBOpTotal(op, success)
		Default().ObserveDBOpSeconds(op, success, dur)
	}
}

// Init installs the Prometheus recorder when enabled and serves /metrics and
// /healthz on addr (default :9090). If addr cannot be bound the no-op recorder
// stays in place and the error is returned.
func Init(enabled bool, addr string) error {
	if !enabled {
		return nil
	}
	if addr == "" {
		addr = ":9090"
	}
	return enablePrometheus(addr)
}
