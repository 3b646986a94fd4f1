// Package observability provides hooks for metrics, tracing, and logging.
//
// The aggregation engine, the task-graph simulator and the HTTP inspector
// report what they do through small hook interfaces. Nothing in the
// libraries depends on a metrics backend; main (or a test) registers hooks
// at startup and everything else calls them.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetAggregationHooks(&myAggregationHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Aggregation().OnPromote(id, number)
//
// Node ids are passed as any because the engine is generic over the host's
// id type.
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Aggregation Hooks
// =============================================================================

// AggregationHooks receives events from the aggregation engine. They are
// called without node locks held, possibly from many goroutines at once.
type AggregationHooks interface {
	// OnPromote records a leaf becoming an aggregator.
	OnPromote(id any, number uint32)

	// OnNumberRaised records an aggregator moving up in the hierarchy.
	OnNumberRaised(id any, from, to uint32)

	// OnFollowerLost records the last reference from upper to follower
	// going away.
	OnFollowerLost(upper, follower any)

	// OnBalanceEdge records one processed balance request.
	OnBalanceEdge(upper, target any, raised bool)
}

// =============================================================================
// Simulation Hooks
// =============================================================================

// SimulationHooks receives events from the task-graph simulator.
type SimulationHooks interface {
	OnRunStart(ctx context.Context, runID string, tasks, workers int)
	OnTaskComplete(ctx context.Context, runID, task string, duration time.Duration)
	OnRunComplete(ctx context.Context, runID string, duration time.Duration, err error)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the inspector's HTTP server.
type HTTPHooks interface {
	// OnRequest records an incoming HTTP request.
	OnRequest(ctx context.Context, method, path string)

	// OnResponse records the response sent for a request.
	OnResponse(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopAggregationHooks is a no-op implementation of AggregationHooks.
type NoopAggregationHooks struct{}

func (NoopAggregationHooks) OnPromote(any, uint32)              {}
func (NoopAggregationHooks) OnNumberRaised(any, uint32, uint32) {}
func (NoopAggregationHooks) OnFollowerLost(any, any)            {}
func (NoopAggregationHooks) OnBalanceEdge(any, any, bool)       {}

// NoopSimulationHooks is a no-op implementation of SimulationHooks.
type NoopSimulationHooks struct{}

func (NoopSimulationHooks) OnRunStart(context.Context, string, int, int)                  {}
func (NoopSimulationHooks) OnTaskComplete(context.Context, string, string, time.Duration) {}
func (NoopSimulationHooks) OnRunComplete(context.Context, string, time.Duration, error)   {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	aggregationHooks AggregationHooks = NoopAggregationHooks{}
	simulationHooks  SimulationHooks  = NoopSimulationHooks{}
	httpHooks        HTTPHooks        = NoopHTTPHooks{}
	hooksMu          sync.RWMutex
)

// SetAggregationHooks registers custom aggregation hooks.
// This should be called once at application startup before any engine is used.
func SetAggregationHooks(h AggregationHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		aggregationHooks = h
	}
}

// SetSimulationHooks registers custom simulation hooks.
func SetSimulationHooks(h SimulationHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		simulationHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Aggregation returns the registered aggregation hooks.
func Aggregation() AggregationHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return aggregationHooks
}

// Simulation returns the registered simulation hooks.
func Simulation() SimulationHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return simulationHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	aggregationHooks = NoopAggregationHooks{}
	simulationHooks = NoopSimulationHooks{}
	httpHooks = NoopHTTPHooks{}
}
