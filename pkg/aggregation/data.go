package aggregation

import "fmt"

// DataGuard holds a root aggregator locked and exposes its data.
type DataGuard[I comparable, D, C any] struct {
	g NodeGuard[I, D, C]
}

// Data returns the aggregated data. The pointer is only valid until Unlock.
func (d *DataGuard[I, D, C]) Data() *D {
	n := d.g.State()
	if n.agg == nil {
		panic("aggregation: data guard over a leaf node")
	}
	return &n.agg.data
}

// Guard returns the underlying node guard, for use with the Prepare*
// operations.
func (d *DataGuard[I, D, C]) Guard() NodeGuard[I, D, C] { return d.g }

// Unlock releases the node.
func (d *DataGuard[I, D, C]) Unlock() { d.g.Unlock() }

// AggregationData makes id a root aggregator and returns it locked.
// A node that already is a root is returned without any rebalancing.
//
// The data covers every contribution that completed before the call. To
// also include contributions still in flight from other goroutines, call
// WaitQuiescent first.
func (e *Engine[I, D, C]) AggregationData(id I) *DataGuard[I, D, C] {
	g := e.ctx.Node(id)
	if g.State().IsRoot() {
		return &DataGuard[I, D, C]{g: g}
	}
	g.Unlock()

	e.increaseTo(id, RootNumber)

	g = e.ctx.Node(id)
	if !g.State().IsRoot() {
		number := g.State().AggregationNumber()
		g.Unlock()
		panic(fmt.Sprintf("aggregation: %v has number %d after root promotion", id, number))
	}
	return &DataGuard[I, D, C]{g: g}
}

// PrepareAggregationData promotes id to a root without keeping it locked,
// so that a later AggregationData call finds it ready.
func (e *Engine[I, D, C]) PrepareAggregationData(id I) {
	g := e.ctx.Node(id)
	root := g.State().IsRoot()
	g.Unlock()
	if !root {
		e.increaseTo(id, RootNumber)
	}
}
