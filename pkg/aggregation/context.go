package aggregation

import "sync/atomic"

// Context is the seam between the engine and the host graph.
//
// I identifies nodes, D is the aggregated data and C is a change to D.
// Lookups never fail: asking for an unknown id is a host bug and the host is
// free to panic.
type Context[I comparable, D, C any] interface {
	// Node locks the node and returns a guard over it. The engine releases
	// the guard before acquiring another one.
	Node(id I) NodeGuard[I, D, C]

	// InProgressCounter returns the node's in-progress counter. The pointer
	// must stay stable for the node's lifetime.
	InProgressCounter(id I) *atomic.Uint32

	// ApplyChange folds change into data and returns the change that
	// uppers of the node owning data should see, if any.
	ApplyChange(data *D, change C) (C, bool)

	// DataToAddChange returns the change that adds data to an upper.
	DataToAddChange(data *D) (C, bool)

	// DataToRemoveChange returns the change that removes data from an upper.
	DataToRemoveChange(data *D) (C, bool)
}

// NodeGuard is exclusive access to one node, obtained from [Context.Node].
type NodeGuard[I comparable, D, C any] interface {
	// State returns the aggregation state embedded in the host node.
	State() *Node[I, D]

	// Children returns the node's outgoing host edges. An id listed twice
	// stands for two edges.
	Children() []I

	// AddChange is the node's own contribution.
	AddChange() (C, bool)

	// RemoveChange undoes AddChange for the node's current state.
	RemoveChange() (C, bool)

	// InitialData is the data a node starts with when it becomes an
	// aggregator. DataToAddChange(InitialData()) must equal AddChange().
	InitialData() D

	// Unlock releases the node.
	Unlock()
}

// ControlFlow tells [Engine.QueryRootInfo] whether to keep walking.
type ControlFlow int

const (
	Continue ControlFlow = iota
	Break
)

// RootQuery is evaluated against the data of every aggregator reachable
// upwards from a node. Implementations keep their own result.
type RootQuery[D any] interface {
	Query(data *D) ControlFlow
}

// RootQueryFunc adapts a function to [RootQuery].
type RootQueryFunc[D any] func(data *D) ControlFlow

// Query calls f(data).
func (f RootQueryFunc[D]) Query(data *D) ControlFlow { return f(data) }
