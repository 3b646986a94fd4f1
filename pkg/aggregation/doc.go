// Package aggregation maintains live roll-up summaries over a mutable,
// concurrently updated dependency graph.
//
// The host graph (tasks, cells, anything with children) owns its nodes and
// embeds a [Node] in each of them. Whenever the host adds or removes an edge,
// or changes a node's own contribution, it tells the [Engine], which keeps the
// aggregated data of every aggregator up to date without rescanning the graph.
//
// # Node Kinds
//
// A node is either a leaf or an aggregator:
//
//   - Leaf: forwards its own contribution and its children to its uppers.
//     Leaves are transparent: an aggregator that follows a leaf also follows
//     the leaf's children.
//   - Aggregating: owns data D, the sum of everything reachable through its
//     followers, and an aggregation number that ranks it in the hierarchy.
//     [RootNumber] marks a root aggregator.
//
// The followers/uppers relation is mirrored: X follows A exactly when A is an
// upper of X. For every such pair the engine maintains
//
//	X.number < A.number, unless either side is RootNumber
//
// using a [BalanceQueue] drained to a fixed point.
//
// # Changes
//
// Data flows as changes of type C. The host converts between data and changes
// through its [Context] (ApplyChange, DataToAddChange, DataToRemoveChange), and
// every node guard reports the node's own AddChange and RemoveChange. Changes
// must commute: the engine applies them in whatever order concurrent workers
// produce them.
//
// A node reachable from an aggregator through several aggregators may be
// counted once per route. Data types should therefore be count based (maps of
// id to count, or counters that are only compared against zero).
//
// # Locking
//
// The engine never holds two node guards at the same time. Every operation
// that touches more than one node is split into a prepare step, which
// snapshots what it needs while the caller's guard is held, and an apply step
// that runs after the guard is released:
//
//	g := ctx.Node(parent)
//	g.children = append(g.children, child)
//	p := engine.PrepareNewEdge(g, parent, child)
//	g.Unlock()
//	p.Apply()
//
// # Quiescence
//
// Every pending contribution into a node holds one unit of that node's
// in-progress counter. [Engine.WaitQuiescent] blocks until the counter drops
// to zero, after which the data returned by [Engine.AggregationData] reflects
// all contributions that happened before.
package aggregation
