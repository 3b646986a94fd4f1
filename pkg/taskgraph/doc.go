// Package taskgraph is a concurrent task graph that keeps live roll-ups of
// its tasks through the aggregation engine.
//
// Each task has a [State], children it depends on, and collectibles it
// emitted. Marking a task as a root with [Graph.MarkRoot] promotes it to a
// root aggregator; from then on [Graph.Summary] answers "how many tasks
// below are unfinished, which are dirty, what was emitted" without walking
// the graph. Dirty tasks that reach a root are queued and handed out by
// [Graph.TakeScheduled].
//
// Graphs are usually loaded from TOML graph files with [Load] and built with
// [File.Build]. A [Simulator] then drives every task to Done from a pool of
// workers while cutting and restoring edges, which makes it a convenient
// stress test for the engine.
//
// The workspace view ([Graph.Workspace]) sums the totals of all roots. It is
// kept in a two-tier cluster tree so that root updates stay cheap however
// many roots exist.
package taskgraph
