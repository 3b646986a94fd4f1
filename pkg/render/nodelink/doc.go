// Package nodelink renders the aggregation structure of a task graph as a
// node-link diagram.
//
// # Usage
//
// Take a snapshot of the graph, convert it to DOT, then render to SVG:
//
//	dot := nodelink.ToDOT(g.Snapshot(), nodelink.Options{Followers: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// # Options
//
// The [Options] struct controls diagram generation:
//
//   - Detailed: node labels include state, kind and aggregation number
//   - Followers: aggregators get dashed edges to the followers they track
//
// # DOT Format
//
// The generated DOT uses top-to-bottom layout (rankdir=TB) with rounded box
// nodes. Aggregators are drawn with a double border, roots are filled and
// dirty tasks get a red outline. Follower edges do not constrain the layout,
// so the host structure keeps its shape.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering. No external Graphviz install is needed.
package nodelink
