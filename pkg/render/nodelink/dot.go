package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/vercel/turborepo-sub010/pkg/taskgraph"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds state, kind and aggregation number to node labels.
	// When false, only the task ID is shown.
	Detailed bool

	// Followers draws a dashed edge from every aggregator to each of its
	// followers, labelled with the follower count when it is above one.
	Followers bool
}

// ToDOT converts a task graph snapshot to Graphviz DOT format.
// The resulting DOT string can be rendered using [RenderSVG].
//
// Leaves are rounded boxes, aggregators are double-bordered and roots are
// filled. Host edges are solid.
func ToDOT(snap *taskgraph.Snapshot, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, t := range snap.Tasks {
		label := fmtLabel(t, opts.Detailed)
		fmt.Fprintf(&buf, "  %q [%s];\n", string(t.ID), strings.Join(fmtAttrs(t, label), ", "))
	}

	buf.WriteString("\n")
	for _, t := range snap.Tasks {
		for _, c := range t.Children {
			fmt.Fprintf(&buf, "  %q -> %q;\n", string(t.ID), string(c))
		}
	}

	if opts.Followers {
		buf.WriteString("\n")
		for _, t := range snap.Tasks {
			for _, f := range slices.Sorted(maps.Keys(t.Followers)) {
				n := t.Followers[f]
				if n <= 0 {
					continue
				}
				attrs := []string{"style=dashed", "color=\"#6c71c4\"", "constraint=false"}
				if n > 1 {
					attrs = append(attrs, fmt.Sprintf("label=%q", strconv.Itoa(n)))
				}
				fmt.Fprintf(&buf, "  %q -> %q [%s];\n", string(t.ID), string(f), strings.Join(attrs, ", "))
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(t taskgraph.TaskSnapshot, detailed bool) string {
	if !detailed {
		return string(t.ID)
	}

	parts := []string{"state: " + t.State.String()}
	switch {
	case t.Root:
		root := "root"
		if t.RootType != taskgraph.RootNone {
			root += " (" + t.RootType.String() + ")"
		}
		parts = append(parts, root)
	case t.Aggregating():
		parts = append(parts, fmt.Sprintf("number: %d", t.Number))
	}
	return string(t.ID) + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(t taskgraph.TaskSnapshot, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch {
	case t.Root:
		attrs = append(attrs, "peripheries=2", "fillcolor=\"#fdf6e3\"", "penwidth=2")
	case t.Aggregating():
		attrs = append(attrs, "peripheries=2")
	}
	if t.State == taskgraph.Dirty {
		attrs = append(attrs, "color=\"#dc322f\"")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's point-based svg header with one that
// scales cleanly when embedded.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	header := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(header))
}
