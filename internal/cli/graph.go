package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vercel/turborepo-sub010/pkg/cache"
	errs "github.com/vercel/turborepo-sub010/pkg/errors"
	"github.com/vercel/turborepo-sub010/pkg/render/nodelink"
	"github.com/vercel/turborepo-sub010/pkg/taskgraph"
)

type graphOpts struct {
	engine    engineFlags
	output    string
	detailed  bool
	followers bool
	roots     bool
	noCache   bool
}

// graphCommand creates the graph command, which draws the aggregation
// structure of a graph file as DOT or SVG.
func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph FILE",
		Short: "Draw the aggregation structure of a graph",
		Long: `Graph loads a graph file and draws its tasks, their child edges and, with
--followers, the follower edges the aggregation maintains. Roots are drawn
with a double border. Without -o the DOT source goes to stdout.`,
		Example: `  aggtree graph workspace.toml
  aggtree graph workspace.toml -o workspace.svg --followers
  aggtree graph workspace.toml -o workspace.dot --roots --detailed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd, args[0], opts)
		},
	}

	opts.engine.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (.dot or .svg)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label tasks with state and aggregation number")
	cmd.Flags().BoolVar(&opts.followers, "followers", false, "draw follower edges")
	cmd.Flags().BoolVar(&opts.roots, "roots", false, "promote every task without parents to a root first")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "render SVG even if a cached copy exists")

	return cmd
}

func (c *CLI) runGraph(cmd *cobra.Command, path string, opts graphOpts) error {
	ctx := cmd.Context()

	ext := filepath.Ext(opts.output)
	if opts.output != "" && ext != ".dot" && ext != ".svg" {
		return errs.New(errs.ErrCodeUnsupported, "output %q must end in .dot or .svg", opts.output)
	}

	f, g, err := c.loadGraph(ctx, path, opts.engine.options(cmd)...)
	if err != nil {
		return err
	}
	if opts.roots {
		if err := promoteTops(g, f); err != nil {
			return err
		}
	}

	dot := nodelink.ToDOT(g.Snapshot(), nodelink.Options{Detailed: opts.detailed, Followers: opts.followers})
	if opts.output == "" {
		_, err := c.Out.Write([]byte(dot))
		return err
	}

	data, err := encodeGraph(ctx, newCache(opts.noCache), dot, ext)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "write %s", opts.output)
	}
	c.printSuccess("Wrote %s", opts.output)
	c.printFile(opts.output)
	return nil
}

// promoteTops reads the summary of every task no other task depends on,
// which turns each of them into a root aggregator.
func promoteTops(g *taskgraph.Graph, f *taskgraph.File) error {
	hasParent := make(map[string]bool)
	for _, t := range f.Tasks {
		for _, child := range t.Children {
			hasParent[child] = true
		}
	}
	for _, t := range f.Tasks {
		if hasParent[t.ID] {
			continue
		}
		if _, err := g.Summary(taskgraph.TaskID(t.ID)); err != nil {
			return err
		}
	}
	return nil
}

// encodeGraph returns the bytes to write for ext. SVG renders are cached by
// the hash of their DOT source.
func encodeGraph(ctx context.Context, c cache.Cache, dot, ext string) ([]byte, error) {
	if ext != ".svg" {
		return []byte(dot), nil
	}
	logger := loggerFromContext(ctx)
	key := cache.ArtifactKey("svg", []byte(dot))
	if data, ok, err := c.Get(ctx, key); err != nil {
		logger.Warn("read render cache", "err", err)
	} else if ok {
		logger.Debug("render cache hit", "key", key)
		return data, nil
	}

	data, err := nodelink.RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, data, renderCacheTTL); err != nil {
		logger.Warn("write render cache", "err", err)
	}
	return data, nil
}
