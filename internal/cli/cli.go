package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vercel/turborepo-sub010/pkg/buildinfo"
	"github.com/vercel/turborepo-sub010/pkg/cache"
	"github.com/vercel/turborepo-sub010/pkg/taskgraph"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display.
	appName = "aggtree"

	// defaultAddr is where serve listens unless --addr says otherwise.
	defaultAddr = ":8080"

	// renderCacheTTL bounds how long a cached SVG render is reused.
	renderCacheTTL = 7 * 24 * time.Hour
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	// Out receives command output. Logs go to the logger's writer.
	Out io.Writer

	verbose bool
}

// New creates a new CLI instance with a default logger writing to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Out:    os.Stdout,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "aggtree maintains aggregated state over a changing task graph",
		Long: `aggtree loads a task graph from a TOML file and keeps, for every root,
an incrementally maintained aggregate of the tasks below it: how many are
unfinished, which are dirty and what they emitted.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := LogInfo
			if c.verbose {
				level = LogDebug
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.SetOut(c.Out)
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.simulateCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Graph Loading
// =============================================================================

// engineFlags are the flags that override a graph file's [engine] table.
type engineFlags struct {
	maxUppers      int
	bottomCapacity int
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxUppers, "max-uppers", 0, "promote a task once it has this many uppers (0 disables, default from file)")
	cmd.Flags().IntVar(&f.bottomCapacity, "bottom-capacity", 0, "members per bottom cluster of the workspace tree (default from file)")
}

// options returns the graph options for the flags the user actually set.
func (f *engineFlags) options(cmd *cobra.Command) []taskgraph.Option {
	var opts []taskgraph.Option
	if cmd.Flags().Changed("max-uppers") {
		opts = append(opts, taskgraph.WithMaxUppers(f.maxUppers))
	}
	if cmd.Flags().Changed("bottom-capacity") {
		opts = append(opts, taskgraph.WithBottomCapacity(f.bottomCapacity))
	}
	return opts
}

// loadGraph reads path and builds its graph. Later options win over the
// file's engine table.
func (c *CLI) loadGraph(ctx context.Context, path string, opts ...taskgraph.Option) (*taskgraph.File, *taskgraph.Graph, error) {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	f, err := taskgraph.Load(path)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]taskgraph.Option{taskgraph.WithLogger(logger)}, opts...)
	g, err := f.Build(opts...)
	if err != nil {
		return nil, nil, err
	}
	prog.done("Loaded " + path)
	return f, g, nil
}

// =============================================================================
// Render Cache
// =============================================================================

// newCache returns the on-disk render cache, or a NullCache when caching is
// off or the cache directory is unusable.
func newCache(disabled bool) cache.Cache {
	if disabled {
		return cache.NullCache{}
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NullCache{}
	}
	c, err := cache.NewFileCache(dir)
	if err != nil {
		return cache.NullCache{}
	}
	return c
}

// cacheDir follows XDG: $XDG_CACHE_HOME/aggtree, else ~/.cache/aggtree.
func cacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
