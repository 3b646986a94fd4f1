package cli

import (
	"github.com/spf13/cobra"

	"github.com/vercel/turborepo-sub010/internal/inspect"
)

// serveCommand creates the serve command, which exposes a loaded graph over
// HTTP until interrupted.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		engine engineFlags
		addr   string
	)

	cmd := &cobra.Command{
		Use:   "serve FILE",
		Short: "Serve a graph over HTTP for inspection",
		Long: `Serve loads a graph file and answers queries about it over HTTP: task
state, root summaries, workspace totals and a DOT drawing. Task states can
be changed with POST /tasks/{id}/state, so the aggregates can be watched
while they update.`,
		Example: `  aggtree serve workspace.toml
  aggtree serve workspace.toml --addr 127.0.0.1:9000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, g, err := c.loadGraph(ctx, args[0], engine.options(cmd)...)
			if err != nil {
				return err
			}
			c.printInfo("Serving %d tasks on %s", g.Len(), addr)
			c.printNextStep("Try", "curl http://"+displayAddr(addr)+"/workspace")
			return inspect.New(g, loggerFromContext(ctx)).ListenAndServe(ctx, addr)
		},
	}

	engine.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address")

	return cmd
}

// displayAddr turns a listen address like ":8080" into something a user can
// paste into a URL.
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
