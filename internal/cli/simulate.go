package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/vercel/turborepo-sub010/pkg/taskgraph"
)

// defaultRewire is the chance that completing a task cuts and restores one
// of its edges.
const defaultRewire = 0.25

type simulateOpts struct {
	engine  engineFlags
	workers int
	seed    uint64
	rewire  float64
	check   bool
}

// simulateCommand creates the simulate command, which runs every task of a
// graph file to completion and reports what the roots saw.
func (c *CLI) simulateCommand() *cobra.Command {
	opts := simulateOpts{rewire: defaultRewire}

	cmd := &cobra.Command{
		Use:   "simulate FILE",
		Short: "Run every task of a graph to completion",
		Long: `Simulate loads a graph file and completes its tasks from a pool of workers,
children before parents. Completing a task sometimes cuts and restores one
of its edges so the aggregation sees structural churn as well as state
changes. Afterwards every root must report zero unfinished tasks.`,
		Example: `  aggtree simulate workspace.toml
  aggtree simulate workspace.toml --workers 16 --seed 42 --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSimulate(cmd, args[0], opts)
		},
	}

	opts.engine.register(cmd)
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "concurrent workers (default from file, else 4)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "random seed (default from file)")
	cmd.Flags().Float64Var(&opts.rewire, "rewire", defaultRewire, "probability that completing a task rewires one of its edges")
	cmd.Flags().BoolVar(&opts.check, "check", false, "verify engine invariants after the run")

	return cmd
}

func (c *CLI) runSimulate(cmd *cobra.Command, path string, opts simulateOpts) error {
	ctx := cmd.Context()
	f, g, err := c.loadGraph(ctx, path, opts.engine.options(cmd)...)
	if err != nil {
		return err
	}

	sim := &taskgraph.Simulator{
		Graph:   g,
		Workers: f.Engine.Workers,
		Seed:    uint64(f.Engine.Seed),
		Rewire:  opts.rewire,
		Check:   opts.check,
		Logger:  loggerFromContext(ctx),
	}
	if cmd.Flags().Changed("workers") {
		sim.Workers = opts.workers
	}
	if cmd.Flags().Changed("seed") {
		sim.Seed = opts.seed
	}

	roots := g.Roots()
	if len(roots) == 0 {
		c.printWarning("%s marks no roots, so no aggregate is checked", path)
	}
	before := make(map[taskgraph.TaskID]taskgraph.Summary)
	for _, id := range roots {
		s, err := g.Summary(id)
		if err != nil {
			return err
		}
		before[id] = s
	}

	res, err := sim.Run(ctx)
	if err != nil {
		return err
	}

	c.printNewline()
	c.println(summaryTable(before, res.Roots))
	c.printNewline()
	c.printSuccess("Completed %d tasks, rewired %d edges (%s)", res.Completed, res.Rewired, res.Duration.Round(time.Millisecond))
	c.printKeyValue("run", res.RunID)
	c.printKeyValue("workspace", formatTotals(res.Workspace))
	if len(res.Scheduled) > 0 {
		c.printInfo("%d dirty tasks reached a root", len(res.Scheduled))
		for _, id := range res.Scheduled {
			c.printDetail("%s", id)
		}
	}
	for _, s := range res.Roots {
		for _, trait := range sortedTraits(s.Collectibles) {
			c.printDetail("%s %s: %s", s.ID, trait, strings.Join(s.Collectibles[trait], ", "))
		}
	}
	return nil
}

// summaryTable renders one row per root: its type, how many tasks were
// unfinished and dirty before the run and after it, and what it collected.
func summaryTable(before map[taskgraph.TaskID]taskgraph.Summary, after []taskgraph.Summary) string {
	rows := make([][]string, 0, len(after))
	for _, s := range after {
		b := before[s.ID]
		rows = append(rows, []string{
			string(s.ID),
			s.RootType.String(),
			transition(b.Unfinished, s.Unfinished),
			transition(len(b.Dirty), len(s.Dirty)),
			strconv.Itoa(countValues(s.Collectibles)),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Root", "Type", "Unfinished", "Dirty", "Collectibles").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return cell.Foreground(colorCyan)
			case col == 2 && after[row].Done():
				return cell.Foreground(colorGreen)
			default:
				return cell
			}
		})
	return t.Render()
}

func transition(from, to int) string {
	if from == to {
		return strconv.Itoa(to)
	}
	return fmt.Sprintf("%d %s %d", from, iconArrow, to)
}

func countValues(m map[taskgraph.Trait][]string) int {
	n := 0
	for _, vs := range m {
		n += len(vs)
	}
	return n
}

func sortedTraits(m map[taskgraph.Trait][]string) []taskgraph.Trait {
	out := make([]taskgraph.Trait, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func formatTotals(t taskgraph.Totals) string {
	return fmt.Sprintf("%d roots · %d unfinished · %d dirty · %d collectibles",
		t.Roots, t.Unfinished, t.Dirty, t.Collectibles)
}
