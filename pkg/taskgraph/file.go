package taskgraph

import (
	"errors"
	"io/fs"
	"os"
	"slices"

	"github.com/BurntSushi/toml"

	errs "github.com/vercel/turborepo-sub010/pkg/errors"
)

// File is a task graph as written in a TOML graph file:
//
//	[engine]
//	max_uppers = 4
//	workers = 4
//
//	[[task]]
//	id = "web#build"
//	children = ["ui#build"]
//	root = "root"
//
//	[[task]]
//	id = "ui#build"
//	state = "dirty"
//
//	[[task.collectible]]
//	trait = "warning"
//	value = "unused import"
type File struct {
	Engine EngineConfig `toml:"engine"`
	Tasks  []TaskSpec   `toml:"task"`
}

// EngineConfig holds the tunables of the [engine] table.
type EngineConfig struct {
	// MaxUppers is nil when unset so that 0 can disable the heuristic.
	MaxUppers      *int  `toml:"max_uppers"`
	Workers        int   `toml:"workers"`
	Seed           int64 `toml:"seed"`
	BottomCapacity int   `toml:"bottom_capacity"`
}

// TaskSpec is one [[task]] entry.
type TaskSpec struct {
	ID           string            `toml:"id"`
	Children     []string          `toml:"children"`
	State        string            `toml:"state"`
	Root         string            `toml:"root"`
	Collectibles []CollectibleSpec `toml:"collectible"`
}

// CollectibleSpec is one [[task.collectible]] entry.
type CollectibleSpec struct {
	Trait string `toml:"trait"`
	Value string `toml:"value"`
}

// Load reads and validates a graph file.
func Load(path string) (*File, error) {
	if err := errs.ValidateGraphFilename(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrCodeFileNotFound, err, "graph file %s not found", path)
		}
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a graph file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "parse graph file")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids, states, root types, edges and acyclicity.
func (f *File) Validate() error {
	if f.Engine.Workers < 0 {
		return errs.New(errs.ErrCodeInvalidInput, "workers must not be negative")
	}
	seen := make(map[string]bool, len(f.Tasks))
	for _, t := range f.Tasks {
		if err := errs.ValidateTaskID(t.ID); err != nil {
			return err
		}
		if seen[t.ID] {
			return errs.New(errs.ErrCodeDuplicateTask, "task %q is defined twice", t.ID)
		}
		seen[t.ID] = true
		if _, err := ParseState(t.State); err != nil {
			return errs.Wrap(errs.ErrCodeInvalidGraph, err, "task %q", t.ID)
		}
		if _, err := ParseRootType(t.Root); err != nil {
			return errs.Wrap(errs.ErrCodeInvalidGraph, err, "task %q", t.ID)
		}
		for _, c := range t.Collectibles {
			if c.Trait == "" {
				return errs.New(errs.ErrCodeInvalidGraph, "task %q has a collectible without trait", t.ID)
			}
		}
	}
	for _, t := range f.Tasks {
		for _, c := range t.Children {
			if !seen[c] {
				return errs.New(errs.ErrCodeInvalidGraph, "task %q depends on unknown task %q", t.ID, c)
			}
		}
	}
	return f.detectCycles()
}

func (f *File) detectCycles() error {
	const (
		white = iota
		gray
		black
	)

	children := make(map[string][]string, len(f.Tasks))
	for _, t := range f.Tasks {
		children[t.ID] = t.Children
	}
	color := make(map[string]int, len(f.Tasks))
	var cycleAt string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		color[id] = gray
		for _, c := range children[id] {
			switch color[c] {
			case white:
				if dfs(c) {
					return true
				}
			case gray:
				cycleAt = c
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, t := range f.Tasks {
		if color[t.ID] == white && dfs(t.ID) {
			return errs.New(errs.ErrCodeCycle, "task graph has a cycle through %q", cycleAt)
		}
	}
	return nil
}

// Options returns the graph options the [engine] table asks for.
func (f *File) Options() []Option {
	var opts []Option
	if f.Engine.MaxUppers != nil {
		opts = append(opts, WithMaxUppers(*f.Engine.MaxUppers))
	}
	if f.Engine.BottomCapacity > 0 {
		opts = append(opts, WithBottomCapacity(f.Engine.BottomCapacity))
	}
	return opts
}

// Build creates the graph the file describes. opts are applied after the
// file's own engine options. Roots are marked after all edges exist.
func (f *File) Build(opts ...Option) (*Graph, error) {
	g := New(slices.Concat(f.Options(), opts)...)
	for _, t := range f.Tasks {
		state, _ := ParseState(t.State)
		if err := g.AddTask(TaskID(t.ID), state); err != nil {
			return nil, err
		}
	}
	for _, t := range f.Tasks {
		for _, c := range t.Children {
			if err := g.Connect(TaskID(t.ID), TaskID(c)); err != nil {
				return nil, err
			}
		}
		for _, c := range t.Collectibles {
			if err := g.Emit(TaskID(t.ID), Trait(c.Trait), c.Value); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range f.Tasks {
		rt, _ := ParseRootType(t.Root)
		if rt == RootNone {
			continue
		}
		if err := g.MarkRoot(TaskID(t.ID), rt); err != nil {
			return nil, err
		}
	}
	return g, nil
}
