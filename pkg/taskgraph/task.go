package taskgraph

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vercel/turborepo-sub010/pkg/aggregation"
	errs "github.com/vercel/turborepo-sub010/pkg/errors"
)

// TaskID identifies a task.
type TaskID string

// Trait names a kind of collectible a task can emit.
type Trait string

// State is the execution state of a task.
type State int

const (
	Scheduled State = iota
	InProgress
	Done
	Dirty
)

var stateNames = map[State]string{
	Scheduled:  "scheduled",
	InProgress: "in_progress",
	Done:       "done",
	Dirty:      "dirty",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Finished reports whether the task no longer counts as unfinished.
func (s State) Finished() bool { return s == Done }

// ParseState parses a state name as written in graph files.
// The empty string means Scheduled.
func ParseState(name string) (State, error) {
	if name == "" {
		return Scheduled, nil
	}
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, errs.New(errs.ErrCodeInvalidInput, "unknown task state %q", name)
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RootType marks a task whose aggregate drives scheduling.
type RootType int

const (
	// RootNone is an ordinary task.
	RootNone RootType = iota
	// RootRoot is a long-lived root task.
	RootRoot
	// RootOnce is a root that is released once it is done.
	RootOnce
)

func (r RootType) String() string {
	switch r {
	case RootRoot:
		return "root"
	case RootOnce:
		return "once"
	default:
		return ""
	}
}

// ParseRootType parses "root", "once" or the empty string.
func ParseRootType(name string) (RootType, error) {
	switch name {
	case "":
		return RootNone, nil
	case "root":
		return RootRoot, nil
	case "once":
		return RootOnce, nil
	}
	return 0, errs.New(errs.ErrCodeInvalidInput, "unknown root type %q", name)
}

func (r RootType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// task is a node of the host graph.
type task struct {
	mu           sync.Mutex
	id           TaskID
	state        State
	children     []TaskID
	collectibles map[Trait]map[string]int
	node         aggregation.Node[TaskID, Aggregated]
	inProgress   atomic.Uint32
}

// contribution is the task's own share of any aggregate, scaled by sign.
func (t *task) contribution(sign int) TaskChange {
	var c TaskChange
	if !t.state.Finished() {
		c.Unfinished = sign
	}
	if t.state == Dirty {
		c.DirtyTasks = map[TaskID]int{t.id: sign}
	}
	for trait, values := range t.collectibles {
		for v, n := range values {
			c.Collectibles = append(c.Collectibles, CollectibleDelta{Trait: trait, Value: v, Count: sign * n})
		}
	}
	slices.SortFunc(c.Collectibles, compareCollectibles)
	return c
}

func (t *task) emit(trait Trait, value string, n int) {
	if t.collectibles == nil {
		t.collectibles = make(map[Trait]map[string]int)
	}
	values := t.collectibles[trait]
	if values == nil {
		values = make(map[string]int)
		t.collectibles[trait] = values
	}
	values[value] += n
	if values[value] == 0 {
		delete(values, value)
	}
	if len(values) == 0 {
		delete(t.collectibles, trait)
	}
}

// taskGuard is a locked task.
type taskGuard struct {
	t *task
}

var _ aggregation.NodeGuard[TaskID, Aggregated, TaskChange] = (*taskGuard)(nil)

func (g *taskGuard) State() *aggregation.Node[TaskID, Aggregated] { return &g.t.node }
func (g *taskGuard) Children() []TaskID                           { return slices.Clone(g.t.children) }
func (g *taskGuard) Unlock()                                      { g.t.mu.Unlock() }

func (g *taskGuard) AddChange() (TaskChange, bool) {
	c := g.t.contribution(1)
	return c, !c.IsEmpty()
}

func (g *taskGuard) RemoveChange() (TaskChange, bool) {
	c := g.t.contribution(-1)
	return c, !c.IsEmpty()
}

func (g *taskGuard) InitialData() Aggregated {
	a := Aggregated{owner: g.t.id}
	a.apply(g.t.contribution(1))
	return a
}
