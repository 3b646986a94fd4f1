package taskgraph

import (
	"slices"

	"github.com/vercel/turborepo-sub010/pkg/aggregation"
)

// TaskSnapshot is a copy of one task and its aggregation state.
type TaskSnapshot struct {
	ID         TaskID         `json:"id"`
	State      State          `json:"state"`
	Children   []TaskID       `json:"children,omitempty"`
	Kind       string         `json:"kind"`
	Number     uint32         `json:"number,omitempty"`
	Root       bool           `json:"root,omitempty"`
	RootType   RootType       `json:"root_type,omitempty"`
	Uppers     map[TaskID]int `json:"uppers,omitempty"`
	Followers  map[TaskID]int `json:"followers,omitempty"`
	InProgress uint32         `json:"in_progress,omitempty"`
}

// Aggregating reports whether the task is an aggregator.
func (s TaskSnapshot) Aggregating() bool { return s.Kind == aggregation.KindAggregating.String() }

// Snapshot is a copy of the whole graph. Tasks are sorted by id.
type Snapshot struct {
	Tasks     []TaskSnapshot `json:"tasks"`
	Workspace Totals         `json:"workspace"`
}

// Task returns the snapshot of id, if present.
func (s *Snapshot) Task(id TaskID) (TaskSnapshot, bool) {
	i, ok := slices.BinarySearchFunc(s.Tasks, id, func(t TaskSnapshot, id TaskID) int {
		switch {
		case t.ID < id:
			return -1
		case t.ID > id:
			return 1
		}
		return 0
	})
	if !ok {
		return TaskSnapshot{}, false
	}
	return s.Tasks[i], true
}

// Inspect returns a snapshot of one task.
func (g *Graph) Inspect(id TaskID) (TaskSnapshot, error) {
	t, err := g.lookup(id)
	if err != nil {
		return TaskSnapshot{}, err
	}
	t.mu.Lock()
	s := TaskSnapshot{
		ID:       id,
		State:    t.state,
		Children: slices.Clone(t.children),
	}
	if n := &t.node; n.IsRoot() {
		s.RootType = n.Data().RootType
	}
	t.mu.Unlock()

	info := g.engine.Inspect(id)
	s.Kind = info.Kind.String()
	s.Number = info.Number
	s.Root = info.Number == aggregation.RootNumber
	s.Uppers = info.Uppers
	s.Followers = info.Followers
	s.InProgress = info.InProgress
	return s, nil
}

// Snapshot copies every task. Tasks are read one at a time, so a snapshot
// taken while the graph changes may mix states.
func (g *Graph) Snapshot() *Snapshot {
	ids := g.IDs()
	s := &Snapshot{Tasks: make([]TaskSnapshot, 0, len(ids))}
	for _, id := range ids {
		ts, err := g.Inspect(id)
		if err != nil {
			continue
		}
		s.Tasks = append(s.Tasks, ts)
	}
	s.Workspace = g.Workspace()
	return s
}
