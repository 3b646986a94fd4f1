package taskgraph

import (
	"cmp"
	"slices"
)

// Aggregated is the roll-up an aggregator keeps for the tasks it covers.
//
// Counts are sums over the paths the engine knows about, so a task reached
// along two routes through nested aggregators may be counted twice. Treat
// the numbers as "zero or not" rather than exact task counts.
type Aggregated struct {
	// Unfinished counts tasks that are not done.
	Unfinished int
	// DirtyTasks counts, per task, how often it was reported dirty.
	DirtyTasks map[TaskID]int
	// Collectibles counts emitted values by trait.
	Collectibles map[Trait]map[string]int
	// RootType is only set on root aggregators.
	RootType RootType

	owner TaskID
}

// Owner returns the task the aggregate belongs to.
func (a *Aggregated) Owner() TaskID { return a.owner }

// CollectibleDelta changes the count of one emitted value.
type CollectibleDelta struct {
	Trait Trait
	Value string
	Count int
}

func compareCollectibles(a, b CollectibleDelta) int {
	if c := cmp.Compare(a.Trait, b.Trait); c != 0 {
		return c
	}
	return cmp.Compare(a.Value, b.Value)
}

// TaskChange is a delta to an [Aggregated]. Changes are shared between
// the steps that forward them and must not be mutated once built.
type TaskChange struct {
	Unfinished   int
	DirtyTasks   map[TaskID]int
	Collectibles []CollectibleDelta
}

// IsEmpty reports whether applying c would change nothing.
func (c TaskChange) IsEmpty() bool {
	return c.Unfinished == 0 && len(c.DirtyTasks) == 0 && len(c.Collectibles) == 0
}

// Merge returns the sum of c and o. Zero entries are dropped.
func (c TaskChange) Merge(o TaskChange) TaskChange {
	out := TaskChange{Unfinished: c.Unfinished + o.Unfinished}
	for _, m := range []map[TaskID]int{c.DirtyTasks, o.DirtyTasks} {
		for id, n := range m {
			if out.DirtyTasks == nil {
				out.DirtyTasks = make(map[TaskID]int)
			}
			addCount(out.DirtyTasks, id, n)
		}
	}
	if len(out.DirtyTasks) == 0 {
		out.DirtyTasks = nil
	}

	type key struct {
		trait Trait
		value string
	}
	sums := make(map[key]int)
	for _, d := range slices.Concat(c.Collectibles, o.Collectibles) {
		sums[key{d.Trait, d.Value}] += d.Count
	}
	for k, n := range sums {
		if n != 0 {
			out.Collectibles = append(out.Collectibles, CollectibleDelta{Trait: k.trait, Value: k.value, Count: n})
		}
	}
	slices.SortFunc(out.Collectibles, compareCollectibles)
	return out
}

// totals returns the workspace-level delta of c.
func (c TaskChange) totals() Totals {
	t := Totals{Unfinished: c.Unfinished}
	for _, n := range c.DirtyTasks {
		t.Dirty += n
	}
	for _, d := range c.Collectibles {
		t.Collectibles += d.Count
	}
	return t
}

// apply folds c into a and returns the tasks whose dirty count went up and
// is positive afterwards.
func (a *Aggregated) apply(c TaskChange) []TaskID {
	a.Unfinished += c.Unfinished

	var raised []TaskID
	for id, n := range c.DirtyTasks {
		if a.DirtyTasks == nil {
			a.DirtyTasks = make(map[TaskID]int)
		}
		if addCount(a.DirtyTasks, id, n) > 0 && n > 0 {
			raised = append(raised, id)
		}
	}
	for _, d := range c.Collectibles {
		if a.Collectibles == nil {
			a.Collectibles = make(map[Trait]map[string]int)
		}
		values := a.Collectibles[d.Trait]
		if values == nil {
			values = make(map[string]int)
			a.Collectibles[d.Trait] = values
		}
		addCount(values, d.Value, d.Count)
		if len(values) == 0 {
			delete(a.Collectibles, d.Trait)
		}
	}
	return raised
}

// change returns the delta that adds (sign 1) or removes (sign -1) a.
func (a *Aggregated) change(sign int) TaskChange {
	c := TaskChange{Unfinished: sign * a.Unfinished}
	if len(a.DirtyTasks) > 0 {
		c.DirtyTasks = make(map[TaskID]int, len(a.DirtyTasks))
		for id, n := range a.DirtyTasks {
			c.DirtyTasks[id] = sign * n
		}
	}
	for trait, values := range a.Collectibles {
		for v, n := range values {
			c.Collectibles = append(c.Collectibles, CollectibleDelta{Trait: trait, Value: v, Count: sign * n})
		}
	}
	slices.SortFunc(c.Collectibles, compareCollectibles)
	return c
}

// totals summarizes a for the workspace tree.
func (a *Aggregated) totals() Totals {
	t := a.change(1).totals()
	t.Roots = 1
	return t
}

// dirty returns the tasks with a positive dirty count, sorted.
func (a *Aggregated) dirty() []TaskID {
	var out []TaskID
	for id, n := range a.DirtyTasks {
		if n > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// collected returns the values with a positive count per trait, sorted.
func (a *Aggregated) collected() map[Trait][]string {
	out := make(map[Trait][]string, len(a.Collectibles))
	for trait, values := range a.Collectibles {
		var vs []string
		for v, n := range values {
			if n > 0 {
				vs = append(vs, v)
			}
		}
		if len(vs) > 0 {
			slices.Sort(vs)
			out[trait] = vs
		}
	}
	return out
}

func addCount[K comparable](m map[K]int, k K, n int) int {
	v := m[k] + n
	if v == 0 {
		delete(m, k)
	} else {
		m[k] = v
	}
	return v
}

// =============================================================================
// Workspace totals
// =============================================================================

// Totals is the workspace-wide roll-up over all roots.
type Totals struct {
	Roots        int `json:"roots"`
	Unfinished   int `json:"unfinished"`
	Dirty        int `json:"dirty"`
	Collectibles int `json:"collectibles"`
}

// IsZero reports whether every field is zero.
func (t Totals) IsZero() bool { return t == Totals{} }

func (t Totals) add(o Totals) Totals {
	return Totals{
		Roots:        t.Roots + o.Roots,
		Unfinished:   t.Unfinished + o.Unfinished,
		Dirty:        t.Dirty + o.Dirty,
		Collectibles: t.Collectibles + o.Collectibles,
	}
}

func (t Totals) negate() Totals {
	return Totals{Roots: -t.Roots, Unfinished: -t.Unfinished, Dirty: -t.Dirty, Collectibles: -t.Collectibles}
}

// totalsAggregator sums Totals for the workspace tree.
type totalsAggregator struct{}

func (totalsAggregator) ApplyChange(d *Totals, c Totals) (Totals, bool) {
	*d = d.add(c)
	return c, !c.IsZero()
}

func (totalsAggregator) DataToAddChange(d *Totals) (Totals, bool)    { return *d, !d.IsZero() }
func (totalsAggregator) DataToRemoveChange(d *Totals) (Totals, bool) { return d.negate(), !d.IsZero() }
func (totalsAggregator) NewData() Totals                             { return Totals{} }
