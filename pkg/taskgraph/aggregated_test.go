package taskgraph

import (
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	a := TaskChange{
		Unfinished:   1,
		DirtyTasks:   map[TaskID]int{"x": 1},
		Collectibles: []CollectibleDelta{{Trait: "w", Value: "v", Count: 1}},
	}
	b := TaskChange{
		Unfinished:   -1,
		DirtyTasks:   map[TaskID]int{"x": -1, "y": 1},
		Collectibles: []CollectibleDelta{{Trait: "w", Value: "v", Count: -1}, {Trait: "a", Value: "z", Count: 2}},
	}

	got := a.Merge(b)
	want := TaskChange{
		DirtyTasks:   map[TaskID]int{"y": 1},
		Collectibles: []CollectibleDelta{{Trait: "a", Value: "z", Count: 2}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %+v, want %+v", got, want)
	}
	if !a.Merge(TaskChange{Unfinished: -1, DirtyTasks: map[TaskID]int{"x": -1}, Collectibles: []CollectibleDelta{{Trait: "w", Value: "v", Count: -1}}}).IsEmpty() {
		t.Error("merging a change with its negation is not empty")
	}
}

func TestAggregatedRoundTrip(t *testing.T) {
	var a Aggregated
	raised := a.apply(TaskChange{
		Unfinished:   2,
		DirtyTasks:   map[TaskID]int{"x": 1},
		Collectibles: []CollectibleDelta{{Trait: "w", Value: "v", Count: 1}},
	})
	if !reflect.DeepEqual(raised, []TaskID{"x"}) {
		t.Errorf("raised = %v, want [x]", raised)
	}

	if got := a.totals(); got != (Totals{Roots: 1, Unfinished: 2, Dirty: 1, Collectibles: 1}) {
		t.Errorf("totals() = %+v", got)
	}

	var b Aggregated
	b.apply(a.change(1))
	b.apply(a.change(-1))
	if b.Unfinished != 0 || len(b.DirtyTasks) != 0 || len(b.Collectibles) != 0 {
		t.Errorf("add then remove left %+v", b)
	}
}

func TestAggregatedDirtyDecrementIsNotRaised(t *testing.T) {
	a := Aggregated{DirtyTasks: map[TaskID]int{"x": 2}}
	if raised := a.apply(TaskChange{DirtyTasks: map[TaskID]int{"x": -1}}); len(raised) != 0 {
		t.Errorf("raised = %v, want none", raised)
	}
	if got := a.dirty(); !reflect.DeepEqual(got, []TaskID{"x"}) {
		t.Errorf("dirty() = %v, want [x]", got)
	}
}

func TestParseNames(t *testing.T) {
	states := []struct {
		name string
		want State
		ok   bool
	}{
		{"", Scheduled, true},
		{"scheduled", Scheduled, true},
		{"in_progress", InProgress, true},
		{"done", Done, true},
		{"dirty", Dirty, true},
		{"Done", 0, false},
	}
	for _, tt := range states {
		got, err := ParseState(tt.name)
		if (err == nil) != tt.ok || (tt.ok && got != tt.want) {
			t.Errorf("ParseState(%q) = %v, %v", tt.name, got, err)
		}
		if tt.ok && tt.name != "" && got.String() != tt.name {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.name)
		}
	}

	roots := []struct {
		name string
		want RootType
		ok   bool
	}{
		{"", RootNone, true},
		{"root", RootRoot, true},
		{"once", RootOnce, true},
		{"always", 0, false},
	}
	for _, tt := range roots {
		got, err := ParseRootType(tt.name)
		if (err == nil) != tt.ok || (tt.ok && got != tt.want) {
			t.Errorf("ParseRootType(%q) = %v, %v", tt.name, got, err)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("dirty")); err != nil || s != Dirty {
		t.Errorf("UnmarshalText(dirty) = %v, %v", s, err)
	}
	if b, _ := Done.MarshalText(); string(b) != "done" {
		t.Errorf("MarshalText() = %s", b)
	}
}
