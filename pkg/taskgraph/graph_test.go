package taskgraph

import (
	"slices"
	"strconv"
	"sync"
	"testing"

	errs "github.com/vercel/turborepo-sub010/pkg/errors"
)

func mustGraph(t *testing.T, tasks map[TaskID]State, edges [][2]TaskID) *Graph {
	t.Helper()
	g := New()
	ids := make([]TaskID, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := g.AddTask(id, tasks[id]); err != nil {
			t.Fatalf("AddTask(%s) = %v", id, err)
		}
	}
	for _, e := range edges {
		if err := g.Connect(e[0], e[1]); err != nil {
			t.Fatalf("Connect(%s, %s) = %v", e[0], e[1], err)
		}
	}
	return g
}

func mustSummary(t *testing.T, g *Graph, id TaskID) Summary {
	t.Helper()
	s, err := g.Summary(id)
	if err != nil {
		t.Fatalf("Summary(%s) = %v", id, err)
	}
	return s
}

func TestSummaryFollowsStateChanges(t *testing.T) {
	g := mustGraph(t,
		map[TaskID]State{"app": Scheduled, "lib": Scheduled, "util": Dirty, "log": Scheduled},
		[][2]TaskID{{"app", "lib"}, {"lib", "util"}, {"app", "log"}},
	)
	if err := g.Emit("log", "warning", "w1"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkRoot("app", RootRoot); err != nil {
		t.Fatal(err)
	}

	s := mustSummary(t, g, "app")
	if s.Unfinished != 4 {
		t.Errorf("Unfinished = %d, want 4", s.Unfinished)
	}
	if !slices.Equal(s.Dirty, []TaskID{"util"}) {
		t.Errorf("Dirty = %v, want [util]", s.Dirty)
	}
	if got := s.Collectibles["warning"]; !slices.Equal(got, []string{"w1"}) {
		t.Errorf("Collectibles[warning] = %v, want [w1]", got)
	}
	if s.RootType != RootRoot {
		t.Errorf("RootType = %v, want root", s.RootType)
	}
	if got := g.TakeScheduled(); !slices.Equal(got, []TaskID{"util"}) {
		t.Errorf("TakeScheduled() = %v, want [util]", got)
	}
	if got := g.TakeScheduled(); len(got) != 0 {
		t.Errorf("second TakeScheduled() = %v, want empty", got)
	}

	want := Totals{Roots: 1, Unfinished: 4, Dirty: 1, Collectibles: 1}
	if got := g.Workspace(); got != want {
		t.Errorf("Workspace() = %+v, want %+v", got, want)
	}

	for _, id := range []TaskID{"util", "lib", "log", "app"} {
		if err := g.SetState(id, Done); err != nil {
			t.Fatalf("SetState(%s) = %v", id, err)
		}
	}
	s = mustSummary(t, g, "app")
	if !s.Done() || len(s.Dirty) != 0 {
		t.Errorf("summary after completion = %+v, want done and clean", s)
	}
	want = Totals{Roots: 1, Collectibles: 1}
	if got := g.Workspace(); got != want {
		t.Errorf("Workspace() = %+v, want %+v", got, want)
	}
	if err := g.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
}

func TestDirtyTaskUnderActiveRootIsScheduled(t *testing.T) {
	g := mustGraph(t,
		map[TaskID]State{"app": Done, "lib": Done, "other": Done},
		[][2]TaskID{{"app", "lib"}},
	)
	if err := g.MarkRoot("app", RootOnce); err != nil {
		t.Fatal(err)
	}
	if got := g.TakeScheduled(); len(got) != 0 {
		t.Fatalf("TakeScheduled() = %v, want empty", got)
	}

	if err := g.SetState("lib", Dirty); err != nil {
		t.Fatal(err)
	}
	if err := g.SetState("other", Dirty); err != nil {
		t.Fatal(err)
	}
	if got := g.TakeScheduled(); !slices.Equal(got, []TaskID{"lib"}) {
		t.Errorf("TakeScheduled() = %v, want [lib]", got)
	}
}

func TestIsActive(t *testing.T) {
	g := mustGraph(t,
		map[TaskID]State{"a": Scheduled, "b": Scheduled, "c": Scheduled},
		[][2]TaskID{{"a", "b"}},
	)
	if err := g.MarkRoot("a", RootRoot); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		id   TaskID
		want bool
	}{
		{"a", true},
		{"b", true},
		{"c", false},
	}
	for _, tt := range tests {
		got, err := g.IsActive(tt.id)
		if err != nil {
			t.Fatalf("IsActive(%s) = %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("IsActive(%s) = %v, want %v", tt.id, got, tt.want)
		}
	}

	if _, err := g.IsActive("missing"); !errs.Is(err, errs.ErrCodeTaskNotFound) {
		t.Errorf("IsActive(missing) error = %v, want TASK_NOT_FOUND", err)
	}
}

func TestStructureErrors(t *testing.T) {
	g := mustGraph(t,
		map[TaskID]State{"a": Scheduled, "b": Scheduled, "c": Scheduled},
		[][2]TaskID{{"a", "b"}, {"b", "c"}},
	)

	tests := []struct {
		name string
		err  error
		want errs.Code
	}{
		{"closing a cycle", g.Connect("c", "a"), errs.ErrCodeCycle},
		{"self loop", g.Connect("a", "a"), errs.ErrCodeCycle},
		{"unknown parent", g.Connect("x", "a"), errs.ErrCodeTaskNotFound},
		{"unknown child", g.Connect("a", "x"), errs.ErrCodeTaskNotFound},
		{"duplicate task", g.AddTask("a", Scheduled), errs.ErrCodeDuplicateTask},
		{"invalid id", g.AddTask("a/b", Scheduled), errs.ErrCodeInvalidTaskID},
		{"missing edge", g.Disconnect("a", "c"), errs.ErrCodeNotFound},
		{"unknown state target", g.SetState("x", Done), errs.ErrCodeTaskNotFound},
		{"root without type", g.MarkRoot("a", RootNone), errs.ErrCodeInvalidInput},
		{"unmark non-root", g.UnmarkRoot("b"), errs.ErrCodeInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errs.GetCode(tt.err); got != tt.want {
				t.Errorf("code = %q, want %q (err %v)", got, tt.want, tt.err)
			}
		})
	}
	if err := g.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
}

func TestEmitAndUnemit(t *testing.T) {
	g := mustGraph(t, map[TaskID]State{"root": Done, "leaf": Done}, [][2]TaskID{{"root", "leaf"}})
	if err := g.MarkRoot("root", RootRoot); err != nil {
		t.Fatal(err)
	}

	for range 2 {
		if err := g.Emit("leaf", "warning", "deprecated"); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.Unemit("leaf", "warning", "deprecated"); err != nil {
		t.Fatal(err)
	}
	if got := mustSummary(t, g, "root").Collectibles["warning"]; !slices.Equal(got, []string{"deprecated"}) {
		t.Errorf("warnings after one unemit = %v, want [deprecated]", got)
	}

	if err := g.Unemit("leaf", "warning", "deprecated"); err != nil {
		t.Fatal(err)
	}
	if got := mustSummary(t, g, "root").Collectibles; len(got) != 0 {
		t.Errorf("collectibles = %v, want none", got)
	}
	if err := g.Unemit("leaf", "warning", "deprecated"); !errs.Is(err, errs.ErrCodeNotFound) {
		t.Errorf("third Unemit error = %v, want NOT_FOUND", err)
	}
	if got := g.Workspace().Collectibles; got != 0 {
		t.Errorf("workspace collectibles = %d, want 0", got)
	}
}

func TestUnmarkRoot(t *testing.T) {
	g := mustGraph(t, map[TaskID]State{"r": Scheduled}, nil)
	if err := g.MarkRoot("r", RootRoot); err != nil {
		t.Fatal(err)
	}
	if got := g.Roots(); !slices.Equal(got, []TaskID{"r"}) {
		t.Errorf("Roots() = %v, want [r]", got)
	}
	if err := g.UnmarkRoot("r"); err != nil {
		t.Fatal(err)
	}
	if got := g.Roots(); len(got) != 0 {
		t.Errorf("Roots() after unmark = %v, want empty", got)
	}
	if got := g.Workspace(); !got.IsZero() {
		t.Errorf("Workspace() = %+v, want zero", got)
	}
	if active, _ := g.IsActive("r"); active {
		t.Error("unmarked root is still active")
	}
	if err := g.UnmarkRoot("r"); !errs.Is(err, errs.ErrCodeInvalidState) {
		t.Errorf("second UnmarkRoot error = %v, want INVALID_STATE", err)
	}
}

func TestDisconnectRemovesSubtree(t *testing.T) {
	g := mustGraph(t,
		map[TaskID]State{"r": Done, "a": Scheduled, "b": Scheduled, "c": Scheduled},
		[][2]TaskID{{"r", "a"}, {"a", "b"}, {"b", "c"}},
	)
	if err := g.MarkRoot("r", RootRoot); err != nil {
		t.Fatal(err)
	}
	if got := mustSummary(t, g, "r").Unfinished; got != 3 {
		t.Fatalf("Unfinished = %d, want 3", got)
	}
	if err := g.Disconnect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if got := mustSummary(t, g, "r").Unfinished; got != 1 {
		t.Errorf("Unfinished after cut = %d, want 1", got)
	}
	if err := g.Connect("a", "b"); err != nil {
		t.Fatal(err)
	}
	if got := mustSummary(t, g, "r").Unfinished; got != 3 {
		t.Errorf("Unfinished after reconnect = %d, want 3", got)
	}
	if err := g.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	g := mustGraph(t,
		map[TaskID]State{"app": Scheduled, "lib": Done},
		[][2]TaskID{{"app", "lib"}},
	)
	if err := g.MarkRoot("app", RootRoot); err != nil {
		t.Fatal(err)
	}

	snap := g.Snapshot()
	if len(snap.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(snap.Tasks))
	}
	app, ok := snap.Task("app")
	if !ok {
		t.Fatal("Task(app) not found")
	}
	if !app.Aggregating() || !app.Root || app.RootType != RootRoot {
		t.Errorf("app = %+v, want aggregating root", app)
	}
	if app.Followers["lib"] != 1 {
		t.Errorf("app followers = %v, want lib once", app.Followers)
	}
	lib, _ := snap.Task("lib")
	if lib.Aggregating() || lib.Uppers["app"] != 1 || lib.State != Done {
		t.Errorf("lib = %+v, want a done leaf under app", lib)
	}
	if _, ok := snap.Task("zzz"); ok {
		t.Error("Task(zzz) found")
	}
	if snap.Workspace.Roots != 1 {
		t.Errorf("workspace roots = %d, want 1", snap.Workspace.Roots)
	}
}

func TestConcurrentStateChanges(t *testing.T) {
	g := New(WithMaxUppers(2))
	if err := g.AddTask("root", Done); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkRoot("root", RootRoot); err != nil {
		t.Fatal(err)
	}

	const groups, per = 6, 20
	for i := range groups {
		group := TaskID(string(rune('a'+i)) + "#group")
		if err := g.AddTask(group, Done); err != nil {
			t.Fatal(err)
		}
		if err := g.Connect("root", group); err != nil {
			t.Fatal(err)
		}
		for j := range per {
			id := TaskID(string(rune('a'+i)) + "#" + string(rune('a'+j)))
			if err := g.AddTask(id, Scheduled); err != nil {
				t.Fatal(err)
			}
			if err := g.Connect(group, id); err != nil {
				t.Fatal(err)
			}
		}
	}
	if got := mustSummary(t, g, "root").Unfinished; got != groups*per {
		t.Fatalf("Unfinished = %d, want %d", got, groups*per)
	}

	var wg sync.WaitGroup
	for i := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range per {
				id := TaskID(string(rune('a'+i)) + "#" + string(rune('a'+j)))
				if err := g.SetState(id, InProgress); err != nil {
					t.Error(err)
				}
				if err := g.SetState(id, Done); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if got := mustSummary(t, g, "root").Unfinished; got != 0 {
		t.Errorf("Unfinished = %d, want 0", got)
	}
	if err := g.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
}

// Two edges that are each acyclic alone but close a->b->l->a together must
// never both be admitted, however the cycle checks interleave.
func TestConcurrentConnectRejectsCycle(t *testing.T) {
	const rounds, fanout = 50, 500
	for round := range rounds {
		g := New()
		for _, id := range []TaskID{"a", "b", "l"} {
			if err := g.AddTask(id, Scheduled); err != nil {
				t.Fatal(err)
			}
		}
		if err := g.Connect("b", "l"); err != nil {
			t.Fatal(err)
		}
		// A wide b keeps the reachability walk busy.
		for i := range fanout {
			id := TaskID("leaf" + strconv.Itoa(i))
			if err := g.AddTask(id, Done); err != nil {
				t.Fatal(err)
			}
			if err := g.Connect("b", id); err != nil {
				t.Fatal(err)
			}
		}

		start := make(chan struct{})
		errc := make(chan error, 2)
		var wg sync.WaitGroup
		for _, e := range [][2]TaskID{{"a", "b"}, {"l", "a"}} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errc <- g.Connect(e[0], e[1])
			}()
		}
		close(start)
		wg.Wait()
		close(errc)

		accepted, rejected := 0, 0
		for err := range errc {
			switch {
			case err == nil:
				accepted++
			case errs.Is(err, errs.ErrCodeCycle):
				rejected++
			default:
				t.Fatalf("round %d: Connect = %v", round, err)
			}
		}
		if accepted != 1 || rejected != 1 {
			t.Fatalf("round %d: accepted %d, rejected %d; want 1 and 1", round, accepted, rejected)
		}
		if err := g.Check(); err != nil {
			t.Fatalf("round %d: Check() = %v", round, err)
		}
	}
}
