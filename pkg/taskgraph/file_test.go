package taskgraph

import (
	"path/filepath"
	"slices"
	"testing"

	errs "github.com/vercel/turborepo-sub010/pkg/errors"
)

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want errs.Code
	}{
		{
			name: "valid",
			toml: `
[[task]]
id = "a"
children = ["b"]
root = "root"

[[task]]
id = "b"
state = "dirty"
`,
		},
		{
			name: "duplicate id",
			toml: "[[task]]\nid = \"a\"\n[[task]]\nid = \"a\"\n",
			want: errs.ErrCodeDuplicateTask,
		},
		{
			name: "unknown child",
			toml: "[[task]]\nid = \"a\"\nchildren = [\"b\"]\n",
			want: errs.ErrCodeInvalidGraph,
		},
		{
			name: "unknown state",
			toml: "[[task]]\nid = \"a\"\nstate = \"sleeping\"\n",
			want: errs.ErrCodeInvalidGraph,
		},
		{
			name: "unknown root type",
			toml: "[[task]]\nid = \"a\"\nroot = \"forever\"\n",
			want: errs.ErrCodeInvalidGraph,
		},
		{
			name: "collectible without trait",
			toml: "[[task]]\nid = \"a\"\n[[task.collectible]]\nvalue = \"x\"\n",
			want: errs.ErrCodeInvalidGraph,
		},
		{
			name: "empty id",
			toml: "[[task]]\nstate = \"done\"\n",
			want: errs.ErrCodeInvalidTaskID,
		},
		{
			name: "cycle",
			toml: "[[task]]\nid = \"a\"\nchildren = [\"b\"]\n[[task]]\nid = \"b\"\nchildren = [\"a\"]\n",
			want: errs.ErrCodeCycle,
		},
		{
			name: "self loop",
			toml: "[[task]]\nid = \"a\"\nchildren = [\"a\"]\n",
			want: errs.ErrCodeCycle,
		},
		{
			name: "negative workers",
			toml: "[engine]\nworkers = -1\n",
			want: errs.ErrCodeInvalidInput,
		},
		{
			name: "syntax error",
			toml: "[[task]\n",
			want: errs.ErrCodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			if got := errs.GetCode(err); got != tt.want {
				t.Errorf("Parse() code = %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name string
		path string
		want errs.Code
	}{
		{"chain", filepath.Join("testdata", "chain.toml"), ""},
		{"workspace", filepath.Join("testdata", "workspace.toml"), ""},
		{"missing", filepath.Join("testdata", "missing.toml"), errs.ErrCodeFileNotFound},
		{"not toml", filepath.Join("testdata", "chain.yaml"), errs.ErrCodeUnsupported},
		{"broken", filepath.Join("testdata", "invalid.toml"), errs.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if got := errs.GetCode(err); got != tt.want {
				t.Errorf("Load(%s) code = %q, want %q (err %v)", tt.path, got, tt.want, err)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "workspace.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Engine.MaxUppers == nil || *f.Engine.MaxUppers != 2 {
		t.Errorf("MaxUppers = %v, want 2", f.Engine.MaxUppers)
	}
	if f.Engine.Workers != 4 || f.Engine.Seed != 7 || f.Engine.BottomCapacity != 2 {
		t.Errorf("Engine = %+v", f.Engine)
	}
	if got := len(f.Options()); got != 2 {
		t.Errorf("len(Options()) = %d, want 2", got)
	}

	chain, err := Load(filepath.Join("testdata", "chain.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if chain.Engine.MaxUppers != nil || len(chain.Options()) != 0 {
		t.Errorf("chain engine = %+v, want defaults", chain.Engine)
	}
}

func TestBuild(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "workspace.toml"))
	if err != nil {
		t.Fatal(err)
	}
	g, err := f.Build()
	if err != nil {
		t.Fatalf("Build() = %v", err)
	}

	if got := g.Len(); got != len(f.Tasks) {
		t.Errorf("Len() = %d, want %d", got, len(f.Tasks))
	}
	wantRoots := []TaskID{"api#build", "docs#build", "web#build"}
	if got := g.Roots(); !slices.Equal(got, wantRoots) {
		t.Errorf("Roots() = %v, want %v", got, wantRoots)
	}
	if got := g.TakeScheduled(); !slices.Equal(got, []TaskID{"ui#build"}) {
		t.Errorf("TakeScheduled() = %v, want [ui#build]", got)
	}

	api := mustSummary(t, g, "api#build")
	if got := api.Collectibles["artifact"]; !slices.Equal(got, []string{"prisma-client"}) {
		t.Errorf("api artifacts = %v", got)
	}
	if got := api.Collectibles["warning"]; len(got) != 2 {
		t.Errorf("api warnings = %v, want two", got)
	}
	if api.Done() {
		t.Error("api is done before any task ran")
	}

	web := mustSummary(t, g, "web#build")
	if !slices.Equal(web.Dirty, []TaskID{"ui#build"}) {
		t.Errorf("web dirty = %v, want [ui#build]", web.Dirty)
	}
	if _, ok := web.Collectibles["artifact"]; ok {
		t.Error("web sees the api-only artifact")
	}
	if err := g.Check(); err != nil {
		t.Errorf("Check() = %v", err)
	}
}
