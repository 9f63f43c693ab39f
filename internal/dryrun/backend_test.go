package dryrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cruciblehq/buildplan/internal/build"
	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/google/go-cmp/cmp"
)

var _ build.Backend = (*Backend)(nil)

func TestRecordsCalls(t *testing.T) {
	ctx := context.Background()
	b := New()

	if _, err := b.Open(ctx, "python:3.5-alpine"); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(ctx, []string{"gcc", "make"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Chown(ctx, "/usr/local/airflow", image.Owner{User: "airflow", Group: "airflow"}); err != nil {
		t.Fatal(err)
	}

	calls := b.Calls()
	want := []string{"open python:3.5-alpine", "add gcc make", "chown airflow:airflow /usr/local/airflow"}
	if len(calls) != len(want) {
		t.Fatalf("len(calls) = %d, want %d: %v", len(calls), len(want), calls)
	}
	for i, c := range calls {
		if c.String() != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, c, want[i])
		}
	}
}

func TestRequiresOpen(t *testing.T) {
	b := New()
	if err := b.Add(context.Background(), []string{"gcc"}); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("err = %v, want ErrNotOpened", err)
	}
}

func TestInjectedFailure(t *testing.T) {
	boom := errors.New("network unreachable")
	b := New(WithFailure(OpInstall, boom))
	ctx := context.Background()

	if _, err := b.Open(ctx, "alpine"); err != nil {
		t.Fatal(err)
	}
	if err := b.Install(ctx, "numpy", "1.16.2"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(b.Calls()) != 1 {
		t.Fatalf("failed call was recorded: %v", b.Calls())
	}
}

func TestCommit(t *testing.T) {
	b := New()
	ctx := context.Background()
	if _, err := b.Open(ctx, "alpine"); err != nil {
		t.Fatal(err)
	}

	contract := image.RuntimeContract{User: "airflow", Entrypoint: "/entrypoint.sh"}
	out, err := b.Commit(ctx, "airflow", contract)
	if err != nil {
		t.Fatal(err)
	}
	if out != "dryrun://airflow@"+contract.Digest().String() {
		t.Fatalf("output = %q", out)
	}
	got, ok := b.Committed()
	if !ok || got.User != "airflow" {
		t.Fatalf("committed = %v, %v", got, ok)
	}

	b.Release(ctx)
	if !b.Released() {
		t.Fatal("Release not recorded")
	}
}

func TestIndexResolve(t *testing.T) {
	idx := Index{"numpy": {"1.16.2"}}

	tests := []struct {
		name    string
		idx     Index
		pkg     string
		version string
		wantErr error
	}{
		{name: "exact match", idx: idx, pkg: "numpy", version: "1.16.2"},
		{name: "version missing", idx: idx, pkg: "numpy", version: "1.16", wantErr: ErrVersionNotFound},
		{name: "package missing", idx: idx, pkg: "pandas", version: "0.24.1", wantErr: ErrPackageNotFound},
		{name: "nil index accepts all", pkg: "anything", version: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.idx.Resolve(tt.pkg, tt.version)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.yaml")
	data := "numpy: [\"1.16.2\"]\napache-airflow: [\"1.10.2\"]\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	idx, err := LoadIndex(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := idx.Resolve("apache-airflow", "1.10.2"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestLoadIndexInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.yaml")
	if err := os.WriteFile(path, []byte("- not\n- a map\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIndex(path); !errors.Is(err, ErrIndex) {
		t.Fatalf("err = %v, want ErrIndex", err)
	}
}

func TestCallScope(t *testing.T) {
	ctx := context.Background()
	b := New(WithBaseEnv(map[string]string{"PATH": "/bin"}))

	base, err := b.Open(ctx, "alpine")
	if err != nil {
		t.Fatal(err)
	}
	if base["PATH"] != "/bin" {
		t.Fatalf("base PATH = %q, want /bin", base["PATH"])
	}

	if err := b.Setenv(ctx, map[string]string{"PATH": "/bin", "AIRFLOW_GPL_UNIDECODE": "yes"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Chdir(ctx, "/usr/local/airflow"); err != nil {
		t.Fatal(err)
	}
	if err := b.Install(ctx, "apache-airflow", "1.10.2"); err != nil {
		t.Fatal(err)
	}

	calls := b.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want open and install only", calls)
	}

	open, install := calls[0], calls[1]
	if open.Env != nil {
		t.Fatalf("open env = %v, want none before the base is opened", open.Env)
	}
	if open.Dir != "/" {
		t.Fatalf("open dir = %q, want /", open.Dir)
	}
	if install.Env["AIRFLOW_GPL_UNIDECODE"] != "yes" {
		t.Fatalf("install env = %v, want AIRFLOW_GPL_UNIDECODE=yes", install.Env)
	}
	if install.Dir != "/usr/local/airflow" {
		t.Fatalf("install dir = %q, want /usr/local/airflow", install.Dir)
	}
}

func TestDefaultBaseEnv(t *testing.T) {
	env, err := New().Open(context.Background(), "python:3.5-alpine")
	if err != nil {
		t.Fatal(err)
	}
	if env["PATH"] != DefaultEnv["PATH"] {
		t.Fatalf("PATH = %q, want %q", env["PATH"], DefaultEnv["PATH"])
	}

	// The returned map is a copy.
	env["PATH"] = "/tmp"
	if DefaultEnv["PATH"] == "/tmp" {
		t.Fatal("DefaultEnv mutated through Open result")
	}
}

func TestSetenvReplaces(t *testing.T) {
	ctx := context.Background()
	b := New()
	if _, err := b.Open(ctx, "alpine"); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{"A": "1"}
	if err := b.Setenv(ctx, env); err != nil {
		t.Fatal(err)
	}
	env["A"] = "2"

	if err := b.Add(ctx, []string{"gcc"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"A": "1"}, b.Calls()[1].Env); diff != "" {
		t.Fatalf("env mismatch (-want +got):\n%s", diff)
	}
}
