package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/cruciblehq/buildplan/internal/dryrun"
	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/cruciblehq/buildplan/internal/plan"
	"github.com/google/go-cmp/cmp"
)

// Returns the reference scenario: a minimal plan satisfying every invariant.
func scenario() plan.Plan {
	deps := []string{"gcc", "make"}
	return plan.Plan{
		Name: "airflow",
		Steps: []plan.Step{
			{Kind: plan.SetBase, Image: "python:3.5"},
			{Kind: plan.InstallTransientDeps, Packages: deps},
			{Kind: plan.InstallPackage, Name: "numpy", Version: "1.16.2"},
			{Kind: plan.InstallPackage, Name: "pandas", Version: "0.24.1"},
			{Kind: plan.InstallPackage, Name: "apache-airflow", Version: "1.10.2"},
			{Kind: plan.CreateGroup, Name: "airflow"},
			{Kind: plan.CreateUser, Name: "airflow", Group: "airflow"},
			{Kind: plan.RemoveTransientDeps, Packages: deps},
			{Kind: plan.SetOwner, User: "airflow", Group: "airflow"},
			{Kind: plan.SetUser, Name: "airflow"},
			{Kind: plan.DeclarePort, Port: 8080},
			{Kind: plan.SetEntrypoint, Entrypoint: "/entrypoint.sh"},
		},
	}
}

// Returns the plan with the step at index removed.
func without(p plan.Plan, index int) plan.Plan {
	c := p.Clone()
	c.Steps = slices.Delete(c.Steps, index, index+1)
	return c
}

// Returns the plan with the step at from moved to position to.
func move(p plan.Plan, from, to int) plan.Plan {
	c := p.Clone()
	step := c.Steps[from]
	c.Steps = slices.Delete(c.Steps, from, from+1)
	c.Steps = slices.Insert(c.Steps, to, step)
	return c
}

func run(t *testing.T, p plan.Plan, backend *dryrun.Backend) (*Result, error) {
	t.Helper()
	return Run(context.Background(), Options{Plan: p, Backend: backend, Context: t.TempDir()})
}

func TestScenario(t *testing.T) {
	backend := dryrun.New()
	result, err := run(t, scenario(), backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := result.Contract
	if c.Port != 8080 {
		t.Fatalf("port = %d, want 8080", c.Port)
	}
	if c.User != "airflow" {
		t.Fatalf("user = %q, want airflow", c.User)
	}
	if c.Entrypoint != "/entrypoint.sh" {
		t.Fatalf("entrypoint = %q, want /entrypoint.sh", c.Entrypoint)
	}
	if result.Steps != len(scenario().Steps) {
		t.Fatalf("steps = %d, want %d", result.Steps, len(scenario().Steps))
	}

	committed, ok := backend.Committed()
	if !ok {
		t.Fatal("contract not committed")
	}
	if diff := cmp.Diff(c, committed); diff != "" {
		t.Fatalf("committed contract mismatch (-want +got):\n%s", diff)
	}
	if !backend.Released() {
		t.Fatal("backend not released")
	}
}

func TestScenarioCalls(t *testing.T) {
	backend := dryrun.New()
	if _, err := run(t, scenario(), backend); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []string
	for _, c := range backend.Calls() {
		got = append(got, c.String())
	}
	want := []string{
		"open python:3.5",
		"add gcc make",
		"install numpy 1.16.2",
		"install pandas 0.24.1",
		"install apache-airflow 1.10.2",
		"addgroup airflow",
		"adduser airflow airflow",
		"del gcc make",
		"chown airflow:airflow /",
		"commit airflow",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestAirflowPlan(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "entrypoint.sh"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	result, err := Run(context.Background(), Options{Plan: plan.Airflow(), Backend: dryrun.New(), Context: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Contract.WorkingDir != "/usr/local/airflow" {
		t.Fatalf("workdir = %q, want /usr/local/airflow", result.Contract.WorkingDir)
	}
	if result.Contract.Env["AIRFLOW_HOME"] != "/usr/local/airflow" {
		t.Fatalf("env = %v", result.Contract.Env)
	}
}

func TestUnremovedTransientDependency(t *testing.T) {
	p := scenario()
	removal := p.Index(plan.RemoveTransientDeps)

	_, err := run(t, without(p, removal), dryrun.New())

	var target *UnremovedTransientDependencyError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want UnremovedTransientDependencyError", err)
	}
	if diff := cmp.Diff([]string{"gcc", "make"}, target.Packages); diff != "" {
		t.Fatalf("packages mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
}

func TestPartialTransientRemoval(t *testing.T) {
	p := scenario()
	p.Steps[p.Index(plan.RemoveTransientDeps)].Packages = []string{"gcc"}

	_, err := run(t, p, dryrun.New())

	var target *UnremovedTransientDependencyError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want UnremovedTransientDependencyError", err)
	}
	if diff := cmp.Diff([]string{"make"}, target.Packages); diff != "" {
		t.Fatalf("packages mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveUnknownTransient(t *testing.T) {
	p := scenario()
	p.Steps[p.Index(plan.RemoveTransientDeps)].Packages = []string{"gcc", "make", "g++"}

	_, err := run(t, p, dryrun.New())
	if !errors.Is(err, ErrNotTransient) {
		t.Fatalf("err = %v, want ErrNotTransient", err)
	}
}

func TestUnknownPrincipal(t *testing.T) {
	p := scenario()
	owner := p.Index(plan.SetOwner)

	tests := []struct {
		name string
		plan plan.Plan
		kind string
	}{
		{name: "owner before user", plan: move(p, owner, p.Index(plan.CreateUser)), kind: "user"},
		{name: "owner before group", plan: move(p, owner, p.Index(plan.CreateGroup)), kind: "user"},
		{name: "user before group", plan: move(p, p.Index(plan.CreateUser), p.Index(plan.CreateGroup)), kind: "group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.plan, dryrun.New())

			var target *UnknownPrincipalError
			if !errors.As(err, &target) {
				t.Fatalf("err = %v, want UnknownPrincipalError", err)
			}
			if target.Kind != tt.kind || target.Name != "airflow" {
				t.Fatalf("principal = %s %q, want %s airflow", target.Kind, target.Name, tt.kind)
			}
		})
	}
}

func TestSetOwnerUnknownGroup(t *testing.T) {
	exec := NewExecutor(dryrun.New(), "")
	state := image.New("alpine").WithGroup("airflow").WithUser("airflow", "airflow")

	_, err := exec.Apply(context.Background(), state, plan.Step{Kind: plan.SetOwner, User: "airflow", Group: "staff"})

	var target *UnknownPrincipalError
	if !errors.As(err, &target) || target.Kind != "group" || target.Name != "staff" {
		t.Fatalf("err = %v, want unknown group staff", err)
	}
}

func TestPrivilegeOrdering(t *testing.T) {
	p := scenario()
	drop := p.Index(plan.SetUser)

	// Every permutation moving the drop before an earlier privileged step.
	for i := 1; i < drop; i++ {
		moved := move(p, drop, i)
		t.Run(moved.Steps[i+1].String(), func(t *testing.T) {
			_, err := run(t, moved, dryrun.New())

			var target *PrivilegeOrderingError
			if !errors.As(err, &target) {
				t.Fatalf("err = %v, want PrivilegeOrderingError", err)
			}
		})
	}
}

func TestPrivilegeOrderingNoSideEffects(t *testing.T) {
	p := scenario()
	backend := dryrun.New()
	_, err := run(t, move(p, p.Index(plan.SetUser), 1), backend)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls := backend.Calls(); len(calls) != 0 {
		t.Fatalf("backend called before ordering check: %v", calls)
	}
	if _, ok := backend.Committed(); ok {
		t.Fatal("failed build was committed")
	}
}

func TestPrivilegedApplyAfterDrop(t *testing.T) {
	exec := NewExecutor(dryrun.New(), "")
	state := image.New("alpine").WithEffectiveUser("airflow")

	for _, step := range []plan.Step{
		{Kind: plan.InstallPackage, Name: "numpy", Version: "1.16.2"},
		{Kind: plan.SetOwner, User: "airflow", Group: "airflow"},
		{Kind: plan.InstallTransientDeps, Packages: []string{"gcc"}},
		{Kind: plan.SetUser, Name: "airflow"},
	} {
		t.Run(string(step.Kind), func(t *testing.T) {
			got, err := exec.Apply(context.Background(), state, step)

			var target *PrivilegeOrderingError
			if !errors.As(err, &target) {
				t.Fatalf("err = %v, want PrivilegeOrderingError", err)
			}
			if got.Digest() != state.Digest() {
				t.Fatal("state changed on failure")
			}
		})
	}
}

func TestMetadataAfterDrop(t *testing.T) {
	exec := NewExecutor(dryrun.New(), "")
	state := image.New("alpine").WithEffectiveUser("airflow")

	for _, step := range []plan.Step{
		{Kind: plan.SetEnv, Env: map[string]string{"A": "1"}},
		{Kind: plan.DeclarePort, Port: 8793},
		{Kind: plan.SetEntrypoint, Entrypoint: "/entrypoint.sh"},
	} {
		next, err := exec.Apply(context.Background(), state, step)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", step.Kind, err)
		}
		state = next
	}
}

func TestDropRequiresWorkdirOwnership(t *testing.T) {
	_, err := run(t, without(scenario(), scenario().Index(plan.SetOwner)), dryrun.New())

	var target *PrivilegeOrderingError
	if !errors.As(err, &target) {
		t.Fatalf("err = %v, want PrivilegeOrderingError", err)
	}
	if target.Kind != plan.SetUser {
		t.Fatalf("kind = %s, want set-user", target.Kind)
	}
}

func TestDropToRoot(t *testing.T) {
	p := scenario()
	p.Steps[p.Index(plan.SetUser)].Name = "root"

	_, err := run(t, p, dryrun.New())
	if !errors.Is(err, ErrRootUser) {
		t.Fatalf("err = %v, want ErrRootUser", err)
	}
}

func TestIncompleteContract(t *testing.T) {
	p := scenario()

	tests := []struct {
		name    string
		plan    plan.Plan
		missing []string
	}{
		{name: "no entrypoint", plan: without(p, p.Index(plan.SetEntrypoint)), missing: []string{"entrypoint"}},
		{name: "no user", plan: without(p, p.Index(plan.SetUser)), missing: []string{"user"}},
		{
			name:    "neither",
			plan:    without(without(p, p.Index(plan.SetEntrypoint)), p.Index(plan.SetUser)),
			missing: []string{"entrypoint", "user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.plan, dryrun.New())

			var target *IncompleteContractError
			if !errors.As(err, &target) {
				t.Fatalf("err = %v, want IncompleteContractError", err)
			}
			if diff := cmp.Diff(tt.missing, target.Missing); diff != "" {
				t.Fatalf("missing mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIdempotence(t *testing.T) {
	a, err := run(t, scenario(), dryrun.New())
	if err != nil {
		t.Fatal(err)
	}
	b, err := run(t, scenario(), dryrun.New())
	if err != nil {
		t.Fatal(err)
	}

	if a.Digest != b.Digest {
		t.Fatalf("contract digest differs: %s != %s", a.Digest, b.Digest)
	}
	if a.StateDigest != b.StateDigest {
		t.Fatalf("state digest differs: %s != %s", a.StateDigest, b.StateDigest)
	}
	if diff := cmp.Diff(a.Contract, b.Contract); diff != "" {
		t.Fatalf("contract mismatch (-a +b):\n%s", diff)
	}
}

func TestCollaboratorFailure(t *testing.T) {
	p := scenario()
	backend := dryrun.New(dryrun.WithIndex(dryrun.Index{
		"numpy":          {"1.16.2"},
		"pandas":         {"0.24.1"},
		"apache-airflow": {"1.10.3"},
	}))

	_, err := run(t, p, backend)

	var failure *StepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want StepFailure", err)
	}
	if failure.Index != p.Index(plan.InstallPackage)+2 {
		t.Fatalf("failed step = %d, want the airflow install", failure.Index+1)
	}
	if !errors.Is(err, dryrun.ErrVersionNotFound) || !errors.Is(err, ErrCollaborator) {
		t.Fatalf("err = %v, want ErrCollaborator wrapping ErrVersionNotFound", err)
	}
	if _, ok := backend.Committed(); ok {
		t.Fatal("failed build was committed")
	}
	if !backend.Released() {
		t.Fatal("backend not released after failure")
	}
}

func TestApplyFailureKeepsState(t *testing.T) {
	boom := errors.New("apk: temporary error")
	exec := NewExecutor(dryrun.New(dryrun.WithFailure(dryrun.OpAdd, boom)), "")

	state, err := exec.Apply(context.Background(), image.State{}, plan.Step{Kind: plan.SetBase, Image: "alpine"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := exec.Apply(context.Background(), state, plan.Step{Kind: plan.InstallTransientDeps, Packages: []string{"gcc"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got.IsTransient("gcc") || got.Applied() != state.Applied() {
		t.Fatal("state changed on failure")
	}
}

func TestStepFailureIdentifiesStep(t *testing.T) {
	p := scenario()
	p.Steps[2].Version = ""

	_, err := run(t, p, dryrun.New())

	var failure *StepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("err = %v, want StepFailure", err)
	}
	if failure.Index != 2 || failure.Step.Name != "numpy" {
		t.Fatalf("failure = step %d %v, want step 3 numpy", failure.Index+1, failure.Step)
	}
	if !errors.Is(err, plan.ErrInvalidStep) {
		t.Fatalf("err = %v, want ErrInvalidStep", err)
	}
}

func TestBaseOrdering(t *testing.T) {
	p := scenario()

	if err := Check(move(p, 0, 1)); !errors.Is(err, ErrNoBase) {
		t.Fatalf("err = %v, want ErrNoBase", err)
	}

	twice := p.Clone()
	twice.Steps = slices.Insert(twice.Steps, 2, plan.Step{Kind: plan.SetBase, Image: "alpine"})
	if err := Check(twice); !errors.Is(err, ErrBaseRedeclared) {
		t.Fatalf("err = %v, want ErrBaseRedeclared", err)
	}

	exec := NewExecutor(dryrun.New(), "")
	if _, err := exec.Apply(context.Background(), image.State{}, plan.Step{Kind: plan.SetEnv, Env: map[string]string{"A": "1"}}); !errors.Is(err, ErrNoBase) {
		t.Fatalf("err = %v, want ErrNoBase", err)
	}
}

func TestPackageLifetimeConflict(t *testing.T) {
	exec := NewExecutor(dryrun.New(), "")
	state := image.New("alpine").WithTransient([]string{"gcc"}).WithSystem([]string{"bash"})

	if _, err := exec.Apply(context.Background(), state, plan.Step{Kind: plan.InstallPersistentDeps, Packages: []string{"gcc"}}); !errors.Is(err, ErrPackageConflict) {
		t.Fatalf("err = %v, want ErrPackageConflict", err)
	}
	if _, err := exec.Apply(context.Background(), state, plan.Step{Kind: plan.InstallTransientDeps, Packages: []string{"bash"}}); !errors.Is(err, ErrPackageConflict) {
		t.Fatalf("err = %v, want ErrPackageConflict", err)
	}
}

func TestDuplicatePrincipal(t *testing.T) {
	exec := NewExecutor(dryrun.New(), "")
	state := image.New("alpine").WithGroup("airflow").WithUser("airflow", "airflow")

	if _, err := exec.Apply(context.Background(), state, plan.Step{Kind: plan.CreateGroup, Name: "airflow"}); !errors.Is(err, ErrPrincipalExists) {
		t.Fatalf("err = %v, want ErrPrincipalExists", err)
	}
	if _, err := exec.Apply(context.Background(), state, plan.Step{Kind: plan.CreateUser, Name: "airflow", Group: "airflow"}); !errors.Is(err, ErrPrincipalExists) {
		t.Fatalf("err = %v, want ErrPrincipalExists", err)
	}
}

func TestCopyFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "entrypoint.sh"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	p := scenario()
	p.Steps = slices.Insert(p.Steps, 1, plan.Step{Kind: plan.CopyFiles, Source: "entrypoint.sh", Dest: "/entrypoint.sh"})

	backend := dryrun.New()
	if _, err := Run(context.Background(), Options{Plan: p, Backend: backend, Context: dir}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := dryrun.Call{
		Op:   dryrun.OpCopy,
		Args: []string{filepath.Join(dir, "entrypoint.sh"), "/entrypoint.sh"},
		Env:  dryrun.DefaultEnv,
		Dir:  "/",
	}
	if diff := cmp.Diff(want, backend.Calls()[1]); diff != "" {
		t.Fatalf("copy call mismatch (-want +got):\n%s", diff)
	}

	if _, err := run(t, p, dryrun.New()); !errors.Is(err, ErrCopy) {
		t.Fatalf("err = %v, want ErrCopy for a missing source", err)
	}
}

func TestVersionStringsAreOpaque(t *testing.T) {
	p := scenario()
	p.Steps[p.Index(plan.InstallPackage)+2].Version = "1.10.2.post1+typo"

	backend := dryrun.New()
	if _, err := run(t, p, backend); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := slices.ContainsFunc(backend.Calls(), func(c dryrun.Call) bool {
		return c.Op == dryrun.OpInstall && c.Args[1] == "1.10.2.post1+typo"
	})
	if !found {
		t.Fatalf("version not passed verbatim: %v", backend.Calls())
	}
}

func TestCommandsSeeEnvironment(t *testing.T) {
	p := scenario()
	p.Steps = slices.Insert(p.Steps, 1,
		plan.Step{Kind: plan.SetEnv, Env: map[string]string{"AIRFLOW_GPL_UNIDECODE": "yes"}},
		plan.Step{Kind: plan.SetWorkdir, Path: "/usr/local/airflow"},
	)

	backend := dryrun.New()
	if _, err := run(t, p, backend); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var install *dryrun.Call
	for _, c := range backend.Calls() {
		if c.Op == dryrun.OpInstall && c.Args[0] == "apache-airflow" {
			install = &c
		}
	}
	if install == nil {
		t.Fatal("apache-airflow was not installed")
	}
	if install.Env["AIRFLOW_GPL_UNIDECODE"] != "yes" {
		t.Fatalf("install env = %v, want AIRFLOW_GPL_UNIDECODE=yes", install.Env)
	}
	if install.Env["PATH"] != dryrun.DefaultEnv["PATH"] {
		t.Fatalf("install PATH = %q, want the base PATH", install.Env["PATH"])
	}
	if install.Dir != "/usr/local/airflow" {
		t.Fatalf("install dir = %q, want /usr/local/airflow", install.Dir)
	}
}

func TestEnvironmentExtendsBase(t *testing.T) {
	p := scenario()
	p.Steps = slices.Insert(p.Steps, 1, plan.Step{Kind: plan.SetEnv, Env: map[string]string{"PATH": "/opt/bin:$PATH"}})

	backend := dryrun.New(dryrun.WithBaseEnv(map[string]string{"PATH": "/usr/bin:/bin", "LANG": "C.UTF-8"}))
	result, err := run(t, p, backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{"PATH": "/opt/bin:/usr/bin:/bin", "LANG": "C.UTF-8"}
	if diff := cmp.Diff(want, result.Contract.Env); diff != "" {
		t.Fatalf("contract env mismatch (-want +got):\n%s", diff)
	}
}

func TestVersionPinsNotExpanded(t *testing.T) {
	p := scenario()
	p.Steps = slices.Insert(p.Steps, 1, plan.Step{Kind: plan.SetEnv, Env: map[string]string{"rc": "9"}})
	p.Steps[p.Index(plan.InstallPackage)].Version = "1.16.2$rc"

	backend := dryrun.New()
	if _, err := run(t, p, backend); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range backend.Calls() {
		if c.Op == dryrun.OpInstall && c.Args[0] == "numpy" {
			if c.Args[1] != "1.16.2$rc" {
				t.Fatalf("numpy version = %q, want 1.16.2$rc", c.Args[1])
			}
			return
		}
	}
	t.Fatal("numpy was not installed")
}

func TestEnvironmentFailure(t *testing.T) {
	p := scenario()
	p.Steps = slices.Insert(p.Steps, 1, plan.Step{Kind: plan.SetEnv, Env: map[string]string{"A": "1"}})

	boom := errors.New("exec env rejected")
	_, err := run(t, p, dryrun.New(dryrun.WithFailure(dryrun.OpEnv, boom)))

	var failure *StepFailure
	if !errors.As(err, &failure) || failure.Index != 1 {
		t.Fatalf("err = %v, want failure at step 2", err)
	}
	if !errors.Is(err, boom) || !errors.Is(err, ErrCollaborator) {
		t.Fatalf("err = %v, want collaborator failure wrapping %v", err, boom)
	}
}
