package runtime

import (
	"errors"
	"testing"

	"github.com/cruciblehq/buildplan/internal/image"
	"github.com/google/go-cmp/cmp"
)

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{
			name: "apk add",
			got:  apkAddArgs([]string{"gcc", "musl-dev"}),
			want: []string{"apk", "add", "--no-cache", "gcc", "musl-dev"},
		},
		{
			name: "apk del",
			got:  apkDelArgs([]string{"gcc"}),
			want: []string{"apk", "del", "--purge", "gcc"},
		},
		{
			name: "pip install",
			got:  pipInstallArgs("apache-airflow", "1.10.2"),
			want: []string{"pip", "install", "--no-cache-dir", "apache-airflow==1.10.2"},
		},
		{
			name: "pip install keeps version verbatim",
			got:  pipInstallArgs("numpy", " 1.16.2rc1"),
			want: []string{"pip", "install", "--no-cache-dir", "numpy== 1.16.2rc1"},
		},
		{
			name: "mkdir",
			got:  mkdirArgs("/usr/local/airflow"),
			want: []string{"mkdir", "-p", "/usr/local/airflow"},
		},
		{
			name: "symlink",
			got:  symlinkArgs("/usr/include/locale.h", "/usr/include/xlocale.h"),
			want: []string{"ln", "-s", "/usr/include/locale.h", "/usr/include/xlocale.h"},
		},
		{
			name: "chown",
			got:  chownArgs("/usr/local/airflow", image.Owner{User: "airflow", Group: "airflow"}),
			want: []string{"chown", "-R", "airflow:airflow", "/usr/local/airflow"},
		},
		{
			name: "addgroup",
			got:  addGroupArgs("airflow"),
			want: []string{"addgroup", "-S", "airflow"},
		},
		{
			name: "adduser",
			got:  addUserArgs("airflow", "airflow"),
			want: []string{"adduser", "-S", "-D", "-G", "airflow", "airflow"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Fatalf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApkArgsDoNotAlias(t *testing.T) {
	pkgs := make([]string, 1, 8)
	pkgs[0] = "gcc"

	add := apkAddArgs(pkgs)
	del := apkDelArgs(pkgs)

	if add[1] != "add" || del[1] != "del" {
		t.Fatalf("args aliased: add = %v, del = %v", add, del)
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Args: []string{"apk", "add", "gcc"}, Code: 1, Stderr: "ERROR: unable to select packages"}

	want := "apk add gcc: exit code 1 (ERROR: unable to select packages)"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	if !errors.Is(err, ErrCommand) {
		t.Fatal("ExitError does not match ErrCommand")
	}

	bare := &ExitError{Args: []string{"true"}, Code: 2}
	if bare.Error() != "true: exit code 2" {
		t.Fatalf("Error() = %q", bare.Error())
	}
}
