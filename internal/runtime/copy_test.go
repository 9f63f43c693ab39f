package runtime

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Returns entry names and regular file contents of a tar archive.
func readTar(t *testing.T, r io.Reader) ([]string, map[string]string) {
	t.Helper()

	var names []string
	files := make(map[string]string)

	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, h.Name)

		if h.Uid != 0 || h.Gid != 0 {
			t.Fatalf("%s owned by %d:%d, want 0:0", h.Name, h.Uid, h.Gid)
		}

		if h.Typeflag == tar.TypeReg {
			b, err := io.ReadAll(tr)
			if err != nil {
				t.Fatal(err)
			}
			files[h.Name] = string(b)
		}
	}
	return names, files
}

func TestWriteTarFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "entrypoint.sh")
	if err := os.WriteFile(src, []byte("#!/bin/sh\nexec airflow \"$@\"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeTar(&buf, src, "entrypoint.sh"); err != nil {
		t.Fatal(err)
	}

	names, files := readTar(t, &buf)
	if diff := cmp.Diff([]string{"entrypoint.sh"}, names); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if files["entrypoint.sh"] != "#!/bin/sh\nexec airflow \"$@\"\n" {
		t.Fatalf("content = %q", files["entrypoint.sh"])
	}
}

func TestWriteTarRenames(t *testing.T) {
	src := filepath.Join(t.TempDir(), "airflow.cfg")
	if err := os.WriteFile(src, []byte("[core]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeTar(&buf, src, "config.cfg"); err != nil {
		t.Fatal(err)
	}

	names, _ := readTar(t, &buf)
	if len(names) != 1 || names[0] != "config.cfg" {
		t.Fatalf("entries = %v, want [config.cfg]", names)
	}
}

func TestWriteTarDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dags")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.py"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.py"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := writeTar(&buf, dir, "dags"); err != nil {
		t.Fatal(err)
	}

	names, files := readTar(t, &buf)
	want := []string{"dags", "dags/a.py", "dags/sub", "dags/sub/b.py"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if files["dags/sub/b.py"] != "b" {
		t.Fatalf("content = %q, want b", files["dags/sub/b.py"])
	}
}

func TestWriteTarMissing(t *testing.T) {
	var buf bytes.Buffer
	if err := writeTar(&buf, filepath.Join(t.TempDir(), "missing"), "missing"); err == nil {
		t.Fatal("expected error for missing source")
	}
}
