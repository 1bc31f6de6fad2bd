package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	path, _, err := Save(dir, newTestNetwork(t, 3), time.Now(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatal(err)
	}
	name := filepath.Base(path)

	outside := t.TempDir()
	outsidePath, _, err := Save(outside, newTestNetwork(t, 3), time.Now(), nil)
	if err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "nenv-checkpoint-link.ckpt")
	if err := os.Symlink(outsidePath, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tests := []struct {
		name    string
		ref     string
		wantErr string
	}{
		{"bare name", name, ""},
		{"full path", path, ""},
		{"dot segments", filepath.Join(dir, "sub", "..", name), ""},
		{"empty", "", "empty"},
		{"null byte", name + "\x00", "null byte"},
		{"not a checkpoint", "config.yaml", "not a checkpoint"},
		{"missing", "nenv-checkpoint-missing.ckpt", "not found"},
		{"traversal", filepath.Join(dir, "..", filepath.Base(outside), filepath.Base(outsidePath)), "outside"},
		{"absolute outside", outsidePath, "outside"},
		{"symlink escape", filepath.Base(link), "outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(dir, tt.ref)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Resolve(%q) error = %v, want %q", tt.ref, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.ref, err)
			}
			if got != want {
				t.Errorf("Resolve(%q) = %s, want %s", tt.ref, got, want)
			}
		})
	}
}
