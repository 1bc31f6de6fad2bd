package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolve maps a checkpoint reference supplied by an untrusted caller to a
// file inside dir. ref is either a bare file name, looked up in dir, or a
// path. Symlinks are resolved on both sides before the containment check, so
// a link inside dir pointing elsewhere is rejected.
func Resolve(dir, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("checkpoint reference is empty")
	}
	if strings.ContainsRune(ref, '\x00') {
		return "", fmt.Errorf("checkpoint reference contains null byte")
	}
	if !isCheckpointFile(filepath.Base(ref)) {
		return "", fmt.Errorf("%q is not a checkpoint file name", filepath.Base(ref))
	}

	path := ref
	if filepath.Base(ref) == ref {
		path = filepath.Join(dir, ref)
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolving checkpoint path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("checkpoint not found: %s", filepath.Base(ref))
		}
		return "", fmt.Errorf("resolving checkpoint path: %w", err)
	}

	rootAbs, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return "", fmt.Errorf("resolving checkpoint directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolving checkpoint directory: %w", err)
	}
	if !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("checkpoint %s is outside %s", filepath.Base(ref), redact(root))
	}
	return resolved, nil
}

// redact shortens a path to .../<parent>/<base> for error messages.
func redact(path string) string {
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}
