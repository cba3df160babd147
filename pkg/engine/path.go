package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// translatePath rewrites path (host-absolute, under hostRoot) into the
// engine's container view, rooted at containerRoot. Per spec.md §9:
// "Implementations SHOULD canonicalize via nearest existing parent (for
// not-yet-created files)" — so a path whose file doesn't exist yet is
// resolved by walking up to the nearest ancestor that does, symlink-
// resolving that, and reattaching the remaining suffix.
func translatePath(hostRoot, containerRoot, path string) (string, error) {
	hostRoot = filepath.Clean(hostRoot)
	path = filepath.Clean(path)

	resolved, suffix, err := resolveNearestExisting(path)
	if err != nil {
		return "", fmt.Errorf("engine: resolve %s: %w", path, err)
	}

	rel, err := filepath.Rel(hostRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("engine: %s is not under host root %s: %w", path, hostRoot, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("engine: %s is not under host root %s", path, hostRoot)
	}

	out := filepath.Join(containerRoot, rel)
	if suffix != "" {
		out = filepath.Join(out, suffix)
	}
	return out, nil
}

// resolveNearestExisting walks up from path until it finds an existing
// ancestor, symlink-resolves that ancestor, and returns it along with the
// suffix path that was stripped off to reach it.
func resolveNearestExisting(path string) (resolved string, suffix string, err error) {
	cur := path
	var tail []string
	for {
		if _, statErr := os.Lstat(cur); statErr == nil {
			real, evalErr := filepath.EvalSymlinks(cur)
			if evalErr != nil {
				real = cur
			}
			return real, filepath.Join(tail...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", "", fmt.Errorf("no existing ancestor for %s", path)
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}
