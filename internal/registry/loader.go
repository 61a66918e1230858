package registry

import (
	"fmt"
	"path/filepath"

	"statefuld/internal/common/fsutil"
	"statefuld/pkg/types"
)

// Prepare validates the manifest models and applies defaults: version 1 when
// unset, home expansion and absolutization of paths. Names must be unique.
func Prepare(models []types.Model) ([]types.Model, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("no models configured")
	}
	seen := make(map[string]struct{}, len(models))
	out := make([]types.Model, 0, len(models))
	for i, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("model %d: empty name", i)
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("model %q listed twice", m.Name)
		}
		seen[m.Name] = struct{}{}
		if m.Path == "" {
			return nil, fmt.Errorf("model %q: empty path", m.Name)
		}
		p, err := fsutil.ExpandHome(m.Path)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", m.Name, err)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("model %q: abs path: %w", m.Name, err)
		}
		if !fsutil.PathExists(abs) {
			return nil, fmt.Errorf("model %q: artifact %s does not exist", m.Name, abs)
		}
		m.Path = abs
		if m.Version == 0 {
			m.Version = 1
		}
		if m.Version < 0 {
			return nil, fmt.Errorf("model %q: negative version", m.Name)
		}
		out = append(out, m)
	}
	return out, nil
}
