package registry

import (
	"os"
	"path/filepath"
	"testing"

	"statefuld/pkg/types"
)

func modelFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("model"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestPrepareDefaultsAndAbs(t *testing.T) {
	p := modelFile(t, "a.xml")
	out, err := Prepare([]types.Model{{Name: "a", Path: p, Stateful: true}})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out[0].Version != 1 {
		t.Fatalf("expected default version 1, got %d", out[0].Version)
	}
	if !filepath.IsAbs(out[0].Path) {
		t.Fatalf("expected absolute path, got %s", out[0].Path)
	}
}

func TestPrepareRejections(t *testing.T) {
	p := modelFile(t, "a.xml")
	cases := []struct {
		name   string
		models []types.Model
	}{
		{"empty registry", nil},
		{"empty name", []types.Model{{Path: p}}},
		{"empty path", []types.Model{{Name: "a"}}},
		{"duplicate names", []types.Model{{Name: "a", Path: p}, {Name: "a", Path: p}}},
		{"missing artifact", []types.Model{{Name: "a", Path: "/nonexistent/m.xml"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Prepare(tc.models); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
