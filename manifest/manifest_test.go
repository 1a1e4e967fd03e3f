package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/chazu/weft/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"
entry = "main.weft"

[source]
dirs = ["src", "lib"]

[compiler]
max-errors = 10
line-numbers = false

[runtime]
cache = ".weft/cache.db"
max-frame-depth = 128

[server]
addr = ":9000"
grpc-addr = ":9001"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	opts := m.CompilerOptions()
	if opts.MaxErrors != 10 || opts.LineNumbers {
		t.Errorf("compiler options = %+v", opts)
	}
	if m.Runtime.MaxFrameDepth != 128 {
		t.Errorf("max-frame-depth = %d, want 128", m.Runtime.MaxFrameDepth)
	}
	if m.Server.Addr != ":9000" || m.Server.GRPCAddr != ":9001" {
		t.Errorf("server = %+v", m.Server)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "main.weft"); got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, ".weft", "cache.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(m.Source.Dirs, []string{"."}) {
		t.Errorf("default source dirs = %v, want [.]", m.Source.Dirs)
	}
	if m.Compiler.MaxErrors != 45 || !m.Compiler.LineNumbers {
		t.Errorf("default compiler config = %+v", m.Compiler)
	}
	if m.Runtime.MaxFrameDepth != vm.DefaultMaxFrameDepth {
		t.Errorf("default max-frame-depth = %d", m.Runtime.MaxFrameDepth)
	}
	if m.CachePath() != "" {
		t.Errorf("cache should be disabled by default, got %q", m.CachePath())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Error("expected error for missing weft.toml")
	}

	writeManifest(t, dir, "[project\nname = ")
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}

	for _, depth := range []string{"-1", "0"} {
		writeManifest(t, dir, "[runtime]\nmax-frame-depth = "+depth+"\n")
		if _, err := Load(dir); err == nil {
			t.Errorf("expected error for max-frame-depth = %s", depth)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no weft.toml exists")
	}
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.weft", "a.WEFT", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, "src", name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	m := &Manifest{Dir: dir, Source: Source{Dirs: []string{"src"}}}

	files, err := m.SourceFiles()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "src", "a.WEFT"), filepath.Join(dir, "src", "b.weft")}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("SourceFiles = %v, want %v", files, want)
	}

	m.Source.Dirs = []string{"missing"}
	if _, err := m.SourceFiles(); err == nil {
		t.Error("expected error for missing source dir")
	}
}
