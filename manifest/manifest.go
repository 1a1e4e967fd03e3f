// Package manifest handles weft.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/weft/compiler"
	"github.com/chazu/weft/vm"
)

// FileName is the name of the project file searched for by FindAndLoad.
const FileName = "weft.toml"

// SourceExt is the extension of Weft source files.
const SourceExt = ".weft"

var log = commonlog.GetLogger("weft.manifest")

// Manifest represents a weft.toml project configuration.
type Manifest struct {
	Project  Project        `toml:"project"`
	Source   Source         `toml:"source"`
	Compiler CompilerConfig `toml:"compiler"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Server   ServerConfig   `toml:"server"`

	// Dir is the directory containing the weft.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// Entry is the source file run by `weft run` with no arguments.
	Entry string `toml:"entry"`
}

// Source configures source file locations.
type Source struct {
	Dirs []string `toml:"dirs"`
}

// CompilerConfig maps onto compiler.Options.
type CompilerConfig struct {
	MaxErrors   int  `toml:"max-errors"`
	LineNumbers bool `toml:"line-numbers"`
}

// RuntimeConfig configures execution.
type RuntimeConfig struct {
	// Cache is the path of the compiled-program database. Empty disables
	// caching.
	Cache         string `toml:"cache"`
	MaxFrameDepth int    `toml:"max-frame-depth"`
}

// ServerConfig configures `weft serve`.
type ServerConfig struct {
	Addr string `toml:"addr"`
	// GRPCAddr enables a native gRPC listener next to the Connect one.
	GRPCAddr string `toml:"grpc-addr"`
}

// Default returns the configuration used when no weft.toml exists.
func Default() *Manifest {
	opts := compiler.DefaultOptions()
	return &Manifest{
		Source:   Source{Dirs: []string{"."}},
		Compiler: CompilerConfig{MaxErrors: opts.MaxErrors, LineNumbers: opts.LineNumbers},
		Runtime:  RuntimeConfig{MaxFrameDepth: vm.DefaultMaxFrameDepth},
		Server:   ServerConfig{Addr: "127.0.0.1:7420"},
		Dir:      ".",
	}
}

// Load parses a weft.toml file from the given directory. Settings missing
// from the file keep their Default values.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		log.Warningf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"."}
	}
	if m.Runtime.MaxFrameDepth <= 0 {
		return nil, fmt.Errorf("%s: runtime.max-frame-depth must be positive", path)
	}

	return m, nil
}

// FindAndLoad walks up from startDir to find a weft.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CompilerOptions converts the [compiler] table.
func (m *Manifest) CompilerOptions() compiler.Options {
	return compiler.Options{
		MaxErrors:   m.Compiler.MaxErrors,
		LineNumbers: m.Compiler.LineNumbers,
	}
}

// resolve makes p absolute relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the absolute path of the entry source file, or "" if
// none is configured.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Project.Entry)
}

// CachePath returns the absolute path of the program cache, or "" if
// caching is disabled.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Runtime.Cache)
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// SourceFiles lists every .weft file directly inside the source
// directories, sorted.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot list %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), SourceExt) {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
