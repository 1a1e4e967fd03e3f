// Weft CLI - compiles, runs and serves Weft programs
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/weft/manifest"
	"github.com/chazu/weft/server"
	"github.com/chazu/weft/store"

	_ "github.com/tliron/commonlog/simple"
)

// ImageExt is the extension `weft build` gives compiled programs.
const ImageExt = ".wefti"

var log = commonlog.GetLogger("weft.cli")

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

// cli carries what every subcommand needs.
type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	manifest *manifest.Manifest
	color    bool
	noCache  bool
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: weft [options] <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  run [file]            Compile (or load) and run a program\n")
	fmt.Fprintf(w, "  build [-o out] [file] Compile a program to a %s image\n", ImageExt)
	fmt.Fprintf(w, "  disasm [file]         Print the bytecode of a program\n")
	fmt.Fprintf(w, "  check [files...]      Report compile errors without running\n")
	fmt.Fprintf(w, "  lsp                   Start the language server on stdio\n")
	fmt.Fprintf(w, "  serve [-addr a] [-grpc a]  Start the Runner service\n")
	fmt.Fprintf(w, "\nOptions:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nWithout a file, run, build and disasm use [project] entry from weft.toml.\n")
}

func realMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("weft", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var verbose verbosity
	fs.Var(&verbose, "v", "Verbose output (repeat for more)")
	project := fs.String("C", ".", "Directory to search for weft.toml")
	logPath := fs.String("log", "", "Write log output to this file")
	noCache := fs.Bool("no-cache", false, "Bypass the program cache")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if *logPath != "" {
		commonlog.Configure(int(verbose)-1, logPath)
	} else {
		commonlog.Configure(int(verbose)-1, nil)
	}

	m, err := manifest.FindAndLoad(*project)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	if m == nil {
		m = manifest.Default()
		m.Dir = *project
	}

	c := &cli{
		stdout:   stdout,
		stderr:   stderr,
		manifest: m,
		color:    useColor(stderr),
		noCache:  *noCache,
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr, fs)
		return 2
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "run":
		return c.run(cmdArgs)
	case "build":
		return c.build(cmdArgs)
	case "disasm":
		return c.disasm(cmdArgs)
	case "check":
		return c.check(cmdArgs)
	case "lsp":
		return c.lsp(cmdArgs)
	case "serve":
		return c.serve(cmdArgs)
	case "help":
		usage(stdout, fs)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n\n", cmd)
		usage(stderr, fs)
		return 2
	}
}

// engine builds an Engine from the manifest. The returned close function
// releases the program cache, if one was opened.
func (c *cli) engine() (*server.Engine, func(), error) {
	cfg := server.EngineConfig{
		Compiler:      c.manifest.CompilerOptions(),
		MaxFrameDepth: c.manifest.Runtime.MaxFrameDepth,
	}
	closeFn := func() {}

	if path := c.manifest.CachePath(); path != "" && !c.noCache {
		cache, err := store.Open(path)
		if err != nil {
			return nil, nil, err
		}
		cfg.Cache = cache
		closeFn = func() { cache.Close() }
	}

	e, err := server.NewEngine(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return e, closeFn, nil
}
