package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/weft/compiler"
	"github.com/chazu/weft/server"
	"github.com/chazu/weft/vm"
)

// sourcePath picks the file argument or falls back to the project entry.
func (c *cli) sourcePath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if entry := c.manifest.EntryPath(); entry != "" {
		return entry, nil
	}
	return "", errors.New("no file given and weft.toml has no [project] entry")
}

func isImage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ImageExt)
}

// load returns the program at path: images are decoded, anything else is
// compiled (through the cache when enabled). Compile errors are printed.
func (c *cli) load(e *server.Engine, path string) (*vm.CompiledProgram, bool) {
	if isImage(path) {
		prog, err := vm.ReadProgram(path)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return nil, false
		}
		return prog, true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return nil, false
	}

	prog, cached, err := e.Compile(context.Background(), string(data))
	if err != nil {
		c.printCompileError(path, err)
		return nil, false
	}
	log.Debugf("%s: build %s (cached=%t)", path, prog.BuildID, cached)
	return prog, true
}

// run handles `weft run [file]`. An Integer result becomes the exit code.
func (c *cli) run(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	printResult := fs.Bool("p", false, "Print the value returned by main")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path, err := c.sourcePath(fs.Args())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 2
	}
	e, closeEngine, err := c.engine()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer closeEngine()

	prog, ok := c.load(e, path)
	if !ok {
		return 1
	}

	result, err := e.Execute(prog, c.stdout)
	if err != nil {
		fmt.Fprintf(c.stderr, "%s: %s\n", path, c.paint(colorRed, "runtime error"))
		fmt.Fprintf(c.stderr, "  %v\n", err)
		return 1
	}
	if *printResult {
		fmt.Fprintln(c.stdout, result.String())
	}
	if result.Type() == vm.TypeInteger {
		return int(result.ToInteger() & 0xff)
	}
	return 0
}

// build handles `weft build [-o out] [file]`.
func (c *cli) build(args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	output := fs.String("o", "", "Output image path (default: source name with "+ImageExt+")")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path, err := c.sourcePath(fs.Args())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 2
	}
	if isImage(path) {
		fmt.Fprintf(c.stderr, "Error: %s is already an image\n", path)
		return 2
	}
	e, closeEngine, err := c.engine()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer closeEngine()

	prog, ok := c.load(e, path)
	if !ok {
		return 1
	}

	out := *output
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ImageExt
	}
	if err := vm.WriteProgram(out, prog); err != nil {
		fmt.Fprintf(c.stderr, "Error building: %v\n", err)
		return 1
	}
	log.Infof("built %s (%d cells)", out, len(prog.Cells))
	return 0
}

// disasm handles `weft disasm [file]`.
func (c *cli) disasm(args []string) int {
	path, err := c.sourcePath(args)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 2
	}
	e, closeEngine, err := c.engine()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer closeEngine()

	prog, ok := c.load(e, path)
	if !ok {
		return 1
	}
	fmt.Fprint(c.stdout, vm.Disassemble(prog))
	return 0
}

// check handles `weft check [files...]`. Without arguments every source
// file in the project's source directories is checked.
func (c *cli) check(args []string) int {
	files := args
	if len(files) == 0 {
		var err error
		files, err = c.manifest.SourceFiles()
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			return 1
		}
		if len(files) == 0 {
			fmt.Fprintln(c.stderr, "No source files found")
			return 1
		}
	}

	e, closeEngine, err := c.engine()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	defer closeEngine()

	failed := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: %v\n", err)
			failed++
			continue
		}
		if errs := e.Check(string(data)); len(errs) > 0 {
			c.printCompileError(path, errs)
			failed++
		}
	}

	if failed > 0 {
		fmt.Fprintf(c.stderr, "%d of %d files failed\n", failed, len(files))
		return 1
	}
	fmt.Fprintf(c.stdout, "%d files ok\n", len(files))
	return 0
}

// printCompileError prints one line per diagnostic, prefixed with path.
func (c *cli) printCompileError(path string, err error) {
	var list compiler.ErrorList
	if !errors.As(err, &list) {
		fmt.Fprintf(c.stderr, "%s: %v\n", path, err)
		return
	}
	for _, e := range list {
		text := e.String()
		level := e.Level.String()
		if strings.HasPrefix(text, level) {
			text = c.paint(colorRed, level) + text[len(level):]
		}
		fmt.Fprintf(c.stderr, "%s: %s\n", path, text)
	}
}
