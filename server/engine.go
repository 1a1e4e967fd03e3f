// Package server hosts Weft for editors and remote callers: an executor that
// serializes compile and run requests, an LSP server, and the Runner RPC
// service.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/weft/compiler"
	"github.com/chazu/weft/store"
	"github.com/chazu/weft/vm"
)

var log = commonlog.GetLogger("weft.server")

// HostFunction is a Go function scripts call by name. Out receives anything
// the function prints.
type HostFunction struct {
	Name          string
	MinParameters int
	MaxParameters int // -1 for no limit
	Call          func(call *vm.FunctionCall, out io.Writer) error
}

// Print writes its arguments separated by spaces and ends the line.
var Print = HostFunction{
	Name:          "print",
	MinParameters: 0,
	MaxParameters: -1,
	Call: func(call *vm.FunctionCall, out io.Writer) error {
		parts := make([]string, len(call.Args))
		for i, a := range call.Args {
			parts[i] = a.String()
		}
		_, err := fmt.Fprintln(out, strings.Join(parts, " "))
		return err
	},
}

// EngineConfig configures NewEngine.
type EngineConfig struct {
	Compiler compiler.Options
	// MaxFrameDepth bounds user-function recursion. Zero selects
	// vm.DefaultMaxFrameDepth.
	MaxFrameDepth int
	// Cache, when set, stores every compiled program by source digest.
	Cache *store.Store
	// Hosts defaults to Print alone.
	Hosts []HostFunction
}

// Engine pairs a compiler with a runtime and the host functions both must
// agree on. It is not safe for concurrent use; see Executor.
type Engine struct {
	compiler *compiler.Compiler
	runtime  *vm.Runtime
	cache    *store.Store
	hosts    []HostFunction
}

// NewEngine creates an engine and registers its host functions.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []HostFunction{Print}
	}

	c := compiler.NewCompiler(cfg.Compiler)
	for _, h := range hosts {
		if err := c.RegisterFunction(h.Name, h.MinParameters, h.MaxParameters); err != nil {
			return nil, err
		}
	}

	rt := vm.NewRuntime()
	rt.MaxFrameDepth = cfg.MaxFrameDepth
	if rt.MaxFrameDepth <= 0 {
		rt.MaxFrameDepth = vm.DefaultMaxFrameDepth
	}

	return &Engine{compiler: c, runtime: rt, cache: cfg.Cache, hosts: hosts}, nil
}

// Compiler returns the engine's compiler.
func (e *Engine) Compiler() *compiler.Compiler { return e.compiler }

// Hosts returns the registered host functions.
func (e *Engine) Hosts() []HostFunction { return e.hosts }

// Compile compiles source, consulting the cache when one is configured.
// The boolean reports a cache hit.
func (e *Engine) Compile(ctx context.Context, source string) (*vm.CompiledProgram, bool, error) {
	if e.cache != nil {
		return e.cache.Load(ctx, e.compiler, source)
	}
	prog, err := e.compiler.Compile(source)
	return prog, false, err
}

// Check compiles source and returns its diagnostics, if any.
func (e *Engine) Check(source string) compiler.ErrorList {
	_, err := e.compiler.Compile(source)
	var list compiler.ErrorList
	if errors.As(err, &list) {
		return list
	}
	if err != nil {
		return compiler.ErrorList{{Level: compiler.LevelFatalError, Code: compiler.InternalError, Description: err.Error()}}
	}
	return nil
}

// Execute runs prog with the engine's host functions writing to out.
func (e *Engine) Execute(prog *vm.CompiledProgram, out io.Writer) (*vm.Variable, error) {
	host := make(vm.FuncMap, len(e.hosts))
	for _, h := range e.hosts {
		h := h
		host[h.Name] = func(call *vm.FunctionCall) error {
			return h.Call(call, out)
		}
	}
	return e.runtime.Execute(prog, host)
}

// Run compiles and executes source. The boolean reports whether the
// program came from the cache.
func (e *Engine) Run(ctx context.Context, source string, out io.Writer) (*vm.Variable, bool, error) {
	prog, cached, err := e.Compile(ctx, source)
	if err != nil {
		return nil, false, err
	}
	value, err := e.Execute(prog, out)
	return value, cached, err
}
