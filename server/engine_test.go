package server

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/chazu/weft/compiler"
	"github.com/chazu/weft/store"
	"github.com/chazu/weft/vm"
)

func TestEngineRun(t *testing.T) {
	e := newTestEngine(t)

	var out bytes.Buffer
	v, cached, err := e.Run(bg(), helloSource, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cached {
		t.Error("engine without cache reported a hit")
	}
	if v.ToInteger() != 42 {
		t.Errorf("result = %v, want 42", v)
	}
	if out.String() != "hello 42\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestEngineRuntimeFault(t *testing.T) {
	e := newTestEngine(t)

	_, _, err := e.Run(bg(), faultSource, io.Discard)
	var rtErr *vm.RuntimeError
	if !errors.As(err, &rtErr) {
		t.Fatalf("Run = %v, want RuntimeError", err)
	}
	if !errors.Is(err, vm.ErrDivideByZero) || rtErr.Line != 4 {
		t.Errorf("fault = %v (line %d)", err, rtErr.Line)
	}
}

func TestEngineCheck(t *testing.T) {
	e := newTestEngine(t)

	if errs := e.Check(helloSource); len(errs) != 0 {
		t.Errorf("Check(valid) = %v", errs)
	}
	errs := e.Check("main()\n{\n  return missing\n}\n")
	if !errs.Has(compiler.VariableNotDefined) {
		t.Errorf("Check = %v, want VariableNotDefined", errs)
	}
}

func TestEngineCustomHosts(t *testing.T) {
	var calls int
	e, err := NewEngine(EngineConfig{
		Compiler: compiler.DefaultOptions(),
		Hosts: []HostFunction{{
			Name:          "twice",
			MinParameters: 1,
			MaxParameters: 1,
			Call: func(call *vm.FunctionCall, out io.Writer) error {
				calls++
				call.ReturnValue.SetInteger(call.Args[0].ToInteger() * 2)
				return nil
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	v, _, err := e.Run(bg(), "main()\n{\n  return twice(21)\n}\n", io.Discard)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v.ToInteger() != 42 || calls != 1 {
		t.Errorf("result = %v after %d calls", v, calls)
	}

	// print is not registered when custom hosts replace the default.
	if errs := e.Check("main()\n{\n  print(1)\n}\n"); !errs.Has(compiler.FunctionNotDefined) {
		t.Errorf("Check = %v, want FunctionNotDefined", errs)
	}
}

func TestEngineRejectsBadHost(t *testing.T) {
	_, err := NewEngine(EngineConfig{Hosts: []HostFunction{{Name: "len", MaxParameters: 1}}})
	if err == nil {
		t.Error("expected error registering a host named like an intrinsic")
	}
}

func TestEngineUsesCache(t *testing.T) {
	cache, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	e, err := NewEngine(EngineConfig{Compiler: compiler.DefaultOptions(), Cache: cache})
	if err != nil {
		t.Fatal(err)
	}

	for i, wantCached := range []bool{false, true} {
		var out bytes.Buffer
		v, cached, err := e.Run(bg(), helloSource, &out)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if cached != wantCached {
			t.Errorf("run %d cached = %v, want %v", i, cached, wantCached)
		}
		if v.ToInteger() != 42 || out.String() != "hello 42\n" {
			t.Errorf("run %d = %v, %q", i, v, out.String())
		}
	}
}

const runawaySource = "main()\n{\n  return f(0)\n}\nf(n)\n{\n  return f(n + 1)\n}\n"

func TestEngineFrameDepth(t *testing.T) {
	e, err := NewEngine(EngineConfig{Compiler: compiler.DefaultOptions(), MaxFrameDepth: 8})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Run(bg(), runawaySource, io.Discard); !errors.Is(err, vm.ErrStackOverflow) {
		t.Errorf("Run = %v, want ErrStackOverflow", err)
	}
}

func TestEngineDefaultFrameDepth(t *testing.T) {
	e, err := NewEngine(EngineConfig{Compiler: compiler.DefaultOptions()})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Run(bg(), runawaySource, io.Discard); !errors.Is(err, vm.ErrStackOverflow) {
		t.Errorf("Run = %v, want ErrStackOverflow", err)
	}
}
