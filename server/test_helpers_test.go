package server

import (
	"context"
	"testing"

	"github.com/chazu/weft/compiler"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// newTestEngine creates an engine with default options and the Print host.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{Compiler: compiler.DefaultOptions()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// newTestExecutor starts an executor that is stopped when the test ends.
func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	x := NewExecutor(newTestEngine(t))
	t.Cleanup(x.Stop)
	return x
}

func bg() context.Context {
	return context.Background()
}

const helloSource = `main()
{
  print("hello", 42)
  return 6 * 7
}
`

const faultSource = `main()
{
  x = 0
  return 1 / x
}
`
