package engine

import (
	"testing"

	"weave/bytecode"
)

type stubLoader struct{}

func (stubLoader) LoadClass(name string) (*bytecode.Class, error) {
	return &bytecode.Class{Name: name}, nil
}

func TestDefaultOptionsConservativeDefaults(t *testing.T) {
	opts := DefaultOptions()
	if opts.Debug || opts.DebugStrict || opts.HotSwap {
		t.Fatal("expected tracing/strict/hotswap off by default")
	}
	if opts.InitialiserMode != InitModeDefault {
		t.Fatal("expected the default initializer mode")
	}
	if opts.EnvCompatLevel != 8 {
		t.Fatalf("expected compat level 8, got %d", opts.EnvCompatLevel)
	}
	if opts.DumpDir == "" {
		t.Fatal("expected a non-empty default dump directory")
	}
}

func TestNewThreadsOptsAndLoader(t *testing.T) {
	opts := DefaultOptions()
	opts.Debug = true
	loader := stubLoader{}

	ctx := New(opts, loader)
	if !ctx.Opts.Debug {
		t.Fatal("expected options to be threaded through unchanged")
	}
	class, err := ctx.Loader.LoadClass("com/example/Target")
	if err != nil || class.Name != "com/example/Target" {
		t.Fatalf("expected the loader to be reachable via the context, got %v, %v", class, err)
	}
}
