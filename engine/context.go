/*
 * weave - a class-file mixin engine
 *
 * Grounded on jacobin/globals: the teacher keeps a process-wide Global
 * struct (globals.GetGlobalRef()) holding flags like TraceClass,
 * TraceCloadi, StartingJar, etc. This package replaces that singleton with
 * an explicitly threaded engine context that the host constructs once and
 * tests construct fresh per case.
 */
package engine

import (
	"weave/bytecode"
	"weave/trace"
)

// InitialiserInjectionMode selects how mixin <init> instructions are
// spliced into target constructors.
type InitialiserInjectionMode int

const (
	InitModeDefault InitialiserInjectionMode = iota
	InitModeSafe
)

// Options is the engine's environment-like configuration set.
type Options struct {
	Debug                  bool
	DebugExport            bool
	DebugExportFilter      string // doublestar glob, e.g. "com/example/**"
	DebugExportDecompile   bool
	DebugExportAsync       bool
	DebugVerify            bool
	DebugVerbose           bool
	DebugCountInjections   bool
	DebugStrict            bool
	DebugStrictUnique      bool
	DebugStrictTargets     bool
	DumpTargetOnFailure    bool
	Checks                 bool
	ChecksInterfaces       bool
	ChecksInterfacesStrict bool
	IgnoreConstraints      bool
	HotSwap                bool
	EnvObf                 string
	EnvDisableRefMap       bool
	EnvIgnoreRequired      bool
	EnvCompatLevel         int
	InitialiserMode        InitialiserInjectionMode
	SourceDebugExtension   bool
	DumpDir                string // where debug.export/dumpTargetOnFailure write bytes
}

// DefaultOptions matches the teacher's conservative defaults: tracing off,
// strict mode off, constraints enforced.
func DefaultOptions() Options {
	return Options{
		InitialiserMode: InitModeDefault,
		EnvCompatLevel:  8,
		DumpDir:         ".weave-dumps",
	}
}

// Context is the engine-wide state threaded explicitly through the
// transformer instead of living in package-level globals: the option set
// and the class-provider collaborator, constructed once by the host and
// fresh per test case. The ClassMeta cache, the synthetic-class registry and
// the pending-configuration set are not fields here; they are built from it
// separately (classmeta.NewCache, argbundle.NewRegistry, transform.New).
//
// The zero value is not ready to use; call New().
type Context struct {
	Opts Options

	// Loader is the external bytecode-provider collaborator: given a binary
	// class name, return its parsed tree, or an error if the class cannot
	// be located. The core never does I/O itself beyond this single seam.
	Loader ClassProvider
}

// ClassProvider is the host's class-loading collaborator. Deliberately
// minimal: the host's own class-loading strategy is out of scope here.
type ClassProvider interface {
	// LoadClass returns the parsed tree for a binary class name, or an
	// error if the class cannot be located or parsed.
	LoadClass(binaryName string) (*bytecode.Class, error)
}

// New constructs a Context and applies its process-wide trace gating:
// Opts.Debug lowers the minimum emitted level to TRACE, Opts.DebugVerbose
// promotes TRACE messages to INFO, matching the ambient logging stack's
// documented debug/verbose switches.
func New(opts Options, loader ClassProvider) *Context {
	trace.SetVerbose(opts.DebugVerbose)
	if opts.Debug {
		trace.SetLevel(trace.TRACE)
	} else {
		trace.SetLevel(trace.WARNING)
	}
	return &Context{Opts: opts, Loader: loader}
}
