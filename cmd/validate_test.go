package cmd

import (
	"testing"

	"weave/config"
)

func TestReportHelpersDoNotPanic(t *testing.T) {
	// reportSuccess/reportFailure only print; this exercises both format
	// branches without capturing stdout, matching the teacher pack's
	// "must not panic" style smoke tests for console-output helpers.
	reportSuccess("text", "example.mixins.json", []string{"com.example.MixinFoo"})
	reportSuccess("json", "example.mixins.json", []string{"com.example.MixinFoo"})
	reportFailure("text", "bad.mixins.json", errBoom{})
	reportFailure("json", "bad.mixins.json", errBoom{})
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestConfigLoadIntegratesWithQualifiedMixinClasses(t *testing.T) {
	raw := []byte(`{"package": "com.example", "mixins": ["MixinFoo"]}`)
	cfg, err := config.Load("example.mixins.json", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	classes := config.QualifiedMixinClasses(cfg)
	if len(classes) != 1 || classes[0] != "com.example.MixinFoo" {
		t.Fatalf("unexpected classes: %v", classes)
	}
}
