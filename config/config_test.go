package config

import "testing"

func TestLoadParsesFields(t *testing.T) {
	raw := []byte(`{
		"package": "com.example.mixins",
		"priority": 1200,
		"compatibilityLevel": 8,
		"refmap": "example.refmap.json",
		"required": false,
		"mixins": ["MixinFoo", "MixinBar"],
		"client": ["MixinClientOnly"]
	}`)

	cfg, err := Load("example.mixins.json", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "example.mixins.json" {
		t.Fatalf("expected Name to be preserved, got %q", cfg.Name)
	}
	if cfg.Package != "com.example.mixins" {
		t.Fatalf("unexpected package: %q", cfg.Package)
	}
	if cfg.Priority != 1200 {
		t.Fatalf("unexpected priority: %d", cfg.Priority)
	}
	if cfg.CompatLevel != 8 {
		t.Fatalf("unexpected compat level: %d", cfg.CompatLevel)
	}
	if cfg.RefMapResource != "example.refmap.json" {
		t.Fatalf("unexpected refmap resource: %q", cfg.RefMapResource)
	}
	if cfg.Required {
		t.Fatal("expected required=false to be honored, not defaulted")
	}
	if len(cfg.MixinClasses) != 2 || cfg.MixinClasses[0] != "MixinFoo" {
		t.Fatalf("unexpected mixin classes: %v", cfg.MixinClasses)
	}
	if len(cfg.ClientSide) != 1 || cfg.ClientSide[0] != "MixinClientOnly" {
		t.Fatalf("unexpected client classes: %v", cfg.ClientSide)
	}
}

func TestLoadDefaultsPriorityAndRequired(t *testing.T) {
	raw := []byte(`{"package": "com.example.mixins", "mixins": ["MixinFoo"]}`)

	cfg, err := Load("minimal.mixins.json", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Priority != 1000 {
		t.Fatalf("expected default priority 1000, got %d", cfg.Priority)
	}
	if !cfg.Required {
		t.Fatal("expected required to default true")
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	if _, err := Load("bad.mixins.json", []byte("not json")); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestLoadRejectsMissingPackage(t *testing.T) {
	raw := []byte(`{"mixins": ["MixinFoo"]}`)
	if _, err := Load("nopkg.mixins.json", raw); err == nil {
		t.Fatal("expected an error for a missing package field")
	}
}

func TestLoadRejectsNoMixinDeclarations(t *testing.T) {
	raw := []byte(`{"package": "com.example.mixins"}`)
	if _, err := Load("empty.mixins.json", raw); err == nil {
		t.Fatal("expected an error when no mixins/client/server arrays are present")
	}
}

func TestLoaderResolvesParentInheritance(t *testing.T) {
	loader := NewLoader()
	base := []byte(`{
		"package": "com.example.mixins",
		"mixins": ["MixinBase"],
		"priority": 500,
		"compatibilityLevel": 17,
		"refmap": "base.refmap.json",
		"required": false
	}`)
	if _, err := loader.Load("base.mixins.json", base); err != nil {
		t.Fatalf("unexpected error loading base: %v", err)
	}

	child := []byte(`{
		"parent": "base.mixins.json",
		"package": "com.example.mixins.child",
		"mixins": ["MixinChild"]
	}`)
	cfg, err := loader.Load("child.mixins.json", child)
	if err != nil {
		t.Fatalf("unexpected error loading child: %v", err)
	}
	if cfg.Parent == nil || cfg.Parent.Name != "base.mixins.json" {
		t.Fatalf("expected cfg.Parent to reference base.mixins.json, got %v", cfg.Parent)
	}
	if cfg.Priority != 500 {
		t.Fatalf("expected priority inherited from parent, got %d", cfg.Priority)
	}
	if cfg.CompatLevel != 17 {
		t.Fatalf("expected compat level inherited from parent, got %d", cfg.CompatLevel)
	}
	if cfg.RefMapResource != "base.refmap.json" {
		t.Fatalf("expected refmap inherited from parent, got %q", cfg.RefMapResource)
	}
	if cfg.Required {
		t.Fatal("expected required inherited from parent (false)")
	}
}

func TestLoaderChildOverridesParentFields(t *testing.T) {
	loader := NewLoader()
	base := []byte(`{"package": "com.example.mixins", "mixins": ["MixinBase"], "priority": 500}`)
	if _, err := loader.Load("base.mixins.json", base); err != nil {
		t.Fatalf("unexpected error loading base: %v", err)
	}
	child := []byte(`{"parent": "base.mixins.json", "package": "com.example.mixins", "mixins": ["MixinChild"], "priority": 900}`)
	cfg, err := loader.Load("child.mixins.json", child)
	if err != nil {
		t.Fatalf("unexpected error loading child: %v", err)
	}
	if cfg.Priority != 900 {
		t.Fatalf("expected child's own priority to win, got %d", cfg.Priority)
	}
}

func TestLoaderRejectsUnresolvedParent(t *testing.T) {
	loader := NewLoader()
	child := []byte(`{"parent": "missing.mixins.json", "package": "com.example.mixins", "mixins": ["MixinChild"]}`)
	if _, err := loader.Load("child.mixins.json", child); err == nil {
		t.Fatal("expected an error for an unresolved parent reference")
	}
}

func TestQualifiedMixinClassesPrefixesAndDedupes(t *testing.T) {
	raw := []byte(`{
		"package": "com.example.mixins",
		"mixins": ["MixinFoo"],
		"client": ["MixinFoo", "MixinClient"]
	}`)
	cfg, err := Load("dedupe.mixins.json", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := QualifiedMixinClasses(cfg)
	want := []string{"com.example.mixins.MixinFoo", "com.example.mixins.MixinClient"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, got[i])
		}
	}
}
