package argbundle

import (
	"testing"

	"weave/bytecode"
	"weave/opcodes"
)

func TestNameForIsStableAndDeduped(t *testing.T) {
	r := NewRegistry()
	a := r.NameFor("com/example/MyMixin", []string{"I", "Ljava/lang/String;"})
	b := r.NameFor("com/example/OtherMixin", []string{"I", "Ljava/lang/String;"})
	if a.Name != b.Name {
		t.Errorf("same descriptor should get the same name, got %q and %q", a.Name, b.Name)
	}
	if b.LoadCount != 1 {
		t.Errorf("second request for the same descriptor should bump LoadCount, got %d", b.LoadCount)
	}
	if a.Mixin != "com/example/MyMixin" {
		t.Errorf("Mixin should record the first requester, got %q", a.Mixin)
	}
}

func TestNameForAllocatesDistinctNamesPerDescriptor(t *testing.T) {
	r := NewRegistry()
	a := r.NameFor("M", []string{"I"})
	b := r.NameFor("M", []string{"J"})
	if a.Name == b.Name {
		t.Errorf("different descriptors must get different names, both got %q", a.Name)
	}
}

func TestClassForBuildsLazilyAndCaches(t *testing.T) {
	r := NewRegistry()
	info := r.NameFor("M", []string{"I", "Ljava/lang/Object;"})

	c1, ok := r.ClassFor(info.Name)
	if !ok {
		t.Fatalf("ClassFor should find a registered name")
	}
	if c1.Name != info.Name || c1.SuperName != baseClass {
		t.Errorf("generated class should be named %q extending %q, got %+v", info.Name, baseClass, c1)
	}
	wantMethods := 2 + len(info.ArgTypes) + 3 // ctor, of, getters, set/setAll/toString
	if len(c1.Methods) != wantMethods {
		t.Errorf("expected %d methods, got %d", wantMethods, len(c1.Methods))
	}

	c2, ok := r.ClassFor(info.Name)
	if !ok || c2 != c1 {
		t.Error("ClassFor should return the cached instance on a second call")
	}
}

func TestClassForUnknownNameFails(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.ClassFor("synthetic/args/Args$99"); ok {
		t.Error("ClassFor should fail for a name never registered via NameFor")
	}
}

func TestBuildSetBranchesAllTargetTheSameStoreBlock(t *testing.T) {
	r := NewRegistry()
	info := r.NameFor("M", []string{"I", "J", "Ljava/lang/Object;"})
	c, _ := r.ClassFor(info.Name)

	var setMethod *bytecode.Method
	for _, m := range c.Methods {
		if m.Name == "set" {
			setMethod = m
		}
	}
	if setMethod == nil {
		t.Fatal("generated class should have a set method")
	}

	var branches []*bytecode.Insn
	for _, n := range setMethod.Code.Nodes() {
		if n.Op == opcodes.IF_ICMPEQ {
			branches = append(branches, n)
		}
	}
	if len(branches) != len(info.ArgTypes) {
		t.Fatalf("expected %d index checks, got %d", len(info.ArgTypes), len(branches))
	}
	for _, b := range branches {
		if b.Target != branches[0].Target {
			t.Errorf("all set() index checks should branch to the same store block")
		}
	}
}
