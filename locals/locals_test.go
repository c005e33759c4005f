package locals

import (
	"testing"

	"weave/bytecode"
	"weave/opcodes"
)

func TestParseArgTypes(t *testing.T) {
	cases := map[string][]string{
		"()V":                       nil,
		"(I)V":                      {"I"},
		"(IJLjava/lang/String;[I)V": {"I", "J", "Ljava/lang/String;", "[I"},
		"([Ljava/lang/Object;D)Z":   {"[Ljava/lang/Object;", "D"},
	}
	for desc, want := range cases {
		got := ParseArgTypes(desc)
		if len(got) != len(want) {
			t.Fatalf("ParseArgTypes(%q) = %v, want %v", desc, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("ParseArgTypes(%q)[%d] = %q, want %q", desc, i, got[i], want[i])
			}
		}
	}
}

func TestIsWideType(t *testing.T) {
	if !IsWideType("J") || !IsWideType("D") {
		t.Errorf("J and D should be wide")
	}
	if IsWideType("I") || IsWideType("Ljava/lang/Object;") {
		t.Errorf("I and object refs should not be wide")
	}
}

func buildSimpleMethod() (*bytecode.Class, *bytecode.Method) {
	// void m(int a) { int b = a; return; }
	aload0 := &bytecode.Insn{Op: opcodes.ALOAD_0, IntOperand: 0}
	iload1 := &bytecode.Insn{Op: opcodes.ILOAD_1, IntOperand: 1}
	istore2 := &bytecode.Insn{Op: opcodes.ISTORE, IntOperand: 2}
	afterStore := &bytecode.Insn{Op: opcodes.NOP}
	ret := &bytecode.Insn{Op: opcodes.RETURN}

	code := bytecode.NewInsnList(aload0, iload1, istore2, afterStore, ret)
	method := &bytecode.Method{
		Owner: "com/example/Foo", Name: "m", Desc: "(I)V",
		MaxLocals: 3, Code: code,
	}
	tree := &bytecode.Class{Name: "com/example/Foo", SuperName: "java/lang/Object", Methods: []*bytecode.Method{method}}
	return tree, method
}

func TestReconstructSeedsArgsAndStores(t *testing.T) {
	r := NewReconstructor(nil)
	tree, method := buildSimpleMethod()
	ret := method.Code.At(4)

	table, err := r.Reconstruct(tree, method, ret, DefaultSettings())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !table[0].Occupied || table[0].Name != "this" {
		t.Errorf("slot 0 = %+v, want this", table[0])
	}
	if !table[1].Occupied || table[1].Desc != "I" {
		t.Errorf("slot 1 (arg a) = %+v, want occupied I", table[1])
	}
	if !table[2].Occupied || table[2].Desc != "I" {
		t.Errorf("slot 2 (local b, stored from istore) = %+v, want occupied I", table[2])
	}
}

func TestReconstructStaticMethodHasNoThis(t *testing.T) {
	r := NewReconstructor(nil)
	iload0 := &bytecode.Insn{Op: opcodes.ILOAD_0, IntOperand: 0}
	ret := &bytecode.Insn{Op: opcodes.RETURN}
	code := bytecode.NewInsnList(iload0, ret)
	method := &bytecode.Method{
		Owner: "com/example/Foo", Name: "s", Desc: "(I)V",
		Access: bytecode.AccStatic, MaxLocals: 1, Code: code,
	}
	tree := &bytecode.Class{Name: "com/example/Foo", Methods: []*bytecode.Method{method}}

	table, err := r.Reconstruct(tree, method, ret, DefaultSettings())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !table[0].Occupied || table[0].Name == "this" {
		t.Errorf("slot 0 = %+v, want the int argument, not this", table[0])
	}
}

func TestReconstructWideArgConsumesTwoSlots(t *testing.T) {
	r := NewReconstructor(nil)
	ret := &bytecode.Insn{Op: opcodes.RETURN}
	code := bytecode.NewInsnList(ret)
	method := &bytecode.Method{
		Owner: "com/example/Foo", Name: "w", Desc: "(J)V",
		Access: bytecode.AccStatic, MaxLocals: 2, Code: code,
	}
	tree := &bytecode.Class{Name: "com/example/Foo", Methods: []*bytecode.Method{method}}

	table, err := r.Reconstruct(tree, method, ret, DefaultSettings())
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !table[0].Occupied || table[0].Desc != "J" {
		t.Errorf("slot 0 = %+v, want long arg", table[0])
	}
	if table[1].Occupied {
		t.Errorf("slot 1 should be the wide-type's cleared follow-on slot, got %+v", table[1])
	}
}

func TestReconstructRejectsNilMethod(t *testing.T) {
	r := NewReconstructor(nil)
	if _, err := r.Reconstruct(nil, nil, nil, DefaultSettings()); err == nil {
		t.Errorf("expected an error for nil class/method")
	}
}
