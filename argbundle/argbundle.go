/*
 * weave - a class-file mixin engine
 *
 * Package argbundle implements the argument-bundle class generator: one
 * synthetic support class per unique argument-type descriptor, used by the
 * modify-args injector to hand a mutable view of all of a call's arguments
 * to a handler method. Grounded on classmeta's keyed-map caching idiom
 * (classmeta/cache.go's ForName/ForType double-checked lookup) applied to
 * a registry of generated names instead of loaded classes, and on
 * bytecode.Class/Method/Field as the tree the generated class is built as.
 */
package argbundle

import (
	"strconv"
	"strings"
	"sync"

	"weave/bytecode"
	"weave/locals"
	"weave/opcodes"
	"weave/target"
)

const (
	basePackage    = "synthetic/args"
	baseClass      = "weave/injection/Args"
	fieldArray     = "values"
	fieldArrayDesc = "[Ljava/lang/Object;"
)

// Info is one registered bundle: its stable synthetic name, the mixin that
// first requested it, the argument descriptor it was generated for, and how
// many times a later request reused it after registration (load count).
type Info struct {
	Name      string // e.g. "synthetic/args/Args$3"
	Mixin     string // the mixin class that first caused this bundle to be registered
	ArgDesc   string // the normalised "(Ts)V" key this bundle was built for
	ArgTypes  []string
	LoadCount int
}

// Registry assigns stable names to argument-bundle classes, keyed by their
// descriptor normalised to void return type, and lazily builds the actual
// class tree only when first asked for.
type Registry struct {
	mu      sync.Mutex
	counter int
	byDesc  map[string]*Info
	classes map[string]*bytecode.Class
}

func NewRegistry() *Registry {
	return &Registry{byDesc: map[string]*Info{}, classes: map[string]*bytecode.Class{}}
}

// normalise maps a target method descriptor to the argument-only key this
// registry dedupes on: the parameter list, return type voided.
func normalise(argTypes []string) string {
	return "(" + strings.Join(argTypes, "") + ")V"
}

// NameFor returns the stable class name for argTypes, allocating a fresh
// "synthetic/args/Args$N" the first time this descriptor is seen.
func (r *Registry) NameFor(mixin string, argTypes []string) *Info {
	key := normalise(argTypes)

	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.byDesc[key]; ok {
		info.LoadCount++
		return info
	}
	info := &Info{
		Name:     basePackage + "/Args$" + strconv.Itoa(r.counter),
		Mixin:    mixin,
		ArgDesc:  key,
		ArgTypes: append([]string{}, argTypes...),
	}
	r.counter++
	r.byDesc[key] = info
	return info
}

// ClassFor returns the generated class tree for name, building it lazily
// (and caching the result) the first time the host asks for its bytes.
func (r *Registry) ClassFor(name string) (*bytecode.Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.classes[name]; ok {
		return c, true
	}
	for _, info := range r.byDesc {
		if info.Name == name {
			c := build(info)
			r.classes[name] = c
			return c, true
		}
	}
	return nil, false
}

// build emits the class tree for one argument-bundle descriptor: a private
// constructor forwarding to Args(Object[]), a static of(Ts) factory, per-
// index private getters, and overrides of set/setAll/toString.
func build(info *Info) *bytecode.Class {
	cp := bytecode.NewConstantPool()
	c := &bytecode.Class{
		Name: info.Name, SuperName: baseClass, CP: cp,
		Access: bytecode.AccPublic | bytecode.AccSynthetic | bytecode.AccFinal,
	}

	c.Methods = append(c.Methods,
		buildConstructor(info, cp),
		buildFactory(info, cp),
	)
	for i := range info.ArgTypes {
		c.Methods = append(c.Methods, buildGetter(info, i, cp))
	}
	c.Methods = append(c.Methods,
		buildSet(info, cp),
		buildSetAll(info, cp),
		buildToString(info, cp),
	)
	return c
}

// buildConstructor emits `private Args$N(Object[])` forwarding to super.
func buildConstructor(info *Info, cp *bytecode.ConstantPool) *bytecode.Method {
	superInit := internCPMethod(cp, baseClass, "<init>", "([Ljava/lang/Object;)V")
	code := bytecode.NewInsnList(
		&bytecode.Insn{Op: opcodes.ALOAD_0},
		&bytecode.Insn{Op: opcodes.ALOAD_1},
		&bytecode.Insn{Op: opcodes.INVOKESPECIAL, CPIndex: superInit},
		&bytecode.Insn{Op: opcodes.RETURN},
	)
	return &bytecode.Method{
		Owner: info.Name, Name: "<init>", Desc: "([Ljava/lang/Object;)V",
		Access: bytecode.AccPrivate, MaxStack: 2, MaxLocals: 2, Code: code,
	}
}

// buildFactory emits `public static Args$N of(Ts)` boxing each argument
// into an Object[] and invoking the private constructor.
func buildFactory(info *Info, cp *bytecode.ConstantPool) *bytecode.Method {
	ctorRef := internCPMethod(cp, info.Name, "<init>", "([Ljava/lang/Object;)V")
	n := len(info.ArgTypes)
	slots := target.GenerateArgMap(info.ArgTypes, 0)
	var lastSlot int
	if n > 0 {
		lastSlot = slots[n-1] + 1
		if locals.IsWideType(info.ArgTypes[n-1]) {
			lastSlot++
		}
	}

	var code []*bytecode.Insn
	code = append(code,
		&bytecode.Insn{Op: opcodes.NEW, CPIndex: internCPClass(cp, info.Name)},
		&bytecode.Insn{Op: opcodes.DUP},
		&bytecode.Insn{Op: opcodes.BIPUSH, IntOperand: int32(n)},
		&bytecode.Insn{Op: opcodes.ANEWARRAY, CPIndex: internCPClass(cp, "java/lang/Object")},
	)
	for i, t := range info.ArgTypes {
		code = append(code, &bytecode.Insn{Op: opcodes.DUP})
		code = append(code, &bytecode.Insn{Op: opcodes.BIPUSH, IntOperand: int32(i)})
		code = append(code, loadInsn(t, slots[i]))
		if box := boxInsn(cp, t); box != nil {
			code = append(code, box)
		}
		code = append(code, &bytecode.Insn{Op: opcodes.AASTORE})
	}
	code = append(code, &bytecode.Insn{Op: opcodes.INVOKESPECIAL, CPIndex: ctorRef})
	code = append(code, &bytecode.Insn{Op: opcodes.ARETURN})

	return &bytecode.Method{
		Owner: info.Name, Name: "of", Desc: "(" + strings.Join(info.ArgTypes, "") + ")L" + info.Name + ";",
		Access: bytecode.AccPublic | bytecode.AccStatic, MaxStack: 6, MaxLocals: lastSlot,
		Code: bytecode.NewInsnList(code...),
	}
}

// buildGetter emits `private T $i()` reading slot i out of the values array
// and returning it with T's return opcode. No CHECKCAST or unboxing call is
// emitted: the array element is returned as loaded.
func buildGetter(info *Info, i int, cp *bytecode.ConstantPool) *bytecode.Method {
	t := info.ArgTypes[i]
	valuesField := internCPField(cp, baseClass, fieldArray, fieldArrayDesc)
	code := bytecode.NewInsnList(
		&bytecode.Insn{Op: opcodes.ALOAD_0},
		&bytecode.Insn{Op: opcodes.GETFIELD, CPIndex: valuesField},
		&bytecode.Insn{Op: opcodes.BIPUSH, IntOperand: int32(i)},
		&bytecode.Insn{Op: opcodes.AALOAD},
		&bytecode.Insn{Op: returnOpFor(t)},
	)
	return &bytecode.Method{
		Owner: info.Name, Name: "$" + strconv.Itoa(i), Desc: "()" + t,
		Access: bytecode.AccPrivate, MaxStack: 2, MaxLocals: 1, Code: code,
	}
}

func returnOpFor(desc string) opcodes.Opcode {
	return opcodes.ReturnOpcodeFor(desc)
}

// buildSet emits `public void set(int, Object)`: one IF_ICMPEQ check per
// valid index, all branching into a single common store block; falling
// through all checks throws IndexOutOfBoundsException.
func buildSet(info *Info, cp *bytecode.ConstantPool) *bytecode.Method {
	valuesField := internCPField(cp, baseClass, fieldArray, fieldArrayDesc)
	throwClass := internCPClass(cp, "java/lang/IndexOutOfBoundsException")
	throwInit := internCPMethod(cp, "java/lang/IndexOutOfBoundsException", "<init>", "()V")

	storeHead := &bytecode.Insn{Op: opcodes.ALOAD_0}
	storeSeq := []*bytecode.Insn{
		storeHead,
		{Op: opcodes.GETFIELD, CPIndex: valuesField},
		{Op: opcodes.ILOAD_1},
		{Op: opcodes.ALOAD_2},
		{Op: opcodes.AASTORE},
		{Op: opcodes.RETURN},
	}

	var code []*bytecode.Insn
	for i := range info.ArgTypes {
		code = append(code,
			&bytecode.Insn{Op: opcodes.ILOAD_1},
			&bytecode.Insn{Op: opcodes.BIPUSH, IntOperand: int32(i)},
			&bytecode.Insn{Op: opcodes.IF_ICMPEQ, Target: storeHead},
		)
	}
	code = append(code,
		&bytecode.Insn{Op: opcodes.NEW, CPIndex: throwClass},
		&bytecode.Insn{Op: opcodes.DUP},
		&bytecode.Insn{Op: opcodes.INVOKESPECIAL, CPIndex: throwInit},
		&bytecode.Insn{Op: opcodes.ATHROW},
	)
	code = append(code, storeSeq...)

	return &bytecode.Method{
		Owner: info.Name, Name: "set", Desc: "(ILjava/lang/Object;)V",
		Access: bytecode.AccPublic, MaxStack: 3, MaxLocals: 3,
		Code: bytecode.NewInsnList(code...),
	}
}

// buildSetAll emits `public void setAll(Object[])` with a length check then
// a bulk per-index store.
func buildSetAll(info *Info, cp *bytecode.ConstantPool) *bytecode.Method {
	valuesField := internCPField(cp, baseClass, fieldArray, fieldArrayDesc)
	n := len(info.ArgTypes)
	okLabel := &bytecode.Insn{Op: opcodes.ALOAD_0}

	var code []*bytecode.Insn
	code = append(code,
		&bytecode.Insn{Op: opcodes.ALOAD_1},
		&bytecode.Insn{Op: opcodes.ARRAYLENGTH},
		&bytecode.Insn{Op: opcodes.BIPUSH, IntOperand: int32(n)},
		&bytecode.Insn{Op: opcodes.IF_ICMPEQ, Target: okLabel},
	)
	throwClass := internCPClass(cp, "java/lang/IllegalArgumentException")
	throwInit := internCPMethod(cp, "java/lang/IllegalArgumentException", "<init>", "()V")
	code = append(code,
		&bytecode.Insn{Op: opcodes.NEW, CPIndex: throwClass},
		&bytecode.Insn{Op: opcodes.DUP},
		&bytecode.Insn{Op: opcodes.INVOKESPECIAL, CPIndex: throwInit},
		&bytecode.Insn{Op: opcodes.ATHROW},
	)
	code = append(code, okLabel)
	for i := range info.ArgTypes {
		code = append(code,
			&bytecode.Insn{Op: opcodes.ALOAD_0},
			&bytecode.Insn{Op: opcodes.GETFIELD, CPIndex: valuesField},
			&bytecode.Insn{Op: opcodes.BIPUSH, IntOperand: int32(i)},
			&bytecode.Insn{Op: opcodes.ALOAD_1},
			&bytecode.Insn{Op: opcodes.BIPUSH, IntOperand: int32(i)},
			&bytecode.Insn{Op: opcodes.AALOAD},
			&bytecode.Insn{Op: opcodes.AASTORE},
		)
	}
	code = append(code, &bytecode.Insn{Op: opcodes.RETURN})
	return &bytecode.Method{
		Owner: info.Name, Name: "setAll", Desc: "([Ljava/lang/Object;)V",
		Access: bytecode.AccPublic, MaxStack: 4, MaxLocals: 2,
		Code: bytecode.NewInsnList(code...),
	}
}

// buildToString emits `public String toString()` returning "Args(types…)".
func buildToString(info *Info, cp *bytecode.ConstantPool) *bytecode.Method {
	literal := "Args(" + strings.Join(info.ArgTypes, ",") + ")"
	strIdx := internCPString(cp, literal)
	code := bytecode.NewInsnList(
		&bytecode.Insn{Op: opcodes.LDC, CPIndex: strIdx},
		&bytecode.Insn{Op: opcodes.ARETURN},
	)
	return &bytecode.Method{
		Owner: info.Name, Name: "toString", Desc: "()Ljava/lang/String;",
		Access: bytecode.AccPublic, MaxStack: 1, MaxLocals: 1, Code: code,
	}
}

func loadInsn(desc string, slot int) *bytecode.Insn {
	op := opcodes.ILOAD
	switch desc[0] {
	case 'J':
		op = opcodes.LLOAD
	case 'F':
		op = opcodes.FLOAD
	case 'D':
		op = opcodes.DLOAD
	case 'L', '[':
		op = opcodes.ALOAD
	}
	return &bytecode.Insn{Op: op, IntOperand: int32(slot)}
}

// boxInsn emits the invokestatic call that boxes a primitive value into its
// wrapper type; reference types pass through unboxed (nil).
func boxInsn(cp *bytecode.ConstantPool, desc string) *bytecode.Insn {
	wrapper, ok := boxingTarget(desc)
	if !ok {
		return nil
	}
	ref := internCPMethod(cp, wrapper, "valueOf", "("+desc+")L"+wrapper+";")
	return &bytecode.Insn{Op: opcodes.INVOKESTATIC, CPIndex: ref}
}

func boxingTarget(desc string) (wrapper string, ok bool) {
	switch desc {
	case "I":
		return "java/lang/Integer", true
	case "J":
		return "java/lang/Long", true
	case "F":
		return "java/lang/Float", true
	case "D":
		return "java/lang/Double", true
	case "Z":
		return "java/lang/Boolean", true
	case "B":
		return "java/lang/Byte", true
	case "C":
		return "java/lang/Character", true
	case "S":
		return "java/lang/Short", true
	default:
		return "", false
	}
}

var cpCounter = struct {
	sync.Mutex
	next int
}{next: 1}

func nextCPIndex() int {
	cpCounter.Lock()
	defer cpCounter.Unlock()
	i := cpCounter.next
	cpCounter.next++
	return i
}

func internCPClass(cp *bytecode.ConstantPool, name string) int {
	for i, n := range cp.Classes {
		if n == name {
			return i
		}
	}
	i := nextCPIndex()
	cp.Classes[i] = name
	return i
}

func internCPMethod(cp *bytecode.ConstantPool, owner, name, desc string) int {
	for i, ref := range cp.Methods {
		if ref.Owner == owner && ref.Name == name && ref.Desc == desc {
			return i
		}
	}
	i := nextCPIndex()
	cp.Methods[i] = bytecode.MethodRef{Owner: owner, Name: name, Desc: desc}
	return i
}

func internCPField(cp *bytecode.ConstantPool, owner, name, desc string) int {
	for i, ref := range cp.Fields {
		if ref.Owner == owner && ref.Name == name && ref.Desc == desc {
			return i
		}
	}
	i := nextCPIndex()
	cp.Fields[i] = bytecode.FieldRef{Owner: owner, Name: name, Desc: desc}
	return i
}

func internCPString(cp *bytecode.ConstantPool, s string) int {
	for i, v := range cp.Strings {
		if v == s {
			return i
		}
	}
	i := nextCPIndex()
	cp.Strings[i] = s
	return i
}
