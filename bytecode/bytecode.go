// Package bytecode is weave's façade over a bytecode manipulation library,
// treated as an external collaborator with a minimal specified surface:
// class/method/field/instruction trees plus a visitor sink. weave does not
// parse or emit real class files; it models the tree shape the rest of the
// engine operates on, shaped after the teacher's own ParsedClass/method/
// codeAttrib layout in classloader/classloader.go, generalized from a
// parse-only record into a mutable tree that injectors and the applicator
// can rewrite in place.
package bytecode

import "weave/opcodes"

// AccessFlags mirrors the JVM access_flags bitmask (JVMS 4.1 table 4.1-A),
// reused for classes, fields and methods alike as the teacher does.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020
	AccSynchronized AccessFlags = 0x0020
	AccBridge       AccessFlags = 0x0040
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

func (a AccessFlags) Has(flag AccessFlags) bool { return a&flag != 0 }
func (a AccessFlags) IsStatic() bool            { return a.Has(AccStatic) }
func (a AccessFlags) IsFinal() bool             { return a.Has(AccFinal) }
func (a AccessFlags) IsAbstract() bool          { return a.Has(AccAbstract) }
func (a AccessFlags) IsInterface() bool         { return a.Has(AccInterface) }
func (a AccessFlags) IsPrivate() bool           { return a.Has(AccPrivate) }
func (a AccessFlags) IsSynthetic() bool         { return a.Has(AccSynthetic) }

// Insn is one instruction node in a method body. Operands carries the raw
// bytes that follow the opcode (CP index bytes, branch offset bytes, local
// slot index, etc); CPIndex/IntOperand/Target are decoded convenience views
// filled in by the class reader, used so resolvers don't re-decode operand
// bytes for every query.
type Insn struct {
	Op        opcodes.Opcode
	Operands  []byte
	CPIndex   int // constant-pool index operand, when applicable
	IntOperand int32 // BIPUSH/SIPUSH/IINC immediate, when applicable
	Target    *Insn // branch/jump target node, when applicable
	LineNumber int
}

// MethodRef/FieldRef decode the owner/name/descriptor a CP-indexed
// invoke/field instruction resolves to; the class tree keeps a side table
// (ConstantPool) so Insn itself stays small.
type MethodRef struct {
	Owner, Name, Desc string
	IsInterface       bool
}

type FieldRef struct {
	Owner, Name, Desc string
}

// ConstantPool resolves the CP indices embedded in instruction operands.
// A real bytecode library backs this with the actual constant_pool table;
// weave's façade only needs the resolved reference shapes.
type ConstantPool struct {
	Methods map[int]MethodRef
	Fields  map[int]FieldRef
	Classes map[int]string // CP index -> internal class name (NEW, ANEWARRAY, CHECKCAST, INSTANCEOF)
	Strings map[int]string // CP index -> literal text (LDC of a String constant)
}

func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		Methods: map[int]MethodRef{},
		Fields:  map[int]FieldRef{},
		Classes: map[int]string{},
		Strings: map[int]string{},
	}
}

// InsnList is an ordered, mutable sequence of instruction nodes. Index
// lookups are by node identity, not position, since positions shift under
// insertion/removal — callers hold onto *Insn pointers the way an ASM-style
// InsnList expects.
type InsnList struct {
	nodes []*Insn
}

func NewInsnList(nodes ...*Insn) *InsnList { return &InsnList{nodes: nodes} }

func (l *InsnList) Nodes() []*Insn { return l.nodes }

func (l *InsnList) Len() int { return len(l.nodes) }

func (l *InsnList) IndexOf(n *Insn) int {
	for i, c := range l.nodes {
		if c == n {
			return i
		}
	}
	return -1
}

func (l *InsnList) At(i int) *Insn {
	if i < 0 || i >= len(l.nodes) {
		return nil
	}
	return l.nodes[i]
}

// InsertBefore splices newNodes in immediately before anchor.
func (l *InsnList) InsertBefore(anchor *Insn, newNodes ...*Insn) {
	i := l.IndexOf(anchor)
	if i < 0 {
		return
	}
	l.nodes = spliceAt(l.nodes, i, newNodes)
}

// InsertAfter splices newNodes in immediately after anchor.
func (l *InsnList) InsertAfter(anchor *Insn, newNodes ...*Insn) {
	i := l.IndexOf(anchor)
	if i < 0 {
		return
	}
	l.nodes = spliceAt(l.nodes, i+1, newNodes)
}

// Replace swaps old for newNodes in place (len(newNodes) may differ from 1).
func (l *InsnList) Replace(old *Insn, newNodes ...*Insn) {
	i := l.IndexOf(old)
	if i < 0 {
		return
	}
	tail := append([]*Insn{}, l.nodes[i+1:]...)
	l.nodes = append(l.nodes[:i], append(append([]*Insn{}, newNodes...), tail...)...)
}

// Remove deletes n from the list.
func (l *InsnList) Remove(n *Insn) {
	i := l.IndexOf(n)
	if i < 0 {
		return
	}
	l.nodes = append(l.nodes[:i], l.nodes[i+1:]...)
}

func spliceAt(nodes []*Insn, at int, newNodes []*Insn) []*Insn {
	out := make([]*Insn, 0, len(nodes)+len(newNodes))
	out = append(out, nodes[:at]...)
	out = append(out, newNodes...)
	out = append(out, nodes[at:]...)
	return out
}

// FrameKind enumerates the StackMapTable frame kinds this façade decodes;
// named per JVMS 4.7.4.
type FrameKind int

const (
	FrameSame FrameKind = iota
	FrameSameLocals1StackItem
	FrameChop
	FrameAppend
	FrameFull
)

// VerificationKind enumerates a verification_type_info tag (JVMS 4.7.4).
type VerificationKind int

const (
	VTop VerificationKind = iota
	VInteger
	VFloat
	VDouble
	VLong
	VNull
	VUninitializedThis
	VObject
	VUninitialized
)

type VerificationType struct {
	Kind      VerificationKind
	ClassName string // populated when Kind == VObject
}

// Frame is one StackMapTable entry, attached at the instruction it precedes.
type Frame struct {
	AtInsn     *Insn
	Kind       FrameKind
	LocalsDiff []VerificationType // APPEND: appended locals; FULL: complete locals list
	ChopCount  int                // CHOP: number of trailing locals removed
}

// ExceptionHandler is one entry of a method's exception table.
type ExceptionHandler struct {
	Start, End, Handler *Insn
	CatchType           string // "" means catch-all (finally)
}

// LocalVarEntry is one row of a method's (optional) LocalVariableTable.
type LocalVarEntry struct {
	Start, End *Insn
	Name, Desc string
	Slot       int
}

// Method is one method_info entry, generalized from the teacher's `method`/
// `codeAttrib` pair (classloader/classloader.go) into a mutable tree node
// injectors rewrite directly instead of producing a second "postable" copy.
type Method struct {
	Owner          string
	Name, Desc     string
	Access         AccessFlags
	MaxStack       int
	MaxLocals      int
	Code           *InsnList
	Frames         []*Frame
	Exceptions     []ExceptionHandler
	LocalVars      []LocalVarEntry
	Synthetic      bool
	DeclaredThrows []string
}

// Field is one field_info entry.
type Field struct {
	Owner      string
	Name, Desc string
	Access     AccessFlags
	Synthetic  bool
	ConstValue interface{}
}

// Class is the mutable tree for one class file, the unit the applicator and
// transformer operate on.
type Class struct {
	Name       string
	SuperName  string
	Interfaces []string
	Access     AccessFlags
	Signature  string
	Fields     []*Field
	Methods    []*Method
	CP         *ConstantPool
	Version    int // major class-file version, e.g. 61 for Java 17
}

func (c *Class) FindMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

func (c *Class) FindField(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (c *Class) HasInterface(name string) bool {
	for _, i := range c.Interfaces {
		if i == name {
			return true
		}
	}
	return false
}

// Visitor is the sink a class tree is streamed through to produce bytes (or,
// in tests, to assert on visitation order). A real bytecode library's writer
// implements this; weave's in-memory Class tree can also walk itself through
// one, which is how the transformer round-trips a Class back into the form
// the host expects without weave owning a class-file encoder.
type Visitor interface {
	VisitClass(c *Class)
	VisitField(f *Field)
	VisitMethod(m *Method)
	VisitEnd()
}

// Accept streams c through v in the conventional class/fields/methods/end order.
func (c *Class) Accept(v Visitor) {
	v.VisitClass(c)
	for _, f := range c.Fields {
		v.VisitField(f)
	}
	for _, m := range c.Methods {
		v.VisitMethod(m)
	}
	v.VisitEnd()
}
