/*
 * weave - a class-file mixin engine
 *
 * Package injectionpoint implements the injection point resolvers: stateless
 * strategies that scan a method body for the instruction nodes an injector
 * should attach to. Grounded on the teacher's forward-scan style in
 * classloader/classloader.go (single pass over a code array, accumulating
 * matches as it goes) and on weave's own selector package for the
 * owner/name/desc matching a resolver needs.
 */
package injectionpoint

import (
	"weave/bytecode"
	"weave/mixerr"
	"weave/opcodes"
	"weave/selector"
	"weave/trace"
)

// Shift enumerates the outer parse's requested offset applied to a
// resolver's raw results.
type Shift int

const (
	ShiftNone Shift = iota
	ShiftBefore
	ShiftAfter
	ShiftBy
)

// Data is the structured construction input every resolver receives,
// mirroring a parsed @At sub-annotation.
type Data struct {
	Target  *selector.Selector
	Ordinal int // -1 = all matches
	Opcode  opcodes.Opcode
	HasOpcode bool
	Args    map[string]string
	ID      string
	Slice   string
	Shift   Shift
	ShiftBy int

	// CountInjections mirrors engine.Options.DebugCountInjections: when
	// false (the default), an under/over-matched quantifier only warns;
	// when true it escalates to a fatal error. Set by the caller that
	// resolves a Data value from the active engine context.
	CountInjections bool
}

// Resolver locates instruction nodes within one method body for one @At
// shortcut. Resolvers carry no per-call state, so a single value is reused
// across every method a mixin's injection points are resolved against.
type Resolver interface {
	AtCode() string
	Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error)
}

// Resolve runs r against method, then applies the shift requested by data.
func Resolve(r Resolver, tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	nodes, err := r.Find(tree, method, data)
	if err != nil {
		return nil, err
	}
	return applyShift(method, nodes, data), nil
}

func applyShift(method *bytecode.Method, nodes []*bytecode.Insn, data Data) []*bytecode.Insn {
	var offset int
	switch data.Shift {
	case ShiftBefore:
		offset = -1
	case ShiftAfter:
		offset = 1
	case ShiftBy:
		offset = data.ShiftBy
	default:
		return nodes
	}
	out := make([]*bytecode.Insn, 0, len(nodes))
	for _, n := range nodes {
		i := method.Code.IndexOf(n)
		if i < 0 {
			continue
		}
		if shifted := method.Code.At(i + offset); shifted != nil {
			out = append(out, shifted)
		}
	}
	return out
}

func returnDescOf(methodDesc string) string {
	i := len(methodDesc) - 1
	for i >= 0 && methodDesc[i] != ')' {
		i--
	}
	if i < 0 {
		return "V"
	}
	return methodDesc[i+1:]
}

// boundByQuantifier enforces a selector's {min,max} match-count bound
// against the total number of raw matches found, independent of which
// ones were ultimately selected by ordinal. Per spec.md §7 an under/over
// matched quantifier is a warning by default; data.CountInjections
// (threaded from engine.Options.DebugCountInjections) escalates it to the
// fatal error instead.
func boundByQuantifier(data Data, total int, mixin, target, member string) error {
	if data.Target == nil {
		return nil
	}
	if data.Target.Quantifier.Allows(total) {
		return nil
	}
	err := mixerr.NewInjectionNotMatched(mixin, target, member, data.Target.Quantifier.Min, total)
	if data.CountInjections {
		return err
	}
	trace.Warning("injectionpoint: " + err.Error())
	return nil
}

// selectByOrdinal picks from matches per data.Ordinal: -1 collects all,
// otherwise only the single match at that position (0-based) is kept.
func selectByOrdinal(matches []*bytecode.Insn, ordinal int) []*bytecode.Insn {
	if ordinal < 0 {
		return matches
	}
	if ordinal >= len(matches) {
		return nil
	}
	return []*bytecode.Insn{matches[ordinal]}
}

// --- HEAD ---

// HeadResolver emits the method's first instruction. The façade's
// instruction list carries no inline label/frame/linenumber pseudo-nodes
// to skip over (those live in Method.Frames and Insn.LineNumber instead),
// so "first real instruction" is simply the first node.
type HeadResolver struct{}

func (HeadResolver) AtCode() string { return "HEAD" }

func (HeadResolver) Find(_ *bytecode.Class, method *bytecode.Method, _ Data) ([]*bytecode.Insn, error) {
	nodes := method.Code.Nodes()
	if len(nodes) == 0 {
		return nil, nil
	}
	return []*bytecode.Insn{nodes[0]}, nil
}

// --- RETURN / TAIL ---

// ReturnResolver emits every return opcode matching the method's computed
// return type.
type ReturnResolver struct{}

func (ReturnResolver) AtCode() string { return "RETURN" }

func (ReturnResolver) Find(_ *bytecode.Class, method *bytecode.Method, _ Data) ([]*bytecode.Insn, error) {
	want := opcodes.ReturnOpcodeFor(returnDescOf(method.Desc))
	var out []*bytecode.Insn
	for _, insn := range method.Code.Nodes() {
		if insn.Op == want {
			out = append(out, insn)
		}
	}
	return out, nil
}

// TailResolver emits the last return instruction matching the method's
// computed return type; it is an error for none to exist.
type TailResolver struct{}

func (TailResolver) AtCode() string { return "TAIL" }

func (TailResolver) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	rets, _ := ReturnResolver{}.Find(tree, method, data)
	if len(rets) == 0 {
		return nil, mixerr.NewInvalidInjection("", tree.Name, method.Name+method.Desc, "TAIL found no matching return instruction")
	}
	return []*bytecode.Insn{rets[len(rets)-1]}, nil
}

// --- INVOKE / INVOKE_STRING ---

// InvokeResolver matches method-invocation instructions whose resolved
// (owner, name, desc) satisfies the target selector.
type InvokeResolver struct{}

func (InvokeResolver) AtCode() string { return "INVOKE" }

func (InvokeResolver) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	var matches []*bytecode.Insn
	for _, insn := range method.Code.Nodes() {
		if !opcodes.IsInvoke(insn.Op) {
			continue
		}
		ref, ok := tree.CP.Methods[insn.CPIndex]
		if !ok {
			continue
		}
		if data.Target != nil && data.Target.Matches(ref.Owner, ref.Name, ref.Desc) == selector.NoMatch {
			continue
		}
		matches = append(matches, insn)
	}
	if err := boundByQuantifier(data, len(matches), "", tree.Name, method.Name+method.Desc); err != nil {
		return nil, err
	}
	return selectByOrdinal(matches, data.Ordinal), nil
}

// InvokeStringResolver is InvokeResolver additionally requiring the
// instruction immediately preceding the call to be an ldc of a string
// constant whose text equals data.Args["ldc"].
type InvokeStringResolver struct{}

func (InvokeStringResolver) AtCode() string { return "INVOKE_STRING" }

func (InvokeStringResolver) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	want := data.Args["ldc"]
	nodes := method.Code.Nodes()
	var matches []*bytecode.Insn
	for i, insn := range nodes {
		if !opcodes.IsInvoke(insn.Op) {
			continue
		}
		ref, ok := tree.CP.Methods[insn.CPIndex]
		if !ok {
			continue
		}
		if data.Target != nil && data.Target.Matches(ref.Owner, ref.Name, ref.Desc) == selector.NoMatch {
			continue
		}
		if i == 0 {
			continue
		}
		prev := nodes[i-1]
		if prev.Op != opcodes.LDC && prev.Op != opcodes.LDC_W {
			continue
		}
		text, ok := tree.CP.Strings[prev.CPIndex]
		if !ok || text != want {
			continue
		}
		matches = append(matches, insn)
	}
	if err := boundByQuantifier(data, len(matches), "", tree.Name, method.Name+method.Desc); err != nil {
		return nil, err
	}
	return selectByOrdinal(matches, data.Ordinal), nil
}

// --- NEW ---

// NewResolver matches `new <Type>` instructions; the selector's descriptor
// (if present) is interpreted as the internal type name to match, falling
// back to its owner field when descriptor is empty.
type NewResolver struct{}

func (NewResolver) AtCode() string { return "NEW" }

func (NewResolver) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	want := wantedNewType(data)
	var matches []*bytecode.Insn
	for _, insn := range method.Code.Nodes() {
		if insn.Op != opcodes.NEW {
			continue
		}
		name, ok := tree.CP.Classes[insn.CPIndex]
		if !ok {
			continue
		}
		if want != "" && name != want {
			continue
		}
		matches = append(matches, insn)
	}
	if err := boundByQuantifier(data, len(matches), "", tree.Name, method.Name+method.Desc); err != nil {
		return nil, err
	}
	return selectByOrdinal(matches, data.Ordinal), nil
}

func wantedNewType(data Data) string {
	if data.Target == nil {
		return ""
	}
	if data.Target.Desc != "" {
		return stripObjectDesc(data.Target.Desc)
	}
	return data.Target.Owner
}

func stripObjectDesc(desc string) string {
	if len(desc) >= 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// --- FIELD ---

// FieldResolver matches getfield/getstatic/putfield/putstatic against the
// target selector, with an optional exact opcode filter.
type FieldResolver struct{}

func (FieldResolver) AtCode() string { return "FIELD" }

func (FieldResolver) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	var matches []*bytecode.Insn
	for _, insn := range method.Code.Nodes() {
		if !opcodes.IsFieldAccess(insn.Op) {
			continue
		}
		if data.HasOpcode && insn.Op != data.Opcode {
			continue
		}
		ref, ok := tree.CP.Fields[insn.CPIndex]
		if !ok {
			continue
		}
		if data.Target != nil && data.Target.Matches(ref.Owner, ref.Name, ref.Desc) == selector.NoMatch {
			continue
		}
		matches = append(matches, insn)
	}
	if err := boundByQuantifier(data, len(matches), "", tree.Name, method.Name+method.Desc); err != nil {
		return nil, err
	}
	return selectByOrdinal(matches, data.Ordinal), nil
}

// --- JUMP ---

// JumpResolver matches conditional jump instructions, optionally filtered
// to a single opcode.
type JumpResolver struct{}

func (JumpResolver) AtCode() string { return "JUMP" }

func (JumpResolver) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	var matches []*bytecode.Insn
	for _, insn := range method.Code.Nodes() {
		if !opcodes.IsConditionalJump(insn.Op) {
			continue
		}
		if data.HasOpcode && insn.Op != data.Opcode {
			continue
		}
		matches = append(matches, insn)
	}
	if err := boundByQuantifier(data, len(matches), "", tree.Name, method.Name+method.Desc); err != nil {
		return nil, err
	}
	return selectByOrdinal(matches, data.Ordinal), nil
}

// --- Composites ---

// Union returns the order-preserving set union of every component
// resolver's results.
type Union struct {
	Of []Resolver
}

func (Union) AtCode() string { return "UNION" }

func (u Union) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	var out []*bytecode.Insn
	seen := map[*bytecode.Insn]bool{}
	for _, r := range u.Of {
		nodes, err := r.Find(tree, method, data)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// Intersection returns only the nodes present in every component resolver's
// results, in the order the first component produced them.
type Intersection struct {
	Of []Resolver
}

func (Intersection) AtCode() string { return "INTERSECTION" }

func (in Intersection) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	if len(in.Of) == 0 {
		return nil, nil
	}
	first, err := in.Of[0].Find(tree, method, data)
	if err != nil {
		return nil, err
	}
	rest := make([][]*bytecode.Insn, len(in.Of)-1)
	for i, r := range in.Of[1:] {
		nodes, err := r.Find(tree, method, data)
		if err != nil {
			return nil, err
		}
		rest[i] = nodes
	}
	var out []*bytecode.Insn
	for _, n := range first {
		inAll := true
		for _, set := range rest {
			if !containsInsn(set, n) {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, n)
		}
	}
	return out, nil
}

func containsInsn(set []*bytecode.Insn, n *bytecode.Insn) bool {
	for _, s := range set {
		if s == n {
			return true
		}
	}
	return false
}

// ShiftResolver wraps inner, replacing every result with the node n
// positions away in the instruction list.
type ShiftResolver struct {
	Inner Resolver
	N     int
}

func (s ShiftResolver) AtCode() string { return s.Inner.AtCode() }

func (s ShiftResolver) Find(tree *bytecode.Class, method *bytecode.Method, data Data) ([]*bytecode.Insn, error) {
	nodes, err := s.Inner.Find(tree, method, data)
	if err != nil {
		return nil, err
	}
	out := make([]*bytecode.Insn, 0, len(nodes))
	for _, n := range nodes {
		i := method.Code.IndexOf(n)
		if i < 0 {
			continue
		}
		if shifted := method.Code.At(i + s.N); shifted != nil {
			out = append(out, shifted)
		}
	}
	return out, nil
}

// ByCode looks up the built-in resolver for a given @AtCode shortcut.
func ByCode(code string) Resolver {
	switch code {
	case "HEAD":
		return HeadResolver{}
	case "RETURN":
		return ReturnResolver{}
	case "TAIL":
		return TailResolver{}
	case "INVOKE":
		return InvokeResolver{}
	case "INVOKE_STRING":
		return InvokeStringResolver{}
	case "NEW":
		return NewResolver{}
	case "FIELD":
		return FieldResolver{}
	case "JUMP":
		return JumpResolver{}
	default:
		return nil
	}
}
