/*
 * weave - a class-file mixin engine
 *
 * Package apply implements the mixin applicator: merges one mixin's
 * interfaces, fields, initializers, methods and injections into one
 * target class. Grounded on classloader/classloader.go's forward,
 * staged-construction style (parseClassfile moves through a fixed
 * sequence of sub-steps, returning on the first error) generalized from
 * "build a ClassMeta from bytes" into "fold a mixin's declarations into a
 * target tree". The per-member decoration inputs (MethodSpec/FieldSpec)
 * stand in for what an annotation-processing step would have produced;
 * weave never parses raw annotations itself.
 */
package apply

import (
	"fmt"

	"weave/bytecode"
	"weave/classmeta"
	"weave/engine"
	"weave/injectionpoint"
	"weave/injectors"
	"weave/locals"
	"weave/mixerr"
	"weave/opcodes"
	"weave/selector"
	"weave/target"
	"weave/trace"
)

// MethodKind classifies how a mixin method participates in merging.
type MethodKind int

const (
	MethodRegular MethodKind = iota
	MethodOverwrite
	MethodIntrinsic
	MethodUnique
	MethodAccessor
	MethodInvoker
	MethodInjector
)

// AccessorKind distinguishes a generated accessor's shape.
type AccessorKind int

const (
	AccessorGet AccessorKind = iota
	AccessorSet
)

// InjectionCategory mirrors the five injector families C8 implements.
type InjectionCategory int

const (
	CategoryInject InjectionCategory = iota
	CategoryModifyArg
	CategoryModifyArgs
	CategoryRedirect
	CategoryModifyVariable
)

// InjectionPointSpec pairs a resolved strategy with its construction data;
// one InjectionSpec may carry several (a method can have multiple @At's).
type InjectionPointSpec struct {
	Resolver injectionpoint.Resolver
	Data     injectionpoint.Data
}

// InjectionSpec is the resolved, already-constructed injector plus the
// selectors naming which target methods it attaches to. Handler holds one
// of the concrete *injectors.XxxInjector types; runInjector dispatches on
// its dynamic type since each injector's Inject signature differs by the
// collaborators it needs (a local-capturing injector takes a
// *locals.Reconstructor, the others don't).
type InjectionSpec struct {
	Category InjectionCategory
	Targets  []*selector.Selector
	Points   []InjectionPointSpec
	Handler  interface{}
}

// FieldSpec is one mixin field's merge decoration.
type FieldSpec struct {
	Field   *bytecode.Field
	Shadow  bool
	Final   bool // @Final on a @Shadow field: the mixin's own writes are forbidden
	Mutable bool // @Mutable: lifts the @Final write restriction for this mixin
}

// MethodSpec is one mixin method's merge decoration: the output an
// annotation-processing step (out of scope here) would have produced.
type MethodSpec struct {
	Method   MixinMethod
	Kind     MethodKind
	Final    bool // @Final: forbids later replacement
	Displace bool // @Intrinsic(displace=true)

	AccessorKind  AccessorKind
	AccessorField string // field name the accessor reads/writes

	InvokerTarget  string // method name the invoker calls
	InvokerDesc    string
	InvokerStatic  bool

	Injection *InjectionSpec
}

// MixinMethod is the mixin-owned method body to merge; it is not itself a
// *bytecode.Method of the target, since Owner differs until merge time.
type MixinMethod = *bytecode.Method

// MixinBody is one mixin's contribution to a target: its own class tree
// plus the resolved decorations for each field/method, the shape C11
// assembles once per (mixin, target) pair before calling Apply.
type MixinBody struct {
	Tree       *bytecode.Class
	Meta       *classmeta.MixinMeta
	Interfaces []string // soft-implements interfaces to merge into the target
	Fields     []FieldSpec
	Methods    []MethodSpec
	Strict     bool // strict-mode governs unique/merge-conflict severity
}

// OwnerInfo records which mixin (if any) currently owns a regular-merge
// slot in a target, so a later mixin applying to the same target can
// compare priorities per I2. Absent entries mean "the target's own
// original method", tracked at PriorityBaseline.
type OwnerInfo struct {
	Mixin    string
	Priority int
	Final    bool
}

// PriorityBaseline is the implicit priority assigned to a target's own
// pre-mixin method body: any mixin with a non-negative priority outranks
// it on first contact, consistent with I2 read as applying transitively
// to the pre-mixin baseline (see DESIGN.md).
const PriorityBaseline = -1

// Owners is the per-target side table threaded across every mixin applied
// to one target class, keyed by name+desc.
type Owners map[string]OwnerInfo

// InjectionResult records one injection's outcome for Applicator audits.
type InjectionResult struct {
	Mixin, Target, Member string
	Category               InjectionCategory
	Matched                int
}

// Report accumulates everything one Apply call did, consumed by C12's audit.
type Report struct {
	Injections []InjectionResult
}

// Applicator applies mixins to targets. One instance is reused across an
// entire transform session; its Reconstructor caches generated LVTs per
// method the way locals.Reconstructor is documented to.
type Applicator struct {
	Cache *classmeta.Cache
	Recon *locals.Reconstructor
}

func New(cache *classmeta.Cache) *Applicator {
	return &Applicator{Cache: cache, Recon: locals.NewReconstructor(cache)}
}

// Apply performs the class-target merge: interfaces, fields, initializers,
// methods, then injections, in that order (step numbers below match the
// applicator's documented sequence).
func (a *Applicator) Apply(tree *bytecode.Class, body *MixinBody, owners Owners) (*Report, error) {
	report := &Report{}

	a.mergeInterfaces(tree, body)
	if err := a.mergeFields(tree, body); err != nil {
		return report, err
	}
	if err := a.checkFinalShadowWrites(tree, body); err != nil {
		return report, err
	}
	a.spliceInitializers(tree, body)
	if err := a.mergeMethods(tree, body, owners); err != nil {
		return report, err
	}
	if err := a.applyInjections(tree, body, report); err != nil {
		return report, err
	}
	return report, nil
}

// ApplyInterface is the interface-target variant: shadow fields are logged
// and dropped, initializers and injections never run, and any injector
// found on a method targeting an interface mixin is a hard error.
func (a *Applicator) ApplyInterface(tree *bytecode.Class, body *MixinBody) error {
	a.mergeInterfaces(tree, body)
	for _, fs := range body.Fields {
		if fs.Shadow {
			trace.Warning("apply: @Shadow field " + fs.Field.Name + " dropped on interface target " + tree.Name)
		}
	}
	owners := Owners{}
	for _, ms := range body.Methods {
		if ms.Kind == MethodInjector {
			return mixerr.NewConstraintViolation(body.Meta.Name, tree.Name,
				"injectors are not supported on interface-target mixins: "+memberKey(ms.Method))
		}
	}
	return a.mergeMethods(tree, body, owners)
}

// --- step 1: interfaces ---

func (a *Applicator) mergeInterfaces(tree *bytecode.Class, body *MixinBody) {
	meta := a.Cache.FromClassTree(tree)
	for _, iface := range body.Interfaces {
		if !tree.HasInterface(iface) {
			tree.Interfaces = append(tree.Interfaces, iface)
		}
		meta.AddInterface(iface)
	}
}

// --- step 2: fields ---

func (a *Applicator) mergeFields(tree *bytecode.Class, body *MixinBody) error {
	meta := a.Cache.FromClassTree(tree)
	for _, fs := range body.Fields {
		if fs.Shadow {
			mm, ok := a.Cache.FindMethodInHierarchy(meta, fs.Field.Name, fs.Field.Desc,
				classmeta.TraversalAll, classmeta.MemberFlags{IncludePrivate: true, IncludeStatic: true})
			if !ok {
				if !body.Meta.Pseudo {
					return mixerr.NewShadowUnresolved(body.Meta.Name, tree.Name, fs.Field.Name)
				}
				trace.Warning("apply: pseudo mixin " + body.Meta.Name + " shadows unresolved field " + fs.Field.Name)
				continue
			}
			if fs.Final {
				mm.DecoratedFinal = true
			}
			if fs.Mutable {
				mm.DecoratedMutable = true
			}
			continue // shadows never add a member, only validate one exists
		}
		if tree.FindField(fs.Field.Name) != nil {
			trace.Warning("apply: field collision on " + fs.Field.Name + " merging " + body.Meta.Name + " into " + tree.Name)
			continue
		}
		tree.Fields = append(tree.Fields, fs.Field)
		meta.Members[fs.Field.Name+fs.Field.Desc] = &classmeta.MemberMeta{
			Name: fs.Field.Name, Desc: fs.Field.Desc, Access: fs.Field.Access,
			IsField: true, DeclaringClass: tree.Name, InjectedByMixin: body.Meta.Name,
		}
	}
	return nil
}

// checkFinalShadowWrites scans every mixin method body for a write
// (PUTFIELD/PUTSTATIC) to a field the mixin (or an earlier one applied to
// the same target) shadowed as @Final without @Mutable. Runs right after
// mergeFields so DecoratedFinal/DecoratedMutable are already current for
// this application.
func (a *Applicator) checkFinalShadowWrites(tree *bytecode.Class, body *MixinBody) error {
	meta := a.Cache.FromClassTree(tree)
	for _, ms := range body.Methods {
		if ms.Method == nil || ms.Method.Code == nil {
			continue
		}
		for i, n := range ms.Method.Code.Nodes() {
			if n.Op != opcodes.PUTFIELD && n.Op != opcodes.PUTSTATIC {
				continue
			}
			ref, ok := tree.CP.Fields[n.CPIndex]
			if !ok || ref.Owner != tree.Name {
				continue
			}
			mm, ok := meta.FindMember(ref.Name, ref.Desc)
			if !ok || !mm.DecoratedFinal || mm.DecoratedMutable {
				continue
			}
			return mixerr.NewFinalFieldWrite(body.Meta.Name, tree.Name, ref.Name, i)
		}
	}
	return nil
}

// --- step 3: initializers ---

// spliceInitializers extracts the mixin's own <init> body instructions
// (everything after its super/this delegate call) and splices a clone into
// every target constructor, anchored per the engine's InitialiserMode option.
func (a *Applicator) spliceInitializers(tree *bytecode.Class, body *MixinBody) {
	mixinInit := body.Tree.FindMethod("<init>", "()V")
	if mixinInit == nil {
		return
	}
	initBody := extractInitBody(mixinInit)
	if len(initBody) == 0 {
		return
	}
	for _, ctor := range tree.Methods {
		if ctor.Name != "<init>" {
			continue
		}
		anchor := spliceAnchor(tree, ctor, a.Cache.Opts().InitialiserMode)
		if anchor == nil {
			trace.Warning("apply: no splice anchor found in " + tree.Name + "." + ctor.Desc + ", skipping initializer merge")
			continue
		}
		ctor.Code.InsertAfter(anchor, cloneInsns(initBody)...)
		if ctor.MaxStack < mixinInit.MaxStack {
			ctor.MaxStack = mixinInit.MaxStack
		}
		if ctor.MaxLocals < mixinInit.MaxLocals {
			ctor.MaxLocals = mixinInit.MaxLocals
		}
	}
}

// extractInitBody returns the instructions after the first invokespecial
// <init> (the super/this delegate call) up to but excluding the trailing
// return, the mixin author's field-initializer statements. Assumes
// initializer blocks are straight-line (no internal branches), true for
// field initializers in practice.
func extractInitBody(mixinInit *bytecode.Method) []*bytecode.Insn {
	nodes := mixinInit.Code.Nodes()
	start := -1
	for i, n := range nodes {
		if n.Op == opcodes.INVOKESPECIAL {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	end := len(nodes)
	for end > start && opcodes.IsReturn(nodes[end-1].Op) {
		end--
	}
	return nodes[start:end]
}

// spliceAnchor finds where a target constructor's initializer splice
// should land: the last PUTFIELD to a target-declared field (the "end of
// existing initializer block" heuristic, default mode), falling back to
// the super/this delegate call itself (safe mode) when no such field
// write exists, or always when mode is InitModeSafe.
func spliceAnchor(tree *bytecode.Class, ctor *bytecode.Method, mode engine.InitialiserInjectionMode) *bytecode.Insn {
	var lastPutfield *bytecode.Insn
	if mode != engine.InitModeSafe {
		for _, n := range ctor.Code.Nodes() {
			if n.Op == opcodes.PUTFIELD {
				if ref, ok := tree.CP.Fields[n.CPIndex]; ok && ref.Owner == tree.Name {
					lastPutfield = n
				}
			}
		}
	}
	if lastPutfield != nil {
		return lastPutfield
	}
	m := target.New(tree, ctor)
	return m.FindSuperInit(tree.CP)
}

func cloneInsns(src []*bytecode.Insn) []*bytecode.Insn {
	out := make([]*bytecode.Insn, len(src))
	for i, n := range src {
		cp := *n
		out[i] = &cp
	}
	return out
}

// --- step 4: methods ---

func (a *Applicator) mergeMethods(tree *bytecode.Class, body *MixinBody, owners Owners) error {
	for _, ms := range body.Methods {
		if ms.Method.Name == "<init>" || ms.Method.Name == "<clinit>" {
			continue
		}
		var err error
		switch ms.Kind {
		case MethodAccessor:
			err = a.genAccessor(tree, body, ms)
		case MethodInvoker:
			err = a.genInvoker(tree, body, ms)
		case MethodInjector:
			// the handler body still needs to exist on the target class so
			// the instructions applyInjections generates can invoke it;
			// the rewriting itself happens later, once regular merging settles.
			if tree.FindMethod(ms.Method.Name, ms.Method.Desc) == nil {
				tree.Methods = append(tree.Methods, ms.Method)
			}
		case MethodOverwrite:
			overwrite(tree, ms.Method)
		case MethodIntrinsic:
			err = a.mergeIntrinsic(tree, body, ms)
		case MethodUnique:
			err = a.mergeUnique(tree, body, ms)
		default:
			err = a.mergeRegular(tree, body, ms, owners)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func memberKey(m *bytecode.Method) string { return m.Name + m.Desc }

func overwrite(tree *bytecode.Class, m *bytecode.Method) {
	if existing := tree.FindMethod(m.Name, m.Desc); existing != nil {
		replaceMethodBody(existing, m)
		return
	}
	tree.Methods = append(tree.Methods, m)
}

// replaceMethodBody copies m's body into existing in place, so existing
// *bytecode.Method pointers held elsewhere (e.g. an injector's resolved
// target) keep seeing the replacement.
func replaceMethodBody(existing, m *bytecode.Method) {
	existing.Code = m.Code
	existing.MaxStack = m.MaxStack
	existing.MaxLocals = m.MaxLocals
	existing.Access = m.Access
	existing.Frames = m.Frames
	existing.Exceptions = m.Exceptions
	existing.LocalVars = m.LocalVars
}

func (a *Applicator) mergeIntrinsic(tree *bytecode.Class, body *MixinBody, ms MethodSpec) error {
	existing := tree.FindMethod(ms.Method.Name, ms.Method.Desc)
	if existing == nil {
		tree.Methods = append(tree.Methods, ms.Method)
		return nil
	}
	if !ms.Displace {
		trace.Info("apply: intrinsic " + memberKey(ms.Method) + " already present in " + tree.Name + ", skipping")
		return nil
	}
	origName := existing.Name + "$original"
	rewriteInternalCalls(tree.CP, ms.Method, tree.Name, existing.Name, existing.Desc, origName)
	existing.Name = origName
	tree.Methods = append(tree.Methods, ms.Method)
	return nil
}

// rewriteInternalCalls retargets any invoke of (owner,name,desc) within m's
// body to newName instead, interning a fresh CP method-ref entry so other
// call sites referencing the original name are unaffected.
func rewriteInternalCalls(cp *bytecode.ConstantPool, m *bytecode.Method, owner, name, desc, newName string) {
	for _, n := range m.Code.Nodes() {
		if !opcodes.IsInvoke(n.Op) {
			continue
		}
		ref, ok := cp.Methods[n.CPIndex]
		if !ok || ref.Owner != owner || ref.Name != name || ref.Desc != desc {
			continue
		}
		n.CPIndex = internMethod(cp, owner, newName, desc)
	}
}

func (a *Applicator) mergeUnique(tree *bytecode.Class, body *MixinBody, ms MethodSpec) error {
	existing := tree.FindMethod(ms.Method.Name, ms.Method.Desc)
	if existing != nil {
		if body.Strict {
			return mixerr.NewMergeConflict(body.Meta.Name, tree.Name, memberKey(ms.Method))
		}
		trace.Warning("apply: @Unique " + memberKey(ms.Method) + " conflicts with an existing member in " + tree.Name)
		return nil
	}
	tree.Methods = append(tree.Methods, ms.Method)
	meta := a.Cache.FromClassTree(tree)
	if mm, ok := meta.FindMember(ms.Method.Name, ms.Method.Desc); ok {
		mm.Unique = true
	}
	return nil
}

func (a *Applicator) mergeRegular(tree *bytecode.Class, body *MixinBody, ms MethodSpec, owners Owners) error {
	key := memberKey(ms.Method)
	existing := tree.FindMethod(ms.Method.Name, ms.Method.Desc)
	if existing == nil {
		tree.Methods = append(tree.Methods, ms.Method)
		owners[key] = OwnerInfo{Mixin: body.Meta.Name, Priority: body.Meta.Priority, Final: ms.Final}
		return nil
	}
	cur, tracked := owners[key]
	curPriority := PriorityBaseline
	if tracked {
		curPriority = cur.Priority
		if cur.Final {
			return mixerr.NewConstraintViolation(body.Meta.Name, tree.Name, "@Final method cannot be replaced: "+key)
		}
	}
	if body.Meta.Priority < curPriority {
		trace.Info("apply: " + key + " in " + tree.Name + " kept at higher priority, skipping " + body.Meta.Name)
		return nil
	}
	replaceMethodBody(existing, ms.Method)
	owners[key] = OwnerInfo{Mixin: body.Meta.Name, Priority: body.Meta.Priority, Final: ms.Final}
	return nil
}

// genAccessor synthesizes a getter or setter for AccessorField on tree,
// named per ms.Method (the mixin author's @Accessor-annotated method acts
// only as the signature/name source and is elided from merging).
func (a *Applicator) genAccessor(tree *bytecode.Class, body *MixinBody, ms MethodSpec) error {
	f := tree.FindField(ms.AccessorField)
	if f == nil {
		return mixerr.NewConstraintViolation(body.Meta.Name, tree.Name, "@Accessor field not found: "+ms.AccessorField)
	}
	cp := tree.CP
	var code *bytecode.InsnList
	maxStack := 1
	if ms.AccessorKind == AccessorGet {
		if f.Access.IsStatic() {
			code = bytecode.NewInsnList(
				&bytecode.Insn{Op: opcodes.GETSTATIC, CPIndex: internField(cp, tree.Name, f.Name, f.Desc)},
				returnFor(f.Desc),
			)
		} else {
			code = bytecode.NewInsnList(
				&bytecode.Insn{Op: opcodes.ALOAD_0},
				&bytecode.Insn{Op: opcodes.GETFIELD, CPIndex: internField(cp, tree.Name, f.Name, f.Desc)},
				returnFor(f.Desc),
			)
		}
	} else {
		maxStack = 2
		if f.Access.IsStatic() {
			code = bytecode.NewInsnList(
				loadForStatic(f.Desc, 0),
				&bytecode.Insn{Op: opcodes.PUTSTATIC, CPIndex: internField(cp, tree.Name, f.Name, f.Desc)},
				&bytecode.Insn{Op: opcodes.RETURN},
			)
		} else {
			code = bytecode.NewInsnList(
				&bytecode.Insn{Op: opcodes.ALOAD_0},
				loadForStatic(f.Desc, 1),
				&bytecode.Insn{Op: opcodes.PUTFIELD, CPIndex: internField(cp, tree.Name, f.Name, f.Desc)},
				&bytecode.Insn{Op: opcodes.RETURN},
			)
		}
	}
	generated := &bytecode.Method{
		Owner: tree.Name, Name: ms.Method.Name, Desc: ms.Method.Desc,
		Access: bytecode.AccPublic | bytecode.AccSynthetic,
		MaxStack: maxStack, MaxLocals: 2, Code: code,
	}
	tree.Methods = append(tree.Methods, generated)
	return nil
}

// genInvoker synthesizes a passthrough call to ms.InvokerTarget, static or
// virtual depending on InvokerStatic.
func (a *Applicator) genInvoker(tree *bytecode.Class, body *MixinBody, ms MethodSpec) error {
	cp := tree.CP
	argTypes := locals.ParseArgTypes(ms.Method.Desc)
	var nodes []*bytecode.Insn
	slot := 0
	if !ms.InvokerStatic {
		nodes = append(nodes, &bytecode.Insn{Op: opcodes.ALOAD_0})
		slot = 1
	}
	for _, t := range argTypes {
		nodes = append(nodes, loadForStatic(t, slot))
		slot++
		if locals.IsWideType(t) {
			slot++
		}
	}
	invokeOp := opcodes.INVOKEVIRTUAL
	if ms.InvokerStatic {
		invokeOp = opcodes.INVOKESTATIC
	}
	nodes = append(nodes, &bytecode.Insn{Op: invokeOp, CPIndex: internMethod(cp, tree.Name, ms.InvokerTarget, ms.InvokerDesc)})
	nodes = append(nodes, returnFor(returnDescOf(ms.InvokerDesc)))
	generated := &bytecode.Method{
		Owner: tree.Name, Name: ms.Method.Name, Desc: ms.Method.Desc,
		Access: bytecode.AccPublic | bytecode.AccSynthetic,
		MaxStack: len(argTypes) + 1, MaxLocals: slot, Code: bytecode.NewInsnList(nodes...),
	}
	tree.Methods = append(tree.Methods, generated)
	return nil
}

func returnDescOf(desc string) string {
	for i := len(desc) - 1; i >= 0; i-- {
		if desc[i] == ')' {
			return desc[i+1:]
		}
	}
	return "V"
}

func returnFor(desc string) *bytecode.Insn {
	return &bytecode.Insn{Op: opcodes.ReturnOpcodeFor(desc)}
}

func loadForStatic(desc string, slot int) *bytecode.Insn {
	op := opcodes.ALOAD
	switch desc[0] {
	case 'I', 'Z', 'B', 'C', 'S':
		op = opcodes.ILOAD
	case 'J':
		op = opcodes.LLOAD
	case 'F':
		op = opcodes.FLOAD
	case 'D':
		op = opcodes.DLOAD
	}
	return &bytecode.Insn{Op: op, IntOperand: int32(slot)}
}

func internField(cp *bytecode.ConstantPool, owner, name, desc string) int {
	for i, f := range cp.Fields {
		if f.Owner == owner && f.Name == name && f.Desc == desc {
			return i
		}
	}
	i := nextCPIndex(cp)
	cp.Fields[i] = bytecode.FieldRef{Owner: owner, Name: name, Desc: desc}
	return i
}

func internMethod(cp *bytecode.ConstantPool, owner, name, desc string) int {
	for i, m := range cp.Methods {
		if m.Owner == owner && m.Name == name && m.Desc == desc {
			return i
		}
	}
	i := nextCPIndex(cp)
	cp.Methods[i] = bytecode.MethodRef{Owner: owner, Name: name, Desc: desc}
	return i
}

func nextCPIndex(cp *bytecode.ConstantPool) int {
	max := 0
	for i := range cp.Methods {
		if i > max {
			max = i
		}
	}
	for i := range cp.Fields {
		if i > max {
			max = i
		}
	}
	for i := range cp.Classes {
		if i > max {
			max = i
		}
	}
	for i := range cp.Strings {
		if i > max {
			max = i
		}
	}
	return max + 1
}

// CloneBody makes an independent copy of a mixin body template so two
// targets applying the same mixin never mutate each other's method
// bodies: merging and injection both rewrite *bytecode.Method objects in
// place (Code, MaxStack, MaxLocals), so each target needs its own copies.
func CloneBody(template *MixinBody) *MixinBody {
	clone := &MixinBody{
		Tree:       template.Tree,
		Meta:       template.Meta,
		Interfaces: append([]string{}, template.Interfaces...),
		Strict:     template.Strict,
	}
	for _, fs := range template.Fields {
		f := *fs.Field
		clone.Fields = append(clone.Fields, FieldSpec{Field: &f, Shadow: fs.Shadow, Final: fs.Final, Mutable: fs.Mutable})
	}
	for _, ms := range template.Methods {
		cp := ms
		cp.Method = cloneMethod(ms.Method)
		clone.Methods = append(clone.Methods, cp)
	}
	return clone
}

func cloneMethod(m *bytecode.Method) *bytecode.Method {
	cp := *m
	cp.Code = bytecode.NewInsnList(cloneInsns(m.Code.Nodes())...)
	cp.Frames = append([]*bytecode.Frame{}, m.Frames...)
	cp.Exceptions = append([]bytecode.ExceptionHandler{}, m.Exceptions...)
	cp.LocalVars = append([]bytecode.LocalVarEntry{}, m.LocalVars...)
	return &cp
}

// --- steps 5-6: injections ---

func (a *Applicator) applyInjections(tree *bytecode.Class, body *MixinBody, report *Report) error {
	for _, ms := range body.Methods {
		if ms.Kind != MethodInjector || ms.Injection == nil {
			continue
		}
		if err := a.applyOneInjection(tree, body, ms, report); err != nil {
			return err
		}
	}
	return nil
}

// applyOneInjection resolves spec.Targets against tree's methods and runs
// spec.Handler at each resolved point. Per spec.md §7, an under/over
// matched selector is a warning by default ("local recovery ... preferred
// whenever a failing mixin is one of many"); Opts.DebugCountInjections
// escalates it to the fatal error instead.
func (a *Applicator) applyOneInjection(tree *bytecode.Class, body *MixinBody, ms MethodSpec, report *Report) error {
	spec := ms.Injection
	strict := a.Cache.Opts().DebugCountInjections
	seen := map[*bytecode.Method]bool{}
	var methods []*bytecode.Method
	for _, sel := range spec.Targets {
		matched := 0
		for _, m := range tree.Methods {
			if sel.Matches(tree.Name, m.Name, m.Desc) == selector.NoMatch {
				continue
			}
			matched++
			if seen[m] {
				return mixerr.NewConstraintViolation(body.Meta.Name, tree.Name,
					"duplicate injection target "+memberKey(m))
			}
			seen[m] = true
			methods = append(methods, m)
		}
		if matched == 0 || !sel.Quantifier.Allows(matched) {
			err := mixerr.NewInjectionNotMatched(body.Meta.Name, tree.Name, memberKey(ms.Method), sel.Quantifier.Min, matched)
			if strict {
				return err
			}
			trace.Warning("apply: " + err.Error())
		}
	}
	for _, m := range methods {
		model := target.New(tree, m)
		for _, pt := range spec.Points {
			data := pt.Data
			data.CountInjections = strict
			if err := runInjector(spec.Handler, tree, m, model, a.Recon, pt.Resolver, data); err != nil {
				return err
			}
		}
		report.Injections = append(report.Injections, InjectionResult{
			Mixin: body.Meta.Name, Target: tree.Name, Member: memberKey(m), Category: spec.Category, Matched: len(methods),
		})
	}
	return nil
}

// runInjector dispatches to whichever concrete injector type Handler holds.
// Each injector's Inject signature differs by the collaborators it needs
// (only callback and modify-variable capture locals), so this is a type
// switch rather than a shared interface method.
func runInjector(h interface{}, tree *bytecode.Class, method *bytecode.Method, model *target.Model,
	lr *locals.Reconstructor, r injectionpoint.Resolver, data injectionpoint.Data) error {
	switch inj := h.(type) {
	case *injectors.CallbackInjector:
		return inj.Inject(tree, method, model, lr, r, data)
	case *injectors.ModifyArgInjector:
		return inj.Inject(tree, method, model, r, data)
	case *injectors.ModifyArgsInjector:
		return inj.Inject(tree, method, model, r, data)
	case *injectors.RedirectInjector:
		return inj.Inject(tree, method, model, r, data)
	case *injectors.ModifyVariableInjector:
		return inj.Inject(tree, method, model, lr, r, data)
	default:
		return fmt.Errorf("apply: unknown injector type %T", h)
	}
}
