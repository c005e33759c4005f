/*
 * weave - a class-file mixin engine
 *
 * Package injectors implements the rewrite strategies: callback (`inject`),
 * modify-arg/modify-args, redirect, and modify-variable. Each injector
 * resolves its nodes through the injectionpoint package, then mutates the
 * target method through a target.Model so cooperating injectors on the
 * same node stay coherent. Grounded on classloader/classloader.go's
 * forward-construction style (build a small instruction slice, splice it
 * in, bump max stack/locals) generalized from read-only parsing into
 * active bytecode synthesis.
 */
package injectors

import (
	"strconv"

	"weave/argbundle"
	"weave/bytecode"
	"weave/injectionpoint"
	"weave/locals"
	"weave/mixerr"
	"weave/opcodes"
	"weave/target"
	"weave/trace"
)

const (
	// CallbackInfoClass/CallbackInfoReturnableClass are the support
	// classes an inject() handler's trailing parameter is typed as,
	// matching target.go's SimpleCallbackDesc/CallbackDesc suffix.
	CallbackInfoClass           = "weave/injection/CallbackInfo"
	CallbackInfoReturnableClass = "weave/injection/CallbackInfoReturnable"
)

// LocalsPolicy selects both whether a callback injector attempts local
// capture and what happens when the computed signature doesn't match the
// handler's declared one.
type LocalsPolicy int

const (
	LocalsNoCapture LocalsPolicy = iota
	LocalsPrint
	LocalsSoftFail
	LocalsHardFail
	LocalsStubFail
)

// --- common pre-checks ---

// checkStaticMatch enforces that a handler matches its target's static
// modifier when the target is static; a static handler on an instance
// target is permitted (the handler simply doesn't receive `this`).
func checkStaticMatch(mixin, targetName string, method, handler *bytecode.Method) error {
	if method.Access.IsStatic() && !handler.Access.IsStatic() {
		return mixerr.NewConstraintViolation(mixin, targetName, "handler must be static to attach to a static target: "+method.Name+method.Desc)
	}
	return nil
}

// checkConstructorRestriction enforces that constructors only accept
// RETURN-kind injection points.
func checkConstructorRestriction(mixin, targetName string, method *bytecode.Method, r injectionpoint.Resolver) error {
	if method.Name == "<init>" && r.AtCode() != "RETURN" {
		return mixerr.NewConstraintViolation(mixin, targetName, "constructor targets only support the RETURN injection point, got "+r.AtCode())
	}
	return nil
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

func argStartSlot(method *bytecode.Method) int {
	if method.Access.IsStatic() {
		return 0
	}
	return 1
}

func widthOf(desc string) int {
	if locals.IsWideType(desc) {
		return 2
	}
	return 1
}

func loadSlot(desc string, slot int) *bytecode.Insn {
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

func storeSlot(desc string, slot int) *bytecode.Insn {
	op := opcodes.ISTORE
	switch desc[0] {
	case 'J':
		op = opcodes.LSTORE
	case 'F':
		op = opcodes.FSTORE
	case 'D':
		op = opcodes.DSTORE
	case 'L', '[':
		op = opcodes.ASTORE
	}
	return &bytecode.Insn{Op: op, IntOperand: int32(slot)}
}

func dupForReturn(desc string) *bytecode.Insn {
	if locals.IsWideType(desc) {
		return &bytecode.Insn{Op: opcodes.DUP2}
	}
	return &bytecode.Insn{Op: opcodes.DUP}
}

func boxWrapper(desc string) (wrapper, unboxMethod string, ok bool) {
	switch desc {
	case "I":
		return "java/lang/Integer", "intValue", true
	case "J":
		return "java/lang/Long", "longValue", true
	case "F":
		return "java/lang/Float", "floatValue", true
	case "D":
		return "java/lang/Double", "doubleValue", true
	case "Z":
		return "java/lang/Boolean", "booleanValue", true
	case "B":
		return "java/lang/Byte", "byteValue", true
	case "C":
		return "java/lang/Character", "charValue", true
	case "S":
		return "java/lang/Short", "shortValue", true
	default:
		return "", "", false
	}
}

// --- CP interning: each package that synthesizes instructions owns this
// small helper independently, matching how bytecode.ConstantPool is
// documented as a minimal façade with no shared mutation API of its own.

func internClass(cp *bytecode.ConstantPool, name string) int {
	for i, n := range cp.Classes {
		if n == name {
			return i
		}
	}
	i := nextIndex(cp)
	cp.Classes[i] = name
	return i
}

func internMethod(cp *bytecode.ConstantPool, owner, name, desc string) int {
	for i, ref := range cp.Methods {
		if ref.Owner == owner && ref.Name == name && ref.Desc == desc {
			return i
		}
	}
	i := nextIndex(cp)
	cp.Methods[i] = bytecode.MethodRef{Owner: owner, Name: name, Desc: desc}
	return i
}

func internString(cp *bytecode.ConstantPool, s string) int {
	for i, v := range cp.Strings {
		if v == s {
			return i
		}
	}
	i := nextIndex(cp)
	cp.Strings[i] = s
	return i
}

// nextIndex finds an index unused across every CP table, since the façade
// keeps one flat index space across classes/methods/fields/strings.
func nextIndex(cp *bytecode.ConstantPool) int {
	max := 0
	for i := range cp.Classes {
		if i > max {
			max = i
		}
	}
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
	for i := range cp.Strings {
		if i > max {
			max = i
		}
	}
	return max + 1
}

// --- Callback injector (inject) ---

type CallbackInjector struct {
	Handler     *bytecode.Method
	HandlerDesc string // computed lazily if a stub is generated; empty uses Handler.Desc
	Mixin       string
	Cancellable bool
	Locals      LocalsPolicy
	ID          string
}

// Inject resolves every node r/data select in method and installs a
// callback invocation before each.
func (inj *CallbackInjector) Inject(tree *bytecode.Class, method *bytecode.Method, model *target.Model, lr *locals.Reconstructor, r injectionpoint.Resolver, data injectionpoint.Data) error {
	if err := checkStaticMatch(inj.Mixin, tree.Name, method, inj.Handler); err != nil {
		return err
	}
	if err := checkConstructorRestriction(inj.Mixin, tree.Name, method, r); err != nil {
		return err
	}
	nodes, err := injectionpoint.Resolve(r, tree, method, data)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := inj.injectAt(tree, method, model, lr, n); err != nil {
			return err
		}
	}
	return nil
}

func (inj *CallbackInjector) injectAt(tree *bytecode.Class, method *bytecode.Method, model *target.Model, lr *locals.Reconstructor, n *bytecode.Insn) error {
	cp := tree.CP
	returnDesc := returnDescOf(method.Desc)
	argTypes := locals.ParseArgTypes(method.Desc)
	start := argStartSlot(method)
	argSlots := target.GenerateArgMap(argTypes, start)
	frameSize := start
	for _, t := range argTypes {
		frameSize += widthOf(t)
	}

	captureLocals := inj.Locals != LocalsNoCapture
	var liveTypes []string
	if captureLocals {
		table, err := lr.Reconstruct(tree, method, n, locals.DefaultSettings())
		if err != nil {
			return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "local reconstruction failed: "+err.Error())
		}
		for slot := frameSize; slot < len(table); slot++ {
			if table[slot].Occupied {
				liveTypes = append(liveTypes, table[slot].Desc)
			}
		}
	}

	expectedDesc := target.CallbackDesc(captureLocals, liveTypes, argTypes, -1)
	handler := inj.Handler
	if handler.Desc != expectedDesc {
		switch inj.Locals {
		case LocalsSoftFail:
			trace.Warning("callback signature mismatch at " + method.Name + method.Desc + ": want " + expectedDesc + ", skipping injection")
			return nil
		case LocalsPrint:
			trace.Info("expected callback signature: " + expectedDesc)
			return nil
		case LocalsStubFail:
			handler = inj.buildStub(tree, expectedDesc)
		default: // LocalsHardFail, or LocalsNoCapture with a plain mismatch
			return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc,
				"callback descriptor mismatch: want "+expectedDesc+", handler declares "+handler.Desc)
		}
	}

	var before []*bytecode.Insn
	retValSlot := -1
	valueReturning := returnDesc != "V" && n.Op == opcodes.ReturnOpcodeFor(returnDesc)
	if valueReturning {
		retValSlot = model.AllocateLocals(widthOf(returnDesc))
		before = append(before, dupForReturn(returnDesc), storeSlot(returnDesc, retValSlot))
	}

	ciSlot := model.AllocateLocals(1)
	ciClass := CallbackInfoClass
	ctorDesc := "(Ljava/lang/String;Z)V"
	if returnDesc != "V" {
		ciClass = CallbackInfoReturnableClass
		ctorDesc = "(Ljava/lang/String;ZLjava/lang/Object;)V"
	}
	before = append(before,
		&bytecode.Insn{Op: opcodes.NEW, CPIndex: internClass(cp, ciClass)},
		&bytecode.Insn{Op: opcodes.DUP},
		&bytecode.Insn{Op: opcodes.LDC, CPIndex: internString(cp, inj.callbackName(method))},
		boolConst(inj.Cancellable),
	)
	if returnDesc != "V" {
		if retValSlot >= 0 {
			before = append(before, loadSlot(returnDesc, retValSlot))
			if wrapper, _, ok := boxWrapper(returnDesc); ok {
				before = append(before, &bytecode.Insn{Op: opcodes.INVOKESTATIC, CPIndex: internMethod(cp, wrapper, "valueOf", "("+returnDesc+")L"+wrapper+";")})
			}
		} else {
			before = append(before, &bytecode.Insn{Op: opcodes.ACONST_NULL})
		}
	}
	before = append(before,
		&bytecode.Insn{Op: opcodes.INVOKESPECIAL, CPIndex: internMethod(cp, ciClass, "<init>", ctorDesc)},
		storeSlot("L", ciSlot),
	)

	if start == 1 {
		before = append(before, &bytecode.Insn{Op: opcodes.ALOAD_0})
	}
	for i, t := range argTypes {
		before = append(before, loadSlot(t, argSlots[i]))
	}
	before = append(before, loadSlot("L", ciSlot))
	for i, t := range liveTypes {
		before = append(before, loadSlot(t, frameSize+i))
	}

	handlerOp := opcodes.INVOKESPECIAL
	if method.Access.IsStatic() {
		handlerOp = opcodes.INVOKESTATIC
	}
	before = append(before, &bytecode.Insn{Op: handlerOp, CPIndex: internMethod(cp, tree.Name, handler.Name, handler.Desc)})

	if inj.Cancellable {
		before = append(before,
			loadSlot("L", ciSlot),
			&bytecode.Insn{Op: opcodes.INVOKEVIRTUAL, CPIndex: internMethod(cp, ciClass, "isCancelled", "()Z")},
			&bytecode.Insn{Op: opcodes.IFEQ, Target: n},
		)
		if returnDesc == "V" {
			before = append(before, &bytecode.Insn{Op: opcodes.RETURN})
		} else {
			before = append(before, loadSlot("L", ciSlot),
				&bytecode.Insn{Op: opcodes.INVOKEVIRTUAL, CPIndex: internMethod(cp, ciClass, "getReturnValue", "()Ljava/lang/Object;")})
			before = append(before, returnValueConversion(cp, returnDesc)...)
			before = append(before, &bytecode.Insn{Op: opcodes.ReturnOpcodeFor(returnDesc)})
		}
	}

	model.Wrap(n, before, nil)
	model.AddToStack(6 + len(liveTypes))
	model.AddToLocals(1)
	return nil
}

func returnValueConversion(cp *bytecode.ConstantPool, desc string) []*bytecode.Insn {
	if wrapper, unbox, ok := boxWrapper(desc); ok {
		return []*bytecode.Insn{
			{Op: opcodes.CHECKCAST, CPIndex: internClass(cp, wrapper)},
			{Op: opcodes.INVOKEVIRTUAL, CPIndex: internMethod(cp, wrapper, unbox, "()"+desc)},
		}
	}
	return []*bytecode.Insn{{Op: opcodes.CHECKCAST, CPIndex: internClass(cp, stripObjectDesc(desc))}}
}

func stripObjectDesc(desc string) string {
	if len(desc) >= 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}

func boolConst(b bool) *bytecode.Insn {
	if b {
		return &bytecode.Insn{Op: opcodes.ICONST_1}
	}
	return &bytecode.Insn{Op: opcodes.ICONST_0}
}

func (inj *CallbackInjector) callbackName(method *bytecode.Method) string {
	if inj.ID != "" {
		return inj.ID
	}
	return method.Name
}

// buildStub synthesizes a method with the expected descriptor that throws,
// appends it to the target class, and returns it as the handler to invoke
// instead of the mismatched one.
func (inj *CallbackInjector) buildStub(tree *bytecode.Class, desc string) *bytecode.Method {
	cp := tree.CP
	name := inj.ID
	if name == "" {
		name = inj.Handler.Name
	}
	name += "$stub"
	errClass := "java/lang/IncompatibleClassChangeError"
	code := bytecode.NewInsnList(
		&bytecode.Insn{Op: opcodes.NEW, CPIndex: internClass(cp, errClass)},
		&bytecode.Insn{Op: opcodes.DUP},
		&bytecode.Insn{Op: opcodes.INVOKESPECIAL, CPIndex: internMethod(cp, errClass, "<init>", "()V")},
		&bytecode.Insn{Op: opcodes.ATHROW},
	)
	stub := &bytecode.Method{
		Owner: tree.Name, Name: name, Desc: desc,
		Access: bytecode.AccPrivate | bytecode.AccSynthetic,
		MaxStack: 2, MaxLocals: 1, Code: code,
	}
	tree.Methods = append(tree.Methods, stub)
	return stub
}

// --- Modify-arg injector ---

// ModifyArgInjector relocates one argument of an invocation to a local,
// calls the handler, and stores the result back before the call proceeds.
// ArgIndex < 0 means "infer from the handler's first parameter type".
type ModifyArgInjector struct {
	Handler  *bytecode.Method
	Mixin    string
	ArgIndex int
}

func (inj *ModifyArgInjector) Inject(tree *bytecode.Class, method *bytecode.Method, model *target.Model, r injectionpoint.Resolver, data injectionpoint.Data) error {
	nodes, err := injectionpoint.Resolve(r, tree, method, data)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := inj.injectAt(tree, method, model, n); err != nil {
			return err
		}
	}
	return nil
}

func (inj *ModifyArgInjector) injectAt(tree *bytecode.Class, method *bytecode.Method, model *target.Model, n *bytecode.Insn) error {
	cp := tree.CP
	ref, ok := cp.Methods[n.CPIndex]
	if !ok || !opcodes.IsInvoke(n.Op) {
		return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "modify-arg target node is not an invocation")
	}
	argTypes := locals.ParseArgTypes(ref.Desc)
	idx := inj.ArgIndex
	if idx < 0 {
		idx = inferArgIndex(argTypes, inj.Handler)
	}
	if idx < 0 || idx >= len(argTypes) {
		return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "modify-arg index "+strconv.Itoa(idx)+" out of range for "+ref.Desc)
	}
	extended := len(locals.ParseArgTypes(inj.Handler.Desc)) > 1

	temps := make([]int, len(argTypes)-idx)
	var before []*bytecode.Insn
	for k := len(argTypes) - 1; k >= idx; k-- {
		slot := model.AllocateLocals(widthOf(argTypes[k]))
		temps[k-idx] = slot
		before = append(before, storeSlot(argTypes[k], slot))
	}
	before = append(before, loadSlot(argTypes[idx], temps[0]))
	if extended {
		for k := idx + 1; k < len(argTypes); k++ {
			before = append(before, loadSlot(argTypes[k], temps[k-idx]))
		}
	}
	handlerOp := opcodes.INVOKESTATIC
	if !inj.Handler.Access.IsStatic() {
		handlerOp = opcodes.INVOKESPECIAL
	}
	before = append(before, &bytecode.Insn{Op: handlerOp, CPIndex: internMethod(cp, tree.Name, inj.Handler.Name, inj.Handler.Desc)})
	before = append(before, storeSlot(argTypes[idx], temps[0]))
	for k := idx; k < len(argTypes); k++ {
		before = append(before, loadSlot(argTypes[k], temps[k-idx]))
	}

	model.Wrap(n, before, nil)
	model.AddToStack(len(argTypes) + 2)
	return nil
}

// inferArgIndex finds the single argument whose type equals the handler's
// first declared parameter type.
func inferArgIndex(argTypes []string, handler *bytecode.Method) int {
	handlerArgs := locals.ParseArgTypes(handler.Desc)
	if len(handlerArgs) == 0 {
		return -1
	}
	want := handlerArgs[0]
	found := -1
	for i, t := range argTypes {
		if t == want {
			if found >= 0 {
				return -1 // ambiguous: more than one argument of this type
			}
			found = i
		}
	}
	return found
}

// --- Modify-args injector (argument-bundle based) ---

// ModifyArgsInjector replaces every argument of an invocation with a
// generated Args bundle, calls the handler with it, then unpacks the
// (possibly mutated) values back onto the stack in the call's original
// order.
type ModifyArgsInjector struct {
	Handler  *bytecode.Method
	Mixin    string
	Registry *argbundle.Registry
}

func (inj *ModifyArgsInjector) Inject(tree *bytecode.Class, method *bytecode.Method, model *target.Model, r injectionpoint.Resolver, data injectionpoint.Data) error {
	nodes, err := injectionpoint.Resolve(r, tree, method, data)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := inj.injectAt(tree, method, model, n); err != nil {
			return err
		}
	}
	return nil
}

func (inj *ModifyArgsInjector) injectAt(tree *bytecode.Class, method *bytecode.Method, model *target.Model, n *bytecode.Insn) error {
	cp := tree.CP
	ref, ok := cp.Methods[n.CPIndex]
	if !ok || !opcodes.IsInvoke(n.Op) {
		return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "modify-args target node is not an invocation")
	}
	argTypes := locals.ParseArgTypes(ref.Desc)
	bundle := inj.Registry.NameFor(inj.Mixin, argTypes)
	bundleName := bundle.Name

	temps := make([]int, len(argTypes))
	var before []*bytecode.Insn
	for k := len(argTypes) - 1; k >= 0; k-- {
		slot := model.AllocateLocals(widthOf(argTypes[k]))
		temps[k] = slot
		before = append(before, storeSlot(argTypes[k], slot))
	}
	for i, t := range argTypes {
		before = append(before, loadSlot(t, temps[i]))
	}
	factoryDesc := "(" + joinDescs(argTypes) + ")L" + bundleName + ";"
	before = append(before, &bytecode.Insn{Op: opcodes.INVOKESTATIC, CPIndex: internMethod(cp, bundleName, "of", factoryDesc)})

	bundleSlot := model.AllocateLocals(1)
	before = append(before, storeSlot("L", bundleSlot))

	before = append(before, loadSlot("L", bundleSlot))
	handlerOp := opcodes.INVOKESTATIC
	if !inj.Handler.Access.IsStatic() {
		handlerOp = opcodes.INVOKESPECIAL
	}
	before = append(before, &bytecode.Insn{Op: handlerOp, CPIndex: internMethod(cp, tree.Name, inj.Handler.Name, inj.Handler.Desc)})

	for i, t := range argTypes {
		before = append(before,
			loadSlot("L", bundleSlot),
			&bytecode.Insn{Op: opcodes.INVOKEVIRTUAL, CPIndex: internMethod(cp, bundleName, "$"+strconv.Itoa(i), "()"+t)},
			storeSlot(t, temps[i]),
		)
	}
	for i, t := range argTypes {
		before = append(before, loadSlot(t, temps[i]))
	}

	model.Wrap(n, before, nil)
	model.AddToStack(len(argTypes) + 3)
	return nil
}

func joinDescs(types []string) string {
	s := ""
	for _, t := range types {
		s += t
	}
	return s
}

// --- Redirect injector ---

// RedirectInjector rewrites an invoke or field-access node to call the
// handler instead: (receiver?, originalArgs...) -> returnType for an
// invoke redirect, (owner?) -> fieldType / (owner?, newValue) -> void for
// a field-access redirect. Both variants preserve the exact stack shape
// already produced up to the node, so the rewrite is a single Replace.
type RedirectInjector struct {
	Handler *bytecode.Method
	Mixin   string
}

func (inj *RedirectInjector) Inject(tree *bytecode.Class, method *bytecode.Method, model *target.Model, r injectionpoint.Resolver, data injectionpoint.Data) error {
	nodes, err := injectionpoint.Resolve(r, tree, method, data)
	if err != nil {
		return err
	}
	cp := tree.CP
	for _, n := range nodes {
		if opcodes.IsInvoke(n.Op) {
			if _, ok := cp.Methods[n.CPIndex]; !ok {
				return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "redirect target node has no resolvable method reference")
			}
		} else if !opcodes.IsFieldAccess(n.Op) {
			return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "redirect target node is neither an invocation nor a field access")
		}
		handlerOp := opcodes.INVOKESTATIC
		if !inj.Handler.Access.IsStatic() {
			handlerOp = opcodes.INVOKESPECIAL
		}
		replacement := &bytecode.Insn{Op: handlerOp, CPIndex: internMethod(cp, tree.Name, inj.Handler.Name, inj.Handler.Desc)}
		model.Replace(n, replacement)
	}
	return nil
}

// --- Modify-variable injector ---

// ModifyVariableInjector reads the local variable a LocalVariableDiscriminator
// selects, calls the handler, and stores the result back.
type ModifyVariableInjector struct {
	Handler  *bytecode.Method
	Mixin    string
	Print    bool
	ArgsOnly bool
	Ordinal  int // -1 = unused
	Index    int // -1 = unused
	Names    []string
}

func (inj *ModifyVariableInjector) Inject(tree *bytecode.Class, method *bytecode.Method, model *target.Model, lr *locals.Reconstructor, r injectionpoint.Resolver, data injectionpoint.Data) error {
	nodes, err := injectionpoint.Resolve(r, tree, method, data)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := inj.injectAt(tree, method, model, lr, n); err != nil {
			return err
		}
	}
	return nil
}

func (inj *ModifyVariableInjector) injectAt(tree *bytecode.Class, method *bytecode.Method, model *target.Model, lr *locals.Reconstructor, n *bytecode.Insn) error {
	table, err := lr.Reconstruct(tree, method, n, locals.DefaultSettings())
	if err != nil {
		return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "local reconstruction failed: "+err.Error())
	}
	wantType := returnDescOf(inj.Handler.Desc)

	argTypes := locals.ParseArgTypes(method.Desc)
	frameSize := argStartSlot(method)
	for _, t := range argTypes {
		frameSize += widthOf(t)
	}

	var candidates []int
	for slot, e := range table {
		if !e.Occupied || e.Desc != wantType {
			continue
		}
		if inj.ArgsOnly && slot >= frameSize {
			continue
		}
		if len(inj.Names) > 0 && !containsName(inj.Names, e.Name) {
			continue
		}
		candidates = append(candidates, slot)
	}

	var slot int
	switch {
	case inj.Index >= 0:
		found := false
		for _, c := range candidates {
			if c == inj.Index {
				slot = c
				found = true
				break
			}
		}
		if !found {
			return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "modify-variable index "+strconv.Itoa(inj.Index)+" is not a live local of the expected type")
		}
	case inj.Ordinal >= 0:
		if inj.Ordinal >= len(candidates) {
			return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "modify-variable ordinal "+strconv.Itoa(inj.Ordinal)+" exceeds "+strconv.Itoa(len(candidates))+" candidate(s)")
		}
		slot = candidates[inj.Ordinal]
	default:
		if len(candidates) != 1 {
			return mixerr.NewInvalidInjection(inj.Mixin, tree.Name, method.Name+method.Desc, "modify-variable selector is ambiguous: "+strconv.Itoa(len(candidates))+" candidates")
		}
		slot = candidates[0]
	}

	if inj.Print {
		trace.Info("modify-variable candidate: slot " + strconv.Itoa(slot) + " type " + wantType)
		return nil
	}

	cp := tree.CP
	handlerOp := opcodes.INVOKESTATIC
	if !inj.Handler.Access.IsStatic() {
		handlerOp = opcodes.INVOKESPECIAL
	}
	before := []*bytecode.Insn{
		loadSlot(wantType, slot),
		{Op: handlerOp, CPIndex: internMethod(cp, tree.Name, inj.Handler.Name, inj.Handler.Desc)},
		storeSlot(wantType, slot),
	}
	model.Wrap(n, before, nil)
	return nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
