/*
 * weave - a class-file mixin engine
 *
 * Package locals implements the local variable reconstructor: given a
 * method body and a target instruction, simulate stores, loads and
 * StackMapTable frames to produce the best approximation of the local
 * variable table immediately before that instruction.
 *
 * Grounded on the frame-handling vocabulary of bytecode/bytecode.go's
 * Frame/FrameKind types (append/chop/full, mirroring JVMS 4.7.4) and on
 * classmeta.Cache.CommonSuper for merging object types across competing
 * frame entries, the way the teacher's classloader resolves a reference
 * type's nearest common ancestor when two code paths disagree.
 */
package locals

import (
	"strconv"
	"sync"

	"weave/bytecode"
	"weave/classmeta"
	"weave/mixerr"
	"weave/opcodes"
)

// Settings bounds how long a vacated slot keeps its entry resurrectable
// before the reconstructor gives up on it.
type Settings struct {
	ChoppedInsnThreshold  int
	ChoppedFrameThreshold int
	TrimmedInsnThreshold  int
	TrimmedFrameThreshold int
}

// DefaultSettings matches the conservative defaults a callback injector
// without an explicit locals policy would use.
func DefaultSettings() Settings {
	return Settings{
		ChoppedInsnThreshold:  -1, // never expire: a chopped local stays resurrectable up to the target
		ChoppedFrameThreshold: -1,
		TrimmedInsnThreshold:  8,
		TrimmedFrameThreshold: 2,
	}
}

type slotKind int

const (
	slotEmpty slotKind = iota
	slotLive
	slotZombieChop
	slotZombieTrim
)

type slotState struct {
	kind     slotKind
	name     string
	desc     string
	lifetime int // instructions since the slot stopped being live
	frames   int // frames since the slot stopped being live
}

// Entry is one row of a reconstructed table: a live local, or an empty slot.
type Entry struct {
	Name     string
	Desc     string
	Occupied bool
}

// Table is a sparse, maxLocals-length view of a method's locals at one point.
type Table []Entry

// Reconstructor caches generated LVTs per method so repeated queries against
// a method lacking a real LocalVariableTable only pay the frame-analysis
// cost once.
type Reconstructor struct {
	cache *classmeta.Cache

	mu        sync.Mutex
	generated map[string][]bytecode.LocalVarEntry
}

func NewReconstructor(cache *classmeta.Cache) *Reconstructor {
	return &Reconstructor{cache: cache, generated: map[string][]bytecode.LocalVarEntry{}}
}

// Reconstruct computes the local variable table immediately before at,
// within method, belonging to tree.
func (r *Reconstructor) Reconstruct(tree *bytecode.Class, method *bytecode.Method, at *bytecode.Insn, settings Settings) (Table, error) {
	if tree == nil || method == nil {
		return nil, mixerr.NewInvalidInjection("", "", "", "class metadata unresolvable for local reconstruction")
	}
	lvt, err := r.lvtFor(tree, method)
	if err != nil {
		return nil, err
	}

	table := make([]slotState, method.MaxLocals)
	argFrameSize := seedArgs(table, method, lvt)

	frameByInsn := map[*bytecode.Insn]*bytecode.Frame{}
	for _, f := range method.Frames {
		frameByInsn[f.AtInsn] = f
	}

	lastFrameSize := argFrameSize
	knownFrameSize := argFrameSize
	var pendingStore *bytecode.Insn

	insns := method.Code.Nodes()
	targetIdx := method.Code.IndexOf(at)
	if targetIdx < 0 {
		targetIdx = len(insns)
	}

	for i := 0; i < targetIdx; i++ {
		insn := insns[i]

		if pendingStore != nil {
			resolveStore(table, pendingStore, lvt)
			pendingStore = nil
		}

		if f, ok := frameByInsn[insn]; ok {
			applyFrame(table, f, &lastFrameSize, &knownFrameSize, settings)
			incrementZombieFrames(table)
			if knownFrameSize < argFrameSize {
				return nil, mixerr.NewInvalidInjection("", tree.Name, method.Name+method.Desc,
					"simulated frame size "+strconv.Itoa(knownFrameSize)+" below initial frame size "+strconv.Itoa(argFrameSize))
			}
		}

		if opcodes.IsStore(insn.Op) {
			pendingStore = insn
		}
		if opcodes.IsLoad(insn.Op) {
			upgradeToLive(table, insn, lvt, &knownFrameSize)
		}

		ageZombies(table, settings)
	}
	if pendingStore != nil {
		resolveStore(table, pendingStore, lvt)
	}
	resurrectNearTarget(table)

	out := make(Table, len(table))
	for i, s := range table {
		if s.kind == slotLive {
			out[i] = Entry{Name: s.name, Desc: s.desc, Occupied: true}
		}
	}
	return out, nil
}

// seedArgs fills slot 0 with `this` for an instance method, then each
// declared argument at its wide-adjusted slot, and returns the resulting
// frame size (first non-argument local index).
func seedArgs(table []slotState, method *bytecode.Method, lvt []bytecode.LocalVarEntry) int {
	slot := 0
	if !method.Access.IsStatic() {
		table[slot] = slotState{kind: slotLive, name: "this", desc: "L" + method.Owner + ";"}
		slot++
	}
	for _, argDesc := range ParseArgTypes(method.Desc) {
		if slot >= len(table) {
			break
		}
		name := nameFromLVT(lvt, slot)
		if name == "" {
			name = "arg" + strconv.Itoa(slot)
		}
		table[slot] = slotState{kind: slotLive, name: name, desc: argDesc}
		slot++
		if IsWideType(argDesc) {
			if slot < len(table) {
				table[slot] = slotState{kind: slotEmpty}
			}
			slot++
		}
	}
	return slot
}

func nameFromLVT(lvt []bytecode.LocalVarEntry, slot int) string {
	for _, e := range lvt {
		if e.Slot == slot {
			return e.Name
		}
	}
	return ""
}

func descFromLVT(lvt []bytecode.LocalVarEntry, slot int) string {
	for _, e := range lvt {
		if e.Slot == slot {
			return e.Desc
		}
	}
	return ""
}

// resolveStore is invoked on the instruction after a STORE: decode the
// declared slot from the LVT (if available) and mark it live, clearing the
// following slot for wide types.
func resolveStore(table []slotState, storeInsn *bytecode.Insn, lvt []bytecode.LocalVarEntry) {
	slot := int(storeInsn.IntOperand)
	if slot < 0 || slot >= len(table) {
		return
	}
	name := nameFromLVT(lvt, slot)
	desc := descFromLVT(lvt, slot)
	if desc == "" {
		desc = descForStoreOpcode(storeInsn.Op)
	}
	if name == "" {
		name = "local" + strconv.Itoa(slot)
	}
	table[slot] = slotState{kind: slotLive, name: name, desc: desc}
	if IsWideType(desc) && slot+1 < len(table) {
		table[slot+1] = slotState{kind: slotEmpty}
	}
}

func descForStoreOpcode(op opcodes.Opcode) string {
	switch op {
	case opcodes.LSTORE, opcodes.LSTORE_0, opcodes.LSTORE_1, opcodes.LSTORE_2, opcodes.LSTORE_3:
		return "J"
	case opcodes.DSTORE, opcodes.DSTORE_0, opcodes.DSTORE_1, opcodes.DSTORE_2, opcodes.DSTORE_3:
		return "D"
	case opcodes.FSTORE, opcodes.FSTORE_0, opcodes.FSTORE_1, opcodes.FSTORE_2, opcodes.FSTORE_3:
		return "F"
	case opcodes.ASTORE, opcodes.ASTORE_0, opcodes.ASTORE_1, opcodes.ASTORE_2, opcodes.ASTORE_3:
		return "Ljava/lang/Object;"
	default:
		return "I"
	}
}

// applyFrame folds one StackMapTable entry into the simulated state.
func applyFrame(table []slotState, f *bytecode.Frame, lastFrameSize, knownFrameSize *int, settings Settings) {
	switch f.Kind {
	case bytecode.FrameSame, bytecode.FrameSameLocals1StackItem:
		// locals unchanged
	case bytecode.FrameFull:
		for i := range table {
			table[i] = slotState{kind: slotEmpty}
		}
		applyVerificationTypes(table, f.LocalsDiff, 0)
		*knownFrameSize = len(f.LocalsDiff)
		*lastFrameSize = *knownFrameSize
	case bytecode.FrameAppend:
		start := *lastFrameSize
		for i := start; i < start+len(f.LocalsDiff) && i < len(table); i++ {
			if table[i].kind != slotEmpty && table[i].kind != slotLive {
				table[i].kind = slotZombieTrim // a slot reappearing after an append can be resurrected
			}
		}
		applyVerificationTypes(table, f.LocalsDiff, start)
		*knownFrameSize = start + len(f.LocalsDiff)
		*lastFrameSize = *knownFrameSize
	case bytecode.FrameChop:
		newSize := *lastFrameSize - f.ChopCount
		if newSize < 0 {
			newSize = 0
		}
		for i := newSize; i < len(table); i++ {
			if table[i].kind == slotLive {
				table[i] = slotState{kind: slotZombieChop, name: table[i].name, desc: table[i].desc}
			}
		}
		*knownFrameSize = newSize
		*lastFrameSize = newSize
	}
}

func applyVerificationTypes(table []slotState, vts []bytecode.VerificationType, start int) {
	for i, vt := range vts {
		slot := start + i
		if slot >= len(table) {
			return
		}
		switch vt.Kind {
		case bytecode.VTop:
			if table[slot].kind == slotLive {
				table[slot] = slotState{kind: slotZombieTrim, name: table[slot].name, desc: table[slot].desc}
			}
		case bytecode.VInteger:
			table[slot] = slotState{kind: slotLive, name: table[slot].name, desc: "I"}
		case bytecode.VFloat:
			table[slot] = slotState{kind: slotLive, name: table[slot].name, desc: "F"}
		case bytecode.VDouble:
			table[slot] = slotState{kind: slotLive, name: table[slot].name, desc: "D"}
			if slot+1 < len(table) {
				table[slot+1] = slotState{kind: slotEmpty}
			}
		case bytecode.VLong:
			table[slot] = slotState{kind: slotLive, name: table[slot].name, desc: "J"}
			if slot+1 < len(table) {
				table[slot+1] = slotState{kind: slotEmpty}
			}
		case bytecode.VNull, bytecode.VUninitialized, bytecode.VUninitializedThis:
			// no concrete type information to record
		case bytecode.VObject:
			desc := vt.ClassName
			if desc != "" {
				desc = "L" + desc + ";"
			}
			table[slot] = slotState{kind: slotLive, name: table[slot].name, desc: desc}
		}
	}
}

// upgradeToLive promotes a zombie slot touched by a LOAD back to live,
// growing the known frame size if this load exposes a slot past it.
func upgradeToLive(table []slotState, insn *bytecode.Insn, lvt []bytecode.LocalVarEntry, knownFrameSize *int) {
	slot := int(insn.IntOperand)
	if slot < 0 || slot >= len(table) {
		return
	}
	if table[slot].kind == slotZombieChop || table[slot].kind == slotZombieTrim {
		name := table[slot].name
		desc := table[slot].desc
		if name == "" {
			name = nameFromLVT(lvt, slot)
		}
		if desc == "" {
			desc = descFromLVT(lvt, slot)
		}
		table[slot] = slotState{kind: slotLive, name: name, desc: desc}
	}
	if slot+1 > *knownFrameSize {
		*knownFrameSize = slot + 1
	}
}

// incrementZombieFrames advances the per-frame counter used by the
// trimmed/chopped-frame thresholds, separately from the per-instruction one.
func incrementZombieFrames(table []slotState) {
	for i, s := range table {
		if s.kind == slotZombieChop || s.kind == slotZombieTrim {
			s.frames++
			table[i] = s
		}
	}
}

// ageZombies advances lifetime/frame counters and nulls out slots that have
// outlived their threshold.
func ageZombies(table []slotState, settings Settings) {
	for i, s := range table {
		if s.kind != slotZombieChop && s.kind != slotZombieTrim {
			continue
		}
		s.lifetime++
		insnLimit, frameLimit := settings.TrimmedInsnThreshold, settings.TrimmedFrameThreshold
		if s.kind == slotZombieChop {
			insnLimit, frameLimit = settings.ChoppedInsnThreshold, settings.ChoppedFrameThreshold
		}
		if (insnLimit >= 0 && s.lifetime > insnLimit) || (frameLimit >= 0 && s.frames > frameLimit) {
			table[i] = slotState{kind: slotEmpty}
			continue
		}
		table[i] = s
	}
}

// resurrectNearTarget brings back any zombie still alive at the target node,
// since it was within reach of the instruction being queried.
func resurrectNearTarget(table []slotState) {
	for i, s := range table {
		if s.kind == slotZombieChop || s.kind == slotZombieTrim {
			table[i] = slotState{kind: slotLive, name: s.name, desc: s.desc}
		}
	}
}

// ParseArgTypes splits a method descriptor's parameter section into its
// component field descriptors, in order.
func ParseArgTypes(desc string) []string {
	if len(desc) < 2 || desc[0] != '(' {
		return nil
	}
	var out []string
	i := 1
	for i < len(desc) && desc[i] != ')' {
		start := i
		for desc[i] == '[' {
			i++
		}
		switch desc[i] {
		case 'L':
			for desc[i] != ';' {
				i++
			}
			i++
		default:
			i++
		}
		out = append(out, desc[start:i])
	}
	return out
}

// IsWideType reports whether a field descriptor occupies two local slots.
func IsWideType(desc string) bool {
	return desc == "J" || desc == "D"
}

// lvtFor returns the method's declared LocalVariableTable, or a generated
// one (built once and cached by className.methodName.desc) when absent.
func (r *Reconstructor) lvtFor(tree *bytecode.Class, method *bytecode.Method) ([]bytecode.LocalVarEntry, error) {
	if len(method.LocalVars) > 0 {
		return method.LocalVars, nil
	}
	key := tree.Name + "." + method.Name + method.Desc

	r.mu.Lock()
	if cached, ok := r.generated[key]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	generated := r.generateLVT(tree, method)

	r.mu.Lock()
	r.generated[key] = generated
	r.mu.Unlock()
	return generated, nil
}

// generateLVT derives a synthetic LocalVariableTable from the method's
// StackMapTable frames: every APPEND/FULL verification entry becomes a slot
// declaration. Object-typed slots that disagree across frames are merged
// via the class metadata cache's common-superclass query.
func (r *Reconstructor) generateLVT(tree *bytecode.Class, method *bytecode.Method) []bytecode.LocalVarEntry {
	bySlot := map[int]*bytecode.LocalVarEntry{}
	record := func(slot int, desc string) {
		if desc == "" {
			return
		}
		if existing, ok := bySlot[slot]; ok {
			if existing.Desc != desc {
				existing.Desc = r.mergeDesc(existing.Desc, desc)
			}
			return
		}
		bySlot[slot] = &bytecode.LocalVarEntry{Slot: slot, Name: "local" + strconv.Itoa(slot), Desc: desc}
	}

	last := 0
	for _, f := range method.Frames {
		switch f.Kind {
		case bytecode.FrameFull:
			for i, vt := range f.LocalsDiff {
				record(i, descFromVerificationType(vt))
			}
			last = len(f.LocalsDiff)
		case bytecode.FrameAppend:
			for i, vt := range f.LocalsDiff {
				record(last+i, descFromVerificationType(vt))
			}
			last += len(f.LocalsDiff)
		}
	}

	out := make([]bytecode.LocalVarEntry, 0, len(bySlot))
	for _, e := range bySlot {
		out = append(out, *e)
	}
	return out
}

func descFromVerificationType(vt bytecode.VerificationType) string {
	switch vt.Kind {
	case bytecode.VInteger:
		return "I"
	case bytecode.VFloat:
		return "F"
	case bytecode.VDouble:
		return "D"
	case bytecode.VLong:
		return "J"
	case bytecode.VObject:
		if vt.ClassName == "" {
			return ""
		}
		return "L" + vt.ClassName + ";"
	default:
		return ""
	}
}

// mergeDesc resolves two disagreeing object-type descriptors for the same
// slot via the nearest common superclass; non-object mismatches fall back
// to java/lang/Object since the verifier would have rejected a genuine
// primitive/object conflict.
func (r *Reconstructor) mergeDesc(a, b string) string {
	if a == b {
		return a
	}
	ca, okA := classNameOf(a)
	cb, okB := classNameOf(b)
	if !okA || !okB || r.cache == nil {
		return "Ljava/lang/Object;"
	}
	ma, errA := r.cache.ForName(ca)
	mb, errB := r.cache.ForName(cb)
	if errA != nil || errB != nil || ma == nil || mb == nil {
		return "Ljava/lang/Object;"
	}
	common := r.cache.CommonSuper(ma, mb, true)
	if common == nil {
		return "Ljava/lang/Object;"
	}
	return "L" + common.Name + ";"
}

func classNameOf(desc string) (string, bool) {
	if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
		return "", false
	}
	return desc[1 : len(desc)-1], true
}
