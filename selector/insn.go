package selector

import "weave/bytecode"

// MatchesMethodInsn resolves an invoke instruction's CP-indexed method
// reference through cp and reports whether s matches it. Only called for
// opcodes.IsInvoke(insn.Op) instructions.
func (s *Selector) MatchesMethodInsn(insn *bytecode.Insn, cp *bytecode.ConstantPool) Match {
	ref, ok := cp.Methods[insn.CPIndex]
	if !ok {
		return NoMatch
	}
	return s.Matches(ref.Owner, ref.Name, ref.Desc)
}

// MatchesFieldInsn resolves a field-access instruction's CP-indexed field
// reference through cp and reports whether s matches it.
func (s *Selector) MatchesFieldInsn(insn *bytecode.Insn, cp *bytecode.ConstantPool) Match {
	ref, ok := cp.Fields[insn.CPIndex]
	if !ok {
		return NoMatch
	}
	return s.Matches(ref.Owner, ref.Name, ref.Desc)
}

// MatchesMember reports whether s matches a declared class member.
func (s *Selector) MatchesMember(owner, name, desc string) bool {
	return s.Matches(owner, name, desc) != NoMatch
}
