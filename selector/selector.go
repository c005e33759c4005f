/*
 * weave - a class-file mixin engine
 *
 * Package selector implements the member selector: a textual description
 * of a method/field reference with quantified match counts. Grounded in
 * the teacher's own terse, comment-light parsing style (see classloader/
 * CPutils.go) generalized to a small recursive-descent-free scanner since
 * the grammar is a single flat pattern, not a recursive one.
 */
package selector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"weave/mixerr"
)

// Quantifier encodes a {min,max} match-count bound. Max < 0 means unbounded.
type Quantifier struct {
	Min, Max int
}

// Default contexts: absence of a quantifier token means different things
// depending on whether the selector is being used to pick target members
// (promotes to exactly one) or to pick instructions inside a method body
// (promotes to "any count").
var (
	QuantifierMember      = Quantifier{Min: 1, Max: 1}
	QuantifierInstruction = Quantifier{Min: 0, Max: -1}
)

func (q Quantifier) Allows(n int) bool {
	if n < q.Min {
		return false
	}
	if q.Max >= 0 && n > q.Max {
		return false
	}
	return true
}

// Match is the three-valued comparison result of matching a selector
// against a concrete owner/name/descriptor.
type Match int

const (
	NoMatch Match = iota
	CaseInsensitiveMatch
	ExactMatch
)

// Selector is an immutable parsed member/instruction reference.
type Selector struct {
	Owner      string // "" = unspecified (matches any owner)
	Name       string // "" = unspecified (matches any name)
	Desc       string // "" = unspecified (matches any descriptor)
	Quantifier Quantifier
	Tail       *Selector // chained selector introduced by "->tail"
	raw        string
}

var (
	ownerRe = regexp.MustCompile(`^[\w$/]+$`)
	nameRe  = regexp.MustCompile(`^<?[\w$]+>?$`)
)

// Parse parses a textual selector of the form
// "[Lowner;|owner.][name][quantifier][(desc)|:desc][->tail]", with
// quantifierContext selecting which default applies when no quantifier
// token is present.
func Parse(input string, quantifierContext Quantifier) (*Selector, error) {
	s := strings.Join(strings.Fields(input), "") // strip whitespace
	if s == "" {
		return nil, mixerr.NewInvalidSelector(input, "empty selector")
	}

	var tail *Selector
	if idx := strings.Index(s, "->"); idx >= 0 {
		tailStr := s[idx+2:]
		s = s[:idx]
		t, err := Parse(tailStr, quantifierContext)
		if err != nil {
			return nil, err
		}
		tail = t
	}

	owner, rest, err := splitOwner(s)
	if err != nil {
		return nil, mixerr.NewInvalidSelector(input, err.Error())
	}

	name, rest, quant, err := splitNameAndQuantifier(rest, quantifierContext)
	if err != nil {
		return nil, mixerr.NewInvalidSelector(input, err.Error())
	}

	desc, err := splitDescriptor(rest)
	if err != nil {
		return nil, mixerr.NewInvalidSelector(input, err.Error())
	}

	sel := &Selector{Owner: owner, Name: name, Desc: desc, Quantifier: quant, Tail: tail, raw: input}
	if verr := sel.validateSelf(); verr != nil {
		return nil, verr
	}
	return sel, nil
}

// splitOwner recognizes "Lowner;" and "owner." prefixes (dot form converted
// to internal "/" form); ambiguity between a dot used as an
// owner separator and a dot that is actually part of a trailing descriptor
// is resolved by requiring the dot-owner form to be followed by a valid
// name character, never "(".
func splitOwner(s string) (owner, rest string, err error) {
	if strings.HasPrefix(s, "L") {
		if idx := strings.Index(s, ";"); idx > 0 {
			return s[1:idx], s[idx+1:], nil
		}
		return "", "", errFmt("malformed owner: missing ';' terminator in %q", s)
	}
	if idx := strings.LastIndex(s, "."); idx >= 0 {
		candidateOwner := s[:idx]
		remainder := s[idx+1:]
		if remainder == "" || strings.HasPrefix(remainder, "(") {
			return "", "", errFmt("ambiguous owner terminator in %q", s)
		}
		return strings.ReplaceAll(candidateOwner, ".", "/"), remainder, nil
	}
	return "", s, nil
}

func splitNameAndQuantifier(s string, ctx Quantifier) (name, rest string, q Quantifier, err error) {
	// find the earliest of a quantifier token or a descriptor-opening char.
	cut := len(s)
	for i, r := range s {
		if r == '(' || r == ':' {
			if i < cut {
				cut = i
			}
			break
		}
	}
	head := s[:cut]
	rest = s[cut:]

	name, qStr := splitQuantifierToken(head)
	if qStr == "" {
		return name, rest, ctx, nil
	}
	q, err = parseQuantifierToken(qStr)
	return name, rest, q, err
}

// splitQuantifierToken peels a trailing "*", "+" or "{...}" token off name.
func splitQuantifierToken(s string) (name, quant string) {
	if strings.HasSuffix(s, "*") || strings.HasSuffix(s, "+") {
		return s[:len(s)-1], s[len(s)-1:]
	}
	if strings.HasSuffix(s, "}") {
		if idx := strings.LastIndex(s, "{"); idx >= 0 {
			return s[:idx], s[idx:]
		}
	}
	return s, ""
}

func parseQuantifierToken(tok string) (Quantifier, error) {
	switch tok {
	case "*":
		return Quantifier{Min: 0, Max: -1}, nil
	case "+":
		return Quantifier{Min: 1, Max: -1}, nil
	}
	if !strings.HasPrefix(tok, "{") || !strings.HasSuffix(tok, "}") {
		return Quantifier{}, errFmt("malformed quantifier %q", tok)
	}
	body := tok[1 : len(tok)-1]
	parts := strings.SplitN(body, ",", 2)
	if len(parts) == 1 {
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			return Quantifier{}, errFmt("malformed quantifier %q", tok)
		}
		return Quantifier{Min: n, Max: n}, nil
	}
	minStr, maxStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	q := Quantifier{Min: 0, Max: -1}
	if minStr != "" {
		n, err := strconv.Atoi(minStr)
		if err != nil {
			return Quantifier{}, errFmt("malformed quantifier %q", tok)
		}
		q.Min = n
	}
	if maxStr != "" {
		n, err := strconv.Atoi(maxStr)
		if err != nil {
			return Quantifier{}, errFmt("malformed quantifier %q", tok)
		}
		q.Max = n
	} else if minStr != "" {
		q.Max = -1
	}
	return q, nil
}

func splitDescriptor(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if strings.HasPrefix(s, ":") {
		return s[1:], nil
	}
	if strings.HasPrefix(s, "(") {
		return s, nil
	}
	return "", errFmt("malformed descriptor tail %q", s)
}

func (s *Selector) validateSelf() error {
	if s.Owner != "" && !ownerRe.MatchString(s.Owner) {
		return mixerr.NewInvalidSelector(s.raw, "owner fails shape check: "+s.Owner)
	}
	if s.Name != "" && !nameRe.MatchString(s.Name) {
		return mixerr.NewInvalidSelector(s.raw, "name fails shape check: "+s.Name)
	}
	if s.Desc != "" && !strings.HasPrefix(s.Desc, "(") && !isFieldDescShape(s.Desc) {
		return mixerr.NewInvalidSelector(s.raw, "descriptor fails shape check: "+s.Desc)
	}
	return nil
}

func isFieldDescShape(d string) bool {
	if d == "" {
		return false
	}
	switch d[0] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 'L', '[':
		return true
	default:
		return false
	}
}

// Validate re-runs the selector's structural checks, returning a
// descriptive error naming which component failed.
func (s *Selector) Validate() error { return s.validateSelf() }

// Matches compares s against a concrete (owner, name, desc) triple. A null
// (empty) component of either side matches anything: this is deliberately
// permissive rather than strict, so a partially-specified selector still
// matches.
func (s *Selector) Matches(owner, name, desc string) Match {
	if !componentMatches(s.Owner, owner) {
		return NoMatch
	}
	if !componentMatches(s.Name, name) {
		return NoMatch
	}
	if !componentMatches(s.Desc, desc) {
		return NoMatch
	}
	if s.Owner == owner && s.Name == name && s.Desc == desc {
		return ExactMatch
	}
	return CaseInsensitiveMatch
}

func componentMatches(pattern, value string) bool {
	if pattern == "" || value == "" {
		return true
	}
	if pattern == value {
		return true
	}
	return strings.EqualFold(pattern, value)
}

// Move returns a copy of s with a new owner.
func (s *Selector) Move(newOwner string) *Selector {
	cp := *s
	cp.Owner = newOwner
	return &cp
}

// Transform returns a copy of s with a new descriptor.
func (s *Selector) Transform(newDesc string) *Selector {
	cp := *s
	cp.Desc = newDesc
	return &cp
}

// RemapFunc maps an (owner, name, desc) triple to a new (name, desc); used
// by Remap to push a selector through a remapper-chain transformation.
type RemapFunc func(owner, name, desc string) (newName, newDesc string)

// Remap returns a copy of s with name/desc passed through fn; when
// setOwner is non-empty, Owner is also updated.
func (s *Selector) Remap(fn RemapFunc, setOwner string) *Selector {
	cp := *s
	cp.Name, cp.Desc = fn(s.Owner, s.Name, s.Desc)
	if setOwner != "" {
		cp.Owner = setOwner
	}
	return &cp
}

func (s *Selector) String() string {
	var b strings.Builder
	if s.Owner != "" {
		b.WriteString(s.Owner)
		b.WriteString(".")
	}
	b.WriteString(s.Name)
	if s.Desc != "" {
		if strings.HasPrefix(s.Desc, "(") {
			b.WriteString(s.Desc)
		} else {
			b.WriteString(":")
			b.WriteString(s.Desc)
		}
	}
	if s.Tail != nil {
		b.WriteString("->")
		b.WriteString(s.Tail.String())
	}
	return b.String()
}

func errFmt(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
