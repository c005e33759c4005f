/*
 * weave - a class-file mixin engine
 *
 * Package classmeta implements the class metadata cache, plus the
 * MixinMeta/MixinConfig records describing mixins and their configuration
 * bundles. Grounded on classloader/classloader.go's ParsedClass/Klass pair:
 * the teacher caches a class's parsed shape keyed by binary name with an
 * explicit load-status marker ('I' initializing, 'F' format-checked) so a
 * second concurrent lookup can recheck rather than reparse — idempotent,
 * but not required to be thread-exclusive.
 */
package classmeta

import "weave/bytecode"

// MemberMeta is one method or field entry in a ClassMeta's member set.
type MemberMeta struct {
	Name, Desc string
	Access     bytecode.AccessFlags
	IsField    bool

	// decoration flags, set by mixin application rather than by the
	// original class file
	Unique           bool
	DecoratedFinal   bool
	DecoratedMutable bool
	InjectedByMixin  string // name of the mixin that injected this member, "" if none

	// InterfaceSourced marks a member that FindMethodInHierarchy resolved
	// through an interface rather than the declaring class itself.
	InterfaceSourced bool
	DeclaringClass   string
}

// Key returns the name+desc pair used to key member lookups.
func (m *MemberMeta) Key() string { return m.Name + m.Desc }

// FrameRecord is one StackMapTable entry's shape, reduced to what the
// hierarchy/metadata layer needs to know about it.
type FrameRecord struct {
	InsnIndex   int
	Kind        bytecode.FrameKind
	LocalsCount int
}

// ClassMeta is the cached, authoritative description of one class.
type ClassMeta struct {
	Name       string
	SuperName  string
	Interfaces map[string]bool
	Members    map[string]*MemberMeta // key = name+desc
	Frames     []FrameRecord
	Signature  string
	Access     bytecode.AccessFlags

	// Mixin is non-nil when this class is itself a mixin.
	Mixin *MixinMeta
	// TargetedBy holds the mixins that declare this class as a target.
	TargetedBy []*MixinMeta
}

func newClassMeta(name string) *ClassMeta {
	return &ClassMeta{
		Name:       name,
		Interfaces: map[string]bool{},
		Members:    map[string]*MemberMeta{},
	}
}

func (c *ClassMeta) AddInterface(name string) { c.Interfaces[name] = true }

func (c *ClassMeta) FindMember(name, desc string) (*MemberMeta, bool) {
	m, ok := c.Members[name+desc]
	return m, ok
}

func (c *ClassMeta) IsInterface() bool { return c.Access.IsInterface() }

// Visibility is a mixin's declared access rule.
type Visibility int

const (
	VisibilityPublic Visibility = iota
	VisibilityPackage
)

// MixinMeta describes one mixin class.
type MixinMeta struct {
	Name            string
	Priority        int
	DeclaredTargets []string
	InferredTargets []string // targets discovered via @Implements soft-targets
	CompatFloor     int
	Visibility      Visibility
	InterfaceOnly   bool
	Pseudo          bool // permitted to target classes absent at compile time
	Config          *MixinConfig
	SourceOrder     int // registration order, used to break priority ties deterministically
}

// AllTargets returns the union of declared and inferred targets.
func (m *MixinMeta) AllTargets() []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range append(append([]string{}, m.DeclaredTargets...), m.InferredTargets...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// MixinConfig is a parsed mixin-configuration resource bundle.
type MixinConfig struct {
	Name           string
	Package        string
	MixinClasses   []string
	ClientSide     []string
	ServerSide     []string
	Priority       int
	VerboseLevel   int
	RefMapResource string
	CompatLevel    int
	Required       bool
	Parent         *MixinConfig
}
