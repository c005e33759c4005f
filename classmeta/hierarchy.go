package classmeta

// Traversal controls whether a hierarchy walk is permitted to treat a
// class's mixin targets as synthetic parents. At each step the traversal
// value transitions: immediate -> none, super -> all, all -> all.
type Traversal int

const (
	TraversalNone Traversal = iota
	TraversalImmediate
	TraversalSuperOnly
	TraversalAll
)

func (t Traversal) next() Traversal {
	switch t {
	case TraversalImmediate:
		return TraversalNone
	case TraversalSuperOnly:
		return TraversalAll
	case TraversalAll:
		return TraversalAll
	default:
		return TraversalNone
	}
}

func (t Traversal) mixinParallelAllowed() bool {
	return t == TraversalImmediate || t == TraversalSuperOnly || t == TraversalAll
}

// MemberFlags controls which members find_method_in_hierarchy considers.
type MemberFlags struct {
	IncludePrivate bool
	IncludeStatic  bool
}

// parents returns c's superclass plus, when traversal allows it, the
// classes of any mixin that targets c (its "synthetic parents").
func (c *Cache) parents(meta *ClassMeta, trav Traversal, includeInterfaces bool) []*ClassMeta {
	var out []*ClassMeta
	if meta.SuperName != "" {
		if sup, err := c.ForName(meta.SuperName); err == nil && sup != nil {
			out = append(out, sup)
		}
	}
	if includeInterfaces {
		for iface := range meta.Interfaces {
			if im, err := c.ForName(iface); err == nil && im != nil {
				out = append(out, im)
			}
		}
	}
	if trav.mixinParallelAllowed() {
		for _, mx := range meta.TargetedBy {
			if mx.Config == nil {
				continue
			}
			if mm, err := c.ForName(mx.Name); err == nil && mm != nil {
				out = append(out, mm)
			}
		}
	}
	return out
}

// HasSuper reports whether name appears somewhere in meta's hierarchy,
// walking per trav.
func (c *Cache) HasSuper(meta *ClassMeta, name string, trav Traversal) bool {
	found, _ := c.FindSuper(meta, name, trav, true)
	return found != nil
}

// FindSuper walks the chain looking for name, returning the matching
// ClassMeta, or nil if not found. includeInterfaces controls whether
// interfaces participate in the walk.
func (c *Cache) FindSuper(meta *ClassMeta, name string, trav Traversal, includeInterfaces bool) (*ClassMeta, error) {
	visited := map[string]bool{}
	return c.findSuperRec(meta, name, trav, includeInterfaces, visited)
}

func (c *Cache) findSuperRec(meta *ClassMeta, name string, trav Traversal, includeInterfaces bool, visited map[string]bool) (*ClassMeta, error) {
	if meta == nil || visited[meta.Name] {
		return nil, nil
	}
	visited[meta.Name] = true
	if meta.Name == name {
		return meta, nil
	}
	next := trav.next()
	for _, p := range c.parents(meta, trav, includeInterfaces) {
		if found, err := c.findSuperRec(p, name, next, includeInterfaces, visited); err != nil {
			return nil, err
		} else if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// FindMethodInHierarchy returns the first visible member matching
// (name, desc) in meta's hierarchy honouring flags. Members resolved
// through an interface are marked InterfaceSourced.
func (c *Cache) FindMethodInHierarchy(meta *ClassMeta, name, desc string, searchType Traversal, flags MemberFlags) (*MemberMeta, bool) {
	visited := map[string]bool{}
	return c.findMethodRec(meta, name, desc, searchType, flags, false, visited)
}

func (c *Cache) findMethodRec(meta *ClassMeta, name, desc string, trav Traversal, flags MemberFlags, viaInterface bool, visited map[string]bool) (*MemberMeta, bool) {
	if meta == nil || visited[meta.Name] {
		return nil, false
	}
	visited[meta.Name] = true

	if m, ok := meta.FindMember(name, desc); ok {
		if visible(m, flags) {
			if viaInterface {
				cp := *m
				cp.InterfaceSourced = true
				return &cp, true
			}
			return m, true
		}
	}

	next := trav.next()
	// classes first, then interfaces, so a concrete superclass member wins
	// over a default interface method at the same distance.
	if meta.SuperName != "" {
		if sup, err := c.ForName(meta.SuperName); err == nil && sup != nil {
			if m, ok := c.findMethodRec(sup, name, desc, next, flags, viaInterface, visited); ok {
				return m, true
			}
		}
	}
	for iface := range meta.Interfaces {
		im, err := c.ForName(iface)
		if err != nil || im == nil {
			continue
		}
		if m, ok := c.findMethodRec(im, name, desc, next, flags, true, visited); ok {
			return m, true
		}
	}
	return nil, false
}

func visible(m *MemberMeta, flags MemberFlags) bool {
	if m.Access.IsPrivate() && !flags.IncludePrivate {
		return false
	}
	if m.Access.IsStatic() && !flags.IncludeStatic {
		return false
	}
	return true
}

// CommonSuper climbs until a super of a contains b; if both are interfaces
// or otherwise incompatible, returns Object.
func (c *Cache) CommonSuper(a, b *ClassMeta, includeInterfaces bool) *ClassMeta {
	if a == nil || b == nil {
		obj, _ := c.ForName(ObjectClassName)
		return obj
	}
	if a.Name == b.Name {
		return a
	}
	if a.IsInterface() || b.IsInterface() {
		obj, _ := c.ForName(ObjectClassName)
		return obj
	}

	ancestorsOfA := map[string]bool{a.Name: true}
	cur := a
	for cur != nil && cur.SuperName != "" {
		ancestorsOfA[cur.SuperName] = true
		next, err := c.ForName(cur.SuperName)
		if err != nil {
			break
		}
		cur = next
	}

	cur = b
	for cur != nil {
		if ancestorsOfA[cur.Name] {
			return cur
		}
		if cur.SuperName == "" {
			break
		}
		next, err := c.ForName(cur.SuperName)
		if err != nil {
			break
		}
		cur = next
	}
	obj, _ := c.ForName(ObjectClassName)
	return obj
}
