package classmeta

import (
	"runtime"
	"strings"
	"sync"

	"weave/bytecode"
	"weave/engine"
	"weave/mixerr"
	"weave/trace"
)

// status mirrors the teacher's Klass.Status marker (classloader.go: 'I' for
// initializing, 'F' for format-checked) so a concurrent second lookup can
// recheck instead of reparsing.
type status byte

const (
	statusInitializing status = 'I'
	statusReady         status = 'F'
	statusMissing       status = 'M' // negative-cached: load failed
)

type entry struct {
	st   status
	meta *ClassMeta
}

// Cache is the process-wide, but explicitly-threaded, class metadata cache.
// The zero value is not ready; use NewCache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ctx     *engine.Context
}

// ObjectClassName is the binary name of java.lang.Object, which is
// preconstructed with a fixed member set rather than loaded.
const ObjectClassName = "java/lang/Object"

func NewCache(ctx *engine.Context) *Cache {
	c := &Cache{entries: map[string]*entry{}, ctx: ctx}
	c.seedObject()
	return c
}

// Opts exposes the engine options the cache was constructed with, the zero
// value if constructed without a context, for collaborators (the
// applicator, the transformer) that need to read process-wide flags
// without holding their own *engine.Context.
func (c *Cache) Opts() engine.Options {
	if c.ctx == nil {
		return engine.Options{}
	}
	return c.ctx.Opts
}

func (c *Cache) seedObject() {
	obj := newClassMeta(ObjectClassName)
	obj.Access = bytecode.AccPublic
	for _, m := range []struct{ name, desc string }{
		{"<init>", "()V"},
		{"equals", "(Ljava/lang/Object;)Z"},
		{"hashCode", "()I"},
		{"toString", "()Ljava/lang/String;"},
		{"getClass", "()Ljava/lang/Class;"},
		{"clone", "()Ljava/lang/Object;"},
		{"finalize", "()V"},
		{"notify", "()V"},
		{"notifyAll", "()V"},
		{"wait", "()V"},
	} {
		obj.Members[m.name+m.desc] = &MemberMeta{Name: m.name, Desc: m.desc,
			Access: bytecode.AccPublic, DeclaringClass: ObjectClassName}
	}
	c.entries[ObjectClassName] = &entry{st: statusReady, meta: obj}
}

// ForName consults the cache; on miss, it requests the raw class tree from
// the engine's ClassProvider collaborator, constructs a ClassMeta, and
// stores it. A failed load is cached too (status 'M'), mirroring the
// teacher's "even on load failure a null entry is cached" behavior so
// repeated lookups of a missing class don't re-hit the loader.
func (c *Cache) ForName(binaryName string) (*ClassMeta, error) {
	c.mu.RLock()
	e, ok := c.entries[binaryName]
	c.mu.RUnlock()
	for ok && e.st == statusInitializing {
		// another caller is constructing this entry: recheck until it settles
		runtime.Gosched()
		c.mu.RLock()
		e, ok = c.entries[binaryName]
		c.mu.RUnlock()
	}
	if ok {
		if e.st == statusMissing {
			return nil, mixerr.NewClassLoadFailure(binaryName, nil)
		}
		return e.meta, nil
	}

	c.mu.Lock()
	// re-check under the write lock: another caller may have raced us here,
	// in which case its entry (settled or still initializing) is rechecked.
	if _, ok := c.entries[binaryName]; ok {
		c.mu.Unlock()
		return c.ForName(binaryName)
	}
	c.entries[binaryName] = &entry{st: statusInitializing}
	c.mu.Unlock()

	if c.ctx == nil || c.ctx.Loader == nil {
		c.markMissing(binaryName)
		return nil, mixerr.NewClassLoadFailure(binaryName, nil)
	}

	tree, err := c.ctx.Loader.LoadClass(binaryName)
	if err != nil {
		trace.Warning("classmeta: failed to load " + binaryName + ": " + err.Error())
		c.markMissing(binaryName)
		return nil, mixerr.NewClassLoadFailure(binaryName, err)
	}

	meta := c.buildFromTree(tree)
	c.mu.Lock()
	c.entries[binaryName] = &entry{st: statusReady, meta: meta}
	c.mu.Unlock()
	return meta, nil
}

func (c *Cache) markMissing(binaryName string) {
	c.mu.Lock()
	c.entries[binaryName] = &entry{st: statusMissing}
	c.mu.Unlock()
}

// FromClassTree constructs (or returns the cached) ClassMeta from an
// already-parsed tree; idempotent.
func (c *Cache) FromClassTree(tree *bytecode.Class) *ClassMeta {
	c.mu.RLock()
	e, ok := c.entries[tree.Name]
	c.mu.RUnlock()
	if ok && e.st == statusReady {
		return e.meta
	}
	meta := c.buildFromTree(tree)
	c.mu.Lock()
	c.entries[tree.Name] = &entry{st: statusReady, meta: meta}
	c.mu.Unlock()
	return meta
}

func (c *Cache) buildFromTree(tree *bytecode.Class) *ClassMeta {
	meta := newClassMeta(tree.Name)
	meta.SuperName = tree.SuperName
	meta.Signature = tree.Signature
	meta.Access = tree.Access
	for _, i := range tree.Interfaces {
		meta.AddInterface(i)
	}
	for _, f := range tree.Fields {
		if f.Synthetic && isOuterRefField(f.Name, f.Desc) {
			continue // outer-class back-reference, not a real member
		}
		if f.Synthetic {
			continue // synthetic fields are compiler artifacts, not real members
		}
		meta.Members[f.Name+f.Desc] = &MemberMeta{
			Name: f.Name, Desc: f.Desc, Access: f.Access, IsField: true,
			DeclaringClass: tree.Name,
		}
	}
	for _, m := range tree.Methods {
		if m.Name == "<init>" {
			continue // constructors are excluded from the member set
		}
		meta.Members[m.Name+m.Desc] = &MemberMeta{
			Name: m.Name, Desc: m.Desc, Access: m.Access,
			DeclaringClass: tree.Name,
		}
		for _, fr := range m.Frames {
			meta.Frames = append(meta.Frames, FrameRecord{
				Kind: fr.Kind, LocalsCount: len(fr.LocalsDiff),
			})
		}
	}
	return meta
}

// isOuterRefField recognizes a synthetic this$0-style outer-class back
// reference: its outer-class name is deduced from the synthetic field's
// descriptor.
func isOuterRefField(name, desc string) bool {
	return strings.HasPrefix(name, "this$") && strings.HasPrefix(desc, "L")
}

// OuterClassName extracts the outer class name from a this$* field's
// descriptor, or "" if none is present on tree (used to derive whether a
// nested class is probably static).
func OuterClassName(tree *bytecode.Class) string {
	for _, f := range tree.Fields {
		if isOuterRefField(f.Name, f.Desc) {
			return strings.TrimSuffix(strings.TrimPrefix(f.Desc, "L"), ";")
		}
	}
	return ""
}

// IsProbablyStatic reports whether tree looks like a static nested class:
// no synthetic outer-class back reference field.
func IsProbablyStatic(tree *bytecode.Class) bool {
	return OuterClassName(tree) == ""
}

// ForType unwraps array types to their element type and returns nil for
// primitives.
func (c *Cache) ForType(javaType string) (*ClassMeta, error) {
	t := javaType
	for strings.HasPrefix(t, "[") {
		t = t[1:]
	}
	if t == "" {
		return nil, nil
	}
	if t[0] != 'L' {
		return nil, nil // primitive element type
	}
	name := strings.TrimSuffix(strings.TrimPrefix(t, "L"), ";")
	return c.ForName(name)
}
