package transform

import (
	"errors"
	"testing"

	"github.com/spf13/afero"

	"weave/apply"
	"weave/argbundle"
	"weave/bytecode"
	"weave/classmeta"
	"weave/engine"
	"weave/opcodes"
)

type fakeLoader struct{ classes map[string]*bytecode.Class }

func (f *fakeLoader) LoadClass(name string) (*bytecode.Class, error) {
	if c, ok := f.classes[name]; ok {
		return c, nil
	}
	return nil, notFoundErr(name)
}

type notFoundErr string

func (e notFoundErr) Error() string { return "class not found: " + string(e) }

// passthroughCodec treats raw bytes as marker keys into a registry of
// trees, avoiding any real class-file format: Decode hands back whatever
// tree Register associated with the given bytes, and Encode serializes a
// tree back to its own marker bytes (or its name if it was never registered).
type passthroughCodec struct {
	byBytes map[string]*bytecode.Class
}

func newPassthroughCodec() *passthroughCodec {
	return &passthroughCodec{byBytes: map[string]*bytecode.Class{}}
}

func (c *passthroughCodec) Register(marker string, tree *bytecode.Class) []byte {
	c.byBytes[marker] = tree
	return []byte(marker)
}

func (c *passthroughCodec) Decode(raw []byte) (*bytecode.Class, error) {
	tree, ok := c.byBytes[string(raw)]
	if !ok {
		return nil, errors.New("no registered tree for bytes " + string(raw))
	}
	return tree, nil
}

func (c *passthroughCodec) Encode(tree *bytecode.Class) ([]byte, error) {
	for marker, t := range c.byBytes {
		if t == tree {
			return []byte(marker), nil
		}
	}
	return []byte(tree.Name), nil
}

func newTestTransformer() (*Transformer, *classmeta.Cache, *passthroughCodec, *fakeLoader) {
	return newTestTransformerWithOpts(engine.DefaultOptions())
}

func newTestTransformerWithOpts(opts engine.Options) (*Transformer, *classmeta.Cache, *passthroughCodec, *fakeLoader) {
	loader := &fakeLoader{classes: map[string]*bytecode.Class{}}
	ctx := engine.New(opts, loader)
	cache := classmeta.NewCache(ctx)
	codec := newPassthroughCodec()
	fs := afero.NewMemMapFs()
	tr := New(ctx, cache, argbundle.NewRegistry(), codec, fs)
	return tr, cache, codec, loader
}

func targetTree(name string) *bytecode.Class {
	return &bytecode.Class{
		Name: name, SuperName: "java/lang/Object", CP: bytecode.NewConstantPool(),
		Methods: []*bytecode.Method{
			{Owner: name, Name: "greet", Desc: "()V", Access: bytecode.AccPublic,
				Code: bytecode.NewInsnList(&bytecode.Insn{Op: opcodes.RETURN})},
		},
	}
}

func TestTransformPassesThroughUntargetedClass(t *testing.T) {
	tr, _, codec, _ := newTestTransformer()
	tree := targetTree("com/example/Plain")
	raw := codec.Register("plain-bytes", tree)

	out, err := tr.Transform("com/example/Plain", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(raw) {
		t.Fatalf("expected untargeted class bytes to pass through unchanged, got %q", out)
	}
}

func TestTransformAppliesRegisteredMixin(t *testing.T) {
	tr, _, codec, loader := newTestTransformer()
	tree := targetTree("com/example/Target")
	raw := codec.Register("target-bytes", tree)
	loader.classes["com/example/Target"] = tree // resolvable via the declared-target lookup

	meta := &classmeta.MixinMeta{Name: "com/example/MyMixin", Priority: 1000, DeclaredTargets: []string{"com/example/Target"}}
	mixinMethod := &bytecode.Method{Owner: "com/example/MyMixin", Name: "greet", Desc: "()V", Access: bytecode.AccPublic,
		Code: bytecode.NewInsnList(&bytecode.Insn{Op: opcodes.RETURN}), MaxStack: 3}
	template := &apply.MixinBody{
		Tree: &bytecode.Class{Name: "com/example/MyMixin"}, Meta: meta,
		Methods: []apply.MethodSpec{{Method: mixinMethod, Kind: apply.MethodRegular}},
	}
	cfg := &classmeta.MixinConfig{Name: "example.mixins.json", Required: true}
	tr.AddPendingConfig(cfg, []MixinSource{{Meta: meta, Template: template}})

	if _, err := tr.Transform("com/example/Target", raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tree.FindMethod("greet", "()V").MaxStack; got != 3 {
		t.Fatalf("expected the mixin's method body to be merged in, got MaxStack=%d", got)
	}
}

func TestTransformRequiredTargetMissingErrors(t *testing.T) {
	tr, _, codec, _ := newTestTransformer()
	tree := targetTree("com/example/Other")
	raw := codec.Register("other-bytes", tree)

	meta := &classmeta.MixinMeta{Name: "com/example/Orphan", Priority: 1000, DeclaredTargets: []string{"com/example/Missing"}}
	template := &apply.MixinBody{Tree: &bytecode.Class{Name: "com/example/Orphan"}, Meta: meta}
	cfg := &classmeta.MixinConfig{Required: true}
	tr.AddPendingConfig(cfg, []MixinSource{{Meta: meta, Template: template}})

	if _, err := tr.Transform("com/example/Other", raw); err == nil {
		t.Fatal("expected a required-but-missing declared target to fail the transform")
	}
}

func TestTransformReturnsSyntheticClassBytes(t *testing.T) {
	tr, _, _, _ := newTestTransformer()
	info := tr.Synth.NameFor("com/example/MyMixin", []string{"I", "Ljava/lang/String;"})
	class, ok := tr.Synth.ClassFor(info.Name)
	if !ok {
		t.Fatalf("expected registry to already be able to build %s", info.Name)
	}

	out, err := tr.Transform(info.Name, []byte("whatever-the-host-had-on-disk"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != class.Name {
		t.Fatalf("expected synthetic class bytes, got %q", out)
	}
}

func TestAuditEmptyForMixinWithoutInjectors(t *testing.T) {
	tr, _, codec, loader := newTestTransformer()
	tree := targetTree("com/example/Target")
	raw := codec.Register("target-bytes", tree)
	loader.classes["com/example/Target"] = tree

	meta := &classmeta.MixinMeta{Name: "com/example/MyMixin", Priority: 1000, DeclaredTargets: []string{"com/example/Target"}}
	template := &apply.MixinBody{Tree: &bytecode.Class{Name: "com/example/MyMixin"}, Meta: meta}
	cfg := &classmeta.MixinConfig{Required: true}
	tr.AddPendingConfig(cfg, []MixinSource{{Meta: meta, Template: template}})

	if _, err := tr.Transform("com/example/Target", raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := tr.Audit()
	if len(entries) != 0 {
		t.Fatalf("expected no injection entries for a mixin with no injectors, got %+v", entries)
	}
}

func TestTransformCompatFloorBreachIsFatalByDefault(t *testing.T) {
	tr, _, codec, loader := newTestTransformer() // EnvCompatLevel defaults to 8
	tree := targetTree("com/example/Target")
	raw := codec.Register("target-bytes", tree)
	loader.classes["com/example/Target"] = tree

	meta := &classmeta.MixinMeta{Name: "com/example/MyMixin", Priority: 1000,
		DeclaredTargets: []string{"com/example/Target"}, CompatFloor: 17}
	template := &apply.MixinBody{Tree: &bytecode.Class{Name: "com/example/MyMixin"}, Meta: meta}
	cfg := &classmeta.MixinConfig{Name: "example.mixins.json", Required: true}
	tr.AddPendingConfig(cfg, []MixinSource{{Meta: meta, Template: template}})

	if _, err := tr.Transform("com/example/Target", raw); err == nil {
		t.Fatal("expected a compat-floor breach to fail the transform")
	}
}

func TestTransformCompatFloorIgnoredWhenIgnoreConstraints(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.IgnoreConstraints = true
	tr, _, codec, loader := newTestTransformerWithOpts(opts)
	tree := targetTree("com/example/Target")
	raw := codec.Register("target-bytes", tree)
	loader.classes["com/example/Target"] = tree

	meta := &classmeta.MixinMeta{Name: "com/example/MyMixin", Priority: 1000,
		DeclaredTargets: []string{"com/example/Target"}, CompatFloor: 17}
	template := &apply.MixinBody{Tree: &bytecode.Class{Name: "com/example/MyMixin"}, Meta: meta}
	cfg := &classmeta.MixinConfig{Name: "example.mixins.json", Required: true}
	tr.AddPendingConfig(cfg, []MixinSource{{Meta: meta, Template: template}})

	if _, err := tr.Transform("com/example/Target", raw); err != nil {
		t.Fatalf("expected ignoreConstraints to downgrade the breach to a warning, got %v", err)
	}
}

func TestTransformEnvIgnoreRequiredSuppressesMissingTargetError(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.EnvIgnoreRequired = true
	tr, _, codec, _ := newTestTransformerWithOpts(opts)
	tree := targetTree("com/example/Other")
	raw := codec.Register("other-bytes", tree)

	meta := &classmeta.MixinMeta{Name: "com/example/Orphan", Priority: 1000, DeclaredTargets: []string{"com/example/Missing"}}
	template := &apply.MixinBody{Tree: &bytecode.Class{Name: "com/example/Orphan"}, Meta: meta}
	cfg := &classmeta.MixinConfig{Required: true}
	tr.AddPendingConfig(cfg, []MixinSource{{Meta: meta, Template: template}})

	if _, err := tr.Transform("com/example/Other", raw); err != nil {
		t.Fatalf("expected env.ignoreRequired to suppress the missing-target error, got %v", err)
	}
}

func TestTransformDebugStrictEscalatesUniqueConflict(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.DebugStrict = true
	tr, _, codec, loader := newTestTransformerWithOpts(opts)
	tree := targetTree("com/example/Target")
	tree.Methods = append(tree.Methods, &bytecode.Method{Owner: tree.Name, Name: "helper", Desc: "()V",
		Code: bytecode.NewInsnList(&bytecode.Insn{Op: opcodes.RETURN})})
	raw := codec.Register("target-bytes", tree)
	loader.classes["com/example/Target"] = tree

	meta := &classmeta.MixinMeta{Name: "com/example/MyMixin", Priority: 1000, DeclaredTargets: []string{"com/example/Target"}}
	mixinMethod := &bytecode.Method{Owner: "com/example/MyMixin", Name: "helper", Desc: "()V",
		Code: bytecode.NewInsnList(&bytecode.Insn{Op: opcodes.RETURN})}
	template := &apply.MixinBody{
		Tree: &bytecode.Class{Name: "com/example/MyMixin"}, Meta: meta,
		Methods: []apply.MethodSpec{{Method: mixinMethod, Kind: apply.MethodUnique}},
	}
	cfg := &classmeta.MixinConfig{Name: "example.mixins.json", Required: true}
	tr.AddPendingConfig(cfg, []MixinSource{{Meta: meta, Template: template}})

	if _, err := tr.Transform("com/example/Target", raw); err == nil {
		t.Fatal("expected debug.strict to escalate the @Unique conflict to a fatal error")
	}
}

func TestPrintAuditHandlesEmpty(t *testing.T) {
	PrintAudit(nil) // must not panic on an empty report
}
