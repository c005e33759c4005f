/*
 * weave - a class-file mixin engine
 *
 * Package config parses mixin-configuration resource bundles: the JSON
 * documents a host names (by convention "*.mixins.json") that declare which
 * mixin classes belong to a package, which side(s) they load on, and the
 * shared priority/refmap/compatibility settings they inherit.
 *
 * Grounded on refmap/refmap.go's use of github.com/tidwall/gjson for
 * schema-light reads of a hand-shaped JSON document; jsonschema-go was tried
 * here first, but the pack never shows its document validation beyond
 * json.Unmarshal into a *jsonschema.Schema value (see DESIGN.md), so
 * required-field checks are hand-rolled the way classloader.go's format
 * checker hand-rolls its own field-presence checks instead of delegating to
 * a schema library.
 */
package config

import (
	"fmt"

	"github.com/tidwall/gjson"

	"weave/classmeta"
)

// Loader parses a batch of mixin-configuration resource bundles, resolving
// "parent" references against configs already loaded on the same Loader (by
// their own resource name). A config whose document omits a field its
// parent sets inherits the parent's value, mirroring spec's "optional
// parent config" data model.
type Loader struct {
	loaded map[string]*classmeta.MixinConfig
}

func NewLoader() *Loader {
	return &Loader{loaded: map[string]*classmeta.MixinConfig{}}
}

// Load parses one mixin-configuration resource's raw JSON bytes into a
// classmeta.MixinConfig. name is the resource's own name (e.g.
// "example.mixins.json"), recorded on the result for diagnostics and used
// as the key a later config's "parent" field can reference.
func (l *Loader) Load(name string, jsonBytes []byte) (*classmeta.MixinConfig, error) {
	cfg, root, err := parse(name, jsonBytes)
	if err != nil {
		return nil, err
	}
	if parentName := root.Get("parent").String(); parentName != "" {
		parent, ok := l.loaded[parentName]
		if !ok {
			return nil, fmt.Errorf("config: %s: parent %q was not loaded before this config", name, parentName)
		}
		cfg.Parent = parent
		inheritFromParent(cfg, parent, root)
	}
	l.loaded[name] = cfg
	return cfg, nil
}

// Load parses one mixin-configuration resource with no parent-chain
// resolution available; a "parent" key in the document is an error, since a
// one-shot Load has no sibling configs to resolve it against. Use a Loader
// to parse several configs that reference each other.
func Load(name string, jsonBytes []byte) (*classmeta.MixinConfig, error) {
	return NewLoader().Load(name, jsonBytes)
}

func parse(name string, jsonBytes []byte) (*classmeta.MixinConfig, gjson.Result, error) {
	if !gjson.ValidBytes(jsonBytes) {
		return nil, gjson.Result{}, fmt.Errorf("config: %s: invalid JSON document", name)
	}
	root := gjson.ParseBytes(jsonBytes)

	if !root.Get("package").Exists() {
		return nil, gjson.Result{}, fmt.Errorf("config: %s: missing required field %q", name, "package")
	}
	if !root.Get("mixins").Exists() && !root.Get("client").Exists() && !root.Get("server").Exists() {
		return nil, gjson.Result{}, fmt.Errorf("config: %s: must declare at least one of %q, %q, %q", name, "mixins", "client", "server")
	}

	cfg := &classmeta.MixinConfig{
		Name:           name,
		Package:        root.Get("package").String(),
		MixinClasses:   stringSlice(root.Get("mixins")),
		ClientSide:     stringSlice(root.Get("client")),
		ServerSide:     stringSlice(root.Get("server")),
		Priority:       intOr(root.Get("priority"), 1000),
		VerboseLevel:   int(root.Get("verbose").Int()),
		RefMapResource: root.Get("refmap").String(),
		CompatLevel:    int(root.Get("compatibilityLevel").Int()),
		Required:       boolOr(root.Get("required"), true),
	}

	return cfg, root, nil
}

// inheritFromParent fills in the scalar settings cfg's own document left
// unset from parent: priority, verbose level, refmap, compat level and
// required. MixinClasses/ClientSide/ServerSide never inherit: every config
// declares its own mixin list.
func inheritFromParent(cfg, parent *classmeta.MixinConfig, root gjson.Result) {
	if !root.Get("priority").Exists() {
		cfg.Priority = parent.Priority
	}
	if !root.Get("verbose").Exists() {
		cfg.VerboseLevel = parent.VerboseLevel
	}
	if !root.Get("refmap").Exists() {
		cfg.RefMapResource = parent.RefMapResource
	}
	if !root.Get("compatibilityLevel").Exists() {
		cfg.CompatLevel = parent.CompatLevel
	}
	if !root.Get("required").Exists() {
		cfg.Required = parent.Required
	}
}

// QualifiedMixinClasses returns every mixin class this config declares
// (mixins plus client- and server-side entries), each prefixed with the
// config's package so it matches the binary name classmeta caches under.
func QualifiedMixinClasses(cfg *classmeta.MixinConfig) []string {
	var out []string
	seen := map[string]bool{}
	add := func(names []string) {
		for _, n := range names {
			q := qualify(cfg.Package, n)
			if !seen[q] {
				seen[q] = true
				out = append(out, q)
			}
		}
	}
	add(cfg.MixinClasses)
	add(cfg.ClientSide)
	add(cfg.ServerSide)
	return out
}

func qualify(pkg, cls string) string {
	if pkg == "" {
		return cls
	}
	return pkg + "." + cls
}

func stringSlice(r gjson.Result) []string {
	if !r.Exists() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

func intOr(r gjson.Result, fallback int) int {
	if !r.Exists() {
		return fallback
	}
	return int(r.Int())
}

func boolOr(r gjson.Result, fallback bool) bool {
	if !r.Exists() {
		return fallback
	}
	return r.Bool()
}
