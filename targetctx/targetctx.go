/*
 * weave - a class-file mixin engine
 *
 * Package targetctx implements the target-class context: the per-target
 * orchestration record that holds one target's assigned mixins in
 * priority order and drives the applicator across all of them. Grounded
 * on jvm/initializerBlock.go's runInitializationBlock, which assembles an
 * ordered worklist (superclasses bottom-up) and walks it once, propagating
 * the first error; targetctx does the analogous thing for mixins
 * (priority ascending, source order breaking ties) instead of
 * superclasses.
 */
package targetctx

import (
	"sort"

	"weave/apply"
	"weave/bytecode"
	"weave/classmeta"
)

// MixinContext is one mixin's binding to this target: its metadata record
// plus the resolved body the applicator consumes.
type MixinContext struct {
	Meta *classmeta.MixinMeta
	Body *apply.MixinBody
}

// Context is the per-target-class orchestration record: the target tree,
// its ordered mixin contexts, and the owner side-table threaded across
// every Apply call so later mixins can see who claimed which member.
type Context struct {
	Tree   *bytecode.Class
	Mixins []*MixinContext
	owners apply.Owners
}

// New builds a Context for tree from the given mixin metas/bodies, sorted
// per I2: priority ascending, then stable source order.
func New(tree *bytecode.Class, entries []*MixinContext) *Context {
	sorted := append([]*MixinContext{}, entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Meta, sorted[j].Meta
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.SourceOrder < b.SourceOrder
	})
	return &Context{Tree: tree, Mixins: sorted, owners: apply.Owners{}}
}

// ApplyAll runs applicator against every mixin context in order, stopping
// on the first error (a mixin application failure is fatal to the whole
// target, per the applicator's own per-call contract).
func (c *Context) ApplyAll(applicator *apply.Applicator) ([]*apply.Report, error) {
	reports := make([]*apply.Report, 0, len(c.Mixins))
	for _, mc := range c.Mixins {
		var report *apply.Report
		var err error
		if mc.Meta.InterfaceOnly {
			err = applicator.ApplyInterface(c.Tree, mc.Body)
		} else {
			report, err = applicator.Apply(c.Tree, mc.Body, c.owners)
		}
		if err != nil {
			return reports, err
		}
		if report != nil {
			reports = append(reports, report)
		}
	}
	return reports, nil
}
