package classmeta

// CompatFloorSatisfied reports whether envLevel (the runtime's declared
// env.compatLevel) meets or exceeds floor (a mixin or config's declared
// compatibility-level requirement). A floor of 0 means "no requirement
// declared" and is always satisfied.
func CompatFloorSatisfied(floor, envLevel int) bool {
	if floor <= 0 {
		return true
	}
	return envLevel >= floor
}
