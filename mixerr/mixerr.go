/*
 * weave - a class-file mixin engine
 * Grounded on classloader/classloader.go's cfe() helper: every constructor
 * here records the caller's file/line the same way and logs through trace
 * before returning, generalized from the teacher's single "Class Format
 * Error" string into a typed taxonomy of observable failure kinds.
 */
package mixerr

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"weave/trace"
)

// Kind enumerates the error taxonomy, by observable kind rather than type name.
type Kind int

const (
	InvalidSelector Kind = iota
	InvalidInjection
	TargetNotFound
	ConstraintViolation
	MergeConflict
	ShadowUnresolved
	ApplicatorFailure
	InjectionNotMatched
	SyntheticCollision
	ClassLoadFailure
	FinalFieldWrite
)

func (k Kind) String() string {
	switch k {
	case InvalidSelector:
		return "InvalidSelector"
	case InvalidInjection:
		return "InvalidInjection"
	case TargetNotFound:
		return "TargetNotFound"
	case ConstraintViolation:
		return "ConstraintViolation"
	case MergeConflict:
		return "MergeConflict"
	case ShadowUnresolved:
		return "ShadowUnresolved"
	case ApplicatorFailure:
		return "ApplicatorFailure"
	case InjectionNotMatched:
		return "InjectionNotMatched"
	case SyntheticCollision:
		return "SyntheticCollision"
	case ClassLoadFailure:
		return "ClassLoadFailure"
	case FinalFieldWrite:
		return "FinalFieldWrite"
	default:
		return "Unknown"
	}
}

// Error is weave's typed error: a Kind plus the mixin/target/member it
// concerns, so callers can errors.As into it instead of string-matching.
type Error struct {
	Kind       Kind
	Mixin      string
	Target     string
	Member     string
	Msg        string
	Location   string
	underlying error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Mixin != "" {
		s += " mixin=" + e.Mixin
	}
	if e.Target != "" {
		s += " target=" + e.Target
	}
	if e.Member != "" {
		s += " member=" + e.Member
	}
	if e.Location != "" {
		s += " (" + e.Location + ")"
	}
	return s
}

func (e *Error) Unwrap() error { return e.underlying }

func caller() string {
	pc, _, _, ok := runtime.Caller(3)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	fileName, fileLine := fn.FileLine(pc)
	return filepath.Base(fileName) + ":" + strconv.Itoa(fileLine)
}

func new(k Kind, mixin, target, member, msg string, cause error) *Error {
	e := &Error{
		Kind: k, Mixin: mixin, Target: target, Member: member,
		Msg: msg, Location: caller(), underlying: cause,
	}
	trace.Error(e.Error())
	return e
}

func NewInvalidSelector(input, reason string) error {
	return new(InvalidSelector, "", "", input, reason, nil)
}

func NewInvalidInjection(mixin, target, member, reason string) error {
	return new(InvalidInjection, mixin, target, member, reason, nil)
}

func NewTargetNotFound(mixin, target string) error {
	return new(TargetNotFound, mixin, target, "", "declared target class is missing", nil)
}

func NewConstraintViolation(mixin, target, reason string) error {
	return new(ConstraintViolation, mixin, target, "", reason, nil)
}

func NewMergeConflict(mixin, target, member string) error {
	return new(MergeConflict, mixin, target, member, "conflicting non-unique merge at equal priority", nil)
}

func NewShadowUnresolved(mixin, target, member string) error {
	return new(ShadowUnresolved, mixin, target, member, "@Shadow member not found in target hierarchy", nil)
}

func NewApplicatorFailure(mixin, target string, cause error) error {
	msg := "unrecoverable error during mixin application"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return new(ApplicatorFailure, mixin, target, "", msg, cause)
}

func NewInjectionNotMatched(mixin, target, member string, expected, actual int) error {
	msg := fmt.Sprintf("expected %d match(es), found %d", expected, actual)
	return new(InjectionNotMatched, mixin, target, member, msg, nil)
}

func NewSyntheticCollision(name string) error {
	return new(SyntheticCollision, "", "", name, "two producers registered the same synthetic class name", nil)
}

// NewFinalFieldWrite reports a mixin method body writing to a field the same
// mixin shadows as @Final without @Mutable, naming the offending write's
// instruction index within the mixin method's own code.
func NewFinalFieldWrite(mixin, target, field string, insnIndex int) error {
	msg := fmt.Sprintf("write to @Final shadow field at instruction %d", insnIndex)
	return new(FinalFieldWrite, mixin, target, field, msg, nil)
}

func NewClassLoadFailure(target string, cause error) error {
	msg := "external class provider could not load the class"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return new(ClassLoadFailure, "", target, "", msg, cause)
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == k
	}
	return false
}

// as is a tiny local errors.As to avoid importing errors just for this.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
