package mixerr

import (
	"errors"
	"strings"
	"testing"
)

func TestNewTargetNotFoundFieldsAndString(t *testing.T) {
	err := NewTargetNotFound("com/example/MyMixin", "com/example/Target")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != TargetNotFound {
		t.Fatalf("unexpected kind: %s", e.Kind)
	}
	if e.Mixin != "com/example/MyMixin" || e.Target != "com/example/Target" {
		t.Fatalf("unexpected fields: %+v", e)
	}
	s := err.Error()
	if !strings.Contains(s, "TargetNotFound") || !strings.Contains(s, "mixin=com/example/MyMixin") {
		t.Fatalf("unexpected error string: %q", s)
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := NewMergeConflict("Mixin", "Target", "greet()V")
	if !Is(err, MergeConflict) {
		t.Fatal("expected Is to match MergeConflict")
	}
	if Is(err, ShadowUnresolved) {
		t.Fatal("expected Is to reject a different kind")
	}
}

func TestIsReturnsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), TargetNotFound) {
		t.Fatal("expected Is to return false for a non-mixerr error")
	}
}

func TestApplicatorFailureWrapsCause(t *testing.T) {
	cause := errors.New("underlying boom")
	err := NewApplicatorFailure("Mixin", "Target", cause)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the underlying cause")
	}
	if !strings.Contains(err.Error(), "underlying boom") {
		t.Fatalf("expected message to include cause text, got %q", err.Error())
	}
}

func TestClassLoadFailureWithoutCause(t *testing.T) {
	err := NewClassLoadFailure("com/example/Target", nil)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != ClassLoadFailure || e.Target != "com/example/Target" {
		t.Fatalf("unexpected fields: %+v", e)
	}
}

func TestInjectionNotMatchedIncludesCounts(t *testing.T) {
	err := NewInjectionNotMatched("Mixin", "Target", "greet()V", 1, 3)
	if !strings.Contains(err.Error(), "expected 1 match(es), found 3") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestSyntheticCollisionRecordsNameAsMember(t *testing.T) {
	err := NewSyntheticCollision("com/example/MixinArgs$1")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != SyntheticCollision || e.Member != "com/example/MixinArgs$1" {
		t.Fatalf("unexpected fields: %+v", e)
	}
}

func TestFinalFieldWriteNamesFieldAndIndex(t *testing.T) {
	err := NewFinalFieldWrite("Mixin", "Target", "count", 4)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != FinalFieldWrite || e.Member != "count" {
		t.Fatalf("unexpected fields: %+v", e)
	}
	if !strings.Contains(err.Error(), "instruction 4") {
		t.Fatalf("expected message to include the instruction index, got %q", err.Error())
	}
}

func TestKindStringUnknown(t *testing.T) {
	var k Kind = 99
	if k.String() != "Unknown" {
		t.Fatalf("expected Unknown for an out-of-range kind, got %q", k.String())
	}
}
