package errwrap

import (
	"errors"
	"testing"
)

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestAppendNilNilReturnsNil(t *testing.T) {
	if got := Append(nil, "source", nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestAppendSingleErrorSurfacesConcreteType(t *testing.T) {
	err := Append(nil, "my_constraint", fakeErr("boom"))
	var v Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected a Violation, got %T: %v", err, err)
	}
	if v.Source != "my_constraint" {
		t.Errorf("got source %q, want my_constraint", v.Source)
	}
	var fe fakeErr
	if !errors.As(err, &fe) {
		t.Fatalf("expected the original error to unwrap out, got %v", err)
	}
}

func TestAppendBatchesMultipleViolations(t *testing.T) {
	var err error
	err = Append(err, "a", fakeErr("first"))
	err = Append(err, "b", fakeErr("second"))
	if err == nil {
		t.Fatal("expected a batched error")
	}
	if err.Error() == "" {
		t.Error("expected a non-empty batched error message")
	}
}

func TestAppendWithNilErrIsNoOp(t *testing.T) {
	base := Append(nil, "a", fakeErr("first"))
	got := Append(base, "b", nil)
	if got != base {
		t.Errorf("appending a nil error should return the batch unchanged")
	}
}
