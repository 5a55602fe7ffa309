// Package errwrap contains the constant-error and violation-batching
// helpers shared by the core packages.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
)

// ConstError is a constant error type that implements the error interface,
// used throughout the core for stable, comparable sentinel errors (the
// external error codes in spec §6). Mirrors lang/interfaces.Error.
type ConstError string

// Error fulfills the error interface for ConstError.
func (e ConstError) Error() string { return string(e) }

// Violation tags an accumulated failure with the name of whichever
// constraint, edge rule, or schema check produced it, so a batch collected
// across an accept pass can be inspected by source instead of grepping
// error text for it.
type Violation struct {
	Source string
	Err    error
}

// Error fulfills the error interface for Violation.
func (v Violation) Error() string { return v.Source + ": " + v.Err.Error() }

// Unwrap exposes the underlying error to errors.As/errors.Is.
func (v Violation) Unwrap() error { return v.Err }

// Append tags err with source and accumulates it onto reterr. A nil err is
// a no-op. A nil reterr starts a fresh batch and comes back as a bare
// Violation, so the common single-violation case (the only violation from
// a whole accept pass) surfaces its concrete type directly instead of
// being boxed in a multierror of one.
func Append(reterr error, source string, err error) error {
	if err == nil {
		return reterr
	}
	tagged := Violation{Source: source, Err: err}
	if reterr == nil {
		return tagged
	}
	return multierror.Append(reterr, tagged)
}
