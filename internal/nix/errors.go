package nix

import (
	"errors"
	"fmt"
)

// Kind classifies dependency hash resolution failures.
type Kind int

const (
	// KindOther covers failures outside the build itself, such as being
	// unable to write the record. They abort the update.
	KindOther Kind = iota
	// KindHashMismatch means the build did not report a usable hash for
	// the placeholder.
	KindHashMismatch
	// KindBuildInvocation means nix could not run the build or the build
	// failed for a reason other than the placeholder.
	KindBuildInvocation
)

func (k Kind) String() string {
	switch k {
	case KindHashMismatch:
		return "hash mismatch"
	case KindBuildInvocation:
		return "build invocation"
	default:
		return "other"
	}
}

// Error is returned by Resolver.Resolve.
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolving %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindOther when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// IsExpected reports whether err is one of the failures the update
// workflow tolerates by leaving the placeholder hash in place.
func IsExpected(err error) bool {
	k := KindOf(err)
	return k == KindHashMismatch || k == KindBuildInvocation
}
