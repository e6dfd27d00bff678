// Package errs defines the closed set of error kinds shared by every plane
// (registry, git driver, filesystem layout) and consumed by the lifecycle
// manager and CLI to pick retry/exit-code behavior.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of error classifications.
type Kind string

const (
	NotFound        Kind = "not_found"
	NameInUse       Kind = "name_in_use"
	PathExists      Kind = "path_exists"
	BranchConflict  Kind = "branch_conflict"
	WorktreeConflict Kind = "worktree_conflict"
	InvalidInput    Kind = "invalid_input"
	BadRepo         Kind = "bad_repo"
	RefNotFound     Kind = "ref_not_found"
	TrunkMissing    Kind = "trunk_missing"
	Corrupted       Kind = "corrupted"
	Transient       Kind = "transient"
	Cancelled       Kind = "cancelled"
	PartialSuccess  Kind = "partial_success"
)

// Plane names the subsystem an error originated in, used to compose
// actionable messages ("git: worktree already exists").
type Plane string

const (
	PlaneRegistry   Plane = "registry"
	PlaneGit        Plane = "git"
	PlaneFilesystem Plane = "filesystem"
	PlaneInput      Plane = "input"
)

// Error is the single error type crossing component boundaries. It always
// carries a Kind so callers can branch with errors.As + Kind() instead of
// string matching.
type Error struct {
	kind    Kind
	plane   Plane
	message string
	err     error
}

func New(kind Kind, plane Plane, message string) *Error {
	return &Error{kind: kind, plane: plane, message: message}
}

func Wrap(kind Kind, plane Plane, message string, err error) *Error {
	return &Error{kind: kind, plane: plane, message: message, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.plane, e.message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.plane, e.message)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Plane() Plane { return e.plane }

// Is lets errors.Is(err, errs.KindNotFound) work by comparing against a bare
// Kind sentinel value wrapped in an *Error with no message.
func (e *Error) Is(target error) bool {
	if k, ok := target.(*Error); ok {
		return e.kind == k.kind
	}
	return false
}

// Sentinel kind-only errors for errors.Is comparisons, e.g.
// errors.Is(err, errs.KindNotFound).
var (
	KindNotFound         = &Error{kind: NotFound}
	KindNameInUse        = &Error{kind: NameInUse}
	KindPathExists       = &Error{kind: PathExists}
	KindBranchConflict   = &Error{kind: BranchConflict}
	KindWorktreeConflict = &Error{kind: WorktreeConflict}
	KindInvalidInput     = &Error{kind: InvalidInput}
	KindBadRepo          = &Error{kind: BadRepo}
	KindRefNotFound      = &Error{kind: RefNotFound}
	KindTrunkMissing     = &Error{kind: TrunkMissing}
	KindCorrupted        = &Error{kind: Corrupted}
	KindTransient        = &Error{kind: Transient}
	KindCancelled        = &Error{kind: Cancelled}
)

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

// ExitCode maps a Kind to the CLI exit-code contract: 0 success, 1 expected
// failure, 2 invalid input, 3 internal error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 3
	}
	switch kind {
	case InvalidInput:
		return 2
	case NotFound, NameInUse, PathExists, BranchConflict, WorktreeConflict,
		BadRepo, RefNotFound, TrunkMissing, Cancelled, PartialSuccess:
		return 1
	default:
		return 3
	}
}
