// Package herrors defines the repository's error taxonomy as typed
// sentinel kinds (§7), so callers can branch on error identity with
// errors.Is/Kind.Is rather than string matching.
package herrors

import errkind "gopkg.in/src-d/go-errors.v1"

var (
	// NotFound: branch, commit, digest, schema, or metadata absent on this side.
	NotFound = errkind.NewKind("not found: %s")

	// AlreadyExists: commit, schema, branch, or data digest already present;
	// an idempotent no-op, surfaced so callers can skip work.
	AlreadyExists = errkind.NewKind("already exists: %s")

	// WriterLockHeld: another writer owns the lock.
	WriterLockHeld = errkind.NewKind("writer lock held: %s")

	// InvalidName: branch or dataset name violates the character class.
	InvalidName = errkind.NewKind("invalid name: %s")

	// IncompatibleRepo: on-disk version does not match code.
	IncompatibleRepo = errkind.NewKind("incompatible repository version: %s")

	// DigestMismatch: received payload digest does not match declared.
	DigestMismatch = errkind.NewKind("digest mismatch: %s")

	// MergeConflict: three-way merge has divergent edits on the same key.
	// The formatted argument is always the conflicting record key.
	MergeConflict = errkind.NewKind("merge conflict on key: %s")

	// ResourceExhausted: server-side payload-size budget exceeded.
	ResourceExhausted = errkind.NewKind("resource exhausted: %s")

	// MalformedRecord: a record cannot be decoded.
	MalformedRecord = errkind.NewKind("malformed record: %s")

	// Transport: underlying network failure.
	Transport = errkind.NewKind("transport error: %s")
)

// Code is the flat numeric wire error code carried in every sync reply
// envelope (§4.J).
type Code int

const (
	CodeOK                Code = 0
	CodeNotFound           Code = 5
	CodeAlreadyExists      Code = 6
	CodeResourceExhausted  Code = 8
	CodeDataLoss           Code = 15
)

// CodeOf maps an error produced by one of this package's Kinds to its wire
// code. Unknown errors map to CodeDataLoss, the most conservative choice
// (treated as non-retryable data corruption rather than silently OK).
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case NotFound.Is(err):
		return CodeNotFound
	case AlreadyExists.Is(err):
		return CodeAlreadyExists
	case ResourceExhausted.Is(err):
		return CodeResourceExhausted
	case DigestMismatch.Is(err), MalformedRecord.Is(err):
		return CodeDataLoss
	default:
		return CodeDataLoss
	}
}
