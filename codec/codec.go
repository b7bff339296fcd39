// Package codec implements the deterministic record key/value encoders and
// decoders of spec.md §4.A. Every function here is pure: no I/O, no
// randomness, so identical inputs always produce identical bytes — the
// property the commit engine depends on to make a digest reproducible from
// its ref list (spec.md I3).
package codec

import (
	"strconv"
	"strings"

	"github.com/hangar-db/hangar/internal/herrors"
	"github.com/hangar-db/hangar/internal/keys"
)

// --- Head pointer ---------------------------------------------------------

// HeadKey returns the fixed key of the writer's HEAD branch pointer.
func HeadKey() []byte { return []byte(keys.Head) }

// EncodeHeadValue encodes the branch-name value stored under HeadKey.
func EncodeHeadValue(branchName string) []byte {
	return []byte(keys.Branch + branchName)
}

// DecodeHeadValue extracts the branch name from a HeadKey value.
func DecodeHeadValue(v []byte) (string, error) {
	s := string(v)
	if !strings.HasPrefix(s, keys.Branch) {
		return "", herrors.MalformedRecord.New("head value missing branch prefix: %q", s)
	}
	return strings.TrimPrefix(s, keys.Branch), nil
}

// --- Branch head -----------------------------------------------------------

// EncodeBranchKey returns the key for a named branch head.
func EncodeBranchKey(name string) []byte {
	return []byte(keys.Branch + name)
}

// DecodeBranchKey extracts the branch name from a branch head key.
func DecodeBranchKey(k []byte) (string, error) {
	s := string(k)
	if !strings.HasPrefix(s, keys.Branch) {
		return "", herrors.MalformedRecord.New("not a branch key: %q", s)
	}
	return strings.TrimPrefix(s, keys.Branch), nil
}

// EncodeBranchValue/DecodeBranchValue: the branch head value is simply the
// commit digest's string form, stored raw.
func EncodeBranchValue(commitHash string) []byte { return []byte(commitHash) }
func DecodeBranchValue(v []byte) string          { return string(v) }

// --- Writer lock -------------------------------------------------------------

func WriterLockKey() []byte { return []byte(keys.WLock) }

func WriterLockSentinelValue() []byte { return []byte(keys.WLockSentinel) }

func WriterLockForceReleaseSentinel() string { return keys.WLockForceRelease }

func EncodeWriterLockToken(token string) []byte { return []byte(token) }

func DecodeWriterLockToken(v []byte) string { return string(v) }

// --- Remote ------------------------------------------------------------------

func EncodeRemoteKey(name string) []byte {
	return []byte(keys.Remote + name)
}

func DecodeRemoteKey(k []byte) (string, error) {
	s := string(k)
	if !strings.HasPrefix(s, keys.Remote) {
		return "", herrors.MalformedRecord.New("not a remote key: %q", s)
	}
	return strings.TrimPrefix(s, keys.Remote), nil
}

func EncodeRemoteValue(address string) []byte { return []byte(address) }
func DecodeRemoteValue(v []byte) string        { return string(v) }

// --- Dataset schema ------------------------------------------------------------

// EncodeSchemaKey returns the "s:" + dataset-name key.
func EncodeSchemaKey(dataset string) []byte {
	return []byte(keys.Dataset + dataset)
}

// DecodeSchemaKey extracts the dataset name from a schema record key. It
// rejects the bare "s:" prefix key (the hash->schema-blob record shares the
// same prefix byte but a digest suffix, disambiguated by caller context).
func DecodeSchemaKey(k []byte) (string, error) {
	s := string(k)
	if !strings.HasPrefix(s, keys.Dataset) || s == keys.Dataset {
		return "", herrors.MalformedRecord.New("not a dataset schema key: %q", s)
	}
	return strings.TrimPrefix(s, keys.Dataset), nil
}

// --- Dataset record (sample) -----------------------------------------------

// EncodeDataKey returns the "a:" + dataset + ":" + sample key.
func EncodeDataKey(dataset, sample string) []byte {
	return []byte(keys.Array + dataset + keys.SepKey + sample)
}

// DecodeDataKey splits a data record key back into (dataset, sample).
func DecodeDataKey(k []byte) (dataset, sample string, err error) {
	s := string(k)
	if !strings.HasPrefix(s, keys.Array) {
		return "", "", herrors.MalformedRecord.New("not a data record key: %q", s)
	}
	rest := strings.TrimPrefix(s, keys.Array)
	parts := strings.SplitN(rest, keys.SepKey, 2)
	if len(parts) != 2 {
		return "", "", herrors.MalformedRecord.New("data record key missing sample name: %q", s)
	}
	return parts[0], parts[1], nil
}

// EncodeDataValue/DecodeDataValue: the sample's value is the digest of its
// bytes, stored as its hex string.
func EncodeDataValue(digestHex string) []byte { return []byte(digestHex) }
func DecodeDataValue(v []byte) string         { return string(v) }

// --- Dataset count -----------------------------------------------------------

// EncodeDatasetCountKey returns the "a:" + dataset-name key (no trailing
// sample component) holding the per-dataset record count.
func EncodeDatasetCountKey(dataset string) []byte {
	return []byte(keys.Array + dataset)
}

// DecodeDatasetCountKey extracts the dataset name; it rejects the
// bare total-count key ("a:").
func DecodeDatasetCountKey(k []byte) (string, error) {
	s := string(k)
	if !strings.HasPrefix(s, keys.Array) || s == keys.Array || strings.Contains(strings.TrimPrefix(s, keys.Array), keys.SepKey) {
		return "", herrors.MalformedRecord.New("not a dataset count key: %q", s)
	}
	return strings.TrimPrefix(s, keys.Array), nil
}

func EncodeCount(n int) []byte { return []byte(strconv.Itoa(n)) }

func DecodeCount(v []byte) (int, error) {
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, herrors.MalformedRecord.New("not an integer count: %q", string(v))
	}
	return n, nil
}

// --- Total dataset count ------------------------------------------------------

func TotalDatasetCountKey() []byte { return []byte(keys.Array) }

// --- Metadata record -----------------------------------------------------------

func EncodeMetaKey(name string) []byte {
	return []byte(keys.Meta + name)
}

func DecodeMetaKey(k []byte) (string, error) {
	s := string(k)
	if !strings.HasPrefix(s, keys.Meta) || s == keys.Meta {
		return "", herrors.MalformedRecord.New("not a metadata key: %q", s)
	}
	return strings.TrimPrefix(s, keys.Meta), nil
}

func EncodeMetaValue(digestHex string) []byte { return []byte(digestHex) }
func DecodeMetaValue(v []byte) string         { return string(v) }

// --- Metadata count ------------------------------------------------------------

func TotalMetaCountKey() []byte { return []byte(keys.Meta) }

// --- Hash -> location/schema-blob/metadata-value -------------------------------

// EncodeHashKey returns the "h:" + digest key used by the content store for
// data locations, schema blobs and raw metadata values alike (spec.md §3
// distinguishes these only by which physical store they live in, not by
// key shape).
func EncodeHashKey(digestHex string) []byte {
	return []byte(keys.HashPref + digestHex)
}

func DecodeHashKey(k []byte) (string, error) {
	s := string(k)
	if !strings.HasPrefix(s, keys.HashPref) {
		return "", herrors.MalformedRecord.New("not a hash key: %q", s)
	}
	return strings.TrimPrefix(s, keys.HashPref), nil
}

// --- Commit parent -------------------------------------------------------------

// EncodeCommitParentKey returns the bare commit-digest key holding parent
// linkage.
func EncodeCommitParentKey(commitHash string) []byte { return []byte(commitHash) }

// EncodeCommitParentValue encodes either a single-parent ("master") or
// merge-commit ("master << dev") linkage.
func EncodeCommitParentValue(parent, mergeParent string) []byte {
	if mergeParent == "" {
		return []byte(parent)
	}
	return []byte(parent + keys.SepCmt + mergeParent)
}

// DecodeCommitParentValue splits a parent linkage value back into
// (parent, mergeParent); mergeParent is "" for a non-merge commit, and
// parent is "" for the root commit.
func DecodeCommitParentValue(v []byte) (parent, mergeParent string) {
	s := string(v)
	if s == "" {
		return "", ""
	}
	if idx := strings.Index(s, keys.SepCmt); idx >= 0 {
		return s[:idx], s[idx+len(keys.SepCmt):]
	}
	return s, ""
}

// --- Commit ref / spec ----------------------------------------------------------

func EncodeCommitRefKey(commitHash string) []byte {
	return []byte(commitHash + keys.RefSuffix)
}

func EncodeCommitSpecKey(commitHash string) []byte {
	return []byte(commitHash + keys.SpecSuffix)
}

// IsCommitRefKey / IsCommitSpecKey let callers distinguish commit metadata
// keys from plain parent-linkage keys while iterating the ref store.
func IsCommitRefKey(k []byte) bool {
	return strings.HasSuffix(string(k), keys.RefSuffix)
}

func IsCommitSpecKey(k []byte) bool {
	return strings.HasSuffix(string(k), keys.SpecSuffix)
}

// CommitHashFromRefKey / CommitHashFromSpecKey strip the suffix back off.
func CommitHashFromRefKey(k []byte) string {
	return strings.TrimSuffix(string(k), keys.RefSuffix)
}

func CommitHashFromSpecKey(k []byte) string {
	return strings.TrimSuffix(string(k), keys.SpecSuffix)
}
