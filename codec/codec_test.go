package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-db/hangar/codec"
)

func TestHeadValueRoundTrip(t *testing.T) {
	v := codec.EncodeHeadValue("master")
	name, err := codec.DecodeHeadValue(v)
	require.NoError(t, err)
	assert.Equal(t, "master", name)
}

func TestBranchKeyRoundTrip(t *testing.T) {
	k := codec.EncodeBranchKey("feature/x")
	name, err := codec.DecodeBranchKey(k)
	require.NoError(t, err)
	assert.Equal(t, "feature/x", name)
}

func TestDataKeyRoundTrip(t *testing.T) {
	k := codec.EncodeDataKey("ds1", "s0")
	ds, sample, err := codec.DecodeDataKey(k)
	require.NoError(t, err)
	assert.Equal(t, "ds1", ds)
	assert.Equal(t, "s0", sample)
}

func TestDataKeyRoundTripWithColonInSampleName(t *testing.T) {
	k := codec.EncodeDataKey("ds1", "s0:extra")
	ds, sample, err := codec.DecodeDataKey(k)
	require.NoError(t, err)
	assert.Equal(t, "ds1", ds)
	assert.Equal(t, "s0:extra", sample)
}

func TestSchemaKeyRoundTrip(t *testing.T) {
	k := codec.EncodeSchemaKey("ds1")
	name, err := codec.DecodeSchemaKey(k)
	require.NoError(t, err)
	assert.Equal(t, "ds1", name)
}

func TestDatasetCountKeyRejectsTotalKey(t *testing.T) {
	_, err := codec.DecodeDatasetCountKey(codec.TotalDatasetCountKey())
	assert.Error(t, err)
}

func TestDatasetCountKeyRoundTrip(t *testing.T) {
	k := codec.EncodeDatasetCountKey("ds1")
	name, err := codec.DecodeDatasetCountKey(k)
	require.NoError(t, err)
	assert.Equal(t, "ds1", name)
}

func TestCountRoundTrip(t *testing.T) {
	v := codec.EncodeCount(42)
	n, err := codec.DecodeCount(v)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestDecodeCountRejectsNonInteger(t *testing.T) {
	_, err := codec.DecodeCount([]byte("not-a-number"))
	assert.Error(t, err)
}

func TestMetaKeyRoundTrip(t *testing.T) {
	k := codec.EncodeMetaKey("author")
	name, err := codec.DecodeMetaKey(k)
	require.NoError(t, err)
	assert.Equal(t, "author", name)
}

func TestHashKeyRoundTrip(t *testing.T) {
	k := codec.EncodeHashKey("deadbeef")
	digest, err := codec.DecodeHashKey(k)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", digest)
}

func TestCommitParentValueSingleParent(t *testing.T) {
	v := codec.EncodeCommitParentValue("c0", "")
	parent, merge := codec.DecodeCommitParentValue(v)
	assert.Equal(t, "c0", parent)
	assert.Equal(t, "", merge)
}

func TestCommitParentValueMerge(t *testing.T) {
	v := codec.EncodeCommitParentValue("master1", "dev1")
	parent, merge := codec.DecodeCommitParentValue(v)
	assert.Equal(t, "master1", parent)
	assert.Equal(t, "dev1", merge)
}

func TestCommitParentValueRoot(t *testing.T) {
	v := codec.EncodeCommitParentValue("", "")
	parent, merge := codec.DecodeCommitParentValue(v)
	assert.Equal(t, "", parent)
	assert.Equal(t, "", merge)
}

func TestCommitRefSpecKeyHelpers(t *testing.T) {
	refKey := codec.EncodeCommitRefKey("c0")
	assert.True(t, codec.IsCommitRefKey(refKey))
	assert.False(t, codec.IsCommitSpecKey(refKey))
	assert.Equal(t, "c0", codec.CommitHashFromRefKey(refKey))

	specKey := codec.EncodeCommitSpecKey("c0")
	assert.True(t, codec.IsCommitSpecKey(specKey))
	assert.Equal(t, "c0", codec.CommitHashFromSpecKey(specKey))
}

func TestCommitSpecMarshalRoundTrip(t *testing.T) {
	s := codec.CommitSpec{Time: 1234, Message: "m0", User: "alice", Email: "a@x"}
	b, err := codec.MarshalCommitSpec(s)
	require.NoError(t, err)
	back, err := codec.UnmarshalCommitSpec(b)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
