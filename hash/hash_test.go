package hash_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-db/hangar/hash"
)

// TestOfMatchesFixedVectors pins Of to the native 20-byte BLAKE2b digest
// (blake2b.New(20, nil), not a truncated Sum512), matching
// hashlib.blake2b(data, digest_size=20) in the reference server. A digest
// size is part of BLAKE2b's parameter block at initialization, so this is
// not the same as the first 20 bytes of a 512-bit sum.
func TestOfMatchesFixedVectors(t *testing.T) {
	cases := []struct {
		data string
		want string
	}{
		{"", "3345524abf6bbe1809449224b5972c41790b6cf2"},
		{"abc", "384264f676f39536840523f284921cdc68b6846b"},
		{"tensor bytes", "01f9022eab4ab0c05ff77231aaf9e2b90fc09654"},
	}
	for _, c := range cases {
		got := hash.Of([]byte(c.data)).String()
		assert.Equal(t, c.want, got, "Of(%q)", c.data)
	}
}

func TestOfIsDeterministic(t *testing.T) {
	a := hash.Of([]byte("tensor bytes"))
	b := hash.Of([]byte("tensor bytes"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, hash.Empty, a)
}

func TestOfDiffersOnDifferentInput(t *testing.T) {
	a := hash.Of([]byte("one"))
	b := hash.Of([]byte("two"))
	assert.NotEqual(t, a, b)
}

func TestStringParseRoundTrip(t *testing.T) {
	h := hash.Of([]byte("round trip me"))
	s := h.String()
	assert.Len(t, s, hash.ByteLen*2)

	parsed, err := hash.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseRejectsBadLength(t *testing.T) {
	_, err := hash.Parse("abcd")
	assert.ErrorIs(t, err, hash.ErrBadLength)
}

func TestParseRejectsBadHex(t *testing.T) {
	_, err := hash.Parse("not-hex-at-all-not-hex-at-all-xx")
	assert.Error(t, err)
}

func TestSorterOrdersLexicographically(t *testing.T) {
	hs := []hash.Hash{
		hash.Of([]byte("c")),
		hash.Of([]byte("a")),
		hash.Of([]byte("b")),
	}
	sort.Sort(hash.Sorter(hs))
	for i := 1; i < len(hs); i++ {
		assert.True(t, hash.Less(hs[i-1], hs[i]) || hs[i-1] == hs[i])
	}
}

func TestIsEmpty(t *testing.T) {
	var z hash.Hash
	assert.True(t, z.IsEmpty())
	assert.False(t, hash.Of([]byte("x")).IsEmpty())
}
