package compress_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-db/hangar/compress"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte(""),
		[]byte("a"),
		bytes.Repeat([]byte{1, 2, 3, 4}, 1000),
		[]byte(`{"schema_dtype":5,"schema_max_shape":[4]}`),
	}
	for _, c := range cases {
		out, err := compress.Compress(c)
		require.NoError(t, err)

		back, err := compress.Decompress(out)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(c, back), "round trip of %q gave %q", c, back)
	}
}

func TestPackUnpackKVListRoundTrip(t *testing.T) {
	pairs := []compress.KV{
		{Key: []byte("a:ds1:s0"), Value: []byte("deadbeef")},
		{Key: []byte("s:ds1"), Value: []byte(`{"schema_dtype":5}`)},
		{Key: []byte("a:ds1"), Value: []byte("1")},
		{Key: []byte("empty"), Value: nil},
	}
	packed := compress.PackKVList(pairs)
	back, err := compress.UnpackKVList(packed)
	require.NoError(t, err)
	require.Len(t, back, len(pairs))
	for i := range pairs {
		assert.Equal(t, pairs[i].Key, back[i].Key)
		assert.Equal(t, pairs[i].Value, back[i].Value)
	}
}

func TestUnpackKVListRejectsMalformed(t *testing.T) {
	_, err := compress.UnpackKVList([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestCompressedPackedKVListRoundTrip(t *testing.T) {
	pairs := []compress.KV{{Key: []byte("k"), Value: []byte("v")}}
	packed := compress.PackKVList(pairs)
	compressed, err := compress.Compress(packed)
	require.NoError(t, err)
	decompressed, err := compress.Decompress(compressed)
	require.NoError(t, err)
	back, err := compress.UnpackKVList(decompressed)
	require.NoError(t, err)
	assert.Equal(t, pairs, back)
}
