package contenthash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIsPureFunctionOfContent(t *testing.T) {
	a := Chunk([]byte("export const x = 1;\n"))
	b := Chunk([]byte("export const x = 1;\n"))
	c := Chunk([]byte("export const x = 2;\n"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), 64)
	assert.Len(t, a.Short(), 16)
}

func TestDomainsAreSeparated(t *testing.T) {
	data := []byte("same bytes")
	assetSum, n, err := Asset(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.NotEqual(t, Chunk(data), assetSum)
}
