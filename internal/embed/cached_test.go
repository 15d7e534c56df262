package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_Embed(t *testing.T) {
	fake := &fakeEmbedder{}
	c := NewCachedEmbedder(fake, 10)

	// First call misses, second hits
	a, err := c.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	b, err := c.Embed(context.Background(), "repeated query")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestCachedEmbedder_EmbedBatch(t *testing.T) {
	fake := &fakeEmbedder{}
	c := NewCachedEmbedder(fake, 10)

	// Given: one text already cached
	_, err := c.Embed(context.Background(), "cached")
	require.NoError(t, err)
	require.Equal(t, int32(1), fake.calls.Load())

	// When: a batch mixes cached and new texts
	vecs, err := c.EmbedBatch(context.Background(), []string{"cached", "new one", "new two"})

	// Then: only the uncached texts reach the provider
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int32(2), fake.calls.Load())

	// A fully cached batch makes no provider calls
	_, err = c.EmbedBatch(context.Background(), []string{"cached", "new one"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.calls.Load())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	fake := &fakeEmbedder{}
	c := NewCachedEmbedder(fake, 0) // zero size falls back to default

	assert.Equal(t, 3, c.Dimensions())
	assert.Equal(t, "fake", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	assert.Same(t, fake, c.Inner())
	assert.NoError(t, c.Close())
}
