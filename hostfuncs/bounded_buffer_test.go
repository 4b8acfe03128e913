package hostfuncs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedBuffer_UnderLimit(t *testing.T) {
	buf := NewBoundedBuffer(100)

	n, err := buf.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
	assert.False(t, buf.Truncated)
}

func TestBoundedBuffer_TruncatesAtLimit(t *testing.T) {
	buf := NewBoundedBuffer(10)

	n, err := buf.Write(bytes.Repeat([]byte("a"), 25))
	require.NoError(t, err)
	assert.Equal(t, 25, n, "reports full write to satisfy io.Writer")
	assert.Equal(t, 10, buf.Len())
	assert.True(t, buf.Truncated)

	// Further writes are discarded entirely.
	n, err = buf.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 10, buf.Len())
}

func TestBoundedBuffer_ExactLimit(t *testing.T) {
	buf := NewBoundedBuffer(4)

	_, err := buf.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.False(t, buf.Truncated, "filling exactly is not truncation")
}

func TestBoundedBuffer_Reset(t *testing.T) {
	buf := NewBoundedBuffer(2)
	_, _ = buf.Write([]byte("abc"))
	require.True(t, buf.Truncated)

	buf.Reset()
	assert.Equal(t, 0, buf.Len())
	assert.False(t, buf.Truncated)
}
