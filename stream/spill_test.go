package stream_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/stream"
)

func TestChannel_SpillRoundTrip(t *testing.T) {
	ctx := context.Background()
	// Memory ceiling of 100 bytes inside a 10KB capacity: most chunks spill.
	ch := stream.NewChannel(10<<10, stream.WithSpill(t.TempDir(), 100))

	chunks := []entities.Chunk{
		{Payload: bytes.Repeat([]byte{0x00, 0xff, 0x7f}, 30), Sequence: 0, Metadata: map[string]string{"name": "first"}},
		{Payload: bytes.Repeat([]byte("spill"), 40), Sequence: 1},
		{Payload: []byte{}, Sequence: 2, Metadata: map[string]string{"empty": "yes"}},
		{Payload: bytes.Repeat([]byte{0xde, 0xad}, 100), Sequence: 3, Final: true},
	}

	for _, c := range chunks {
		require.NoError(t, ch.Send(ctx, c))
	}

	for _, want := range chunks {
		got, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.Sequence, got.Sequence)
		assert.Equal(t, want.Final, got.Final)
		assert.Equal(t, want.Metadata, got.Metadata)
		assert.True(t, bytes.Equal(want.Payload, got.Payload), "spilled payload must round-trip byte-identical")
	}
}

func TestChannel_SpillPreservesOrderAcrossStrategies(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(1<<20, stream.WithSpill(t.TempDir(), 64))

	// Interleave sends and receives so chunks alternate between the memory
	// queue and the spill file; order must hold throughout.
	const total = 50
	sent := 0
	received := 0
	payload := bytes.Repeat([]byte("z"), 48)

	for received < total {
		for sent < total && sent-received < 5 {
			c := entities.Chunk{Payload: payload, Sequence: uint64(sent), Final: sent == total-1}
			require.NoError(t, ch.Send(ctx, c))
			sent++
		}
		got, err := ch.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(received), got.Sequence)
		received++
	}
}

func TestChannel_SpillKeepsMemoryBelowCeiling(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ch := stream.NewChannel(1<<20, stream.WithSpill(dir, 128))

	payload := bytes.Repeat([]byte("m"), 100)
	for i := 0; i < 20; i++ {
		require.NoError(t, ch.Send(ctx, entities.Chunk{Payload: payload, Sequence: uint64(i)}))
	}

	// All 2000 bytes are buffered, far beyond the 128-byte memory ceiling.
	assert.Equal(t, 2000, ch.Buffered())

	for i := 0; i < 20; i++ {
		got, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), got.Sequence)
	}
	assert.Equal(t, 0, ch.Buffered())
}
