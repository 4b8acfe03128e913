package stream_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/errors"
	"github.com/warden-run/warden/ledger"
	"github.com/warden-run/warden/stream"
)

func chunk(seq uint64, payload string, final bool) entities.Chunk {
	return entities.Chunk{Payload: []byte(payload), Sequence: seq, Final: final}
}

func TestChannel_OrderedDelivery(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(1 << 16)

	require.NoError(t, ch.Send(ctx, chunk(0, "alpha", false)))
	require.NoError(t, ch.Send(ctx, chunk(1, "beta", false)))
	require.NoError(t, ch.Send(ctx, chunk(2, "gamma", true)))

	for i, want := range []string{"alpha", "beta", "gamma"} {
		got, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), got.Sequence)
		assert.Equal(t, want, string(got.Payload))
		assert.Equal(t, i == 2, got.Final)
	}

	// Final delivery is terminal.
	_, err := ch.Receive(ctx)
	assert.True(t, errors.IsStreamClosed(err))
}

func TestChannel_SendAfterFinalFails(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(1 << 16)

	require.NoError(t, ch.Send(ctx, chunk(0, "only", true)))
	err := ch.Send(ctx, chunk(1, "late", false))
	assert.True(t, errors.IsStreamClosed(err))
}

func TestChannel_SequenceGapOnSend(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(1 << 16)

	require.NoError(t, ch.Send(ctx, chunk(0, "a", false)))

	err := ch.Send(ctx, chunk(2, "skipped", false))
	var se *errors.StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.StreamSequenceGap, se.Kind)
	assert.Equal(t, uint64(1), se.Expected)
	assert.Equal(t, uint64(2), se.Got)

	// The gap closed the channel: everything fails afterwards.
	assert.Error(t, ch.Send(ctx, chunk(1, "b", false)))
}

func TestChannel_Backpressure(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(1000)

	payload := string(bytes.Repeat([]byte("x"), 300))
	for i := 0; i < 3; i++ {
		require.NoError(t, ch.Send(ctx, chunk(uint64(i), payload, false)))
	}
	assert.Equal(t, 900, ch.Buffered())

	// The fourth send does not fit and must suspend until the reader drains.
	fourthDone := make(chan error, 1)
	go func() {
		fourthDone <- ch.Send(ctx, chunk(3, payload, false))
	}()

	select {
	case err := <-fourthDone:
		t.Fatalf("send completed despite full buffer: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	got, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Sequence)

	select {
	case err := <-fourthDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not resume after reader drained")
	}

	assert.LessOrEqual(t, ch.Buffered(), 1000, "buffered bytes never exceed capacity")
}

func TestChannel_SendCancelledByContext(t *testing.T) {
	ch := stream.NewChannel(10)
	require.NoError(t, ch.Send(context.Background(), chunk(0, "0123456789", false)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ch.Send(ctx, chunk(1, "x", false))
	assert.True(t, errors.IsStreamCancelled(err))
}

func TestChannel_CloseDrainsThenReportsClosed(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(1 << 16)

	require.NoError(t, ch.Send(ctx, chunk(0, "buffered", false)))
	require.NoError(t, ch.Close())

	assert.True(t, errors.IsStreamClosed(ch.Send(ctx, chunk(1, "late", false))))

	// Pending receives drain already-buffered chunks before reporting Closed.
	got, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "buffered", string(got.Payload))

	_, err = ch.Receive(ctx)
	assert.True(t, errors.IsStreamClosed(err))
}

func TestChannel_CancelWakesSuspendedOperations(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(1 << 16)

	recvDone := make(chan error, 1)
	go func() {
		_, err := ch.Receive(ctx)
		recvDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ch.Cancel()

	select {
	case err := <-recvDone:
		assert.True(t, errors.IsStreamCancelled(err))
	case <-time.After(time.Second):
		t.Fatal("cancel did not wake the suspended receive")
	}

	assert.True(t, errors.IsStreamCancelled(ch.Send(ctx, chunk(0, "x", false))))
}

func TestChannel_LedgerAccounting(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(entities.ResourceLimits{MemoryBytes: 1 << 20})
	ch := stream.NewChannel(1<<16, stream.WithLedger(led))

	require.NoError(t, ch.Send(ctx, chunk(0, "abcde", false)))
	assert.Equal(t, uint64(5), led.Usage().MemoryBytes)

	_, err := ch.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), led.Usage().MemoryBytes, "dequeue releases the reservation")
}

func TestChannel_LedgerExhaustionFailsSend(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(entities.ResourceLimits{MemoryBytes: 4})
	ch := stream.NewChannel(1<<16, stream.WithLedger(led))

	err := ch.Send(ctx, chunk(0, "too big for ledger", false))
	var exhausted *errors.ResourceExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "memory", exhausted.Dimension)
	assert.Equal(t, 0, ch.Buffered(), "failed send must not buffer")
}

func TestChannel_CancelReleasesLedger(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(entities.ResourceLimits{MemoryBytes: 1 << 20})
	ch := stream.NewChannel(1<<16, stream.WithLedger(led))

	require.NoError(t, ch.Send(ctx, chunk(0, "abc", false)))
	require.NoError(t, ch.Send(ctx, chunk(1, "def", false)))
	ch.Cancel()

	assert.Equal(t, uint64(0), led.Usage().MemoryBytes, "cancel releases all buffer reservations")
}

func TestChannel_ConcurrentProducerConsumer(t *testing.T) {
	ctx := context.Background()
	ch := stream.NewChannel(256)

	const total = 200
	payload := string(bytes.Repeat([]byte("p"), 64))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			final := i == total-1
			if err := ch.Send(ctx, chunk(uint64(i), payload, final)); err != nil {
				t.Errorf("send %d: %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < total; i++ {
		got, err := ch.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), got.Sequence, "strictly ordered with no gaps")
		assert.LessOrEqual(t, ch.Buffered(), 256)
	}
	wg.Wait()
}
