// Package stream implements the bounded, ordered, backpressured chunk
// transport used to move data larger than memory between host and guest.
//
// A Channel carries one direction; a bidirectional stream is a pair of
// channels. Within a channel, sequence numbers start at 0 and increase by
// exactly 1; exactly one chunk may carry the final flag and it must be the
// last. The buffer capacity is measured in payload bytes, not chunk count:
// a full buffer suspends the sender, which is what bounds total memory use
// regardless of producer/consumer speed mismatch.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/errors"
	"github.com/warden-run/warden/ledger"
)

// DefaultCapacity is the buffer capacity used when none is configured (1MB).
const DefaultCapacity = 1 << 20

// channelConfig holds configuration for a Channel.
type channelConfig struct {
	spillDir      string
	memoryCeiling int
	ledger        *ledger.Ledger
}

// Option configures a Channel.
type Option func(*channelConfig)

// WithSpill enables the file-backed strategy: once in-memory buffered bytes
// would exceed memoryCeiling, chunks spill to a scratch file in dir and are
// re-read in order. The external contract is unchanged; spilled chunks
// round-trip byte-identical.
func WithSpill(dir string, memoryCeiling int) Option {
	return func(c *channelConfig) {
		c.spillDir = dir
		c.memoryCeiling = memoryCeiling
	}
}

// WithLedger accounts buffered bytes against the given ledger's memory
// dimension. Enqueue reserves, dequeue releases; a failed reservation fails
// the send with the ledger's ResourceExhausted error.
func WithLedger(l *ledger.Ledger) Option {
	return func(c *channelConfig) {
		c.ledger = l
	}
}

// Channel is a bounded ordered chunk transport for one direction. Send and
// Receive are independent suspension points: a sender blocked on a full
// buffer does not block other channels' progress.
type Channel struct {
	mu   sync.Mutex
	wake chan struct{} // closed and replaced on every state change

	config   channelConfig
	capacity int

	queue    []entities.Chunk
	memBytes int
	buffered int // memory + spill payload bytes
	spill    *spillQueue

	nextSend uint64
	nextRecv uint64
	sawFinal bool

	closed   bool
	closeErr *errors.StreamError // cause reported to pending ops; nil means plain Closed
}

// NewChannel creates a channel with the given buffer capacity in bytes.
// A capacity of 0 uses DefaultCapacity.
func NewChannel(capacityBytes int, opts ...Option) *Channel {
	cfg := channelConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if capacityBytes <= 0 {
		capacityBytes = DefaultCapacity
	}
	if cfg.memoryCeiling <= 0 || cfg.memoryCeiling > capacityBytes {
		cfg.memoryCeiling = capacityBytes
	}
	return &Channel{
		wake:     make(chan struct{}),
		config:   cfg,
		capacity: capacityBytes,
	}
}

func (c *Channel) broadcastLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// wait releases the lock until the channel state changes or ctx is done.
func (c *Channel) wait(ctx context.Context) error {
	w := c.wake
	c.mu.Unlock()
	defer c.mu.Lock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return &errors.StreamError{Kind: errors.StreamCancelled}
	}
}

func (c *Channel) closedErrLocked() error {
	if c.closeErr != nil {
		return c.closeErr
	}
	return &errors.StreamError{Kind: errors.StreamClosed}
}

// Send enqueues a chunk, suspending while the buffer is full. It fails with
// Closed after the channel closes or the final chunk was sent, with a
// SequenceGap error (closing the channel) on an out-of-order sequence
// number, and with Cancelled when ctx is done while suspended.
func (c *Channel) Send(ctx context.Context, chunk entities.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.closedErrLocked()
	}
	if c.sawFinal {
		return &errors.StreamError{Kind: errors.StreamClosed}
	}
	if chunk.Sequence != c.nextSend {
		err := &errors.StreamError{Kind: errors.StreamSequenceGap, Expected: c.nextSend, Got: chunk.Sequence}
		c.closeLocked(err)
		return err
	}

	size := chunk.Size()
	if size > c.capacity {
		return fmt.Errorf("chunk of %d bytes exceeds channel capacity %d", size, c.capacity)
	}

	for c.buffered+size > c.capacity {
		if err := c.wait(ctx); err != nil {
			return err
		}
		if c.closed {
			return c.closedErrLocked()
		}
	}

	if c.config.ledger != nil {
		if err := c.config.ledger.Reserve(ledger.DimensionMemory, uint64(size)); err != nil {
			return err
		}
	}

	if err := c.enqueueLocked(chunk); err != nil {
		if c.config.ledger != nil {
			c.config.ledger.Release(ledger.DimensionMemory, uint64(size))
		}
		return err
	}

	c.nextSend++
	if chunk.Final {
		c.sawFinal = true
	}
	c.broadcastLocked()
	return nil
}

func (c *Channel) enqueueLocked(chunk entities.Chunk) error {
	size := chunk.Size()

	// Once spilling has begun, later chunks keep spilling until the file
	// drains, preserving arrival order.
	useSpill := c.config.spillDir != "" &&
		((c.spill != nil && c.spill.pending > 0) || c.memBytes+size > c.config.memoryCeiling)

	if useSpill {
		if c.spill == nil {
			sq, err := newSpillQueue(c.config.spillDir)
			if err != nil {
				return fmt.Errorf("failed to open spill file: %w", err)
			}
			c.spill = sq
		}
		if err := c.spill.push(chunk); err != nil {
			return fmt.Errorf("failed to spill chunk: %w", err)
		}
	} else {
		c.queue = append(c.queue, chunk)
		c.memBytes += size
	}

	c.buffered += size
	return nil
}

// Receive dequeues the next chunk in order, suspending while the buffer is
// empty. After close, it drains already-buffered chunks before reporting
// Closed (or the closing cause).
func (c *Channel) Receive(ctx context.Context) (entities.Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if chunk, ok, err := c.dequeueLocked(); err != nil {
			return entities.Chunk{}, err
		} else if ok {
			return c.deliverLocked(chunk)
		}

		if c.closed {
			return entities.Chunk{}, c.closedErrLocked()
		}
		if err := c.wait(ctx); err != nil {
			return entities.Chunk{}, err
		}
	}
}

func (c *Channel) dequeueLocked() (entities.Chunk, bool, error) {
	if len(c.queue) > 0 {
		chunk := c.queue[0]
		c.queue = c.queue[1:]
		c.memBytes -= chunk.Size()
		return chunk, true, nil
	}
	if c.spill != nil && c.spill.pending > 0 {
		chunk, err := c.spill.pop()
		if err != nil {
			return entities.Chunk{}, false, fmt.Errorf("failed to read spilled chunk: %w", err)
		}
		if c.spill.pending == 0 {
			c.spill.discard()
			c.spill = nil
		}
		return chunk, true, nil
	}
	return entities.Chunk{}, false, nil
}

func (c *Channel) deliverLocked(chunk entities.Chunk) (entities.Chunk, error) {
	size := chunk.Size()
	c.buffered -= size
	if c.config.ledger != nil {
		c.config.ledger.Release(ledger.DimensionMemory, uint64(size))
	}

	if chunk.Sequence != c.nextRecv {
		err := &errors.StreamError{Kind: errors.StreamSequenceGap, Expected: c.nextRecv, Got: chunk.Sequence}
		c.closeLocked(err)
		return entities.Chunk{}, err
	}
	c.nextRecv++

	if chunk.Final {
		// Final delivery is terminal for the whole channel.
		c.closeLocked(nil)
	} else {
		c.broadcastLocked()
	}
	return chunk, nil
}

// Buffered returns the total unflushed buffered payload bytes, memory and
// spill combined. Never exceeds the configured capacity.
func (c *Channel) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// Close closes the channel. Subsequent sends fail with Closed; pending
// receives drain buffered chunks first. Closing twice is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(nil)
	return nil
}

// Cancel closes the channel with a Cancelled cause, waking every suspended
// send and receive with a Cancelled error. Used when the owning call times
// out or is aborted.
func (c *Channel) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(&errors.StreamError{Kind: errors.StreamCancelled})
}

func (c *Channel) closeLocked(cause *errors.StreamError) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = cause

	// A cancelled channel drops its buffer: release accounted bytes and
	// discard the spill file. A plainly closed channel keeps buffered
	// chunks so receivers can drain.
	if cause != nil {
		if c.config.ledger != nil && c.buffered > 0 {
			c.config.ledger.Release(ledger.DimensionMemory, uint64(c.buffered))
		}
		c.queue = nil
		c.memBytes = 0
		c.buffered = 0
		if c.spill != nil {
			c.spill.discard()
			c.spill = nil
		}
	}

	c.broadcastLocked()
}
