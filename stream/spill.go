package stream

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/warden-run/warden/domain/entities"
)

// spillQueue is a file-backed FIFO of chunks. Records are length-prefixed
// CBOR so a spilled chunk re-reads byte-identical to the original. Offsets
// are tracked explicitly; the file only ever grows until discarded.
type spillQueue struct {
	file     *os.File
	writeOff int64
	readOff  int64
	pending  int
}

func newSpillQueue(dir string) (*spillQueue, error) {
	f, err := os.CreateTemp(dir, "warden-spill-*.cbor")
	if err != nil {
		return nil, err
	}
	return &spillQueue{file: f}, nil
}

func (s *spillQueue) push(chunk entities.Chunk) error {
	data, err := cbor.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to encode chunk: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))

	if _, err := s.file.WriteAt(lenBuf[:], s.writeOff); err != nil {
		return err
	}
	if _, err := s.file.WriteAt(data, s.writeOff+4); err != nil {
		return err
	}

	s.writeOff += int64(4 + len(data))
	s.pending++
	return nil
}

func (s *spillQueue) pop() (entities.Chunk, error) {
	var lenBuf [4]byte
	if _, err := s.file.ReadAt(lenBuf[:], s.readOff); err != nil {
		return entities.Chunk{}, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])

	data := make([]byte, size)
	if _, err := s.file.ReadAt(data, s.readOff+4); err != nil {
		return entities.Chunk{}, err
	}

	var chunk entities.Chunk
	if err := cbor.Unmarshal(data, &chunk); err != nil {
		return entities.Chunk{}, fmt.Errorf("failed to decode spilled chunk: %w", err)
	}

	s.readOff += int64(4 + size)
	s.pending--
	return chunk, nil
}

// discard closes and removes the scratch file. Best effort; the file lives
// in a scratch directory either way.
func (s *spillQueue) discard() {
	name := s.file.Name()
	s.file.Close()
	os.Remove(name)
}
