package entities

// Chunk is one ordered unit of streamed transport between host and guest.
//
// Within one channel direction, sequence numbers start at 0 and increase by
// exactly 1 with no gaps. Exactly one chunk per direction may carry Final,
// and it must be the last chunk observed in that direction.
type Chunk struct {
	Payload  []byte            `json:"payload"`
	Sequence uint64            `json:"sequence"`
	Final    bool              `json:"final"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Size returns the number of payload bytes, the unit counted against a
// channel's buffer capacity.
func (c Chunk) Size() int {
	return len(c.Payload)
}
