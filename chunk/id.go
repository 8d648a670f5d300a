package chunk

import "github.com/google/uuid"

// ID uniquely identifies a Chunk for identity comparison in the flush
// queue (spec.md §3: "A unique ChunkID is assigned at construction; it is
// used for identity comparison in the queue").
type ID string

// NewID generates a fresh, process-wide-unique chunk identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string { return string(id) }
