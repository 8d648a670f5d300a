package chunk

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/conduit/types"
)

// LengthPrefixSize is the size, in bytes, of the big-endian length prefix
// written before each framed record.
const LengthPrefixSize = 4

// MaxFrameSize bounds a single framed record, guarding against a corrupt
// or adversarial length prefix triggering an unbounded allocation.
const MaxFrameSize = 16 * 1024 * 1024

// frame is the wire shape of one buffered record: the entry's Unix
// timestamp alongside its record body.
type frame struct {
	Time   int64          `msgpack:"time"`
	Record map[string]any `msgpack:"record"`
}

// EncodeEntry serializes a single (time, record) pair into the
// length-prefixed msgpack wire format chunks use as their self-delimited
// payload (spec.md §4.1: "iterator over framed records when the payload
// is self-delimited, e.g., MessagePack stream").
func EncodeEntry(e types.Entry) ([]byte, error) {
	payload, err := msgpack.Marshal(frame{Time: e.Time, Record: e.Record})
	if err != nil {
		return nil, fmt.Errorf("chunk: encode entry: %w", err)
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}

// FrameError distinguishes a truncated frame from a msgpack decode
// failure, mirroring the error taxonomy concrete Chunk backings need when
// reconstructing queued payloads on restart.
type FrameError struct {
	Msg string
	Err error
}

func (e *FrameError) Error() string { return fmt.Sprintf("%s: %v", e.Msg, e.Err) }
func (e *FrameError) Unwrap() error { return e.Err }

// Iterator walks the framed records inside a chunk's payload in append
// order.
type Iterator struct {
	r *bufio.Reader
}

// NewIterator wraps raw chunk bytes (as returned by Chunk.Read) in a
// frame-aware iterator.
func NewIterator(payload []byte) *Iterator {
	return &Iterator{r: bufio.NewReader(bytes.NewReader(payload))}
}

// Next returns the next framed entry, or io.EOF once the payload is
// exhausted.
func (it *Iterator) Next() (types.Entry, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(it.r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return types.Entry{}, io.EOF
		}
		return types.Entry{}, &FrameError{Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(lengthBuf[:])
	if size > MaxFrameSize {
		return types.Entry{}, &FrameError{Msg: fmt.Sprintf("frame size %d exceeds maximum %d", size, MaxFrameSize)}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(it.r, payload); err != nil {
		return types.Entry{}, &FrameError{Msg: "failed to read frame payload", Err: err}
	}

	var f frame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return types.Entry{}, &FrameError{Msg: "failed to decode frame", Err: err}
	}
	return types.Entry{Time: f.Time, Record: f.Record}, nil
}

// Iterate decodes every framed entry in payload. Intended for tests and
// for outputs that need the whole batch materialized (e.g. one HTTP POST
// body per chunk) rather than streaming record-by-record.
func Iterate(payload []byte) ([]types.Entry, error) {
	it := NewIterator(payload)
	var out []types.Entry
	for {
		e, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
