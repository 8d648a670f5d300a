// Package input provides a concrete, minimal Input plugin: newline-delimited
// JSON on an io.Reader. spec.md treats input transports as external
// collaborators the core only consumes through Emit(tag, stream); this is
// one such collaborator, grounded in the teacher's --job/--job-json JSON
// parsing idiom (cli/cmd/run.go's parseJobPayload).
package input

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/conduit/types"
)

// line is the wire shape of one newline-delimited JSON record.
type line struct {
	Tag    string       `json:"tag"`
	Time   int64        `json:"time"`
	Record types.Record `json:"record"`
}

// Emitter is the subset of agent.Agent / router.EventRouter that NDJSON
// ingestion needs.
type Emitter interface {
	Emit(tag string, stream types.EventStream) error
}

// NDJSON reads newline-delimited JSON records from r and emits each one to
// dst. A record missing "tag" or with malformed JSON is reported via
// onError and skipped rather than aborting the stream, since one bad line
// from an upstream producer should not stop an otherwise-healthy feed.
// Reading stops when r is exhausted or ctx-equivalent io.EOF is reached.
func NDJSON(r io.Reader, dst Emitter, onError func(raw string, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		raw := scanner.Text()
		if raw == "" {
			continue
		}

		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			if onError != nil {
				onError(raw, fmt.Errorf("malformed json: %w", err))
			}
			continue
		}
		if l.Tag == "" {
			if onError != nil {
				onError(raw, fmt.Errorf("missing \"tag\" field"))
			}
			continue
		}
		if l.Time == 0 {
			l.Time = time.Now().Unix()
		}

		if err := dst.Emit(l.Tag, types.NewStream(l.Time, l.Record)); err != nil {
			if onError != nil {
				onError(raw, err)
			}
		}
	}
	return scanner.Err()
}
