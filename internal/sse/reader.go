// ABOUTME: Client-side SSE frame reader for a streamed HTTP response body
// ABOUTME: Reassembles frames split across network reads, preserving arrival order

package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Event is one decoded frame from the stream
type Event struct {
	Type string
	ID   string
	Data json.RawMessage
}

// Reader decodes framed events from a response body. Frames split across
// network reads are buffered until the terminating blank line arrives.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps a response body for event iteration
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner}
}

// Next returns the next event in arrival order. Returns io.EOF when the
// stream ends cleanly; any partial frame at EOF is discarded.
func (r *Reader) Next() (*Event, error) {
	var eventType, id string
	var dataLines []string
	var sawField bool

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Blank line terminates a frame
		if line == "" {
			if sawField {
				return &Event{
					Type: eventType,
					ID:   id,
					Data: json.RawMessage(strings.Join(dataLines, "\n")),
				}, nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			sawField = true
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
			sawField = true
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			sawField = true
		case strings.HasPrefix(line, ":"):
			// comment line, ignored
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
