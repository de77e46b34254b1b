package chatclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// StreamDecoder incrementally decodes the advisor's event-stream framing into
// content deltas. Feed it raw body chunks in arrival order; chunk boundaries
// may fall anywhere, including mid-codepoint or mid-JSON-token, because the
// decoder only ever commits complete, parseable lines and buffers the rest.
type StreamDecoder struct {
	buf  []byte
	done bool
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

const doneSentinel = "[DONE]"

// Feed appends a chunk and returns the non-empty content deltas decoded from
// the lines completed by it. After the [DONE] sentinel all further input is
// discarded; the caller keeps reading only to observe stream close.
func (d *StreamDecoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var deltas []string
	offset := 0
	for !d.done {
		idx := bytes.IndexByte(d.buf[offset:], '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[offset : offset+idx])
		line = strings.TrimSuffix(line, "\r")

		switch {
		case line == "" || strings.HasPrefix(line, ":"):
			// keep-alive comment or separator line
		case !strings.HasPrefix(line, "data: "):
			// unknown field, skip without error
		case line[len("data: "):] == doneSentinel:
			d.done = true
		default:
			payload := line[len("data: "):]
			var parsed streamChunk
			if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
				// The line may have been split across network chunks in a way
				// that produced a spurious newline mid-token. Leave it in the
				// buffer and retry once more bytes arrive.
				d.compact(offset)
				return deltas
			}
			if len(parsed.Choices) > 0 {
				if delta := parsed.Choices[0].Delta.Content; delta != "" {
					deltas = append(deltas, delta)
				}
			}
		}
		offset += idx + 1
	}
	d.compact(offset)
	return deltas
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *StreamDecoder) Done() bool {
	return d.done
}

func (d *StreamDecoder) compact(offset int) {
	if d.done {
		d.buf = nil
		return
	}
	if offset == 0 {
		return
	}
	remaining := len(d.buf) - offset
	copy(d.buf, d.buf[offset:])
	d.buf = d.buf[:remaining]
}
