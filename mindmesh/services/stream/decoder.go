// Package stream decodes the server-sent event stream of a chat completion
// into text deltas.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	// DefaultMaxFrameBytes bounds both an unterminated line and a frame
	// waiting for its continuation.
	DefaultMaxFrameBytes = 1 << 20

	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

type frameStatus int

const (
	frameOK frameStatus = iota
	frameIncomplete
	frameMalformed
)

type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder is a pull-based line decoder. Feed it raw chunks as they arrive
// (chunk boundaries need not match line boundaries), then call Next until it
// reports no more deltas. Call Finish once the transport has no more input.
//
// Not safe for concurrent use.
type Decoder struct {
	buf        []byte
	pending    string
	maxBytes   int
	done       bool
	eof        bool
	discarding bool
	dropped    int
}

func NewDecoder(maxFrameBytes int) *Decoder {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Decoder{maxBytes: maxFrameBytes}
}

// Feed appends a raw chunk to the carry-over buffer.
func (d *Decoder) Feed(chunk []byte) {
	if d.done || d.eof {
		return
	}
	if d.discarding {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			return
		}
		d.discarding = false
		chunk = chunk[i+1:]
	}
	d.buf = append(d.buf, chunk...)

	// An unterminated tail past the limit can never become a usable frame.
	tail := len(d.buf) - (bytes.LastIndexByte(d.buf, '\n') + 1)
	if tail > d.maxBytes {
		d.buf = d.buf[:len(d.buf)-tail]
		d.discarding = true
		d.dropped++
	}
}

// Finish marks end of input. A trailing line without a newline is decoded,
// and a frame still waiting for its continuation is dropped.
func (d *Decoder) Finish() {
	d.eof = true
	d.discarding = false
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// Dropped is the number of malformed or overlong frames discarded so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Next returns the next delta decodable from buffered input. ok is false when
// more input is needed, the sentinel was reached, or input is exhausted.
func (d *Decoder) Next() (delta string, ok bool) {
	for !d.done {
		line, more := d.nextLine()
		if !more {
			if d.eof && d.pending != "" {
				d.pending = ""
				d.dropped++
			}
			return "", false
		}
		if delta, ok := d.decodeLine(line); ok {
			return delta, true
		}
	}
	return "", false
}

func (d *Decoder) nextLine() (string, bool) {
	i := bytes.IndexByte(d.buf, '\n')
	if i < 0 {
		if d.eof && len(d.buf) > 0 {
			line := string(d.buf)
			d.buf = d.buf[:0]
			return line, true
		}
		return "", false
	}
	line := string(d.buf[:i])
	d.buf = d.buf[i+1:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return line, true
}

func (d *Decoder) decodeLine(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	if d.pending != "" {
		return d.continuePending(line)
	}
	return d.decodeFresh(line)
}

func (d *Decoder) decodeFresh(line string) (string, bool) {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		d.done = true
		return "", false
	}

	delta, status := parseFrame(payload)
	switch status {
	case frameIncomplete:
		if len(payload) > d.maxBytes {
			d.dropped++
			return "", false
		}
		d.pending = payload
		return "", false
	case frameMalformed:
		d.dropped++
		return "", false
	}
	return delta, delta != ""
}

// continuePending joins the next line onto a frame whose JSON was cut short.
// If the join is not valid JSON either, the pending frame is dropped and the
// line is decoded on its own so a following good frame is never lost.
func (d *Decoder) continuePending(line string) (string, bool) {
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	// A line that stands on its own (sentinel or complete frame) starts a new
	// frame; the pending one never completed.
	if strings.HasPrefix(line, dataPrefix) {
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if _, status := parseFrame(payload); payload == doneSentinel || status == frameOK {
			d.pending = ""
			d.dropped++
			return d.decodeFresh(line)
		}
	}
	cont := strings.TrimPrefix(line, dataPrefix)
	joined := strings.TrimSpace(d.pending + cont)
	d.pending = ""

	if len(joined) > d.maxBytes {
		d.dropped++
		return d.decodeFresh(line)
	}

	delta, status := parseFrame(joined)
	switch status {
	case frameIncomplete:
		d.pending = joined
		return "", false
	case frameMalformed:
		d.dropped++
		return d.decodeFresh(line)
	}
	return delta, delta != ""
}

// parseFrame extracts choices[0].delta.content. Valid JSON of an unexpected
// shape yields whatever content decoded cleanly rather than an error.
func parseFrame(payload string) (string, frameStatus) {
	dec := json.NewDecoder(strings.NewReader(payload))
	var chunk completionChunk
	if err := dec.Decode(&chunk); err != nil {
		// A type mismatch still decodes the remaining fields.
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			return "", frameIncomplete
		case !errors.As(err, &typeErr):
			return "", frameMalformed
		}
	}
	if rest := payload[dec.InputOffset():]; strings.TrimSpace(rest) != "" {
		return "", frameMalformed
	}
	if len(chunk.Choices) == 0 {
		return "", frameOK
	}
	return chunk.Choices[0].Delta.Content, frameOK
}
