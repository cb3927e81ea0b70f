// Package sse decodes a line-delimited event stream into chat deltas.
//
// The decoder is a one-pass pull iterator: each Scan reads lines until a
// payload produces a delta with content, the terminating sentinel shows
// up, or the source runs dry. Heartbeat and separator lines carry no
// payload and are skipped. A payload that fails to decode is recorded
// and dropped; noise from intermediary proxies must never kill the
// stream.
package sse

import (
	"bufio"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/deepchat-cli/deepchat/internal/proto"
)

const (
	sentinel   = "[DONE]"
	dataPrefix = "data:"
)

// DecodeFunc decodes a single event payload into a delta. The wire
// schema belongs to the caller; the decoder only owns the framing.
type DecodeFunc func(payload []byte) (proto.Chunk, error)

type lineKind int

const (
	lineEmpty lineKind = iota
	lineSentinel
	lineKeepAlive
	linePayload
)

// classify tags a raw line and, for payload lines, recovers the payload
// with the event-field prefix stripped.
func classify(raw string) (lineKind, string) {
	line := strings.TrimSpace(raw)
	switch {
	case line == "":
		return lineEmpty, ""
	case line == sentinel:
		return lineSentinel, ""
	case isKeepAlive(line):
		return lineKeepAlive, ""
	}
	payload := line
	if rest, ok := strings.CutPrefix(line, dataPrefix); ok {
		payload = strings.TrimSpace(rest)
	}
	if payload == sentinel {
		return lineSentinel, ""
	}
	return linePayload, payload
}

// Comment lines (leading colon) are the protocol's heartbeat; some
// proxies emit the bare token instead.
func isKeepAlive(line string) bool {
	return strings.HasPrefix(line, ":") || strings.EqualFold(line, "keep-alive")
}

// Decoder turns a raw event-stream body into a sequence of deltas.
type Decoder struct {
	lines   *bufio.Scanner
	decode  DecodeFunc
	current proto.Chunk
	err     error
	done    bool
	dropped int
}

// NewDecoder frames r into lines and decodes payloads with decode.
func NewDecoder(r io.Reader, decode DecodeFunc) *Decoder {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{
		lines:  lines,
		decode: decode,
	}
}

// Scan advances to the next delta carrying content. It returns false on
// the termination sentinel, on end of input, or on a read error; a
// missing sentinel is not an error, upstreams may just close the
// connection.
func (d *Decoder) Scan() bool {
	if d.done {
		return false
	}
	for d.lines.Scan() {
		kind, payload := classify(d.lines.Text())
		switch kind {
		case lineEmpty, lineKeepAlive:
			continue
		case lineSentinel:
			d.done = true
			return false
		}
		chunk, err := d.decode([]byte(payload))
		if err != nil {
			d.dropped++
			log.Debug("dropping undecodable chunk", "len", len(payload), "err", err)
			continue
		}
		if chunk.Content == "" {
			continue
		}
		d.current = proto.Chunk{
			Role:    proto.RoleAssistant,
			Content: chunk.Content,
		}
		return true
	}
	d.done = true
	d.err = d.lines.Err()
	return false
}

// Delta returns the delta produced by the last successful Scan.
func (d *Decoder) Delta() proto.Chunk { return d.current }

// Err returns the read error that terminated the stream, if any.
func (d *Decoder) Err() error { return d.err }

// Dropped reports how many undecodable payloads were skipped.
func (d *Decoder) Dropped() int { return d.dropped }
