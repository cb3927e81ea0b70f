// Package stream provides interfaces for streaming conversations.
package stream

import (
	"context"
	"errors"

	"github.com/deepchat-cli/deepchat/internal/proto"
)

// ErrNoContent happens when the service returns no usable content.
var ErrNoContent = errors.New("no content")

// Client opens completion exchanges against an upstream service.
type Client interface {
	Request(context.Context, proto.Request) Stream
}

// Stream is an ongoing exchange.
type Stream interface {
	// returns false when no more chunks will arrive; check [Stream.Err]
	// once that happens
	Next() bool

	// the current chunk
	Current() (proto.Chunk, error)

	// closes the underlying stream; closing before Next returns false
	// discards the partial turn
	Close() error

	// terminal error, nil on normal completion
	Err() error

	// the whole conversation, including the assistant turn once the
	// stream completed naturally
	Messages() []proto.Message
}
