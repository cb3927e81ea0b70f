// Package chat drives a conversation against a streaming client.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/deepchat-cli/deepchat/internal/proto"
	"github.com/deepchat-cli/deepchat/internal/stream"
)

// ErrSessionBusy happens when a send is issued while another one is
// still in flight. A session allows one exchange at a time; anything
// else would race the history snapshot against the assistant append.
var ErrSessionBusy = errors.New("a send is already in flight for this session")

// Result is a completed exchange: the finalized assistant message plus
// an optional advisory for the caller.
type Result struct {
	Message proto.Message
	Warning string
}

// Session owns a conversation and runs exchanges over it. The
// conversation is mutated only here: a user message on the way out, the
// assistant turn on the way back in.
type Session struct {
	convo  *proto.Conversation
	client stream.Client
	busy   atomic.Bool
}

// NewSession creates a session over the given conversation.
func NewSession(convo *proto.Conversation, client stream.Client) *Session {
	return &Session{
		convo:  convo,
		client: client,
	}
}

// Conversation returns the session's conversation.
func (s *Session) Conversation() *proto.Conversation { return s.convo }

// System sets the conversation's system message. It fails with
// [proto.ErrSystemNotFirst] if any message exists already.
func (s *Session) System(content string) (proto.Message, error) {
	return s.convo.AddSystem(content)
}

// Send runs a buffered exchange: append the user message, dispatch,
// decode once, append the assistant reply.
func (s *Session) Send(ctx context.Context, content, model string) (Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Result{}, ErrSessionBusy
	}
	defer s.busy.Store(false)

	_, first := s.convo.AddUser(content, "")

	st := s.client.Request(ctx, proto.Request{
		Messages: s.convo.Snapshot(),
		Model:    model,
		Stream:   false,
	})
	defer st.Close() //nolint:errcheck

	var reply strings.Builder
	for st.Next() {
		chunk, err := st.Current()
		if err != nil {
			continue
		}
		reply.WriteString(chunk.Content)
	}
	if err := st.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Message: s.convo.AddAssistant(reply.String())}
	if first {
		res.Warning = proto.NoSystemAdvisory
	}
	return res, nil
}

// Stream runs a streaming exchange and returns the lazy delta sequence.
// Exhausting it naturally appends the assembled assistant message to
// the conversation, exactly once; closing it early discards the partial
// turn instead. Errors on the way open the sequence in a failed state:
// it yields nothing and Err reports why.
func (s *Session) Stream(ctx context.Context, content, model string) (stream.Stream, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrSessionBusy
	}

	_, first := s.convo.AddUser(content, "")
	if first {
		log.Warn(proto.NoSystemAdvisory)
	}

	inner := s.client.Request(ctx, proto.Request{
		Messages: s.convo.Snapshot(),
		Model:    model,
		Stream:   true,
	})
	return &sessionStream{
		inner:   inner,
		session: s,
	}, nil
}

// sessionStream accumulates emitted fragments and owns the finalize
// side effect. Finalization and the busy flag release both run exactly
// once, on whichever exit path comes first.
type sessionStream struct {
	inner   stream.Stream
	session *Session
	text    strings.Builder
	settled bool
	closed  bool
}

// Next implements stream.Stream.
func (w *sessionStream) Next() bool {
	if w.closed {
		return false
	}
	if w.inner.Next() {
		if chunk, err := w.inner.Current(); err == nil {
			w.text.WriteString(chunk.Content)
		}
		return true
	}
	w.settle(w.inner.Err() == nil)
	return false
}

// Current implements stream.Stream.
func (w *sessionStream) Current() (proto.Chunk, error) {
	return w.inner.Current()
}

// Close implements stream.Stream. Closing before natural completion
// cancels the exchange: the partial assistant turn is discarded.
func (w *sessionStream) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.settle(false)
	return w.inner.Close()
}

// Err implements stream.Stream.
func (w *sessionStream) Err() error { return w.inner.Err() }

// Messages implements stream.Stream.
func (w *sessionStream) Messages() []proto.Message {
	return w.session.convo.Snapshot()
}

func (w *sessionStream) settle(complete bool) {
	if w.settled {
		return
	}
	w.settled = true
	if complete {
		w.session.convo.AddAssistant(w.text.String())
	}
	w.session.busy.Store(false)
}
