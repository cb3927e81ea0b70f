// Package deepseek implements [stream.Client] for the DeepSeek chat
// completions API.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/deepchat-cli/deepchat/internal/proto"
	"github.com/deepchat-cli/deepchat/internal/sse"
	"github.com/deepchat-cli/deepchat/internal/stream"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.deepseek.com"

// Models.
const (
	ModelChat     = "deepseek-chat"
	ModelReasoner = "deepseek-reasoner"
)

// ErrNoChoices happens when the service replies successfully but the
// response carries no choices. Distinct from a decode failure: the call
// worked, there is just nothing in it.
var ErrNoChoices = errors.New("response has no choices")

// UpstreamError is a non-200 response from the API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream rejected the request: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("upstream rejected the request: status %d", e.Status)
}

var _ stream.Client = &Client{}

// Client is the DeepSeek API client.
type Client struct {
	authToken string
	baseURL   string
	http      *http.Client
}

// Config represents the configuration for the API client.
type Config struct {
	AuthToken  string
	BaseURL    string
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration for the given token.
func DefaultConfig(authToken string) Config {
	return Config{
		AuthToken: authToken,
		BaseURL:   DefaultBaseURL,
	}
}

// New creates a new [Client] with the given [Config].
func New(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		authToken: config.AuthToken,
		baseURL:   baseURL,
		http:      httpClient,
	}
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.baseURL, "/") + "/chat/completions"
}

// Request makes a new request and returns a stream over its response.
// In buffered mode the whole body is decoded at once and the stream
// yields the complete message as a single chunk.
func (c *Client) Request(ctx context.Context, request proto.Request) stream.Stream {
	ctx, cancel := context.WithCancel(ctx)

	body, err := encodeRequest(request)
	if err != nil {
		cancel()
		return failedStream(err, request.Messages)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		cancel()
		return failedStream(fmt.Errorf("create request: %w", err), request.Messages)
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Content-Type", "application/json")
	if request.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return failedStream(fmt.Errorf("send request: %w", err), request.Messages)
	}
	if resp.StatusCode != http.StatusOK {
		err := upstreamError(resp)
		_ = resp.Body.Close()
		cancel()
		return failedStream(err, request.Messages)
	}

	if !request.Stream {
		defer cancel()
		defer resp.Body.Close() //nolint:errcheck
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return failedStream(fmt.Errorf("read response: %w", err), request.Messages)
		}
		msg, err := decodeResponse(data)
		if err != nil {
			return failedStream(err, request.Messages)
		}
		return &buffered{
			message:  msg,
			messages: request.Messages,
		}
	}

	return &Stream{
		cancel:   cancel,
		body:     resp.Body,
		dec:      sse.NewDecoder(resp.Body, decodeChunk),
		messages: request.Messages,
	}
}

// upstreamError reads the failure body for a service-provided message.
func upstreamError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(data, &apiErr)
	return &UpstreamError{
		Status:  resp.StatusCode,
		Message: apiErr.Error.Message,
	}
}

// Stream is an in-flight streaming exchange. Deltas come out in arrival
// order, one per Next, pulled straight off the wire: nothing is
// buffered ahead of the consumer.
type Stream struct {
	cancel   context.CancelFunc
	body     io.ReadCloser
	dec      *sse.Decoder
	current  proto.Chunk
	content  strings.Builder
	messages []proto.Message
	err      error
	closed   bool
	finished bool
}

// Next implements stream.Stream.
func (s *Stream) Next() bool {
	if s.closed || s.finished {
		return false
	}
	if s.dec.Scan() {
		s.current = s.dec.Delta()
		s.content.WriteString(s.current.Content)
		return true
	}
	s.finished = true
	s.err = s.dec.Err()
	s.teardown()
	if s.err == nil {
		s.messages = append(s.messages, proto.Message{
			Role:    proto.RoleAssistant,
			Content: s.content.String(),
		})
	}
	return false
}

// Current implements stream.Stream.
func (s *Stream) Current() (proto.Chunk, error) {
	if s.current == (proto.Chunk{}) {
		return proto.Chunk{}, stream.ErrNoContent
	}
	return s.current, nil
}

// Close implements stream.Stream. Closing before the stream is finished
// tears the connection down and discards the partial turn.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.teardown()
	return nil
}

func (s *Stream) teardown() {
	s.cancel()
	_ = s.body.Close()
}

// Err implements stream.Stream.
func (s *Stream) Err() error { return s.err }

// Messages implements stream.Stream.
func (s *Stream) Messages() []proto.Message { return s.messages }

// Dropped reports how many undecodable chunks were skipped.
func (s *Stream) Dropped() int { return s.dec.Dropped() }

// buffered wraps a single complete response to implement stream.Stream.
type buffered struct {
	message  proto.Message
	messages []proto.Message
	err      error
	consumed bool
}

func failedStream(err error, messages []proto.Message) stream.Stream {
	return &buffered{
		err:      err,
		messages: messages,
	}
}

// Next implements stream.Stream.
func (b *buffered) Next() bool {
	if b.consumed || b.err != nil {
		return false
	}
	b.consumed = true
	b.messages = append(b.messages, b.message)
	return true
}

// Current implements stream.Stream.
func (b *buffered) Current() (proto.Chunk, error) {
	if b.err != nil {
		return proto.Chunk{}, b.err
	}
	if !b.consumed {
		return proto.Chunk{}, stream.ErrNoContent
	}
	return proto.Chunk{
		Role:    b.message.Role,
		Content: b.message.Content,
	}, nil
}

// Close implements stream.Stream.
func (b *buffered) Close() error { return nil }

// Err implements stream.Stream.
func (b *buffered) Err() error { return b.err }

// Messages implements stream.Stream.
func (b *buffered) Messages() []proto.Message { return b.messages }
