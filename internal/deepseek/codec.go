package deepseek

import (
	"encoding/json"
	"fmt"

	"github.com/deepchat-cli/deepchat/internal/proto"
)

// Wire field names are lower snake case; the in-memory types in
// [proto] stay idiomatic. This file owns the transform in both
// directions.

type wireMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type wireDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	Delta        wireDelta   `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
}

func encodeRequest(request proto.Request) ([]byte, error) {
	wire := wireRequest{
		Model:  request.Model,
		Stream: request.Stream,
	}
	for _, msg := range request.Messages {
		wire.Messages = append(wire.Messages, wireMessage(msg))
	}
	data, err := json.Marshal(wire)
	if err != nil {
		// unreachable with these types, kept for symmetry with decode
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// decodeResponse parses a complete buffered response body and returns
// the first choice's message.
func decodeResponse(data []byte) (proto.Message, error) {
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return proto.Message{}, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return proto.Message{}, ErrNoChoices
	}
	return proto.Message(resp.Choices[0].Message), nil
}

// decodeChunk parses one streaming event payload into a delta. A chunk
// without choices decodes to an empty delta, which carries no content
// and is not emitted.
func decodeChunk(payload []byte) (proto.Chunk, error) {
	var resp wireResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return proto.Chunk{}, fmt.Errorf("decode chunk: %w", err)
	}
	if len(resp.Choices) == 0 {
		return proto.Chunk{}, nil
	}
	delta := resp.Choices[0].Delta
	return proto.Chunk{
		Role:    delta.Role,
		Content: delta.Content,
	}, nil
}
