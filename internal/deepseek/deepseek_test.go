package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepchat-cli/deepchat/internal/chat"
	"github.com/deepchat-cli/deepchat/internal/proto"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		AuthToken:  "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
}

func bufferedResponse(content string) string {
	return fmt.Sprintf(
		`{"id":"1","created":1,"model":"deepseek-chat","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`,
		content,
	)
}

func TestRequestBuffered(t *testing.T) {
	t.Run("decodes the first choice", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.Equal(t, "application/json", r.Header.Get("Accept"))

			var req struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
				Stream bool `json:"stream"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, ModelChat, req.Model)
			require.False(t, req.Stream)
			require.Len(t, req.Messages, 1)
			require.Equal(t, proto.RoleUser, req.Messages[0].Role)
			require.Equal(t, "hello", req.Messages[0].Content)

			fmt.Fprint(w, bufferedResponse("hi there"))
		})

		st := client.Request(context.Background(), proto.Request{
			Messages: []proto.Message{{Role: proto.RoleUser, Content: "hello"}},
			Model:    ModelChat,
		})
		defer st.Close() //nolint:errcheck

		require.True(t, st.Next())
		chunk, err := st.Current()
		require.NoError(t, err)
		require.Equal(t, "hi there", chunk.Content)
		require.False(t, st.Next())
		require.NoError(t, st.Err())

		msgs := st.Messages()
		require.Len(t, msgs, 2)
		require.Equal(t, proto.RoleAssistant, msgs[1].Role)
		require.Equal(t, "hi there", msgs[1].Content)
	})

	t.Run("no choices", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"id":"1","created":1,"model":"deepseek-chat","choices":[]}`)
		})

		st := client.Request(context.Background(), proto.Request{Model: ModelChat})
		require.False(t, st.Next())
		require.ErrorIs(t, st.Err(), ErrNoChoices)
	})

	t.Run("malformed body", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{not json`)
		})

		st := client.Request(context.Background(), proto.Request{Model: ModelChat})
		require.False(t, st.Next())
		require.Error(t, st.Err())
	})
}

func TestRequestUpstreamError(t *testing.T) {
	for _, status := range []int{401, 402, 404, 429, 500} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			})

			st := client.Request(context.Background(), proto.Request{Model: ModelChat})
			require.False(t, st.Next())

			var upstream *UpstreamError
			require.ErrorAs(t, st.Err(), &upstream)
			require.Equal(t, status, upstream.Status)
			require.Equal(t, "nope", upstream.Message)
		})
	}
}

func chunkLine(content string) string {
	return fmt.Sprintf(
		"data: {\"id\":\"1\",\"created\":1,\"model\":\"deepseek-chat\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n",
		content,
	)
}

func TestRequestStreaming(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, chunkLine("Hi"))
		flusher.Flush()
		fmt.Fprint(w, chunkLine(" there"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	convo := proto.New()
	sess := chat.NewSession(convo, client)

	st, err := sess.Stream(context.Background(), "hello", ModelChat)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	var got string
	for st.Next() {
		chunk, err := st.Current()
		require.NoError(t, err)
		got += chunk.Content
	}
	require.NoError(t, st.Err())
	require.Equal(t, "Hi there", got)

	msgs := convo.Snapshot()
	require.Len(t, msgs, 2)
	require.Equal(t, proto.RoleUser, msgs[0].Role)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, proto.RoleAssistant, msgs[1].Role)
	require.Equal(t, "Hi there", msgs[1].Content)
}

func TestRequestStreamingEarlyClose(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, chunkLine("Hi"))
		w.(http.Flusher).Flush()
		// hold the stream open until the client goes away
		<-r.Context().Done()
	})

	convo := proto.New()
	sess := chat.NewSession(convo, client)

	st, err := sess.Stream(context.Background(), "hello", ModelChat)
	require.NoError(t, err)
	require.True(t, st.Next())
	require.NoError(t, st.Close())

	// the partial assistant turn is discarded
	msgs := convo.Snapshot()
	require.Len(t, msgs, 1)
	require.Equal(t, proto.RoleUser, msgs[0].Role)
}

func TestRequestStreamingDropsBadChunks(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, chunkLine("a"))
		fmt.Fprint(w, "data: {not json\n\n")
		fmt.Fprint(w, chunkLine("b"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	st := client.Request(context.Background(), proto.Request{
		Messages: []proto.Message{{Role: proto.RoleUser, Content: "hello"}},
		Model:    ModelChat,
		Stream:   true,
	})
	defer st.Close() //nolint:errcheck

	var got string
	for st.Next() {
		chunk, err := st.Current()
		require.NoError(t, err)
		got += chunk.Content
	}
	require.NoError(t, st.Err())
	require.Equal(t, "ab", got)
	require.Equal(t, 1, st.(*Stream).Dropped())
}

func TestRequestStreamingEOFWithoutSentinel(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, chunkLine("partial"))
	})

	st := client.Request(context.Background(), proto.Request{Model: ModelChat, Stream: true})
	defer st.Close() //nolint:errcheck

	require.True(t, st.Next())
	chunk, err := st.Current()
	require.NoError(t, err)
	require.Equal(t, "partial", chunk.Content)
	require.False(t, st.Next())
	require.NoError(t, st.Err())
}

func TestEndpoint(t *testing.T) {
	client := New(Config{AuthToken: "x", BaseURL: "https://api.example.com/"})
	require.Equal(t, "https://api.example.com/chat/completions", client.endpoint())

	client = New(Config{AuthToken: "x"})
	require.Equal(t, DefaultBaseURL+"/chat/completions", client.endpoint())
}

func TestCurrentBeforeNext(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, bufferedResponse("hi"))
	})

	st := client.Request(context.Background(), proto.Request{Model: ModelChat})
	_, err := st.Current()
	require.Error(t, err)
}
