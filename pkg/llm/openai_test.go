package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewOpenAIClient(&OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o",
	})
	require.NoError(t, err)
	return client, srv
}

func textResponse(text string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{
				"message":       map[string]any{"role": "assistant", "content": text},
				"finish_reason": "stop",
			},
		},
	}
}

func TestOpenAIClient_TextReply(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(textResponse("Could you narrow that down to a time range?"))
	})

	reply, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "system prompt"},
		{Role: RoleUser, Content: "show me stuff"},
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, reply.ToolCall)
	assert.Equal(t, "Could you narrow that down to a time range?", reply.Text)
}

func TestOpenAIClient_ToolCallReply(t *testing.T) {
	var gotReq openAIRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role":    "assistant",
						"content": nil,
						"tool_call": map[string]any{
							"name":      "execute_query",
							"arguments": `{"query":"SecurityIncident | take 10","timespan":"P1D"}`,
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		})
	})

	tools := []ToolDeclaration{{
		Name:        "execute_query",
		Description: "Execute a KQL query",
		Parameters:  &jsonschema.Schema{Type: "object"},
	}}
	reply, err := client.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "show me incidents"},
	}, tools)
	require.NoError(t, err)
	require.NotNil(t, reply.ToolCall)
	assert.Equal(t, "execute_query", reply.ToolCall.Name)
	assert.Contains(t, reply.ToolCall.Arguments, "SecurityIncident")

	// Declaring tools must set tool_choice on the wire.
	assert.Equal(t, "auto", gotReq.ToolChoice)
	require.Len(t, gotReq.Tools, 1)
	assert.Equal(t, "execute_query", gotReq.Tools[0].Name)
}

func TestOpenAIClient_AssistantToolCallTurnHasNullContent(t *testing.T) {
	var raw map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		json.NewEncoder(w).Encode(textResponse("analysis"))
	})

	_, err := client.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, ToolName: "execute_query", ToolArgs: `{"query":"x"}`},
		{Role: RoleTool, ToolName: "execute_query", Content: "rows: 3"},
	}, nil)
	require.NoError(t, err)

	msgs := raw["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)
	assert.Nil(t, assistant["content"])
	require.NotNil(t, assistant["tool_call"])
	toolMsg := msgs[2].(map[string]any)
	assert.Equal(t, "execute_query", toolMsg["name"])
	assert.Equal(t, "rows: 3", toolMsg["content"])
}

func TestOpenAIClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrTransport},
		{"bad gateway", http.StatusBadGateway, ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, nil)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIClient_NetworkFailureIsTransport(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()
	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, nil)
	require.ErrorIs(t, err, ErrTransport)
}

func TestOpenAIClient_EmptyChoicesIsTransport(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})
	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, nil)
	require.ErrorIs(t, err, ErrTransport)
}

func TestOpenAIClient_ConfigValidation(t *testing.T) {
	_, err := NewOpenAIClient(&OpenAIConfig{APIKey: "k", Model: "m"})
	require.Error(t, err)
	_, err = NewOpenAIClient(&OpenAIConfig{BaseURL: "http://x", Model: "m"})
	require.Error(t, err)
	_, err = NewOpenAIClient(&OpenAIConfig{BaseURL: "http://x", APIKey: "k"})
	require.Error(t, err)
}
