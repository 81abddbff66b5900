package chatmodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip_Assistant(t *testing.T) {
	parent := "m-0"
	msg := Message{
		ID:              "m-1",
		ParentMessageID: &parent,
		Timestamp:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Data: AssistantMessage{
			Content: []AssistantContent{
				AssistantThought{Text: "considering options", Signature: "sig-1"},
				AssistantText{Text: "Here is the plan."},
				AssistantToolCall{ToolCall: ToolCall{
					ID:         "call-1",
					Name:       "grep",
					Parameters: json.RawMessage(`{"pattern":"TODO"}`),
				}},
			},
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	require.Equal(t, msg.ID, decoded.ID)
	require.Equal(t, *msg.ParentMessageID, *decoded.ParentMessageID)
	require.True(t, msg.Timestamp.Equal(decoded.Timestamp))

	am, ok := decoded.Data.(AssistantMessage)
	require.True(t, ok)
	require.Len(t, am.Content, 3)

	thought, ok := am.Content[0].(AssistantThought)
	require.True(t, ok)
	require.Equal(t, "considering options", thought.Text)
	require.Equal(t, "sig-1", thought.Signature)

	text, ok := am.Content[1].(AssistantText)
	require.True(t, ok)
	require.Equal(t, "Here is the plan.", text.Text)

	call, ok := am.Content[2].(AssistantToolCall)
	require.True(t, ok)
	require.Equal(t, "grep", call.ToolCall.Name)
}

func TestMessageRoundTrip_ToolResultVariants(t *testing.T) {
	cases := []struct {
		name   string
		result ToolResult
	}{
		{"file_content", FileContentResult{Path: "a.go", Content: "package a", LineEnd: 1}},
		{"listing", ListingResult{Path: ".", Entries: []DirEntry{{Name: "a.go", Size: 10}}}},
		{"glob", GlobResult{Pattern: "**/*.go", Paths: []string{"a.go"}}},
		{"grep", GrepResult{Pattern: "TODO", Matches: []GrepMatch{{Path: "a.go", Line: 3, Text: "// TODO"}}}},
		{"ast_grep", AstGrepResult{Pattern: "func $NAME()", Matches: []AstGrepMatch{{Path: "a.go", LineStart: 1, LineEnd: 3}}}},
		{"edit", EditResult{Path: "a.go", Diff: "+x", BytesWritten: 2}},
		{"write", WriteResult{Path: "b.go", Created: true, BytesWritten: 9}},
		{"bash", BashResult{Command: "ls", ExitCode: 0}},
		{"fetch", FetchResult{URL: "https://example.com", StatusCode: 200, Body: "ok"}},
		{"todo_list", TodoListResult{Items: []TodoItem{{ID: "1", Text: "write tests", Status: "pending"}}}},
		{"error", ErrorResult{Message: "boom", Code: "EXEC_FAILED", Retryable: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := Message{
				ID:        "m-tool",
				Timestamp: time.Now().UTC(),
				Data: ToolMessage{
					ToolUseID: "call-1",
					Result:    tc.result,
				},
			}
			raw, err := json.Marshal(msg)
			require.NoError(t, err)

			var decoded Message
			require.NoError(t, json.Unmarshal(raw, &decoded))

			tm, ok := decoded.Data.(ToolMessage)
			require.True(t, ok)
			require.Equal(t, tc.result.Kind(), tm.Result.Kind())
			require.Equal(t, tc.result, tm.Result)
		})
	}
}

func TestMessageRoundTrip_UserContent(t *testing.T) {
	resp := "done"
	msg := Message{
		ID:        "m-user",
		Timestamp: time.Now().UTC(),
		Data: UserMessage{
			Content: []UserContent{
				UserText{Text: "fix the bug"},
				UserCommandExecution{Command: "go vet ./...", ExitCode: 1, Stderr: "vet error"},
				UserAppCommand{Command: "/compact", Response: &resp},
			},
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	um, ok := decoded.Data.(UserMessage)
	require.True(t, ok)
	require.Len(t, um.Content, 3)
	require.Equal(t, UserText{Text: "fix the bug"}, um.Content[0])
}

func TestUnmarshalUnknownKind(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"id":"x","timestamp":"2026-01-01T00:00:00Z","data":{"kind":"bogus"}}`), &msg)
	require.Error(t, err)
}
