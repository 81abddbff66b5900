package tui

import (
	"testing"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/events"
	"github.com/stretchr/testify/require"
)

func TestDecisionForKeys(t *testing.T) {
	d, ok := decisionFor("y")
	require.True(t, ok)
	require.Equal(t, approval.Approved, d.Outcome)
	require.Equal(t, approval.OneShot, d.Scope)

	d, ok = decisionFor("s")
	require.True(t, ok)
	require.Equal(t, approval.SessionPersistent, d.Scope)

	d, ok = decisionFor("n")
	require.True(t, ok)
	require.Equal(t, approval.Denied, d.Outcome)

	_, ok = decisionFor("x")
	require.False(t, ok)
}

func TestApplyEventSetsPendingApproval(t *testing.T) {
	var m Model
	m.applyEvent(events.RequestToolApproval{ID: "c1", ToolName: "bash", Parameters: []byte(`{}`)})
	require.NotNil(t, m.pending)
	require.Equal(t, "c1", m.pending.callID)
	require.Equal(t, "bash", m.pending.toolName)
}

func TestApplyEventAppendsToolFailureLine(t *testing.T) {
	var m Model
	m.applyEvent(events.ToolCallFailed{ID: "c1", Error: "boom"})
	require.Len(t, m.lines, 1)
	require.Contains(t, m.lines[0], "boom")
}

func TestAppendMessageRendersUserText(t *testing.T) {
	var m Model
	m.appendMessage(chatmodel.Message{Data: chatmodel.UserMessage{
		Content: []chatmodel.UserContent{chatmodel.UserText{Text: "hello"}},
	}})
	require.Len(t, m.lines, 1)
	require.Contains(t, m.lines[0], "hello")
}

func TestProcessingStartedAndFinishedToggleRunning(t *testing.T) {
	var m Model
	m.applyEvent(events.ProcessingStarted{})
	require.True(t, m.running)
	m.applyEvent(events.ProcessingFinished{})
	require.False(t, m.running)
}
