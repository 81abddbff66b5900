package registry

import (
	"encoding/json"
	"testing"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/stretchr/testify/require"
)

func TestRegisterCallIdempotent(t *testing.T) {
	r := New()
	params := json.RawMessage(`{"a":1}`)
	rec1, fresh1, err := r.RegisterCall("t1", "bash", params)
	require.NoError(t, err)
	require.True(t, fresh1)
	require.Equal(t, Pending, rec1.State)

	rec2, fresh2, err := r.RegisterCall("t1", "bash", params)
	require.NoError(t, err)
	require.False(t, fresh2)
	require.Equal(t, rec1.ID, rec2.ID)
}

func TestRegisterCallRejectsMismatchedParametersWhilePending(t *testing.T) {
	r := New()
	_, _, err := r.RegisterCall("t1", "bash", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	_, _, err = r.RegisterCall("t1", "bash", json.RawMessage(`{"a":2}`))
	require.Error(t, err)
	var target *InvariantViolation
	require.ErrorAs(t, err, &target)
}

func TestRegisterCallIgnoresTerminalReRegistration(t *testing.T) {
	r := New()
	_, _, err := r.RegisterCall("t1", "bash", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.NoError(t, r.Approve("t1", OneShot))
	require.NoError(t, r.CompleteExecution("t1", chatmodel.BashResult{ExitCode: 0}))

	rec, fresh, err := r.RegisterCall("t1", "bash", json.RawMessage(`{"a":999}`))
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, Completed, rec.State)
}

func TestNoApprovalPath(t *testing.T) {
	r := New()
	_, _, err := r.RegisterCall("t1", "view", nil)
	require.NoError(t, err)
	require.NoError(t, r.Approve("t1", OneShot))
	rec, _ := r.Get("t1")
	require.Equal(t, Executing, rec.State)

	require.NoError(t, r.CompleteExecution("t1", chatmodel.FileContentResult{Path: "a.txt"}))
	rec, _ = r.Get("t1")
	require.Equal(t, Completed, rec.State)
}

func TestApprovalPathDenied(t *testing.T) {
	r := New()
	_, _, err := r.RegisterCall("t2", "bash", nil)
	require.NoError(t, err)
	require.NoError(t, r.RequireApproval("t2"))
	require.NoError(t, r.Deny("t2"))

	rec, _ := r.Get("t2")
	require.Equal(t, Denied, rec.State)
}

func TestCompleteExecutionRejectedUnlessExecuting(t *testing.T) {
	r := New()
	_, _, err := r.RegisterCall("t3", "bash", nil)
	require.NoError(t, err)

	err = r.CompleteExecution("t3", chatmodel.BashResult{})
	require.Error(t, err)
	var target *InvariantViolation
	require.ErrorAs(t, err, &target)
}

func TestRecordNeverLeavesTerminalState(t *testing.T) {
	r := New()
	_, _, err := r.RegisterCall("t4", "bash", nil)
	require.NoError(t, err)
	require.NoError(t, r.Approve("t4", OneShot))
	require.NoError(t, r.FailExecution("t4", errExec))

	err = r.CompleteExecution("t4", chatmodel.BashResult{})
	require.Error(t, err)
}

var errExec = &InvariantViolation{msg: "boom"}
