package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAutomaticModeApprovesWithoutInteraction(t *testing.T) {
	policy := NewPolicy(Automatic)
	emitCalled := false
	arb := New(policy, func(ctx context.Context, req Request) { emitCalled = true })

	d := arb.Decide(context.Background(), "t1", "bash", nil, true)
	require.Equal(t, Approved, d.Outcome)
	require.False(t, emitCalled)
}

func TestDescriptorNoApprovalRequiredSkipsInteraction(t *testing.T) {
	policy := NewPolicy(Interactive)
	arb := New(policy, func(ctx context.Context, req Request) { t.Fatal("should not emit") })

	d := arb.Decide(context.Background(), "t1", "view", nil, false)
	require.Equal(t, Approved, d.Outcome)
}

func TestDenyAllDeniesWithoutInteraction(t *testing.T) {
	policy := NewPolicy(DenyAll)
	arb := New(policy, func(ctx context.Context, req Request) { t.Fatal("should not emit") })

	d := arb.Decide(context.Background(), "t1", "bash", nil, true)
	require.Equal(t, Denied, d.Outcome)
}

func TestInteractiveApprovalSessionPersistentGrantsFutureCalls(t *testing.T) {
	policy := NewPolicy(Interactive)
	arb := New(policy, func(ctx context.Context, req Request) {
		req.Reply <- Decision{Outcome: Approved, Scope: SessionPersistent}
	})

	d := arb.Decide(context.Background(), "t1", "bash", nil, true)
	require.Equal(t, Approved, d.Outcome)

	// Second call to the same tool should now skip interaction entirely.
	arb2 := New(policy, func(ctx context.Context, req Request) { t.Fatal("should not emit") })
	d2 := arb2.Decide(context.Background(), "t2", "bash", nil, true)
	require.Equal(t, Approved, d2.Outcome)
}

func TestDroppedReplyChannelIsCancelled(t *testing.T) {
	policy := NewPolicy(Interactive)
	arb := New(policy, func(ctx context.Context, req Request) {
		close(req.Reply)
	})

	d := arb.Decide(context.Background(), "t1", "bash", nil, true)
	require.Equal(t, Cancelled, d.Outcome)
}

func TestCancelledContextWhileWaiting(t *testing.T) {
	policy := NewPolicy(Interactive)
	arb := New(policy, func(ctx context.Context, req Request) {
		// never reply
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	d := arb.Decide(ctx, "t1", "bash", nil, true)
	require.Equal(t, Cancelled, d.Outcome)
}

func TestQueueingSerializesInteractiveRequests(t *testing.T) {
	policy := NewPolicy(Interactive)
	var order []string
	var mu chan struct{} = make(chan struct{}, 1)
	mu <- struct{}{}

	arb := New(policy, func(ctx context.Context, req Request) {
		<-mu
		order = append(order, req.CallID)
		mu <- struct{}{}
		req.Reply <- Decision{Outcome: Approved, Scope: OneShot}
	})

	done := make(chan struct{}, 2)
	go func() {
		arb.Decide(context.Background(), "t1", "bash", nil, true)
		done <- struct{}{}
	}()
	go func() {
		arb.Decide(context.Background(), "t2", "bash", nil, true)
		done <- struct{}{}
	}()
	<-done
	<-done
	require.Len(t, order, 2)
}
