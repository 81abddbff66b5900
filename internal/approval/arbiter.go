// Package approval implements the Approval Arbiter: it maps each pending
// tool call to a decision using the session's approval policy and, when
// the policy requires it, a single-outstanding request to the UI.
package approval

import (
	"context"
	"encoding/json"
	"sync"
)

// Mode is the session-wide approval policy mode.
type Mode string

const (
	Automatic  Mode = "automatic"
	Interactive Mode = "interactive"
	DenyAll    Mode = "deny_all"
)

// Policy is the session's approval policy: a mode plus the set of tool
// names auto-approved regardless of mode (populated by SessionPersistent
// grants, per §9 Open Question (b) — decided as tool-name-only scoping,
// not parameter-fingerprint scoping; see DESIGN.md).
type Policy struct {
	mu                sync.Mutex
	Mode              Mode
	autoApprovedTools map[string]struct{}
}

// NewPolicy returns a Policy in the given mode with no pre-approved tools.
func NewPolicy(mode Mode) *Policy {
	return &Policy{Mode: mode, autoApprovedTools: make(map[string]struct{})}
}

func (p *Policy) isAutoApproved(toolName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.autoApprovedTools[toolName]
	return ok
}

func (p *Policy) grantSessionPersistent(toolName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoApprovedTools[toolName] = struct{}{}
}

// AutoApprovedTools returns a snapshot of the session-persistent grants.
func (p *Policy) AutoApprovedTools() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.autoApprovedTools))
	for name := range p.autoApprovedTools {
		out = append(out, name)
	}
	return out
}

// Outcome is the arbiter's final answer for a call.
type Outcome string

const (
	Approved Outcome = "approved"
	Denied   Outcome = "denied"
	Cancelled Outcome = "cancelled"
)

// Scope mirrors registry.ApprovalScope without importing it, to keep
// approval decoupled from the registry package.
type Scope string

const (
	OneShot           Scope = "one_shot"
	SessionPersistent Scope = "session_persistent"
)

// Decision is the arbiter's answer to a RequestToolApproval.
type Decision struct {
	Outcome Outcome
	Scope   Scope
}

// Request is a single outstanding approval request handed to whatever
// consumes RequestToolApproval events (typically the event pipeline's Tool
// processor, forwarding to a UI). Reply is a one-shot channel: closing it
// without sending is equivalent to Cancelled.
type Request struct {
	CallID     string
	ToolName   string
	Parameters json.RawMessage
	Reply      chan Decision
}

// Arbiter decides the fate of each tool call per the session policy,
// serializing interactive requests one at a time: additional calls needing
// approval queue FIFO behind the outstanding one via the interaction slot.
type Arbiter struct {
	policy *Policy
	// Emit hands a Request to whatever forwards RequestToolApproval to the
	// UI. It must eventually send exactly one Decision on req.Reply or close
	// it (equivalent to Cancelled), and must not block past ctx's lifetime.
	Emit func(ctx context.Context, req Request)

	slot chan struct{} // buffered(1): holds the single interaction ticket
}

// New returns an Arbiter for the given policy. emit is called once per
// interactive request that must reach the UI.
func New(policy *Policy, emit func(ctx context.Context, req Request)) *Arbiter {
	slot := make(chan struct{}, 1)
	slot <- struct{}{}
	return &Arbiter{policy: policy, Emit: emit, slot: slot}
}

// Decide resolves a tool call's approval. descriptorRequiresApproval is the
// tool descriptor's requires_approval flag.
func (a *Arbiter) Decide(ctx context.Context, callID, toolName string, parameters json.RawMessage, descriptorRequiresApproval bool) Decision {
	if a.policy.Mode == Automatic || !descriptorRequiresApproval || a.policy.isAutoApproved(toolName) {
		return Decision{Outcome: Approved, Scope: OneShot}
	}
	if a.policy.Mode == DenyAll {
		return Decision{Outcome: Denied}
	}

	select {
	case <-a.slot:
	case <-ctx.Done():
		return Decision{Outcome: Cancelled}
	}
	defer func() { a.slot <- struct{}{} }()

	reply := make(chan Decision, 1)
	req := Request{CallID: callID, ToolName: toolName, Parameters: parameters, Reply: reply}
	a.Emit(ctx, req)

	select {
	case decision, ok := <-reply:
		if !ok {
			return Decision{Outcome: Cancelled}
		}
		if decision.Outcome == Approved && decision.Scope == SessionPersistent {
			a.policy.grantSessionPersistent(toolName)
		}
		return decision
	case <-ctx.Done():
		return Decision{Outcome: Cancelled}
	}
}
