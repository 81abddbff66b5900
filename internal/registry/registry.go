// Package registry tracks the lifecycle of every tool call a model issues
// in a session, guaranteeing at-most-one execution per call id along the
// state DAG:
//
//	Pending --approval required--> AwaitingApproval --Approved--> Executing
//	  |                                |                            |-ok-> Completed
//	  |                                |-Denied-------------------> Denied
//	  |                                `-Cancelled----------------> Cancelled
//	  `--no approval required------------------------------------> Executing
//	                                                                 |-err-> Failed
//	                                                                 `-cancel-> Cancelled
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
)

// State is a ToolCallRecord's position in the lifecycle DAG.
type State string

const (
	Pending          State = "pending"
	AwaitingApproval State = "awaiting_approval"
	Executing        State = "executing"
	Completed        State = "completed"
	Failed           State = "failed"
	Cancelled        State = "cancelled"
	Denied           State = "denied"
)

func (s State) terminal() bool {
	switch s {
	case Completed, Failed, Cancelled, Denied:
		return true
	default:
		return false
	}
}

// ApprovalScope records whether an approval applies to one call or to every
// future call of the same tool within the session.
type ApprovalScope string

const (
	OneShot          ApprovalScope = "one_shot"
	SessionPersistent ApprovalScope = "session_persistent"
)

// ToolCallRecord is one entry in the registry.
type ToolCallRecord struct {
	ID            string
	Name          string
	Parameters    json.RawMessage
	State         State
	ApprovalScope ApprovalScope
	StartedAt     *time.Time
	FinishedAt    *time.Time
	Result        chatmodel.ToolResult
	Error         error
}

// InvariantViolation signals a registry invariant was violated by the
// caller: a bug, not a recoverable runtime condition. The Session
// Controller should log it, surface a SystemNotice, and abort the turn.
type InvariantViolation struct {
	msg string
}

func (e *InvariantViolation) Error() string { return e.msg }

func violation(format string, args ...any) error {
	return &InvariantViolation{msg: fmt.Sprintf(format, args...)}
}

// Registry is the ordered id -> ToolCallRecord mapping. Guarded by a single
// mutex; per-record state transitions are checked under that lock so there
// is at most one concurrent Executing transition per id across the
// process.
type Registry struct {
	mu      sync.Mutex
	records map[string]*ToolCallRecord
	order   []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[string]*ToolCallRecord)}
}

// Reset discards every record, used by new_session to clear in-flight state
// without discarding the Registry instance other components already hold a
// pointer to.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*ToolCallRecord)
	r.order = nil
}

// RegisterCall inserts a new Pending record for id, or, if id already
// exists, enforces idempotency per invariant I2: a terminal record is left
// unchanged, a warning is logged, and (existing, false, nil) is returned; a
// non-terminal record requires byte-equivalent parameters or returns an
// InvariantViolation.
func (r *Registry) RegisterCall(id, name string, parameters json.RawMessage) (*ToolCallRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[id]; ok {
		if existing.State.terminal() {
			log.Printf("registry: register_call for %q ignored: record already %s", id, existing.State)
			return existing, false, nil
		}
		if !bytes.Equal(existing.Parameters, parameters) {
			return nil, false, violation("register_call: id %q re-registered with different parameters while state=%s", id, existing.State)
		}
		return existing, false, nil
	}

	rec := &ToolCallRecord{
		ID:         id,
		Name:       name,
		Parameters: parameters,
		State:      Pending,
	}
	r.records[id] = rec
	r.order = append(r.order, id)
	return rec, true, nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (ToolCallRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ToolCallRecord{}, false
	}
	return *rec, true
}

// All returns a snapshot of every record in registration order.
func (r *Registry) All() []ToolCallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ToolCallRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.records[id])
	}
	return out
}

func (r *Registry) transition(id string, from []State, to State, mutate func(*ToolCallRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return violation("transition to %s: id %q not registered", to, id)
	}
	ok = false
	for _, f := range from {
		if rec.State == f {
			ok = true
			break
		}
	}
	if !ok {
		return violation("transition to %s: id %q has state %s, expected one of %v", to, id, rec.State, from)
	}
	rec.State = to
	if mutate != nil {
		mutate(rec)
	}
	return nil
}

// RequireApproval moves a Pending record to AwaitingApproval.
func (r *Registry) RequireApproval(id string) error {
	return r.transition(id, []State{Pending}, AwaitingApproval, nil)
}

// Approve moves a record to Executing from Pending (no-approval path) or
// AwaitingApproval (approved path), recording the grant's scope and start
// time.
func (r *Registry) Approve(id string, scope ApprovalScope) error {
	now := time.Now()
	return r.transition(id, []State{Pending, AwaitingApproval}, Executing, func(rec *ToolCallRecord) {
		rec.ApprovalScope = scope
		rec.StartedAt = &now
	})
}

// Deny moves an AwaitingApproval record to Denied.
func (r *Registry) Deny(id string) error {
	now := time.Now()
	return r.transition(id, []State{AwaitingApproval}, Denied, func(rec *ToolCallRecord) {
		rec.FinishedAt = &now
	})
}

// CancelAwaitingApproval moves an AwaitingApproval or Pending record to Cancelled
// (dropped approval handle, or turn cancellation before approval).
func (r *Registry) CancelAwaitingApproval(id string) error {
	now := time.Now()
	return r.transition(id, []State{AwaitingApproval, Pending}, Cancelled, func(rec *ToolCallRecord) {
		rec.FinishedAt = &now
	})
}

// CompleteExecution moves an Executing record to Completed with its
// result. Rejected unless state is Executing (invariant I3).
func (r *Registry) CompleteExecution(id string, result chatmodel.ToolResult) error {
	now := time.Now()
	return r.transition(id, []State{Executing}, Completed, func(rec *ToolCallRecord) {
		rec.Result = result
		rec.FinishedAt = &now
	})
}

// FailExecution moves an Executing record to Failed with its error.
// Rejected unless state is Executing (invariant I3).
func (r *Registry) FailExecution(id string, err error) error {
	now := time.Now()
	return r.transition(id, []State{Executing}, Failed, func(rec *ToolCallRecord) {
		rec.Error = err
		rec.FinishedAt = &now
	})
}

// CancelExecution moves an Executing record to Cancelled.
func (r *Registry) CancelExecution(id string) error {
	now := time.Now()
	return r.transition(id, []State{Executing}, Cancelled, func(rec *ToolCallRecord) {
		rec.FinishedAt = &now
	})
}
