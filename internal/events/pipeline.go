package events

import (
	"sort"
	"sync"

	"github.com/conductorhq/conductor/internal/chatstore"
	"github.com/conductorhq/conductor/internal/registry"
)

// Outcome is a processor's verdict on one event.
type Outcome int

const (
	NotHandled Outcome = iota
	Handled
	HandledAndComplete
	ProcessFailed
)

// ProcessResult is a processor's return value: an Outcome plus an optional
// failure message when Outcome is ProcessFailed.
type ProcessResult struct {
	Outcome Outcome
	Err     error
}

// UIFlags are the view-model flags the Processing State, Message, Tool,
// and System processors maintain for the UI to poll alongside Chat Store
// revisions.
type UIFlags struct {
	mu                   sync.Mutex
	IsProcessing         bool
	ProgressMessage      string
	SpinnerState         string
	CurrentToolApproval  *string
	CurrentModel         string
	MessagesUpdated      bool
	InFlightOperations   []string
}

func NewUIFlags() *UIFlags { return &UIFlags{} }

func (f *UIFlags) Snapshot() UIFlags {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f
	cp.InFlightOperations = append([]string{}, f.InFlightOperations...)
	return cp
}

func (f *UIFlags) set(mutate func(*UIFlags)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f)
}

// PipelineContext is the state every processor mutates.
type PipelineContext struct {
	ChatStore *chatstore.ChatStore
	Registry  *registry.Registry
	Flags     *UIFlags
}

// Processor handles a subset of events, ordered by ascending Priority
// (lower runs first). Returning HandledAndComplete stops propagation to
// later processors for that event.
type Processor interface {
	Name() string
	Priority() int
	CanHandle(e Event) bool
	Process(pctx *PipelineContext, e Event) ProcessResult
}

// Pipeline runs events through its processors in priority order. Events
// from one turn are always processed in the exact order Emit is called,
// matching the executor's emission order.
type Pipeline struct {
	mu         sync.Mutex
	processors []Processor
	ctx        *PipelineContext
	bus        *Bus
}

// SetBus attaches the Bus every Emit publishes to after processors run, so
// UI subscribers observe each event in the exact order a turn emitted it.
func (p *Pipeline) SetBus(b *Bus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus = b
}

// New returns a Pipeline bound to pctx, with processors sorted by
// ascending priority (stable, so same-priority registrations keep
// insertion order).
func New(pctx *PipelineContext, processors ...Processor) *Pipeline {
	sorted := append([]Processor{}, processors...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	return &Pipeline{processors: sorted, ctx: pctx}
}

// Emit runs e through every eligible processor in priority order, stopping
// early on HandledAndComplete. Callers must invoke Emit sequentially for a
// single turn to preserve event ordering; Emit itself serializes concurrent
// callers across turns with an internal mutex, matching the "registry is
// guarded by a single mutex" resource model.
func (p *Pipeline) Emit(e Event) []ProcessResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	var results []ProcessResult
	for _, proc := range p.processors {
		if !proc.CanHandle(e) {
			continue
		}
		res := proc.Process(p.ctx, e)
		results = append(results, res)
		if res.Outcome == HandledAndComplete {
			break
		}
	}
	if p.bus != nil {
		p.bus.Publish(e)
	}
	return results
}
