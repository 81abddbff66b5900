// Package llmprovider defines the abstract streaming chat interface the
// executor drives, plus a retry-wrapped transport shared by concrete
// adapters. Concrete adapters (anthropic) live outside this package so the
// core never imports a provider SDK directly.
package llmprovider

import (
	"context"

	"github.com/conductorhq/conductor/internal/chatmodel"
)

// Request is one provider-agnostic chat completion request.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []chatmodel.Message
	Tools        []ToolSpec
	MaxTokens    int
}

// ToolSpec describes one tool the model may call, independent of the
// catalog's richer Go Tool interface.
type ToolSpec struct {
	Name        string
	Description string
	Schema      []byte // JSON Schema
}

// ChunkKind discriminates a StreamChunk's payload.
type ChunkKind int

const (
	ChunkTextDelta ChunkKind = iota
	ChunkThoughtDelta
	ChunkToolCallDelta
	ChunkCompletion
	ChunkError
)

// StreamChunk is one item of a provider's chat stream. Tool-call deltas for
// different ids may arrive interleaved; a Completion always terminates the
// stream for its request.
type StreamChunk struct {
	Kind ChunkKind

	TextDelta     string
	ThoughtDelta  string
	ThoughtSig    string
	ToolCallID    string
	ToolCallName  string // set once, on the first delta for an id
	ToolCallFrag  string // JSON parameter fragment to append

	StopReason string // set on ChunkCompletion
	Err        error  // set on ChunkError
}

// Provider is the executor's sole dependency on an LLM backend.
type Provider interface {
	Name() string
	ChatStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}
