// Package contextutil estimates token counts for context-window bookkeeping
// (compaction thresholds, truncation decisions).
package contextutil

import (
	"log"
	"sync"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/pkoukk/tiktoken-go"
)

// TokenFudgeFactor is a safety margin to account for differences between
// the cl100k_base estimate and a provider's actual tokenizer.
const TokenFudgeFactor = 1.05

var (
	tkm     *tiktoken.Tiktoken
	tkmOnce sync.Once
)

func getTokenizer() *tiktoken.Tiktoken {
	tkmOnce.Do(func() {
		var err error
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("contextutil: failed to load tiktoken encoding: %v, falling back to heuristic", err)
		}
	})
	return tkm
}

// EstimateTokens estimates the token count of a string, using tiktoken if
// available and a 1:4 character heuristic otherwise.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if tokenizer := getTokenizer(); tokenizer != nil {
		return len(tokenizer.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// EstimateBudgetedTokens applies TokenFudgeFactor to EstimateTokens.
func EstimateBudgetedTokens(text string) int {
	return int(float64(EstimateTokens(text)) * TokenFudgeFactor)
}

// EstimateMessageTokens estimates the token count of a message, covering
// every content block and any attached tool call/result.
func EstimateMessageTokens(msg chatmodel.Message) int {
	return estimateMessageTokens(msg, false)
}

// EstimateMessageBudgetedTokens is EstimateMessageTokens with the fudge
// factor applied.
func EstimateMessageBudgetedTokens(msg chatmodel.Message) int {
	return estimateMessageTokens(msg, true)
}

func estimateMessageTokens(msg chatmodel.Message, budgeted bool) int {
	est := EstimateTokens
	if budgeted {
		est = EstimateBudgetedTokens
	}

	tokens := 4 // role/envelope overhead, matching typical chat-format bookkeeping

	switch data := msg.Data.(type) {
	case chatmodel.UserMessage:
		for _, c := range data.Content {
			tokens += estimateUserContent(c, est)
		}
	case chatmodel.AssistantMessage:
		for _, c := range data.Content {
			tokens += estimateAssistantContent(c, est)
		}
	case chatmodel.ToolMessage:
		tokens += estimateToolResult(data.Result, est)
	}
	return tokens
}

func estimateUserContent(c chatmodel.UserContent, est func(string) int) int {
	switch v := c.(type) {
	case chatmodel.UserText:
		return est(v.Text)
	case chatmodel.UserCommandExecution:
		return est(v.Command) + est(v.Stdout) + est(v.Stderr)
	case chatmodel.UserAppCommand:
		n := est(v.Command)
		if v.Response != nil {
			n += est(*v.Response)
		}
		return n
	default:
		return 0
	}
}

func estimateAssistantContent(c chatmodel.AssistantContent, est func(string) int) int {
	switch v := c.(type) {
	case chatmodel.AssistantText:
		return est(v.Text)
	case chatmodel.AssistantThought:
		return est(v.Text)
	case chatmodel.AssistantToolCall:
		return est(v.ToolCall.Name) + est(string(v.ToolCall.Parameters))
	default:
		return 0
	}
}

func estimateToolResult(r chatmodel.ToolResult, est func(string) int) int {
	switch v := r.(type) {
	case chatmodel.FileContentResult:
		return est(v.Content)
	case chatmodel.ListingResult:
		n := 0
		for _, e := range v.Entries {
			n += est(e.Name)
		}
		return n
	case chatmodel.GlobResult:
		n := 0
		for _, p := range v.Paths {
			n += est(p)
		}
		return n
	case chatmodel.GrepResult:
		n := 0
		for _, m := range v.Matches {
			n += est(m.Text)
		}
		return n
	case chatmodel.AstGrepResult:
		n := 0
		for _, m := range v.Matches {
			n += est(m.Text)
		}
		return n
	case chatmodel.EditResult:
		return est(v.Diff)
	case chatmodel.BashResult:
		return est(v.Stdout) + est(v.Stderr)
	case chatmodel.FetchResult:
		return est(v.Body)
	case chatmodel.TodoListResult:
		n := 0
		for _, t := range v.Items {
			n += est(t.Text)
		}
		return n
	case chatmodel.ErrorResult:
		return est(v.Message)
	default:
		return 0
	}
}

// EstimateTotalTokens sums EstimateMessageTokens across messages.
func EstimateTotalTokens(messages []chatmodel.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessageTokens(msg)
	}
	return total
}

// EstimateTotalBudgetedTokens sums EstimateMessageBudgetedTokens across
// messages.
func EstimateTotalBudgetedTokens(messages []chatmodel.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessageBudgetedTokens(msg)
	}
	return total
}
