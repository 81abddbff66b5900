package toolcatalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/creack/pty"
)

const defaultBashTimeout = 2 * time.Minute

// BashParams is the bash tool's parameter shape.
type BashParams struct {
	Command    string `json:"command" jsonschema:"required,description=Shell command to execute"`
	TimeoutSec int    `json:"timeout_sec,omitempty" jsonschema:"description=Timeout in seconds; defaults to 120"`
}

// BashTool runs a command through a pty for a faithful interactive shell
// surface, enforcing a timeout and cooperative cancellation.
type BashTool struct {
	schema     json.RawMessage
	WorkingDir string
}

func NewBashTool(workingDir string) *BashTool {
	return &BashTool{schema: GenerateSchema(BashParams{}), WorkingDir: workingDir}
}

func (t *BashTool) Name() string                     { return "bash" }
func (t *BashTool) Description() string              { return "Execute a shell command in the workspace." }
func (t *BashTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *BashTool) RequiresApproval() bool           { return true }
func (t *BashTool) Category() Category               { return Execute }

func (t *BashTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p BashParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	timeout := defaultBashTimeout
	if p.TimeoutSec > 0 {
		timeout = time.Duration(p.TimeoutSec) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", p.Command)
	dir := ectx.WorkingDir
	if dir == "" {
		dir = t.WorkingDir
	}
	cmd.Dir = dir

	ptyFile, err := pty.Start(cmd)
	if err != nil {
		return nil, &ToolError{Kind: ErrExecution, ToolName: t.Name(), Message: err.Error()}
	}
	defer ptyFile.Close()

	var out bytes.Buffer
	copyDone := make(chan struct{})
	go func() {
		io.Copy(&out, ptyFile)
		close(copyDone)
	}()

	waitErr := cmd.Wait()
	select {
	case <-copyDone:
	case <-time.After(time.Second):
		// pty may not EOF promptly if a child leaked the fd; don't block the
		// tool result on it.
	}

	if ctx.Err() != nil {
		return nil, &ToolError{Kind: ErrCancelled, ToolName: t.Name(), Message: "cancelled"}
	}

	exitCode := 0
	timedOut := false
	if waitErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			timedOut = true
		}
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if !timedOut {
			exitCode = -1
		}
	}

	return chatmodel.BashResult{
		Command:  p.Command,
		Stdout:   out.String(),
		ExitCode: exitCode,
		TimedOut: timedOut,
	}, nil
}
