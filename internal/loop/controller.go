package loop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/popilot-dev/popilot/internal/chatclient"
	"github.com/popilot-dev/popilot/internal/policy"
	"github.com/popilot-dev/popilot/internal/session"
	"github.com/popilot-dev/popilot/internal/tool"
	"github.com/popilot-dev/popilot/internal/toolparse"
)

// displayThrottle bounds how often a Snapshot is published while a
// response streams in (spec §4.7 step 3: ~50ms batches).
const displayThrottle = 50 * time.Millisecond

// transientRetryDelay is the pause between loop-level retries of a
// transient backend error (spec §4.7 step 4).
const transientRetryDelay = 2 * time.Second

// emptyResponseRetryDelay is the pause before the single empty-response
// retry (spec §4.7 step 5).
const emptyResponseRetryDelay = 500 * time.Millisecond

// destructiveTools is checkpointed before execution (spec §3 Checkpoint:
// "created before a potentially destructive tool").
var destructiveTools = map[string]bool{
	"file.applyTextEdits":  true,
	"create_new_file":      true,
	"edit_file":            true,
	"run_terminal_command": true,
	"git.restore":           true,
}

// Streamer is the Controller's one seam onto the out-of-scope request
// transformer and Chat Stream Client: given the causal message history it
// must invoke onDelta with each raw chunk of text as it arrives (for live
// filtered display) and return the full response text plus any
// server-assigned thread id once the stream ends.
type Streamer interface {
	Stream(ctx context.Context, messages []session.Message, onDelta func(delta string)) (full string, threadID string, err error)
}

// Controller is the Agentic Loop Controller (spec §4.7). One Controller
// instance runs exactly one agentic turn at a time (spec "Concurrency").
type Controller struct {
	mu sync.Mutex

	sessions    *session.Store
	checkpoints *session.CheckpointStore
	policyEng   *policy.Engine
	decisions   *policy.DecisionStore
	toolCtx     *tool.ToolContext
	stream      Streamer

	views  chan Snapshot
	state  LoopState
	cancel context.CancelFunc
}

// New wires a Controller over its collaborators. checkpoints may be nil
// if the caller has no destructive-tool rollback requirement.
func New(sessions *session.Store, checkpoints *session.CheckpointStore, policyEng *policy.Engine, decisions *policy.DecisionStore, toolCtx *tool.ToolContext, stream Streamer) *Controller {
	return &Controller{
		sessions:    sessions,
		checkpoints: checkpoints,
		policyEng:   policyEng,
		decisions:   decisions,
		toolCtx:     toolCtx,
		stream:      stream,
		views:       make(chan Snapshot, 32),
		state:       LoopState{State: StateIdle},
	}
}

// Views returns the read-only channel of published snapshots.
func (c *Controller) Views() <-chan Snapshot { return c.views }

// SessionStore exposes the underlying Session Store for read access
// (e.g. printing the latest assistant message from a REPL driver).
func (c *Controller) SessionStore() *session.Store { return c.sessions }

// Snapshot returns the current state without blocking.
func (c *Controller) Snapshot() LoopState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) publish(s Snapshot) {
	select {
	case c.views <- s:
	default:
		// A full buffer means the view is behind; drop the oldest rather
		// than block the loop on UI catch-up.
		select {
		case <-c.views:
		default:
		}
		c.views <- s
	}
}

func (c *Controller) setState(st State) {
	c.mu.Lock()
	c.state.State = st
	c.mu.Unlock()
}

// RunTurn dispatches userText as a fresh turn and drives the loop to
// suspension (ask / interrupted / error) or completion.
func (c *Controller) RunTurn(ctx context.Context, sessionID, userText string) error {
	c.mu.Lock()
	c.state = LoopState{State: StateStreaming, Iteration: 0}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.sessions.AddMessage(sessionID, session.Message{Role: "user", Content: userText}); err != nil {
		return err
	}

	return c.loop(ctx, sessionID, 0)
}

// Resume restores a suspended turn from its stashed PendingLoopState,
// applies the user's confirm/deny answer to the call at CursorIndex, then
// continues the original round before re-entering the streaming loop
// (spec §4.7 "Resume").
func (c *Controller) Resume(ctx context.Context, sessionID string, resp ConfirmResponse) error {
	c.mu.Lock()
	pending := c.state.Pending
	c.mu.Unlock()
	if pending == nil {
		return fmt.Errorf("loop: no pending confirmation to resume")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.state.Pending = nil
	c.state.State = StateExecutingTool
	c.mu.Unlock()

	call := pending.ToolCalls[pending.CursorIndex]
	if err := c.settleToolCall(ctx, sessionID, call, resp); err != nil {
		return err
	}

	if err := c.runRemainingCalls(ctx, sessionID, pending.ToolCalls, pending.CursorIndex+1, pending.Iteration); err != nil {
		if err == errSuspended {
			return nil
		}
		return err
	}

	return c.loop(ctx, sessionID, pending.Iteration+1)
}

// Interrupt cancels an in-flight stream, appends the partial response
// with an "[interrupted]" suffix, and clears any pending confirmation
// (spec §4.7 "Interrupt"). The caller is responsible for dispatching the
// new input as a fresh RunTurn afterward.
func (c *Controller) Interrupt(sessionID, partial string) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.state = LoopState{State: StateIdle, Outcome: OutcomeInterrupted}
	c.mu.Unlock()

	text := strings.TrimSpace(partial)
	if text != "" {
		text += " [interrupted]"
	} else {
		text = "[interrupted]"
	}
	_ = c.sessions.AddMessage(sessionID, session.Message{Role: "assistant", Content: text})
}

// loop is the per-iteration algorithm of spec §4.7 steps 1-8, entered
// fresh from RunTurn and re-entered from Resume after a suspended round's
// remaining calls have been settled.
func (c *Controller) loop(ctx context.Context, sessionID string, iteration int) error {
	for {
		if iteration >= MaxIterations {
			return c.finish(sessionID, OutcomeMaxIterations, nil)
		}

		sess, ok := c.sessions.Get(sessionID)
		if !ok {
			return fmt.Errorf("loop: unknown session %s", sessionID)
		}

		full, _, err := c.streamWithRetry(ctx, sessionID, sess.Messages)
		if err != nil {
			return c.finish(sessionID, OutcomeError, err)
		}

		calls := toolparse.ExtractAll(full)
		clean := toolparse.RemoveToolBlocks(full)

		display := strings.TrimSpace(clean)
		if display == "" {
			display = "(no text response)"
		}
		if err := c.sessions.AddMessage(sessionID, session.Message{Role: "assistant", Content: display}); err != nil {
			return err
		}

		if len(calls) == 0 {
			return c.finish(sessionID, OutcomeCompleted, nil)
		}

		c.setState(StateExecutingTool)
		suspended, err := c.runCallsFromZero(ctx, sessionID, calls, iteration)
		if err != nil {
			return c.finish(sessionID, OutcomeError, err)
		}
		if suspended {
			return nil // StateConfirming; awaiting Resume
		}

		iteration++
		c.mu.Lock()
		c.state.Iteration = iteration
		c.state.State = StateStreaming
		c.mu.Unlock()
	}
}

// runCallsFromZero processes calls starting at index 0, used on a fresh
// round. It returns suspended=true if it stashed a PendingLoopState for
// confirmation and returned control to the caller.
func (c *Controller) runCallsFromZero(ctx context.Context, sessionID string, calls []toolparse.ToolCall, iteration int) (bool, error) {
	for idx, call := range calls {
		suspend, err := c.dispatchCall(ctx, sessionID, call)
		if err != nil {
			return false, err
		}
		if suspend {
			sess, _ := c.sessions.Get(sessionID)
			c.mu.Lock()
			c.state.State = StateConfirming
			c.state.Pending = &PendingLoopState{
				Iteration:            iteration,
				ToolCalls:            calls,
				CursorIndex:          idx,
				ConversationSnapshot: sess.Messages,
			}
			c.mu.Unlock()
			c.publish(Snapshot{Status: StateConfirming, PendingToolCall: &call, At: time.Now()})
			return true, nil
		}
	}
	return false, nil
}

// runRemainingCalls continues an in-progress round from a resumed index.
func (c *Controller) runRemainingCalls(ctx context.Context, sessionID string, calls []toolparse.ToolCall, from, iteration int) error {
	for idx := from; idx < len(calls); idx++ {
		suspend, err := c.dispatchCall(ctx, sessionID, calls[idx])
		if err != nil {
			return err
		}
		if suspend {
			sess, _ := c.sessions.Get(sessionID)
			c.mu.Lock()
			c.state.State = StateConfirming
			c.state.Pending = &PendingLoopState{
				Iteration:            iteration,
				ToolCalls:            calls,
				CursorIndex:          idx,
				ConversationSnapshot: sess.Messages,
			}
			c.mu.Unlock()
			call := calls[idx]
			c.publish(Snapshot{Status: StateConfirming, PendingToolCall: &call, At: time.Now()})
			return errSuspended
		}
	}
	return nil
}

// errSuspended signals runRemainingCalls' caller (Resume) that a further
// confirmation is needed; Resume treats it as "stop here", not a failure.
var errSuspended = fmt.Errorf("loop: suspended awaiting confirmation")

// dispatchCall handles one tool call per spec §4.7 step 7: unsupported
// names get a uniform refusal, deny gets a refusal, allow executes
// immediately, ask stashes and returns suspend=true.
func (c *Controller) dispatchCall(ctx context.Context, sessionID string, call toolparse.ToolCall) (bool, error) {
	if !tool.IsSupported(call.ToolName) {
		res, _ := tool.Execute(ctx, c.toolCtx, callID(call), call.ToolName, call.Args)
		return false, c.appendToolResult(sessionID, res)
	}

	decision, err := c.policyEng.Evaluate(call.ToolName, argsToInterface(call.Args))
	if err != nil {
		return false, err
	}

	switch decision {
	case policy.Allow:
		return false, c.executeAndAppend(ctx, sessionID, call)
	case policy.Deny:
		return false, c.sessions.AddMessage(sessionID, session.Message{
			Role:    "tool",
			Content: fmt.Sprintf("tool %q was denied by policy", call.ToolName),
			Name:    call.ToolName,
		})
	default: // policy.Ask
		return true, nil
	}
}

// settleToolCall applies a user's confirm/deny answer to the call a
// suspended round was waiting on.
func (c *Controller) settleToolCall(ctx context.Context, sessionID string, call toolparse.ToolCall, resp ConfirmResponse) error {
	if resp.Remember {
		d := policy.Deny
		if resp.Approved {
			d = policy.Allow
		}
		if c.decisions != nil {
			if err := c.decisions.Remember(call.ToolName, d); err != nil {
				return err
			}
		}
	}
	if !resp.Approved {
		return c.sessions.AddMessage(sessionID, session.Message{
			Role:    "tool",
			Content: fmt.Sprintf("tool %q was denied by the user", call.ToolName),
			Name:    call.ToolName,
		})
	}
	return c.executeAndAppend(ctx, sessionID, call)
}

func (c *Controller) executeAndAppend(ctx context.Context, sessionID string, call toolparse.ToolCall) error {
	if c.checkpoints != nil && destructiveTools[call.ToolName] {
		sess, _ := c.sessions.Get(sessionID)
		if sess != nil {
			if _, err := c.checkpoints.Create(
				fmt.Sprintf("before %s", call.ToolName),
				sess.Messages,
				call.ToolName,
				"",
				"",
			); err != nil {
				return fmt.Errorf("checkpoint before %s: %w", call.ToolName, err)
			}
		}
	}
	res, err := tool.Execute(ctx, c.toolCtx, callID(call), call.ToolName, call.Args)
	if err != nil {
		return err
	}
	return c.appendToolResult(sessionID, res)
}

func (c *Controller) appendToolResult(sessionID string, res *tool.ToolResult) error {
	if res == nil {
		return nil
	}
	return c.sessions.AddMessage(sessionID, session.Message{
		Role:       "tool",
		Content:    res.ResultText,
		Name:       res.Name,
		ToolCallID: res.CallID,
	})
}

// streamWithRetry drives one response stream, applying spec §4.7 steps
// 3-5: filtered/throttled display while streaming, retry on a transient
// backend error up to MaxErrorRetries, and a single retry on an empty
// response.
func (c *Controller) streamWithRetry(ctx context.Context, sessionID string, messages []session.Message) (string, string, error) {
	errorRetries := 0
	emptyRetried := false
	for {
		full, threadID, err := c.streamOnce(ctx, sessionID, messages)
		if err == nil && chatclient.ContainsBackendError(full) {
			err = fmt.Errorf("backend reported a transient error: %s", full)
		}
		if err != nil {
			errorRetries++
			if errorRetries > MaxErrorRetries {
				return "", "", fmt.Errorf("exceeded %d transient-error retries: %w", MaxErrorRetries, err)
			}
			if werr := c.wait(ctx, transientRetryDelay); werr != nil {
				return "", "", werr
			}
			continue
		}
		if strings.TrimSpace(full) == "" && !emptyRetried {
			emptyRetried = true
			if werr := c.wait(ctx, emptyResponseRetryDelay); werr != nil {
				return "", "", werr
			}
			continue
		}
		return full, threadID, nil
	}
}

func (c *Controller) streamOnce(ctx context.Context, sessionID string, messages []session.Message) (string, string, error) {
	parser := toolparse.NewStreamer()
	var display strings.Builder
	lastPublish := time.Time{}

	onDelta := func(delta string) {
		res := parser.ProcessChunk(delta)
		if res.EmitOutput == "" {
			return
		}
		display.WriteString(res.EmitOutput)
		if time.Since(lastPublish) >= displayThrottle {
			c.publish(Snapshot{DisplayText: collapseBlankRuns(display.String()), Status: StateStreaming, At: time.Now()})
			lastPublish = time.Now()
		}
	}

	full, threadID, err := c.stream.Stream(ctx, messages, onDelta)
	if err != nil {
		return "", "", err
	}
	if threadID != "" {
		_ = c.sessions.SetThreadID(sessionID, threadID)
	}
	return full, threadID, nil
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *Controller) finish(sessionID string, outcome Outcome, cause error) error {
	c.mu.Lock()
	c.state = LoopState{State: StateIdle, Outcome: outcome, LastError: cause}
	c.mu.Unlock()
	_ = c.sessions.Flush(sessionID)
	c.publish(Snapshot{Status: StateIdle, Outcome: outcome, Err: cause, At: time.Now()})
	if outcome == OutcomeError {
		return cause
	}
	return nil
}

func callID(call toolparse.ToolCall) string {
	return call.ToolName + ":" + fmt.Sprintf("%d", len(call.RawBlock))
}

func argsToInterface(args map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// collapseBlankRuns mirrors toolparse's display-cleanup convention for
// the live throttled view, keeping streamed output visually identical to
// the post-hoc cleaned text.
func collapseBlankRuns(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
