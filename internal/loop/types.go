// Package loop implements the Agentic Loop Controller (spec §4.7): a
// bounded, resumable state machine that streams model output, parses
// embedded tool-call blocks, dispatches execution through the Policy
// Engine (suspending for confirmation on an `ask` decision), re-feeds
// results, and recovers from transient backend errors.
//
// The controller owns a pure LoopState record and publishes read-only
// Snapshot values over a channel; the view never mutates controller
// state directly (spec §9's re-architecture of the original mutable-ref
// UI bridge into record+channel form).
package loop

import (
	"time"

	"github.com/popilot-dev/popilot/internal/session"
	"github.com/popilot-dev/popilot/internal/toolparse"
)

// State is one of the five named states of spec §4.7.
type State string

const (
	StateIdle          State = "idle"
	StateStreaming     State = "streaming"
	StateExecutingTool State = "executing_tool"
	StateConfirming    State = "confirming"
	StateError         State = "error"
)

// MaxIterations bounds a single turn (spec §2).
const MaxIterations = 50

// MaxErrorRetries bounds transient-backend-error retries within a turn
// (spec §4.7 step 4).
const MaxErrorRetries = 3

// Outcome is how a turn ended (spec §4.7 "Termination & reporting").
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeMaxIterations Outcome = "max_iterations"
	OutcomeError         Outcome = "error"
	OutcomeInterrupted   Outcome = "interrupted"
)

// PendingLoopState is the ephemeral record stashed while a tool call
// awaits user confirmation (spec §3 PendingLoopState). It is held
// exclusively by the Controller; consumed whole on Resume, discarded on
// completion or error.
type PendingLoopState struct {
	Iteration            int
	ToolCalls             []toolparse.ToolCall
	CursorIndex           int
	ConversationSnapshot  []session.Message
	DisplayAccumulator    string
	Credential            string
	AuthMode              string
	ModelFamily           string
	UserInfo              string
}

// LoopState is the pure record the Controller owns and mutates between
// suspension points; the view only ever reads a cloned Snapshot.
type LoopState struct {
	State     State
	Iteration int
	Pending   *PendingLoopState
	Outcome   Outcome
	LastError error
}

// Snapshot is the read-only value pushed to the view channel (spec §9).
type Snapshot struct {
	DisplayText     string
	Status          State
	PendingToolCall *toolparse.ToolCall
	Outcome         Outcome
	Err             error
	At              time.Time
}

// ConfirmResponse is the user's answer to a pending confirmation,
// delivered back over the same request/response channel pairing spec §9
// describes.
type ConfirmResponse struct {
	Approved bool
	Remember bool
}
