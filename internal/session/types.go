// Package session implements the Session/Checkpoint store (spec §4.8):
// an append-only in-memory history per session, debounced to a JSON file
// on disk, with bounded retention and an atomic pointer file for
// auto-restoration at process startup.
package session

import "time"

// Message is the data-model §3 Message: role-tagged conversation content
// in strict causal order. Content is plain text; the image_url /
// multi-part content-part variant is a request-transformer concern
// (out of scope) layered on top of this at the wire boundary.
type Message struct {
	Role       string    `json:"role"` // "user", "assistant", "system", "tool"
	Content    string    `json:"content"`
	Name       string    `json:"name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session is the data-model §3 Session: exclusively owned by the
// process, a single self-describing on-disk record keyed by ID.
type Session struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	ThreadID  string    `json:"thread_id,omitempty"` // immutable once set, see Store.SetThreadID
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Checkpoint is the data-model §3 Checkpoint: created before a
// potentially destructive tool call so the session can be rolled back to
// it. Ownership of the referenced patch file transfers to the checkpoint
// directory; deleting a Checkpoint cascades to that file.
type Checkpoint struct {
	ID                   string    `json:"id"`
	Timestamp            time.Time `json:"timestamp"`
	Description          string    `json:"description"`
	ConversationSnapshot []Message `json:"conversation_snapshot"`
	LastToolCall         string    `json:"last_tool_call,omitempty"`
	GitCommitHash        string    `json:"git_commit_hash,omitempty"`
	PatchPath            string    `json:"patch_path,omitempty"`
}

// clone returns a deep-enough copy of s for snapshotting into a
// Checkpoint or for returning to a caller without aliasing the Store's
// internal slice.
func (s *Session) clone() *Session {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}
