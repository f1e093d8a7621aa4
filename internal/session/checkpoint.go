package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/popilot-dev/popilot/internal/edit"
)

// CheckpointStore manages the Checkpoints created before potentially
// destructive tool calls (spec §3 Checkpoint), so a turn can be rolled
// back. One directory per session, one JSON file per checkpoint.
type CheckpointStore struct {
	mu  sync.Mutex
	dir string
}

// NewCheckpointStore opens (creating if absent) the checkpoint directory
// for a single session.
func NewCheckpointStore(baseDir, sessionID string) (*CheckpointStore, error) {
	dir := filepath.Join(baseDir, "checkpoints", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &CheckpointStore{dir: dir}, nil
}

// Create snapshots the conversation immediately before a destructive
// tool call. Ownership of patchPath (if non-empty) transfers to the
// checkpoint directory: it is expected to already live under dir, or the
// caller passes a path this store will reference for cascading delete.
func (c *CheckpointStore) Create(description string, conversation []Message, lastToolCall, gitCommitHash, patchPath string) (*Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := &Checkpoint{
		ID:                   uuid.NewString(),
		Timestamp:            time.Now(),
		Description:          description,
		ConversationSnapshot: append([]Message(nil), conversation...),
		LastToolCall:         lastToolCall,
		GitCommitHash:        gitCommitHash,
		PatchPath:            patchPath,
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := edit.WriteWhole(c.path(cp.ID), data, false); err != nil {
		return nil, err
	}
	return cp, nil
}

// Get loads a single checkpoint by id.
func (c *CheckpointStore) Get(id string) (*Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path(id))
	if err != nil {
		return nil, fmt.Errorf("checkpoint not found: %s", id)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("invalid checkpoint file %s: %w", id, err)
	}
	return &cp, nil
}

// List returns every checkpoint for the session, oldest first.
func (c *CheckpointStore) List() ([]*Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Checkpoint
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			continue
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Delete removes a checkpoint's JSON record and cascades to its patch
// file, per spec §3 Checkpoint ownership ("deletion is cascading").
func (c *CheckpointStore) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp, err := c.getLocked(id)
	if err != nil {
		return err
	}
	if cp.PatchPath != "" {
		if err := os.Remove(cp.PatchPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove patch file for checkpoint %s: %w", id, err)
		}
	}
	return os.Remove(c.path(id))
}

func (c *CheckpointStore) getLocked(id string) (*Checkpoint, error) {
	raw, err := os.ReadFile(c.path(id))
	if err != nil {
		return nil, fmt.Errorf("checkpoint not found: %s", id)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("invalid checkpoint file %s: %w", id, err)
	}
	return &cp, nil
}

func (c *CheckpointStore) path(id string) string {
	return filepath.Join(c.dir, id+".json")
}
