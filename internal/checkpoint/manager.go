package checkpoint

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/workflow"
	"github.com/tidwall/sjson"
)

const schemaVersion = 1

// Snapshot is the serializable checkpoint payload: ExecutionState plus
// the Bus shared-context and journal tail (spec.md §4.K).
type Snapshot struct {
	SchemaVersion   int                      `json:"schema_version"`
	WorkflowID      string                   `json:"workflow_id"`
	CheckpointID    string                   `json:"checkpoint_id"`
	CreatedAt       time.Time                `json:"created_at"`
	ExecutionState  workflow.ExecutionState  `json:"execution_state"`
	SharedContext   map[string]any           `json:"shared_context"`
	Journal         []bus.Message            `json:"journal,omitempty"`
}

// Info is the list()-facing summary of a stored checkpoint, cheaper than
// a full Load when a caller only needs to show a picker.
type Info struct {
	CheckpointID string
	CreatedAt    time.Time
}

// Manager is the Checkpoint Manager: create/list/restore/delete over a
// StateStore, keyed by `{workflow_id}:{checkpoint_id}` (spec.md §6
// "Persisted state layout"). This package only implements the
// operations and takes no checkpoint on its own. No code in this module
// calls Create automatically: internal/workflow takes no checkpoints
// after stage transitions or at wfauto boundaries, and internal/cli only
// restores checkpoints (loom resume) and lists them.
type Manager struct {
	store      StateStore
	workflowID string
	exec       *workflow.Executor
	bus        *bus.Bus

	mu             sync.Mutex
	maxCheckpoints int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxCheckpoints bounds how many checkpoints are retained per
// workflow id; the oldest are pruned after each Create. 0 (default)
// means unbounded.
func WithMaxCheckpoints(n int) Option {
	return func(m *Manager) { m.maxCheckpoints = n }
}

// New creates a Manager bound to a workflow id, its Executor, and the
// shared Bus.
func New(store StateStore, workflowID string, exec *workflow.Executor, b *bus.Bus, opts ...Option) *Manager {
	m := &Manager{store: store, workflowID: workflowID, exec: exec, bus: b}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) key(checkpointID string) string {
	return m.workflowID + ":" + checkpointID
}

// Create snapshots the current ExecutionState and Bus shared-context
// (plus journal tail, if the Bus was built WithJournal) and persists it.
// name, if empty, generates a timestamp-based id.
func (m *Manager) Create(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := name
	if id == "" {
		id = time.Now().UTC().Format("20060102T150405") + "-" + uuid.New().String()[:8]
	}

	snap := Snapshot{
		SchemaVersion:  schemaVersion,
		WorkflowID:     m.workflowID,
		CheckpointID:   id,
		CreatedAt:      time.Now(),
		ExecutionState: m.exec.State(),
		SharedContext:  m.bus.Snapshot(),
		Journal:        m.bus.Journal(),
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("checkpoint: marshal: %w", err)
	}
	if err := m.store.Save(m.key(id), blob); err != nil {
		return "", err
	}

	if m.maxCheckpoints > 0 {
		if err := m.prune(); err != nil {
			return id, err
		}
	}
	return id, nil
}

// prune removes the oldest checkpoints beyond maxCheckpoints for this
// workflow id, the same retention policy checkpointer.go's
// cleanupOldCheckpoints applies, generalized to a StateStore rather than
// a directory listing.
func (m *Manager) prune() error {
	infos, err := m.listLocked()
	if err != nil {
		return err
	}
	if len(infos) <= m.maxCheckpoints {
		return nil
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	for _, info := range infos[:len(infos)-m.maxCheckpoints] {
		if err := m.store.Delete(m.key(info.CheckpointID)); err != nil && err != ErrNotFound {
			return err
		}
	}
	return nil
}

// List returns every checkpoint stored for this Manager's workflow id,
// newest last.
func (m *Manager) List() ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

func (m *Manager) listLocked() ([]Info, error) {
	ids, err := m.store.List()
	if err != nil {
		return nil, err
	}
	prefix := m.workflowID + ":"
	var infos []Info
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		blob, err := m.store.Load(id)
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(blob, &snap); err != nil {
			continue
		}
		infos = append(infos, Info{CheckpointID: snap.CheckpointID, CreatedAt: snap.CreatedAt})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}

// Restore loads checkpointID and fully replaces the live ExecutionState
// and Bus shared-context (spec.md §4.K "Restore fully replaces the live
// state"). The journal tail is returned for the caller to inspect or
// replay; it is not re-injected into the live Bus, since Bus.Journal is
// an append-only observability log, not externally settable state.
func (m *Manager) Restore(checkpointID string) (Snapshot, error) {
	blob, err := m.store.Load(m.key(checkpointID))
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: unmarshal: %w", err)
	}

	m.exec.Restore(snap.ExecutionState)
	m.bus.Restore(snap.SharedContext)
	return snap, nil
}

// Delete removes a checkpoint.
func (m *Manager) Delete(checkpointID string) error {
	return m.store.Delete(m.key(checkpointID))
}

// TouchCurrentStage patches only the execution_state.current_stage_id
// field of a persisted checkpoint in place, without a full
// load-unmarshal-marshal-save round trip. No other field is patched, and
// nothing in this module outside its tests calls it; the Workflow
// Executor does not.
func (m *Manager) TouchCurrentStage(checkpointID, stageID string) error {
	key := m.key(checkpointID)
	blob, err := m.store.Load(key)
	if err != nil {
		return err
	}
	patched, err := sjson.SetBytes(blob, "execution_state.current_stage_id", stageID)
	if err != nil {
		return fmt.Errorf("checkpoint: patch: %w", err)
	}
	return m.store.Save(key, patched)
}
