package checkpoint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/storyforge/internal/config"
	"github.com/lamim/storyforge/pkg/models"
)

const CheckpointFilename = "checkpoint.json"

// Manager owns the checkpoint of one session. Every transition is written to disk
// synchronously before it returns.
type Manager struct {
	sessionDir string
	checkpoint *models.Checkpoint
	mu         sync.Mutex
	logger     *slog.Logger
	onSave     func(models.Checkpoint)
}

// NewManager creates a manager for a fresh session
func NewManager(sessionDir string, cfg *config.Config, logger *slog.Logger) *Manager {
	now := time.Now()
	return &Manager{
		sessionDir: sessionDir,
		checkpoint: &models.Checkpoint{
			SessionID:  uuid.New().String(),
			CreatedAt:  now,
			Phase:      models.PhaseSetting,
			Stats:      models.SessionStats{StartTime: now},
			ConfigHash: computeConfigHash(cfg),
		},
		logger: logger,
	}
}

// NewManagerFromCheckpoint creates a manager from existing checkpoint
func NewManagerFromCheckpoint(sessionDir string, cp *models.Checkpoint, logger *slog.Logger) *Manager {
	cpCopy := *cp
	return &Manager{
		sessionDir: sessionDir,
		checkpoint: &cpCopy,
		logger:     logger,
	}
}

// OnSave registers a hook called with every checkpoint after it reached disk
func (m *Manager) OnSave(fn func(models.Checkpoint)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSave = fn
}

// Path returns the checkpoint file path
func (m *Manager) Path() string {
	return filepath.Join(m.sessionDir, CheckpointFilename)
}

// update applies fn and persists the result. The in-memory state only changes when the
// write succeeds.
func (m *Manager) update(fn func(cp *models.Checkpoint)) error {
	m.mu.Lock()
	next := *m.checkpoint
	fn(&next)
	next.LastSavedAt = time.Now()
	if err := m.writeCheckpointToDisk(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.checkpoint = &next
	hook := m.onSave
	m.mu.Unlock()

	if hook != nil {
		hook(next)
	}
	return nil
}

// writeCheckpointToDisk writes to a temp file and renames it over the checkpoint
func (m *Manager) writeCheckpointToDisk(cp *models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	checkpointPath := m.Path()
	tempPath := checkpointPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}

	if err := os.Rename(tempPath, checkpointPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint saved",
		"path", checkpointPath,
		"phase", cp.Phase,
		"cursor", cp.Cursor,
		"total_sections", cp.TotalSections)
	return nil
}

// Save writes the current checkpoint unchanged
func (m *Manager) Save() error {
	return m.update(func(*models.Checkpoint) {})
}

// StartPlanning records that an instruction is set and no outline exists yet
func (m *Manager) StartPlanning() error {
	return m.update(func(cp *models.Checkpoint) {
		cp.Phase = models.PhasePlanning
		cp.Cursor = 0
		cp.TotalSections = 0
		cp.ProseLength = 0
	})
}

// MarkOutlineFailed pins the cursor to CursorOutlineFailed; the session stays in planning
func (m *Manager) MarkOutlineFailed(stats models.SessionStats) error {
	return m.update(func(cp *models.Checkpoint) {
		cp.Phase = models.PhasePlanning
		cp.Cursor = models.CursorOutlineFailed
		cp.Stats = stats
	})
}

// MarkOutlineComplete records a persisted outline of total sections. An empty outline
// finishes the session.
func (m *Manager) MarkOutlineComplete(total int, stats models.SessionStats) error {
	return m.update(func(cp *models.Checkpoint) {
		cp.Phase = models.PhaseWriting
		if total == 0 {
			cp.Phase = models.PhaseDone
		}
		cp.Cursor = 0
		cp.TotalSections = total
		cp.ProseLength = 0
		cp.Stats = stats
	})
}

// MarkSectionComplete records cursor committed sections holding proseLength bytes of text
func (m *Manager) MarkSectionComplete(cursor int, proseLength int64, stats models.SessionStats) error {
	return m.update(func(cp *models.Checkpoint) {
		cp.Cursor = cursor
		cp.ProseLength = proseLength
		cp.Stats = stats
		if cursor >= cp.TotalSections {
			cp.Phase = models.PhaseDone
		}
	})
}

// SetTotalSections records a replaced outline. A longer outline reopens a finished session.
func (m *Manager) SetTotalSections(total int) error {
	return m.update(func(cp *models.Checkpoint) {
		cp.TotalSections = total
		cp.Phase = models.PhaseWriting
		if cp.Cursor >= total {
			cp.Phase = models.PhaseDone
		}
	})
}

// RecordStats persists statistics without changing progress
func (m *Manager) RecordStats(stats models.SessionStats) error {
	return m.update(func(cp *models.Checkpoint) {
		cp.Stats = stats
	})
}

// GetCheckpoint returns a copy of the current checkpoint
func (m *Manager) GetCheckpoint() models.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.checkpoint
}

// Load reads checkpoint from disk
func Load(sessionDir string, logger *slog.Logger) (*models.Checkpoint, error) {
	checkpointPath := filepath.Join(sessionDir, CheckpointFilename)

	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	logger.Info("Checkpoint loaded",
		"session_id", cp.SessionID,
		"phase", cp.Phase,
		"cursor", cp.Cursor,
		"total_sections", cp.TotalSections)

	return &cp, nil
}

func computeConfigHash(cfg *config.Config) string {
	// Hash the config fields that shape generated text
	wr := cfg.WordRequirement
	data := fmt.Sprintf("%s\x00%s\x00%s\x00%d:%d:%d:%d",
		cfg.PromptTemplates.SystemPrompt,
		cfg.PromptTemplates.Plan,
		cfg.PromptTemplates.Write,
		wr.MinWords, wr.MaxWords, wr.Sample1, wr.Sample2)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:8]) // First 8 bytes
}
