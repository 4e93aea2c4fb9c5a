package checkpoint

import (
	"errors"
	"fmt"

	"github.com/lamim/storyforge/internal/config"
	"github.com/lamim/storyforge/pkg/models"
)

var (
	// ErrConfigMismatch means the prompts or word requirement changed since the session started
	ErrConfigMismatch = errors.New("checkpoint config mismatch")
	// ErrAlreadyComplete means there is nothing left to resume
	ErrAlreadyComplete = errors.New("checkpoint is already complete")
)

// ValidateCheckpoint verifies checkpoint is compatible with current config
func ValidateCheckpoint(cp *models.Checkpoint, cfg *config.Config) error {
	if cp.Phase == models.PhaseDone {
		return ErrAlreadyComplete
	}

	if cp.Cursor < models.CursorOutlineFailed || (cp.TotalSections > 0 && cp.Cursor > cp.TotalSections) {
		return fmt.Errorf("checkpoint cursor %d out of range for %d sections", cp.Cursor, cp.TotalSections)
	}

	expectedHash := computeConfigHash(cfg)
	if cp.ConfigHash != expectedHash {
		return fmt.Errorf("%w: session was started with different prompts or word requirement (hash: %s vs %s)",
			ErrConfigMismatch, cp.ConfigHash, expectedHash)
	}

	return nil
}

// RemainingSections returns how many sections are left to write
func RemainingSections(cp *models.Checkpoint) int {
	if cp.Failed() {
		return 0
	}
	return max(0, cp.TotalSections-cp.Cursor)
}

// GetProgressPercentage returns completion percentage
func GetProgressPercentage(cp *models.Checkpoint) float64 {
	if cp.Phase == models.PhaseDone {
		return 100.0
	}
	if cp.TotalSections == 0 || cp.Failed() {
		return 0.0
	}
	return float64(cp.Cursor) / float64(cp.TotalSections) * 100.0
}
