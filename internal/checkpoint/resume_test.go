package checkpoint

import (
	"errors"
	"testing"

	"github.com/lamim/storyforge/pkg/models"
)

func TestValidateCheckpoint(t *testing.T) {
	cfg := testConfig()
	hash := computeConfigHash(cfg)

	tests := []struct {
		name    string
		cp      models.Checkpoint
		wantErr error
		anyErr  bool
	}{
		{
			name: "writing in progress",
			cp:   models.Checkpoint{Phase: models.PhaseWriting, Cursor: 2, TotalSections: 5, ConfigHash: hash},
		},
		{
			name: "failed outline",
			cp:   models.Checkpoint{Phase: models.PhasePlanning, Cursor: models.CursorOutlineFailed, ConfigHash: hash},
		},
		{
			name:    "done",
			cp:      models.Checkpoint{Phase: models.PhaseDone, Cursor: 5, TotalSections: 5, ConfigHash: hash},
			wantErr: ErrAlreadyComplete,
		},
		{
			name:    "different templates",
			cp:      models.Checkpoint{Phase: models.PhaseWriting, Cursor: 1, TotalSections: 5, ConfigHash: "deadbeef"},
			wantErr: ErrConfigMismatch,
		},
		{
			name:   "cursor past total",
			cp:     models.Checkpoint{Phase: models.PhaseWriting, Cursor: 6, TotalSections: 5, ConfigHash: hash},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCheckpoint(&tt.cp, cfg)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateCheckpoint() error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Error("ValidateCheckpoint() expected error, got nil")
				}
			default:
				if err != nil {
					t.Errorf("ValidateCheckpoint() unexpected error: %v", err)
				}
			}
		})
	}
}

func TestConfigHashTracksTemplates(t *testing.T) {
	a := testConfig()
	b := testConfig()
	if computeConfigHash(a) != computeConfigHash(b) {
		t.Error("Identical configs should hash the same")
	}
	b.PromptTemplates.Write += "\n请使用第一人称。"
	if computeConfigHash(a) == computeConfigHash(b) {
		t.Error("Changing the write template should change the hash")
	}
	c := testConfig()
	c.Model.ModelName = "another-model"
	if computeConfigHash(a) != computeConfigHash(c) {
		t.Error("Switching models should not invalidate a session")
	}
}

func TestProgress(t *testing.T) {
	cp := &models.Checkpoint{Phase: models.PhaseWriting, Cursor: 2, TotalSections: 5}
	if got := RemainingSections(cp); got != 3 {
		t.Errorf("RemainingSections() = %d, want 3", got)
	}
	if got := GetProgressPercentage(cp); got != 40.0 {
		t.Errorf("GetProgressPercentage() = %f, want 40", got)
	}

	failed := &models.Checkpoint{Phase: models.PhasePlanning, Cursor: models.CursorOutlineFailed}
	if RemainingSections(failed) != 0 || GetProgressPercentage(failed) != 0 {
		t.Error("Failed outline should report no progress")
	}

	done := &models.Checkpoint{Phase: models.PhaseDone}
	if GetProgressPercentage(done) != 100 {
		t.Error("Done session should report 100%")
	}
}
