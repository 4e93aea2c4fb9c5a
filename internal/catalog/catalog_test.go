package catalog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/storyforge/internal/checkpoint"
	"github.com/lamim/storyforge/internal/config"
	"github.com/lamim/storyforge/internal/workspace"
	"github.com/lamim/storyforge/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "db", "catalog.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpsertAndList(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	older := Session{
		Dir:         "/out/generate_1",
		SessionID:   "a",
		Name:        "generate_1",
		Instruction: "写一首诗",
		Phase:       models.PhasePlanning,
		CreatedAt:   time.UnixMicro(1).UTC(),
		UpdatedAt:   time.UnixMicro(1).UTC(),
	}
	newer := Session{
		Dir:           "/out/generate_2",
		SessionID:     "b",
		Name:          "generate_2",
		Instruction:   "写一个故事",
		Phase:         models.PhaseWriting,
		Cursor:        1,
		TotalSections: 4,
		CreatedAt:     time.UnixMicro(2).UTC(),
		UpdatedAt:     time.UnixMicro(5).UTC(),
	}
	require.NoError(t, c.Upsert(ctx, older))
	require.NoError(t, c.Upsert(ctx, newer))

	sessions, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer, sessions[0])
	assert.Equal(t, older, sessions[1])

	// Progress updates replace the row
	newer.Cursor = 4
	newer.Phase = models.PhaseDone
	require.NoError(t, c.Upsert(ctx, newer))
	sessions, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, models.PhaseDone, sessions[0].Phase)
	assert.Equal(t, 4, sessions[0].Cursor)
}

func TestRecordFromCheckpoint(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	ws, err := workspace.Create(t.TempDir(), time.UnixMicro(1700000000000000), testLogger())
	require.NoError(t, err)
	require.NoError(t, ws.WriteInstruction("  写一个发生在古堡里的故事\n"))

	mgr := checkpoint.NewManager(ws.Dir(), config.Default(), testLogger())
	mgr.OnSave(func(cp models.Checkpoint) {
		require.NoError(t, c.Record(ctx, ws, cp))
	})
	require.NoError(t, mgr.StartPlanning())
	require.NoError(t, mgr.MarkOutlineComplete(3, models.SessionStats{}))

	sessions, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	s := sessions[0]
	assert.Equal(t, ws.Dir(), s.Dir)
	assert.Equal(t, ws.Name(), s.Name)
	assert.Equal(t, "写一个发生在古堡里的故事", s.Instruction)
	assert.Equal(t, models.PhaseWriting, s.Phase)
	assert.Equal(t, 3, s.TotalSections)
	assert.Equal(t, mgr.GetCheckpoint().SessionID, s.SessionID)
}

func TestRescan(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	savePath := t.TempDir()

	first, err := workspace.Create(savePath, time.UnixMicro(1700000000000000), testLogger())
	require.NoError(t, err)
	require.NoError(t, first.WriteInstruction("第一个任务"))

	second, err := workspace.Create(savePath, time.UnixMicro(1700000000000001), testLogger())
	require.NoError(t, err)
	require.NoError(t, second.WriteInstruction("第二个任务"))
	mgr := checkpoint.NewManager(second.Dir(), config.Default(), testLogger())
	require.NoError(t, mgr.MarkOutlineFailed(models.SessionStats{}))

	// A directory without an instruction is skipped
	_, err = workspace.Create(savePath, time.UnixMicro(1700000000000002), testLogger())
	require.NoError(t, err)

	n, err := c.Rescan(ctx, savePath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sessions, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.Name(), sessions[0].Name)
	assert.Equal(t, models.CursorOutlineFailed, sessions[0].Cursor)
	assert.Equal(t, first.Name(), sessions[1].Name)
	assert.Equal(t, models.PhaseSetting, sessions[1].Phase)
	assert.Equal(t, first.StartedAt(), sessions[1].CreatedAt)
}
