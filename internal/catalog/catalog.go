// Package catalog keeps a SQLite index of writing sessions so they can be listed without
// walking every session directory.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lamim/storyforge/internal/checkpoint"
	"github.com/lamim/storyforge/internal/util"
	"github.com/lamim/storyforge/internal/workspace"
	"github.com/lamim/storyforge/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	dir            TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	name           TEXT NOT NULL,
	instruction    TEXT NOT NULL DEFAULT '',
	phase          TEXT NOT NULL,
	cursor         INTEGER NOT NULL DEFAULT 0,
	total_sections INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
`

// maxInstructionPreview caps the instruction text kept per row
const maxInstructionPreview = 200

// Session is one row of the catalog
type Session struct {
	Dir           string
	SessionID     string
	Name          string
	Instruction   string
	Phase         models.Phase
	Cursor        int
	TotalSections int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Catalog is a SQLite-backed session index
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the catalog database at path
func Open(path string, logger *slog.Logger) (*Catalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	logger.Debug("Catalog opened", "path", path)
	return &Catalog{db: db, logger: logger}, nil
}

// Close closes the database
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Upsert inserts or updates the row of s.Dir
func (c *Catalog) Upsert(ctx context.Context, s Session) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sessions (dir, session_id, name, instruction, phase, cursor, total_sections, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET
			session_id = excluded.session_id,
			instruction = excluded.instruction,
			phase = excluded.phase,
			cursor = excluded.cursor,
			total_sections = excluded.total_sections,
			updated_at = excluded.updated_at`,
		s.Dir, s.SessionID, s.Name, s.Instruction, string(s.Phase), s.Cursor, s.TotalSections,
		s.CreatedAt.UnixMicro(), s.UpdatedAt.UnixMicro())
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", s.Name, err)
	}
	return nil
}

// Record upserts the session of ws at checkpoint cp
func (c *Catalog) Record(ctx context.Context, ws *workspace.Workspace, cp models.Checkpoint) error {
	instruction, err := ws.ReadInstruction()
	if err != nil {
		return err
	}
	return c.Upsert(ctx, fromCheckpoint(ws, instruction, cp))
}

// List returns every catalogued session, newest first
func (c *Catalog) List(ctx context.Context) ([]Session, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT dir, session_id, name, instruction, phase, cursor, total_sections, created_at, updated_at
		FROM sessions
		ORDER BY created_at DESC, name DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s                  Session
			phase              string
			created, updatedAt int64
		)
		if err := rows.Scan(&s.Dir, &s.SessionID, &s.Name, &s.Instruction, &phase,
			&s.Cursor, &s.TotalSections, &created, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Phase = models.Phase(phase)
		s.CreatedAt = time.UnixMicro(created).UTC()
		s.UpdatedAt = time.UnixMicro(updatedAt).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Rescan rebuilds rows from the session directories under savePath and returns how many
// sessions were indexed. Directories without a checkpoint are indexed in the setting phase.
func (c *Catalog) Rescan(ctx context.Context, savePath string) (int, error) {
	dirs, err := workspace.ListSessions(savePath)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ws, err := workspace.Open(dir, c.logger)
		if err != nil {
			c.logger.Warn("Skipping session", "dir", dir, "error", err)
			continue
		}
		instruction, err := ws.ReadInstruction()
		if err != nil {
			c.logger.Warn("Skipping session without instruction", "dir", dir, "error", err)
			continue
		}

		cp := models.Checkpoint{Phase: models.PhaseSetting, CreatedAt: ws.StartedAt()}
		loaded, err := checkpoint.Load(dir, c.logger)
		switch {
		case err == nil:
			cp = *loaded
		case !errors.Is(err, fs.ErrNotExist):
			c.logger.Warn("Unreadable checkpoint", "dir", dir, "error", err)
		}

		if err := c.Upsert(ctx, fromCheckpoint(ws, instruction, cp)); err != nil {
			return n, err
		}
		n++
	}
	c.logger.Info("Catalog rescanned", "path", savePath, "sessions", n)
	return n, nil
}

func fromCheckpoint(ws *workspace.Workspace, instruction string, cp models.Checkpoint) Session {
	created := cp.CreatedAt
	if created.IsZero() {
		created = ws.StartedAt()
	}
	updated := cp.LastSavedAt
	if updated.IsZero() {
		updated = created
	}
	return Session{
		Dir:           ws.Dir(),
		SessionID:     cp.SessionID,
		Name:          ws.Name(),
		Instruction:   util.TruncateString(strings.TrimSpace(instruction), maxInstructionPreview),
		Phase:         cp.Phase,
		Cursor:        cp.Cursor,
		TotalSections: cp.TotalSections,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}
}
