// Package workspace owns the on-disk layout of a writing session.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Files inside a session directory
const (
	InstructionFile  = "instruction.txt"
	PlanFile         = "plan.txt"
	InteractionsFile = "log.jsonl"
	FullTextFile     = "fulltext.txt"
	SessionLogFile   = "session.log"
	ConfigBackupFile = "config.backup"
)

const sessionPrefix = "generate_"

// Workspace is one session directory, named after its start time in Unix microseconds
type Workspace struct {
	dir    string
	logger *slog.Logger
}

// Create makes a fresh session directory under savePath for a session started at now
func Create(savePath string, now time.Time, logger *slog.Logger) (*Workspace, error) {
	if err := os.MkdirAll(savePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Two sessions started within the same microsecond get consecutive names
	stamp := now.UTC().UnixMicro()
	for {
		dir := filepath.Join(savePath, sessionPrefix+strconv.FormatInt(stamp, 10))
		err := os.Mkdir(dir, 0755)
		if err == nil {
			logger.Info("Created new session directory", "path", dir)
			return &Workspace{dir: dir, logger: logger}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		stamp++
	}
}

// Open returns the workspace of an existing session directory
func Open(dir string, logger *slog.Logger) (*Workspace, error) {
	if err := ValidateSessionName(filepath.Base(filepath.Clean(dir))); err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session directory not found: %s", dir)
		}
		return nil, fmt.Errorf("failed to stat session directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("session path is not a directory: %s", dir)
	}
	logger.Info("Opened existing session", "path", dir)
	return &Workspace{dir: dir, logger: logger}, nil
}

// Dir returns the session directory path
func (w *Workspace) Dir() string {
	return w.dir
}

// Name returns the session directory name
func (w *Workspace) Name() string {
	return filepath.Base(w.dir)
}

// StartedAt returns the start time encoded in the directory name
func (w *Workspace) StartedAt() time.Time {
	micros, err := strconv.ParseInt(w.Name()[len(sessionPrefix):], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

// Path returns the full path of a file inside the session
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// GetLogPath returns the full path to the session log file
func (w *Workspace) GetLogPath() string {
	return w.Path(SessionLogFile)
}

// WriteInstruction stores the writing instruction
func (w *Workspace) WriteInstruction(instruction string) error {
	return writeFileAtomic(w.Path(InstructionFile), []byte(instruction))
}

// ReadInstruction loads the writing instruction
func (w *Workspace) ReadInstruction() (string, error) {
	data, err := os.ReadFile(w.Path(InstructionFile))
	if err != nil {
		return "", fmt.Errorf("failed to read instruction: %w", err)
	}
	return string(data), nil
}

// WritePlan replaces the stored outline text
func (w *Workspace) WritePlan(plan string) error {
	return writeFileAtomic(w.Path(PlanFile), []byte(plan))
}

// ReadPlan loads the stored outline text
func (w *Workspace) ReadPlan() (string, error) {
	data, err := os.ReadFile(w.Path(PlanFile))
	if err != nil {
		return "", fmt.Errorf("failed to read plan: %w", err)
	}
	return string(data), nil
}

// AppendText appends committed prose and returns the new length of the full text in bytes
func (w *Workspace) AppendText(text string) (int64, error) {
	f, err := os.OpenFile(w.Path(FullTextFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open full text: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, text); err != nil {
		return 0, fmt.Errorf("failed to append full text: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync full text: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat full text: %w", err)
	}
	return info.Size(), nil
}

// ReadText loads the full text. A missing file reads as empty.
func (w *Workspace) ReadText() (string, error) {
	data, err := os.ReadFile(w.Path(FullTextFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read full text: %w", err)
	}
	return string(data), nil
}

// TruncateText cuts the full text back to length bytes, discarding prose written after
// the last checkpoint. It returns the number of bytes removed.
func (w *Workspace) TruncateText(length int64) (int64, error) {
	path := w.Path(FullTextFile)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if length == 0 {
				return 0, nil
			}
			return 0, fmt.Errorf("full text missing but checkpoint expects %d bytes", length)
		}
		return 0, fmt.Errorf("failed to stat full text: %w", err)
	}

	size := info.Size()
	if size < length {
		return 0, fmt.Errorf("full text has %d bytes but checkpoint expects %d", size, length)
	}
	if size == length {
		return 0, nil
	}
	if err := os.Truncate(path, length); err != nil {
		return 0, fmt.Errorf("failed to truncate full text: %w", err)
	}
	w.logger.Warn("Discarded prose written after the last checkpoint",
		"bytes", size-length)
	return size - length, nil
}

// BackupConfig copies the config file to the session directory
func (w *Workspace) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := w.Path(ConfigBackupFile)
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	w.logger.Info("Backed up config file", "path", backupPath)
	return nil
}

// writeFileAtomic writes data to a temp file and renames it over path
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
