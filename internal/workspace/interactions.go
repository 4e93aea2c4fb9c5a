package workspace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lamim/storyforge/pkg/models"
)

// AppendInteraction writes one record to the append-only interaction log
func (w *Workspace) AppendInteraction(record models.InteractionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	f, err := os.OpenFile(w.Path(InteractionsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open interaction log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync interaction log: %w", err)
	}
	return nil
}

// ReadInteractions loads every record of the interaction log. Lines that do not decode
// are skipped with a warning; a crash can leave a torn final line.
func (w *Workspace) ReadInteractions() ([]models.InteractionRecord, error) {
	f, err := os.Open(w.Path(InteractionsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open interaction log: %w", err)
	}
	defer f.Close()

	var records []models.InteractionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec models.InteractionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			w.logger.Warn("Skipping unreadable interaction record", "line", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interaction log: %w", err)
	}
	return records, nil
}
