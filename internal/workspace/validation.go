package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Session name format: generate_1730298600123456
var sessionNameRegex = regexp.MustCompile(`^generate_\d+$`)

// ValidateSessionName validates a session directory name to prevent path traversal.
// It rejects traversal (..), absolute paths, path separators and names that do not
// follow the generate_<unix-micros> format.
func ValidateSessionName(sessionName string) error {
	if sessionName == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if strings.Contains(sessionName, "..") {
		return fmt.Errorf("invalid session name: contains '..' (path traversal attempt)")
	}

	if filepath.IsAbs(sessionName) {
		return fmt.Errorf("invalid session name: must be relative path")
	}

	if strings.ContainsAny(sessionName, "/\\") {
		return fmt.Errorf("invalid session name: must be directory name without path separators")
	}

	if !sessionNameRegex.MatchString(sessionName) {
		return fmt.Errorf("invalid session name format: expected 'generate_<unix-micros>', got '%s'", sessionName)
	}

	return nil
}

// ResolveSession turns a session argument into a directory path. A bare session name is
// looked up under savePath; anything else is taken as a path and must stay a session
// directory by name.
func ResolveSession(savePath, session string) (string, error) {
	if session == "" {
		return "", fmt.Errorf("session name cannot be empty")
	}

	if !strings.ContainsAny(session, "/\\") {
		if err := ValidateSessionName(session); err != nil {
			return "", err
		}
		fullPath := filepath.Join(savePath, session)

		// Ensure the resolved path stays within the output directory
		absOutput, err := filepath.Abs(savePath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve output directory: %w", err)
		}
		absPath, err := filepath.Abs(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve session path: %w", err)
		}
		if !strings.HasPrefix(absPath, absOutput+string(filepath.Separator)) {
			return "", fmt.Errorf("session path escapes output directory")
		}
		return fullPath, nil
	}

	clean := filepath.Clean(session)
	if err := ValidateSessionName(filepath.Base(clean)); err != nil {
		return "", err
	}
	return clean, nil
}

// ListSessions returns the session directories under savePath, oldest first
func ListSessions(savePath string) ([]string, error) {
	entries, err := os.ReadDir(savePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && sessionNameRegex.MatchString(e.Name()) {
			dirs = append(dirs, filepath.Join(savePath, e.Name()))
		}
	}
	// ReadDir sorts by name; equal-length timestamps sort chronologically
	return dirs, nil
}
