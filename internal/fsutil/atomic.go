// Package fsutil provides the atomic-write-then-rename primitive every
// Mobius state file (local sub-task specs, runtime state, pending-update
// queue) is persisted through, so a crash mid-write never leaves a
// truncated file in place of the real one.
package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON marshals v as indented JSON and writes it to path via a sibling
// ".tmp" file followed by a rename, so readers never observe a partial
// write. Creates path's parent directory if missing.
func WriteJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals path into v. It returns ok=false (with a
// nil error) when the file is missing, empty, or fails to parse — callers
// that treat "no prior state" as a valid starting point should branch on
// ok rather than propagating the error: readers of shared state must
// tolerate missing or torn-looking files.
func ReadJSON(path string, v any) (ok bool, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return false, nil
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}
