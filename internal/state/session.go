package state

import (
	"os"
	"strings"
	"time"

	"mobius/internal/fsutil"
	"mobius/internal/layout"
)

// SessionStatus is the lifecycle state of one execution session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionPaused    SessionStatus = "paused"
)

// SessionInfo records one parent issue's execution session. A single
// current-session pointer file at the project root references at most one
// parent at a time.
type SessionInfo struct {
	ParentID     string        `json:"parentId"`
	Backend      string        `json:"backend"`
	StartedAt    time.Time     `json:"startedAt"`
	WorktreePath string        `json:"worktreePath,omitempty"`
	Status       SessionStatus `json:"status"`
}

// StartSession writes an active SessionInfo and points current-session at
// this parent, replacing whatever parent was current before.
func StartSession(gitRoot, parentID, backendName, worktreePath string) (SessionInfo, error) {
	info := SessionInfo{
		ParentID:     parentID,
		Backend:      backendName,
		StartedAt:    time.Now(),
		WorktreePath: worktreePath,
		Status:       SessionActive,
	}
	if err := fsutil.WriteJSON(layout.SessionPath(gitRoot, parentID), info); err != nil {
		return SessionInfo{}, err
	}
	if err := os.MkdirAll(layout.Base(gitRoot), 0o755); err != nil {
		return SessionInfo{}, err
	}
	if err := os.WriteFile(layout.CurrentSessionPointer(gitRoot), []byte(parentID+"\n"), 0o644); err != nil {
		return SessionInfo{}, err
	}
	return info, nil
}

// EndSession stamps the session's terminal status. The current-session
// pointer is cleared only when it still names this parent, so a newer
// session started meanwhile is never unpointed.
func EndSession(gitRoot, parentID string, status SessionStatus) error {
	var info SessionInfo
	if ok, _ := fsutil.ReadJSON(layout.SessionPath(gitRoot, parentID), &info); !ok {
		info = SessionInfo{ParentID: parentID, StartedAt: time.Now()}
	}
	info.Status = status
	if err := fsutil.WriteJSON(layout.SessionPath(gitRoot, parentID), info); err != nil {
		return err
	}
	if current, ok := CurrentSession(gitRoot); ok && current == parentID {
		_ = os.Remove(layout.CurrentSessionPointer(gitRoot))
	}
	return nil
}

// ReadSession loads a parent issue's SessionInfo, if present.
func ReadSession(gitRoot, parentID string) (SessionInfo, bool) {
	var info SessionInfo
	ok, _ := fsutil.ReadJSON(layout.SessionPath(gitRoot, parentID), &info)
	return info, ok
}

// CurrentSession reads the current-session pointer file.
func CurrentSession(gitRoot string) (string, bool) {
	data, err := os.ReadFile(layout.CurrentSessionPointer(gitRoot))
	if err != nil {
		return "", false
	}
	id := strings.TrimSpace(string(data))
	return id, id != ""
}
