package state

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LockTimeout is the total time WithSync spends retrying lock acquisition
// before giving up: a hard error, not a silent skip.
const LockTimeout = 5 * time.Second

// lockRetryInterval is the sleep between failed acquisition attempts.
const lockRetryInterval = 10 * time.Millisecond

// tryAcquireLock attempts to atomically create the lock file, writing the
// current epoch-millis as its content. A pre-existing lock older than
// LockTimeout is considered stale and is unlinked before retrying once.
func tryAcquireLock(lockPath string) bool {
	if isStale, exists := lockStatus(lockPath); exists {
		if !isStale {
			return false
		}
		_ = os.Remove(lockPath)
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()
	_, _ = f.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	return true
}

// lockStatus reports whether the lock file exists and, if so, whether it
// is stale. A lock whose content cannot be parsed is treated as stale.
func lockStatus(lockPath string) (stale bool, exists bool) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false, false
	}
	ms, parseErr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if parseErr != nil {
		return true, true
	}
	age := time.Since(time.UnixMilli(ms))
	return age > LockTimeout, true
}

func releaseLock(lockPath string) {
	_ = os.Remove(lockPath)
}
