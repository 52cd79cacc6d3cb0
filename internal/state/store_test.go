package state

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobius/internal/layout"
)

func TestInitialize_CreatesFreshState(t *testing.T) {
	root := t.TempDir()
	s, err := Initialize(root, "PARENT-1", "My Parent", 1234, 5)
	require.NoError(t, err)
	assert.Equal(t, "PARENT-1", s.ParentID)
	assert.Equal(t, 5, s.TotalTasks)
	assert.Equal(t, 1234, s.LoopPID)

	read, ok := Read(root, "PARENT-1")
	require.True(t, ok)
	assert.Equal(t, s.ParentTitle, read.ParentTitle)
}

func TestRead_MissingIsTolerant(t *testing.T) {
	root := t.TempDir()
	_, ok := Read(root, "nope")
	assert.False(t, ok)
}

func TestAddActiveTask_DedupesByID(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root, "P", "title", 1, 1)
	require.NoError(t, err)

	_, err = AddActiveTask(root, "P", ActiveTask{ID: "t1", Pane: "%1"})
	require.NoError(t, err)
	s, err := AddActiveTask(root, "P", ActiveTask{ID: "t1", Pane: "%2"})
	require.NoError(t, err)

	require.Len(t, s.ActiveTasks, 1)
	assert.Equal(t, "%2", s.ActiveTasks[0].Pane)
}

func TestCompleteTask_MovesFromActiveToCompleted(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root, "P", "title", 1, 1)
	require.NoError(t, err)
	_, err = AddActiveTask(root, "P", ActiveTask{ID: "t1"})
	require.NoError(t, err)

	s, err := CompleteTask(root, "P", "t1", 1500, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, s.ActiveTasks)
	require.Len(t, s.CompletedTasks, 1)
	assert.Equal(t, int64(1500), s.CompletedTasks[0].DurationMS)
	assert.Equal(t, int64(10), s.TotalInputTokens)
}

func TestFailTask_MovesFromActiveToFailed(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root, "P", "title", 1, 1)
	require.NoError(t, err)
	_, err = AddActiveTask(root, "P", ActiveTask{ID: "t1"})
	require.NoError(t, err)

	s, err := FailTask(root, "P", "t1", "boom", 200)
	require.NoError(t, err)
	assert.Empty(t, s.ActiveTasks)
	require.Len(t, s.FailedTasks, 1)
	assert.Equal(t, "boom", s.FailedTasks[0].Error)
}

func TestClearAllActive(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root, "P", "title", 1, 2)
	require.NoError(t, err)
	_, err = AddActiveTask(root, "P", ActiveTask{ID: "t1"})
	require.NoError(t, err)
	_, err = AddActiveTask(root, "P", ActiveTask{ID: "t2"})
	require.NoError(t, err)

	s, err := ClearAllActive(root, "P")
	require.NoError(t, err)
	assert.Empty(t, s.ActiveTasks)
}

func TestDelete(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root, "P", "title", 1, 1)
	require.NoError(t, err)
	assert.True(t, Delete(root, "P"))
	_, ok := Read(root, "P")
	assert.False(t, ok)
}

func TestWithSync_StaleLockIsBroken(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root, "P", "title", 1, 1)
	require.NoError(t, err)

	lockPath := layout.RuntimeLockPath(root, "P")
	stale := time.Now().Add(-2 * LockTimeout).UnixMilli()
	require.NoError(t, os.WriteFile(lockPath, []byte(itoa(stale)), 0o644))

	_, err = AddActiveTask(root, "P", ActiveTask{ID: "t1"})
	require.NoError(t, err)
}

func TestWithSync_ConcurrentWritersSerialize(t *testing.T) {
	root := t.TempDir()
	_, err := Initialize(root, "P", "title", 1, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = AddActiveTask(root, "P", ActiveTask{ID: itoa(int64(n))})
		}(i)
	}
	wg.Wait()

	s, ok := Read(root, "P")
	require.True(t, ok)
	assert.Len(t, s.ActiveTasks, 10)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
