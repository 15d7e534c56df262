package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_CPUProfile(t *testing.T) {
	// Given a session that records only a CPU profile
	path := filepath.Join(t.TempDir(), "cpu.prof")
	s, err := Start(Options{CPUPath: path})
	require.NoError(t, err)

	// When doing some work and stopping the session
	sum := 0
	for i := 0; i < 1_000_000; i++ {
		sum += i
	}
	_ = sum
	require.NoError(t, s.Stop())

	// Then the profile file exists and is non-empty
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_HeapProfileWrittenOnStop(t *testing.T) {
	// Given a session that records a heap snapshot
	path := filepath.Join(t.TempDir(), "heap.prof")
	s, err := Start(Options{HeapPath: path})
	require.NoError(t, err)

	// When allocating and stopping the session
	buf := make([]byte, 1<<20)
	_ = buf
	require.NoError(t, s.Stop())

	// Then the snapshot was written at stop time
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_Trace(t *testing.T) {
	// Given a session recording an execution trace
	path := filepath.Join(t.TempDir(), "trace.out")
	s, err := Start(Options{TracePath: path})
	require.NoError(t, err)

	// When stopping after a little work
	sum := 0
	for i := 0; i < 1000; i++ {
		sum += i
	}
	_ = sum
	require.NoError(t, s.Stop())

	// Then the trace file has content
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_BadPathFails(t *testing.T) {
	// Given a CPU profile path inside a directory that does not exist
	path := filepath.Join(t.TempDir(), "missing", "cpu.prof")

	// When starting the session
	_, err := Start(Options{CPUPath: path})

	// Then the error is surfaced instead of profiling silently
	assert.Error(t, err)
}

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{CPUPath: "cpu.prof"}.Enabled())
	assert.True(t, Options{HeapPath: "heap.prof"}.Enabled())
	assert.True(t, Options{TracePath: "trace.out"}.Enabled())
}
