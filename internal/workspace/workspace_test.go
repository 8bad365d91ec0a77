package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWritesSourceFile(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	ws, err := mgr.Create("exec_1", "main.py", "print(1)\n")
	require.NoError(t, err)
	defer mgr.Destroy(ws)

	data, err := os.ReadFile(filepath.Join(ws.Root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", string(data))
	assert.Equal(t, "main.py", ws.SourceFile())
}

func TestCreateRejectsPathTraversalFilename(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	_, err = mgr.Create("exec_1", "../escape.py", "print(1)\n")
	assert.Error(t, err)
}

func TestDestroyRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	ws, err := mgr.Create("exec_1", "main.py", "print(1)\n")
	require.NoError(t, err)

	require.NoError(t, mgr.Destroy(ws))
	_, statErr := os.Stat(ws.Root)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDestroyIsIdempotent(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	ws, err := mgr.Create("exec_1", "main.py", "print(1)\n")
	require.NoError(t, err)

	require.NoError(t, mgr.Destroy(ws))
	assert.NoError(t, mgr.Destroy(ws))
}

func TestDestroyNilIsNoop(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)
	assert.NoError(t, mgr.Destroy(nil))
}

func TestWriteStdinCreatesSiblingFile(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	ws, err := mgr.Create("exec_1", "main.py", "print(input())\n")
	require.NoError(t, err)
	defer mgr.Destroy(ws)

	require.NoError(t, mgr.WriteStdin(ws, "Ada\n"))
	assert.Equal(t, "input.txt", ws.StdinFile())

	data, err := os.ReadFile(filepath.Join(ws.Root, "input.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Ada\n", string(data))
}

func TestWriteStdinEmptyIsNoop(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	ws, err := mgr.Create("exec_1", "main.py", "print(1)\n")
	require.NoError(t, err)
	defer mgr.Destroy(ws)

	require.NoError(t, mgr.WriteStdin(ws, ""))
	assert.Equal(t, "", ws.StdinFile())

	_, statErr := os.Stat(filepath.Join(ws.Root, "input.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStdinFileEmptyBeforeWrite(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	ws, err := mgr.Create("exec_1", "main.py", "print(1)\n")
	require.NoError(t, err)
	defer mgr.Destroy(ws)

	assert.Equal(t, "", ws.StdinFile())
}

func TestWorkspacesAreIsolatedPerExecution(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager(root)
	require.NoError(t, err)

	wsA, err := mgr.Create("exec_a", "main.py", "a")
	require.NoError(t, err)
	defer mgr.Destroy(wsA)

	wsB, err := mgr.Create("exec_b", "main.py", "b")
	require.NoError(t, err)
	defer mgr.Destroy(wsB)

	assert.NotEqual(t, wsA.Root, wsB.Root)
}
