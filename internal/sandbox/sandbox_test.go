package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"execengine/internal/pkgcache"
	"execengine/internal/registry"
	"execengine/internal/types"
	"execengine/internal/workspace"
)

// skipIfNoDocker mirrors the teacher's container_sandbox_test.go pattern:
// these tests exercise a real Docker daemon and must degrade gracefully in
// environments where one isn't running.
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	cmd := exec.Command("docker", "info")
	if err := cmd.Run(); err != nil {
		t.Skip("Docker not available, skipping sandbox supervisor tests")
	}
}

func TestNewSupervisor(t *testing.T) {
	skipIfNoDocker(t)

	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()
	assert.Equal(t, 0, sup.ActiveCount())
}

func TestRunPythonHelloWorld(t *testing.T) {
	skipIfNoDocker(t)

	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()

	reg := registry.New()
	spec, err := reg.Lookup("python")
	require.NoError(t, err)

	wsMgr, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	ws, err := wsMgr.Create("exec_test_python", spec.SourceFilename(""), "print('Hello, World!')\n")
	require.NoError(t, err)
	defer wsMgr.Destroy(ws)

	outcome, err := sup.Run(context.Background(), "exec_test_python", spec, ws, types.Limits{
		MemoryBytes:    spec.DefaultMemoryBytes,
		CPUFraction:    spec.DefaultCPUFraction,
		PidsLimit:      spec.DefaultPidsLimit,
		WallTimeoutMs:  spec.DefaultTimeoutMs(),
		MaxOutputBytes: types.MaxOutputBytes,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!\n", outcome.Stdout)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Equal(t, types.CauseExited, outcome.TerminationCause)
}

func TestRunTimesOutLongRunningLoop(t *testing.T) {
	skipIfNoDocker(t)

	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()

	reg := registry.New()
	spec, err := reg.Lookup("python")
	require.NoError(t, err)

	wsMgr, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	ws, err := wsMgr.Create("exec_test_timeout", spec.SourceFilename(""), "while True:\n    pass\n")
	require.NoError(t, err)
	defer wsMgr.Destroy(ws)

	outcome, err := sup.Run(context.Background(), "exec_test_timeout", spec, ws, types.Limits{
		MemoryBytes:    spec.DefaultMemoryBytes,
		CPUFraction:    spec.DefaultCPUFraction,
		PidsLimit:      spec.DefaultPidsLimit,
		WallTimeoutMs:  1000,
		MaxOutputBytes: types.MaxOutputBytes,
	})
	require.NoError(t, err)
	assert.Equal(t, types.CauseKilledByTimeout, outcome.TerminationCause)
}

func TestRunStdinIsDelivered(t *testing.T) {
	skipIfNoDocker(t)

	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()

	reg := registry.New()
	spec, err := reg.Lookup("python")
	require.NoError(t, err)

	wsMgr, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	ws, err := wsMgr.Create("exec_test_stdin", spec.SourceFilename(""), "name = input()\nprint(f'hi {name}')\n")
	require.NoError(t, err)
	defer wsMgr.Destroy(ws)
	require.NoError(t, wsMgr.WriteStdin(ws, "Ada\n"))

	outcome, err := sup.Run(context.Background(), "exec_test_stdin", spec, ws, types.Limits{
		MemoryBytes:    spec.DefaultMemoryBytes,
		CPUFraction:    spec.DefaultCPUFraction,
		PidsLimit:      spec.DefaultPidsLimit,
		WallTimeoutMs:  spec.DefaultTimeoutMs(),
		MaxOutputBytes: types.MaxOutputBytes,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi Ada\n", outcome.Stdout)
}

func TestRunNetworkDisabledByDefault(t *testing.T) {
	skipIfNoDocker(t)

	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()

	reg := registry.New()
	spec, err := reg.Lookup("python")
	require.NoError(t, err)

	wsMgr, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	src := "import socket\ntry:\n    socket.create_connection(('8.8.8.8', 53), timeout=2)\n    print('connected')\nexcept Exception as e:\n    print('blocked')\n"
	ws, err := wsMgr.Create("exec_test_network", spec.SourceFilename(""), src)
	require.NoError(t, err)
	defer wsMgr.Destroy(ws)

	outcome, err := sup.Run(context.Background(), "exec_test_network", spec, ws, types.Limits{
		MemoryBytes:    spec.DefaultMemoryBytes,
		CPUFraction:    spec.DefaultCPUFraction,
		PidsLimit:      spec.DefaultPidsLimit,
		WallTimeoutMs:  5000,
		MaxOutputBytes: types.MaxOutputBytes,
	})
	require.NoError(t, err)
	assert.Equal(t, "blocked\n", outcome.Stdout)
}

func TestRunMemoryLimitExceededSetsCause(t *testing.T) {
	skipIfNoDocker(t)

	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()

	reg := registry.New()
	spec, err := reg.Lookup("python")
	require.NoError(t, err)

	wsMgr, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	src := "x = bytearray(b'1' * (64 * 1024 * 1024))\nwhile True:\n    x += bytearray(b'1' * (16 * 1024 * 1024))\n"
	ws, err := wsMgr.Create("exec_test_oom", spec.SourceFilename(""), src)
	require.NoError(t, err)
	defer wsMgr.Destroy(ws)

	outcome, err := sup.Run(context.Background(), "exec_test_oom", spec, ws, types.Limits{
		MemoryBytes:    32 * 1024 * 1024,
		CPUFraction:    spec.DefaultCPUFraction,
		PidsLimit:      spec.DefaultPidsLimit,
		WallTimeoutMs:  10000,
		MaxOutputBytes: types.MaxOutputBytes,
	})
	require.NoError(t, err)
	assert.Equal(t, types.CauseKilledByMemory, outcome.TerminationCause)
}

func TestKillLiveExecution(t *testing.T) {
	skipIfNoDocker(t)

	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()

	reg := registry.New()
	spec, err := reg.Lookup("python")
	require.NoError(t, err)

	wsMgr, err := workspace.NewManager(t.TempDir())
	require.NoError(t, err)
	ws, err := wsMgr.Create("exec_test_kill", spec.SourceFilename(""), "import time\ntime.sleep(30)\n")
	require.NoError(t, err)
	defer wsMgr.Destroy(ws)

	done := make(chan types.RawOutcome, 1)
	go func() {
		outcome, _ := sup.Run(context.Background(), "exec_test_kill", spec, ws, types.Limits{
			MemoryBytes:    spec.DefaultMemoryBytes,
			CPUFraction:    spec.DefaultCPUFraction,
			PidsLimit:      spec.DefaultPidsLimit,
			WallTimeoutMs:  30000,
			MaxOutputBytes: types.MaxOutputBytes,
		})
		done <- outcome
	}()

	require.Eventually(t, func() bool { return sup.ActiveCount() > 0 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, sup.Kill(context.Background(), "exec_test_kill"))

	select {
	case outcome := <-done:
		assert.NotEqual(t, types.CauseExited, outcome.TerminationCause)
	case <-time.After(10 * time.Second):
		t.Fatal("kill did not terminate the execution in time")
	}
}

func TestBuildHostConfigMountsPackageCacheWhenEnabled(t *testing.T) {
	skipIfNoDocker(t)
	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()
	sup.SetPackageCache(pkgcache.New(t.TempDir(), true))

	hostCfg := sup.buildHostConfig(t.TempDir(), "", types.Limits{}, "python")
	require.Len(t, hostCfg.Mounts, 2)
	assert.Equal(t, "/cache/pip", hostCfg.Mounts[1].Target)
}

func TestBuildHostConfigSkipsPackageCacheWhenDisabled(t *testing.T) {
	skipIfNoDocker(t)
	sup, err := New(DefaultConfig())
	require.NoError(t, err)
	defer sup.Close()

	hostCfg := sup.buildHostConfig(t.TempDir(), "", types.Limits{}, "python")
	assert.Len(t, hostCfg.Mounts, 1)
}

func TestWrapWithStdinRedirectNoopWithoutStdinFile(t *testing.T) {
	cmd := []string{"python3", "-u", "main.py"}
	assert.Equal(t, cmd, wrapWithStdinRedirect(cmd, ""))
}

func TestWrapWithStdinRedirectExecForm(t *testing.T) {
	got := wrapWithStdinRedirect([]string{"python3", "-u", "main.py"}, "input.txt")
	assert.Equal(t, []string{"sh", "-c", "'python3' '-u' 'main.py' < input.txt"}, got)
}

func TestWrapWithStdinRedirectShellForm(t *testing.T) {
	got := wrapWithStdinRedirect([]string{"sh", "-c", "javac Main.java && java -cp . Main"}, "input.txt")
	assert.Equal(t, []string{"sh", "-c", "javac Main.java && java -cp . Main < input.txt"}, got)
}

func TestRenderSeccompProfileBlocksPtrace(t *testing.T) {
	data, err := renderSeccompProfile()
	require.NoError(t, err)
	assert.Contains(t, string(data), "ptrace")
	assert.Contains(t, string(data), "SCMP_ACT_ERRNO")
}
