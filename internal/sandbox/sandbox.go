// Package sandbox implements the Sandbox Supervisor: launches one disposable,
// resource-capped, network-less container per execution, streams/demuxes its
// output under a deadline, and guarantees the container is removed.
//
// Grounded on the teacher's internal/sandbox/v2/executor.go DockerExecutor
// (Docker Engine SDK usage: ContainerCreate/Start/Attach/Wait/Logs/Remove,
// the ContainerWait-vs-deadline select, stdcopy demultiplexing) and
// internal/execution/container_sandbox.go (seccomp profile, resource
// defaults, read-only-root + tmpfs + cap-drop security posture).
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"execengine/internal/pkgcache"
	"execengine/internal/registry"
	"execengine/internal/types"
	"execengine/internal/workspace"
)

// Config controls the supervisor's Docker-facing behavior.
type Config struct {
	DockerHost      string
	NetworkEnabled  bool
	ReadOnlyRootFS  bool
	NoNewPrivileges bool
	PullImages      bool
	TmpfsSize       string
	SeccompPath     string // if empty, a profile is rendered to a temp file per container
}

// DefaultConfig returns the secure-by-default posture the spec requires.
func DefaultConfig() Config {
	return Config{
		NetworkEnabled:  false,
		ReadOnlyRootFS:  true,
		NoNewPrivileges: true,
		PullImages:      true,
		TmpfsSize:       "64m",
	}
}

// handle tracks one live container for external Kill() calls.
type handle struct {
	containerID string
	cancel      context.CancelFunc
}

// Supervisor runs containers for executions and tracks the live set.
type Supervisor struct {
	cfg    Config
	client *client.Client

	mu      sync.Mutex
	running map[string]handle

	seccompOnce sync.Once
	seccompFile string
	seccompErr  error

	pkgCache *pkgcache.Manager
}

// SetPackageCache wires an optional shared package-cache mount source. A
// nil or disabled manager leaves Run's mount list unchanged.
func (s *Supervisor) SetPackageCache(m *pkgcache.Manager) {
	s.pkgCache = m
}

// New constructs a Supervisor bound to the Docker daemon.
func New(cfg Config) (*Supervisor, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerHost != "" {
		opts = append(opts, client.WithHost(cfg.DockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: docker client: %w", err)
	}
	return &Supervisor{cfg: cfg, client: cli, running: make(map[string]handle)}, nil
}

func (s *Supervisor) seccompProfilePath() (string, error) {
	s.seccompOnce.Do(func() {
		if s.cfg.SeccompPath != "" {
			s.seccompFile = s.cfg.SeccompPath
			return
		}
		data, err := renderSeccompProfile()
		if err != nil {
			s.seccompErr = err
			return
		}
		f, err := os.CreateTemp("", "execengine-seccomp-*.json")
		if err != nil {
			s.seccompErr = err
			return
		}
		defer f.Close()
		if _, err := f.Write(data); err != nil {
			s.seccompErr = err
			return
		}
		s.seccompFile = f.Name()
	})
	return s.seccompFile, s.seccompErr
}

// Run executes one submission in a fresh container and returns a
// RawOutcome. The workspace directory is bind-mounted read-write — besides
// the package-cache binds, when enabled, the only writable bind the
// container gets — so a language that compiles in place (javac writing
// .class files alongside the source) has somewhere to put its output;
// stdout and stderr are each kept to at most lim.MaxOutputBytes+1 bytes, the
// extra byte letting the Result Normalizer see that the cap was exceeded.
// Stdin, if the Workspace Manager wrote one, is delivered by redirecting the
// launch command from the sibling file written into the workspace rather
// than by streaming it over a separate attach connection.
func (s *Supervisor) Run(ctx context.Context, executionID string, spec registry.LanguageSpec, ws *workspace.Workspace, lim types.Limits) (types.RawOutcome, error) {
	timeout := time.Duration(lim.WallTimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seccompPath, err := s.seccompProfilePath()
	if err != nil {
		return types.RawOutcome{}, fmt.Errorf("sandbox: seccomp profile: %w", err)
	}

	if s.cfg.PullImages {
		if err := s.ensureImage(execCtx, spec.Image); err != nil {
			return types.RawOutcome{}, err
		}
	}

	cmd := wrapWithStdinRedirect(spec.LaunchCmd(ws.SourceFile()), ws.StdinFile())

	hostCfg := s.buildHostConfig(ws.Root, seccompPath, lim, spec.ID)

	var env []string
	if s.pkgCache != nil {
		for _, m := range s.pkgCache.MountsForLanguage(spec.ID) {
			for k, v := range m.Env {
				env = append(env, k+"="+v)
			}
		}
	}

	containerCfg := &container.Config{
		Image:           spec.Image,
		WorkingDir:      "/work",
		Cmd:             cmd,
		Env:             env,
		AttachStdout:    true,
		AttachStderr:    true,
		Tty:             false,
		NetworkDisabled: !s.cfg.NetworkEnabled,
		User:            "sandbox",
	}

	created, err := s.client.ContainerCreate(execCtx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "execengine-"+executionID)
	if err != nil {
		return types.RawOutcome{}, fmt.Errorf("sandbox: container create: %w", err)
	}
	containerID := created.ID

	s.trackStart(executionID, containerID, cancel)
	defer s.trackStop(executionID)
	defer func() {
		_ = s.client.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	start := time.Now()
	if err := s.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return types.RawOutcome{}, fmt.Errorf("sandbox: container start: %w", err)
	}

	waitCh, errCh := s.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var (
		exitCode int
		cause    types.TerminationCause
	)

	select {
	case <-execCtx.Done():
		_ = s.client.ContainerKill(context.Background(), containerID, "SIGKILL")
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			cause = types.CauseKilledByTimeout
			exitCode = 124
		} else {
			cause = types.CauseInternalFailure
			exitCode = 137
		}
	case resp := <-waitCh:
		exitCode = int(resp.StatusCode)
		cause = types.CauseExited
		if resp.Error != nil {
			cause = types.CauseInternalFailure
		}
	case err := <-errCh:
		return types.RawOutcome{}, fmt.Errorf("sandbox: container wait: %w", err)
	}

	wallTime := time.Since(start)

	stdout, stderr, logErr := s.readLogs(context.Background(), containerID, lim.MaxOutputBytes)

	peak := s.peakMemory(context.Background(), containerID)
	if cause != types.CauseKilledByTimeout && peak != nil && lim.MemoryBytes > 0 && *peak >= lim.MemoryBytes {
		cause = types.CauseKilledByMemory
	}

	outcome := types.RawOutcome{
		Stdout:           stdout,
		Stderr:           stderr,
		ExitCode:         exitCode,
		WallTime:         wallTime,
		PeakMemoryBytes:  peak,
		TerminationCause: cause,
	}
	if logErr != nil {
		outcome.InternalErr = fmt.Errorf("sandbox: read logs: %w", logErr)
	}
	return outcome, nil
}

func (s *Supervisor) buildHostConfig(workspaceRoot, seccompPath string, lim types.Limits, language string) *container.HostConfig {
	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: workspaceRoot,
			Target: "/work",
		},
	}
	if s.pkgCache != nil {
		for _, m := range s.pkgCache.MountsForLanguage(language) {
			mounts = append(mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: m.HostPath,
				Target: m.ContainerPath,
			})
		}
	}

	securityOpt := []string{}
	if s.cfg.NoNewPrivileges {
		securityOpt = append(securityOpt, "no-new-privileges:true")
	}
	if seccompPath != "" {
		securityOpt = append(securityOpt, "seccomp="+seccompPath)
	}

	pidsLimit := lim.PidsLimit
	if pidsLimit <= 0 {
		pidsLimit = 64
	}
	memoryBytes := lim.MemoryBytes
	if memoryBytes <= 0 {
		memoryBytes = 256 * 1024 * 1024
	}
	nanoCPUs := int64(lim.CPUFraction * 1_000_000_000)
	if nanoCPUs <= 0 {
		nanoCPUs = 500_000_000
	}

	networkMode := "none"
	if s.cfg.NetworkEnabled {
		networkMode = "bridge"
	}

	return &container.HostConfig{
		AutoRemove:     false,
		ReadonlyRootfs: s.cfg.ReadOnlyRootFS,
		SecurityOpt:    securityOpt,
		CapDrop:        []string{"ALL"},
		Mounts:         mounts,
		NetworkMode:    container.NetworkMode(networkMode),
		Tmpfs:          map[string]string{"/tmp": fmt.Sprintf("rw,noexec,nosuid,size=%s", s.cfg.TmpfsSize)},
		Resources: container.Resources{
			Memory:     memoryBytes,
			MemorySwap: memoryBytes,
			NanoCPUs:   nanoCPUs,
			PidsLimit:  &pidsLimit,
		},
	}
}

func (s *Supervisor) ensureImage(ctx context.Context, imageName string) error {
	_, _, err := s.client.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}
	rc, pullErr := s.client.ImagePull(ctx, imageName, image.PullOptions{})
	if pullErr != nil {
		return fmt.Errorf("sandbox: pull image %s: %w (inspect err: %v)", imageName, pullErr, err)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

// wrapWithStdinRedirect rewrites cmd so the container reads stdinFile (a
// workspace-relative path written by the Workspace Manager) as its standard
// input. A launch command already in "sh -c <script>" shell form (the
// compiled languages) gets the redirection appended to its script; anything
// else is re-quoted into that form so the redirection applies uniformly.
func wrapWithStdinRedirect(cmd []string, stdinFile string) []string {
	if stdinFile == "" {
		return cmd
	}
	if len(cmd) == 3 && cmd[0] == "sh" && cmd[1] == "-c" {
		return []string{"sh", "-c", cmd[2] + " < " + stdinFile}
	}
	return []string{"sh", "-c", shellJoin(cmd) + " < " + stdinFile}
}

func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

// limitedWriter truncates at limit bytes rather than erroring; the Result
// Normalizer appends its own truncation marker downstream.
type limitedWriter struct {
	w     io.Writer
	limit int64
	n     int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.n >= lw.limit {
		return len(p), nil
	}
	remaining := lw.limit - lw.n
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.n += int64(n)
	return len(p), err
}

func (s *Supervisor) readLogs(ctx context.Context, containerID string, limit int64) (string, string, error) {
	rc, err := s.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	// Keep one byte past the cap so the normalizer's length check can tell
	// overflowing output from output of exactly the cap, and mark it.
	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(&limitedWriter{w: &stdout, limit: limit + 1}, &limitedWriter{w: &stderr, limit: limit + 1}, rc)
	return stdout.String(), stderr.String(), err
}

// peakMemory queries container stats once, after the container has
// finished. A malformed or absent stats stream must never fail the
// execution it describes — it only means PeakMemoryBytes is omitted.
func (s *Supervisor) peakMemory(ctx context.Context, containerID string) *int64 {
	resp, err := s.client.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil
	}
	usage := int64(stats.MemoryStats.MaxUsage)
	if usage <= 0 {
		usage = int64(stats.MemoryStats.Usage)
	}
	if usage <= 0 {
		return nil
	}
	return &usage
}

func (s *Supervisor) trackStart(executionID, containerID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[executionID] = handle{containerID: containerID, cancel: cancel}
}

func (s *Supervisor) trackStop(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, executionID)
}

// Kill force-stops a live execution's container, if it is still running.
// Killing an execution that has already finished is a no-op, not an error.
func (s *Supervisor) Kill(ctx context.Context, executionID string) error {
	s.mu.Lock()
	h, ok := s.running[executionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	h.cancel()
	return s.client.ContainerKill(ctx, h.containerID, "SIGKILL")
}

// ActiveCount reports the number of containers currently tracked as live.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Close releases the Docker client and removes any rendered seccomp temp
// file.
func (s *Supervisor) Close() error {
	if s.seccompFile != "" && s.cfg.SeccompPath == "" {
		_ = os.Remove(s.seccompFile)
	}
	return s.client.Close()
}
