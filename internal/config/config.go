// Package config loads environment-driven configuration for the execution
// engine, following the teacher's sandbox/v2/manager.go DefaultConfig/envOr
// pattern, with byte-suffix parsing via github.com/docker/go-units and an
// optional .env load via github.com/joho/godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
)

// Config is the engine's resolved runtime configuration.
type Config struct {
	DockerHost string

	MaxMemoryBytes int64
	MaxCPUFraction float64

	DockerTimeout         time.Duration
	CompiledDockerTimeout time.Duration

	MaxConcurrentExecutions int64
	OutputCapBytes          int64

	NetworkEnabled  bool
	ReadOnlyRootFS  bool
	NoNewPrivileges bool
	PullImages      bool

	WorkspaceRoot string

	EnablePackageCache bool
	PackageCacheRoot   string
}

// Load reads an optional .env file (if present) then resolves Config from
// the environment, falling back to the engine's documented defaults for
// anything unset.
func Load() (Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	maxMemory, err := units.RAMInBytes(envOr("MAX_MEMORY", "128m"))
	if err != nil {
		return Config{}, fmt.Errorf("config: MAX_MEMORY: %w", err)
	}

	maxCPU, err := strconv.ParseFloat(envOr("MAX_CPU", "0.5"), 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: MAX_CPU: %w", err)
	}

	dockerTimeoutMs, err := strconv.ParseInt(envOr("DOCKER_TIMEOUT", "30000"), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: DOCKER_TIMEOUT: %w", err)
	}

	compiledTimeoutMs, err := strconv.ParseInt(envOr("DOCKER_TIMEOUT_COMPILED", "45000"), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: DOCKER_TIMEOUT_COMPILED: %w", err)
	}

	maxConcurrent, err := strconv.ParseInt(envOr("MAX_CONCURRENT_EXECUTIONS", "10"), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: MAX_CONCURRENT_EXECUTIONS: %w", err)
	}

	outputCap, err := strconv.ParseInt(envOr("OUTPUT_CAP_BYTES", "100000"), 10, 64)
	if err != nil {
		return Config{}, fmt.Errorf("config: OUTPUT_CAP_BYTES: %w", err)
	}

	workspaceRoot := os.Getenv("WORKSPACE_ROOT")
	if workspaceRoot == "" {
		workspaceRoot = os.TempDir() + "/execengine-workspaces"
	}

	cacheRoot := os.Getenv("PACKAGE_CACHE_ROOT")
	if cacheRoot == "" {
		cacheRoot = os.TempDir() + "/execengine-cache"
	}

	return Config{
		DockerHost:              envOr("DOCKER_HOST", "unix:///var/run/docker.sock"),
		MaxMemoryBytes:          maxMemory,
		MaxCPUFraction:          maxCPU,
		DockerTimeout:           time.Duration(dockerTimeoutMs) * time.Millisecond,
		CompiledDockerTimeout:   time.Duration(compiledTimeoutMs) * time.Millisecond,
		MaxConcurrentExecutions: maxConcurrent,
		OutputCapBytes:          outputCap,
		NetworkEnabled:          boolEnv("NETWORK_ENABLED", false),
		ReadOnlyRootFS:          boolEnv("READ_ONLY_ROOTFS", true),
		NoNewPrivileges:         boolEnv("NO_NEW_PRIVILEGES", true),
		PullImages:              boolEnv("PULL_IMAGES", true),
		WorkspaceRoot:           workspaceRoot,
		EnablePackageCache:      boolEnv("ENABLE_PACKAGE_CACHE", false),
		PackageCacheRoot:        cacheRoot,
	}, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
