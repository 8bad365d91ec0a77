// enginectl is a minimal CLI entrypoint around the execution engine. It is
// deliberately not an HTTP server: routing, auth, and persistence are out
// of scope for this repository and are expected to be wired by a caller
// that embeds the orchestrator directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"execengine/internal/config"
	"execengine/internal/logging"
	"execengine/internal/orchestrator"
	"execengine/internal/pkgcache"
	"execengine/internal/registry"
	"execengine/internal/sandbox"
	"execengine/internal/screener"
	"execengine/internal/types"
	"execengine/internal/workspace"
)

func main() {
	logging.Init()
	defer logging.Sync()

	language := flag.String("language", "", "language id (python, javascript, cpp, java)")
	sourcePath := flag.String("source", "", "path to source file, or - for stdin")
	stdinPath := flag.String("stdin", "", "path to stdin file for the program, optional")
	timeoutMs := flag.Int64("timeout-ms", 0, "wall timeout override in milliseconds, optional")
	flag.Parse()

	if *language == "" || *sourcePath == "" {
		fmt.Fprintln(os.Stderr, "usage: enginectl -language <id> -source <path|-> [-stdin <path>] [-timeout-ms <n>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal("config load failed", zap.Error(err))
	}

	source, err := readInput(*sourcePath)
	if err != nil {
		logging.L().Fatal("read source failed", zap.Error(err))
	}

	var stdin string
	if *stdinPath != "" {
		stdin, err = readInput(*stdinPath)
		if err != nil {
			logging.L().Fatal("read stdin failed", zap.Error(err))
		}
	}

	wsMgr, err := workspace.NewManager(cfg.WorkspaceRoot)
	if err != nil {
		logging.L().Fatal("workspace manager init failed", zap.Error(err))
	}

	sup, err := sandbox.New(sandbox.Config{
		DockerHost:      cfg.DockerHost,
		NetworkEnabled:  cfg.NetworkEnabled,
		ReadOnlyRootFS:  cfg.ReadOnlyRootFS,
		NoNewPrivileges: cfg.NoNewPrivileges,
		PullImages:      cfg.PullImages,
		TmpfsSize:       "64m",
	})
	if err != nil {
		logging.L().Fatal("sandbox supervisor init failed", zap.Error(err))
	}
	defer sup.Close()
	sup.SetPackageCache(pkgcache.New(cfg.PackageCacheRoot, cfg.EnablePackageCache))

	orch := orchestrator.New(registry.New(), screener.New(), wsMgr, sup, cfg.MaxConcurrentExecutions, nil)

	req := types.ExecutionRequest{Language: *language, Source: source, Stdin: stdin}
	if *timeoutMs > 0 {
		req.Limits = &types.LimitsOverride{WallTimeoutMs: *timeoutMs}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(types.MaxWallTimeoutMs+int64(types.TeardownGraceMs))*time.Millisecond)
	defer cancel()

	result := orch.Execute(ctx, req, types.InvocationContext{CallerID: "enginectl"})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logging.L().Fatal("encode result failed", zap.Error(err))
	}

	if result.Status != types.StatusSuccess {
		os.Exit(1)
	}
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}
