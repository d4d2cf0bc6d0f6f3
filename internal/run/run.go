// Package run resolves an installed package's entrypoint and spawns it as a
// child process, expanding env placeholders relative to the install tree.
package run

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/timelessos/flint/internal/ferr"
	"github.com/timelessos/flint/internal/manifest"
)

// Result reports how the child process terminated.
type Result struct {
	// ExitCode is the process's exit status. Meaningless when Signaled is true.
	ExitCode int
	// Signaled reports whether the child was terminated by a signal rather
	// than exiting normally; callers must distinguish this from a numeric
	// exit code (spec.md section 6's Signals note).
	Signaled bool
	Signal   os.Signal
}

// Success reports whether the child exited normally with status 0.
func (r Result) Success() bool {
	return !r.Signaled && r.ExitCode == 0
}

// Start selects the first command in pkg.Commands whose path ends with
// entrypoint (so callers may pass either "bash" or "/bin/bash"), builds the
// child environment from pkg.Env with every literal "./" prefix replaced by
// installedDir+"/", and spawns it with args.
func Start(ctx context.Context, pkg *manifest.Package, installedDir, entrypoint string, args []string) (Result, error) {
	command := ""
	for _, c := range pkg.Commands {
		if strings.HasSuffix(c, entrypoint) {
			command = c
			break
		}
	}
	if command == "" {
		return Result{}, ferr.New(ferr.NotFound, "run.Start", entrypoint, "no command matches this entrypoint")
	}

	// Commands are logical entrypoint paths relative to the install tree, even
	// when written with a leading slash in the build manifest; joining with an
	// absolute path would otherwise discard installedDir and hit the host
	// filesystem, breaking the install/run isolation model.
	binPath := filepath.Join(installedDir, strings.TrimPrefix(command, "/"))

	env := buildEnv(pkg.Env, installedDir)

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return Result{ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return Result{Signaled: true, Signal: status.Signal()}, nil
		}
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}

	return Result{}, ferr.Wrap(ferr.Io, "run.Start", binPath, err)
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// buildEnv flattens env into a process environment slice, replacing every
// literal "./" prefix in each value with installedDir+"/".
func buildEnv(env map[string]string, installedDir string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		if strings.HasPrefix(v, "./") {
			v = installedDir + "/" + strings.TrimPrefix(v, "./")
		}
		result = append(result, k+"="+v)
	}
	return result
}
