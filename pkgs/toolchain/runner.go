package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps draining pipes after the child has
// been killed or has exited while a descendant still holds them open.
const waitDelay = 5 * time.Second

// LaunchError reports a toolchain command that could not be started.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("launch: %v", e.Err)
	}
	return fmt.Sprintf("launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitError reports a toolchain command that ran and failed. Output holds the
// complete combined stdout and stderr of the command.
type ExitError struct {
	Args   []string
	Code   int   // exit code, -1 if the process was killed
	Output string
	Err    error // context error when the process was killed
}

func (e *ExitError) Error() string {
	name := ""
	if len(e.Args) > 0 {
		name = e.Args[0]
	}
	var head string
	if e.Err != nil {
		head = fmt.Sprintf("%s killed: %v", name, e.Err)
	} else {
		head = fmt.Sprintf("%s exited with status %d", name, e.Code)
	}
	if e.Output == "" {
		return head
	}
	return head + ":\n" + e.Output
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner executes toolchain commands as child processes.
//
// The zero value is ready to use: commands inherit the current environment
// and working directory and run without a timeout.
type Runner struct {
	Env     map[string]string // overrides merged over os.Environ()
	Dir     string
	Timeout time.Duration // per command, 0 for none
	Output  io.Writer     // optional live copy of the combined output
	Logger  *zap.Logger
}

// Run executes args and returns the combined output.
//
// The child is always reaped before Run returns. When ctx is done or the
// timeout expires the child's process group is killed and its output is
// still collected.
func (r *Runner) Run(ctx context.Context, args []string) (string, error) {
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if len(args) == 0 {
		return "", &LaunchError{Err: errors.New("empty command")}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	//nolint:gosec // commands come from the platform configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), r.Env)
	}

	// The same writer on both streams makes os/exec share one pipe and one
	// copying goroutine, which keeps the output interleaved as produced.
	var buf bytes.Buffer
	var w io.Writer = &buf
	if r.Output != nil {
		w = io.MultiWriter(&buf, r.Output)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	log.Debug("exec", zap.Strings("args", args), zap.String("dir", r.Dir))
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", &LaunchError{Name: args[0], Err: err}
	}
	err := cmd.Wait()
	out := buf.String()
	elapsed := time.Since(start)

	if err == nil {
		log.Debug("exec done", zap.String("cmd", args[0]), zap.Duration("elapsed", elapsed))
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warn("exec killed", zap.String("cmd", args[0]), zap.Duration("elapsed", elapsed), zap.Error(ctxErr))
		return out, &ExitError{Args: args, Code: -1, Output: out, Err: ctxErr}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Debug("exec failed", zap.String("cmd", args[0]), zap.Int("code", exitErr.ExitCode()))
		return out, &ExitError{Args: args, Code: exitErr.ExitCode(), Output: out}
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		// exited cleanly, a descendant kept the pipe open past waitDelay
		log.Warn("exec output pipe left open", zap.String("cmd", args[0]))
		return out, nil
	}
	return out, fmt.Errorf("wait %s: %w", args[0], err)
}

func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
