// Package build drives a single engine build: it discovers extensions,
// compiles each into a static archive, generates the registration source and
// links everything into one executable inside a private workspace.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goplus/extender/internal/workspace"
	"github.com/goplus/extender/pkgs/manifest"
	"github.com/goplus/extender/pkgs/platform"
	"github.com/goplus/extender/pkgs/toolchain"
)

// Options configures a build session.
type Options struct {
	SourceDir string             // tree scanned for extension manifests
	Platform  *platform.Platform // toolchain description, required

	// Runner executes toolchain commands. When nil a *toolchain.Runner with
	// the platform environment is used.
	Runner Runner

	WorkspaceRoot string // parent of the scratch directory, os.TempDir when empty
	Jobs          int    // extensions compiled concurrently, at least 1

	// KeepOnFailure leaves the workspace on disk when the build fails; its
	// location is reported in Error.Workspace.
	KeepOnFailure bool

	RuntimeSource        []byte
	RegistrationTemplate string
	BinaryName           string

	Logger *zap.Logger
}

// Result is a successful build. The caller owns the workspace and must call
// Dispose once the binary has been copied out.
type Result struct {
	Workspace  *workspace.Workspace
	Binary     string
	Extensions []*Extension
	Symbols    []string
}

// Install copies the binary to dst with executable mode. If dst is an existing
// directory the binary keeps its name inside it. Install returns the path
// written.
func (r *Result) Install(dst string) (string, error) {
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(r.Binary))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(r.Binary)
	if err != nil {
		return "", err
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("installing %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, os.Chmod(dst, 0o755)
}

// Dispose removes the build workspace, binary included.
func (r *Result) Dispose() error {
	return r.Workspace.Dispose()
}

// Build runs a complete session. On failure the error is a *Error and,
// unless opts.KeepOnFailure is set, the workspace has already been removed.
func Build(ctx context.Context, opts Options) (res *Result, err error) {
	if opts.Platform == nil {
		return nil, &Error{Stage: StageSetup, Err: errors.New("no platform configured")}
	}
	// every template is checked before any toolchain command runs
	if err := opts.Platform.Validate(); err != nil {
		return nil, &Error{Stage: StageSetup, Err: err}
	}
	log := loggerOr(opts.Logger)
	start := time.Now()

	runner := opts.Runner
	if runner == nil {
		runner = &toolchain.Runner{Env: opts.Platform.Env, Logger: log}
	}

	ws, err := workspace.Create(opts.WorkspaceRoot)
	if err != nil {
		return nil, &Error{Stage: StageSetup, Err: err}
	}
	log.Debug("workspace created", zap.String("dir", ws.Dir()))
	defer func() {
		if err == nil {
			return
		}
		if opts.KeepOnFailure {
			var be *Error
			if errors.As(err, &be) {
				be.Workspace = ws.Dir()
			}
			log.Warn("keeping workspace", zap.String("dir", ws.Dir()))
			return
		}
		if derr := ws.Dispose(); derr != nil {
			log.Warn("removing workspace", zap.Error(derr))
		}
	}()

	descs, err := manifest.ScanAll(opts.SourceDir)
	if err != nil {
		return nil, &Error{Stage: StageScan, Err: err}
	}
	log.Info("extensions found", zap.Int("count", len(descs)))

	// symbol collisions are known before anything is compiled
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	if _, err := symbolList(names); err != nil {
		return nil, &Error{Stage: StageRegister, Err: err}
	}

	compiler := &Compiler{
		Platform:  opts.Platform,
		Workspace: ws,
		Runner:    runner,
		Logger:    log,
	}
	exts, err := compileAll(ctx, compiler, descs, opts.Jobs)
	if err != nil {
		return nil, err
	}

	symbols, err := Symbols(exts)
	if err != nil {
		return nil, &Error{Stage: StageRegister, Err: err}
	}

	linker := &Linker{
		Platform:             opts.Platform,
		Workspace:            ws,
		Runner:               runner,
		Logger:               log,
		RuntimeSource:        opts.RuntimeSource,
		RegistrationTemplate: opts.RegistrationTemplate,
		BinaryName:           opts.BinaryName,
	}
	bin, err := linker.Link(ctx, exts, symbols)
	if err != nil {
		return nil, err
	}

	log.Info("build finished", zap.String("binary", bin), zap.Duration("elapsed", time.Since(start)))
	return &Result{
		Workspace:  ws,
		Binary:     bin,
		Extensions: exts,
		Symbols:    symbols,
	}, nil
}

// compileAll compiles descs, at most jobs at a time. Results keep discovery
// order. The first failure cancels the remaining compiles.
func compileAll(ctx context.Context, c *Compiler, descs []*manifest.Descriptor, jobs int) ([]*Extension, error) {
	exts := make([]*Extension, len(descs))
	if jobs <= 1 {
		for i, desc := range descs {
			ext, err := c.Compile(ctx, desc)
			if err != nil {
				return nil, err
			}
			exts[i] = ext
		}
		return exts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, desc := range descs {
		g.Go(func() error {
			ext, err := c.Compile(gctx, desc)
			if err != nil {
				return err
			}
			exts[i] = ext
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return exts, nil
}
