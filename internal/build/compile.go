package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/goplus/extender/internal/workspace"
	"github.com/goplus/extender/pkgs/manifest"
	"github.com/goplus/extender/pkgs/platform"
	"github.com/goplus/extender/pkgs/toolchain"
)

// Runner executes one toolchain command and returns its combined output.
// *toolchain.Runner is the standard implementation.
type Runner interface {
	Run(ctx context.Context, args []string) (string, error)
}

var _ Runner = (*toolchain.Runner)(nil)

// Extension is a compiled extension ready to be linked.
type Extension struct {
	Descriptor *manifest.Descriptor
	Objects    []string // object files, in compile order
	Archive    string   // static library holding Objects
	Symbol     string   // registration entry point
}

// Compiler turns one extension's sources into a static archive.
type Compiler struct {
	Platform  *platform.Platform
	Workspace *workspace.Workspace
	Runner    Runner
	Logger    *zap.Logger
}

// Compile compiles every file under desc.SourceDir and archives the objects.
// An extension without sources still gets an (empty) archive. On failure no
// archive is left behind.
func (c *Compiler) Compile(ctx context.Context, desc *manifest.Descriptor) (*Extension, error) {
	log := loggerOr(c.Logger).With(zap.String("extension", desc.Name))
	fail := func(file string, err error) (*Extension, error) {
		return nil, &Error{Stage: StageCompile, Extension: desc.Name, File: file, Err: err}
	}

	sources, err := SourceFiles(desc.SourceDir)
	if err != nil {
		return fail("", err)
	}
	objDir, err := c.Workspace.Mkdir(workspace.ObjDir, desc.Name)
	if err != nil {
		return fail("", err)
	}

	vars := c.Platform.Context()
	includes := c.includes(desc)
	objs := make([]string, 0, len(sources))
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return fail(src, err)
		}
		obj := filepath.Join(objDir, fmt.Sprintf("%s_%d%s", filepath.Base(src), i, c.Platform.ObjectSuffix))
		args, err := toolchain.Render(c.Platform.Compile, vars.Merge(toolchain.Context{
			"src":      src,
			"tgt":      obj,
			"includes": includes,
			"name":     desc.Name,
		}))
		if err != nil {
			return fail(src, err)
		}
		log.Info("compiling", zap.String("file", relOrSelf(desc.RootDir, src)))
		if _, err := c.Runner.Run(ctx, args); err != nil {
			return fail(src, err)
		}
		objs = append(objs, obj)
	}

	if err := ctx.Err(); err != nil {
		return fail("", err)
	}
	lib := c.Workspace.Path(workspace.LibDir, c.Platform.ArchivePrefix+desc.Name+c.Platform.ArchiveSuffix)
	args, err := toolchain.Render(c.Platform.Archive, vars.Merge(toolchain.Context{
		"tgt":  lib,
		"objs": objs,
		"name": desc.Name,
	}))
	if err != nil {
		return fail("", err)
	}
	log.Info("archiving", zap.Int("objects", len(objs)))
	if _, err := c.Runner.Run(ctx, args); err != nil {
		os.Remove(lib)
		return fail("", err)
	}

	return &Extension{
		Descriptor: desc,
		Objects:    objs,
		Archive:    lib,
		Symbol:     desc.Name,
	}, nil
}

// includes returns the platform include dirs, the extension's own include
// directory if it has one, and the workspace include dir.
func (c *Compiler) includes(desc *manifest.Descriptor) []string {
	dirs := make([]string, 0, len(c.Platform.Includes)+2)
	dirs = append(dirs, c.Platform.Includes...)
	if info, err := os.Stat(filepath.Join(desc.RootDir, "include")); err == nil && info.IsDir() {
		dirs = append(dirs, filepath.Join(desc.RootDir, "include"))
	}
	return append(dirs, c.Workspace.Path(workspace.IncludeDir))
}

// SourceFiles returns every regular file under dir in lexical order. A dir
// that is missing or not a directory has no sources.
func SourceFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) || (err == nil && !info.IsDir()) {
		return nil, nil
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.Type().IsRegular():
			files = append(files, path)
		case d.Type()&fs.ModeSymlink != 0:
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				files = append(files, path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	return files, nil
}

func relOrSelf(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}

func loggerOr(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
