package build

import (
	"context"

	"go.uber.org/zap"

	"github.com/goplus/extender/internal/build/assets"
	"github.com/goplus/extender/internal/workspace"
	"github.com/goplus/extender/pkgs/platform"
	"github.com/goplus/extender/pkgs/toolchain"
)

// DefaultBinaryName is the linked executable's name without ExeSuffix.
const DefaultBinaryName = "dmengine"

const (
	mainFile         = "main.cpp"
	registrationFile = "exported_symbols.cpp"
)

// Linker produces the engine executable from compiled extensions.
type Linker struct {
	Platform  *platform.Platform
	Workspace *workspace.Workspace
	Runner    Runner
	Logger    *zap.Logger

	RuntimeSource        []byte // defaults to assets.Main
	RegistrationTemplate string // defaults to assets.Registration
	BinaryName           string // defaults to DefaultBinaryName
}

// Link writes the runtime entry and registration sources into the workspace,
// then runs the platform link command with every extension archive appended.
// It returns the executable path.
func (l *Linker) Link(ctx context.Context, exts []*Extension, symbols []string) (string, error) {
	log := loggerOr(l.Logger)

	entry := l.RuntimeSource
	if entry == nil {
		entry = assets.Main
	}
	mainSrc, err := l.Workspace.WriteFile(entry, workspace.SrcDir, mainFile)
	if err != nil {
		return "", &Error{Stage: StageLink, Err: err}
	}

	reg, err := RenderRegistration(l.RegistrationTemplate, symbols)
	if err != nil {
		return "", &Error{Stage: StageRegister, Err: err}
	}
	regSrc, err := l.Workspace.WriteFile(reg, workspace.SrcDir, registrationFile)
	if err != nil {
		return "", &Error{Stage: StageRegister, Err: err}
	}

	name := l.BinaryName
	if name == "" {
		name = DefaultBinaryName
	}
	exe := l.Workspace.Path(workspace.BinDir, name+l.Platform.ExeSuffix)

	args, err := toolchain.Render(l.Platform.Link, l.Platform.Context().Merge(toolchain.Context{
		"src":          []string{mainSrc, regSrc},
		"main":         mainSrc,
		"registration": regSrc,
		"tgt":          exe,
		"symbols":      symbols,
		"workspace":    l.Workspace.Dir(),
	}))
	if err != nil {
		return "", &Error{Stage: StageLink, Err: err}
	}
	for _, ext := range exts {
		args = append(args, ext.Archive)
	}

	log.Info("linking", zap.String("binary", exe), zap.Int("extensions", len(exts)))
	if _, err := l.Runner.Run(ctx, args); err != nil {
		return "", &Error{Stage: StageLink, Err: err}
	}
	return exe, nil
}
