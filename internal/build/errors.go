package build

import (
	"fmt"
	"strings"
)

// Stage identifies a step of a build session.
type Stage int

const (
	StageSetup    Stage = iota // workspace creation
	StageScan                  // manifest discovery
	StageCompile               // per-extension compile and archive
	StageRegister              // registration source generation
	StageLink                  // final link
)

func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "setup"
	case StageScan:
		return "scan"
	case StageCompile:
		return "compile"
	case StageRegister:
		return "register"
	case StageLink:
		return "link"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Error is the single failure value a build returns. It records where the
// failure happened; the cause is reachable through errors.As, for example a
// *toolchain.ExitError carrying the compiler output.
type Error struct {
	Stage     Stage
	Extension string // extension being processed, if any
	File      string // source file being compiled, if any

	// Workspace is the kept scratch directory when the build was asked to
	// preserve it on failure.
	Workspace string

	Err error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Stage.String())
	if e.Extension != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Extension)
	}
	if e.File != "" {
		sb.WriteString(" (")
		sb.WriteString(e.File)
		sb.WriteString(")")
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}
