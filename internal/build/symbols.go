package build

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"

	"github.com/goplus/extender/internal/build/assets"
)

// ErrDuplicateSymbol is returned when two entry points share a name.
var ErrDuplicateSymbol = errors.New("duplicate registration symbol")

var builtinSymbols = []string{
	"DefaultSoundDevice",
	"NullSoundDevice",
	"AudioDecoderWav",
	"CrashExt",
	"AudioDecoderStbVorbis",
	"AudioDecoderTremolo",
}

// BuiltinSymbols returns the runtime's own entry points, registered after
// every extension.
func BuiltinSymbols() []string {
	return append([]string(nil), builtinSymbols...)
}

// Symbols returns the registration list for exts: extension symbols in
// discovery order, then the built-ins.
func Symbols(exts []*Extension) ([]string, error) {
	names := make([]string, len(exts))
	for i, ext := range exts {
		names[i] = ext.Symbol
	}
	return symbolList(names)
}

func symbolList(names []string) ([]string, error) {
	all := make([]string, 0, len(names)+len(builtinSymbols))
	all = append(all, names...)
	all = append(all, builtinSymbols...)

	seen := make(map[string]bool, len(all))
	for _, sym := range all {
		if seen[sym] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym)
		}
		seen[sym] = true
	}
	return all, nil
}

// RenderRegistration executes tmpl (the embedded default when empty) with
// the given symbols and returns the generated source.
func RenderRegistration(tmpl string, symbols []string) ([]byte, error) {
	if tmpl == "" {
		tmpl = assets.Registration
	}
	t, err := template.New("registration").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parsing registration template: %w", err)
	}
	var buf bytes.Buffer
	data := struct{ Symbols []string }{Symbols: symbols}
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering registration template: %w", err)
	}
	return buf.Bytes(), nil
}
