// Package assets holds the sources every engine link starts from.
package assets

import _ "embed"

// Main is the runtime entry translation unit.
//
//go:embed main.cpp.in
var Main []byte

// Registration is the default text/template for the generated registration
// unit. It is executed with a value whose Symbols field lists the entry
// points to call, in order.
//
//go:embed exported_symbols.cpp.tmpl
var Registration string
