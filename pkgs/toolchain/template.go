package toolchain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingKey is wrapped by TemplateError when a template references a
// placeholder that has no value in the rendering context.
var ErrMissingKey = errors.New("missing placeholder value")

// Context supplies placeholder values for Render.
//
// A value is either a sequence ([]string) or a scalar (string, fmt.Stringer,
// or anything else formatted with fmt.Sprint).
type Context map[string]any

// Merge returns a new context holding the entries of c overlaid with other.
func (c Context) Merge(other Context) Context {
	out := make(Context, len(c)+len(other))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// TemplateError reports a template that cannot be rendered.
type TemplateError struct {
	Template string
	Key      string // placeholder involved, if any
	Err      error
}

func (e *TemplateError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("template %q: placeholder %q: %v", e.Template, e.Key, e.Err)
	}
	return fmt.Sprintf("template %q: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// segment is one piece of a token: either literal text or a placeholder.
type segment struct {
	text string
	key  bool
}

// parseToken splits a token into literal and placeholder segments.
func parseToken(tok string) ([]segment, error) {
	var segs []segment
	for tok != "" {
		i := strings.Index(tok, "{{")
		if i < 0 {
			segs = append(segs, segment{text: tok})
			break
		}
		if i > 0 {
			segs = append(segs, segment{text: tok[:i]})
		}
		rest := tok[i+2:]
		j := strings.Index(rest, "}}")
		if j < 0 {
			return nil, errors.New("unterminated placeholder")
		}
		name := strings.TrimSpace(rest[:j])
		if name == "" {
			return nil, errors.New("empty placeholder name")
		}
		segs = append(segs, segment{text: name, key: true})
		tok = rest[j+2:]
	}
	return segs, nil
}

// tokenize splits a template into whitespace separated tokens. Whitespace
// inside {{ }} belongs to the placeholder and does not split.
func tokenize(template string) []string {
	var (
		toks  []string
		cur   strings.Builder
		inKey bool
	)
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case !inKey && strings.HasPrefix(template[i:], "{{"):
			inKey = true
			cur.WriteString("{{")
			i++
		case inKey && strings.HasPrefix(template[i:], "}}"):
			inKey = false
			cur.WriteString("}}")
			i++
		case !inKey && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			if cur.Len() > 0 {
				toks = append(toks, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks
}

// Placeholders returns the distinct placeholder names referenced by template,
// in order of first appearance.
func Placeholders(template string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for _, tok := range tokenize(template) {
		segs, err := parseToken(tok)
		if err != nil {
			return nil, &TemplateError{Template: template, Err: err}
		}
		for _, s := range segs {
			if s.key && !seen[s.text] {
				seen[s.text] = true
				names = append(names, s.text)
			}
		}
	}
	return names, nil
}

// Render renders template against ctx into an argument vector.
//
// The template is tokenized on whitespace before substitution, so a scalar
// value containing spaces stays a single argument. A token that references a
// sequence expands into one argument per element, each carrying the token's
// surrounding text: "-I{{includes}}" with includes=[a b] yields "-Ia", "-Ib".
// An empty sequence drops the token. A token may reference at most one
// sequence.
func Render(template string, ctx Context) ([]string, error) {
	var args []string
	for _, tok := range tokenize(template) {
		segs, err := parseToken(tok)
		if err != nil {
			return nil, &TemplateError{Template: template, Err: err}
		}

		seqKey := ""
		var seq []string
		for _, s := range segs {
			if !s.key {
				continue
			}
			v, ok := ctx[s.text]
			if !ok {
				return nil, &TemplateError{Template: template, Key: s.text, Err: ErrMissingKey}
			}
			list, isList := v.([]string)
			if !isList {
				continue
			}
			if seqKey != "" && seqKey != s.text {
				return nil, &TemplateError{
					Template: template,
					Key:      s.text,
					Err:      fmt.Errorf("token %q references more than one sequence (%s)", tok, seqKey),
				}
			}
			seqKey, seq = s.text, list
		}

		if seqKey == "" {
			args = append(args, expand(segs, ctx, "", ""))
			continue
		}
		for _, elem := range seq {
			args = append(args, expand(segs, ctx, seqKey, elem))
		}
	}
	return args, nil
}

// expand joins the segments of one token, using elem for the sequence key.
func expand(segs []segment, ctx Context, seqKey, elem string) string {
	var sb strings.Builder
	for _, s := range segs {
		switch {
		case !s.key:
			sb.WriteString(s.text)
		case s.text == seqKey:
			sb.WriteString(elem)
		default:
			sb.WriteString(scalar(ctx[s.text]))
		}
	}
	return sb.String()
}

func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
