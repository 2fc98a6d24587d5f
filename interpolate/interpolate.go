// Package interpolate compiles "{name}" templates into token lists and
// expands them against a parameter map.
//
// A compiled Interpolator is immutable and safe for concurrent use.
//
//	in, err := interpolate.Compile("/users/{id}/posts/{post}")
//	if err != nil {
//	    return err
//	}
//	path, err := in.Interpolate(map[string]string{"id": "7", "post": "42"})
package interpolate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is wrapped by every SyntaxError.
var ErrSyntax = errors.New("interpolate: malformed template")

// SyntaxError reports a template that cannot be compiled.
type SyntaxError struct {
	Template string
	Offset   int
	Reason   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("interpolate: %s at offset %d in template %q", e.Reason, e.Offset, e.Template)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// MissingParameterError reports a template parameter absent from the map
// passed to Interpolate.
type MissingParameterError struct {
	Template string
	Key      string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("interpolate: no value for parameter %q in template %q", e.Key, e.Template)
}

// token is either a constant segment or a parameter reference.
type token struct {
	text  string
	param bool
}

// Interpolator is a compiled template.
type Interpolator struct {
	template string
	tokens   []token
	// size is the length of all constant segments, used to presize output.
	size int
}

// Compile tokenizes template. A '{' inside a parameter span, a '}' outside
// one, or a span left open at the end of the template is an error.
func Compile(template string) (*Interpolator, error) {
	in := &Interpolator{template: template}
	if !strings.ContainsAny(template, "{}") {
		return in, nil
	}

	var (
		buf    strings.Builder
		inSpan bool
		opened int
	)
	for i := 0; i < len(template); i++ {
		switch c := template[i]; c {
		case '{':
			if inSpan {
				return nil, &SyntaxError{Template: template, Offset: i, Reason: "nested '{'"}
			}
			in.flushConstant(&buf)
			inSpan, opened = true, i
		case '}':
			if !inSpan {
				return nil, &SyntaxError{Template: template, Offset: i, Reason: "unmatched '}'"}
			}
			in.tokens = append(in.tokens, token{text: buf.String(), param: true})
			buf.Reset()
			inSpan = false
		default:
			buf.WriteByte(c)
		}
	}
	if inSpan {
		return nil, &SyntaxError{Template: template, Offset: opened, Reason: "unterminated '{'"}
	}
	in.flushConstant(&buf)
	return in, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(template string) *Interpolator {
	in, err := Compile(template)
	if err != nil {
		panic(err)
	}
	return in
}

func (in *Interpolator) flushConstant(buf *strings.Builder) {
	if buf.Len() == 0 {
		return
	}
	in.tokens = append(in.tokens, token{text: buf.String()})
	in.size += buf.Len()
	buf.Reset()
}

// Template returns the source template.
func (in *Interpolator) Template() string {
	return in.template
}

// Constant reports whether the template contains no parameters.
func (in *Interpolator) Constant() bool {
	return in.tokens == nil
}

// Params returns the referenced parameter names in template order,
// including repeats.
func (in *Interpolator) Params() []string {
	var names []string
	for _, t := range in.tokens {
		if t.param {
			names = append(names, t.text)
		}
	}
	return names
}

// Interpolate substitutes every parameter with its value from params in a
// single pass. A missing key is a *MissingParameterError.
func (in *Interpolator) Interpolate(params map[string]string) (string, error) {
	if in.tokens == nil {
		return in.template, nil
	}
	var out strings.Builder
	out.Grow(in.size + 16*len(in.tokens))
	for _, t := range in.tokens {
		if !t.param {
			out.WriteString(t.text)
			continue
		}
		value, ok := params[t.text]
		if !ok {
			return "", &MissingParameterError{Template: in.template, Key: t.text}
		}
		out.WriteString(value)
	}
	return out.String(), nil
}
