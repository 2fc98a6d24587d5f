package endpoint

import (
	"fmt"
	"strings"

	"github.com/gryphon-zone/screech/interpolate"
	"github.com/gryphon-zone/screech/optional"
	"github.com/gryphon-zone/screech/request"
)

// CompileGroup compiles every method of group, stopping at the first error.
func CompileGroup(group Group) ([]*Descriptor, error) {
	descriptors := make([]*Descriptor, 0, len(group.Methods))
	for _, method := range group.Methods {
		d, err := Compile(group, method)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// QualifiedName returns "group.method", or the method name alone for an
// unnamed group.
func QualifiedName(group, method string) string {
	if group == "" {
		return method
	}
	return group + "." + method
}

// Compile builds the Descriptor of one method of group.
func Compile(group Group, method Method) (*Descriptor, error) {
	name := QualifiedName(group.Name, method.Name)
	fail := func(err error) (*Descriptor, error) {
		return nil, &ConfigError{Endpoint: name, Err: err}
	}

	verb, target, err := ParseRequestLine(method.Request)
	if err != nil {
		return fail(err)
	}
	path, rawQuery, _ := strings.Cut(target, "?")

	headers, err := MergeHeaders(group.Headers, method.Headers)
	if err != nil {
		return fail(err)
	}

	bound, bodyIndex, err := bindParams(method.Params)
	if err != nil {
		return fail(err)
	}

	d := &Descriptor{
		Name:      name,
		Method:    verb,
		Path:      path,
		Query:     ParseQuery(rawQuery),
		Headers:   headers,
		BodyIndex: bodyIndex,
		Shape:     UnwrapShape(method.Returns),
		arity:     len(method.Params),
		bound:     bound,
	}

	templates := interpolate.NewCacheBuilder()
	add := func(template string) error {
		if _, err := templates.Add(template); err != nil {
			return fmt.Errorf("%w: %w", ErrBadTemplate, err)
		}
		return nil
	}
	if err := add(path); err != nil {
		return fail(err)
	}
	for _, pairs := range [][]request.Pair{d.Query, d.Headers} {
		for _, p := range pairs {
			if err := add(p.Key); err != nil {
				return fail(err)
			}
			if v, ok := p.Value.Get(); ok {
				if err := add(v); err != nil {
					return fail(err)
				}
			}
		}
	}
	d.templates = templates.Build()
	return d, nil
}

// ParseRequestLine splits a request line into verb and target.
func ParseRequestLine(line string) (verb, target string, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.ContainsAny(fields[0], "/?=&") {
		return "", "", ErrNoMethod
	}
	switch len(fields) {
	case 1:
		return "", "", ErrNoPath
	case 2:
		return fields[0], fields[1], nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrMalformedRequestLine, line)
	}
}

// ParseQuery splits a raw query string into ordered pairs. Segments without
// '=' become value-less flags; segments with an empty key and empty
// segments are dropped.
func ParseQuery(raw string) []request.Pair {
	var pairs []request.Pair
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		switch {
		case key == "":
			continue
		case !found:
			pairs = append(pairs, request.Pair{Key: key})
		default:
			pairs = append(pairs, request.Pair{Key: key, Value: optional.Some(value)})
		}
	}
	return pairs
}

// ParseHeader splits a "Name: Value" declaration on its first colon.
func ParseHeader(declaration string) (request.Pair, error) {
	key, value, found := strings.Cut(declaration, ":")
	if !found {
		return request.Pair{}, fmt.Errorf("%w: %q", ErrMalformedHeader, declaration)
	}
	return request.KV(strings.TrimSpace(key), strings.TrimSpace(value)), nil
}

// MergeHeaders parses group and method header declarations. Group headers
// whose name (case-insensitive) a method header redeclares are dropped; the
// remaining group headers come first in their declared order, followed by
// the method headers.
func MergeHeaders(group, method []string) ([]request.Pair, error) {
	own := make([]request.Pair, 0, len(method))
	shadowed := make(map[string]bool, len(method))
	for _, declaration := range method {
		p, err := ParseHeader(declaration)
		if err != nil {
			return nil, err
		}
		own = append(own, p)
		shadowed[strings.ToLower(p.Key)] = true
	}

	merged := make([]request.Pair, 0, len(group)+len(own))
	for _, declaration := range group {
		p, err := ParseHeader(declaration)
		if err != nil {
			return nil, err
		}
		if !shadowed[strings.ToLower(p.Key)] {
			merged = append(merged, p)
		}
	}
	return append(merged, own...), nil
}

func bindParams(params []Param) ([]boundParam, int, error) {
	bodyIndex := -1
	seen := make(map[string]bool, len(params))
	var bound []boundParam
	for i, p := range params {
		if p.Name == "" {
			if bodyIndex >= 0 {
				return nil, -1, fmt.Errorf("%w: arguments %d and %d", ErrMultipleBodies, bodyIndex, i)
			}
			bodyIndex = i
			continue
		}
		if seen[p.Name] {
			return nil, -1, fmt.Errorf("%w: %q", ErrDuplicateParam, p.Name)
		}
		seen[p.Name] = true

		factory := p.Expander
		if factory == nil {
			factory = Default
		}
		expander, err := factory()
		if err != nil {
			return nil, -1, fmt.Errorf("%w for %q: %w", ErrBadExpander, p.Name, err)
		}
		if expander == nil {
			return nil, -1, fmt.Errorf("%w for %q: factory returned nil", ErrBadExpander, p.Name)
		}
		bound = append(bound, boundParam{index: i, name: p.Name, expander: expander})
	}
	return bound, bodyIndex, nil
}
