// Package request contains the per-call values that flow through the
// pipeline: the un-interpolated Request, the wire-ready Serialized request
// and the ResponseHeaders reported by a transport.
package request

import (
	"maps"
	"slices"
	"strings"

	"github.com/gryphon-zone/screech/optional"
)

// Pair is a key/value template. Query pairs may carry no value, which
// renders as a bare flag (e.g. "?verbose").
type Pair struct {
	Key   string
	Value optional.Value[string]
}

// KV builds a Pair with a value.
func KV(key, value string) Pair {
	return Pair{Key: key, Value: optional.Some(value)}
}

// Flag builds a Pair without a value.
func Flag(key string) Pair {
	return Pair{Key: key}
}

// Request is a call's request before interpolation. It is a value: the
// With* methods return modified copies and never touch the receiver's
// slices or maps, so interceptors can hand a changed Request downstream
// without affecting other stages.
type Request struct {
	// Endpoint is the qualified name of the endpoint being called.
	Endpoint string
	Method   string
	// Base is the target URL prefix. It is used verbatim.
	Base string
	// Path is the path template appended to Base.
	Path    string
	Entity  optional.Value[any]
	Params  map[string]string
	Headers []Pair
	Query   []Pair
}

// Param returns a template parameter value.
func (r Request) Param(name string) (string, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// WithParam returns a copy of r with parameter name set to value.
func (r Request) WithParam(name, value string) Request {
	params := make(map[string]string, len(r.Params)+1)
	maps.Copy(params, r.Params)
	params[name] = value
	r.Params = params
	return r
}

// WithHeader returns a copy of r with a header template appended.
func (r Request) WithHeader(key, value string) Request {
	r.Headers = append(slices.Clip(r.Headers), KV(key, value))
	return r
}

// WithoutHeader returns a copy of r without headers named key
// (case-insensitive).
func (r Request) WithoutHeader(key string) Request {
	r.Headers = slices.DeleteFunc(slices.Clone(r.Headers), func(p Pair) bool {
		return strings.EqualFold(p.Key, key)
	})
	return r
}

// WithQuery returns a copy of r with a query template appended.
func (r Request) WithQuery(pair Pair) Request {
	r.Query = append(slices.Clip(r.Query), pair)
	return r
}

// WithEntity returns a copy of r carrying entity. A nil entity removes it.
func (r Request) WithEntity(entity any) Request {
	r.Entity = optional.Some(entity)
	return r
}

// WithBase returns a copy of r sent to base.
func (r Request) WithBase(base string) Request {
	r.Base = base
	return r
}

// WithPath returns a copy of r with a different path template.
func (r Request) WithPath(path string) Request {
	r.Path = path
	return r
}

// URI is Base joined with the un-interpolated Path.
func (r Request) URI() string {
	return JoinURI(r.Base, r.Path)
}

// JoinURI appends path to base, collapsing a doubled slash at the seam.
func JoinURI(base, path string) string {
	if strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/") {
		return base + path[1:]
	}
	return base + path
}

// Header returns the first header template named key (case-insensitive).
func (r Request) Header(key string) (string, bool) {
	for _, p := range r.Headers {
		if strings.EqualFold(p.Key, key) {
			return p.Value.UnwrapOr(""), true
		}
	}
	return "", false
}
