package client

import (
	"reflect"

	"github.com/gryphon-zone/screech/endpoint"
)

// Method is a typed handle on one endpoint. R must be the endpoint's
// declared return type.
type Method[R any] struct {
	c *Client
	d *endpoint.Descriptor
}

// Bind returns the typed handle for the endpoint called name.
func Bind[R any](c *Client, name string) (*Method[R], error) {
	d, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	if want := reflect.TypeFor[R](); want != d.Shape.Declared {
		return nil, &TypeError{Endpoint: name, Want: want, Got: d.Shape.Declared}
	}
	return &Method[R]{c: c, d: d}, nil
}

// MustBind is Bind for package-level handles; it panics on error.
func MustBind[R any](c *Client, name string) *Method[R] {
	m, err := Bind[R](c, name)
	if err != nil {
		panic(err)
	}
	return m
}

// Descriptor returns the compiled endpoint.
func (m *Method[R]) Descriptor() *endpoint.Descriptor {
	return m.d
}

// Call invokes the endpoint. An empty result is the zero R.
func (m *Method[R]) Call(args ...any) (R, error) {
	var zero R
	v, err := m.c.invoke(m.d, args)
	if err != nil || v == nil {
		return zero, err
	}
	r, ok := v.(R)
	if !ok {
		return zero, &TypeError{Endpoint: m.d.Name, Want: reflect.TypeFor[R](), Got: reflect.TypeOf(v)}
	}
	return r, nil
}
