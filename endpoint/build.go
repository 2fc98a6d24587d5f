package endpoint

import (
	"fmt"
	"slices"

	"github.com/gryphon-zone/screech/optional"
	"github.com/gryphon-zone/screech/request"
)

// Params expands the bound arguments into the template parameter map.
func (d *Descriptor) Params(args []any) (map[string]string, error) {
	if len(args) != d.arity {
		return nil, &ArityError{Endpoint: d.Name, Want: d.arity, Got: len(args)}
	}
	params := make(map[string]string, len(d.bound))
	for _, b := range d.bound {
		value, err := b.expander.Expand(args[b.index])
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: expanding %q: %w", d.Name, b.name, err)
		}
		params[b.name] = value
	}
	return params, nil
}

// Body returns the body argument. A nil argument is no body.
func (d *Descriptor) Body(args []any) optional.Value[any] {
	if d.BodyIndex < 0 || d.BodyIndex >= len(args) {
		return optional.None[any]()
	}
	return optional.Some(args[d.BodyIndex])
}

// Request builds the un-interpolated request of one call against base.
func (d *Descriptor) Request(base string, args []any) (request.Request, error) {
	params, err := d.Params(args)
	if err != nil {
		return request.Request{}, err
	}
	return request.Request{
		Endpoint: d.Name,
		Method:   d.Method,
		Base:     base,
		Path:     d.Path,
		Entity:   d.Body(args),
		Params:   params,
		Headers:  slices.Clone(d.Headers),
		Query:    slices.Clone(d.Query),
	}, nil
}

