// Package endpoint compiles declarative endpoint definitions into
// immutable Descriptors.
//
// A Group declares headers shared by its Methods; each Method declares a
// request line ("GET /users/{id}?expand"), its own headers, its positional
// parameters and its return shape. Compilation happens once, when a client
// is built, and reports every problem as a *ConfigError:
//
//	group := endpoint.Group{
//	    Name:    "users",
//	    Headers: []string{"Accept: application/json"},
//	    Methods: []endpoint.Method{{
//	        Name:    "get",
//	        Request: "GET /users/{id}",
//	        Params:  []endpoint.Param{{Name: "id"}},
//	        Returns: reflect.TypeFor[User](),
//	    }},
//	}
//	descriptors, err := endpoint.CompileGroup(group)
package endpoint

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/gryphon-zone/screech/interpolate"
	"github.com/gryphon-zone/screech/request"
)

// Group is a set of endpoints sharing headers.
type Group struct {
	Name string
	// Headers are "Name: Value" templates applied to every method unless a
	// method declares a header with the same name.
	Headers []string
	Methods []Method
}

// Method declares one endpoint.
type Method struct {
	Name string
	// Request is the request line: an HTTP verb, whitespace and a path
	// template optionally followed by a query string.
	Request string
	Headers []string
	Params  []Param
	// Returns is the declared return shape, e.g. reflect.TypeFor[User](),
	// reflect.TypeFor[*async.Future[User]]() or
	// reflect.TypeFor[optional.Value[User]](). Nil means any.
	Returns reflect.Type
}

// Param declares a positional argument.
type Param struct {
	// Name binds the argument to the "{Name}" placeholders of the
	// endpoint's templates. An unnamed argument is the request body.
	Name string
	// Expander builds the function turning the argument into the string
	// substituted for its placeholders. Nil means Default.
	Expander ExpanderFactory
}

// Descriptor is a compiled endpoint. It is read-only and safe for
// concurrent use.
type Descriptor struct {
	Name    string
	Method  string
	Path    string
	Query   []request.Pair
	Headers []request.Pair
	// BodyIndex is the position of the body argument, or -1.
	BodyIndex int
	Shape     Shape

	arity     int
	bound     []boundParam
	templates *interpolate.Cache
}

type boundParam struct {
	index    int
	name     string
	expander Expander
}

// Arity returns the number of positional arguments.
func (d *Descriptor) Arity() int {
	return d.arity
}

// Templates returns the interpolators compiled for this endpoint.
func (d *Descriptor) Templates() *interpolate.Cache {
	return d.templates
}

// ParamNames returns the bound parameter names in positional order.
func (d *Descriptor) ParamNames() []string {
	names := make([]string, 0, len(d.bound))
	for _, b := range d.bound {
		names = append(names, b.name)
	}
	return names
}

var (
	ErrNoMethod             = errors.New("no HTTP method defined")
	ErrNoPath               = errors.New("no URL path defined")
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrMalformedHeader      = errors.New("malformed header")
	ErrMultipleBodies       = errors.New("more than one body parameter")
	ErrDuplicateParam       = errors.New("duplicate parameter name")
	ErrBadExpander          = errors.New("cannot create expander")
	ErrBadTemplate          = errors.New("bad template")
)

// ConfigError is a build-time error in an endpoint declaration.
type ConfigError struct {
	Endpoint string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ArityError reports a call with the wrong number of arguments.
type ArityError struct {
	Endpoint string
	Want     int
	Got      int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("endpoint %s: expected %d arguments, got %d", e.Endpoint, e.Want, e.Got)
}
