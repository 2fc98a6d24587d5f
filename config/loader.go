package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/optional"
)

// DefaultTimeout applies when a file declares no timeout.
const DefaultTimeout = 30 * time.Second

// File is the top-level structure of a definition file.
type File struct {
	// BaseURL is prepended to every endpoint path.
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`

	// Timeout bounds each call, response body included.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Headers are sent with every call unless the endpoint declares them.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	Groups []Group `json:"groups" yaml:"groups"`
}

// Group declares endpoints sharing header templates.
type Group struct {
	Name      string     `json:"name" yaml:"name"`
	Headers   []string   `json:"headers,omitempty" yaml:"headers,omitempty"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// Endpoint declares one call.
type Endpoint struct {
	Name string `json:"name" yaml:"name"`

	// Request is the request line, e.g. "GET /users/{id}?verbose".
	Request string   `json:"request" yaml:"request"`
	Headers []string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params  []Param  `json:"params,omitempty" yaml:"params,omitempty"`

	// Returns is the payload format: json, yaml, text or bytes.
	Returns  string `json:"returns,omitempty" yaml:"returns,omitempty"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Async    bool   `json:"async,omitempty" yaml:"async,omitempty"`
}

// Param declares a positional argument. Exactly one of Name and Body is
// set.
type Param struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Expander string `json:"expander,omitempty" yaml:"expander,omitempty"`
	Body     bool   `json:"body,omitempty" yaml:"body,omitempty"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// GetDuration returns the duration, or fallback when unset.
func (d Duration) GetDuration(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if json.Unmarshal(b, &n) != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return d.set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// ParseDuration parses a Go duration string or a bare number of seconds.
// An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// Load reads and parses the definition file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes a definition file. The format follows the extension of
// path: .json is JSON, anything else is YAML.
func Parse(data []byte, path string) (*File, error) {
	var file File
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON definitions: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML definitions: %w", err)
		}
	}
	ApplyDefaults(&file)
	return &file, nil
}

// ApplyDefaults fills unset fields: the timeout and every endpoint's
// return format.
func ApplyDefaults(file *File) {
	if file.Timeout == 0 {
		file.Timeout = Duration(DefaultTimeout)
	}
	for i := range file.Groups {
		for j := range file.Groups[i].Endpoints {
			e := &file.Groups[i].Endpoints[j]
			if e.Returns == "" {
				e.Returns = "json"
			}
		}
	}
}

// returnTypes maps a payload format to its payload and each wrapped shape.
var returnTypes = map[string][4]reflect.Type{
	// plain, optional, async, async optional
	"json":  shapes[any](),
	"yaml":  shapes[any](),
	"text":  shapes[string](),
	"bytes": shapes[[]byte](),
}

func shapes[T any]() [4]reflect.Type {
	return [4]reflect.Type{
		reflect.TypeFor[T](),
		reflect.TypeFor[optional.Value[T]](),
		reflect.TypeFor[*async.Future[T]](),
		reflect.TypeFor[*async.Future[optional.Value[T]]](),
	}
}

// ReturnType returns the declared return type of e.
func (e Endpoint) ReturnType() (reflect.Type, error) {
	types, ok := returnTypes[strings.ToLower(e.Returns)]
	if !ok {
		return nil, fmt.Errorf("unknown return format %q", e.Returns)
	}
	i := 0
	if e.Optional {
		i |= 1
	}
	if e.Async {
		i |= 2
	}
	return types[i], nil
}

// EndpointGroups converts the file into endpoint groups ready for compilation.
func (f *File) EndpointGroups() ([]endpoint.Group, error) {
	groups := make([]endpoint.Group, 0, len(f.Groups))
	for _, g := range f.Groups {
		group := endpoint.Group{Name: g.Name, Headers: g.Headers}
		for _, e := range g.Endpoints {
			returns, err := e.ReturnType()
			if err != nil {
				return nil, fmt.Errorf("endpoint %s: %w", endpoint.QualifiedName(g.Name, e.Name), err)
			}
			params := make([]endpoint.Param, len(e.Params))
			for i, p := range e.Params {
				if p.Body {
					continue
				}
				params[i].Name = p.Name
				if p.Expander != "" {
					params[i].Expander = endpoint.ExpanderByName(p.Expander)
				}
			}
			group.Methods = append(group.Methods, endpoint.Method{
				Name:    e.Name,
				Request: e.Request,
				Headers: e.Headers,
				Params:  params,
				Returns: returns,
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Endpoint returns the declaration of the endpoint with the qualified
// name.
func (f *File) Endpoint(name string) (Endpoint, bool) {
	for _, g := range f.Groups {
		for _, e := range g.Endpoints {
			if endpoint.QualifiedName(g.Name, e.Name) == name {
				return e, true
			}
		}
	}
	return Endpoint{}, false
}
