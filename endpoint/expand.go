package endpoint

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Expander turns a call argument into the string substituted for its
// placeholders.
type Expander interface {
	Expand(value any) (string, error)
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(value any) (string, error)

// Expand implements Expander.
func (f ExpanderFunc) Expand(value any) (string, error) {
	return f(value)
}

// ExpanderFactory builds an Expander. It runs once per parameter at
// compile time; an error is a configuration error.
type ExpanderFactory func() (Expander, error)

// Static returns a factory producing expander.
func Static(expander Expander) ExpanderFactory {
	return func() (Expander, error) {
		return expander, nil
	}
}

// stringify renders nil as the empty string and everything else with fmt,
// which honours fmt.Stringer.
func stringify(value any) string {
	if value == nil {
		return ""
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return ""
	}
	return fmt.Sprint(value)
}

// Default expands nil to "" and any other value with fmt.Sprint.
func Default() (Expander, error) {
	return ExpanderFunc(func(value any) (string, error) {
		return stringify(value), nil
	}), nil
}

// Lower is Default followed by strings.ToLower.
func Lower() (Expander, error) {
	return ExpanderFunc(func(value any) (string, error) {
		return strings.ToLower(stringify(value)), nil
	}), nil
}

// Upper is Default followed by strings.ToUpper.
func Upper() (Expander, error) {
	return ExpanderFunc(func(value any) (string, error) {
		return strings.ToUpper(stringify(value)), nil
	}), nil
}

// CSV joins slice and array elements with commas; other values expand as
// with Default.
func CSV() (Expander, error) {
	return ExpanderFunc(func(value any) (string, error) {
		rv := reflect.ValueOf(value)
		if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return stringify(value), nil
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ","), nil
	}), nil
}

// JSON expands the argument to its JSON encoding.
func JSON() (Expander, error) {
	return ExpanderFunc(func(value any) (string, error) {
		data, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}), nil
}

var expanders = map[string]ExpanderFactory{
	"":        Default,
	"default": Default,
	"lower":   Lower,
	"upper":   Upper,
	"csv":     CSV,
	"json":    JSON,
}

// ExpanderByName returns the stock factory registered under name. Unknown
// names yield a factory that fails, so the error surfaces when the
// endpoint is compiled.
func ExpanderByName(name string) ExpanderFactory {
	if factory, ok := expanders[strings.ToLower(name)]; ok {
		return factory
	}
	return func() (Expander, error) {
		return nil, fmt.Errorf("unknown expander %q (known: %s)", name, strings.Join(ExpanderNames(), ", "))
	}
}

// ExpanderNames lists the registered expander names.
func ExpanderNames() []string {
	names := make([]string, 0, len(expanders))
	for name := range expanders {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
