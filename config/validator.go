package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gryphon-zone/screech/endpoint"
)

// ValidationError is one problem found in a definition file.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every problem found in a file.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks a parsed file without compiling it. A nil result means
// the file is valid; compilation may still reject bad templates.
func Validate(file *File) ValidationErrors {
	var errs ValidationErrors
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if file.BaseURL != "" {
		if u, err := url.Parse(file.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("baseUrl", "invalid base URL: %s", file.BaseURL)
		}
	}
	if file.Timeout < 0 {
		add("timeout", "timeout cannot be negative")
	}

	if len(file.Groups) == 0 {
		add("groups", "at least one group is required")
	}

	groups := make(map[string]bool)
	for i, g := range file.Groups {
		gpath := fmt.Sprintf("groups[%d]", i)
		if g.Name == "" {
			add(gpath+".name", "name is required")
		} else if groups[g.Name] {
			add(gpath+".name", "duplicate group: %s", g.Name)
		}
		groups[g.Name] = true
		validateHeaders(gpath+".headers", g.Headers, add)

		if len(g.Endpoints) == 0 {
			add(gpath+".endpoints", "at least one endpoint is required")
		}
		names := make(map[string]bool)
		for j, e := range g.Endpoints {
			epath := fmt.Sprintf("%s.endpoints[%d]", gpath, j)
			if e.Name == "" {
				add(epath+".name", "name is required")
			} else if names[e.Name] {
				add(epath+".name", "duplicate endpoint: %s", e.Name)
			}
			names[e.Name] = true

			if e.Request == "" {
				add(epath+".request", "request is required")
			} else if _, _, err := endpoint.ParseRequestLine(e.Request); err != nil {
				add(epath+".request", "%v", err)
			}
			validateHeaders(epath+".headers", e.Headers, add)
			if _, err := e.ReturnType(); err != nil {
				add(epath+".returns", "%v", err)
			}
			validateParams(epath+".params", e.Params, add)
		}
	}
	return errs
}

func validateHeaders(path string, headers []string, add func(path, format string, args ...any)) {
	for i, h := range headers {
		if _, err := endpoint.ParseHeader(h); err != nil {
			add(fmt.Sprintf("%s[%d]", path, i), "%v", err)
		}
	}
}

func validateParams(path string, params []Param, add func(path, format string, args ...any)) {
	bodies := 0
	names := make(map[string]bool)
	for i, p := range params {
		ppath := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case p.Body && p.Name != "":
			add(ppath, "a body parameter cannot be named")
		case p.Body:
			bodies++
			if bodies == 2 {
				add(ppath, "more than one body parameter")
			}
		case p.Name == "":
			add(ppath+".name", "name is required unless body is set")
		case names[p.Name]:
			add(ppath+".name", "duplicate parameter: %s", p.Name)
		}
		names[p.Name] = true
		if p.Expander != "" {
			if _, err := endpoint.ExpanderByName(p.Expander)(); err != nil {
				add(ppath+".expander", "%v", err)
			}
		}
	}
}
