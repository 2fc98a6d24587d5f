package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// ValidationErrors lists every schema violation found in a document.
type ValidationErrors []error

func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled JSON Schema.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles the schema document src. name identifies it in
// error messages.
func CompileSchema(name string, src []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(src)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// LoadSchema compiles the schema stored at path.
func LoadSchema(path string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return CompileSchema(path, src)
}

// Validate checks doc against the schema.
func (s *Schema) Validate(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	err := s.schema.Validate(v)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return extractValidationErrors(verr)
	}
	return ValidationErrors{err}
}

func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errs ValidationErrors
	if err.Message != "" {
		errs = append(errs, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		errs = append(errs, extractValidationErrors(cause)...)
	}
	return errs
}

// Validating checks each body against schema before handing it to next.
// A body that fails validation fails the call with ValidationErrors and
// never reaches next.
func Validating(schema *Schema, next pipeline.DecoderFactory) pipeline.DecoderFactory {
	return pipeline.DecoderFactoryFunc(func(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) pipeline.Decoder {
		return &validating{schema: schema, inner: next.Create(headers, payload, cb), cb: cb}
	})
}

type validating struct {
	buf    bytes.Buffer
	schema *Schema
	inner  pipeline.Decoder
	cb     async.Callback[any]
}

func (d *validating) Content(chunk []byte) {
	d.buf.Write(chunk)
}

func (d *validating) Complete() {
	if err := d.schema.Validate(d.buf.Bytes()); err != nil {
		d.cb.Fail(err)
		return
	}
	d.inner.Content(d.buf.Bytes())
	d.inner.Complete()
}

func (d *validating) Abort(err error) {
	d.inner.Abort(err)
}
