// Package codec provides request encoders and response decoder factories
// for screech clients: JSON, YAML, text and raw bytes, content-type
// negotiation, JSONPath extraction, JSON Schema validation and the status
// error decoder.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// maxPrealloc caps the buffer reserved from a Content-Length header.
const maxPrealloc = 1 << 20

// Buffered returns a factory whose decoders collect the whole body and
// convert it with finish once the transport completes.
func Buffered(finish func(headers request.ResponseHeaders, payload reflect.Type, body []byte) (any, error)) pipeline.DecoderFactory {
	return pipeline.DecoderFactoryFunc(func(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) pipeline.Decoder {
		d := &buffered{headers: headers, payload: payload, cb: cb, finish: finish}
		if n, ok := headers.ContentLength(); ok {
			d.buf.Grow(int(min(n, maxPrealloc)))
		}
		return d
	})
}

type buffered struct {
	buf     bytes.Buffer
	headers request.ResponseHeaders
	payload reflect.Type
	cb      async.Callback[any]
	finish  func(request.ResponseHeaders, reflect.Type, []byte) (any, error)
}

func (d *buffered) Content(chunk []byte) {
	d.buf.Write(chunk)
}

func (d *buffered) Complete() {
	v, err := d.finish(d.headers, d.payload, d.buf.Bytes())
	if err != nil {
		d.cb.Fail(err)
		return
	}
	d.cb.Succeed(v)
}

func (d *buffered) Abort(err error) {
	d.cb.Fail(err)
}

// DecodeError reports a body that could not be decoded into the payload
// type.
type DecodeError struct {
	Format  string
	Payload reflect.Type
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decoding %s into %v: %v", e.Format, e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func isAny(t reflect.Type) bool {
	return t == nil || (t.Kind() == reflect.Interface && t.NumMethod() == 0)
}

// unmarshalInto decodes data into a fresh value of payload. An empty body
// decodes to nil.
func unmarshalInto(format string, payload reflect.Type, data []byte, unmarshal func([]byte, any) error) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if isAny(payload) {
		var v any
		if err := unmarshal(data, &v); err != nil {
			return nil, &DecodeError{Format: format, Payload: payload, Err: err}
		}
		return v, nil
	}
	ptr := reflect.New(payload)
	if err := unmarshal(data, ptr.Interface()); err != nil {
		return nil, &DecodeError{Format: format, Payload: payload, Err: err}
	}
	return ptr.Elem().Interface(), nil
}

// JSON decodes bodies with encoding/json.
func JSON() pipeline.DecoderFactory {
	return Buffered(func(_ request.ResponseHeaders, payload reflect.Type, body []byte) (any, error) {
		return unmarshalInto("json", payload, body, json.Unmarshal)
	})
}

// YAML decodes bodies with gopkg.in/yaml.v3.
func YAML() pipeline.DecoderFactory {
	return Buffered(func(_ request.ResponseHeaders, payload reflect.Type, body []byte) (any, error) {
		return unmarshalInto("yaml", payload, body, yaml.Unmarshal)
	})
}

// convertRaw turns a body into a string or byte slice payload.
func convertRaw(format string, payload reflect.Type, body []byte) (any, error) {
	switch {
	case isAny(payload):
		if format == "bytes" {
			return bytes.Clone(body), nil
		}
		return string(body), nil
	case payload.Kind() == reflect.String:
		return reflect.ValueOf(string(body)).Convert(payload).Interface(), nil
	case payload.Kind() == reflect.Slice && payload.Elem().Kind() == reflect.Uint8:
		return reflect.ValueOf(bytes.Clone(body)).Convert(payload).Interface(), nil
	default:
		return nil, &DecodeError{Format: format, Payload: payload, Err: fmt.Errorf("unsupported payload type")}
	}
}

// Text decodes bodies as strings. String and byte slice payloads are
// supported.
func Text() pipeline.DecoderFactory {
	return Buffered(func(_ request.ResponseHeaders, payload reflect.Type, body []byte) (any, error) {
		return convertRaw("text", payload, body)
	})
}

// Bytes decodes bodies as raw bytes. String and byte slice payloads are
// supported.
func Bytes() pipeline.DecoderFactory {
	return Buffered(func(_ request.ResponseHeaders, payload reflect.Type, body []byte) (any, error) {
		return convertRaw("bytes", payload, body)
	})
}

// Discard ignores the body and yields nil.
func Discard() pipeline.DecoderFactory {
	return pipeline.DecoderFactoryFunc(func(_ request.ResponseHeaders, _ reflect.Type, cb async.Callback[any]) pipeline.Decoder {
		return discard{cb: cb}
	})
}

type discard struct {
	cb async.Callback[any]
}

func (discard) Content([]byte) {}

func (d discard) Complete() { d.cb.Succeed(nil) }

func (d discard) Abort(err error) { d.cb.Fail(err) }

// Negotiate picks a factory by the response Content-Type: JSON for json
// media types, YAML for yaml, Text for text/*. Anything else, including a
// missing header, uses fallback.
func Negotiate(fallback pipeline.DecoderFactory) pipeline.DecoderFactory {
	byJSON, byYAML, byText := JSON(), YAML(), Text()
	return pipeline.DecoderFactoryFunc(func(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) pipeline.Decoder {
		factory := fallback
		switch mediaType(headers.ContentType()) {
		case "json":
			factory = byJSON
		case "yaml":
			factory = byYAML
		case "text":
			factory = byText
		}
		return factory.Create(headers, payload, cb)
	})
}

// ByPayload decodes string payloads with Text and byte slice payloads with
// Bytes, whatever the response says. Every other payload goes to
// structured.
func ByPayload(structured pipeline.DecoderFactory) pipeline.DecoderFactory {
	text, raw := Text(), Bytes()
	return pipeline.DecoderFactoryFunc(func(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) pipeline.Decoder {
		switch {
		case isAny(payload):
		case payload.Kind() == reflect.String:
			return text.Create(headers, payload, cb)
		case payload.Kind() == reflect.Slice && payload.Elem().Kind() == reflect.Uint8:
			return raw.Create(headers, payload, cb)
		}
		return structured.Create(headers, payload, cb)
	})
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return "json"
	case strings.HasSuffix(mt, "yaml"):
		return "yaml"
	case strings.HasPrefix(mt, "text/"):
		return "text"
	}
	return ""
}

// JSONEncoder encodes entities with encoding/json. Byte slices and
// json.RawMessage are sent as is.
func JSONEncoder() pipeline.Encoder {
	return pipeline.EncoderFunc(func(entity any, cb async.Callback[[]byte]) {
		switch v := entity.(type) {
		case []byte:
			cb.Succeed(v)
			return
		case json.RawMessage:
			cb.Succeed(v)
			return
		}
		data, err := json.Marshal(entity)
		if err != nil {
			cb.Fail(fmt.Errorf("codec: encoding json: %w", err))
			return
		}
		cb.Succeed(data)
	})
}

// YAMLEncoder encodes entities with gopkg.in/yaml.v3.
func YAMLEncoder() pipeline.Encoder {
	return pipeline.EncoderFunc(func(entity any, cb async.Callback[[]byte]) {
		data, err := yaml.Marshal(entity)
		if err != nil {
			cb.Fail(fmt.Errorf("codec: encoding yaml: %w", err))
			return
		}
		cb.Succeed(data)
	})
}

// TextEncoder sends strings and byte slices as is and formats anything
// else with fmt.
func TextEncoder() pipeline.Encoder {
	return pipeline.EncoderFunc(func(entity any, cb async.Callback[[]byte]) {
		switch v := entity.(type) {
		case []byte:
			cb.Succeed(v)
		case string:
			cb.Succeed([]byte(v))
		default:
			cb.Succeed([]byte(fmt.Sprint(v)))
		}
	})
}

// EncoderByName returns the encoder registered as name: "json", "yaml" or
// "text".
func EncoderByName(name string) (pipeline.Encoder, error) {
	switch strings.ToLower(name) {
	case "json", "":
		return JSONEncoder(), nil
	case "yaml", "yml":
		return YAMLEncoder(), nil
	case "text":
		return TextEncoder(), nil
	}
	return nil, fmt.Errorf("codec: unknown encoder %q", name)
}

// DecoderByName returns the decoder factory registered as name: "json",
// "yaml", "text", "bytes", "discard" or "auto".
func DecoderByName(name string) (pipeline.DecoderFactory, error) {
	switch strings.ToLower(name) {
	case "json":
		return JSON(), nil
	case "yaml", "yml":
		return YAML(), nil
	case "text":
		return Text(), nil
	case "bytes":
		return Bytes(), nil
	case "discard":
		return Discard(), nil
	case "auto", "":
		return Negotiate(Bytes()), nil
	}
	return nil, fmt.Errorf("codec: unknown decoder %q", name)
}
