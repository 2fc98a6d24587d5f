package codec

import (
	"bytes"
	"fmt"
	"net/http"
	"reflect"
	"unicode/utf8"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// maxErrorBody bounds how much of an error body a StatusError prints.
const maxErrorBody = 256

// StatusError is the failure produced for a response routed to the error
// decoder.
type StatusError struct {
	Status  int
	Headers []request.Header
	Body    []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("unexpected status %d %s", e.Status, http.StatusText(e.Status))
	body := bytes.TrimSpace(e.Body)
	if len(body) == 0 {
		return msg
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
		for len(body) > 0 && !utf8.Valid(body) {
			body = body[:len(body)-1]
		}
		return fmt.Sprintf("%s: %s...", msg, body)
	}
	return fmt.Sprintf("%s: %s", msg, body)
}

// Header returns the first response header named key.
func (e *StatusError) Header(key string) (string, bool) {
	return request.ResponseHeaders{Status: e.Status, Headers: e.Headers}.Get(key)
}

// Status fails every response it decodes with a *StatusError.
func Status() pipeline.DecoderFactory {
	return Buffered(func(headers request.ResponseHeaders, _ reflect.Type, body []byte) (any, error) {
		return &StatusError{
			Status:  headers.Status,
			Headers: headers.Headers,
			Body:    bytes.Clone(body),
		}, nil
	})
}

// NotFoundAsEmpty treats 404 responses as an empty result, which an
// optional return shape turns into an absent value. Other statuses go to
// next.
func NotFoundAsEmpty(next pipeline.DecoderFactory) pipeline.DecoderFactory {
	empty := Discard()
	return pipeline.DecoderFactoryFunc(func(headers request.ResponseHeaders, payload reflect.Type, cb async.Callback[any]) pipeline.Decoder {
		if headers.Status == http.StatusNotFound {
			return empty.Create(headers, payload, cb)
		}
		return next.Create(headers, payload, cb)
	})
}
