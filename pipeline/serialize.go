package pipeline

import (
	"strings"

	"github.com/gryphon-zone/screech/interpolate"
	"github.com/gryphon-zone/screech/optional"
	"github.com/gryphon-zone/screech/request"
)

// Serialize interpolates req into a wire-ready request. Only the path is
// a template; the base is prefixed verbatim. body, when
// present, is labelled with the interpolated value of the first declared
// Content-Type header, or request.DefaultContentType.
func Serialize(req request.Request, body optional.Value[[]byte], templates *interpolate.Cache) (request.Serialized, error) {
	path, err := templates.Interpolate(req.Path, req.Params)
	if err != nil {
		return request.Serialized{}, err
	}
	s := request.Serialized{
		Method:  req.Method,
		URI:     request.JoinURI(req.Base, path),
		Headers: make([]request.Header, 0, len(req.Headers)),
		Query:   make([]request.Pair, 0, len(req.Query)),
	}

	contentType := ""
	for _, h := range req.Headers {
		key, err := templates.Interpolate(h.Key, req.Params)
		if err != nil {
			return request.Serialized{}, err
		}
		value, err := templates.Interpolate(h.Value.UnwrapOr(""), req.Params)
		if err != nil {
			return request.Serialized{}, err
		}
		if contentType == "" && strings.EqualFold(h.Key, "Content-Type") {
			contentType = value
		}
		s.Headers = append(s.Headers, request.Header{Key: key, Value: value})
	}

	for _, q := range req.Query {
		key, err := templates.Interpolate(q.Key, req.Params)
		if err != nil {
			return request.Serialized{}, err
		}
		v, ok := q.Value.Get()
		if !ok {
			s.Query = append(s.Query, request.Flag(key))
			continue
		}
		value, err := templates.Interpolate(v, req.Params)
		if err != nil {
			return request.Serialized{}, err
		}
		s.Query = append(s.Query, request.KV(key, value))
	}

	if data, ok := body.Get(); ok {
		if contentType == "" {
			contentType = request.DefaultContentType
		}
		s.Body = optional.Some(request.Body{Data: data, ContentType: contentType})
	}
	return s, nil
}
