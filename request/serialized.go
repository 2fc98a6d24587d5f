package request

import (
	"net/url"
	"strings"

	"github.com/gryphon-zone/screech/optional"
)

// DefaultContentType is used for bodies whose request declares no
// Content-Type header.
const DefaultContentType = "application/octet-stream"

// Header is an interpolated header.
type Header struct {
	Key   string
	Value string
}

// Body is an encoded request entity.
type Body struct {
	Data        []byte
	ContentType string
}

// Serialized is a fully interpolated, wire-ready request. It belongs to
// the transport for the duration of one call.
type Serialized struct {
	Method  string
	URI     string
	Body    optional.Value[Body]
	Headers []Header
	Query   []Pair
}

// URL renders URI with the query appended in declared order. Keys and
// values are query-escaped; value-less pairs render as bare keys.
func (s Serialized) URL() string {
	if len(s.Query) == 0 {
		return s.URI
	}
	var b strings.Builder
	b.WriteString(s.URI)
	sep := byte('?')
	if strings.Contains(s.URI, "?") {
		sep = '&'
	}
	for _, p := range s.Query {
		b.WriteByte(sep)
		sep = '&'
		b.WriteString(url.QueryEscape(p.Key))
		if v, ok := p.Value.Get(); ok {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Header returns the first header named key (case-insensitive).
func (s Serialized) Header(key string) (string, bool) {
	return lookup(s.Headers, key)
}

func lookup(headers []Header, key string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}
