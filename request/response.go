package request

import (
	"strconv"
	"strings"
)

// ResponseHeaders is the status line and header block of a response.
type ResponseHeaders struct {
	Status  int
	Headers []Header
}

// Get returns the first header named key (case-insensitive).
func (h ResponseHeaders) Get(key string) (string, bool) {
	return lookup(h.Headers, key)
}

// Values returns every header named key (case-insensitive) in order.
func (h ResponseHeaders) Values(key string) []string {
	var values []string
	for _, header := range h.Headers {
		if strings.EqualFold(header.Key, key) {
			values = append(values, header.Value)
		}
	}
	return values
}

// ContentLength parses the Content-Length header. It reports false when the
// header is absent or malformed.
func (h ResponseHeaders) ContentLength() (int64, bool) {
	raw, ok := h.Get("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ContentType returns the Content-Type header or "".
func (h ResponseHeaders) ContentType() string {
	v, _ := h.Get("Content-Type")
	return v
}

// IsSuccess reports whether the status routes to the success decoder.
func (h ResponseHeaders) IsSuccess() bool {
	return h.Status < 300
}
