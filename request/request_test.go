package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gryphon-zone/screech/optional"
)

func TestRequest_CopyOnWrite(t *testing.T) {
	headers := make([]Pair, 1, 4)
	headers[0] = KV("Accept", "application/json")
	original := Request{
		Method:  "GET",
		Base:    "http://example.com",
		Path:    "/users/{id}",
		Params:  map[string]string{"id": "1"},
		Headers: headers,
	}

	modified := original.
		WithParam("id", "2").
		WithHeader("X-Extra", "yes").
		WithQuery(Flag("debug")).
		WithEntity("payload")

	assert.Equal(t, "1", original.Params["id"])
	assert.Len(t, original.Headers, 1)
	assert.Empty(t, original.Query)
	assert.True(t, original.Entity.IsNone())

	assert.Equal(t, "2", modified.Params["id"])
	assert.Len(t, modified.Headers, 2)
	assert.Equal(t, []Pair{Flag("debug")}, modified.Query)
	assert.Equal(t, "payload", modified.Entity.Unwrap())

	// Appending to the copy must not write into the original's spare capacity.
	other := original.WithHeader("X-Other", "1")
	assert.Equal(t, "X-Extra", modified.Headers[1].Key)
	assert.Equal(t, "X-Other", other.Headers[1].Key)
}

func TestRequest_Headers(t *testing.T) {
	r := Request{Headers: []Pair{KV("Content-Type", "text/plain"), KV("X-A", "1")}}

	v, ok := r.Header("content-type")
	require.True(t, ok)
	assert.Equal(t, "text/plain", v)

	stripped := r.WithoutHeader("CONTENT-TYPE")
	_, ok = stripped.Header("Content-Type")
	assert.False(t, ok)
	assert.Len(t, r.Headers, 2)

	assert.True(t, r.WithEntity(nil).Entity.IsNone())
}

func TestSerialized_URL(t *testing.T) {
	tests := []struct {
		name string
		s    Serialized
		want string
	}{
		{"no query", Serialized{URI: "http://h/p"}, "http://h/p"},
		{
			"ordered with flag",
			Serialized{URI: "http://h/p", Query: []Pair{KV("b", "2"), Flag("verbose"), KV("a", "")}},
			"http://h/p?b=2&verbose&a=",
		},
		{
			"escaped",
			Serialized{URI: "http://h/p", Query: []Pair{KV("q", "a b&c")}},
			"http://h/p?q=a+b%26c",
		},
		{
			"existing query",
			Serialized{URI: "http://h/p?x=1", Query: []Pair{KV("y", "2")}},
			"http://h/p?x=1&y=2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.URL())
		})
	}
}

func TestResponseHeaders(t *testing.T) {
	h := ResponseHeaders{
		Status: 200,
		Headers: []Header{
			{Key: "Content-Length", Value: " 42 "},
			{Key: "Set-Cookie", Value: "a=1"},
			{Key: "set-cookie", Value: "b=2"},
			{Key: "Content-Type", Value: "application/json"},
		},
	}

	n, ok := h.ContentLength()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("SET-COOKIE"))
	assert.Equal(t, "application/json", h.ContentType())
	assert.True(t, h.IsSuccess())

	for _, raw := range []string{"abc", "-1", ""} {
		bad := ResponseHeaders{Headers: []Header{{Key: "content-length", Value: raw}}}
		_, ok := bad.ContentLength()
		assert.False(t, ok, raw)
	}
	_, ok = ResponseHeaders{}.ContentLength()
	assert.False(t, ok)
	assert.False(t, ResponseHeaders{Status: 301}.IsSuccess())
}

func TestSerialized_Header(t *testing.T) {
	s := Serialized{
		Headers: []Header{{Key: "X-Trace", Value: "abc"}},
		Body:    optional.Some(Body{Data: []byte("x"), ContentType: DefaultContentType}),
	}
	v, ok := s.Header("x-trace")
	require.True(t, ok)
	assert.Equal(t, "abc", v)
	assert.Equal(t, DefaultContentType, s.Body.Unwrap().ContentType)
}

func TestRequest_BaseAndPath(t *testing.T) {
	r := Request{Base: "http://h/", Path: "/items/{id}"}
	assert.Equal(t, "http://h/items/{id}", r.URI())

	moved := r.WithBase("http://other{x}").WithPath("/v2/{id}")
	assert.Equal(t, "http://other{x}/v2/{id}", moved.URI())
	assert.Equal(t, "http://h/", r.Base)

	assert.Equal(t, "http://h/p", JoinURI("http://h", "/p"))
	assert.Equal(t, "http://h/p", JoinURI("http://h/", "/p"))
	assert.Equal(t, "http://hp", JoinURI("http://h", "p"))
}
