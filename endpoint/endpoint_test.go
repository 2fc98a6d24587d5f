package endpoint

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/interpolate"
	"github.com/gryphon-zone/screech/optional"
	"github.com/gryphon-zone/screech/request"
)

type user struct {
	ID string
}

type color int

func (c color) String() string {
	return [...]string{"red", "green"}[c]
}

func TestParseQuery(t *testing.T) {
	got := ParseQuery("foo={foo}&bar=bar&baz=&bibbly&")
	want := []request.Pair{
		request.KV("foo", "{foo}"),
		request.KV("bar", "bar"),
		request.KV("baz", ""),
		request.Flag("bibbly"),
	}
	assert.Equal(t, want, got)

	assert.Empty(t, ParseQuery(""))
	assert.Empty(t, ParseQuery("&&=x&=&"))
	assert.Equal(t, []request.Pair{request.KV("a", "b=c")}, ParseQuery("a=b=c"))
}

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		line    string
		verb    string
		target  string
		wantErr error
	}{
		{"GET /users", "GET", "/users", nil},
		{"  POST\t/users?x=1  ", "POST", "/users?x=1", nil},
		{"", "", "", ErrNoMethod},
		{"/users", "", "", ErrNoMethod},
		{"GE?T /users", "", "", ErrNoMethod},
		{"a=b /users", "", "", ErrNoMethod},
		{"x&y /users", "", "", ErrNoMethod},
		{"GET", "", "", ErrNoPath},
		{"GET /a /b", "", "", ErrMalformedRequestLine},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			verb, target, err := ParseRequestLine(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.verb, verb)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestMergeHeaders(t *testing.T) {
	merged, err := MergeHeaders(
		[]string{"Accept: application/json", "X-Client: screech", "x-trace: group"},
		[]string{"X-TRACE: {trace}", "Content-Type : text/plain "},
	)
	require.NoError(t, err)
	assert.Equal(t, []request.Pair{
		request.KV("Accept", "application/json"),
		request.KV("X-Client", "screech"),
		request.KV("X-TRACE", "{trace}"),
		request.KV("Content-Type", "text/plain"),
	}, merged)

	_, err = MergeHeaders([]string{"no colon"}, nil)
	assert.ErrorIs(t, err, ErrMalformedHeader)
	_, err = MergeHeaders(nil, []string{"bad"})
	assert.ErrorIs(t, err, ErrMalformedHeader)

	p, err := ParseHeader("Authorization: Bearer a:b")
	require.NoError(t, err)
	assert.Equal(t, request.KV("Authorization", "Bearer a:b"), p)
}

func TestCompile(t *testing.T) {
	group := Group{
		Name:    "users",
		Headers: []string{"Accept: application/json"},
	}
	method := Method{
		Name:    "update",
		Request: "PUT /users/{id}?notify&tag={tag}",
		Headers: []string{"Content-Type: application/json"},
		Params: []Param{
			{Name: "id"},
			{},
			{Name: "tag", Expander: Upper},
		},
		Returns: reflect.TypeFor[user](),
	}

	d, err := Compile(group, method)
	require.NoError(t, err)
	assert.Equal(t, "users.update", d.Name)
	assert.Equal(t, "PUT", d.Method)
	assert.Equal(t, "/users/{id}", d.Path)
	assert.Equal(t, []request.Pair{request.Flag("notify"), request.KV("tag", "{tag}")}, d.Query)
	assert.Len(t, d.Headers, 2)
	assert.Equal(t, 1, d.BodyIndex)
	assert.Equal(t, 3, d.Arity())
	assert.Equal(t, []string{"id", "tag"}, d.ParamNames())
	assert.Equal(t, reflect.TypeFor[user](), d.Shape.Payload)

	_, ok := d.Templates().Get("/users/{id}")
	assert.True(t, ok, "path template compiled at build time")
	_, ok = d.Templates().Get("{tag}")
	assert.True(t, ok, "query value template compiled at build time")

	req, err := d.Request("http://api/", []any{42, user{ID: "x"}, "new"})
	require.NoError(t, err)
	assert.Equal(t, d.Name, req.Endpoint)
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "http://api/", req.Base)
	assert.Equal(t, "/users/{id}", req.Path)
	assert.Equal(t, "http://api/users/{id}", req.URI())
	assert.Equal(t, map[string]string{"id": "42", "tag": "NEW"}, req.Params)
	assert.Equal(t, user{ID: "x"}, req.Entity.Unwrap())

	_, err = d.Request("http://api", []any{1})
	var arity *ArityError
	require.True(t, errors.As(err, &arity))
	assert.Equal(t, 3, arity.Want)
	assert.Equal(t, 1, arity.Got)

	req, err = d.Request("http://api", []any{nil, nil, nil})
	require.NoError(t, err)
	assert.True(t, req.Entity.IsNone())
	assert.Equal(t, "", req.Params["id"])
}

func TestCompile_Errors(t *testing.T) {
	failing := func() (Expander, error) { return nil, errors.New("broken") }

	tests := []struct {
		name    string
		method  Method
		wantErr error
	}{
		{"no method", Method{Request: "/users"}, ErrNoMethod},
		{"no path", Method{Request: "GET"}, ErrNoPath},
		{"two bodies", Method{Request: "POST /x", Params: []Param{{}, {Name: "a"}, {}}}, ErrMultipleBodies},
		{"duplicate name", Method{Request: "GET /x", Params: []Param{{Name: "a"}, {Name: "a"}}}, ErrDuplicateParam},
		{"broken expander", Method{Request: "GET /{a}", Params: []Param{{Name: "a", Expander: failing}}}, ErrBadExpander},
		{"unknown expander", Method{Request: "GET /{a}", Params: []Param{{Name: "a", Expander: ExpanderByName("nope")}}}, ErrBadExpander},
		{"bad path template", Method{Request: "GET /{a"}, ErrBadTemplate},
		{"bad header template", Method{Request: "GET /", Headers: []string{"X: {a}}"}}, interpolate.ErrSyntax},
		{"bad header", Method{Request: "GET /", Headers: []string{"X"}}, ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method.Name = "m"
			_, err := Compile(Group{Name: "g"}, tt.method)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var config *ConfigError
			require.True(t, errors.As(err, &config))
			assert.Equal(t, "g.m", config.Endpoint)
		})
	}

	_, err := CompileGroup(Group{Methods: []Method{{Name: "ok", Request: "GET /"}, {Name: "bad", Request: "GET"}}})
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestExpanders(t *testing.T) {
	tests := []struct {
		name    string
		factory ExpanderFactory
		in      any
		want    string
	}{
		{"default nil", Default, nil, ""},
		{"default nil pointer", Default, (*int)(nil), ""},
		{"default int", Default, 7, "7"},
		{"default stringer", Default, color(1), "green"},
		{"lower", Lower, "MiXeD", "mixed"},
		{"upper", Upper, "MiXeD", "MIXED"},
		{"csv slice", CSV, []int{1, 2, 3}, "1,2,3"},
		{"csv scalar", CSV, "x", "x"},
		{"csv nil", CSV, nil, ""},
		{"json", JSON, map[string]int{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := tt.factory()
			require.NoError(t, err)
			got, err := e.Expand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	e, err := ExpanderByName("CSV")()
	require.NoError(t, err)
	got, _ := e.Expand([]string{"a", "b"})
	assert.Equal(t, "a,b", got)
	assert.Contains(t, ExpanderNames(), "json")

	_, err = Static(ExpanderFunc(func(any) (string, error) { return "", errors.New("x") }))()
	assert.NoError(t, err)
}

func TestUnwrapShape(t *testing.T) {
	userType := reflect.TypeFor[user]()
	tests := []struct {
		name     string
		declared reflect.Type
		async    bool
		optional bool
		payload  reflect.Type
		layers   []LayerKind
	}{
		{"plain", userType, false, false, userType, []LayerKind{}},
		{"async", reflect.TypeFor[*async.Future[user]](), true, false, userType, []LayerKind{AsyncLayer}},
		{"optional", reflect.TypeFor[optional.Value[user]](), false, true, userType, []LayerKind{OptionalLayer}},
		{"async optional", reflect.TypeFor[*async.Future[optional.Value[user]]](), true, true, userType, []LayerKind{AsyncLayer, OptionalLayer}},
		{"optional async", reflect.TypeFor[optional.Value[*async.Future[user]]](), true, true, userType, []LayerKind{OptionalLayer, AsyncLayer}},
		{
			"only one async layer stripped",
			reflect.TypeFor[*async.Future[*async.Future[user]]](),
			true, false, reflect.TypeFor[*async.Future[user]](), []LayerKind{AsyncLayer},
		},
		{"nil is any", nil, false, false, anyType, []LayerKind{}},
		{"interface payload", reflect.TypeFor[error](), false, false, reflect.TypeFor[error](), []LayerKind{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := UnwrapShape(tt.declared)
			assert.Equal(t, tt.async, s.Async)
			assert.Equal(t, tt.optional, s.Optional)
			assert.Equal(t, tt.payload, s.Payload)
			assert.Equal(t, tt.layers, s.Layers())
		})
	}
}

func TestShape_Wrap(t *testing.T) {
	s := UnwrapShape(reflect.TypeFor[optional.Value[user]]())
	v, err := s.Wrap(user{ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, optional.Some(user{ID: "1"}), v)

	v, err = s.Wrap(nil)
	require.NoError(t, err)
	assert.Equal(t, optional.None[user](), v)

	_, err = s.Wrap("wrong")
	assert.Error(t, err)

	plain := UnwrapShape(reflect.TypeFor[user]())
	v, err = plain.Wrap(user{ID: "2"})
	require.NoError(t, err)
	assert.Equal(t, user{ID: "2"}, v)
}

func TestShape_Pending(t *testing.T) {
	t.Run("future of optional", func(t *testing.T) {
		s := UnwrapShape(reflect.TypeFor[*async.Future[optional.Value[user]]]())
		declared, complete := s.Pending()
		future, ok := declared.(*async.Future[optional.Value[user]])
		require.True(t, ok)
		assert.False(t, future.IsDone())

		complete(user{ID: "3"}, nil)
		v, err := future.Get()
		require.NoError(t, err)
		assert.Equal(t, optional.Some(user{ID: "3"}), v)
	})

	t.Run("optional of future", func(t *testing.T) {
		s := UnwrapShape(reflect.TypeFor[optional.Value[*async.Future[user]]]())
		declared, complete := s.Pending()
		outer, ok := declared.(optional.Value[*async.Future[user]])
		require.True(t, ok)
		future := outer.Unwrap()

		complete(nil, errors.New("failed"))
		_, err := future.Get()
		assert.EqualError(t, err, "failed")
	})

	t.Run("sync shape panics", func(t *testing.T) {
		assert.Panics(t, func() { UnwrapShape(reflect.TypeFor[user]()).Pending() })
	})

	assert.Equal(t, "async<optional<endpoint.user>>",
		UnwrapShape(reflect.TypeFor[*async.Future[optional.Value[user]]]()).String())
}
