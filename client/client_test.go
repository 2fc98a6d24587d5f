package client

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/codec"
	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/interceptor"
	"github.com/gryphon-zone/screech/optional"
	"github.com/gryphon-zone/screech/pipeline"
)

var quiet = &log.Logger{Handler: discard.Default, Level: log.DebugLevel}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func users() endpoint.Group {
	return endpoint.Group{
		Name:    "users",
		Headers: []string{"Accept: application/json"},
		Methods: []endpoint.Method{
			{
				Name:    "get",
				Request: "GET /users/{id}",
				Params:  []endpoint.Param{{Name: "id"}},
				Returns: reflect.TypeFor[user](),
			},
			{
				Name:    "find",
				Request: "GET /users/{id}",
				Params:  []endpoint.Param{{Name: "id"}},
				Returns: reflect.TypeFor[optional.Value[user]](),
			},
			{
				Name:    "fetch",
				Request: "GET /users/{id}?slow={slow}",
				Params:  []endpoint.Param{{Name: "id"}, {Name: "slow"}},
				Returns: reflect.TypeFor[*async.Future[user]](),
			},
			{
				Name:    "create",
				Request: "POST /users",
				Headers: []string{"Content-Type: application/json"},
				Params:  []endpoint.Param{{}},
				Returns: reflect.TypeFor[user](),
			},
		},
	}
}

// server stores users in memory; "slow" delays the answer by the given
// duration.
func server(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	store := map[string]user{"1": {ID: "1", Name: "Ada"}}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if d, err := time.ParseDuration(r.URL.Query().Get("slow")); err == nil {
			time.Sleep(d)
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/users":
			var u user
			if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			u.ID = "2"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(u)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/users/"):
			u, ok := store[strings.TrimPrefix(r.URL.Path, "/users/")]
			if !ok {
				http.Error(w, "no such user", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(u)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := New([]endpoint.Group{users()}, append([]Option{WithBaseURL(baseURL), WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New([]endpoint.Group{users()})
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = New([]endpoint.Group{users(), users()}, WithBaseURL("http://x"))
	assert.ErrorIs(t, err, ErrDuplicateEndpoint)

	bad := endpoint.Group{Name: "bad", Methods: []endpoint.Method{{Name: "m", Request: "/nothing"}}}
	_, err = New([]endpoint.Group{bad}, WithBaseURL("http://x"))
	var ce *endpoint.ConfigError
	assert.ErrorAs(t, err, &ce)

	c := newClient(t, "http://x")
	assert.Equal(t, []string{"users.create", "users.fetch", "users.find", "users.get"}, c.Endpoints())
	d, ok := c.Descriptor("users.get")
	require.True(t, ok)
	assert.Equal(t, "GET", d.Method)
}

func TestInvoke(t *testing.T) {
	srv, _ := server(t)
	c := newClient(t, srv.URL)

	v, err := c.Invoke("users.get", "1")
	require.NoError(t, err)
	assert.Equal(t, user{ID: "1", Name: "Ada"}, v)

	v, err = c.Invoke("users.create", user{Name: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, user{ID: "2", Name: "Grace"}, v)

	_, err = c.Invoke("users.nope")
	assert.ErrorIs(t, err, ErrUnknownEndpoint)

	_, err = c.Invoke("users.get")
	var ae *endpoint.ArityError
	assert.ErrorAs(t, err, &ae)
}

func TestInvoke_StatusError(t *testing.T) {
	srv, _ := server(t)
	c := newClient(t, srv.URL)

	_, err := c.Invoke("users.get", "42")
	var se *codec.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Contains(t, se.Error(), "no such user")
}

func TestOptionalShape(t *testing.T) {
	srv, _ := server(t)
	c := newClient(t, srv.URL, WithErrorDecoder(codec.NotFoundAsEmpty(codec.Status())))

	find, err := Bind[optional.Value[user]](c, "users.find")
	require.NoError(t, err)

	got, err := find.Call("1")
	require.NoError(t, err)
	u, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, "Ada", u.Name)

	got, err = find.Call("42")
	require.NoError(t, err)
	assert.True(t, got.IsNone())
}

func TestAsyncShape(t *testing.T) {
	srv, hits := server(t)
	c := newClient(t, srv.URL)

	fetch, err := Bind[*async.Future[user]](c, "users.fetch")
	require.NoError(t, err)

	start := time.Now()
	future, err := fetch.Call("1", "100ms")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "call returned before the response")
	assert.False(t, future.IsDone())

	u, err := future.Get()
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, int32(1), hits.Load())

	failed, err := fetch.Call("42", "0s")
	require.NoError(t, err)
	_, err = failed.Get()
	var se *codec.StatusError
	assert.ErrorAs(t, err, &se)
}

func TestBind_TypeMismatch(t *testing.T) {
	c := newClient(t, "http://x")

	_, err := Bind[string](c, "users.get")
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, reflect.TypeFor[user](), te.Got)

	_, err = Bind[user](c, "users.missing")
	assert.ErrorIs(t, err, ErrUnknownEndpoint)

	assert.Panics(t, func() { MustBind[int](c, "users.get") })
	assert.NotPanics(t, func() { MustBind[user](c, "users.get") })
}

func TestInterceptors(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Header.Get(interceptor.RequestIDHeader), r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id":"7","name":"Lin"}`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, WithInterceptors(
		interceptor.RequestID(""),
		interceptor.Header("Authorization", "Bearer {id}"),
	))
	v, err := c.Invoke("users.get", "7")
	require.NoError(t, err)
	assert.Equal(t, "Lin", v.(user).Name)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.Equal(t, "Bearer 7", seen[1])
}

func TestStaticInterceptorSkipsTransport(t *testing.T) {
	srv, hits := server(t)
	c := newClient(t, srv.URL, WithInterceptors(interceptor.Static(user{ID: "0", Name: "stub"})))

	v, err := c.Invoke("users.get", "1")
	require.NoError(t, err)
	assert.Equal(t, "stub", v.(user).Name)
	assert.Zero(t, hits.Load())
}

func TestExchange(t *testing.T) {
	srv, _ := server(t)
	c := newClient(t, srv.URL)

	r, err := c.Exchange("users.get", "1")
	require.NoError(t, err)
	require.NotNil(t, r.Headers)
	assert.Equal(t, http.StatusOK, r.Headers.Status)
	assert.True(t, r.Headers.IsSuccess())

	_, err = c.Exchange("nope.nope")
	assert.True(t, errors.Is(err, ErrUnknownEndpoint))
}

func TestResponseExecutor(t *testing.T) {
	srv, _ := server(t)
	var delivered atomic.Int32
	exec := async.ExecutorFunc(func(task func()) error {
		delivered.Add(1)
		go task()
		return nil
	})
	c := newClient(t, srv.URL, WithResponseExecutor(exec))

	_, err := c.Invoke("users.get", "1")
	require.NoError(t, err)
	assert.Positive(t, delivered.Load())
}

func TestGo(t *testing.T) {
	srv, _ := server(t)
	c := newClient(t, srv.URL)

	futures := make([]*async.Future[pipeline.Response], 5)
	for i := range futures {
		f, err := c.Go("users.fetch", "1", "20ms")
		require.NoError(t, err)
		futures[i] = f
	}
	for _, f := range futures {
		r, err := f.Get()
		require.NoError(t, err)
		assert.Equal(t, user{ID: "1", Name: "Ada"}, r.Entity)
	}

	_, err := c.Go("users.nope")
	assert.ErrorIs(t, err, ErrUnknownEndpoint)
}
