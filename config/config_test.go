package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gryphon-zone/screech/async"
	"github.com/gryphon-zone/screech/endpoint"
	"github.com/gryphon-zone/screech/optional"
)

const definitions = `
baseUrl: http://localhost:8080
timeout: 5s
headers:
  User-Agent: screech-test
groups:
  - name: users
    headers: ["Accept: application/json"]
    endpoints:
      - name: get
        request: GET /users/{id}?verbose
        headers: ["X-Trace: {trace}"]
        params:
          - name: id
          - name: trace
            expander: lower
      - name: create
        request: POST /users
        headers: ["Content-Type: application/json"]
        params:
          - body: true
        returns: text
        optional: true
        async: true
`

func TestParse_YAML(t *testing.T) {
	file, err := Parse([]byte(definitions), "api.yaml")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", file.BaseURL)
	assert.Equal(t, 5*time.Second, file.Timeout.GetDuration(0))
	assert.Equal(t, "screech-test", file.Headers["User-Agent"])
	require.Len(t, file.Groups, 1)
	require.Len(t, file.Groups[0].Endpoints, 2)
	assert.Equal(t, "json", file.Groups[0].Endpoints[0].Returns, "default return format")
	assert.Empty(t, Validate(file))
}

func TestParse_JSON(t *testing.T) {
	data := `{"baseUrl":"http://api","timeout":"1m","groups":[{"name":"g","endpoints":[{"name":"e","request":"GET /"}]}]}`
	file, err := Parse([]byte(data), "api.json")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, time.Duration(file.Timeout))
	assert.Equal(t, "GET /", file.Groups[0].Endpoints[0].Request)

	file, err = Parse([]byte(`{"timeout":15,"groups":[]}`), "api.json")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, time.Duration(file.Timeout))

	_, err = Parse([]byte(`{`), "api.json")
	assert.ErrorContains(t, err, "failed to parse JSON")
	_, err = Parse([]byte("groups: [\n"), "api.yml")
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestParse_DefaultTimeout(t *testing.T) {
	file, err := Parse([]byte("groups: []"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, time.Duration(file.Timeout))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o600))

	file, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "users", file.Groups[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read definition file")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1h30m", 90 * time.Minute, false},
		{"30", 30 * time.Second, false},
		{"30x", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReturnType(t *testing.T) {
	tests := []struct {
		e    Endpoint
		want reflect.Type
	}{
		{Endpoint{Returns: "json"}, reflect.TypeFor[any]()},
		{Endpoint{Returns: "YAML"}, reflect.TypeFor[any]()},
		{Endpoint{Returns: "text", Optional: true}, reflect.TypeFor[optional.Value[string]]()},
		{Endpoint{Returns: "bytes", Async: true}, reflect.TypeFor[*async.Future[[]byte]]()},
		{Endpoint{Returns: "json", Async: true, Optional: true}, reflect.TypeFor[*async.Future[optional.Value[any]]]()},
	}
	for _, tt := range tests {
		got, err := tt.e.ReturnType()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Endpoint{Returns: "xml"}.ReturnType()
	assert.ErrorContains(t, err, `unknown return format "xml"`)
}

func TestGroups(t *testing.T) {
	file, err := Parse([]byte(definitions), "api.yaml")
	require.NoError(t, err)

	groups, err := file.EndpointGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)

	descriptors, err := endpoint.CompileGroup(groups[0])
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	get := descriptors[0]
	assert.Equal(t, "users.get", get.Name)
	assert.Equal(t, []string{"id", "trace"}, get.ParamNames())
	assert.Equal(t, -1, get.BodyIndex)
	req, err := get.Request("http://api", []any{"7", "ABC"})
	require.NoError(t, err)
	trace, _ := req.Param("trace")
	assert.Equal(t, "abc", trace)

	create := descriptors[1]
	assert.Equal(t, 0, create.BodyIndex)
	assert.True(t, create.Shape.Async)
	assert.True(t, create.Shape.Optional)
	assert.Equal(t, reflect.TypeFor[string](), create.Shape.Payload)

	e, ok := file.Endpoint("users.create")
	require.True(t, ok)
	assert.Equal(t, "POST /users", e.Request)
	_, ok = file.Endpoint("users.delete")
	assert.False(t, ok)

	file.Groups[0].Endpoints[0].Returns = "xml"
	_, err = file.EndpointGroups()
	assert.ErrorContains(t, err, "endpoint users.get")
}

func TestValidate(t *testing.T) {
	file := &File{
		BaseURL: "localhost",
		Timeout: Duration(-time.Second),
		Groups: []Group{
			{
				Name:    "a",
				Headers: []string{"no colon"},
				Endpoints: []Endpoint{
					{Name: "x", Request: "GET /x", Returns: "json"},
					{Name: "x", Request: "/y", Returns: "xml"},
					{
						Request: "POST /z",
						Returns: "json",
						Params: []Param{
							{Body: true},
							{Body: true},
							{Name: "id", Body: true},
							{},
							{Name: "p", Expander: "shout"},
							{Name: "p"},
						},
					},
				},
			},
			{Name: "a"},
		},
	}

	paths := map[string]string{}
	for _, e := range Validate(file) {
		paths[e.Path] = e.Message
	}
	assert.Contains(t, paths, "baseUrl")
	assert.Contains(t, paths, "timeout")
	assert.Contains(t, paths, "groups[0].headers[0]")
	assert.Equal(t, "duplicate endpoint: x", paths["groups[0].endpoints[1].name"])
	assert.Contains(t, paths["groups[0].endpoints[1].request"], "no HTTP method")
	assert.Contains(t, paths, "groups[0].endpoints[1].returns")
	assert.Equal(t, "name is required", paths["groups[0].endpoints[2].name"])
	assert.Equal(t, "more than one body parameter", paths["groups[0].endpoints[2].params[1]"])
	assert.Equal(t, "a body parameter cannot be named", paths["groups[0].endpoints[2].params[2]"])
	assert.Contains(t, paths, "groups[0].endpoints[2].params[3].name")
	assert.Contains(t, paths["groups[0].endpoints[2].params[4].expander"], "unknown expander")
	assert.Equal(t, "duplicate parameter: p", paths["groups[0].endpoints[2].params[5].name"])
	assert.Equal(t, "duplicate group: a", paths["groups[1].name"])
	assert.Contains(t, paths, "groups[1].endpoints")

	assert.Contains(t, Validate(file).Error(), "baseUrl: invalid base URL")
	assert.Equal(t, ValidationErrors{{Path: "groups", Message: "at least one group is required"}}, Validate(&File{}))
}
