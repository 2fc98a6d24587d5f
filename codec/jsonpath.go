package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/gryphon-zone/screech/pipeline"
	"github.com/gryphon-zone/screech/request"
)

// PathError reports a JSONPath expression that matched nothing.
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("codec: path not found: %s", e.Path)
}

// Extract returns the value at path in doc. Strings come back unquoted,
// anything else as its raw JSON text.
func Extract(doc []byte, path string) (string, error) {
	if len(doc) == 0 {
		return "", fmt.Errorf("codec: empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("codec: empty JSONPath expression")
	}
	result := gjson.GetBytes(doc, gjsonPath(path))
	if !result.Exists() {
		return "", &PathError{Path: path}
	}
	if result.Type == gjson.String {
		return result.String(), nil
	}
	return result.Raw, nil
}

// JSONPath decodes the value found at path. String payloads receive the
// unquoted string; other payloads are unmarshalled from the matched JSON.
func JSONPath(path string) pipeline.DecoderFactory {
	gpath := gjsonPath(path)
	return Buffered(func(_ request.ResponseHeaders, payload reflect.Type, body []byte) (any, error) {
		if !gjson.ValidBytes(body) {
			return nil, &DecodeError{Format: "json", Payload: payload, Err: fmt.Errorf("invalid JSON document")}
		}
		result := gjson.GetBytes(body, gpath)
		if !result.Exists() {
			return nil, &PathError{Path: path}
		}
		if result.Type == gjson.Null {
			return nil, nil
		}
		if payload != nil && payload.Kind() == reflect.String {
			return reflect.ValueOf(result.String()).Convert(payload).Interface(), nil
		}
		return unmarshalInto("json", payload, []byte(result.Raw), json.Unmarshal)
	})
}

// gjsonPath converts a JSONPath expression such as $.users[0].name or
// $['users'][0] into gjson syntax (users.0.name).
func gjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var b strings.Builder
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				b.WriteString(path[i:])
				return b.String()
			}
			key := strings.Trim(path[i+1:i+end], `'"`)
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(key)
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
