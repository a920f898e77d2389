package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
)

// VerbStrategy names the verb to try first and the verb to retry with when
// the engine answers 405. An empty Fallback disables the retry.
type VerbStrategy struct {
	Primary  string
	Fallback string
}

// PostThenGet is used for action endpoints.
var PostThenGet = VerbStrategy{Primary: http.MethodPost, Fallback: http.MethodGet}

func carriesBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return false
	default:
		return true
	}
}

// WithQuery returns a copy of u with payload flattened into query parameters.
// Existing parameters are kept; keys from payload win.
func WithQuery(u *url.URL, payload map[string]any) *url.URL {
	out := *u
	if len(payload) == 0 {
		return &out
	}

	q := out.Query()
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, queryValue(payload[k]))
	}
	out.RawQuery = q.Encode()
	return &out
}

func queryValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	case bool, int, int64, float64:
		return fmt.Sprint(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
