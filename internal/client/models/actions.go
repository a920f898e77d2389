package models

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Well-known action names advertised by the engine.
const (
	ActionPay           = "pay"
	ActionForgive       = "forgive"
	ActionGetAmountOwed = "getAmountOwed"
)

// actionKind tells which shape the engine used for @actions.
type actionKind int

const (
	kindNone actionKind = iota
	kindNames
	kindURLMap
)

// ActionSet is the set of actions the engine permits on a record. The engine
// sends either a list of names or an object mapping names to URLs; both are
// normalised into a map where an empty URL means "present, no URL".
type ActionSet struct {
	kind actionKind
	urls map[string]string
}

// NewActionNames builds a list-shaped action set.
func NewActionNames(names ...string) ActionSet {
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[n] = ""
	}
	return ActionSet{kind: kindNames, urls: m}
}

// NewActionURLs builds a map-shaped action set.
func NewActionURLs(urls map[string]string) ActionSet {
	m := make(map[string]string, len(urls))
	for k, v := range urls {
		m[k] = v
	}
	return ActionSet{kind: kindURLMap, urls: m}
}

// Has reports whether name was advertised.
func (a ActionSet) Has(name string) bool {
	_, ok := a.urls[name]
	return ok
}

// URL returns the explicit URL for name, if any.
func (a ActionSet) URL(name string) (string, bool) {
	u, ok := a.urls[name]
	if !ok || u == "" {
		return "", false
	}
	return u, true
}

// Names returns the advertised action names in sorted order.
func (a ActionSet) Names() []string {
	out := make([]string, 0, len(a.urls))
	for k := range a.urls {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UnmarshalJSON accepts a list of names or an object of name to URL. Values
// of any other shape decode to an empty set; non-string URLs count as absent.
func (a *ActionSet) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*a = ActionSet{urls: map[string]string{}}
	if len(b) == 0 {
		return nil
	}

	switch b[0] {
	case '[':
		var items []any
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		a.kind = kindNames
		for _, it := range items {
			if s, ok := it.(string); ok && s != "" {
				a.urls[s] = ""
			}
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		a.kind = kindURLMap
		for k, v := range obj {
			s, _ := v.(string)
			a.urls[k] = s
		}
	}
	return nil
}

// MarshalJSON writes the set back in the shape it was decoded from.
func (a ActionSet) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case kindNames:
		return json.Marshal(a.Names())
	case kindURLMap:
		return json.Marshal(a.urls)
	default:
		return []byte("null"), nil
	}
}
