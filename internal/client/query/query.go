// Package query filters derived views with structured search terms such as
// "state:unpaid" or "payee:bob".
package query

import (
	"sort"
	"strings"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
)

// Field is a searchable attribute of a view.
type Field string

const (
	FieldAny    Field = ""
	FieldIssuer Field = "issuer"
	FieldPayee  Field = "payee"
	FieldState  Field = "state"
	FieldID     Field = "id"
	FieldAmount Field = "amount"
	FieldOwed   Field = "owed"

	// FieldInvalid marks a term whose field name is not known. Such a term
	// matches nothing.
	FieldInvalid Field = "!invalid"
)

// Fields lists the searchable fields in display order.
var Fields = []Field{FieldIssuer, FieldPayee, FieldState, FieldID, FieldAmount, FieldOwed}

func knownField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return FieldInvalid, false
}

// Term is one parsed search term.
type Term struct {
	Field Field
	// Name is the field name as typed, lower-cased. It differs from Field
	// only for invalid terms.
	Name  string
	Value string
}

// ParseTerm parses "field:value" or free text. Field names and values are
// compared case-insensitively.
func ParseTerm(raw string) Term {
	raw = strings.TrimSpace(raw)
	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		return Term{Field: FieldAny, Value: strings.ToLower(raw)}
	}

	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.ToLower(strings.TrimSpace(value))
	f, _ := knownField(name)
	return Term{Field: f, Name: name, Value: value}
}

// String is the canonical form used for de-duplication and display.
func (t Term) String() string {
	if t.Field == FieldAny {
		return t.Value
	}
	return t.Name + ":" + t.Value
}

// Valid reports whether the term names a known field (or is free text).
func (t Term) Valid() bool {
	return t.Field != FieldInvalid
}

// Match reports whether v satisfies the term.
func (t Term) Match(v models.View) bool {
	switch t.Field {
	case FieldInvalid:
		return false
	case FieldAny:
		for _, f := range Fields {
			if matchField(f, v, t.Value) {
				return true
			}
		}
		return false
	default:
		return matchField(t.Field, v, t.Value)
	}
}

func matchField(f Field, v models.View, needle string) bool {
	for _, s := range fieldValues(f, v) {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// fieldValues returns the strings a field is matched against.
func fieldValues(f Field, v models.View) []string {
	switch f {
	case FieldIssuer:
		return partyValues(v.IssuerEmails, v.Issuer)
	case FieldPayee:
		return partyValues(v.PayeeEmails, v.Payee)
	case FieldState:
		if raw := unknownStateLabel(v); raw != "" {
			return []string{string(v.State), raw}
		}
		return []string{string(v.State)}
	case FieldID:
		return []string{v.ID}
	case FieldAmount:
		return []string{models.FormatAmount(v.Amount)}
	case FieldOwed:
		return []string{models.FormatAmount(v.AmountOwed)}
	default:
		return nil
	}
}

// unknownStateLabel is the engine's own label for a state the client does not
// recognise, as the table shows it. It is empty for known states.
func unknownStateLabel(v models.View) string {
	if v.State != models.StateUnknown {
		return ""
	}
	return strings.TrimSpace(v.Record.RawState)
}

func partyValues(emails []string, display string) []string {
	if len(emails) == 0 {
		return []string{display}
	}
	return emails
}

// displayValue is the value offered by Suggest for a field.
func displayValue(f Field, v models.View) string {
	switch f {
	case FieldIssuer:
		return v.Issuer
	case FieldPayee:
		return v.Payee
	case FieldState:
		if raw := unknownStateLabel(v); raw != "" {
			return raw
		}
		return string(v.State)
	default:
		vals := fieldValues(f, v)
		if len(vals) == 0 {
			return ""
		}
		return vals[0]
	}
}

// Set is an ordered collection of unique terms. A view matches the set when
// it matches every term. The zero value is an empty set.
type Set struct {
	terms []Term
	seen  map[string]struct{}
}

// NewSet parses raw terms into a set, skipping blanks and duplicates.
func NewSet(raw ...string) *Set {
	s := &Set{}
	for _, r := range raw {
		s.Add(r)
	}
	return s
}

// Add parses and inserts raw. It returns false for blank input and for terms
// already in the set.
func (s *Set) Add(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	t := ParseTerm(raw)
	key := t.String()
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.terms = append(s.terms, t)
	return true
}

// Remove deletes the term equal to raw, if present.
func (s *Set) Remove(raw string) bool {
	key := ParseTerm(raw).String()
	if _, ok := s.seen[key]; !ok {
		return false
	}
	delete(s.seen, key)
	for i, t := range s.terms {
		if t.String() == key {
			s.terms = append(s.terms[:i:i], s.terms[i+1:]...)
			break
		}
	}
	return true
}

// Clear empties the set.
func (s *Set) Clear() {
	s.terms = nil
	s.seen = nil
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.terms)
}

// Terms returns the terms in insertion order.
func (s *Set) Terms() []Term {
	if s == nil {
		return nil
	}
	return append([]Term(nil), s.terms...)
}

// Strings returns the canonical form of every term in insertion order.
func (s *Set) Strings() []string {
	out := make([]string, 0, s.Len())
	for _, t := range s.Terms() {
		out = append(out, t.String())
	}
	return out
}

// Match reports whether v satisfies every term of the set.
func (s *Set) Match(v models.View) bool {
	for _, t := range s.Terms() {
		if !t.Match(v) {
			return false
		}
	}
	return true
}

// Filter returns the views matching set, keeping their relative order. An
// empty set returns every view.
func Filter(views []models.View, set *Set) []models.View {
	out := make([]models.View, 0, len(views))
	for _, v := range views {
		if set.Len() == 0 || set.Match(v) {
			out = append(out, v)
		}
	}
	return out
}

// Suggest lists "field:value" for every distinct display value of every
// field, sorted.
func Suggest(views []models.View) []string {
	seen := map[string]struct{}{}
	for _, v := range views {
		for _, f := range Fields {
			val := displayValue(f, v)
			if val == "" {
				continue
			}
			seen[string(f)+":"+val] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
