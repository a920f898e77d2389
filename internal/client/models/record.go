// Package models defines IOU records as returned by the engine and the
// derived views the client builds from them.
package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// State is the lifecycle state of an IOU.
type State string

const (
	StateUnpaid   State = "unpaid"
	StatePaid     State = "paid"
	StateForgiven State = "forgiven"
	StateUnknown  State = "unknown"
)

// ParseState maps a raw @state value onto a known State. An absent state is
// treated as unpaid, anything unrecognised becomes StateUnknown.
func ParseState(s string) State {
	switch State(strings.ToLower(strings.TrimSpace(s))) {
	case "", StateUnpaid:
		return StateUnpaid
	case StatePaid:
		return StatePaid
	case StateForgiven:
		return StateForgiven
	default:
		return StateUnknown
	}
}

// Entity identifies a party by its email claims.
type Entity struct {
	Email []string `json:"email"`
}

// Party is one side of an IOU.
type Party struct {
	Entity Entity         `json:"entity"`
	Access map[string]any `json:"access,omitempty"`
}

// Emails returns the emails of the party, never nil.
func (p Party) Emails() []string {
	if p.Entity.Email == nil {
		return []string{}
	}
	return p.Entity.Email
}

// Has reports whether email is one of the party's emails. The comparison is exact.
func (p Party) Has(email string) bool {
	if email == "" {
		return false
	}
	for _, e := range p.Entity.Email {
		if e == email {
			return true
		}
	}
	return false
}

// Parties holds both sides of an IOU.
type Parties struct {
	Issuer Party `json:"issuer"`
	Payee  Party `json:"payee"`
}

// Record is an IOU as published by the engine.
type Record struct {
	ID          string
	ForAmount   decimal.NullDecimal
	State       State
	RawState    string
	Parties     Parties
	Actions     ActionSet
	Description string
	CreatedAt   string
	UpdatedAt   string

	raw json.RawMessage
}

type recordWire struct {
	ID          string          `json:"@id"`
	ForAmount   json.RawMessage `json:"forAmount,omitempty"`
	State       string          `json:"@state,omitempty"`
	Parties     Parties         `json:"@parties"`
	Actions     ActionSet       `json:"@actions"`
	Description string          `json:"description,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
	UpdatedAt   string          `json:"updatedAt,omitempty"`
}

// UnmarshalJSON decodes an engine record. forAmount may be a number or a
// numeric string; any other value leaves ForAmount invalid.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w recordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*r = Record{
		ID:          w.ID,
		ForAmount:   ParseAmount(w.ForAmount),
		State:       ParseState(w.State),
		RawState:    w.State,
		Parties:     w.Parties,
		Actions:     w.Actions,
		Description: w.Description,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
		raw:         append(json.RawMessage(nil), b...),
	}
	return nil
}

// MarshalJSON returns the bytes the record was decoded from, or a
// re-encoded wire form for records built in code.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}

	w := recordWire{
		ID:          r.ID,
		State:       r.RawState,
		Parties:     r.Parties,
		Actions:     r.Actions,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if w.State == "" && r.State != "" {
		w.State = string(r.State)
	}
	if r.ForAmount.Valid {
		w.ForAmount = json.RawMessage(r.ForAmount.Decimal.String())
	}
	return json.Marshal(w)
}

// ParseAmount decodes a JSON amount leniently.
func ParseAmount(raw json.RawMessage) decimal.NullDecimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.NullDecimal{}
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.NullDecimal{}
		}
		s = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
