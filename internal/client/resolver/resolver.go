// Package resolver classifies records relative to the current user and
// decides which actions may be invoked and through which url.
package resolver

import (
	"net/url"
	"strings"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
)

// Resolution is the user-relative outcome for one record.
type Resolution struct {
	Role       models.Role
	CanPay     bool
	CanForgive bool
	// Actions maps every advertised action to the url it should be invoked
	// through. It is never nil.
	Actions map[string]string
}

// Resolver builds Resolutions and Views. Its zero value resolves fallback
// urls against the root path.
type Resolver struct {
	basePath string
}

// New returns a Resolver whose fallback urls live below basePath, the path
// of the engine url (e.g. "/npl/objects/iou").
func New(basePath string) *Resolver {
	return &Resolver{basePath: strings.TrimRight(basePath, "/")}
}

// RoleOf returns the role of email in rec. Issuer wins when the email is on
// both sides.
func RoleOf(rec models.Record, email string) models.Role {
	switch {
	case rec.Parties.Issuer.Has(email):
		return models.RoleIssuer
	case rec.Parties.Payee.Has(email):
		return models.RolePayee
	default:
		return models.RoleNone
	}
}

// Resolve classifies rec for email. It never fails: malformed action urls are
// used verbatim.
func (r *Resolver) Resolve(rec models.Record, email string) Resolution {
	role := RoleOf(rec, email)
	unpaid := rec.State == models.StateUnpaid

	return Resolution{
		Role:       role,
		CanPay:     role == models.RoleIssuer && unpaid && rec.Actions.Has(models.ActionPay),
		CanForgive: role == models.RolePayee && unpaid && rec.Actions.Has(models.ActionForgive),
		Actions:    r.actionURLs(rec),
	}
}

// View builds the derived view of rec for email with AmountOwed equal to the
// face amount.
func (r *Resolver) View(rec models.Record, email string) models.View {
	res := r.Resolve(rec, email)
	issuer := rec.Parties.Issuer.Emails()
	payee := rec.Parties.Payee.Emails()

	return models.View{
		ID:           rec.ID,
		Issuer:       models.DisplayParty(issuer),
		Payee:        models.DisplayParty(payee),
		IssuerEmails: issuer,
		PayeeEmails:  payee,
		State:        rec.State,
		Role:         res.Role,
		CanPay:       res.CanPay,
		CanForgive:   res.CanForgive,
		Amount:       rec.ForAmount,
		AmountOwed:   rec.ForAmount,
		Actions:      res.Actions,
		Description:  rec.Description,
		Record:       rec,
	}
}

// Views builds views for every record, keeping order.
func (r *Resolver) Views(recs []models.Record, email string) []models.View {
	out := make([]models.View, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.View(rec, email))
	}
	return out
}

func (r *Resolver) actionURLs(rec models.Record) map[string]string {
	names := rec.Actions.Names()
	out := make(map[string]string, len(names))
	for _, name := range names {
		if u, ok := rec.Actions.URL(name); ok {
			out[name] = SameOrigin(u)
			continue
		}
		out[name] = r.Fallback(rec.ID, name)
	}
	return out
}

// Fallback is the conventional url of action on record id.
func (r *Resolver) Fallback(id, action string) string {
	return r.basePath + "/Iou/" + url.PathEscape(id) + "/" + action
}

// SameOrigin reduces an absolute http(s) url to its path and query so that it
// is invoked against the configured engine. Anything else, including urls
// that do not parse, is returned unchanged.
func SameOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return raw
	}

	out := u.EscapedPath()
	if out == "" {
		out = "/"
	}
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}
