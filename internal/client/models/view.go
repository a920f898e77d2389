package models

import (
	"github.com/shopspring/decimal"
)

// UnknownParty is displayed for a party without emails.
const UnknownParty = "Unknown"

// NotAvailable is displayed for amounts that are not numeric.
const NotAvailable = "N/A"

// Role is the current user's relation to a record.
type Role string

const (
	RoleIssuer Role = "issuer"
	RolePayee  Role = "payee"
	RoleNone   Role = "none"
)

// View is the derived, display-ready projection of a Record for one user.
type View struct {
	ID           string
	Issuer       string
	Payee        string
	IssuerEmails []string
	PayeeEmails  []string
	State        State
	Role         Role
	CanPay       bool
	CanForgive   bool
	Amount       decimal.NullDecimal
	AmountOwed   decimal.NullDecimal
	Reconciled   bool
	Actions      map[string]string
	Description  string
	Record       Record
}

// WithAmountOwed returns a copy of v carrying a reconciled owed amount.
func (v View) WithAmountOwed(owed decimal.Decimal) View {
	v.AmountOwed = decimal.NewNullDecimal(owed)
	v.Reconciled = true
	return v
}

// DisplayParty returns the first email of a party or UnknownParty.
func DisplayParty(emails []string) string {
	for _, e := range emails {
		if e != "" {
			return e
		}
	}
	return UnknownParty
}

// FormatAmount renders an amount with two decimals, or NotAvailable.
func FormatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return NotAvailable
	}
	return d.Decimal.StringFixed(2)
}

// FormatCurrency renders an amount as "$150.00" (or "-$5.00"), or NotAvailable.
func FormatCurrency(d decimal.NullDecimal) string {
	if !d.Valid {
		return NotAvailable
	}
	if d.Decimal.IsNegative() {
		return "-$" + d.Decimal.Neg().StringFixed(2)
	}
	return "$" + d.Decimal.StringFixed(2)
}
