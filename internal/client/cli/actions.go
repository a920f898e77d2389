package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/shopspring/decimal"
)

var errUsage = errors.New("usage")

// Pay handles "pay <id> <amount>".
func (a *App) Pay(ctx context.Context, args []string) error {
	if len(args) != 2 {
		a.println("Usage: pay <id> <amount>")
		return errUsage
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		a.printf("Invalid amount %q\n", args[1])
		return err
	}

	if err := a.ledgerService.Pay(ctx, args[0], amount); err != nil {
		a.report(ctx, err)
		return err
	}
	a.printf("Paid %s on %s\n", models.FormatCurrency(decimal.NewNullDecimal(amount)), args[0])
	return nil
}

// Forgive handles "forgive <id>".
func (a *App) Forgive(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.println("Usage: forgive <id>")
		return errUsage
	}

	if err := a.ledgerService.Forgive(ctx, args[0]); err != nil {
		a.report(ctx, err)
		return err
	}
	a.printf("Forgave %s\n", args[0])
	return nil
}

// Create handles "create <payee> <amount> [description...]".
func (a *App) Create(ctx context.Context, args []string) error {
	if len(args) < 2 {
		a.println("Usage: create <payee-email> <amount> [description...]")
		return errUsage
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		a.printf("Invalid amount %q\n", args[1])
		return err
	}

	rec, err := a.ledgerService.Create(ctx, args[0], amount, strings.Join(args[2:], " "))
	if err != nil {
		a.report(ctx, err)
		return err
	}
	if rec.ID != "" {
		a.printf("Created %s\n", rec.ID)
	} else {
		a.println("Created")
	}
	return nil
}

// parseAmount accepts "12.50" and "$12.50".
func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimPrefix(s, "$"))
}
