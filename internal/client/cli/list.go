package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
)

// Refresh runs a fetch cycle and prints a one-line summary. On failure the
// previously shown records stay available.
func (a *App) Refresh(ctx context.Context) error {
	views, err := a.ledgerService.Refresh(ctx)
	if err != nil {
		a.report(ctx, err)
		return err
	}
	a.printf("%d IOU(s) loaded\n", len(views))
	return nil
}

// List prints the published records matching the active filters. Terms given
// on the command line replace the active filters.
func (a *App) List(ctx context.Context, terms []string) error {
	if len(terms) > 0 {
		a.filters.Clear()
		for _, t := range terms {
			a.filters.Add(t)
		}
	}

	views := a.ledgerService.Search(a.filters)
	if a.filters.Len() > 0 {
		a.printf("Filters: %s\n", strings.Join(a.filters.Strings(), " "))
	}
	a.renderViews(views)
	return nil
}

// Filter edits the active filters:
//
//	filter               show active filters
//	filter add <term>    add a term
//	filter rm <term>     remove a term
//	filter clear         remove every term
func (a *App) Filter(ctx context.Context, args []string) error {
	if len(args) == 0 {
		if a.filters.Len() == 0 {
			a.println("No filters")
		} else {
			a.printf("Filters: %s\n", strings.Join(a.filters.Strings(), " "))
		}
		return nil
	}

	switch args[0] {
	case "add":
		for _, t := range args[1:] {
			a.filters.Add(t)
		}
	case "rm":
		for _, t := range args[1:] {
			if !a.filters.Remove(t) {
				a.printf("Not an active filter: %s\n", t)
			}
		}
	case "clear":
		a.filters.Clear()
	default:
		a.println("Usage: filter [add <term>... | rm <term>... | clear]")
		return nil
	}
	return a.List(ctx, nil)
}

// Suggest prints every field:value term that matches at least one record.
func (a *App) Suggest(ctx context.Context) error {
	terms := a.ledgerService.Suggest()
	if len(terms) == 0 {
		a.println("Nothing to suggest")
		return nil
	}
	for _, t := range terms {
		a.println(t)
	}
	return nil
}

var (
	headerColor = color.New(color.Bold, color.Underline)
	faint       = color.New(color.Faint, color.Italic)
	stateColors = map[models.State]*color.Color{
		models.StateUnpaid:   color.New(color.FgYellow),
		models.StatePaid:     color.New(color.FgGreen),
		models.StateForgiven: color.New(color.FgCyan),
		models.StateUnknown:  color.New(color.FgRed),
	}
)

func (a *App) renderViews(views []models.View) {
	if len(views) == 0 {
		a.println(faint.Sprint(" none"))
		return
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 40
	tbl.AddRow(
		headerColor.Sprint("ID"),
		headerColor.Sprint("ISSUER"),
		headerColor.Sprint("PAYEE"),
		headerColor.Sprint("AMOUNT"),
		headerColor.Sprint("OWED"),
		headerColor.Sprint("STATE"),
		headerColor.Sprint("ROLE"),
		headerColor.Sprint("CAN"),
	)
	for _, v := range views {
		tbl.AddRow(v.ID, v.Issuer, v.Payee,
			models.FormatCurrency(v.Amount),
			owedCell(v),
			stateCell(v),
			string(v.Role),
			permittedCell(v),
		)
	}
	fmt.Fprintln(a.out, tbl)
}

func owedCell(v models.View) string {
	s := models.FormatCurrency(v.AmountOwed)
	if v.Reconciled {
		return s
	}
	return faint.Sprint(s)
}

func stateCell(v models.View) string {
	label := string(v.State)
	if v.State == models.StateUnknown && v.Record.RawState != "" {
		label = v.Record.RawState
	}
	if c, ok := stateColors[v.State]; ok {
		return c.Sprint(label)
	}
	return label
}

func permittedCell(v models.View) string {
	var can []string
	if v.CanPay {
		can = append(can, models.ActionPay)
	}
	if v.CanForgive {
		can = append(can, models.ActionForgive)
	}
	if len(can) == 0 {
		return "-"
	}
	return strings.Join(can, ",")
}
