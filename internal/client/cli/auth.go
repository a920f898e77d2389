package cli

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for a username, offering the last one used, and a password,
// then authenticates and runs a first fetch. The password is wiped by the
// auth service.
func (a *App) Login(ctx context.Context) error {
	prompt := "Enter username"
	last := a.authService.LastUsername(ctx)
	if last != "" {
		prompt += " [" + last + "]"
	}

	userName, err := getSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		return err
	}
	if userName == "" {
		userName = last
	}
	if userName == "" {
		a.println("Username is required")
		return common.ErrAuthFailure
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}

	cred, err := a.authService.Login(ctx, userName, password)
	if err != nil {
		a.report(ctx, err)
		return err
	}

	a.userName = displayName(cred.Email(), cred.Username())
	a.printf("Logged in as %s\n", a.userName)
	return a.Refresh(ctx)
}

// Logout ends the session and drops every locally cached record.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		a.report(ctx, err)
		return err
	}
	a.userName = ""
	a.filters.Clear()
	a.println("Logged out")
	return nil
}

// WhoAmI prints the claims of the current credential.
func (a *App) WhoAmI(ctx context.Context) error {
	cred, err := a.authService.WhoAmI(ctx)
	if err != nil {
		a.report(ctx, err)
		return err
	}

	a.printf("Email:        %s\n", orDash(cred.Email()))
	a.printf("Username:     %s\n", orDash(cred.Username()))
	a.printf("Name:         %s\n", orDash(cred.Name()))
	a.printf("Subject:      %s\n", orDash(cred.Subject()))
	a.printf("Organization: %s\n", orDash(strings.Join(cred.Organization(), ", ")))
	a.printf("Roles:        %s\n", orDash(strings.Join(cred.Roles(), ", ")))
	a.printf("Expires:      %s\n", cred.ExpiresAt().Local().Format(time.RFC1123))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
