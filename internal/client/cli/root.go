package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

func (a *App) getStatus() string {
	var parts []string
	if a.userName != "" {
		parts = append(parts, a.userName)
	}
	if a.ledgerService != nil && a.ledgerService.Snapshot().Cached {
		parts = append(parts, "cached")
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}

// Root resumes a stored session when there is one, shows cached records while
// the first fetch runs, and then hands over to the REPL until the user exits.
// The session is restored first so cached records are derived for its user.
func (a *App) Root(ctx context.Context) {
	a.println("Welcome to IOU Keeper CLI (type 'help' for commands)")

	cred, err := a.authService.Restore(ctx)
	if err != nil {
		a.logger.Warn(ctx, "session restore failed", "error", err)
	}

	if _, err := a.ledgerService.LoadCached(ctx); err != nil {
		a.logger.Warn(ctx, "cache unavailable", "error", err)
	}
	if cred != nil {
		a.userName = displayName(cred.Email(), cred.Username())
		a.printf("Resumed session for %s\n", a.userName)
		_ = a.Refresh(ctx)
	} else {
		_ = a.Login(ctx)
	}

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func displayName(email, username string) string {
	if email != "" {
		return email
	}
	return username
}
