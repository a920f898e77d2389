package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn(ctx context.Context) bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Refresh(ctx context.Context) error
	List(ctx context.Context, terms []string) error
	Filter(ctx context.Context, args []string) error
	Suggest(ctx context.Context) error
	Pay(ctx context.Context, args []string) error
	Forgive(ctx context.Context, args []string) error
	Create(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: login, help, exit"
	helpLoggedIn  = "Available commands: (l)ist [terms...], filter [add|rm|clear] [term], suggest, refresh, " +
		"pay <id> <amount>, forgive <id>, create <payee> <amount> [description...], whoami, logout, help, exit"
)

// runREPL starts a simple read–eval–print loop for the IOU Keeper CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Commands other than help, login and exit require a session; without one
// the user is asked to log in first.
//
// Errors returned by command handlers are ignored here; handlers report their
// own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("iou %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn(ctx) {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
			continue

		case "login":
			_ = a.Login(ctx)
			continue

		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		if !knownCommand(cmd) {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if cmd != "logout" && !a.isLoggedIn(ctx) {
			printlnFn("Not logged in. Type 'login' first.")
			continue
		}

		switch cmd {
		case "l", "list":
			_ = a.List(ctx, args)
		case "filter":
			_ = a.Filter(ctx, args)
		case "suggest":
			_ = a.Suggest(ctx)
		case "refresh":
			_ = a.Refresh(ctx)
		case "pay":
			_ = a.Pay(ctx, args)
		case "forgive":
			_ = a.Forgive(ctx, args)
		case "create":
			_ = a.Create(ctx, args)
		case "whoami":
			_ = a.WhoAmI(ctx)
		case "logout":
			_ = a.Logout(ctx)
		}
	}
}

func knownCommand(cmd string) bool {
	switch cmd {
	case "l", "list", "filter", "suggest", "refresh", "pay", "forgive", "create", "whoami", "logout":
		return true
	}
	return false
}
