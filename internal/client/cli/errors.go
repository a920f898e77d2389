package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/ioukeeper/internal/client/actions"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
)

// userMessage turns a service error into the line shown to the user.
func userMessage(err error) string {
	var ae *actions.Error
	switch {
	case errors.As(err, &ae):
		return "Rejected by the engine: " + ae.Error()
	case errors.Is(err, common.ErrAuthFailure):
		return "Login failed. Check username and password."
	case errors.Is(err, common.ErrRefreshFailure):
		return "Session expired. Please log in again."
	case errors.Is(err, common.ErrNoSession):
		return "Not logged in. Type 'login' first."
	case errors.Is(err, common.ErrUnauthorized):
		return "The engine refused the credentials. Please log in again."
	case errors.Is(err, common.ErrUnreachable):
		return "Service unreachable. Showing the last known records."
	case errors.Is(err, common.ErrNotFound):
		return "No such IOU. Use 'list' to see ids."
	case errors.Is(err, common.ErrNotPermitted):
		return "That action is not available on this IOU."
	default:
		return "Error: " + err.Error()
	}
}

// report prints err for the user and logs it. A session that ended, by an
// expired refresh token or a failed login, also clears the prompt.
func (a *App) report(ctx context.Context, err error) {
	a.println(userMessage(err))
	a.logger.Debug(ctx, "command failed", "error", err)

	if errors.Is(err, common.ErrRefreshFailure) || errors.Is(err, common.ErrAuthFailure) {
		a.userName = ""
	}
}
