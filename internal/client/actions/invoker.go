// Package actions invokes state-changing actions on IOU records and creates
// new records.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/dmitrijs2005/ioukeeper/internal/client/engine"
	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
	"github.com/dmitrijs2005/ioukeeper/internal/metrics"
	"github.com/shopspring/decimal"
)

// Error is an action the engine refused. It matches common.ErrAction.
type Error struct {
	Action     string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	name := e.Action
	if name == "" {
		name = "action"
	}
	if e.Message == "" {
		return fmt.Sprintf("%s rejected (%d)", name, e.StatusCode)
	}
	return fmt.Sprintf("%s rejected (%d): %s", name, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return common.ErrAction }

// Engine is the part of *engine.Client the invoker needs.
type Engine interface {
	Resolve(ref string) (*url.URL, error)
	Endpoint(rel string) *url.URL
	Call(ctx context.Context, u *url.URL, payload map[string]any, vs engine.VerbStrategy) (*engine.Response, error)
}

type Invoker struct {
	engine  Engine
	logger  logging.Logger
	metrics metrics.Recorder
}

func NewInvoker(e Engine, logger logging.Logger, rec metrics.Recorder) *Invoker {
	if logger == nil {
		logger = logging.Discard()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Invoker{engine: e, logger: logger, metrics: rec}
}

// PayPayload is the body of a pay action.
func PayPayload(amount decimal.Decimal) map[string]any {
	return map[string]any{"amount": json.Number(amount.String())}
}

// Invoke posts payload to actionURL, retrying as GET with query parameters
// on 405. The caller is expected to refetch afterwards; nothing is mutated
// locally.
func (i *Invoker) Invoke(ctx context.Context, actionURL string, payload map[string]any) error {
	u, err := i.engine.Resolve(actionURL)
	if err != nil {
		i.metrics.RecordAction("unknown", metrics.OutcomeError)
		return &Error{Message: err.Error()}
	}
	action := path.Base(u.Path)

	resp, err := i.engine.Call(ctx, u, payload, engine.PostThenGet)
	if err != nil {
		i.metrics.RecordAction(action, metrics.OutcomeError)
		return err
	}
	if err := asActionError(action, resp); err != nil {
		i.metrics.RecordAction(action, metrics.OutcomeError)
		i.logger.Info(ctx, "action rejected", "action", action, "path", u.Path, "status", resp.StatusCode)
		return err
	}

	i.metrics.RecordAction(action, metrics.OutcomeOK)
	i.logger.Info(ctx, "action invoked", "action", action, "path", u.Path)
	return nil
}

// CreateRequest describes a new IOU issued by the current user.
type CreateRequest struct {
	IssuerEmail string
	PayeeEmail  string
	Amount      decimal.Decimal
	Description string
}

// Payload is the engine body for the request.
func (r CreateRequest) Payload() map[string]any {
	p := map[string]any{
		"forAmount": json.Number(r.Amount.String()),
		"@parties": map[string]any{
			"issuer": map[string]any{"entity": map[string]any{"email": []string{r.IssuerEmail}}, "access": map[string]any{}},
			"payee":  map[string]any{"entity": map[string]any{"email": []string{r.PayeeEmail}}, "access": map[string]any{}},
		},
	}
	if r.Description != "" {
		p["description"] = r.Description
	}
	return p
}

// Create posts a new IOU. The returned record is empty when the engine does
// not echo it back.
func (i *Invoker) Create(ctx context.Context, req CreateRequest) (models.Record, error) {
	const action = "create"
	if req.PayeeEmail == "" || req.IssuerEmail == "" {
		return models.Record{}, &Error{Action: action, Message: "issuer and payee are required"}
	}
	if !req.Amount.IsPositive() {
		return models.Record{}, &Error{Action: action, Message: "amount must be positive"}
	}

	u := i.engine.Endpoint("Iou/")
	resp, err := i.engine.Call(ctx, u, req.Payload(), engine.VerbStrategy{Primary: http.MethodPost})
	if err != nil {
		i.metrics.RecordAction(action, metrics.OutcomeError)
		return models.Record{}, err
	}
	if err := asActionError(action, resp); err != nil {
		i.metrics.RecordAction(action, metrics.OutcomeError)
		return models.Record{}, err
	}
	i.metrics.RecordAction(action, metrics.OutcomeOK)

	var rec models.Record
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &rec); err != nil {
			i.logger.Debug(ctx, "create response is not a record", "error", err)
			return models.Record{}, nil
		}
	}
	i.logger.Info(ctx, "iou created", "id", rec.ID, "payee", req.PayeeEmail)
	return rec, nil
}

func asActionError(action string, resp *engine.Response) error {
	err := resp.Err()
	if err == nil {
		return nil
	}
	var se *engine.StatusError
	if errors.As(err, &se) {
		return &Error{Action: action, StatusCode: se.StatusCode, Message: se.Message}
	}
	return &Error{Action: action, StatusCode: resp.StatusCode, Message: err.Error()}
}
