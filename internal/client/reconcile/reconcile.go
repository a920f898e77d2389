// Package reconcile derives the amount still owed on each IOU by asking the
// engine's getAmountOwed action, falling back to the face amount.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/dmitrijs2005/ioukeeper/internal/client/engine"
	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/dmitrijs2005/ioukeeper/internal/client/resolver"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
	"github.com/dmitrijs2005/ioukeeper/internal/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel calls when none is configured.
const DefaultConcurrency = 8

// Caller is the part of *engine.Client the reconciler needs.
type Caller interface {
	Resolve(ref string) (*url.URL, error)
	Call(ctx context.Context, u *url.URL, payload map[string]any, vs engine.VerbStrategy) (*engine.Response, error)
}

// Result is the outcome of one reconciliation. Err wraps
// common.ErrReconciliationFallback when Value must not be used.
type Result struct {
	Value decimal.Decimal
	Err   error
}

// OrDefault returns the reconciled value, or face when reconciliation failed.
func (r Result) OrDefault(face decimal.NullDecimal) decimal.NullDecimal {
	if r.Err != nil {
		return face
	}
	return decimal.NewNullDecimal(r.Value)
}

type Reconciler struct {
	caller      Caller
	concurrency int
	logger      logging.Logger
	metrics     metrics.Recorder
}

func New(caller Caller, concurrency int, logger logging.Logger, rec metrics.Recorder) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Reconciler{caller: caller, concurrency: concurrency, logger: logger, metrics: rec}
}

func fallback(format string, args ...any) Result {
	return Result{Err: fmt.Errorf("%w: "+format, append([]any{common.ErrReconciliationFallback}, args...)...)}
}

// Applicable reports whether the record advertises getAmountOwed with an
// explicit url. Only those records are reconciled.
func Applicable(v models.View) bool {
	_, ok := v.Record.Actions.URL(models.ActionGetAmountOwed)
	return ok
}

// Reconcile asks the engine for the amount owed on v. Only a JSON number
// answer is accepted.
func (r *Reconciler) Reconcile(ctx context.Context, v models.View) Result {
	ref, ok := v.Record.Actions.URL(models.ActionGetAmountOwed)
	if !ok {
		return fallback("no %s url", models.ActionGetAmountOwed)
	}

	u, err := r.caller.Resolve(resolver.SameOrigin(ref))
	if err != nil {
		return fallback("%w", err)
	}

	resp, err := r.caller.Call(ctx, u, map[string]any{}, engine.PostThenGet)
	if err != nil {
		return fallback("%w", err)
	}
	if err := resp.Err(); err != nil {
		return fallback("%w", err)
	}

	n, err := parseNumber(resp.Body)
	if err != nil {
		return fallback("%w", err)
	}
	return Result{Value: n}
}

var errNotNumeric = errors.New("response is not a number")

func parseNumber(body []byte) (decimal.Decimal, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", errNotNumeric, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return decimal.Decimal{}, fmt.Errorf("%w: trailing data", errNotNumeric)
	}

	n, ok := v.(json.Number)
	if !ok {
		return decimal.Decimal{}, errNotNumeric
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", errNotNumeric, err)
	}
	return d, nil
}

// ReconcileAll reconciles every applicable view in parallel and returns a new
// slice once all calls have settled. Failures keep the face amount; they are
// logged and counted, never returned.
func (r *Reconciler) ReconcileAll(ctx context.Context, views []models.View) []models.View {
	out := make([]models.View, len(views))
	copy(out, views)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, v := range views {
		if !Applicable(v) {
			continue
		}
		g.Go(func() error {
			res := r.Reconcile(ctx, v)
			if res.Err != nil {
				r.metrics.RecordReconcile(metrics.OutcomeFallback)
				r.logger.Warn(ctx, "amount owed unavailable, using face amount",
					"id", v.ID,
					"reconciliation_fallback", true,
					"error", res.Err,
				)
				return nil
			}
			r.metrics.RecordReconcile(metrics.OutcomeOK)
			out[i] = v.WithAmountOwed(res.Value)
			return nil
		})
	}
	_ = g.Wait()

	return out
}
