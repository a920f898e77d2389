// Package services contains application services for the IOU Keeper client.
// This file defines the ledger service: the fetch cycle that turns raw engine
// records into the published set of views, plus the actions run against it.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/ioukeeper/internal/client/actions"
	"github.com/dmitrijs2005/ioukeeper/internal/client/models"
	"github.com/dmitrijs2005/ioukeeper/internal/client/query"
	"github.com/dmitrijs2005/ioukeeper/internal/client/repositories/records"
	"github.com/dmitrijs2005/ioukeeper/internal/client/resolver"
	"github.com/dmitrijs2005/ioukeeper/internal/client/session"
	"github.com/dmitrijs2005/ioukeeper/internal/common"
	"github.com/dmitrijs2005/ioukeeper/internal/dbx"
	"github.com/dmitrijs2005/ioukeeper/internal/logging"
	"github.com/dmitrijs2005/ioukeeper/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerService defines the record operations used by the CLI.
//
// Contract:
//   - Refresh: run one fetch cycle and publish its views. A failed fetch keeps
//     the previously published set; a cycle overtaken by a newer one is
//     discarded.
//   - Views, Snapshot, Search, Suggest: read the published set, never block on
//     I/O.
//   - Pay, Forgive, Create: invoke the engine, then refresh.
//   - LoadCached: publish the locally cached records if nothing is published.
//   - Rebind: re-derive the published views for the identity of a new
//     credential.
//   - Reset: drop the published set and the cache.
type LedgerService interface {
	Refresh(ctx context.Context) ([]models.View, error)
	Views() []models.View
	Snapshot() Snapshot
	Search(set *query.Set) []models.View
	Suggest() []string
	Pay(ctx context.Context, id string, amount decimal.Decimal) error
	Forgive(ctx context.Context, id string) error
	Create(ctx context.Context, payeeEmail string, amount decimal.Decimal, description string) (models.Record, error)
	LoadCached(ctx context.Context) ([]models.View, error)
	Rebind(ctx context.Context, email string)
	Reset(ctx context.Context) error
}

// Sessions is the part of *session.Manager the ledger needs.
type Sessions interface {
	EnsureFresh(ctx context.Context) (*session.Credential, error)
	Current() *session.Credential
}

// Fetcher lists raw records. *engine.Client implements it.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]models.Record, error)
}

// Reconciler settles derived amounts. *reconcile.Reconciler implements it.
type Reconciler interface {
	ReconcileAll(ctx context.Context, views []models.View) []models.View
}

// Invoker runs actions. *actions.Invoker implements it.
type Invoker interface {
	Invoke(ctx context.Context, actionURL string, payload map[string]any) error
	Create(ctx context.Context, req actions.CreateRequest) (models.Record, error)
}

// Snapshot is an immutable published set.
type Snapshot struct {
	Views     []models.View
	FetchedAt time.Time
	// Cached is true when the views were built from the local cache and not
	// from a live fetch.
	Cached bool
}

// LedgerOptions wire a LedgerService. DB may be nil, which disables the
// local cache.
type LedgerOptions struct {
	Sessions   Sessions
	Fetcher    Fetcher
	Resolver   *resolver.Resolver
	Reconciler Reconciler
	Invoker    Invoker
	DB         *sql.DB
	Logger     logging.Logger
	Metrics    metrics.Recorder
	Now        func() time.Time
}

type ledgerService struct {
	sessions   Sessions
	fetcher    Fetcher
	resolver   *resolver.Resolver
	reconciler Reconciler
	invoker    Invoker
	db         *sql.DB
	logger     logging.Logger
	metrics    metrics.Recorder
	now        func() time.Time

	generation atomic.Uint64

	mu        sync.RWMutex
	published uint64
	snap      Snapshot
	// email is the identity snap was derived for.
	email string
}

// NewLedgerService constructs a LedgerService from its collaborators.
func NewLedgerService(opts LedgerOptions) LedgerService {
	s := &ledgerService{
		sessions:   opts.Sessions,
		fetcher:    opts.Fetcher,
		resolver:   opts.Resolver,
		reconciler: opts.Reconciler,
		invoker:    opts.Invoker,
		db:         opts.DB,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if s.resolver == nil {
		s.resolver = resolver.New("")
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *ledgerService) getRecordsRepo(db dbx.DBTX) records.Repository {
	return records.NewSQLiteRepository(db)
}

// Refresh runs one fetch cycle: fetch, resolve, reconcile, publish.
func (s *ledgerService) Refresh(ctx context.Context) ([]models.View, error) {
	cycle := s.generation.Add(1)
	logger := s.logger.With("cycle_id", uuid.NewString(), "generation", cycle)
	start := s.now()

	cred, err := s.sessions.EnsureFresh(ctx)
	if err != nil {
		s.metrics.RecordFetchCycle(metrics.OutcomeError)
		logger.Warn(ctx, "fetch cycle aborted", "error", err)
		return nil, err
	}

	recs, err := s.fetcher.FetchAll(ctx)
	if err != nil {
		s.metrics.RecordFetchCycle(metrics.OutcomeError)
		logger.Warn(ctx, "fetch failed, keeping last published set", "error", err)
		return nil, err
	}

	views := s.reconciler.ReconcileAll(ctx, s.resolver.Views(recs, cred.Email()))
	fetchedAt := s.now()

	if !s.publish(cycle, cred.Email(), Snapshot{Views: views, FetchedAt: fetchedAt}) {
		s.metrics.RecordFetchCycle(metrics.OutcomeStale)
		logger.Debug(ctx, "fetch cycle overtaken, result discarded")
		return s.Views(), nil
	}

	s.metrics.RecordFetchCycle(metrics.OutcomeOK)
	s.metrics.RecordFetchLatency(fetchedAt.Sub(start))
	logger.Info(ctx, "fetch cycle published", "records", len(views))

	if err := s.saveCache(ctx, recs, fetchedAt); err != nil {
		logger.Warn(ctx, "failed to update local cache", "error", err)
	}
	return views, nil
}

// publish installs snap unless a newer cycle already published.
func (s *ledgerService) publish(cycle uint64, email string, snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cycle <= s.published {
		return false
	}
	s.published = cycle
	s.snap = snap
	s.email = email
	return true
}

func (s *ledgerService) saveCache(ctx context.Context, recs []models.Record, fetchedAt time.Time) error {
	if s.db == nil {
		return nil
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.getRecordsRepo(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		return repo.InsertAll(ctx, recs, fetchedAt)
	})
}

func (s *ledgerService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *ledgerService) Views() []models.View {
	return s.Snapshot().Views
}

func (s *ledgerService) Search(set *query.Set) []models.View {
	return query.Filter(s.Views(), set)
}

func (s *ledgerService) Suggest() []string {
	return query.Suggest(s.Views())
}

func (s *ledgerService) find(id string) (models.View, error) {
	for _, v := range s.Views() {
		if v.ID == id {
			return v, nil
		}
	}
	return models.View{}, fmt.Errorf("iou %q: %w", id, common.ErrNotFound)
}

// Pay pays amount on the record with the given id. Whether the amount is
// acceptable is up to the engine.
func (s *ledgerService) Pay(ctx context.Context, id string, amount decimal.Decimal) error {
	v, err := s.find(id)
	if err != nil {
		return err
	}
	if !v.CanPay {
		return fmt.Errorf("pay %q: %w", id, common.ErrNotPermitted)
	}
	if !amount.IsPositive() {
		return &actions.Error{Action: models.ActionPay, Message: "amount must be positive"}
	}

	if err := s.invoker.Invoke(ctx, v.Actions[models.ActionPay], actions.PayPayload(amount)); err != nil {
		return err
	}
	s.refreshAfter(ctx, models.ActionPay)
	return nil
}

// Forgive forgives the record with the given id.
func (s *ledgerService) Forgive(ctx context.Context, id string) error {
	v, err := s.find(id)
	if err != nil {
		return err
	}
	if !v.CanForgive {
		return fmt.Errorf("forgive %q: %w", id, common.ErrNotPermitted)
	}

	if err := s.invoker.Invoke(ctx, v.Actions[models.ActionForgive], nil); err != nil {
		return err
	}
	s.refreshAfter(ctx, models.ActionForgive)
	return nil
}

// Create issues a new IOU from the current user to payeeEmail.
func (s *ledgerService) Create(ctx context.Context, payeeEmail string, amount decimal.Decimal, description string) (models.Record, error) {
	cred, err := s.sessions.EnsureFresh(ctx)
	if err != nil {
		return models.Record{}, err
	}

	rec, err := s.invoker.Create(ctx, actions.CreateRequest{
		IssuerEmail: cred.Email(),
		PayeeEmail:  payeeEmail,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return models.Record{}, err
	}
	s.refreshAfter(ctx, "create")
	return rec, nil
}

// refreshAfter re-runs the pipeline after a successful action. The action
// already happened, so a failed refresh only leaves the previous set in place.
func (s *ledgerService) refreshAfter(ctx context.Context, action string) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "refresh after action failed", "action", action, "error", err)
	}
}

// LoadCached publishes views built from the local cache, with face amounts
// only. It does nothing when a live set is already published.
func (s *ledgerService) LoadCached(ctx context.Context) ([]models.View, error) {
	if s.db == nil {
		return nil, nil
	}

	recs, fetchedAt, err := s.getRecordsRepo(s.db).GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read local cache: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	email := ""
	if cred := s.sessions.Current(); cred != nil {
		email = cred.Email()
	}
	views := s.resolver.Views(recs, email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published != 0 {
		return s.snap.Views, nil
	}
	s.snap = Snapshot{Views: views, FetchedAt: fetchedAt, Cached: true}
	s.email = email
	s.logger.Info(ctx, "loaded cached records", "records", len(views), "fetched_at", fetchedAt)
	return views, nil
}

// Rebind re-derives roles and permitted actions of the published views for
// email. Reconciled amounts do not depend on the viewer and are kept.
func (s *ledgerService) Rebind(ctx context.Context, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if email == s.email {
		return
	}
	s.email = email
	if len(s.snap.Views) == 0 {
		return
	}

	views := make([]models.View, 0, len(s.snap.Views))
	for _, old := range s.snap.Views {
		v := s.resolver.View(old.Record, email)
		if old.Reconciled {
			v = v.WithAmountOwed(old.AmountOwed.Decimal)
		}
		views = append(views, v)
	}
	s.snap = Snapshot{Views: views, FetchedAt: s.snap.FetchedAt, Cached: s.snap.Cached}
	s.logger.Debug(ctx, "published views re-derived for new identity", "records", len(views))
}

// Reset drops the published set and the cache. Cycles still in flight are
// discarded when they finish.
func (s *ledgerService) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.published = s.generation.Add(1)
	s.snap = Snapshot{}
	s.email = ""
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.getRecordsRepo(s.db).Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear local cache: %w", err)
	}
	return nil
}
