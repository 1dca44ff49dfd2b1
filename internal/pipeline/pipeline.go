// Package pipeline orchestrates the session-scoped ingestion flow:
// start-session, chunked uploads, finish-session, and cached retrieval.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mkarlin/listening-insights/internal/events"
	"github.com/mkarlin/listening-insights/internal/insights"
	"github.com/mkarlin/listening-insights/internal/warehouse"
)

// WorkspaceStore provisions and tears down per-session workspaces.
type WorkspaceStore interface {
	Provision(ctx context.Context, identity string) (string, error)
	Teardown(ctx context.Context, key string) error
}

// RowLoader streams normalized events into a workspace.
type RowLoader interface {
	Load(ctx context.Context, key string, rows []events.Event) error
}

// Aggregator produces the insights document for a workspace.
type Aggregator interface {
	Aggregate(ctx context.Context, key string) (*insights.Document, error)
}

// InsightsStore caches the latest document per workspace key.
type InsightsStore interface {
	Put(ctx context.Context, key string, doc *insights.Document) error
	Get(ctx context.Context, key string) (*insights.Document, error)
}

// Enricher augments a document with catalog metadata. Optional: a Service
// with a nil Enricher skips enrichment entirely.
type Enricher interface {
	Fetch(ctx context.Context, refs insights.CatalogRefs) (*insights.Enrichment, error)
}

// Config wires a Service.
type Config struct {
	Workspaces WorkspaceStore
	Loader     RowLoader
	Aggregator Aggregator
	Cache      InsightsStore
	Enricher   Enricher
	Logger     *log.Logger
}

// Service runs the ingestion-and-aggregation pipeline. Operations for the
// same workspace key are serialized through a per-key lock, so a
// start-session racing a finish-session for one identity resolves to a
// defined order; sessions for distinct identities proceed concurrently.
type Service struct {
	workspaces WorkspaceStore
	loader     RowLoader
	aggregator Aggregator
	cache      InsightsStore
	enricher   Enricher
	logger     *log.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock serializes operations on one workspace key. Entries are
// reference-counted so the lock map does not grow with every identity the
// process ever saw.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a pipeline Service.
func New(cfg Config) *Service {
	return &Service{
		workspaces: cfg.Workspaces,
		loader:     cfg.Loader,
		aggregator: cfg.Aggregator,
		cache:      cfg.Cache,
		enricher:   cfg.Enricher,
		logger:     cfg.Logger,
		locks:      make(map[string]*keyLock),
	}
}

// acquire blocks until the caller holds the lock for the workspace key.
func (s *Service) acquire(key string) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

// release unlocks the key lock and drops its map entry once no other
// operation is waiting on it.
func (s *Service) release(key string, l *keyLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

// StartSession provisions a fresh workspace for the identity and returns
// its key, the capability token the client uses for the rest of the
// session. A leftover workspace from an abandoned session is discarded.
func (s *Service) StartSession(ctx context.Context, identity string) (string, error) {
	key := warehouse.KeyFor(identity)
	lock := s.acquire(key)
	defer s.release(key, lock)

	key, err := s.workspaces.Provision(ctx, identity)
	if err != nil {
		return "", err
	}
	s.logger.Info("session started", "workspace", key)
	return key, nil
}

// Upload normalizes the uploaded documents and loads the concatenated row
// sequence into the workspace. A document that is not valid JSON fails the
// whole call before any rows are written; a load failure after that leaves
// earlier batches visible and the session must be treated as failed.
func (s *Service) Upload(ctx context.Context, key string, docs [][]byte) error {
	var rows []events.Event
	for i, doc := range docs {
		evts, err := events.ParseDocument(doc)
		if err != nil {
			return fmt.Errorf("file %d: %w", i, err)
		}
		rows = append(rows, evts...)
	}

	lock := s.acquire(key)
	defer s.release(key, lock)

	if err := s.loader.Load(ctx, key, rows); err != nil {
		return err
	}
	s.logger.Info("upload loaded", "workspace", key, "files", len(docs), "rows", len(rows))
	return nil
}

// FinishSession aggregates the workspace into an insights document,
// attaches catalog enrichment when available, caches the document, and
// tears the workspace down. Teardown runs on every path; enrichment
// failure is logged and never fails the session; nothing is cached unless
// aggregation fully succeeded.
func (s *Service) FinishSession(ctx context.Context, key string) (*insights.Document, error) {
	lock := s.acquire(key)
	defer s.release(key, lock)

	// Teardown must still run when the request context is already dead.
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := s.workspaces.Teardown(cleanupCtx, key); err != nil {
			s.logger.Error("workspace teardown failed", "workspace", key, "err", err)
		}
	}()

	doc, err := s.aggregator.Aggregate(ctx, key)
	if err != nil {
		return nil, err
	}

	if s.enricher != nil {
		enr, err := s.enricher.Fetch(ctx, insights.CollectRefs(doc))
		if err != nil {
			s.logger.Warn("enrichment skipped", "workspace", key, "err", err)
		} else {
			doc.Enrichment = enr
		}
	}

	if err := s.cache.Put(ctx, key, doc); err != nil {
		return nil, err
	}
	s.logger.Info("session finished", "workspace", key, "records", doc.BasicInsights.TotalRecords)
	return doc, nil
}

// GetInsights returns the cached document for the identity, or
// warehouse.ErrNotFound when no session has completed for it yet.
func (s *Service) GetInsights(ctx context.Context, identity string) (*insights.Document, error) {
	return s.cache.Get(ctx, warehouse.KeyFor(identity))
}
