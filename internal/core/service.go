package core

// service.go is the entry point used by the web layer. It owns the record
// store and the lifecycle of submission runs: starting them in the
// background, broadcasting progress to subscribers, and retaining results
// until they are collected.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunTimeout is the maximum duration for one submission run.
var RunTimeout = 10 * time.Minute

// resultRetention is how long a finished run stays queryable.
var resultRetention = 30 * time.Minute

// Service wires the store, the uploader, and run bookkeeping together.
type Service struct {
	store   *Store
	cfg     RunConfig
	delay   time.Duration
	timeout time.Duration
	limiter *RunLimiter

	// newClient builds the submission client per run; replaced in tests.
	newClient func() SubmissionClient

	mu      sync.RWMutex
	runs    map[string]*activeRun
	columns []string // source header order, for failed-record export

	logger *slog.Logger
}

type activeRun struct {
	ID         string
	Cancel     context.CancelFunc
	Progress   RunProgress
	Result     *RunResult
	Err        error
	Done       chan struct{}
	Listeners  []chan RunProgress
	ListenerMu sync.Mutex
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Run            RunConfig
	RequestDelay   time.Duration
	RequestTimeout time.Duration
	RunTimeout     time.Duration

	// NewClient overrides the submission client factory; used by tests to
	// substitute a fake. Nil means the standard HTTP client.
	NewClient func() SubmissionClient
}

// NewService creates a Service with an empty store.
func NewService(opts ServiceOptions) *Service {
	if opts.RequestDelay <= 0 {
		opts.RequestDelay = DefaultRequestDelay
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = RunTimeout
	}

	newClient := opts.NewClient
	if newClient == nil {
		newClient = func() SubmissionClient {
			return NewHTTPSubmissionClient(opts.Run.Endpoint, opts.Run.BearerToken, opts.Run.TenantKey, opts.RequestTimeout)
		}
	}

	return &Service{
		store:     NewStore(),
		cfg:       opts.Run,
		delay:     opts.RequestDelay,
		timeout:   opts.RunTimeout,
		limiter:   NewRunLimiter(),
		newClient: newClient,
		runs:      make(map[string]*activeRun),
		logger:    slog.Default(),
	}
}

// LoadTable ingests a raw source table into the store, replacing any
// previous load. docs may be nil when no geometry folder accompanies the
// table.
func (s *Service) LoadTable(data []byte, docs DocumentSource) (Stats, error) {
	header, rows, err := ParseTable(data)
	if err != nil {
		return Stats{}, err
	}

	records := Ingest(rows, docs)
	s.store.Load(records)

	s.mu.Lock()
	s.columns = header
	s.mu.Unlock()

	s.logger.Info("table loaded",
		"rows", len(rows),
		"records", len(records),
		"skipped", len(rows)-len(records),
	)
	return s.store.Stats(), nil
}

// AttachFolder bulk-attaches geometry documents from a set of files, keyed
// by file name. Files not matching the folio_<key>.geojson convention are
// ignored. Returns the number of records that received a document.
func (s *Service) AttachFolder(files map[string][]byte) int {
	docs := make(map[string][]byte, len(files))
	for name, data := range files {
		if folio, ok := FolioFromFilename(name); ok {
			docs[folio] = data
		}
	}
	return s.store.AttachAll(docs)
}

// Records returns a snapshot of the current records in load order.
func (s *Service) Records() []*InterventionRecord {
	return s.store.All()
}

// Stats returns the current review summary.
func (s *Service) Stats() Stats {
	return s.store.Stats()
}

// UpdateRecord applies an edit patch and re-validates the record.
func (s *Service) UpdateRecord(id int, patch Patch) (*InterventionRecord, error) {
	return s.store.Update(id, patch)
}

// AttachRecordGeometry attaches a single manually supplied document.
func (s *Service) AttachRecordGeometry(id int, raw []byte) error {
	return s.store.AttachGeometry(id, raw)
}

// DeleteRecord removes one record.
func (s *Service) DeleteRecord(id int) error {
	return s.store.Delete(id)
}

// DeleteMissingGeometry removes every record still pending a geometry
// document.
func (s *Service) DeleteMissingGeometry() (int, error) {
	return s.store.DeleteWhere(MissingGeometry)
}

// DeleteInvalid removes every record not ready for upload.
func (s *Service) DeleteInvalid() (int, error) {
	return s.store.DeleteWhere(Invalid)
}

// StartRun begins an asynchronous submission run over the current store
// snapshot and returns the run ID immediately.
//
// Fatal preconditions are checked synchronously: an incomplete config or an
// already-active run is reported to the caller before anything starts.
func (s *Service) StartRun(ctx context.Context) (string, error) {
	if err := s.cfg.Validate(); err != nil {
		return "", err
	}
	if !s.limiter.TryAcquire() {
		return "", ErrRunInProgress
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(context.Background(), s.timeout)

	run := &activeRun{
		ID:     runID,
		Cancel: cancel,
		Done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	records := s.store.All()
	uploader := NewUploader(s.newClient(), s.cfg, s.delay)

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			run.closeListeners()
			close(run.Done)
			s.cleanup(runID, resultRetention)
		}()

		result, err := uploader.Run(runCtx, records, run.notifyProgress)
		run.Result = result
		run.Err = err
	}()

	return runID, nil
}

// SubscribeProgress returns a channel receiving progress updates for a run.
// The channel is closed when the run completes.
func (s *Service) SubscribeProgress(runID string) (<-chan RunProgress, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	ch := make(chan RunProgress, 10)

	run.ListenerMu.Lock()
	run.Listeners = append(run.Listeners, ch)
	select {
	case ch <- run.Progress:
	default:
	}
	run.ListenerMu.Unlock()

	return ch, nil
}

// CancelRun cancels an in-progress run. The loop notices at the top of its
// next iteration.
func (s *Service) CancelRun(runID string) error {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}

	run.Cancel()
	return nil
}

// RunResultFor blocks until the run completes and returns its result. A
// cancelled run returns its partial result alongside the context error.
func (s *Service) RunResultFor(runID string) (*RunResult, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	<-run.Done
	return run.Result, run.Err
}

// ResultsArchive bundles a finished run's logs into a zip archive.
func (s *Service) ResultsArchive(runID string) ([]byte, error) {
	result, err := s.RunResultFor(runID)
	if result == nil {
		return nil, err
	}

	s.mu.RLock()
	columns := s.columns
	s.mu.RUnlock()

	return BuildResultsArchive(result, s.cfg, columns)
}

// WaitForRuns blocks until any active run completes, for graceful shutdown.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ActiveRuns returns the number of in-flight runs (0 or 1).
func (s *Service) ActiveRuns() int {
	return s.limiter.ActiveCount()
}

// cleanup drops a finished run's bookkeeping after the retention window.
func (s *Service) cleanup(runID string, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

// notifyProgress records the latest progress and fans it out to listeners.
// Slow listeners are skipped rather than blocking the submission loop.
func (r *activeRun) notifyProgress(p RunProgress) {
	r.ListenerMu.Lock()
	defer r.ListenerMu.Unlock()

	r.Progress = p
	for _, ch := range r.Listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

func (r *activeRun) closeListeners() {
	r.ListenerMu.Lock()
	defer r.ListenerMu.Unlock()

	for _, ch := range r.Listeners {
		close(ch)
	}
	r.Listeners = nil
}
