package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/downloader"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/extractor"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/metrics"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/retry"
)

// SyncStatus is a snapshot of the runner for the status endpoint.
type SyncStatus struct {
	State      models.SyncState   `json:"state"`
	Running    bool               `json:"running"`
	Period     *models.Period     `json:"period,omitempty"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	LastReport *models.SyncReport `json:"last_report,omitempty"`
}

// SyncService runs the download → extract → reconcile pipeline.
type SyncService interface {
	// Run syncs one period. A second call while a run is in progress returns
	// apperrors.ErrSyncInProgress immediately. A non-nil report is returned
	// for every run that started, including failed ones.
	Run(ctx context.Context, period models.Period) (*models.SyncReport, error)
	// RunSync syncs the previous calendar month.
	RunSync(ctx context.Context) (*models.SyncReport, error)
	Status() SyncStatus
}

type syncRunner struct {
	runLock sync.Mutex

	mu        sync.RWMutex
	state     models.SyncState
	period    *models.Period
	startedAt *time.Time
	last      *models.SyncReport

	downloader downloader.Downloader
	extractor  extractor.Extractor
	reconciler Reconciler
	metrics    *metrics.SyncMetrics
	logger     *zap.Logger
	now        func() time.Time
}

var _ SyncService = (*syncRunner)(nil)

// NewSyncRunner wires the pipeline stages. m may be nil.
func NewSyncRunner(
	dl downloader.Downloader,
	ex extractor.Extractor,
	rec Reconciler,
	m *metrics.SyncMetrics,
	logger *zap.Logger,
) SyncService {
	return &syncRunner{
		state:      models.SyncStateIdle,
		downloader: dl,
		extractor:  ex,
		reconciler: rec,
		metrics:    m,
		logger:     logger.Named("sync"),
		now:        time.Now,
	}
}

func (s *syncRunner) RunSync(ctx context.Context) (*models.SyncReport, error) {
	return s.Run(ctx, models.PreviousPeriod(s.now()))
}

func (s *syncRunner) Run(ctx context.Context, period models.Period) (*models.SyncReport, error) {
	if !s.runLock.TryLock() {
		if s.metrics != nil {
			s.metrics.RunsRejected.Inc()
		}
		s.logger.Warn("Sync trigger rejected, run already in progress", zap.String("period", period.String()))
		return nil, apperrors.ErrSyncInProgress
	}
	defer s.runLock.Unlock()

	report := models.NewSyncReport(period, s.now())
	logger := s.logger.With(zap.String("run_id", report.RunID.String()), zap.String("period", period.String()))
	logger.Info("Sync run started")

	s.mu.Lock()
	s.period = &period
	s.startedAt = &report.StartedAt
	s.mu.Unlock()

	s.transition(report, models.SyncStateDownloading)
	path, err := s.downloader.Fetch(ctx, period)
	if err != nil {
		return s.fail(report, logger, fmt.Errorf("download failed: %w", err))
	}

	s.transition(report, models.SyncStateExtracting)
	stream, err := s.extractor.Extract(path)
	if err != nil {
		return s.fail(report, logger, fmt.Errorf("extraction failed: %w", err))
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			logger.Warn("Failed to close dump stream", zap.Error(cerr))
		}
	}()

	s.transition(report, models.SyncStateReconciling)
	if err := s.reconciler.Reconcile(ctx, stream, report); err != nil {
		return s.fail(report, logger, fmt.Errorf("reconciliation stopped: %w", err))
	}

	report.Finish(models.SyncStateDone, s.now())
	s.finish(report)
	logger.Info("Sync run finished",
		zap.Int("seen", report.Seen),
		zap.Int("inserted", report.Inserted),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *syncRunner) transition(report *models.SyncReport, state models.SyncState) {
	report.State = state
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *syncRunner) fail(report *models.SyncReport, logger *zap.Logger, err error) (*models.SyncReport, error) {
	report.Error = err.Error()
	report.Retryable = apperrors.Is(err, apperrors.KindTransport) && retry.IsRetryable(err)
	report.Finish(models.SyncStateFailed, s.now())
	s.finish(report)
	logger.Error("Sync run failed",
		zap.String("kind", string(apperrors.KindOf(err))),
		zap.Int("writes", report.Writes()),
		zap.Bool("retryable", report.Retryable),
		zap.Error(err))
	return report, err
}

func (s *syncRunner) finish(report *models.SyncReport) {
	s.mu.Lock()
	s.state = report.State
	s.period = nil
	s.startedAt = nil
	s.last = report
	s.mu.Unlock()

	if s.metrics == nil {
		return
	}
	s.metrics.RunsTotal.WithLabelValues(string(report.State)).Inc()
	s.metrics.RunDuration.Observe(report.Duration.Seconds())
	s.metrics.RecordsTotal.WithLabelValues("inserted").Add(float64(report.Inserted))
	s.metrics.RecordsTotal.WithLabelValues("updated").Add(float64(report.Updated))
	s.metrics.RecordsTotal.WithLabelValues("duplicate").Add(float64(report.SkippedDuplicate))
	s.metrics.RecordsTotal.WithLabelValues("failed").Add(float64(report.Failed))
	if report.State == models.SyncStateDone {
		s.metrics.LastSuccessTime.Set(float64(report.FinishedAt.Unix()))
	}
}

func (s *syncRunner) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	running := s.period != nil
	status := SyncStatus{
		State:      s.state,
		Running:    running,
		LastReport: s.last,
	}
	if running {
		p := *s.period
		t := *s.startedAt
		status.Period = &p
		status.StartedAt = &t
	}
	return status
}
