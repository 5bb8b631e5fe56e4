package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/physio-outreach/internal/email"
	"github.com/jwalitptl/physio-outreach/internal/model"
	"github.com/jwalitptl/physio-outreach/internal/service/outreach"
	"github.com/jwalitptl/physio-outreach/pkg/logger"
	"github.com/jwalitptl/physio-outreach/pkg/messaging"
	"github.com/jwalitptl/physio-outreach/pkg/metrics"
)

// MessageScanCompleted is the type of the message published after each run.
const MessageScanCompleted = "outreach.scan.completed"

type Scanner interface {
	Run(ctx context.Context) (*outreach.Report, error)
}

// ScanCompleted is the payload of MessageScanCompleted.
type ScanCompleted struct {
	FinishedAt time.Time              `json:"finished_at"`
	Candidates []model.AnalysisResult `json:"candidates"`
	Stats      model.RunStats         `json:"stats"`
}

type ScanWorkerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// ScanWorker runs the outreach scan periodically and hands the results to
// the broker and the mailer, either of which may be nil.
type ScanWorker struct {
	scanner   Scanner
	publisher *messaging.Publisher
	mailer    email.Service
	config    ScanWorkerConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewScanWorker(
	scanner Scanner,
	publisher *messaging.Publisher,
	mailer email.Service,
	config ScanWorkerConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *ScanWorker {
	if config.Interval <= 0 {
		panic("Interval must be greater than 0")
	}
	return &ScanWorker{
		scanner:   scanner,
		publisher: publisher,
		mailer:    mailer,
		config:    config,
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}
}

func (w *ScanWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting scan worker", "interval", w.config.Interval.String())

	if w.config.RunOnStart {
		w.runAndLog(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down scan worker")
			return
		case <-ticker.C:
			w.runAndLog(ctx)
		}
	}
}

func (w *ScanWorker) runAndLog(ctx context.Context) {
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error(err, "Scan run failed")
	}
}

// RunOnce scans and delivers the results. Delivery failures do not stop the
// other deliveries; they are returned together.
func (w *ScanWorker) RunOnce(ctx context.Context) error {
	report, err := w.scanner.Run(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	results := report.Results()
	var errs []error

	if w.publisher != nil {
		err := w.publisher.Publish(ctx, MessageScanCompleted, ScanCompleted{
			FinishedAt: w.now(),
			Candidates: results,
			Stats:      report.Stats,
		})
		w.metrics.ObservePublish(err)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if w.mailer != nil {
		if err := w.mailer.SendDigest(ctx, results, report.Stats); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
