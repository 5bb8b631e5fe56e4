// Package outreach finds patients who missed their latest appointment while
// their notes report an improvement of lower-back pain.
package outreach

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/physio-outreach/internal/classifier"
	"github.com/jwalitptl/physio-outreach/internal/model"
	"github.com/jwalitptl/physio-outreach/internal/repository"
	"github.com/jwalitptl/physio-outreach/pkg/logger"
	"github.com/jwalitptl/physio-outreach/pkg/metrics"
	"github.com/jwalitptl/physio-outreach/pkg/nlp"
)

const tracerName = "github.com/jwalitptl/physio-outreach/internal/service/outreach"

// Report is the outcome of one run.
type Report struct {
	Candidates []model.Candidate
	Stats      model.RunStats
}

// Results drops the evidence from the candidates.
func (r *Report) Results() []model.AnalysisResult {
	results := make([]model.AnalysisResult, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		results = append(results, c.AnalysisResult)
	}
	return results
}

type Service struct {
	opener    repository.Opener
	selector  *Selector
	topic     *classifier.TopicMatcher
	detector  *classifier.ImprovementDetector
	secondary classifier.SecondaryClassifier
	metrics   *metrics.Metrics
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

// WithSecondary enables a second opinion for patients whose notes mention
// the topic but in which no improvement sentence was found.
func WithSecondary(c classifier.SecondaryClassifier) Option {
	return func(s *Service) { s.secondary = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLexicon(lexicon classifier.Lexicon, normalizer nlp.Normalizer) Option {
	return func(s *Service) {
		s.topic = classifier.NewTopicMatcher(normalizer, lexicon)
		s.detector = classifier.NewImprovementDetector(normalizer, lexicon)
	}
}

func NewService(opener repository.Opener, normalizer nlp.Normalizer, window time.Duration, opts ...Option) *Service {
	s := &Service{
		opener:   opener,
		selector: NewSelector(window),
		topic:    classifier.NewTopicMatcher(normalizer, classifier.ItalianLowerBackPain),
		detector: classifier.NewImprovementDetector(normalizer, classifier.ItalianLowerBackPain),
		logger:   logger.Nop(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze returns the patients to contact, in store order.
func (s *Service) Analyze(ctx context.Context) ([]model.AnalysisResult, error) {
	report, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	return report.Results(), nil
}

// AnalyzeDetailed is Analyze with the sentences that confirmed each patient.
func (s *Service) AnalyzeDetailed(ctx context.Context) ([]model.Candidate, error) {
	report, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	return report.Candidates, nil
}

// Run scans every active patient once. Any store error aborts the run and
// no partial result is returned.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "outreach.Run")
	defer span.End()

	started := s.now()
	report, err := s.run(ctx, started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveRun(metrics.RunSummary{}, err)
		s.logger.Error(err, "outreach scan failed")
		return nil, err
	}

	report.Stats.Duration = s.now().Sub(started)
	st := report.Stats
	span.SetAttributes(
		attribute.Int("outreach.scanned", st.Scanned),
		attribute.Int("outreach.emitted", st.Emitted),
	)
	s.metrics.ObserveRun(metrics.RunSummary{
		NoAppointments: st.NoAppointments,
		NotEligible:    st.NotEligible,
		TopicRejected:  st.TopicRejected,
		NoImprovement:  st.NoImprovement,
		Emitted:        st.Emitted,
		Duration:       st.Duration,
	}, nil)
	s.logger.Info("outreach scan finished",
		"scanned", st.Scanned,
		"no_appointments", st.NoAppointments,
		"not_eligible", st.NotEligible,
		"topic_rejected", st.TopicRejected,
		"no_improvement", st.NoImprovement,
		"emitted", st.Emitted,
		"duration", st.Duration.String(),
	)
	return report, nil
}

func (s *Service) run(ctx context.Context, now time.Time) (*Report, error) {
	store, err := s.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			s.logger.Warn("failed to close store session", "error", cerr.Error())
		}
	}()

	patients, err := store.Patients().ListByStatus(ctx, model.PatientStatusActive)
	if err != nil {
		return nil, err
	}

	s.logger.Info("outreach scan started",
		"patients", len(patients),
		"cutoff", s.selector.Cutoff(now).Format(time.RFC3339),
	)

	report := &Report{Candidates: []model.Candidate{}}
	for _, patient := range patients {
		report.Stats.Scanned++
		candidate, err := s.evaluate(ctx, store, patient, now, &report.Stats)
		if err != nil {
			return nil, fmt.Errorf("patient %s: %w", patient.ID, err)
		}
		if candidate != nil {
			report.Candidates = append(report.Candidates, *candidate)
			report.Stats.Emitted++
		}
	}
	return report, nil
}

func (s *Service) evaluate(ctx context.Context, store repository.Store, patient *model.Patient, now time.Time, stats *model.RunStats) (*model.Candidate, error) {
	sel, outcome, err := s.selector.Select(ctx, store, patient, now)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case OutcomeNoAppointments:
		stats.NoAppointments++
		s.logger.Debug("patient skipped", "patient_id", patient.ID.String(), "gate", outcome.String())
		return nil, nil
	case OutcomeNotEligible:
		stats.NotEligible++
		s.logger.Debug("patient skipped", "patient_id", patient.ID.String(), "gate", outcome.String())
		return nil, nil
	}

	if !s.topic.Matches(sel.Text) {
		stats.TopicRejected++
		s.logger.Debug("patient skipped", "patient_id", patient.ID.String(), "gate", "topic", "notes", sel.Notes)
		return nil, nil
	}

	source := model.DecisionHeuristic
	evidence := s.detector.ConfirmedImprovements(sel.Text)
	if len(evidence) == 0 {
		if !s.confirmSecondary(ctx, patient, sel.Text) {
			stats.NoImprovement++
			s.logger.Debug("patient skipped", "patient_id", patient.ID.String(), "gate", "improvement")
			return nil, nil
		}
		source = model.DecisionSecondary
	}

	return &model.Candidate{
		AnalysisResult: model.AnalysisResult{
			PatientID:            patient.ID,
			FirstName:            patient.FirstName,
			LastName:             patient.LastName,
			Phone:                patient.Phone,
			SkippedAppointmentAt: sel.Appointment.ScheduledAt,
		},
		Evidence: evidence,
		Source:   source,
	}, nil
}

// confirmSecondary treats a failing classifier as a "no".
func (s *Service) confirmSecondary(ctx context.Context, patient *model.Patient, text string) bool {
	if s.secondary == nil {
		return false
	}

	ctx, span := s.tracer.Start(ctx, "outreach.SecondaryClassifier")
	defer span.End()

	ok, err := s.secondary.Confirm(ctx, text)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveSecondary("error")
		s.logger.Warn("secondary classifier failed", "patient_id", patient.ID.String(), "error", err.Error())
		return false
	}
	if ok {
		s.metrics.ObserveSecondary("yes")
	} else {
		s.metrics.ObserveSecondary("no")
	}
	span.SetAttributes(attribute.Bool("outreach.confirmed", ok))
	return ok
}
