package outreach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physio-outreach/internal/model"
	"github.com/jwalitptl/physio-outreach/internal/repository/memory"
	"github.com/jwalitptl/physio-outreach/pkg/metrics"
	"github.com/jwalitptl/physio-outreach/pkg/nlp"
)

const window = 90 * 24 * time.Hour

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return now.AddDate(0, 0, -d)
}

var italian *nlp.Resources

func resources(t *testing.T) *nlp.Resources {
	t.Helper()
	if italian == nil {
		res, err := nlp.Load(nlp.Italian)
		require.NoError(t, err)
		italian = res
	}
	return italian
}

// fixture builds a Dataset one patient at a time.
type fixture struct {
	ds memory.Dataset
}

func (f *fixture) patient(name string, status model.PatientStatus) *model.Patient {
	p := &model.Patient{
		Base:      model.Base{ID: uuid.New()},
		FirstName: name,
		LastName:  "Rossi",
		Phone:     "+39 333 0000000",
		Status:    status,
	}
	f.ds.Patients = append(f.ds.Patients, p)
	return p
}

func (f *fixture) appointment(p *model.Patient, at time.Time, status model.AppointmentStatus) *model.Appointment {
	a := &model.Appointment{Base: model.Base{ID: uuid.New()}, PatientID: p.ID, ScheduledAt: at, Status: status}
	f.ds.Appointments = append(f.ds.Appointments, a)
	return a
}

func (f *fixture) evaluation(p *model.Patient, at time.Time, text string) {
	f.ds.EvaluationNotes = append(f.ds.EvaluationNotes, &model.ClinicalNote{
		Base: model.Base{ID: uuid.New()}, PatientID: p.ID, RecordedAt: at, Description: text,
	})
}

func (f *fixture) diary(p *model.Patient, at time.Time, text string) {
	f.ds.TreatmentDiary = append(f.ds.TreatmentDiary, &model.ClinicalNote{
		Base: model.Base{ID: uuid.New()}, PatientID: p.ID, RecordedAt: at, Description: text,
	})
}

func (f *fixture) service(t *testing.T, opts ...Option) (*Service, *memory.Opener) {
	t.Helper()
	opener := memory.NewOpener(&f.ds)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewService(opener, resources(t), window, opts...), opener
}

const (
	improvedNote = "Riferisce dolore lombare al mattino. Il paziente riferisce un netto miglioramento."
	negatedNote  = "Riferisce dolore lombare al mattino. Nessun miglioramento rilevato."
)

type fakeSecondary struct {
	answer bool
	err    error
	calls  int
}

func (f *fakeSecondary) Confirm(ctx context.Context, text string) (bool, error) {
	f.calls++
	return f.answer, f.err
}

func TestAnalyzeEndToEnd(t *testing.T) {
	var f fixture
	p := f.patient("Giulia", model.PatientStatusActive)
	missed := f.appointment(p, daysAgo(40), model.AppointmentStatusNoShow)
	f.evaluation(p, daysAgo(10), improvedNote)

	svc, _ := f.service(t)
	results, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.AnalysisResult{
		PatientID:            p.ID,
		FirstName:            "Giulia",
		LastName:             "Rossi",
		Phone:                "+39 333 0000000",
		SkippedAppointmentAt: missed.ScheduledAt,
	}, results[0])

	candidates, err := svc.AnalyzeDetailed(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.DecisionHeuristic, candidates[0].Source)
	assert.Equal(t, []string{"Il paziente riferisce un netto miglioramento."}, candidates[0].Evidence)
}

func TestAnalyzeNegatedNoteExcluded(t *testing.T) {
	var f fixture
	p := f.patient("Giulia", model.PatientStatusActive)
	f.appointment(p, daysAgo(40), model.AppointmentStatusNoShow)
	f.evaluation(p, daysAgo(10), negatedNote)

	svc, _ := f.service(t)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Candidates)
	assert.Equal(t, 1, report.Stats.NoImprovement)
}

func TestAnalyzeGates(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		want  func(t *testing.T, st model.RunStats)
	}{
		{
			name: "inactive patient",
			setup: func(f *fixture) {
				p := f.patient("Luca", model.PatientStatusInactive)
				f.appointment(p, daysAgo(5), model.AppointmentStatusNoShow)
				f.evaluation(p, daysAgo(2), improvedNote)
			},
			want: func(t *testing.T, st model.RunStats) { assert.Equal(t, 0, st.Scanned) },
		},
		{
			name: "no appointments",
			setup: func(f *fixture) {
				p := f.patient("Luca", model.PatientStatusActive)
				f.evaluation(p, daysAgo(2), improvedNote)
			},
			want: func(t *testing.T, st model.RunStats) { assert.Equal(t, 1, st.NoAppointments) },
		},
		{
			name: "latest appointment attended",
			setup: func(f *fixture) {
				p := f.patient("Luca", model.PatientStatusActive)
				f.appointment(p, daysAgo(20), model.AppointmentStatusNoShow)
				f.appointment(p, daysAgo(5), model.AppointmentStatusAttended)
				f.evaluation(p, daysAgo(2), improvedNote)
			},
			want: func(t *testing.T, st model.RunStats) { assert.Equal(t, 1, st.NotEligible) },
		},
		{
			name: "latest appointment outside the window",
			setup: func(f *fixture) {
				p := f.patient("Luca", model.PatientStatusActive)
				f.appointment(p, daysAgo(100), model.AppointmentStatusCancelled)
				f.evaluation(p, daysAgo(2), improvedNote)
			},
			want: func(t *testing.T, st model.RunStats) { assert.Equal(t, 1, st.NotEligible) },
		},
		{
			name: "other status",
			setup: func(f *fixture) {
				p := f.patient("Luca", model.PatientStatusActive)
				f.appointment(p, daysAgo(5), model.AppointmentStatusOther)
				f.evaluation(p, daysAgo(2), improvedNote)
			},
			want: func(t *testing.T, st model.RunStats) { assert.Equal(t, 1, st.NotEligible) },
		},
		{
			name: "no topic",
			setup: func(f *fixture) {
				p := f.patient("Luca", model.PatientStatusActive)
				f.appointment(p, daysAgo(5), model.AppointmentStatusNoShow)
				f.evaluation(p, daysAgo(2), "Dolore al ginocchio. Netto miglioramento.")
			},
			want: func(t *testing.T, st model.RunStats) { assert.Equal(t, 1, st.TopicRejected) },
		},
		{
			name: "no notes in the window",
			setup: func(f *fixture) {
				p := f.patient("Luca", model.PatientStatusActive)
				f.appointment(p, daysAgo(5), model.AppointmentStatusNoShow)
				f.evaluation(p, daysAgo(91), improvedNote)
			},
			want: func(t *testing.T, st model.RunStats) { assert.Equal(t, 1, st.TopicRejected) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f fixture
			tt.setup(&f)
			svc, _ := f.service(t)

			report, err := svc.Run(context.Background())
			require.NoError(t, err)
			assert.Empty(t, report.Candidates)
			tt.want(t, report.Stats)
		})
	}
}

func TestAnalyzeCutoffIsInclusive(t *testing.T) {
	cutoff := now.Add(-window)

	var f fixture
	p := f.patient("Anna", model.PatientStatusActive)
	f.appointment(p, cutoff, model.AppointmentStatusCancelled)
	f.evaluation(p, cutoff, improvedNote)

	svc, _ := f.service(t)
	results, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, cutoff.Equal(results[0].SkippedAppointmentAt))
}

func TestAnalyzeNoteJustBeforeCutoffExcluded(t *testing.T) {
	cutoff := now.Add(-window)

	var f fixture
	p := f.patient("Anna", model.PatientStatusActive)
	f.appointment(p, daysAgo(3), model.AppointmentStatusNoShow)
	f.evaluation(p, cutoff.Add(-time.Second), improvedNote)

	svc, _ := f.service(t)
	results, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAnalyzeTopicAndImprovementAcrossSources(t *testing.T) {
	var f fixture
	p := f.patient("Anna", model.PatientStatusActive)
	f.appointment(p, daysAgo(3), model.AppointmentStatusNoShow)
	f.evaluation(p, daysAgo(30), "Lombalgia cronica da due anni.")
	f.diary(p, daysAgo(8), "Dopo la terapia manuale dolore ridotto.")

	svc, _ := f.service(t)
	candidates, err := svc.AnalyzeDetailed(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"Dopo la terapia manuale dolore ridotto."}, candidates[0].Evidence)
}

func TestAnalyzeKeepsStoreOrder(t *testing.T) {
	var f fixture
	var want []uuid.UUID
	for _, name := range []string{"Zeno", "Anna", "Marco"} {
		p := f.patient(name, model.PatientStatusActive)
		f.appointment(p, daysAgo(10), model.AppointmentStatusNoShow)
		f.evaluation(p, daysAgo(4), improvedNote)
		want = append(want, p.ID)
	}

	svc, _ := f.service(t)
	results, err := svc.Analyze(context.Background())
	require.NoError(t, err)

	var got []uuid.UUID
	for _, r := range results {
		got = append(got, r.PatientID)
	}
	assert.Equal(t, want, got)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	var f fixture
	p := f.patient("Giulia", model.PatientStatusActive)
	f.appointment(p, daysAgo(40), model.AppointmentStatusNoShow)
	f.evaluation(p, daysAgo(10), improvedNote)
	q := f.patient("Paolo", model.PatientStatusActive)
	f.appointment(q, daysAgo(40), model.AppointmentStatusNoShow)
	f.evaluation(q, daysAgo(10), negatedNote)

	svc, opener := f.service(t)
	first, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	opened, closed := opener.Sessions()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)
}

func TestAnalyzeEmptyStore(t *testing.T) {
	var f fixture
	svc, _ := f.service(t)

	results, err := svc.Analyze(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestAnalyzeStoreFailureAborts(t *testing.T) {
	var f fixture
	p := f.patient("Giulia", model.PatientStatusActive)
	f.appointment(p, daysAgo(40), model.AppointmentStatusNoShow)

	boom := errors.New("connection refused")

	t.Run("query", func(t *testing.T) {
		svc, opener := f.service(t)
		opener.FailQueries(boom)

		results, err := svc.Analyze(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, results)

		opened, closed := opener.Sessions()
		assert.Equal(t, 1, opened)
		assert.Equal(t, 1, closed)
	})

	t.Run("open", func(t *testing.T) {
		svc, opener := f.service(t)
		opener.FailOpen(boom)

		_, err := svc.Analyze(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "failed to open store")
	})
}

func TestAnalyzeMalformedDates(t *testing.T) {
	t.Run("appointment", func(t *testing.T) {
		var f fixture
		p := f.patient("Giulia", model.PatientStatusActive)
		f.appointment(p, time.Time{}, model.AppointmentStatusNoShow)

		svc, opener := f.service(t)
		_, err := svc.Analyze(context.Background())
		assert.ErrorIs(t, err, ErrMalformedRecord)

		_, closed := opener.Sessions()
		assert.Equal(t, 1, closed)
	})

	t.Run("note", func(t *testing.T) {
		var f fixture
		p := f.patient("Giulia", model.PatientStatusActive)
		f.appointment(p, daysAgo(4), model.AppointmentStatusNoShow)
		f.diary(p, time.Time{}, improvedNote)

		svc, _ := f.service(t)
		_, err := svc.Analyze(context.Background())
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})
}

func TestAnalyzeSecondaryClassifier(t *testing.T) {
	setup := func() *fixture {
		f := &fixture{}
		p := f.patient("Giulia", model.PatientStatusActive)
		f.appointment(p, daysAgo(40), model.AppointmentStatusNoShow)
		f.evaluation(p, daysAgo(10), "Dolore lombare. Ora cammina senza fatica.")
		return f
	}

	t.Run("confirms", func(t *testing.T) {
		secondary := &fakeSecondary{answer: true}
		m := metrics.New("test", nil)
		svc, _ := setup().service(t, WithSecondary(secondary), WithMetrics(m))

		candidates, err := svc.AnalyzeDetailed(context.Background())
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, model.DecisionSecondary, candidates[0].Source)
		assert.Empty(t, candidates[0].Evidence)
		assert.Equal(t, 1, secondary.calls)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SecondaryCalls.WithLabelValues("yes")))
	})

	t.Run("error is a no", func(t *testing.T) {
		secondary := &fakeSecondary{err: errors.New("timeout")}
		m := metrics.New("test", nil)
		svc, _ := setup().service(t, WithSecondary(secondary), WithMetrics(m))

		results, err := svc.Analyze(context.Background())
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.SecondaryCalls.WithLabelValues("error")))
	})

	t.Run("not asked when the heuristic decides", func(t *testing.T) {
		secondary := &fakeSecondary{answer: false}
		var f fixture
		p := f.patient("Giulia", model.PatientStatusActive)
		f.appointment(p, daysAgo(40), model.AppointmentStatusNoShow)
		f.evaluation(p, daysAgo(10), improvedNote)
		q := f.patient("Paolo", model.PatientStatusActive)
		f.appointment(q, daysAgo(40), model.AppointmentStatusNoShow)
		f.evaluation(q, daysAgo(10), "Dolore al ginocchio.")

		svc, _ := f.service(t, WithSecondary(secondary))
		results, err := svc.Analyze(context.Background())
		require.NoError(t, err)
		assert.Len(t, results, 1)
		assert.Equal(t, 0, secondary.calls)
	})
}

func TestRunRecordsMetrics(t *testing.T) {
	var f fixture
	p := f.patient("Giulia", model.PatientStatusActive)
	f.appointment(p, daysAgo(40), model.AppointmentStatusNoShow)
	f.evaluation(p, daysAgo(10), improvedNote)
	f.patient("Luca", model.PatientStatusActive)

	m := metrics.New("test", nil)
	svc, _ := f.service(t, WithMetrics(m))

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Scanned)
	assert.Equal(t, 1, report.Stats.Emitted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanCandidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateRejections.WithLabelValues("no_appointments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanRuns.WithLabelValues("success")))
}
