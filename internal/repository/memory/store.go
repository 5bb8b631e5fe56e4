// Package memory is an in-process implementation of the repository
// interfaces, backed by a fixed Dataset. Iteration order is the order of the
// Dataset slices.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-outreach/internal/model"
	"github.com/jwalitptl/physio-outreach/internal/repository"
)

// ErrClosed is returned by queries issued on a closed session.
var ErrClosed = errors.New("store session is closed")

type Dataset struct {
	Patients        []*model.Patient      `json:"patients"`
	Appointments    []*model.Appointment  `json:"appointments"`
	EvaluationNotes []*model.ClinicalNote `json:"evaluation_notes"`
	TreatmentDiary  []*model.ClinicalNote `json:"treatment_diary"`
}

// LoadDataset reads a JSON fixture file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	return &ds, nil
}

// Opener hands out sessions over a shared Dataset and keeps count of them.
type Opener struct {
	data *Dataset

	mu       sync.Mutex
	opened   int
	closed   int
	openErr  error
	queryErr error
}

var _ repository.Opener = (*Opener)(nil)

func NewOpener(data *Dataset) *Opener {
	return &Opener{data: data}
}

// FailOpen makes every following Open return err.
func (o *Opener) FailOpen(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// FailQueries makes every query of sessions opened afterwards return err.
func (o *Opener) FailQueries(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queryErr = err
}

// Sessions returns how many sessions were opened and closed.
func (o *Opener) Sessions() (opened, closed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closed
}

func (o *Opener) Open(ctx context.Context) (repository.Store, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	o.opened++
	return &session{opener: o, data: o.data, queryErr: o.queryErr}, nil
}

type session struct {
	opener   *Opener
	data     *Dataset
	queryErr error

	mu     sync.Mutex
	closed bool
}

func (s *session) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.queryErr
}

func (s *session) Patients() repository.PatientRepository {
	return patientRepository{s}
}

func (s *session) Appointments() repository.AppointmentRepository {
	return appointmentRepository{s}
}

func (s *session) EvaluationNotes() repository.NoteRepository {
	return noteRepository{s: s, notes: s.data.EvaluationNotes, source: model.NoteSourceEvaluation}
}

func (s *session) TreatmentDiary() repository.NoteRepository {
	return noteRepository{s: s, notes: s.data.TreatmentDiary, source: model.NoteSourceTreatmentDiary}
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	s.opener.mu.Lock()
	s.opener.closed++
	s.opener.mu.Unlock()
	return nil
}

type patientRepository struct{ s *session }

func (r patientRepository) ListByStatus(ctx context.Context, status model.PatientStatus) ([]*model.Patient, error) {
	if err := r.s.check(ctx); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	var out []*model.Patient
	for _, p := range r.s.data.Patients {
		if p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type appointmentRepository struct{ s *session }

func (r appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	if err := r.s.check(ctx); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	var out []*model.Appointment
	for _, a := range r.s.data.Appointments {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type noteRepository struct {
	s      *session
	notes  []*model.ClinicalNote
	source model.NoteSource
}

// ListByPatientSince keeps notes with a zero RecordedAt so that callers can
// detect malformed records, as a NULL column would fail a SQL scan.
func (r noteRepository) ListByPatientSince(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*model.ClinicalNote, error) {
	if err := r.s.check(ctx); err != nil {
		return nil, fmt.Errorf("failed to list %s notes: %w", r.source, err)
	}
	var out []*model.ClinicalNote
	for _, n := range r.notes {
		if n.PatientID != patientID {
			continue
		}
		if !n.RecordedAt.IsZero() && n.RecordedAt.Before(since) {
			continue
		}
		cp := *n
		cp.Source = r.source
		out = append(out, &cp)
	}
	return out, nil
}
