package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/physio-outreach/internal/model"
	"github.com/jwalitptl/physio-outreach/internal/repository"
)

// ErrMalformedRecord is returned when an appointment or a note has no date.
var ErrMalformedRecord = errors.New("malformed record")

// Outcome tells where the selector stopped for a patient.
type Outcome int

const (
	OutcomeSelected Outcome = iota
	OutcomeNoAppointments
	OutcomeNotEligible
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSelected:
		return "selected"
	case OutcomeNoAppointments:
		return "no_appointments"
	case OutcomeNotEligible:
		return "not_eligible"
	default:
		return "unknown"
	}
}

// Selection is an eligible patient with the notes of the window.
type Selection struct {
	Patient     *model.Patient
	Appointment *model.Appointment
	// Text is every in-window description followed by a newline, evaluation
	// notes first, then diary entries, each in store order.
	Text  string
	Notes int
}

// Selector decides whether a patient missed their latest appointment within
// the window and gathers the notes of the same window.
type Selector struct {
	window time.Duration
}

func NewSelector(window time.Duration) *Selector {
	return &Selector{window: window}
}

func (s *Selector) Window() time.Duration {
	return s.window
}

// Cutoff is the inclusive lower bound for both the appointment and the notes.
func (s *Selector) Cutoff(now time.Time) time.Time {
	return now.Add(-s.window)
}

// Select returns a nil Selection with the matching Outcome for patients that
// are skipped. Notes are only read for eligible patients.
func (s *Selector) Select(ctx context.Context, store repository.Store, patient *model.Patient, now time.Time) (*Selection, Outcome, error) {
	appointments, err := store.Appointments().ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, 0, err
	}
	if len(appointments) == 0 {
		return nil, OutcomeNoAppointments, nil
	}

	latest, err := mostRecent(appointments)
	if err != nil {
		return nil, 0, err
	}

	cutoff := s.Cutoff(now)
	if latest.ScheduledAt.Before(cutoff) || !latest.Status.Missed() {
		return nil, OutcomeNotEligible, nil
	}

	var parts []string
	for _, repo := range []repository.NoteRepository{store.EvaluationNotes(), store.TreatmentDiary()} {
		notes, err := repo.ListByPatientSince(ctx, patient.ID, cutoff)
		if err != nil {
			return nil, 0, err
		}
		for _, n := range notes {
			if n.RecordedAt.IsZero() {
				return nil, 0, fmt.Errorf("%w: %s note %s has no date", ErrMalformedRecord, n.Source, n.ID)
			}
			if n.RecordedAt.Before(cutoff) {
				continue
			}
			parts = append(parts, n.Description+"\n")
		}
	}

	return &Selection{
		Patient:     patient,
		Appointment: latest,
		Text:        strings.Join(parts, ""),
		Notes:       len(parts),
	}, OutcomeSelected, nil
}

// mostRecent returns the first appointment with the maximal date.
func mostRecent(appointments []*model.Appointment) (*model.Appointment, error) {
	var latest *model.Appointment
	for _, a := range appointments {
		if a.ScheduledAt.IsZero() {
			return nil, fmt.Errorf("%w: appointment %s has no date", ErrMalformedRecord, a.ID)
		}
		if latest == nil || a.ScheduledAt.After(latest.ScheduledAt) {
			latest = a
		}
	}
	return latest, nil
}
