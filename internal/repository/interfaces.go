package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-outreach/internal/model"
)

// All repository interfaces in one file
type (
	// PatientRepository filters patients by status
	PatientRepository interface {
		ListByStatus(ctx context.Context, status model.PatientStatus) ([]*model.Patient, error)
	}

	AppointmentRepository interface {
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error)
	}

	// NoteRepository reads one source of clinical notes. since is an
	// inclusive lower bound on RecordedAt.
	NoteRepository interface {
		ListByPatientSince(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*model.ClinicalNote, error)
	}

	// Store is a read session over the four record sources. Close releases
	// the underlying connection and must be called on every exit path.
	Store interface {
		Patients() PatientRepository
		Appointments() AppointmentRepository
		EvaluationNotes() NoteRepository
		TreatmentDiary() NoteRepository
		Close() error
	}

	// Opener hands out a Store per analysis run.
	Opener interface {
		Open(ctx context.Context) (Store, error)
	}
)
