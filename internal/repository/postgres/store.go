package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physio-outreach/internal/model"
	"github.com/jwalitptl/physio-outreach/internal/repository"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Conn.
type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Opener pins one pooled connection per analysis run.
type Opener struct {
	db *sqlx.DB
}

var _ repository.Opener = (*Opener)(nil)

func NewOpener(db *sqlx.DB) *Opener {
	return &Opener{db: db}
}

func (o *Opener) Open(ctx context.Context) (repository.Store, error) {
	conn, err := o.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return &store{conn: conn}, nil
}

type store struct {
	conn *sqlx.Conn
}

func (s *store) Patients() repository.PatientRepository {
	return &patientRepository{q: s.conn}
}

func (s *store) Appointments() repository.AppointmentRepository {
	return &appointmentRepository{q: s.conn}
}

func (s *store) EvaluationNotes() repository.NoteRepository {
	return &noteRepository{q: s.conn, table: "evaluation_notes", source: model.NoteSourceEvaluation}
}

func (s *store) TreatmentDiary() repository.NoteRepository {
	return &noteRepository{q: s.conn, table: "treatment_diary", source: model.NoteSourceTreatmentDiary}
}

// Close returns the connection to the pool.
func (s *store) Close() error {
	return s.conn.Close()
}
