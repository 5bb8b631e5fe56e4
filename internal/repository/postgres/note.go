package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-outreach/internal/model"
)

// noteRepository serves both note tables; they share a schema.
type noteRepository struct {
	q      queryer
	table  string
	source model.NoteSource
}

func (r *noteRepository) ListByPatientSince(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*model.ClinicalNote, error) {
	query := fmt.Sprintf(`
		SELECT id, patient_id, recorded_at, description
		FROM %s
		WHERE patient_id = $1 AND recorded_at >= $2
	`, r.table)

	var notes []*model.ClinicalNote
	if err := r.q.SelectContext(ctx, &notes, query, patientID, since); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.table, err)
	}
	for _, note := range notes {
		note.Source = r.source
	}
	return notes, nil
}
