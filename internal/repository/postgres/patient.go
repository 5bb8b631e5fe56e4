package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/physio-outreach/internal/model"
)

type patientRepository struct {
	q queryer
}

func (r *patientRepository) ListByStatus(ctx context.Context, status model.PatientStatus) ([]*model.Patient, error) {
	query := `
		SELECT id, first_name, last_name, phone, status
		FROM patients
		WHERE status = $1
		ORDER BY id
	`
	var patients []*model.Patient
	if err := r.q.SelectContext(ctx, &patients, query, string(status)); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
