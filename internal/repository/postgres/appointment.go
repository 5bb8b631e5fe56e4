package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-outreach/internal/model"
)

type appointmentRepository struct {
	q queryer
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	query := `
		SELECT id, patient_id, scheduled_at, status
		FROM appointments
		WHERE patient_id = $1
	`
	var appointments []*model.Appointment
	if err := r.q.SelectContext(ctx, &appointments, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}
