package model

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisResult identifies a patient to contact after a missed appointment.
type AnalysisResult struct {
	PatientID            uuid.UUID `json:"patient_id"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Phone                string    `json:"phone"`
	SkippedAppointmentAt time.Time `json:"skipped_appointment_at"`
}

// DecisionSource tells which classifier confirmed the improvement.
type DecisionSource string

const (
	DecisionHeuristic DecisionSource = "heuristic"
	DecisionSecondary DecisionSource = "secondary"
)

// Candidate is an AnalysisResult with the evidence behind it.
type Candidate struct {
	AnalysisResult
	Evidence []string       `json:"evidence,omitempty"`
	Source   DecisionSource `json:"source"`
}

// RunStats counts how many patients stopped at each gate of a run.
type RunStats struct {
	Scanned        int           `json:"scanned"`
	NoAppointments int           `json:"no_appointments"`
	NotEligible    int           `json:"not_eligible"`
	TopicRejected  int           `json:"topic_rejected"`
	NoImprovement  int           `json:"no_improvement"`
	Emitted        int           `json:"emitted"`
	Duration       time.Duration `json:"duration"`
}
