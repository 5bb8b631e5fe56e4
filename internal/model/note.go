package model

import (
	"time"

	"github.com/google/uuid"
)

// NoteSource names the store a clinical note comes from.
type NoteSource string

const (
	NoteSourceEvaluation     NoteSource = "evaluation"
	NoteSourceTreatmentDiary NoteSource = "treatment_diary"
)

// ClinicalNote is a free-text entry of either an evaluation form or the
// treatment diary. Both have the same shape.
type ClinicalNote struct {
	Base
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	RecordedAt  time.Time  `db:"recorded_at" json:"recorded_at"`
	Description string     `db:"description" json:"description"`
	Source      NoteSource `db:"-" json:"source"`
}
