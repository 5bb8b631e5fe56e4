package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusAttended  AppointmentStatus = "attended"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusOther     AppointmentStatus = "other"
)

// Missed reports whether the patient did not show up, with or without
// notice.
func (s AppointmentStatus) Missed() bool {
	return s == AppointmentStatusNoShow || s == AppointmentStatusCancelled
}

type Appointment struct {
	Base
	PatientID   uuid.UUID         `db:"patient_id" json:"patient_id"`
	ScheduledAt time.Time         `db:"scheduled_at" json:"scheduled_at"`
	Status      AppointmentStatus `db:"status" json:"status"`
}
