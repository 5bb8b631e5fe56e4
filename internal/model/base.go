package model

import (
	"github.com/google/uuid"
)

// Base contains the identifier shared by every stored record
type Base struct {
	ID uuid.UUID `json:"id" db:"id"`
}
