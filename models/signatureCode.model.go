package models

import "time"

// StepAttestation tags codes issued for completion attestations.
const StepAttestation Step = "attestation"

// SignatureCode indexes every issued signature code so a code typed by hand
// can be traced back to its convention and step.
type SignatureCode struct {
	Code         string    `gorm:"primaryKey;size:16" json:"code"`
	ConventionID string    `gorm:"size:36;index;not null" json:"conventionId"`
	Step         Step      `gorm:"size:16;not null" json:"step"`
	At           time.Time `gorm:"not null" json:"at"`
}
