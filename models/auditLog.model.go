package models

import "time"

// Audit actions.
const (
	AuditOTPSent        = "OTP_SENT"
	AuditOTPValidated   = "OTP_VALIDATED"
	AuditSigned         = "SIGNED"
	AuditEmailFailed    = "EMAIL_DELIVERY_FAILED"
	AuditEmailCorrected = "EMAIL_CORRECTED"
	AuditReminderSent   = "REMINDER_SENT"
	AuditAttestation    = "ATTESTATION_ISSUED"
	AuditLinkIssued     = "VERIFICATION_LINK_ISSUED"
	AuditMinorChanged   = "MINOR_FLAG_CHANGED"
)

// AuditLog is an append-only entry keyed by convention. Rows are never
// updated or deleted by the service.
type AuditLog struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	ConventionID string    `gorm:"size:36;index;not null" json:"-"`
	Date         time.Time `gorm:"not null" json:"date"`
	Action       string    `gorm:"size:64;not null" json:"action"`
	ActorEmail   string    `gorm:"size:200" json:"actorEmail"`
	IP           string    `gorm:"size:64" json:"ip"`
	Details      string    `gorm:"size:500" json:"details"`
}
