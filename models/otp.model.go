package models

import (
	"time"
)

// OTPPurpose scopes a code to the action it unlocks.
type OTPPurpose string

const (
	OTPPurposeActivation OTPPurpose = "activation"
	OTPPurposeSignature  OTPPurpose = "convention-signature"
	OTPPurposeGeneric    OTPPurpose = "generic"
)

func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeActivation, OTPPurposeSignature, OTPPurposeGeneric:
		return true
	}
	return false
}

// OTP is a single-use code. Records are deleted when verified, never flagged.
type OTP struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"size:200;index:idx_otp_lookup;not null" json:"email"`
	Code         string     `gorm:"size:4;index:idx_otp_lookup;not null" json:"-"`
	Purpose      OTPPurpose `gorm:"size:32;not null" json:"purpose"`
	ConventionID *string    `gorm:"size:36;index" json:"conventionId,omitempty"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expiresAt"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (o *OTP) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}
