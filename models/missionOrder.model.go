package models

import (
	"time"

	"gorm.io/datatypes"
)

type MissionOrderStatus string

const (
	MissionOrderPending MissionOrderStatus = "PENDING"
	MissionOrderSigned  MissionOrderStatus = "SIGNED"
	// MissionOrderRejected is reserved, nothing produces it yet.
	MissionOrderRejected MissionOrderStatus = "REJECTED"
)

// MissionOrder authorises a teacher's visit to a student's internship site.
type MissionOrder struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	ConventionID   string             `gorm:"size:36;not null;uniqueIndex:idx_mission_convention_teacher" json:"conventionId"`
	TeacherID      string             `gorm:"size:64;not null;uniqueIndex:idx_mission_convention_teacher" json:"teacherId"`
	StudentID      string             `gorm:"size:64;index" json:"studentId"`
	SchoolAddress  string             `gorm:"size:300" json:"schoolAddress"`
	CompanyAddress string             `gorm:"size:300" json:"companyAddress"`
	DistanceKm     float64            `json:"distanceKm"`
	Status         MissionOrderStatus `gorm:"size:16;index;not null;default:'PENDING'" json:"status"`
	SignatureDate  *time.Time         `json:"signatureDate,omitempty"`
	SignatureHash  string             `gorm:"size:80" json:"signatureHash,omitempty"`
	SignatureImg   string             `gorm:"type:text" json:"signatureImg,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

type BatchStatus string

const (
	BatchPending   BatchStatus = "PENDING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchPartial   BatchStatus = "PARTIAL"
)

// MissionOrderBatch is the durable command behind one batch approval. The
// reconciliation job replays it onto orders that failed to persist.
type MissionOrderBatch struct {
	ID            string                     `gorm:"primaryKey;size:36" json:"id"`
	ApproverEmail string                     `gorm:"size:200" json:"approverEmail"`
	OrderIDs      datatypes.JSONType[[]uint] `json:"orderIds"`
	FailedIDs     datatypes.JSONType[[]uint] `json:"failedIds"`
	Forced        bool                       `json:"forced"`
	SignatureDate time.Time                  `json:"signatureDate"`
	SignatureImg  string                     `gorm:"type:text" json:"-"`
	Status        BatchStatus                `gorm:"size:16;index;not null" json:"status"`
	Attempts      int                        `gorm:"default:0" json:"attempts"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}
