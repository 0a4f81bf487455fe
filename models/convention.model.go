package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Status is the position of a convention in the signature workflow.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusSubmitted        Status = "SUBMITTED"
	StatusSignedParent     Status = "SIGNED_PARENT"
	StatusValidatedTeacher Status = "VALIDATED_TEACHER"
	StatusSignedCompany    Status = "SIGNED_COMPANY"
	StatusSignedTutor      Status = "SIGNED_TUTOR"
	StatusValidatedHead    Status = "VALIDATED_HEAD"
)

// statusOrder lists every status, terminal last.
var statusOrder = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusSignedParent,
	StatusValidatedTeacher,
	StatusSignedCompany,
	StatusSignedTutor,
	StatusValidatedHead,
}

// Rank is the index of s in the workflow order, -1 when unknown.
func (s Status) Rank() int {
	for i, v := range statusOrder {
		if v == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Rank() >= 0 }

func (s Status) Terminal() bool { return s == StatusValidatedHead }

// AtLeast reports whether s is at or past other in workflow order.
func (s Status) AtLeast(other Status) bool {
	return s.Valid() && s.Rank() >= other.Rank()
}

// Step names one signatory of a convention.
type Step string

const (
	StepStudent Step = "student"
	StepParent  Step = "parent"
	StepTeacher Step = "teacher"
	StepCompany Step = "company"
	StepTutor   Step = "tutor"
	StepHead    Step = "head"
)

// Steps lists the signatories in signing order.
var Steps = []Step{StepStudent, StepParent, StepTeacher, StepCompany, StepTutor, StepHead}

func ParseStep(v string) (Step, error) {
	for _, s := range Steps {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown signature step %q", v)
}

// SignatureEntry records the code issued when a step was committed.
type SignatureEntry struct {
	Code string    `json:"code"`
	At   time.Time `json:"at"`
}

type SignatureMap map[Step]SignatureEntry

// StepSet is a set of steps stored as a JSON object.
type StepSet map[Step]bool

// Convention is an internship agreement and its six-party signature workflow.
type Convention struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	StudentID    string `gorm:"size:64;index" json:"studentId"`
	StudentName  string `gorm:"size:200" json:"studentName"`
	StudentEmail string `gorm:"size:200" json:"studentEmail"`

	ParentName  string `gorm:"size:200" json:"parentName,omitempty"`
	ParentEmail string `gorm:"size:200" json:"parentEmail,omitempty"`

	TeacherID    string `gorm:"size:64;index" json:"teacherId"`
	TeacherName  string `gorm:"size:200" json:"teacherName"`
	TeacherEmail string `gorm:"size:200" json:"teacherEmail"`

	CompanyName     string `gorm:"size:200" json:"companyName"`
	CompanyRepName  string `gorm:"size:200" json:"companyRepName"`
	CompanyRepEmail string `gorm:"size:200" json:"companyRepEmail"`

	TutorName  string `gorm:"size:200" json:"tutorName"`
	TutorEmail string `gorm:"size:200" json:"tutorEmail"`

	HeadName  string `gorm:"size:200" json:"headName"`
	HeadEmail string `gorm:"size:200" json:"headEmail"`

	SchoolAddress  string `gorm:"size:300" json:"schoolAddress"`
	CompanyAddress string `gorm:"size:300" json:"companyAddress"`

	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`

	EstMineur bool   `gorm:"column:est_mineur;default:false" json:"est_mineur"`
	Status    Status `gorm:"size:32;index;not null;default:'DRAFT'" json:"status"`

	Signatures    datatypes.JSONType[SignatureMap] `json:"signatures"`
	InvalidEmails datatypes.JSONType[StepSet]      `json:"invalidEmails"`

	LastReminderAt *time.Time `json:"lastReminderAt,omitempty"`

	AttestationCode      string     `gorm:"column:attestation_code;size:16" json:"attestation_code,omitempty"`
	AttestationDate      *time.Time `gorm:"column:attestation_date" json:"attestation_date,omitempty"`
	AttestationTotalDays *int       `gorm:"column:attestation_total_days" json:"attestation_total_days,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmailFor returns the address of the party signing step.
func (c *Convention) EmailFor(step Step) string {
	switch step {
	case StepStudent:
		return c.StudentEmail
	case StepParent:
		return c.ParentEmail
	case StepTeacher:
		return c.TeacherEmail
	case StepCompany:
		return c.CompanyRepEmail
	case StepTutor:
		return c.TutorEmail
	case StepHead:
		return c.HeadEmail
	}
	return ""
}

// EmailColumn is the database column backing EmailFor(step).
func EmailColumn(step Step) string {
	switch step {
	case StepStudent:
		return "student_email"
	case StepParent:
		return "parent_email"
	case StepTeacher:
		return "teacher_email"
	case StepCompany:
		return "company_rep_email"
	case StepTutor:
		return "tutor_email"
	case StepHead:
		return "head_email"
	}
	return ""
}

func (c *Convention) SignatureMap() SignatureMap {
	m := c.Signatures.Data()
	if m == nil {
		m = SignatureMap{}
	}
	return m
}

func (c *Convention) InvalidEmailSet() StepSet {
	s := c.InvalidEmails.Data()
	if s == nil {
		s = StepSet{}
	}
	return s
}
