// Package convention runs the six-party signature workflow of internship
// agreements and issues their verification links.
package convention

import (
	"context"
	"errors"
	"strings"
	"time"

	"pfmp/apperr"
	"pfmp/logger"
	"pfmp/models"
	"pfmp/services/audit"
	"pfmp/services/otp"
	"pfmp/signature"
	"pfmp/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Options struct {
	PublicBaseURL        string
	ReminderInitialDelay time.Duration
	ReminderInterval     time.Duration
}

type Service struct {
	db     *gorm.DB
	gate   *otp.Gate
	audit  *audit.Log
	signer *signature.Signer
	mailer utils.Mailer
	opts   Options
	now    func() time.Time
}

func NewService(db *gorm.DB, gate *otp.Gate, auditLog *audit.Log, signer *signature.Signer, mailer utils.Mailer, opts Options) *Service {
	if opts.ReminderInitialDelay <= 0 {
		opts.ReminderInitialDelay = 5 * time.Second
	}
	if opts.ReminderInterval <= 0 {
		opts.ReminderInterval = 48 * time.Hour
	}
	return &Service{
		db:     db,
		gate:   gate,
		audit:  auditLog,
		signer: signer,
		mailer: mailer,
		opts:   opts,
		now:    time.Now,
	}
}

// Actor identifies who triggered an operation, for the audit log.
type Actor struct {
	Email string
	IP    string
}

type Party struct {
	ID    string
	Name  string
	Email string
}

type CreateInput struct {
	Student        Party
	Parent         Party
	Teacher        Party
	CompanyName    string
	CompanyRep     Party
	Tutor          Party
	Head           Party
	SchoolAddress  string
	CompanyAddress string
	StartDate      time.Time
	EndDate        time.Time
	EstMineur      bool
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new convention in DRAFT.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Convention, error) {
	if in.EndDate.Before(in.StartDate) {
		return nil, apperr.New(apperr.Validation, "La date de fin précède la date de début")
	}
	if in.EstMineur && strings.TrimSpace(in.Parent.Email) == "" {
		return nil, apperr.New(apperr.Validation, "L'email du représentant légal est requis pour un élève mineur")
	}

	now := s.now().UTC()
	c := &models.Convention{
		ID:              uuid.NewString(),
		StudentID:       in.Student.ID,
		StudentName:     in.Student.Name,
		StudentEmail:    normalizeEmail(in.Student.Email),
		ParentName:      in.Parent.Name,
		ParentEmail:     normalizeEmail(in.Parent.Email),
		TeacherID:       in.Teacher.ID,
		TeacherName:     in.Teacher.Name,
		TeacherEmail:    normalizeEmail(in.Teacher.Email),
		CompanyName:     in.CompanyName,
		CompanyRepName:  in.CompanyRep.Name,
		CompanyRepEmail: normalizeEmail(in.CompanyRep.Email),
		TutorName:       in.Tutor.Name,
		TutorEmail:      normalizeEmail(in.Tutor.Email),
		HeadName:        in.Head.Name,
		HeadEmail:       normalizeEmail(in.Head.Email),
		SchoolAddress:   in.SchoolAddress,
		CompanyAddress:  in.CompanyAddress,
		StartDate:       in.StartDate.UTC(),
		EndDate:         in.EndDate.UTC(),
		EstMineur:       in.EstMineur,
		Status:          models.StatusDraft,
		Signatures:      datatypes.NewJSONType(models.SignatureMap{}),
		InvalidEmails:   datatypes.NewJSONType(models.StepSet{}),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, apperr.Wrap(err, "convention.create", "could not create convention")
	}
	logger.WithContext(ctx).Info("convention created", "convention", c.ID)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Convention, error) {
	return s.load(s.db.WithContext(ctx), id, false)
}

func (s *Service) load(tx *gorm.DB, id string, lock bool) (*models.Convention, error) {
	var c models.Convention
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("id = ?", id).Take(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "Convention introuvable")
		}
		return nil, apperr.Wrap(err, "convention.load", "could not read convention")
	}
	return &c, nil
}

func (s *Service) Timeline(ctx context.Context, id string) ([]TimelineEntry, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Timeline(c), nil
}

func (s *Service) AuditLogs(ctx context.Context, id string) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, id)
}

// SetMinor changes est_mineur. The branch is locked once a signatory past
// the student could have acted on it.
func (s *Service) SetMinor(ctx context.Context, id string, minor bool, actor Actor) (*models.Convention, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(tx, id, true)
		if err != nil {
			return err
		}
		if c.EstMineur == minor {
			return nil
		}
		if c.Status != models.StatusDraft && c.Status != models.StatusSubmitted {
			return apperr.New(apperr.Conflict, "Le statut mineur ne peut plus être modifié à ce stade")
		}
		if minor && c.ParentEmail == "" {
			return apperr.New(apperr.Validation, "L'email du représentant légal est requis pour un élève mineur")
		}

		res := tx.Model(&models.Convention{}).
			Where("id = ? AND status = ?", id, c.Status).
			Updates(map[string]any{"est_mineur": minor, "updated_at": s.now().UTC()})
		if res.Error != nil {
			return apperr.Wrap(res.Error, "convention.minor", "could not update convention")
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.StaleState, "La convention a été modifiée entre-temps, rechargez-la")
		}

		details := "Élève majeur"
		if minor {
			details = "Élève mineur"
		}
		_, err = s.audit.Append(ctx, tx, audit.Entry{
			ConventionID: id, Action: models.AuditMinorChanged, ActorEmail: actor.Email, IP: actor.IP, Details: details,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// CorrectEmail replaces the address of a step's party and clears its
// delivery-failure flag. Status is left untouched.
func (s *Service) CorrectEmail(ctx context.Context, id string, step models.Step, email string, actor Actor) (*models.Convention, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperr.New(apperr.Validation, "Email invalide")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(tx, id, true)
		if err != nil {
			return err
		}
		if step == models.StepParent && !c.EstMineur {
			return apperr.New(apperr.Validation, "Aucun représentant légal pour un élève majeur")
		}

		invalid := c.InvalidEmailSet()
		delete(invalid, step)
		err = tx.Model(&models.Convention{}).Where("id = ?", id).UpdateColumns(map[string]any{
			models.EmailColumn(step): email,
			"invalid_emails":         datatypes.NewJSONType(invalid),
		}).Error
		if err != nil {
			return apperr.Wrap(err, "convention.email", "could not update email")
		}

		_, err = s.audit.Append(ctx, tx, audit.Entry{
			ConventionID: id,
			Action:       models.AuditEmailCorrected,
			ActorEmail:   actor.Email,
			IP:           actor.IP,
			Details:      "Email corrigé pour l'étape " + string(step),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// markEmailInvalid flags step after a failed delivery. It never fails the
// caller, the delivery error is what gets reported.
func (s *Service) markEmailInvalid(ctx context.Context, id string, step models.Step, cause error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(tx, id, true)
		if err != nil {
			return err
		}
		invalid := c.InvalidEmailSet()
		invalid[step] = true
		if err := tx.Model(&models.Convention{}).Where("id = ?", id).
			UpdateColumn("invalid_emails", datatypes.NewJSONType(invalid)).Error; err != nil {
			return err
		}
		_, err = s.audit.Append(ctx, tx, audit.Entry{
			ConventionID: id,
			Action:       models.AuditEmailFailed,
			ActorEmail:   c.EmailFor(step),
			Details:      clip("Échec d'envoi pour l'étape "+string(step)+": "+cause.Error(), 500),
		})
		return err
	})
	if err != nil {
		logger.Step(ctx, "convention.mark_invalid").Error("could not flag invalid email", "convention", id, "step", step, "error", err)
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
