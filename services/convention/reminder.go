package convention

import (
	"context"
	"fmt"
	"time"

	"pfmp/apperr"
	"pfmp/logger"
	"pfmp/models"
	"pfmp/services/audit"
	"pfmp/utils"
)

// CanRemind applies the anti-spam policy: the convention must have been
// idle longer than initialDelay and the last reminder must be at least
// interval old.
func CanRemind(c *models.Convention, now time.Time, initialDelay, interval time.Duration) bool {
	if now.Sub(c.UpdatedAt) <= initialDelay {
		return false
	}
	return c.LastReminderAt == nil || now.Sub(*c.LastReminderAt) >= interval
}

// SendReminder nudges the party expected to sign next.
func (s *Service) SendReminder(ctx context.Context, id string, actor Actor) (*models.AuditLog, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.remind(ctx, c, actor)
}

func (s *Service) remind(ctx context.Context, c *models.Convention, actor Actor) (*models.AuditLog, error) {
	step, ok := CurrentStep(c.Status, c.EstMineur)
	if c.Status.Terminal() || !ok {
		return nil, apperr.New(apperr.Conflict, "La convention est entièrement signée")
	}
	if c.InvalidEmailSet()[step] {
		return nil, apperr.New(apperr.Conflict, "L'adresse email de cette étape est invalide, corrigez-la avant de relancer")
	}
	now := s.now().UTC()
	if !CanRemind(c, now, s.opts.ReminderInitialDelay, s.opts.ReminderInterval) {
		return nil, apperr.New(apperr.Conflict, "Une relance a déjà été envoyée récemment")
	}

	to := c.EmailFor(step)
	subject, body := utils.ReminderEmail(partyName(c, step), c.StudentName, c.CompanyName,
		fmt.Sprintf("%s/conventions/%s", s.opts.PublicBaseURL, c.ID))
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.markEmailInvalid(ctx, c.ID, step, err)
		return nil, &apperr.Error{
			Kind:    apperr.DeliveryFailure,
			Message: "La relance n'a pas pu être envoyée, vérifiez l'adresse email",
			Step:    "convention.remind",
			Err:     err,
		}
	}

	// UpdateColumn keeps updated_at, which measures workflow activity
	if err := s.db.WithContext(ctx).Model(&models.Convention{}).Where("id = ?", c.ID).
		UpdateColumn("last_reminder_at", now).Error; err != nil {
		return nil, apperr.Wrap(err, "convention.remind", "could not record reminder")
	}
	c.LastReminderAt = &now

	return s.audit.Append(ctx, nil, audit.Entry{
		ConventionID: c.ID,
		Action:       models.AuditReminderSent,
		ActorEmail:   actor.Email,
		IP:           actor.IP,
		Details:      "Relance envoyée à l'étape " + string(step),
	})
}

// RemindDue sends every reminder the policy currently allows. It is run by
// the scheduler and returns how many were sent.
func (s *Service) RemindDue(ctx context.Context) (int, error) {
	var pending []models.Convention
	if err := s.db.WithContext(ctx).
		Where("status <> ?", models.StatusValidatedHead).
		Order("updated_at asc").
		Find(&pending).Error; err != nil {
		return 0, apperr.Wrap(err, "convention.remind_sweep", "could not list conventions")
	}

	now := s.now().UTC()
	sent := 0
	for i := range pending {
		c := &pending[i]
		step, ok := CurrentStep(c.Status, c.EstMineur)
		if !ok || c.InvalidEmailSet()[step] || !CanRemind(c, now, s.opts.ReminderInitialDelay, s.opts.ReminderInterval) {
			continue
		}
		if _, err := s.remind(ctx, c, Actor{Email: "system"}); err != nil {
			logger.Step(ctx, "convention.remind_sweep").Warn("reminder not sent", "convention", c.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func partyName(c *models.Convention, step models.Step) string {
	switch step {
	case models.StepStudent:
		return c.StudentName
	case models.StepParent:
		return c.ParentName
	case models.StepTeacher:
		return c.TeacherName
	case models.StepCompany:
		return c.CompanyRepName
	case models.StepTutor:
		return c.TutorName
	case models.StepHead:
		return c.HeadName
	}
	return ""
}
