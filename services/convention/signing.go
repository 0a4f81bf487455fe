package convention

import (
	"context"
	"errors"
	"regexp"

	"pfmp/apperr"
	"pfmp/logger"
	"pfmp/models"
	"pfmp/services/audit"
	"pfmp/services/otp"
	"pfmp/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var signatureCodePattern = regexp.MustCompile(`^[A-Z]{8}[0-9]{5}$`)

// checkTurn reports why step cannot sign c right now, nil when it can.
func checkTurn(c *models.Convention, step models.Step) error {
	current, ok := CurrentStep(c.Status, c.EstMineur)
	if ok && current == step {
		return nil
	}
	if StepStatus(step, c.Status, c.EstMineur) == StepCompleted {
		return apperr.New(apperr.StaleState, "Cette étape est déjà signée, rechargez la convention")
	}
	return apperr.New(apperr.Conflict, "Ce n'est pas encore le tour de cette étape")
}

// RequestSignatureCode mails a signature code to the party of step. The
// step must be the current one and its email must not be flagged invalid.
func (s *Service) RequestSignatureCode(ctx context.Context, id string, step models.Step, email string, actor Actor) (*otp.SendResult, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTurn(c, step); err != nil {
		return nil, err
	}
	if c.InvalidEmailSet()[step] {
		return nil, apperr.New(apperr.Conflict, "L'adresse email de cette étape est invalide, corrigez-la avant de continuer")
	}
	if normalizeEmail(email) != c.EmailFor(step) {
		return nil, apperr.New(apperr.Forbidden, "Cet email ne correspond pas au signataire attendu")
	}

	res, err := s.gate.RequestCode(ctx, otp.SendRequest{
		Email:        c.EmailFor(step),
		Purpose:      models.OTPPurposeSignature,
		ConventionID: id,
		IP:           actor.IP,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrDeliveryFailure) {
			s.markEmailInvalid(ctx, id, step, err)
		}
		return nil, err
	}
	return res, nil
}

type SignInput struct {
	ConventionID string
	Step         models.Step
	Email        string
	Code         string
	IP           string
}

type SignResult struct {
	Convention    *models.Convention `json:"convention"`
	SignatureCode string             `json:"signatureCode"`
	AuditLog      *models.AuditLog   `json:"auditLog"`
}

// Sign commits one step. The code check, the conditional status update and
// the SIGNED audit entry share a transaction: nothing changes unless all of
// them succeed, except an expired code which is still consumed.
func (s *Service) Sign(ctx context.Context, in SignInput) (*SignResult, error) {
	var (
		expired bool
		sigCode string
		entry   *models.AuditLog
		next    models.Status
		minor   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(tx, in.ConventionID, true)
		if err != nil {
			return err
		}
		if err := checkTurn(c, in.Step); err != nil {
			return err
		}
		if normalizeEmail(in.Email) != c.EmailFor(in.Step) {
			return apperr.New(apperr.Forbidden, "Cet email ne correspond pas au signataire attendu")
		}

		_, expired, err = s.gate.ConsumeTx(tx, otp.VerifyRequest{
			Email:        c.EmailFor(in.Step),
			Code:         in.Code,
			Purpose:      models.OTPPurposeSignature,
			ConventionID: c.ID,
			IP:           in.IP,
		})
		if err != nil || expired {
			return err
		}

		now := s.now().UTC()
		prev := c.Status
		next, _ = NextStatus(prev, c.EstMineur)
		minor = c.EstMineur
		sigCode = utils.GenerateSignatureCode()

		sigs := c.SignatureMap()
		sigs[in.Step] = models.SignatureEntry{Code: sigCode, At: now}
		invalid := c.InvalidEmailSet()
		delete(invalid, in.Step)

		res := tx.Model(&models.Convention{}).
			Where("id = ? AND status = ?", c.ID, prev).
			Updates(map[string]any{
				"status":         next,
				"signatures":     datatypes.NewJSONType(sigs),
				"invalid_emails": datatypes.NewJSONType(invalid),
				"updated_at":     now,
			})
		if res.Error != nil {
			return apperr.Wrap(res.Error, "convention.advance", "could not advance convention")
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.StaleState, "La convention a été modifiée entre-temps, rechargez-la")
		}

		if err := tx.Create(&models.SignatureCode{Code: sigCode, ConventionID: c.ID, Step: in.Step, At: now}).Error; err != nil {
			return apperr.Wrap(err, "convention.index_code", "could not index signature code")
		}

		entry, err = s.audit.Append(ctx, tx, audit.Entry{
			ConventionID: c.ID,
			Action:       models.AuditSigned,
			ActorEmail:   c.EmailFor(in.Step),
			IP:           in.IP,
			Details:      "Signature de l'étape " + string(in.Step) + " (" + string(prev) + " → " + string(next) + ")",
		})
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			logger.Step(ctx, "convention.sign").Error("signature failed", "convention", in.ConventionID, "step", in.Step, "error", err)
		}
		return nil, err
	}
	if expired {
		return nil, apperr.New(apperr.CodeExpired, "Code expiré, demandez un nouveau code")
	}

	if _, err := s.audit.Append(ctx, nil, audit.Entry{
		ConventionID: in.ConventionID,
		Action:       models.AuditOTPValidated,
		ActorEmail:   normalizeEmail(in.Email),
		IP:           in.IP,
		Details:      "Code de signature validé",
	}); err != nil {
		logger.Step(ctx, "convention.otp_audit").Warn("audit entry not recorded", "convention", in.ConventionID, "error", err)
	}

	c, err := s.Get(ctx, in.ConventionID)
	if err != nil {
		return nil, err
	}
	s.notifyNext(ctx, c, in.Step, next, minor)

	logger.WithContext(ctx).Info("convention step signed", "convention", c.ID, "step", in.Step, "status", next)
	return &SignResult{Convention: c, SignatureCode: sigCode, AuditLog: entry}, nil
}

// notifyNext tells the next signatory it is their turn. A failed delivery
// flags their email, the signature itself stands.
func (s *Service) notifyNext(ctx context.Context, c *models.Convention, signed models.Step, status models.Status, minor bool) {
	step, ok := CurrentStep(status, minor)
	if !ok || s.mailer == nil {
		return
	}
	to := c.EmailFor(step)
	if to == "" {
		return
	}
	subject, body := utils.SignedEmail(c.StudentName, c.CompanyName, string(signed))
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		logger.Step(ctx, "convention.notify").Warn("next signatory not notified", "convention", c.ID, "step", step, "error", err)
		s.markEmailInvalid(ctx, c.ID, step, err)
	}
}

// LookupCode resolves a signature code typed by hand.
func (s *Service) LookupCode(ctx context.Context, code string) (*models.SignatureCode, error) {
	if !signatureCodePattern.MatchString(code) {
		return nil, apperr.New(apperr.Validation, "Format de code invalide (8 lettres et 5 chiffres)")
	}
	var row models.SignatureCode
	if err := s.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "Code de signature inconnu")
		}
		return nil, apperr.Wrap(err, "convention.lookup_code", "could not read signature code")
	}
	return &row, nil
}
