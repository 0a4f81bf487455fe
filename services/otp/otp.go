// Package otp issues and consumes the short-lived numeric codes that gate
// account activation and convention signatures.
package otp

import (
	"context"
	"strings"
	"time"

	"pfmp/apperr"
	"pfmp/logger"
	"pfmp/models"
	"pfmp/services/audit"
	"pfmp/utils"

	"gorm.io/gorm"
)

var purposeLabels = map[models.OTPPurpose]string{
	models.OTPPurposeActivation: "Activation de votre compte",
	models.OTPPurposeSignature:  "Signature de votre convention",
	models.OTPPurposeGeneric:    "Code de vérification",
}

type Gate struct {
	db     *gorm.DB
	mailer utils.Mailer
	audit  *audit.Log
	ttl    time.Duration
	now    func() time.Time
}

func NewGate(db *gorm.DB, mailer utils.Mailer, auditLog *audit.Log, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Gate{db: db, mailer: mailer, audit: auditLog, ttl: ttl, now: time.Now}
}

type SendRequest struct {
	Email        string
	Purpose      models.OTPPurpose
	ConventionID string
	IP           string
}

type SendResult struct {
	ExpiresAt time.Time `json:"expiresAt"`
	Delivered bool      `json:"delivered"`
}

type VerifyRequest struct {
	Email        string
	Code         string
	Purpose      models.OTPPurpose // empty matches any purpose
	ConventionID string
	IP           string
}

type VerifyResult struct {
	Purpose  models.OTPPurpose `json:"purpose"`
	AuditLog *models.AuditLog  `json:"auditLog,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestCode stores a fresh code and mails it.
//
// A failed delivery is only a warning for activation codes: the code stays
// valid and an operator can relay it. Every other purpose reports
// DeliveryFailure.
func (g *Gate) RequestCode(ctx context.Context, req SendRequest) (*SendResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !req.Purpose.Valid() {
		return nil, apperr.New(apperr.Validation, "Email ou type de code invalide")
	}

	record := &models.OTP{
		Email:     email,
		Code:      utils.GenerateOTP(),
		Purpose:   req.Purpose,
		ExpiresAt: g.now().Add(g.ttl).UTC(),
	}
	if req.ConventionID != "" {
		id := req.ConventionID
		record.ConventionID = &id
	}
	if err := g.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, apperr.Wrap(err, "otp.persist", "could not store code")
	}

	res := &SendResult{ExpiresAt: record.ExpiresAt, Delivered: true}

	subject, body := utils.OTPEmail(record.Code, purposeLabels[req.Purpose], int(g.ttl/time.Minute))
	if err := g.mailer.Send(ctx, email, subject, body); err != nil {
		res.Delivered = false
		if req.Purpose == models.OTPPurposeActivation {
			logger.Step(ctx, "otp.deliver").Warn("activation code not delivered, code stays valid",
				"email", email, "error", err)
		} else {
			logger.Step(ctx, "otp.deliver").Error("code not delivered", "email", email, "purpose", req.Purpose, "error", err)
			return res, &apperr.Error{
				Kind:    apperr.DeliveryFailure,
				Message: "L'email n'a pas pu être envoyé, vérifiez l'adresse",
				Step:    "otp.deliver",
				Err:     err,
			}
		}
	}

	if req.ConventionID != "" {
		g.appendAudit(ctx, audit.Entry{
			ConventionID: req.ConventionID,
			Action:       models.AuditOTPSent,
			ActorEmail:   email,
			IP:           req.IP,
			Details:      "Code de signature envoyé",
		})
	}
	return res, nil
}

// VerifyCode consumes every record matching the request. It succeeds when at
// least one of them had not expired.
func (g *Gate) VerifyCode(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var (
		consumed Consumed
		expired  bool
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		consumed, expired, err = g.ConsumeTx(tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperr.New(apperr.CodeExpired, "Code expiré, demandez un nouveau code")
	}

	res := &VerifyResult{Purpose: consumed.Purpose}
	conventionID := req.ConventionID
	if conventionID == "" {
		conventionID = consumed.ConventionID
	}
	if consumed.Purpose == models.OTPPurposeSignature && conventionID != "" {
		res.AuditLog = g.appendAudit(ctx, audit.Entry{
			ConventionID: conventionID,
			Action:       models.AuditOTPValidated,
			ActorEmail:   normalizeEmail(req.Email),
			IP:           req.IP,
			Details:      "Code de signature validé",
		})
	}
	return res, nil
}

// Consumed describes the unexpired record that satisfied a verification.
type Consumed struct {
	Purpose      models.OTPPurpose
	ConventionID string
}

// ConsumeTx deletes all records matching req inside tx, and on success every
// other pending code of the same subject and purpose. expired is true when
// every match had expired; the deletion must still be committed in that case.
// Only one of two concurrent callers can see its delete affect every row it
// found, the other gets InvalidCode.
func (g *Gate) ConsumeTx(tx *gorm.DB, req VerifyRequest) (consumed Consumed, expired bool, err error) {
	email := normalizeEmail(req.Email)
	if email == "" || len(req.Code) != 4 {
		return Consumed{}, false, apperr.New(apperr.Validation, "Code invalide")
	}

	q := tx.Where("email = ? AND code = ?", email, req.Code)
	if req.Purpose != "" {
		q = q.Where("purpose = ?", req.Purpose)
	}
	if req.ConventionID != "" {
		q = q.Where("convention_id = ?", req.ConventionID)
	}

	var matches []models.OTP
	if err := q.Find(&matches).Error; err != nil {
		return Consumed{}, false, apperr.Wrap(err, "otp.lookup", "could not read codes")
	}
	if len(matches) == 0 {
		return Consumed{}, false, apperr.New(apperr.InvalidCode, "Code incorrect")
	}

	now := g.now()
	ids := make([]uint, 0, len(matches))
	expired = true
	for _, m := range matches {
		ids = append(ids, m.ID)
		if expired && !m.Expired(now) {
			expired = false
			consumed.Purpose = m.Purpose
			if m.ConventionID != nil {
				consumed.ConventionID = *m.ConventionID
			}
		}
	}

	del := tx.Where("id IN ?", ids).Delete(&models.OTP{})
	if del.Error != nil {
		return Consumed{}, false, apperr.Wrap(del.Error, "otp.consume", "could not consume code")
	}
	if del.RowsAffected != int64(len(ids)) {
		return Consumed{}, false, apperr.New(apperr.InvalidCode, "Code incorrect")
	}
	if expired {
		return Consumed{}, true, nil
	}

	// older codes sent to the same subject for the same action are obsolete
	siblings := tx.Where("email = ? AND purpose = ?", email, consumed.Purpose)
	if consumed.ConventionID != "" {
		siblings = siblings.Where("convention_id = ?", consumed.ConventionID)
	}
	if err := siblings.Delete(&models.OTP{}).Error; err != nil {
		return Consumed{}, false, apperr.Wrap(err, "otp.consume", "could not consume code")
	}
	return consumed, false, nil
}

// PurgeExpired removes codes that expired before cutoff.
func (g *Gate) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("expires_at < ?", cutoff.UTC()).Delete(&models.OTP{})
	if res.Error != nil {
		return 0, apperr.Wrap(res.Error, "otp.purge", "could not purge codes")
	}
	return res.RowsAffected, nil
}

// appendAudit never fails the caller.
func (g *Gate) appendAudit(ctx context.Context, e audit.Entry) *models.AuditLog {
	if g.audit == nil {
		return nil
	}
	row, err := g.audit.Append(ctx, nil, e)
	if err != nil {
		logger.Step(ctx, "otp.audit").Warn("audit entry not recorded", "convention", e.ConventionID, "action", e.Action, "error", err)
		return nil
	}
	return row
}
