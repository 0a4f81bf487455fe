// Package audit stores the append-only activity log of conventions.
package audit

import (
	"context"
	"time"

	"pfmp/apperr"
	"pfmp/models"

	"gorm.io/gorm"
)

type Entry struct {
	ConventionID string
	Action       string
	ActorEmail   string
	IP           string
	Details      string
}

type Log struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLog(db *gorm.DB) *Log {
	return &Log{db: db, now: time.Now}
}

// Append writes one entry. Pass tx to make the entry part of a larger
// transaction, nil to use the log's own connection.
func (l *Log) Append(ctx context.Context, tx *gorm.DB, e Entry) (*models.AuditLog, error) {
	if tx == nil {
		tx = l.db
	}
	row := &models.AuditLog{
		ConventionID: e.ConventionID,
		Date:         l.now().UTC(),
		Action:       e.Action,
		ActorEmail:   e.ActorEmail,
		IP:           e.IP,
		Details:      e.Details,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return nil, apperr.Wrap(err, "audit.append", "could not record audit entry")
	}
	return row, nil
}

// List returns the entries of a convention in insertion order.
func (l *Log) List(ctx context.Context, conventionID string) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	if err := l.db.WithContext(ctx).
		Where("convention_id = ?", conventionID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(err, "audit.list", "could not read audit log")
	}
	return rows, nil
}
