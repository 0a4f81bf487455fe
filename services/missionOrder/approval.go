package missionOrder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pfmp/apperr"
	"pfmp/logger"
	"pfmp/models"
	"pfmp/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Decision is the approver's answer to the distance warning.
type Decision string

const (
	DecisionNone         Decision = ""
	DecisionExcludeRisky Decision = "exclude_risky"
	DecisionForceAll     Decision = "force_all"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionNone, DecisionExcludeRisky, DecisionForceAll:
		return true
	}
	return false
}

// Partition splits orders on the distance threshold. Orders exactly at
// maxKm are safe.
func Partition(orders []models.MissionOrder, maxKm float64) (safe, risky []models.MissionOrder) {
	for _, o := range orders {
		if o.DistanceKm > maxKm {
			risky = append(risky, o)
		} else {
			safe = append(safe, o)
		}
	}
	return safe, risky
}

type ApproveInput struct {
	IDs           []uint
	Decision      Decision
	SignatureImg  string
	ApproverEmail string
}

// DistanceWarning is attached to DistanceConfirmationRequired errors.
type DistanceWarning struct {
	RiskyIDs []uint  `json:"riskyIds"`
	SafeIDs  []uint  `json:"safeIds"`
	MaxKm    float64 `json:"maxKm"`
}

type ApproveResult struct {
	Batch    *models.MissionOrderBatch `json:"batch,omitempty"`
	Orders   []models.MissionOrder     `json:"orders"`
	Excluded []uint                    `json:"excluded,omitempty"`
	Noop     bool                      `json:"noop"`
}

func ids(orders []models.MissionOrder) []uint {
	out := make([]uint, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func dedupe(in []uint) []uint {
	seen := make(map[uint]bool, len(in))
	out := make([]uint, 0, len(in))
	for _, id := range in {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Approve signs a selection of PENDING orders. When some exceed the
// distance threshold nothing is committed until the approver either
// excludes them or forces the whole selection.
//
// The returned orders are the optimistic projection. Persistence runs per
// order afterwards and a failure only marks the batch PARTIAL for
// Reconcile to replay.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (*ApproveResult, error) {
	if !in.Decision.Valid() {
		return nil, apperr.New(apperr.Validation, "Décision inconnue")
	}
	selected := dedupe(in.IDs)
	if len(selected) == 0 {
		return nil, apperr.New(apperr.Validation, "Aucun ordre de mission sélectionné")
	}

	var orders []models.MissionOrder
	if err := s.db.WithContext(ctx).Where("id IN ?", selected).Order("id asc").Find(&orders).Error; err != nil {
		return nil, apperr.Wrap(err, "missionorder.load", "could not read mission orders")
	}
	if len(orders) != len(selected) {
		return nil, apperr.New(apperr.NotFound, "Ordre de mission introuvable")
	}
	for _, o := range orders {
		if o.Status != models.MissionOrderPending {
			return nil, &apperr.Error{Kind: apperr.Conflict, Message: "Seuls les ordres en attente peuvent être signés", Data: []uint{o.ID}}
		}
	}

	final := orders
	res := &ApproveResult{}
	safe, risky := Partition(orders, s.opts.MaxKm)
	if len(risky) > 0 {
		switch in.Decision {
		case DecisionNone:
			return nil, &apperr.Error{
				Kind:    apperr.DistanceConfirmationRequired,
				Message: "Certains trajets dépassent la distance autorisée, confirmez votre choix",
				Data:    DistanceWarning{RiskyIDs: ids(risky), SafeIDs: ids(safe), MaxKm: s.opts.MaxKm},
			}
		case DecisionExcludeRisky:
			res.Excluded = ids(risky)
			if len(safe) == 0 {
				res.Noop = true
				res.Orders = []models.MissionOrder{}
				return res, nil
			}
			final = safe
		}
	}

	now := s.now().UTC()
	batchID := uuid.NewString()
	img, err := utils.StoreSignatureImage(ctx, s.blobs, "mission-orders/"+batchID, in.SignatureImg)
	if err != nil {
		if errors.Is(err, utils.ErrBadDataURL) {
			return nil, apperr.New(apperr.Validation, "Image de signature illisible")
		}
		return nil, apperr.Wrap(err, "missionorder.signature_img", "could not store signature image")
	}

	batch := &models.MissionOrderBatch{
		ID:            batchID,
		ApproverEmail: in.ApproverEmail,
		OrderIDs:      datatypes.NewJSONType(ids(final)),
		FailedIDs:     datatypes.NewJSONType([]uint{}),
		Forced:        len(risky) > 0 && in.Decision == DecisionForceAll,
		SignatureDate: now,
		SignatureImg:  img,
		Status:        models.BatchPending,
	}
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, apperr.Wrap(err, "missionorder.batch", "could not record approval")
	}

	projection := make([]models.MissionOrder, len(final))
	for i, o := range final {
		applySignature(&o, now, img)
		projection[i] = o
	}
	res.Batch = batch
	res.Orders = projection

	if s.opts.Async {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.persist(context.WithoutCancel(ctx), batch, projection)
		}()
	} else {
		s.persist(ctx, batch, projection)
	}
	return res, nil
}

func applySignature(o *models.MissionOrder, at time.Time, img string) {
	o.Status = models.MissionOrderSigned
	o.SignatureDate = &at
	o.SignatureHash = utils.NewMissionOrderHash(at)
	o.SignatureImg = img
}

// persist writes every order of the batch in parallel and records which
// ones failed. Nothing is rolled back.
func (s *Service) persist(ctx context.Context, batch *models.MissionOrderBatch, orders []models.MissionOrder) {
	var (
		mu     sync.Mutex
		failed []uint
	)
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)
	for i := range orders {
		o := &orders[i]
		g.Go(func() error {
			if err := s.signOrder(ctx, o); err != nil {
				logger.Step(ctx, "missionorder.persist").Error("mission order not persisted",
					"batch", batch.ID, "order", o.ID, "error", err)
				mu.Lock()
				failed = append(failed, o.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.finishAttempt(ctx, batch, failed)
}

func (s *Service) finishAttempt(ctx context.Context, batch *models.MissionOrderBatch, failed []uint) {
	status := models.BatchCompleted
	if len(failed) > 0 {
		status = models.BatchPartial
	}
	failed = dedupe(failed)
	batch.Status = status
	batch.FailedIDs = datatypes.NewJSONType(failed)
	batch.Attempts++

	err := s.db.WithContext(ctx).Model(&models.MissionOrderBatch{}).Where("id = ?", batch.ID).Updates(map[string]any{
		"status":     status,
		"failed_ids": batch.FailedIDs,
		"attempts":   batch.Attempts,
	}).Error
	if err != nil {
		logger.Step(ctx, "missionorder.batch_status").Error("batch status not recorded", "batch", batch.ID, "error", err)
	}
}

func (s *Service) saveSigned(ctx context.Context, o *models.MissionOrder) error {
	res := s.db.WithContext(ctx).Model(&models.MissionOrder{}).
		Where("id = ? AND status = ?", o.ID, models.MissionOrderPending).
		Updates(map[string]any{
			"status":         o.Status,
			"signature_date": o.SignatureDate,
			"signature_hash": o.SignatureHash,
			"signature_img":  o.SignatureImg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNotPending
	}
	return nil
}

var errNotPending = errors.New("order is no longer pending")

// Reconcile replays PARTIAL batches onto orders still PENDING. Orders that
// were signed meanwhile count as done. It returns how many batches became
// COMPLETED.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	var batches []models.MissionOrderBatch
	if err := s.db.WithContext(ctx).Where("status = ?", models.BatchPartial).Order("created_at asc").Find(&batches).Error; err != nil {
		return 0, apperr.Wrap(err, "missionorder.reconcile", "could not list batches")
	}

	completed := 0
	for i := range batches {
		b := &batches[i]
		var pending []models.MissionOrder
		if err := s.db.WithContext(ctx).
			Where("id IN ? AND status = ?", b.FailedIDs.Data(), models.MissionOrderPending).
			Find(&pending).Error; err != nil {
			logger.Step(ctx, "missionorder.reconcile").Warn("batch skipped", "batch", b.ID, "error", err)
			continue
		}

		var failed []uint
		for j := range pending {
			o := &pending[j]
			applySignature(o, b.SignatureDate, b.SignatureImg)
			if err := s.signOrder(ctx, o); err != nil && !errors.Is(err, errNotPending) {
				logger.Step(ctx, "missionorder.reconcile").Warn("order still not persisted", "batch", b.ID, "order", o.ID, "error", err)
				failed = append(failed, o.ID)
			}
		}
		s.finishAttempt(ctx, b, failed)
		if len(failed) == 0 {
			completed++
		}
	}
	return completed, nil
}

// Wait blocks until asynchronous persistence has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Batch returns a recorded approval.
func (s *Service) Batch(ctx context.Context, id string) (*models.MissionOrderBatch, error) {
	var b models.MissionOrderBatch
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "Lot introuvable")
		}
		return nil, apperr.Wrap(err, "missionorder.batch", "could not read batch")
	}
	return &b, nil
}
