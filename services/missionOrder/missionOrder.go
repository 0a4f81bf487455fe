// Package missionOrder manages teacher travel orders and their batch
// approval under the distance policy.
package missionOrder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pfmp/apperr"
	"pfmp/logger"
	"pfmp/models"
	"pfmp/utils"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Options struct {
	MaxKm   float64
	Workers int
	// Async persists approved orders after Approve has returned.
	Async bool
}

type Service struct {
	db       *gorm.DB
	geocoder utils.Geocoder
	blobs    utils.BlobStore
	opts     Options
	now      func() time.Time

	// signOrder persists one approved order; replaced in tests.
	signOrder func(ctx context.Context, o *models.MissionOrder) error
	inflight  sync.WaitGroup
}

func NewService(db *gorm.DB, geocoder utils.Geocoder, blobs utils.BlobStore, opts Options) *Service {
	if opts.MaxKm <= 0 {
		opts.MaxKm = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	s := &Service{db: db, geocoder: geocoder, blobs: blobs, opts: opts, now: time.Now}
	s.signOrder = s.saveSigned
	return s
}

type CreateInput struct {
	ConventionID   string
	TeacherID      string
	StudentID      string
	SchoolAddress  string
	CompanyAddress string
	SchoolCoords   *utils.Coordinates
	CompanyCoords  *utils.Coordinates
}

// Create returns the order of (convention, teacher), creating it PENDING on
// first call. created is false when the order already existed.
func (s *Service) Create(ctx context.Context, in CreateInput) (order *models.MissionOrder, created bool, err error) {
	var conv models.Convention
	if err := s.db.WithContext(ctx).Where("id = ?", in.ConventionID).Take(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperr.New(apperr.NotFound, "Convention introuvable")
		}
		return nil, false, apperr.Wrap(err, "missionorder.load_convention", "could not read convention")
	}
	if !conv.Status.AtLeast(models.StatusValidatedTeacher) {
		return nil, false, apperr.New(apperr.Conflict, "L'enseignant n'a pas encore validé la convention")
	}

	if existing, err := s.find(ctx, in.ConventionID, in.TeacherID); err != nil || existing != nil {
		return existing, false, err
	}

	if strings.TrimSpace(in.SchoolAddress) == "" {
		in.SchoolAddress = conv.SchoolAddress
	}
	if strings.TrimSpace(in.CompanyAddress) == "" {
		in.CompanyAddress = conv.CompanyAddress
	}
	if in.StudentID == "" {
		in.StudentID = conv.StudentID
	}

	school, company, err := s.locate(ctx, in)
	if err != nil {
		return nil, false, err
	}

	order = &models.MissionOrder{
		ConventionID:   in.ConventionID,
		TeacherID:      in.TeacherID,
		StudentID:      in.StudentID,
		SchoolAddress:  in.SchoolAddress,
		CompanyAddress: in.CompanyAddress,
		DistanceKm:     utils.RoundKm(utils.HaversineKm(school, company)),
		Status:         models.MissionOrderPending,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(order)
	if res.Error != nil {
		return nil, false, apperr.Wrap(res.Error, "missionorder.create", "could not create mission order")
	}
	if res.RowsAffected == 0 {
		existing, err := s.find(ctx, in.ConventionID, in.TeacherID)
		return existing, false, err
	}
	logger.WithContext(ctx).Info("mission order created", "order", order.ID, "convention", order.ConventionID, "distance_km", order.DistanceKm)
	return order, true, nil
}

func (s *Service) find(ctx context.Context, conventionID, teacherID string) (*models.MissionOrder, error) {
	var o models.MissionOrder
	err := s.db.WithContext(ctx).Where("convention_id = ? AND teacher_id = ?", conventionID, teacherID).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, "missionorder.find", "could not read mission order")
	}
	return &o, nil
}

// locate resolves both ends, geocoding whichever was not supplied.
func (s *Service) locate(ctx context.Context, in CreateInput) (school, company utils.Coordinates, err error) {
	if in.SchoolCoords != nil {
		school = *in.SchoolCoords
	}
	if in.CompanyCoords != nil {
		company = *in.CompanyCoords
	}
	if in.SchoolCoords != nil && in.CompanyCoords != nil {
		return school, company, nil
	}
	if s.geocoder == nil {
		return school, company, apperr.New(apperr.Validation, "Coordonnées requises : aucun service de géocodage configuré")
	}

	g, gctx := errgroup.WithContext(ctx)
	if in.SchoolCoords == nil {
		g.Go(func() (err error) {
			school, err = s.geocoder.Geocode(gctx, in.SchoolAddress)
			return err
		})
	}
	if in.CompanyCoords == nil {
		g.Go(func() (err error) {
			company, err = s.geocoder.Geocode(gctx, in.CompanyAddress)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, utils.ErrAddressNotFound) {
			return school, company, apperr.New(apperr.Validation, "Adresse introuvable, précisez-la ou fournissez les coordonnées")
		}
		return school, company, apperr.Wrap(err, "missionorder.geocode", "could not geocode addresses")
	}
	return school, company, nil
}

type ListFilter struct {
	Status    models.MissionOrderStatus
	TeacherID string
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.MissionOrder, error) {
	q := s.db.WithContext(ctx).Order("id asc")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.TeacherID != "" {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	var out []models.MissionOrder
	if err := q.Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, "missionorder.list", "could not list mission orders")
	}
	return out, nil
}
