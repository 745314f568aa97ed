package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/fitstack/fitstack-settlement/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PackageRepository implements ports.PackageRepository.
type PackageRepository struct {
	db *gorm.DB
}

// NewPackageRepository creates a new package repository.
func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// GetByID loads a package by id.
func (r *PackageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Package, error) {
	var rec packageRecord
	if err := conn(ctx, r.db).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPackageNotFound
		}
		return nil, err
	}
	return rec.toDomain(), nil
}

// PromotionRepository implements ports.PromotionRepository.
type PromotionRepository struct {
	db *gorm.DB
}

// NewPromotionRepository creates a new promotion repository.
func NewPromotionRepository(db *gorm.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// FindActiveForPackage returns the largest active discount covering the
// package at t, or nil.
func (r *PromotionRepository) FindActiveForPackage(ctx context.Context, packageID uuid.UUID, t time.Time) (*domain.Promotion, error) {
	var recs []promotionRecord
	err := conn(ctx, r.db).
		Where("status = ? AND start_date <= ? AND end_date >= ?", domain.PromotionActive, t, t).
		Where("? = ANY(package_ids)", packageID.String()).
		Order("discount_percent DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	for i := range recs {
		if p := recs[i].toDomain(); p.AppliesTo(packageID, t) {
			return p, nil
		}
	}
	return nil, nil
}
