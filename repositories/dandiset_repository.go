package repositories

import (
	"context"

	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/models"
)

type DandisetRepository interface {
	Create(ctx context.Context, tx *gorm.DB, dandiset *models.Dandiset) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Dandiset, error)
	List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Dandiset, int64, error)
	AddOwner(ctx context.Context, tx *gorm.DB, dandisetID, userID uint) error
	HasRole(ctx context.Context, tx *gorm.DB, dandisetID, userID uint, role models.DandisetRole) (bool, error)
	Owners(ctx context.Context, tx *gorm.DB, dandisetID uint) ([]models.User, error)
}

type dandisetRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDandisetRepository(db *gorm.DB, baseLog *logger.Logger) DandisetRepository {
	return &dandisetRepository{db: db, log: baseLog.With("repo", "DandisetRepository")}
}

func (r *dandisetRepository) Create(ctx context.Context, tx *gorm.DB, dandiset *models.Dandiset) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).Omit("Owners", "Versions").Create(dandiset).Error)
}

func (r *dandisetRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Dandiset, error) {
	var dandiset models.Dandiset
	if err := conn(r.db, tx).WithContext(ctx).First(&dandiset, id).Error; err != nil {
		return nil, Error.Wrap(err)
	}
	return &dandiset, nil
}

func (r *dandisetRepository) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]models.Dandiset, int64, error) {
	var dandisets []models.Dandiset
	var total int64

	db := conn(r.db, tx).WithContext(ctx)
	if err := db.Model(&models.Dandiset{}).Count(&total).Error; err != nil {
		return nil, 0, Error.Wrap(err)
	}
	err := db.Order("id asc").Offset(offset).Limit(limit).Find(&dandisets).Error
	return dandisets, total, Error.Wrap(err)
}

func (r *dandisetRepository) AddOwner(ctx context.Context, tx *gorm.DB, dandisetID, userID uint) error {
	owner := models.DandisetOwner{DandisetID: dandisetID, UserID: userID}
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).Create(&owner).Error)
}

// HasRole answers whether userID holds role on the dandiset. Owner is the
// only per-dandiset role.
func (r *dandisetRepository) HasRole(ctx context.Context, tx *gorm.DB, dandisetID, userID uint, role models.DandisetRole) (bool, error) {
	if role != models.RoleOwner {
		return false, nil
	}
	var count int64
	err := conn(r.db, tx).WithContext(ctx).Model(&models.DandisetOwner{}).
		Where("dandiset_id = ? AND user_id = ?", dandisetID, userID).
		Count(&count).Error
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}

func (r *dandisetRepository) Owners(ctx context.Context, tx *gorm.DB, dandisetID uint) ([]models.User, error) {
	var users []models.User
	err := conn(r.db, tx).WithContext(ctx).
		Joins("JOIN dandiset_owners ON dandiset_owners.user_id = users.id").
		Where("dandiset_owners.dandiset_id = ?", dandisetID).
		Order("users.id asc").
		Find(&users).Error
	return users, Error.Wrap(err)
}
