package repositories

import (
	"context"

	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/models"
)

type VersionMetadataRepository interface {
	Create(ctx context.Context, tx *gorm.DB, record *models.VersionMetadata) error
	GetByContent(ctx context.Context, tx *gorm.DB, name, hash string) (*models.VersionMetadata, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.VersionMetadata, error)
	References(ctx context.Context, tx *gorm.DB, id uint) (int64, error)
	CountUnreferenced(ctx context.Context, tx *gorm.DB) (int64, error)
}

type versionMetadataRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionMetadataRepository(db *gorm.DB, baseLog *logger.Logger) VersionMetadataRepository {
	return &versionMetadataRepository{db: db, log: baseLog.With("repo", "VersionMetadataRepository")}
}

func (r *versionMetadataRepository) Create(ctx context.Context, tx *gorm.DB, record *models.VersionMetadata) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).Create(record).Error)
}

func (r *versionMetadataRepository) GetByContent(ctx context.Context, tx *gorm.DB, name, hash string) (*models.VersionMetadata, error) {
	var record models.VersionMetadata
	err := conn(r.db, tx).WithContext(ctx).
		Where("name = ? AND metadata_hash = ?", name, hash).
		First(&record).Error
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &record, nil
}

func (r *versionMetadataRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.VersionMetadata, error) {
	var record models.VersionMetadata
	if err := conn(r.db, tx).WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, Error.Wrap(err)
	}
	return &record, nil
}

// References is the number of versions pointing at the record.
func (r *versionMetadataRepository) References(ctx context.Context, tx *gorm.DB, id uint) (int64, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).Model(&models.Version{}).
		Where("metadata_id = ?", id).
		Count(&count).Error
	return count, Error.Wrap(err)
}

func (r *versionMetadataRepository) CountUnreferenced(ctx context.Context, tx *gorm.DB) (int64, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).Model(&models.VersionMetadata{}).
		Where("NOT EXISTS (SELECT 1 FROM versions WHERE versions.metadata_id = version_metadata.id)").
		Count(&count).Error
	return count, Error.Wrap(err)
}
