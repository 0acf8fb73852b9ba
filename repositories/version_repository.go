package repositories

import (
	"context"

	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/models"
)

// VersionStats is the number of assets and their total size in a version.
type VersionStats struct {
	VersionID  uint
	AssetCount int64
	Size       int64
}

type VersionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, version *models.Version) error
	Save(ctx context.Context, tx *gorm.DB, version *models.Version) error
	SetStatus(ctx context.Context, tx *gorm.DB, version *models.Version, from models.Status) (bool, error)
	Get(ctx context.Context, tx *gorm.DB, dandisetID uint, version string) (*models.Version, error)
	Exists(ctx context.Context, tx *gorm.DB, dandisetID *uint, version string) (bool, error)
	List(ctx context.Context, tx *gorm.DB, dandisetID uint, offset, limit int) ([]models.Version, int64, error)
	LatestPublished(ctx context.Context, tx *gorm.DB, dandisetID uint) (*models.Version, error)
	ListDraftsByStatus(ctx context.Context, tx *gorm.DB, status models.Status) ([]models.Version, error)
	Count(ctx context.Context, tx *gorm.DB, dandisetID uint) (int64, error)
	AssetStatusCounts(ctx context.Context, tx *gorm.DB, versionID uint) (models.AssetStatusCounts, error)
	Stats(ctx context.Context, tx *gorm.DB, versionIDs []uint) (map[uint]VersionStats, error)
	AttachAssets(ctx context.Context, tx *gorm.DB, versionID uint, assetIDs []uint) error
	ReplaceAsset(ctx context.Context, tx *gorm.DB, versionID, oldAssetID, newAssetID uint) error
}

type versionRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVersionRepository(db *gorm.DB, baseLog *logger.Logger) VersionRepository {
	return &versionRepository{db: db, log: baseLog.With("repo", "VersionRepository")}
}

func (r *versionRepository) Create(ctx context.Context, tx *gorm.DB, version *models.Version) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).
		Omit("Dandiset", "Metadata", "Assets").
		Create(version).Error)
}

// Save writes the mutable columns of an existing version.
func (r *versionRepository) Save(ctx context.Context, tx *gorm.DB, version *models.Version) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).
		Model(version).
		Select("MetadataID", "Status", "ValidationError", "DOI", "UpdatedAt").
		Updates(version).Error)
}

// SetStatus writes only the status columns of version, and only while the
// stored row still has status from and the same metadata. It reports whether
// a row was updated.
func (r *versionRepository) SetStatus(ctx context.Context, tx *gorm.DB, version *models.Version, from models.Status) (bool, error) {
	result := conn(r.db, tx).WithContext(ctx).
		Model(&models.Version{}).
		Where("id = ? AND status = ? AND metadata_id = ?", version.ID, from, version.MetadataID).
		Updates(map[string]interface{}{
			"status":           version.Status,
			"validation_error": version.ValidationError,
		})
	if result.Error != nil {
		return false, Error.Wrap(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *versionRepository) Get(ctx context.Context, tx *gorm.DB, dandisetID uint, version string) (*models.Version, error) {
	var v models.Version
	err := conn(r.db, tx).WithContext(ctx).
		Preload("Dandiset").
		Preload("Metadata").
		Where("dandiset_id = ? AND version = ?", dandisetID, version).
		First(&v).Error
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &v, nil
}

// Exists checks for version within one dandiset, or across all dandisets
// when dandisetID is nil.
func (r *versionRepository) Exists(ctx context.Context, tx *gorm.DB, dandisetID *uint, version string) (bool, error) {
	query := conn(r.db, tx).WithContext(ctx).Model(&models.Version{}).Where("version = ?", version)
	if dandisetID != nil {
		query = query.Where("dandiset_id = ?", *dandisetID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}

func (r *versionRepository) List(ctx context.Context, tx *gorm.DB, dandisetID uint, offset, limit int) ([]models.Version, int64, error) {
	var versions []models.Version
	var total int64

	db := conn(r.db, tx).WithContext(ctx)
	if err := db.Model(&models.Version{}).Where("dandiset_id = ?", dandisetID).Count(&total).Error; err != nil {
		return nil, 0, Error.Wrap(err)
	}
	err := db.Preload("Dandiset").Preload("Metadata").
		Where("dandiset_id = ?", dandisetID).
		Order("created_at asc, id asc").
		Offset(offset).Limit(limit).
		Find(&versions).Error
	return versions, total, Error.Wrap(err)
}

// LatestPublished returns nil without error when nothing is published yet.
func (r *versionRepository) LatestPublished(ctx context.Context, tx *gorm.DB, dandisetID uint) (*models.Version, error) {
	var versions []models.Version
	err := conn(r.db, tx).WithContext(ctx).
		Preload("Dandiset").Preload("Metadata").
		Where("dandiset_id = ? AND version <> ?", dandisetID, models.DraftVersion).
		Order("version desc").
		Limit(1).
		Find(&versions).Error
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *versionRepository) ListDraftsByStatus(ctx context.Context, tx *gorm.DB, status models.Status) ([]models.Version, error) {
	var versions []models.Version
	err := conn(r.db, tx).WithContext(ctx).
		Preload("Dandiset").Preload("Metadata").
		Where("version = ? AND status = ?", models.DraftVersion, status).
		Order("id asc").
		Find(&versions).Error
	return versions, Error.Wrap(err)
}

func (r *versionRepository) Count(ctx context.Context, tx *gorm.DB, dandisetID uint) (int64, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).Model(&models.Version{}).
		Where("dandiset_id = ?", dandisetID).
		Count(&count).Error
	return count, Error.Wrap(err)
}

func (r *versionRepository) AssetStatusCounts(ctx context.Context, tx *gorm.DB, versionID uint) (models.AssetStatusCounts, error) {
	var rows []struct {
		Status models.Status
		Count  int64
	}
	err := conn(r.db, tx).WithContext(ctx).
		Table("assets").
		Select("assets.status AS status, COUNT(*) AS count").
		Joins("JOIN version_assets ON version_assets.asset_id = assets.id").
		Where("version_assets.version_id = ?", versionID).
		Group("assets.status").
		Scan(&rows).Error
	if err != nil {
		return nil, Error.Wrap(err)
	}
	counts := models.AssetStatusCounts{}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Stats returns asset count and size per version. Versions without assets
// are absent from the map.
func (r *versionRepository) Stats(ctx context.Context, tx *gorm.DB, versionIDs []uint) (map[uint]VersionStats, error) {
	stats := make(map[uint]VersionStats, len(versionIDs))
	if len(versionIDs) == 0 {
		return stats, nil
	}
	var rows []VersionStats
	err := conn(r.db, tx).WithContext(ctx).
		Table("version_assets").
		Select("version_assets.version_id AS version_id, COUNT(*) AS asset_count, COALESCE(SUM(asset_blobs.size), 0) AS size").
		Joins("JOIN assets ON assets.id = version_assets.asset_id").
		Joins("JOIN asset_blobs ON asset_blobs.id = assets.blob_id").
		Where("version_assets.version_id IN ?", versionIDs).
		Group("version_assets.version_id").
		Scan(&rows).Error
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for _, row := range rows {
		stats[row.VersionID] = row
	}
	return stats, nil
}

func (r *versionRepository) AttachAssets(ctx context.Context, tx *gorm.DB, versionID uint, assetIDs []uint) error {
	if len(assetIDs) == 0 {
		return nil
	}
	rows := make([]versionAsset, 0, len(assetIDs))
	for _, id := range assetIDs {
		rows = append(rows, versionAsset{VersionID: versionID, AssetID: id})
	}
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).CreateInBatches(rows, 500).Error)
}

// ReplaceAsset swaps one asset for another within a single version.
func (r *versionRepository) ReplaceAsset(ctx context.Context, tx *gorm.DB, versionID, oldAssetID, newAssetID uint) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).
		Model(&versionAsset{}).
		Where("version_id = ? AND asset_id = ?", versionID, oldAssetID).
		Update("asset_id", newAssetID).Error)
}
