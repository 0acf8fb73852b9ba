package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/models"
)

// BlobUsage is the number and total size of blobs no asset refers to.
type BlobUsage struct {
	Count int64
	Bytes int64
}

type AssetRepository interface {
	Create(ctx context.Context, tx *gorm.DB, asset *models.Asset) error
	Save(ctx context.Context, tx *gorm.DB, asset *models.Asset) error
	GetInVersion(ctx context.Context, tx *gorm.DB, versionID uint, assetID uuid.UUID) (*models.Asset, error)
	ListInVersion(ctx context.Context, tx *gorm.DB, versionID uint, offset, limit int) ([]models.Asset, int64, error)
	IDsInVersion(ctx context.Context, tx *gorm.DB, versionID uint) ([]uint, error)
	EachMetadataBatch(ctx context.Context, tx *gorm.DB, versionID uint, batchSize int, fn func([]datatypes.JSON) error) error
	PathExists(ctx context.Context, tx *gorm.DB, versionID uint, path string) (bool, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status models.Status) ([]models.Asset, error)
	CountPublishedVersions(ctx context.Context, tx *gorm.DB, assetID uint) (int64, error)

	GetOrCreateBlob(ctx context.Context, tx *gorm.DB, sha256 string, size int64) (*models.AssetBlob, error)
	GetMetadataByHash(ctx context.Context, tx *gorm.DB, hash string) (*models.AssetMetadata, error)
	CreateMetadata(ctx context.Context, tx *gorm.DB, record *models.AssetMetadata) error

	Stale(ctx context.Context, tx *gorm.DB) ([]models.Asset, error)
	DeleteStale(ctx context.Context, tx *gorm.DB, ids []uint) (int64, error)
	StaleBlobs(ctx context.Context, tx *gorm.DB) (BlobUsage, error)
}

type assetRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepository(db *gorm.DB, baseLog *logger.Logger) AssetRepository {
	return &assetRepository{db: db, log: baseLog.With("repo", "AssetRepository")}
}

func (r *assetRepository) Create(ctx context.Context, tx *gorm.DB, asset *models.Asset) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).
		Omit("Blob", "Metadata", "Versions").
		Create(asset).Error)
}

func (r *assetRepository) Save(ctx context.Context, tx *gorm.DB, asset *models.Asset) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).
		Model(asset).
		Select("Path", "MetadataID", "Status", "ValidationError", "UpdatedAt").
		Updates(asset).Error)
}

func (r *assetRepository) GetInVersion(ctx context.Context, tx *gorm.DB, versionID uint, assetID uuid.UUID) (*models.Asset, error) {
	var asset models.Asset
	err := conn(r.db, tx).WithContext(ctx).
		Select("assets.*").
		Preload("Blob").Preload("Metadata").
		Joins("JOIN version_assets ON version_assets.asset_id = assets.id").
		Where("version_assets.version_id = ? AND assets.uuid = ?", versionID, assetID).
		First(&asset).Error
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &asset, nil
}

func (r *assetRepository) ListInVersion(ctx context.Context, tx *gorm.DB, versionID uint, offset, limit int) ([]models.Asset, int64, error) {
	var assets []models.Asset
	var total int64

	db := conn(r.db, tx).WithContext(ctx)
	err := db.Model(&models.Asset{}).
		Joins("JOIN version_assets ON version_assets.asset_id = assets.id").
		Where("version_assets.version_id = ?", versionID).
		Count(&total).Error
	if err != nil {
		return nil, 0, Error.Wrap(err)
	}
	err = db.Select("assets.*").
		Preload("Blob").
		Joins("JOIN version_assets ON version_assets.asset_id = assets.id").
		Where("version_assets.version_id = ?", versionID).
		Order("assets.path asc, assets.id asc").
		Offset(offset).Limit(limit).
		Find(&assets).Error
	return assets, total, Error.Wrap(err)
}

func (r *assetRepository) IDsInVersion(ctx context.Context, tx *gorm.DB, versionID uint) ([]uint, error) {
	var ids []uint
	err := conn(r.db, tx).WithContext(ctx).
		Model(&versionAsset{}).
		Where("version_id = ?", versionID).
		Order("asset_id asc").
		Pluck("asset_id", &ids).Error
	return ids, Error.Wrap(err)
}

// EachMetadataBatch streams the metadata documents of a version's assets in
// asset id order, batchSize at a time. A non-nil error from fn stops the scan
// and is returned as is.
func (r *assetRepository) EachMetadataBatch(ctx context.Context, tx *gorm.DB, versionID uint, batchSize int, fn func([]datatypes.JSON) error) error {
	var lastID uint
	for {
		var rows []struct {
			ID       uint
			Metadata datatypes.JSON
		}
		err := conn(r.db, tx).WithContext(ctx).
			Table("assets").
			Select("assets.id AS id, asset_metadata.metadata AS metadata").
			Joins("JOIN version_assets ON version_assets.asset_id = assets.id").
			Joins("JOIN asset_metadata ON asset_metadata.id = assets.metadata_id").
			Where("version_assets.version_id = ? AND assets.id > ?", versionID, lastID).
			Order("assets.id asc").
			Limit(batchSize).
			Scan(&rows).Error
		if err != nil {
			return Error.Wrap(err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]datatypes.JSON, len(rows))
		for i, row := range rows {
			batch[i] = row.Metadata
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(rows) < batchSize {
			return nil
		}
		lastID = rows[len(rows)-1].ID
	}
}

func (r *assetRepository) PathExists(ctx context.Context, tx *gorm.DB, versionID uint, path string) (bool, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).Model(&models.Asset{}).
		Joins("JOIN version_assets ON version_assets.asset_id = assets.id").
		Where("version_assets.version_id = ? AND assets.path = ?", versionID, path).
		Count(&count).Error
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}

func (r *assetRepository) ListByStatus(ctx context.Context, tx *gorm.DB, status models.Status) ([]models.Asset, error) {
	var assets []models.Asset
	err := conn(r.db, tx).WithContext(ctx).
		Preload("Metadata").
		Where("status = ?", status).
		Order("id asc").
		Find(&assets).Error
	return assets, Error.Wrap(err)
}

// CountPublishedVersions is the number of non-draft versions holding the
// asset.
func (r *assetRepository) CountPublishedVersions(ctx context.Context, tx *gorm.DB, assetID uint) (int64, error) {
	var count int64
	err := conn(r.db, tx).WithContext(ctx).
		Model(&versionAsset{}).
		Joins("JOIN versions ON versions.id = version_assets.version_id").
		Where("version_assets.asset_id = ? AND versions.version <> ?", assetID, models.DraftVersion).
		Count(&count).Error
	return count, Error.Wrap(err)
}

func (r *assetRepository) GetOrCreateBlob(ctx context.Context, tx *gorm.DB, sha256 string, size int64) (*models.AssetBlob, error) {
	db := conn(r.db, tx).WithContext(ctx)

	var blob models.AssetBlob
	err := db.Where("sha256 = ?", sha256).First(&blob).Error
	if err == nil {
		return &blob, nil
	}
	if !IsNotFound(err) {
		return nil, Error.Wrap(err)
	}

	blob = models.AssetBlob{BlobID: uuid.New(), SHA256: sha256, Size: size}
	if err := db.Create(&blob).Error; err != nil {
		return nil, Error.Wrap(err)
	}
	return &blob, nil
}

func (r *assetRepository) GetMetadataByHash(ctx context.Context, tx *gorm.DB, hash string) (*models.AssetMetadata, error) {
	var record models.AssetMetadata
	if err := conn(r.db, tx).WithContext(ctx).Where("metadata_hash = ?", hash).First(&record).Error; err != nil {
		return nil, Error.Wrap(err)
	}
	return &record, nil
}

func (r *assetRepository) CreateMetadata(ctx context.Context, tx *gorm.DB, record *models.AssetMetadata) error {
	return Error.Wrap(conn(r.db, tx).WithContext(ctx).Create(record).Error)
}

const staleAssetCondition = "NOT EXISTS (SELECT 1 FROM version_assets WHERE version_assets.asset_id = assets.id)"

// Stale lists assets that belong to no version.
func (r *assetRepository) Stale(ctx context.Context, tx *gorm.DB) ([]models.Asset, error) {
	var assets []models.Asset
	err := conn(r.db, tx).WithContext(ctx).
		Preload("Blob").
		Where(staleAssetCondition).
		Order("id asc").
		Find(&assets).Error
	return assets, Error.Wrap(err)
}

// DeleteStale deletes the given assets that are still stale.
func (r *assetRepository) DeleteStale(ctx context.Context, tx *gorm.DB, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := conn(r.db, tx).WithContext(ctx).
		Where("id IN ?", ids).
		Where(staleAssetCondition).
		Delete(&models.Asset{})
	return res.RowsAffected, Error.Wrap(res.Error)
}

func (r *assetRepository) StaleBlobs(ctx context.Context, tx *gorm.DB) (BlobUsage, error) {
	var usage BlobUsage
	err := conn(r.db, tx).WithContext(ctx).
		Model(&models.AssetBlob{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size), 0) AS bytes").
		Where("NOT EXISTS (SELECT 1 FROM assets WHERE assets.blob_id = asset_blobs.id)").
		Scan(&usage).Error
	return usage, Error.Wrap(err)
}
