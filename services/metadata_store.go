package services

import (
	"context"

	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/metadata"
	"dandi-api/models"
	"dandi-api/repositories"
)

// MetadataStore hands out shared, immutable metadata records. Equal content
// always resolves to the same row.
type MetadataStore interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, name string, doc metadata.Document) (*models.VersionMetadata, error)
	GetOrCreateAsset(ctx context.Context, tx *gorm.DB, doc metadata.Document) (*models.AssetMetadata, error)
}

type metadataStore struct {
	versionMetadata repositories.VersionMetadataRepository
	assets          repositories.AssetRepository
	log             *logger.Logger
}

func NewMetadataStore(versionMetadata repositories.VersionMetadataRepository, assets repositories.AssetRepository, baseLog *logger.Logger) MetadataStore {
	return &metadataStore{
		versionMetadata: versionMetadata,
		assets:          assets,
		log:             baseLog.With("service", "MetadataStore"),
	}
}

func (s *metadataStore) GetOrCreate(ctx context.Context, tx *gorm.DB, name string, doc metadata.Document) (*models.VersionMetadata, error) {
	raw, err := doc.Canonical()
	if err != nil {
		return nil, err
	}
	hash, err := doc.Hash()
	if err != nil {
		return nil, err
	}

	existing, err := s.versionMetadata.GetByContent(ctx, tx, name, hash)
	if err == nil {
		return existing, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, err
	}

	record := &models.VersionMetadata{Name: name, Metadata: raw, MetadataHash: hash}
	if err := s.createOrReuse(ctx, tx, func(db *gorm.DB) error {
		return s.versionMetadata.Create(ctx, db, record)
	}); err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		// created concurrently by another request
		return s.versionMetadata.GetByContent(ctx, tx, name, hash)
	}
	return record, nil
}

func (s *metadataStore) GetOrCreateAsset(ctx context.Context, tx *gorm.DB, doc metadata.Document) (*models.AssetMetadata, error) {
	raw, err := doc.Canonical()
	if err != nil {
		return nil, err
	}
	hash, err := doc.Hash()
	if err != nil {
		return nil, err
	}

	existing, err := s.assets.GetMetadataByHash(ctx, tx, hash)
	if err == nil {
		return existing, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, err
	}

	record := &models.AssetMetadata{Metadata: raw, MetadataHash: hash}
	if err := s.createOrReuse(ctx, tx, func(db *gorm.DB) error {
		return s.assets.CreateMetadata(ctx, db, record)
	}); err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		return s.assets.GetMetadataByHash(ctx, tx, hash)
	}
	return record, nil
}

// createOrReuse runs create in a savepoint when called inside a transaction,
// so a unique violation does not abort the enclosing transaction on postgres.
func (s *metadataStore) createOrReuse(ctx context.Context, tx *gorm.DB, create func(db *gorm.DB) error) error {
	if tx == nil {
		return create(nil)
	}
	return tx.WithContext(ctx).Transaction(func(nested *gorm.DB) error {
		return create(nested)
	})
}
