package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/metadata"
	"dandi-api/models"
	"dandi-api/repositories"
)

type AssetService interface {
	Create(ctx context.Context, principal *models.Principal, identifier, version string, req models.CreateAssetRequest) (*models.Asset, error)
	Get(ctx context.Context, identifier, version, assetID string) (*models.Asset, error)
	List(ctx context.Context, identifier, version string, params models.ListParams) ([]models.Asset, int64, error)
	Update(ctx context.Context, principal *models.Principal, identifier, version, assetID string, req models.UpdateAssetRequest) (*models.Asset, error)
	Detail(asset *models.Asset) (*models.AssetDetailResponse, error)
}

type assetService struct {
	db        *gorm.DB
	dandisets repositories.DandisetRepository
	versions  repositories.VersionRepository
	assets    repositories.AssetRepository
	store     MetadataStore
	perms     PermissionChecker
	log       *logger.Logger
}

func NewAssetService(
	db *gorm.DB,
	dandisets repositories.DandisetRepository,
	versions repositories.VersionRepository,
	assets repositories.AssetRepository,
	store MetadataStore,
	perms PermissionChecker,
	baseLog *logger.Logger,
) AssetService {
	return &assetService{
		db:        db,
		dandisets: dandisets,
		versions:  versions,
		assets:    assets,
		store:     store,
		perms:     perms,
		log:       baseLog.With("service", "AssetService"),
	}
}

func (s *assetService) version(ctx context.Context, identifier, version string) (*models.Version, error) {
	dandisetID, err := models.ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	v, err := s.versions.Get(ctx, nil, dandisetID, version)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("version %s of dandiset %s not found", version, identifier))
	}
	return v, nil
}

// editableDraft resolves a version the principal may change assets in.
func (s *assetService) editableDraft(ctx context.Context, principal *models.Principal, identifier, version string) (*models.Version, error) {
	v, err := s.version(ctx, identifier, version)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.perms, principal, v.DandisetID); err != nil {
		return nil, err
	}
	if !v.IsDraft() {
		return nil, &models.ErrorMethodNotAllowed{Message: models.MessageDraftOnly}
	}
	return v, nil
}

// assetDocument injects the fields derived from the asset's blob and path.
func assetDocument(doc map[string]interface{}, path string, blob *models.AssetBlob) metadata.Document {
	out := metadata.Document(doc).Clone()
	out["path"] = path
	out["contentSize"] = blob.Size
	out["digest"] = map[string]interface{}{"dandi:sha2-256": blob.SHA256}
	return out
}

func (s *assetService) Create(ctx context.Context, principal *models.Principal, identifier, version string, req models.CreateAssetRequest) (*models.Asset, error) {
	draft, err := s.editableDraft(ctx, principal, identifier, version)
	if err != nil {
		return nil, err
	}

	var asset *models.Asset
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := s.assets.PathExists(ctx, tx, draft.ID, req.Path)
		if err != nil {
			return err
		}
		if taken {
			return &models.ErrorConflict{Message: fmt.Sprintf("asset already exists at path %s", req.Path)}
		}

		blob, err := s.assets.GetOrCreateBlob(ctx, tx, req.SHA256, req.Size)
		if err != nil {
			return err
		}
		record, err := s.store.GetOrCreateAsset(ctx, tx, assetDocument(req.Metadata, req.Path, blob))
		if err != nil {
			return err
		}

		asset = &models.Asset{
			UUID:       uuid.New(),
			Path:       req.Path,
			BlobID:     blob.ID,
			Blob:       blob,
			MetadataID: record.ID,
			Metadata:   record,
			Status:     models.StatusPending,
		}
		if err := s.assets.Create(ctx, tx, asset); err != nil {
			return err
		}
		if err := s.versions.AttachAssets(ctx, tx, draft.ID, []uint{asset.ID}); err != nil {
			return err
		}
		return s.markDraftPending(ctx, tx, draft)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("asset created", "dandiset", identifier, "asset_id", asset.UUID, "path", asset.Path)
	return asset, nil
}

func (s *assetService) Get(ctx context.Context, identifier, version, assetID string) (*models.Asset, error) {
	v, err := s.version(ctx, identifier, version)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, nil, v, assetID)
}

func (s *assetService) get(ctx context.Context, tx *gorm.DB, v *models.Version, assetID string) (*models.Asset, error) {
	missing := &models.ErrorNotFound{Message: fmt.Sprintf("asset %s not found", assetID)}
	id, err := uuid.Parse(assetID)
	if err != nil {
		return nil, missing
	}
	asset, err := s.assets.GetInVersion(ctx, tx, v.ID, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, missing
		}
		return nil, err
	}
	return asset, nil
}

func (s *assetService) List(ctx context.Context, identifier, version string, params models.ListParams) ([]models.Asset, int64, error) {
	v, err := s.version(ctx, identifier, version)
	if err != nil {
		return nil, 0, err
	}
	params.Normalize()
	return s.assets.ListInVersion(ctx, nil, v.ID, params.Offset(), params.PageSize)
}

// Update replaces an asset's metadata in the draft. Assets that are also
// part of a published version are copied first, so published versions keep
// the asset as it was.
func (s *assetService) Update(ctx context.Context, principal *models.Principal, identifier, version, assetID string, req models.UpdateAssetRequest) (*models.Asset, error) {
	draft, err := s.editableDraft(ctx, principal, identifier, version)
	if err != nil {
		return nil, err
	}

	var updated *models.Asset
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		asset, err := s.get(ctx, tx, draft, assetID)
		if err != nil {
			return err
		}
		path := asset.Path
		if req.Path != "" {
			path = req.Path
		}
		if path != asset.Path {
			taken, err := s.assets.PathExists(ctx, tx, draft.ID, path)
			if err != nil {
				return err
			}
			if taken {
				return &models.ErrorConflict{Message: fmt.Sprintf("asset already exists at path %s", path)}
			}
		}

		record, err := s.store.GetOrCreateAsset(ctx, tx, assetDocument(req.Metadata, path, asset.Blob))
		if err != nil {
			return err
		}

		published, err := s.assets.CountPublishedVersions(ctx, tx, asset.ID)
		if err != nil {
			return err
		}
		if published > 0 {
			updated = &models.Asset{
				UUID:       uuid.New(),
				Path:       path,
				BlobID:     asset.BlobID,
				Blob:       asset.Blob,
				MetadataID: record.ID,
				Metadata:   record,
				Status:     models.StatusPending,
			}
			if err := s.assets.Create(ctx, tx, updated); err != nil {
				return err
			}
			if err := s.versions.ReplaceAsset(ctx, tx, draft.ID, asset.ID, updated.ID); err != nil {
				return err
			}
		} else {
			asset.Path = path
			asset.MetadataID = record.ID
			asset.Metadata = record
			if err := asset.Transition(models.StatusPending); err != nil {
				return err
			}
			asset.ValidationError = ""
			if err := s.assets.Save(ctx, tx, asset); err != nil {
				return err
			}
			updated = asset
		}
		return s.markDraftPending(ctx, tx, draft)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("asset updated", "dandiset", identifier, "asset_id", updated.UUID)
	return updated, nil
}

// markDraftPending sends the draft back to Pending after its contents change.
func (s *assetService) markDraftPending(ctx context.Context, tx *gorm.DB, draft *models.Version) error {
	if draft.Status == models.StatusPending {
		return nil
	}
	if err := draft.Transition(models.StatusPending); err != nil {
		return err
	}
	draft.ValidationError = ""
	return s.versions.Save(ctx, tx, draft)
}

func (s *assetService) Detail(asset *models.Asset) (*models.AssetDetailResponse, error) {
	doc := metadata.Document{}
	if asset.Metadata != nil {
		var err error
		if doc, err = metadata.Decode(asset.Metadata.Metadata); err != nil {
			return nil, err
		}
	}
	return &models.AssetDetailResponse{
		AssetResponse:   AssetResponse(asset),
		ValidationError: asset.ValidationError,
		Metadata:        doc,
	}, nil
}

func AssetResponse(asset *models.Asset) models.AssetResponse {
	resp := models.AssetResponse{
		AssetID:  asset.UUID.String(),
		Path:     asset.Path,
		Size:     asset.Size(),
		Status:   asset.Status,
		Created:  asset.CreatedAt,
		Modified: asset.UpdatedAt,
	}
	if asset.Blob != nil {
		resp.SHA256 = asset.Blob.SHA256
	}
	return resp
}
