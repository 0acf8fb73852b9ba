package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/metadata"
	"dandi-api/models"
	"dandi-api/repositories"
)

type DandisetService interface {
	Create(ctx context.Context, principal *models.Principal, req models.CreateDandisetRequest) (*models.Dandiset, error)
	Get(ctx context.Context, identifier string) (*models.DandisetResponse, error)
	List(ctx context.Context, params models.ListParams) ([]models.DandisetResponse, int64, error)
}

type dandisetService struct {
	db        *gorm.DB
	dandisets repositories.DandisetRepository
	versions  repositories.VersionRepository
	store     MetadataStore
	populator MetadataPopulator
	describer VersionService
	log       *logger.Logger
}

func NewDandisetService(
	db *gorm.DB,
	dandisets repositories.DandisetRepository,
	versions repositories.VersionRepository,
	store MetadataStore,
	populator MetadataPopulator,
	describer VersionService,
	baseLog *logger.Logger,
) DandisetService {
	return &dandisetService{
		db:        db,
		dandisets: dandisets,
		versions:  versions,
		store:     store,
		populator: populator,
		describer: describer,
		log:       baseLog.With("service", "DandisetService"),
	}
}

// Create registers a dandiset owned by principal together with its draft.
func (s *dandisetService) Create(ctx context.Context, principal *models.Principal, req models.CreateDandisetRequest) (*models.Dandiset, error) {
	if principal == nil {
		return nil, &models.ErrorUnauthorized{Message: "authentication required"}
	}

	dandiset := &models.Dandiset{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.dandisets.Create(ctx, tx, dandiset); err != nil {
			return err
		}
		if err := s.dandisets.AddOwner(ctx, tx, dandiset.ID, principal.UserID); err != nil {
			return err
		}

		doc := s.populator.PopulateDraft(dandiset, req.Name, metadata.Document(req.Metadata))
		record, err := s.store.GetOrCreate(ctx, tx, req.Name, doc)
		if err != nil {
			return err
		}
		draft := &models.Version{
			DandisetID: dandiset.ID,
			MetadataID: record.ID,
			Version:    models.DraftVersion,
			Status:     models.StatusPending,
		}
		return s.versions.Create(ctx, tx, draft)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dandiset created", "dandiset", dandiset.Identifier(), "owner", principal.Username)
	return dandiset, nil
}

func (s *dandisetService) Get(ctx context.Context, identifier string) (*models.DandisetResponse, error) {
	id, err := models.ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	dandiset, err := s.dandisets.GetByID(ctx, nil, id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("dandiset %s not found", identifier))
	}
	return s.describe(ctx, dandiset)
}

func (s *dandisetService) List(ctx context.Context, params models.ListParams) ([]models.DandisetResponse, int64, error) {
	params.Normalize()
	dandisets, total, err := s.dandisets.List(ctx, nil, params.Offset(), params.PageSize)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.DandisetResponse, 0, len(dandisets))
	for i := range dandisets {
		resp, err := s.describe(ctx, &dandisets[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *resp)
	}
	return out, total, nil
}

func (s *dandisetService) describe(ctx context.Context, dandiset *models.Dandiset) (*models.DandisetResponse, error) {
	resp := &models.DandisetResponse{
		Identifier: dandiset.Identifier(),
		Created:    dandiset.CreatedAt,
		Modified:   dandiset.UpdatedAt,
	}

	var versions []models.Version
	draft, err := s.versions.Get(ctx, nil, dandiset.ID, models.DraftVersion)
	switch {
	case err == nil:
		versions = append(versions, *draft)
	case !repositories.IsNotFound(err):
		return nil, err
	}
	latest, err := s.versions.LatestPublished(ctx, nil, dandiset.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		versions = append(versions, *latest)
	}

	described, err := s.describer.Describe(ctx, versions)
	if err != nil {
		return nil, err
	}
	for i := range described {
		if described[i].Version == models.DraftVersion {
			resp.DraftVersion = &described[i]
		} else {
			resp.MostRecentPublishedVersion = &described[i]
		}
	}
	return resp, nil
}
