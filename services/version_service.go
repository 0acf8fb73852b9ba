package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"dandi-api/locker"
	"dandi-api/logger"
	"dandi-api/metadata"
	"dandi-api/models"
	"dandi-api/repositories"
)

type VersionServiceConfig struct {
	// MaxAttempts bounds publish retries after identifier collisions.
	MaxAttempts int
	// RequireValid refuses to publish versions whose publish status is not
	// Valid.
	RequireValid bool
	APIVersion   string
}

type VersionService interface {
	Get(ctx context.Context, identifier, version string) (*models.Version, error)
	List(ctx context.Context, identifier string, params models.ListParams) ([]models.Version, int64, error)
	Describe(ctx context.Context, versions []models.Version) ([]models.VersionResponse, error)
	Detail(ctx context.Context, v *models.Version) (*models.VersionDetailResponse, error)
	ValidationReport(ctx context.Context, identifier, version string) (*models.ValidationReport, error)
	UpdateDraftMetadata(ctx context.Context, principal *models.Principal, identifier, version string, req models.UpdateVersionRequest) (*models.Version, error)
	PublishPreview(ctx context.Context, tx *gorm.DB, draft *models.Version) (metadata.Document, error)
	Publish(ctx context.Context, principal *models.Principal, identifier, version string) (*models.Version, error)
}

type versionService struct {
	db          *gorm.DB
	cfg         VersionServiceConfig
	dandisets   repositories.DandisetRepository
	versions    repositories.VersionRepository
	assets      repositories.AssetRepository
	store       MetadataStore
	populator   MetadataPopulator
	identifiers IdentifierGenerator
	perms       PermissionChecker
	policy      PublishPolicy
	locks       locker.Locker
	now         func() time.Time
	log         *logger.Logger
}

// VersionServiceDeps groups the collaborators of the version service.
type VersionServiceDeps struct {
	Dandisets   repositories.DandisetRepository
	Versions    repositories.VersionRepository
	Assets      repositories.AssetRepository
	Store       MetadataStore
	Populator   MetadataPopulator
	Identifiers IdentifierGenerator
	Perms       PermissionChecker
	Policy      PublishPolicy
	Locks       locker.Locker
	Now         func() time.Time
}

func NewVersionService(db *gorm.DB, cfg VersionServiceConfig, deps VersionServiceDeps, baseLog *logger.Logger) VersionService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if deps.Policy == nil {
		deps.Policy = AdminOnly
	}
	if deps.Locks == nil {
		deps.Locks = locker.NewLocal()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &versionService{
		db:          db,
		cfg:         cfg,
		dandisets:   deps.Dandisets,
		versions:    deps.Versions,
		assets:      deps.Assets,
		store:       deps.Store,
		populator:   deps.Populator,
		identifiers: deps.Identifiers,
		perms:       deps.Perms,
		policy:      deps.Policy,
		locks:       deps.Locks,
		now:         deps.Now,
		log:         baseLog.With("service", "VersionService"),
	}
}

func (s *versionService) lookup(ctx context.Context, tx *gorm.DB, identifier, version string) (*models.Dandiset, *models.Version, error) {
	dandisetID, err := models.ParseIdentifier(identifier)
	if err != nil {
		return nil, nil, err
	}
	dandiset, err := s.dandisets.GetByID(ctx, tx, dandisetID)
	if err != nil {
		return nil, nil, notFound(err, fmt.Sprintf("dandiset %s not found", identifier))
	}
	v, err := s.versions.Get(ctx, tx, dandisetID, version)
	if err != nil {
		return nil, nil, notFound(err, fmt.Sprintf("version %s of dandiset %s not found", version, identifier))
	}
	return dandiset, v, nil
}

func (s *versionService) Get(ctx context.Context, identifier, version string) (*models.Version, error) {
	_, v, err := s.lookup(ctx, nil, identifier, version)
	return v, err
}

func (s *versionService) List(ctx context.Context, identifier string, params models.ListParams) ([]models.Version, int64, error) {
	dandisetID, err := models.ParseIdentifier(identifier)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.dandisets.GetByID(ctx, nil, dandisetID); err != nil {
		return nil, 0, notFound(err, fmt.Sprintf("dandiset %s not found", identifier))
	}
	params.Normalize()
	return s.versions.List(ctx, nil, dandisetID, params.Offset(), params.PageSize)
}

func (s *versionService) Describe(ctx context.Context, versions []models.Version) ([]models.VersionResponse, error) {
	ids := make([]uint, len(versions))
	for i := range versions {
		ids[i] = versions[i].ID
	}
	stats, err := s.versions.Stats(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.VersionResponse, len(versions))
	for i := range versions {
		out[i] = versionResponse(&versions[i], stats[versions[i].ID])
	}
	return out, nil
}

func versionResponse(v *models.Version, stats repositories.VersionStats) models.VersionResponse {
	resp := models.VersionResponse{
		Version:    v.Version,
		Name:       v.Name(),
		Created:    v.CreatedAt,
		Modified:   v.UpdatedAt,
		AssetCount: stats.AssetCount,
		Size:       stats.Size,
		Status:     v.Status,
	}
	if v.Dandiset != nil {
		resp.Dandiset = models.DandisetSummary{
			Identifier: v.Dandiset.Identifier(),
			Created:    v.Dandiset.CreatedAt,
			Modified:   v.Dandiset.UpdatedAt,
		}
	}
	return resp
}

func (s *versionService) Detail(ctx context.Context, v *models.Version) (*models.VersionDetailResponse, error) {
	described, err := s.Describe(ctx, []models.Version{*v})
	if err != nil {
		return nil, err
	}
	doc := metadata.Document{}
	if v.Metadata != nil {
		if doc, err = metadata.Decode(v.Metadata.Metadata); err != nil {
			return nil, err
		}
	}
	return &models.VersionDetailResponse{VersionResponse: described[0], Metadata: doc}, nil
}

func (s *versionService) ValidationReport(ctx context.Context, identifier, version string) (*models.ValidationReport, error) {
	_, v, err := s.lookup(ctx, nil, identifier, version)
	if err != nil {
		return nil, err
	}
	counts, err := s.versions.AssetStatusCounts(ctx, nil, v.ID)
	if err != nil {
		return nil, err
	}
	return &models.ValidationReport{
		Status:          v.Status,
		Valid:           v.Valid(counts),
		PublishStatus:   v.PublishStatus(counts),
		ValidationError: v.PublishValidationError(counts),
	}, nil
}

func (s *versionService) UpdateDraftMetadata(ctx context.Context, principal *models.Principal, identifier, version string, req models.UpdateVersionRequest) (*models.Version, error) {
	dandiset, v, err := s.lookup(ctx, nil, identifier, version)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.perms, principal, dandiset.ID); err != nil {
		return nil, err
	}
	if !v.IsDraft() {
		return nil, &models.ErrorMethodNotAllowed{Message: models.MessageDraftOnly}
	}

	doc := s.populator.PopulateDraft(dandiset, req.Name, metadata.Document(req.Metadata))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.store.GetOrCreate(ctx, tx, req.Name, doc)
		if err != nil {
			return err
		}
		v.MetadataID = record.ID
		v.Metadata = record
		if err := v.Transition(models.StatusPending); err != nil {
			return err
		}
		v.ValidationError = ""
		return s.versions.Save(ctx, tx, v)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("draft metadata updated", "dandiset", dandiset.Identifier(), "metadata_id", v.MetadataID)
	return v, nil
}

// PublishPreview computes the metadata draft would be published with, using
// the identifier a publish would get right now. Nothing is written.
func (s *versionService) PublishPreview(ctx context.Context, tx *gorm.DB, draft *models.Version) (metadata.Document, error) {
	identifier, err := s.identifiers.Next(ctx, tx, &draft.DandisetID)
	if err != nil {
		return nil, err
	}
	prospective := s.prospective(draft, identifier)
	return s.publishedMetadata(ctx, tx, prospective, draft)
}

func (s *versionService) prospective(draft *models.Version, identifier string) *models.Version {
	return &models.Version{
		DandisetID: draft.DandisetID,
		Dandiset:   draft.Dandiset,
		MetadataID: draft.MetadataID,
		Metadata:   draft.Metadata,
		Version:    identifier,
		Status:     models.StatusValid,
	}
}

func (s *versionService) publishedMetadata(ctx context.Context, tx *gorm.DB, v, draft *models.Version) (metadata.Document, error) {
	doc, err := s.populator.Populate(ctx, tx, v, draft)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	doc["publishedBy"] = metadata.PublishedBy(now, s.cfg.APIVersion)
	doc["datePublished"] = now.Format(time.RFC3339Nano)
	return doc, nil
}

func (s *versionService) Publish(ctx context.Context, principal *models.Principal, identifier, version string) (*models.Version, error) {
	ctx, span := tracer.Start(ctx, "version.publish")
	defer span.End()
	span.SetAttributes(attribute.String("dandiset", identifier), attribute.String("version", version))

	dandiset, draft, err := s.lookup(ctx, nil, identifier, version)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.perms, principal, dandiset.ID); err != nil {
		return nil, err
	}
	if !s.policy(principal) {
		return nil, models.NotAdmin()
	}
	if !draft.IsDraft() {
		return nil, &models.ErrorMethodNotAllowed{Message: models.MessagePublishNotDraft}
	}

	unlock, err := s.locks.Lock(ctx, dandiset.Identifier())
	if err != nil {
		return nil, err
	}
	defer unlock()

	if s.cfg.RequireValid {
		counts, err := s.versions.AssetStatusCounts(ctx, nil, draft.ID)
		if err != nil {
			return nil, err
		}
		if status := draft.PublishStatus(counts); status != models.StatusValid {
			return nil, &models.ErrorConflict{Message: fmt.Sprintf(
				"Dandiset version is %s and cannot be published: %s", status, draft.PublishValidationError(counts))}
		}
	}

	var published *models.Version
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			published, err = s.publishOnce(ctx, tx, draft)
			return err
		})
		if err == nil {
			span.SetAttributes(attribute.String("published_version", published.Version))
			s.log.Info("version published",
				"dandiset", dandiset.Identifier(), "version", published.Version, "attempt", attempt)
			return published, nil
		}
		if !ErrCollision.Has(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish failed")
			return nil, err
		}
		s.log.Warn("version identifier taken, retrying", "dandiset", dandiset.Identifier(), "attempt", attempt, "error", err)
	}

	span.SetStatus(codes.Error, "identifier collisions")
	return nil, &models.ErrorConflict{Message: fmt.Sprintf(
		"could not allocate a version identifier after %d attempts", s.cfg.MaxAttempts)}
}

// publishOnce snapshots draft into a new version inside tx.
func (s *versionService) publishOnce(ctx context.Context, tx *gorm.DB, draft *models.Version) (*models.Version, error) {
	identifier, err := s.identifiers.Next(ctx, tx, &draft.DandisetID)
	if err != nil {
		return nil, err
	}
	published := s.prospective(draft, identifier)

	doc, err := s.publishedMetadata(ctx, tx, published, draft)
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetOrCreate(ctx, tx, draft.Metadata.Name, doc)
	if err != nil {
		return nil, err
	}
	published.MetadataID = record.ID
	published.Metadata = record

	if err := s.versions.Create(ctx, tx, published); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCollision.Wrap(err)
		}
		return nil, err
	}

	assetIDs, err := s.assets.IDsInVersion(ctx, tx, draft.ID)
	if err != nil {
		return nil, err
	}
	if err := s.versions.AttachAssets(ctx, tx, published.ID, assetIDs); err != nil {
		return nil, err
	}
	return published, nil
}
