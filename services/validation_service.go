package services

import (
	"context"

	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/metadata"
	"dandi-api/models"
	"dandi-api/repositories"
)

// ValidationResult counts what a validation pass looked at.
type ValidationResult struct {
	Assets   int
	Versions int
	Invalid  int
}

type ValidationService interface {
	// ValidateVersion validates a Pending draft against the metadata it
	// would be published with. Drafts in other states are left as they are.
	ValidateVersion(ctx context.Context, v *models.Version) error
	// ValidateAsset validates a Pending asset's metadata.
	ValidateAsset(ctx context.Context, asset *models.Asset) error
	// ValidatePending validates every Pending asset, then every Pending draft.
	ValidatePending(ctx context.Context) (ValidationResult, error)
}

type validationService struct {
	db       *gorm.DB
	versions repositories.VersionRepository
	assets   repositories.AssetRepository
	preview  VersionService
	log      *logger.Logger
}

func NewValidationService(db *gorm.DB, versions repositories.VersionRepository, assets repositories.AssetRepository, preview VersionService, baseLog *logger.Logger) ValidationService {
	return &validationService{
		db:       db,
		versions: versions,
		assets:   assets,
		preview:  preview,
		log:      baseLog.With("service", "ValidationService"),
	}
}

func (s *validationService) ValidateVersion(ctx context.Context, v *models.Version) error {
	if !v.IsDraft() {
		return &models.ErrorMethodNotAllowed{Message: models.MessageDraftOnly}
	}
	if v.Status != models.StatusPending {
		return nil
	}
	ok, err := s.setStatus(ctx, v, models.StatusValidating, "")
	if err != nil || !ok {
		return err
	}

	doc, err := s.preview.PublishPreview(ctx, nil, v)
	if err != nil {
		if _, resetErr := s.setStatus(ctx, v, models.StatusPending, ""); resetErr != nil {
			s.log.Error("failed to reset version status", "version_id", v.ID, "error", resetErr)
		}
		return err
	}

	problems := metadata.ValidateVersion(doc)
	to := models.StatusValid
	if problems != "" {
		to = models.StatusInvalid
	}
	ok, err = s.setStatus(ctx, v, to, problems)
	if err != nil {
		return err
	}
	if ok {
		s.log.Info("version validated", "version_id", v.ID, "status", v.Status)
	}
	return nil
}

// setStatus moves v to status unless the stored draft changed since v was
// read. An edit resets the draft to Pending, so a stale result is dropped and
// v keeps its previous status.
func (s *validationService) setStatus(ctx context.Context, v *models.Version, status models.Status, problems string) (bool, error) {
	from, prevErr := v.Status, v.ValidationError
	if err := v.Transition(status); err != nil {
		return false, err
	}
	v.ValidationError = problems
	ok, err := s.versions.SetStatus(ctx, nil, v, from)
	if err != nil || !ok {
		v.Status, v.ValidationError = from, prevErr
	}
	if err == nil && !ok {
		s.log.Info("draft changed during validation, result dropped", "version_id", v.ID)
	}
	return ok, err
}

func (s *validationService) ValidateAsset(ctx context.Context, asset *models.Asset) error {
	if asset.Status != models.StatusPending {
		return nil
	}
	if asset.Metadata == nil {
		return &models.ErrorBadRequest{Message: "asset metadata not loaded"}
	}
	doc, err := metadata.Decode(asset.Metadata.Metadata)
	if err != nil {
		return err
	}

	problems := metadata.ValidateAsset(doc)
	to := models.StatusValid
	if problems != "" {
		to = models.StatusInvalid
	}
	for _, status := range []models.Status{models.StatusValidating, to} {
		if err := asset.Transition(status); err != nil {
			return err
		}
	}
	asset.ValidationError = problems
	return s.assets.Save(ctx, nil, asset)
}

func (s *validationService) ValidatePending(ctx context.Context) (ValidationResult, error) {
	var result ValidationResult

	assets, err := s.assets.ListByStatus(ctx, nil, models.StatusPending)
	if err != nil {
		return result, err
	}
	for i := range assets {
		if err := s.ValidateAsset(ctx, &assets[i]); err != nil {
			return result, err
		}
		result.Assets++
		if assets[i].Status == models.StatusInvalid {
			result.Invalid++
		}
	}

	drafts, err := s.versions.ListDraftsByStatus(ctx, nil, models.StatusPending)
	if err != nil {
		return result, err
	}
	for i := range drafts {
		if err := s.ValidateVersion(ctx, &drafts[i]); err != nil {
			return result, err
		}
		result.Versions++
		if drafts[i].Status == models.StatusInvalid {
			result.Invalid++
		}
	}
	return result, nil
}
