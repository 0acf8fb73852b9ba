package services

import (
	"context"

	"gorm.io/gorm"

	"dandi-api/metadata"
	"dandi-api/models"
)

// editingPreview runs edit before computing the publish preview, as a user
// request landing mid-validation would.
type editingPreview struct {
	VersionService
	edit func()
}

func (p *editingPreview) PublishPreview(ctx context.Context, tx *gorm.DB, draft *models.Version) (metadata.Document, error) {
	p.edit()
	return p.VersionService.PublishPreview(ctx, tx, draft)
}

func (s *ServiceSuite) TestValidatePendingMovesThroughLifecycle() {
	identifier := s.createDandiset("D1", `{"description":"d"}`, s.owner)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	s.addAsset(identifier, "b.bin", 10, `{}`)

	result, err := s.validation.ValidatePending(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, result.Assets)
	s.Equal(1, result.Versions)
	s.Equal(2, result.Invalid)

	draft := s.version(identifier, models.DraftVersion)
	s.Equal(models.StatusInvalid, draft.Status)
	s.Contains(draft.ValidationError, "license is a required field")
	s.Contains(draft.ValidationError, "contributor is a required field")

	report, err := s.versions.ValidationReport(s.ctx, identifier, models.DraftVersion)
	s.Require().NoError(err)
	s.Equal(draft.ValidationError, report.ValidationError, "the version's own error comes first")

	_, err = s.versions.UpdateDraftMetadata(s.ctx, s.owner, identifier, models.DraftVersion,
		models.UpdateVersionRequest{Name: "D1", Metadata: s.decode(publishableMetadata)})
	s.Require().NoError(err)
	draft = s.version(identifier, models.DraftVersion)
	s.Equal(models.StatusPending, draft.Status)
	s.Empty(draft.ValidationError)

	result, err = s.validation.ValidatePending(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, result.Assets)
	s.Equal(1, result.Versions)
	s.Equal(models.StatusValid, s.version(identifier, models.DraftVersion).Status)
}

func (s *ServiceSuite) TestValidateVersionSkipsSettledAndPublished() {
	identifier := s.createDandiset("D1", publishableMetadata, s.owner, s.admin)
	draft := s.version(identifier, models.DraftVersion)
	s.Require().NoError(s.validation.ValidateVersion(s.ctx, draft))
	s.Equal(models.StatusValid, draft.Status)

	// already settled
	s.Require().NoError(s.validation.ValidateVersion(s.ctx, draft))
	s.Equal(models.StatusValid, draft.Status)

	published, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)
	err = s.validation.ValidateVersion(s.ctx, s.version(identifier, published.Version))
	var notAllowed *models.ErrorMethodNotAllowed
	s.ErrorAs(err, &notAllowed)
}

func (s *ServiceSuite) TestValidateAsset() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	good := s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	bad := s.addAsset(identifier, "b.bin", 10, `{}`)

	s.Require().NoError(s.validation.ValidateAsset(s.ctx, good))
	s.Equal(models.StatusValid, good.Status)
	s.Empty(good.ValidationError)

	s.Require().NoError(s.validation.ValidateAsset(s.ctx, bad))
	s.Equal(models.StatusInvalid, bad.Status)
	s.Contains(bad.ValidationError, "encodingFormat is a required field")

	counts, err := s.versionRepo.AssetStatusCounts(s.ctx, nil, s.version(identifier, models.DraftVersion).ID)
	s.Require().NoError(err)
	s.EqualValues(1, counts[models.StatusValid])
	s.EqualValues(1, counts[models.StatusInvalid])
}

func (s *ServiceSuite) TestValidateVersionKeepsConcurrentEdit() {
	identifier := s.createDandiset("D1", publishableMetadata, s.owner)
	draft := s.version(identifier, models.DraftVersion)

	preview := &editingPreview{VersionService: s.versions, edit: func() {
		_, err := s.versions.UpdateDraftMetadata(s.ctx, s.owner, identifier, models.DraftVersion,
			models.UpdateVersionRequest{Name: "Edited", Metadata: s.decode(`{"foo":"bar"}`)})
		s.Require().NoError(err)
	}}
	validation := NewValidationService(s.db, s.versionRepo, s.assetRepo, preview, s.log)
	s.Require().NoError(validation.ValidateVersion(s.ctx, draft))

	stored := s.version(identifier, models.DraftVersion)
	s.Equal("Edited", stored.Name())
	s.Equal(models.StatusPending, stored.Status)
	s.Empty(stored.ValidationError)
	s.Equal("bar", s.storedMetadata(stored)["foo"])

	// the next pass validates the edited metadata
	s.Require().NoError(s.validation.ValidateVersion(s.ctx, stored))
	s.Equal(models.StatusInvalid, s.version(identifier, models.DraftVersion).Status)
}

func (s *ServiceSuite) TestValidateVersionSkipsDraftChangedSinceRead() {
	identifier := s.createDandiset("D1", publishableMetadata, s.owner)
	stale := s.version(identifier, models.DraftVersion)

	_, err := s.versions.UpdateDraftMetadata(s.ctx, s.owner, identifier, models.DraftVersion,
		models.UpdateVersionRequest{Name: "Edited", Metadata: s.decode(publishableMetadata)})
	s.Require().NoError(err)

	s.Require().NoError(s.validation.ValidateVersion(s.ctx, stale))
	s.Equal(models.StatusPending, stale.Status)
	stored := s.version(identifier, models.DraftVersion)
	s.Equal(models.StatusPending, stored.Status)
	s.Equal("Edited", stored.Name())
}
