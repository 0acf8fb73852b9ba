package services

import (
	"dandi-api/models"
)

func (s *ServiceSuite) TestGarbageReportAndCollect() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	kept := s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	orphan := s.addAsset(identifier, "b.nwb", 25, nwbAsset)

	report, err := s.garbage.Report(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Assets)

	// detach b.nwb from every version
	s.Require().NoError(s.db.Exec("DELETE FROM version_assets WHERE asset_id = ?", orphan.ID).Error)

	stale, err := s.garbage.StaleAssets(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(orphan.UUID, stale[0].UUID)

	report, err = s.garbage.Report(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Assets)
	s.EqualValues(0, report.AssetBlobs, "the blob is still referenced by the stale asset")

	deleted, err := s.garbage.CollectAssets(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, deleted)

	report, err = s.garbage.Report(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, report.Assets)
	s.EqualValues(1, report.AssetBlobs)
	s.EqualValues(25, report.AssetBlobBytes)

	_, err = s.assets.Get(s.ctx, identifier, models.DraftVersion, kept.UUID.String())
	s.NoError(err)
}

func (s *ServiceSuite) TestPublishedAssetsAreNeverStale() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	asset := s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	_, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)

	_, err = s.assets.Update(s.ctx, s.owner, identifier, models.DraftVersion, asset.UUID.String(),
		models.UpdateAssetRequest{Metadata: s.decode(`{"encodingFormat":"application/x-nwb"}`)})
	s.Require().NoError(err)

	stale, err := s.garbage.StaleAssets(s.ctx)
	s.Require().NoError(err)
	s.Empty(stale)
}

func (s *ServiceSuite) TestUnreferencedMetadataIsReported() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	_, err := s.versions.UpdateDraftMetadata(s.ctx, s.owner, identifier, models.DraftVersion,
		models.UpdateVersionRequest{Name: "D1", Metadata: s.decode(`{"a":1}`)})
	s.Require().NoError(err)

	report, err := s.garbage.Report(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, report.UnreferencedMetadata)
}
