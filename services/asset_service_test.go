package services

import (
	"dandi-api/metadata"
	"dandi-api/models"
)

func (s *ServiceSuite) TestCreateAssetInjectsBlobFields() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	asset := s.addAsset(identifier, "sub-1/a.nwb", 42, `{"encodingFormat":"application/x-nwb","contentSize":1}`)

	got, err := s.assets.Get(s.ctx, identifier, models.DraftVersion, asset.UUID.String())
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.EqualValues(42, got.Size())

	detail, err := s.assets.Detail(got)
	s.Require().NoError(err)
	s.Equal("sub-1/a.nwb", detail.Metadata["path"])
	s.Equal("42", detail.Metadata["contentSize"].(interface{ String() string }).String())
	s.Equal(got.Blob.SHA256, detail.Metadata["digest"].(map[string]interface{})["dandi:sha2-256"])
}

func (s *ServiceSuite) TestCreateAssetRules() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	s.addAsset(identifier, "a.nwb", 1, `{}`)

	_, err := s.assets.Create(s.ctx, s.owner, identifier, models.DraftVersion, models.CreateAssetRequest{
		Path: "a.nwb", SHA256: "ab", Size: 1, Metadata: s.decode(`{}`),
	})
	var conflict *models.ErrorConflict
	s.ErrorAs(err, &conflict)

	_, err = s.assets.Create(s.ctx, s.other, identifier, models.DraftVersion, models.CreateAssetRequest{
		Path: "b.nwb", SHA256: "ab", Size: 1, Metadata: s.decode(`{}`),
	})
	var denied *models.ErrorPermissionDenied
	s.ErrorAs(err, &denied)

	published, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)
	_, err = s.assets.Create(s.ctx, s.owner, identifier, published.Version, models.CreateAssetRequest{
		Path: "b.nwb", SHA256: "ab", Size: 1, Metadata: s.decode(`{}`),
	})
	var notAllowed *models.ErrorMethodNotAllowed
	s.ErrorAs(err, &notAllowed)
}

func (s *ServiceSuite) TestGetAssetNotFound() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	var missing *models.ErrorNotFound

	_, err := s.assets.Get(s.ctx, identifier, models.DraftVersion, "not-a-uuid")
	s.ErrorAs(err, &missing)

	_, err = s.assets.Get(s.ctx, identifier, models.DraftVersion, "1f9e3a0e-7c55-4b1e-9d0a-2f0b1b6f0c11")
	s.ErrorAs(err, &missing)

	_, err = s.assets.Get(s.ctx, identifier, "0.000000.0000", "1f9e3a0e-7c55-4b1e-9d0a-2f0b1b6f0c11")
	s.ErrorAs(err, &missing)
}

func (s *ServiceSuite) TestUpdateAssetInPlace() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	asset := s.addAsset(identifier, "a.nwb", 10, `{"encodingFormat":"application/x-nwb"}`)
	_, err := s.validation.ValidatePending(s.ctx)
	s.Require().NoError(err)

	updated, err := s.assets.Update(s.ctx, s.owner, identifier, models.DraftVersion, asset.UUID.String(),
		models.UpdateAssetRequest{Path: "renamed.nwb", Metadata: s.decode(`{"encodingFormat":"application/x-nwb","note":"x"}`)})
	s.Require().NoError(err)

	s.Equal(asset.UUID, updated.UUID, "unpublished assets are edited in place")
	s.Equal("renamed.nwb", updated.Path)
	s.Equal(models.StatusPending, updated.Status)
	s.Equal(models.StatusPending, s.version(identifier, models.DraftVersion).Status, "editing an asset resets the draft")
}

func (s *ServiceSuite) TestUpdatePublishedAssetCopiesIt() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	asset := s.addAsset(identifier, "a.nwb", 10, `{"encodingFormat":"application/x-nwb","note":"before"}`)
	published, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)

	updated, err := s.assets.Update(s.ctx, s.owner, identifier, models.DraftVersion, asset.UUID.String(),
		models.UpdateAssetRequest{Metadata: s.decode(`{"encodingFormat":"application/x-nwb","note":"after"}`)})
	s.Require().NoError(err)
	s.NotEqual(asset.UUID, updated.UUID)
	s.Equal(asset.BlobID, updated.BlobID, "the copy shares the blob")

	old, err := s.assets.Get(s.ctx, identifier, published.Version, asset.UUID.String())
	s.Require().NoError(err)
	oldDoc, err := metadata.Decode(old.Metadata.Metadata)
	s.Require().NoError(err)
	s.Equal("before", oldDoc["note"])

	_, err = s.assets.Get(s.ctx, identifier, models.DraftVersion, asset.UUID.String())
	var missing *models.ErrorNotFound
	s.ErrorAs(err, &missing, "the draft now holds the copy")

	current, err := s.assets.Get(s.ctx, identifier, models.DraftVersion, updated.UUID.String())
	s.Require().NoError(err)
	doc, err := metadata.Decode(current.Metadata.Metadata)
	s.Require().NoError(err)
	s.Equal("after", doc["note"])

	drafts, total, err := s.assets.List(s.ctx, identifier, models.DraftVersion, models.ListParams{})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Len(drafts, 1)
}

func (s *ServiceSuite) TestListAssetsPaginates() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	for _, p := range []string{"c.nwb", "a.nwb", "b.nwb"} {
		s.addAsset(identifier, p, 1, `{}`)
	}

	page, total, err := s.assets.List(s.ctx, identifier, models.DraftVersion, models.ListParams{Page: 2, PageSize: 2})
	s.Require().NoError(err)
	s.EqualValues(3, total)
	s.Require().Len(page, 1)
	s.Equal("c.nwb", page[0].Path)
}
