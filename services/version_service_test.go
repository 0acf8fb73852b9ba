package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"dandi-api/locker"
	"dandi-api/manifests"
	"dandi-api/metadata"
	"dandi-api/models"
	"dandi-api/repositories"
)

const publishableMetadata = `{
	"description": "Recordings from mouse cortex.",
	"license": ["spdx:CC-BY-4.0"],
	"schemaVersion": "0.4.4",
	"contributor": [
		{"name": "Doe, Jane", "includeInCitation": true},
		{"name": "Funder", "includeInCitation": false}
	]
}`

const nwbAsset = `{"encodingFormat": "application/x-nwb", "wasAttributedTo": [{"identifier": "sub-1", "species": {"name": "Mus musculus"}}]}`

func (s *ServiceSuite) TestCreateDandisetStoresDraft() {
	identifier := s.createDandiset("My Dataset", `{"foo":"bar","citation":"stale"}`, s.owner)
	s.Equal("000001", identifier)

	draft := s.version(identifier, models.DraftVersion)
	s.Equal(models.StatusPending, draft.Status)
	s.Equal("My Dataset", draft.Name())
	s.Equal(map[string]interface{}{
		"foo":        "bar",
		"name":       "My Dataset",
		"identifier": "DANDI:000001",
	}, map[string]interface{}(s.storedMetadata(draft)))
}

func (s *ServiceSuite) TestUpdateDraftMetadataInjectsOnlyIdentity() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	s.addAsset(identifier, "sub-1/a.nwb", 100, nwbAsset)

	v, err := s.versions.UpdateDraftMetadata(s.ctx, s.owner, identifier, models.DraftVersion, models.UpdateVersionRequest{
		Name:     "X",
		Metadata: s.decode(`{"foo":"bar"}`),
	})
	s.Require().NoError(err)
	s.Equal(models.StatusPending, v.Status)

	stored := s.storedMetadata(s.version(identifier, models.DraftVersion))
	s.Equal(map[string]interface{}{
		"foo":        "bar",
		"name":       "X",
		"identifier": "DANDI:" + identifier,
	}, map[string]interface{}(stored))
	s.NotContains(stored, "citation")
	s.NotContains(stored, "assetsSummary")
}

func (s *ServiceSuite) TestUpdateDraftMetadataPermissions() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	req := models.UpdateVersionRequest{Name: "X", Metadata: s.decode(`{}`)}

	_, err := s.versions.UpdateDraftMetadata(s.ctx, s.other, identifier, models.DraftVersion, req)
	var denied *models.ErrorPermissionDenied
	s.Require().ErrorAs(err, &denied)
	s.Equal(models.ReasonNotOwner, denied.Reason)

	published, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)

	_, err = s.versions.UpdateDraftMetadata(s.ctx, s.owner, identifier, published.Version, req)
	var notAllowed *models.ErrorMethodNotAllowed
	s.Require().ErrorAs(err, &notAllowed)
	s.Equal(models.MessageDraftOnly, notAllowed.Message)

	_, err = s.versions.UpdateDraftMetadata(s.ctx, s.owner, "999999", models.DraftVersion, req)
	var missing *models.ErrorNotFound
	s.ErrorAs(err, &missing)
}

func (s *ServiceSuite) TestIdenticalMetadataSharesRecord() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	update := func(doc string) uint {
		v, err := s.versions.UpdateDraftMetadata(s.ctx, s.owner, identifier, models.DraftVersion,
			models.UpdateVersionRequest{Name: "Same", Metadata: s.decode(doc)})
		s.Require().NoError(err)
		return v.MetadataID
	}

	first := update(`{"a":1,"b":{"c":[1,2]}}`)
	second := update(`{"b":{"c":[1,2]},"a":1}`)
	s.Equal(first, second)

	third := update(`{"a":2}`)
	s.NotEqual(first, third)

	refs, err := s.versionMetaRepo.References(s.ctx, nil, first)
	s.Require().NoError(err)
	s.EqualValues(0, refs, "abandoned records are kept but unreferenced")

	refs, err = s.versionMetaRepo.References(s.ctx, nil, third)
	s.Require().NoError(err)
	s.EqualValues(1, refs)
}

func (s *ServiceSuite) TestMetadataStoreGetOrCreate() {
	doc := s.decode(`{"x":"y"}`)
	a, err := s.store.GetOrCreate(s.ctx, nil, "n", doc)
	s.Require().NoError(err)
	b, err := s.store.GetOrCreate(s.ctx, nil, "n", doc)
	s.Require().NoError(err)
	s.Equal(a.ID, b.ID)

	c, err := s.store.GetOrCreate(s.ctx, nil, "other", doc)
	s.Require().NoError(err)
	s.NotEqual(a.ID, c.ID, "name is part of the identity")

	err = s.db.Transaction(func(tx *gorm.DB) error {
		d, err := s.store.GetOrCreate(s.ctx, tx, "n", doc)
		if err != nil {
			return err
		}
		s.Equal(a.ID, d.ID)
		return nil
	})
	s.NoError(err)
}

func (s *ServiceSuite) TestPublish() {
	identifier := s.createDandiset("My Dataset.", publishableMetadata, s.owner, s.admin)
	asset := s.addAsset(identifier, "sub-1/a.nwb", 100, nwbAsset)

	published, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)
	s.Equal("0.210304.0506", published.Version)
	s.Equal(models.StatusValid, published.Status)

	described, err := s.versions.Describe(s.ctx, []models.Version{*s.version(identifier, published.Version), *s.version(identifier, models.DraftVersion)})
	s.Require().NoError(err)
	s.EqualValues(1, described[0].AssetCount)
	s.EqualValues(100, described[0].Size)
	s.EqualValues(1, described[1].AssetCount, "draft keeps its assets")
	s.EqualValues(100, described[1].Size)
	s.Equal(identifier, described[0].Dandiset.Identifier)
	s.Equal("My Dataset.", described[0].Name)

	count, err := s.assetRepo.CountPublishedVersions(s.ctx, nil, asset.ID)
	s.Require().NoError(err)
	s.EqualValues(1, count, "the same asset belongs to the draft and the published version")

	doc := s.storedMetadata(s.version(identifier, published.Version))
	url := "https://dandiarchive.org/dandiset/000001/0.210304.0506"
	s.Equal("DANDI:000001/0.210304.0506", doc["id"])
	s.Equal("DANDI:000001", doc["identifier"])
	s.Equal("0.210304.0506", doc["version"])
	s.Equal(url, doc["url"])
	s.Equal("https://bucket.example/dandisets/000001/0.210304.0506/assets.yaml", doc["manifestLocation"])
	s.Equal("https://schema.example/releases/0.4.4/context.json", doc["@context"])
	s.Equal("Doe, Jane (2021) My Dataset (Version 0.210304.0506) [Data set]. DANDI archive. "+url, doc["citation"])
	s.Equal("2021-03-04T05:06:30Z", doc["datePublished"])

	summary := doc["assetsSummary"].(map[string]interface{})
	s.Equal(json.Number("100"), summary["numberOfBytes"])
	s.Equal(json.Number("1"), summary["numberOfFiles"])

	publishedBy := doc["publishedBy"].(map[string]interface{})
	s.Equal("PublishActivity", publishedBy["schemaKey"])

	draft := s.storedMetadata(s.version(identifier, models.DraftVersion))
	s.NotContains(draft, "publishedBy", "the draft is not modified")

	report, err := s.dandisets.Get(s.ctx, identifier)
	s.Require().NoError(err)
	s.Require().NotNil(report.MostRecentPublishedVersion)
	s.Equal(published.Version, report.MostRecentPublishedVersion.Version)
	s.Require().NotNil(report.DraftVersion)
}

func (s *ServiceSuite) TestPublishTwiceInOneMinute() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)

	first, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)
	second, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)

	s.Equal("0.210304.0506", first.Version)
	s.Equal("0.210304.0507", second.Version)
	s.EqualValues(3, s.countVersions(identifier))
}

func (s *ServiceSuite) TestPublishRejectsNonDraft() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	published, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)
	before := s.countVersions(identifier)

	_, err = s.versions.Publish(s.ctx, s.admin, identifier, published.Version)
	var notAllowed *models.ErrorMethodNotAllowed
	s.Require().ErrorAs(err, &notAllowed)
	s.Equal(before, s.countVersions(identifier))
}

func (s *ServiceSuite) TestPublishPermissions() {
	identifier := s.createDandiset("D1", `{}`, s.owner)

	_, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	var denied *models.ErrorPermissionDenied
	s.Require().ErrorAs(err, &denied)
	s.Equal(models.ReasonNotOwner, denied.Reason, "admins must also own the dandiset")

	_, err = s.versions.Publish(s.ctx, s.owner, identifier, models.DraftVersion)
	s.Require().ErrorAs(err, &denied)
	s.Equal(models.ReasonNotAdmin, denied.Reason)
	s.Equal("Must be an admin to publish", denied.Error())

	_, err = s.versions.Publish(s.ctx, nil, identifier, models.DraftVersion)
	s.Require().ErrorAs(err, &denied)
	s.Equal(models.ReasonNotOwner, denied.Reason)

	s.EqualValues(1, s.countVersions(identifier))

	open := s.newVersionService(s.identifiers, AnyOwner, VersionServiceConfig{MaxAttempts: 1})
	_, err = open.Publish(s.ctx, s.owner, identifier, models.DraftVersion)
	s.NoError(err)
}

// collidingIdentifiers hands out a fixed sequence, ignoring what is stored.
type collidingIdentifiers struct {
	values []string
	calls  int
}

func (c *collidingIdentifiers) Next(context.Context, *gorm.DB, *uint) (string, error) {
	v := c.values[c.calls%len(c.values)]
	c.calls++
	return v, nil
}

func (s *ServiceSuite) TestPublishRetriesOnCollision() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	first, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)

	ids := &collidingIdentifiers{values: []string{first.Version, "0.210304.0600"}}
	svc := s.newVersionService(ids, AdminOnly, VersionServiceConfig{MaxAttempts: 3})

	second, err := svc.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)
	s.Equal("0.210304.0600", second.Version)
	s.Equal(2, ids.calls)
	s.EqualValues(3, s.countVersions(identifier))
}

func (s *ServiceSuite) TestPublishGivesUpAfterMaxAttempts() {
	identifier := s.createDandiset("D1", `{}`, s.owner, s.admin)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	first, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)

	ids := &collidingIdentifiers{values: []string{first.Version}}
	svc := s.newVersionService(ids, AdminOnly, VersionServiceConfig{MaxAttempts: 2})

	_, err = svc.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	var conflict *models.ErrorConflict
	s.Require().ErrorAs(err, &conflict)
	s.Equal(2, ids.calls)
	s.EqualValues(2, s.countVersions(identifier), "nothing from the failed attempts is kept")

	draft := s.version(identifier, models.DraftVersion)
	stats, err := s.versionRepo.Stats(s.ctx, nil, []uint{draft.ID, first.ID})
	s.Require().NoError(err)
	s.EqualValues(1, stats[draft.ID].AssetCount)
	s.EqualValues(1, stats[first.ID].AssetCount)
}

var errAttach = errors.New("attach failed")

// failingAttach stores versions normally but cannot attach assets to them.
type failingAttach struct {
	repositories.VersionRepository
}

func (failingAttach) AttachAssets(context.Context, *gorm.DB, uint, []uint) error {
	return errAttach
}

func (s *ServiceSuite) TestPublishRollsBackWhenAttachFails() {
	identifier := s.createDandiset("D1", publishableMetadata, s.owner, s.admin)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)

	var metadataRows int64
	s.Require().NoError(s.db.Model(&models.VersionMetadata{}).Count(&metadataRows).Error)

	svc := NewVersionService(s.db, VersionServiceConfig{MaxAttempts: 3, APIVersion: "1.0.0"}, VersionServiceDeps{
		Dandisets:   s.dandisetRepo,
		Versions:    failingAttach{s.versionRepo},
		Assets:      s.assetRepo,
		Store:       s.store,
		Populator:   s.populator,
		Identifiers: s.identifiers,
		Perms:       s.perms,
		Policy:      AdminOnly,
		Locks:       locker.NewLocal(),
		Now:         clock(testNow),
	}, s.log)

	_, err := svc.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().ErrorIs(err, errAttach)
	s.EqualValues(1, s.countVersions(identifier), "the new version row is rolled back")

	var after int64
	s.Require().NoError(s.db.Model(&models.VersionMetadata{}).Count(&after).Error)
	s.Equal(metadataRows, after, "the published metadata record is rolled back")

	// nothing left behind blocks a later publish
	published, err := s.versions.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.Require().NoError(err)
	s.Equal("0.210304.0506", published.Version)
}

func (s *ServiceSuite) TestPublishRequiresValidWhenConfigured() {
	identifier := s.createDandiset("D1", publishableMetadata, s.owner, s.admin)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	strict := s.newVersionService(s.identifiers, AdminOnly, VersionServiceConfig{MaxAttempts: 1, RequireValid: true})

	_, err := strict.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	var conflict *models.ErrorConflict
	s.Require().ErrorAs(err, &conflict)
	s.Contains(conflict.Message, "Pending")

	_, err = s.validation.ValidatePending(s.ctx)
	s.Require().NoError(err)

	_, err = strict.Publish(s.ctx, s.admin, identifier, models.DraftVersion)
	s.NoError(err)
}

func (s *ServiceSuite) TestValidationReport() {
	identifier := s.createDandiset("D1", publishableMetadata, s.owner)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	s.addAsset(identifier, "b.nwb", 10, `{}`)

	report, err := s.versions.ValidationReport(s.ctx, identifier, models.DraftVersion)
	s.Require().NoError(err)
	s.False(report.Valid)
	s.Equal(models.StatusPending, report.PublishStatus)
	s.Equal("2 assets have not been validated yet", report.ValidationError)

	_, err = s.validation.ValidatePending(s.ctx)
	s.Require().NoError(err)

	report, err = s.versions.ValidationReport(s.ctx, identifier, models.DraftVersion)
	s.Require().NoError(err)
	s.Equal(models.StatusValid, report.Status)
	s.False(report.Valid)
	s.Equal(models.StatusInvalid, report.PublishStatus)
	s.Equal("1 invalid asset metadatas", report.ValidationError)
}

func (s *ServiceSuite) TestPopulateUnsavedVersionUsesPlaceholder() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	draft := s.version(identifier, models.DraftVersion)

	unsaved := &models.Version{
		DandisetID: draft.DandisetID, Dandiset: draft.Dandiset,
		MetadataID: draft.MetadataID, Metadata: draft.Metadata,
		Version: "0.210304.0506",
	}
	doc, err := s.populator.Populate(s.ctx, nil, unsaved, nil)
	s.Require().NoError(err)
	s.Equal(map[string]interface{}{"numberOfBytes": 0, "numberOfFiles": 0}, map[string]interface{}(doc["assetsSummary"].(metadata.Document)))

	doc, err = s.populator.Populate(s.ctx, nil, unsaved, draft)
	s.Require().NoError(err)
	s.EqualValues(10, doc["assetsSummary"].(metadata.Document)["numberOfBytes"])
}

func (s *ServiceSuite) TestPopulateContextFollowsSchemaVersionKey() {
	cases := map[string]string{
		`{}`:                        "",
		`{"schemaVersion":"0.6.0"}`: "https://schema.example/releases/0.6.0/context.json",
		`{"schemaVersion":0.4}`:     "https://schema.example/releases/0.4/context.json",
		`{"schemaVersion":""}`:      "https://schema.example/releases//context.json",
	}
	for raw, want := range cases {
		identifier := s.createDandiset("D1", raw, s.owner)
		doc, err := s.populator.Populate(s.ctx, nil, s.version(identifier, models.DraftVersion), nil)
		s.Require().NoError(err)
		if want == "" {
			s.NotContains(doc, "@context", raw)
			continue
		}
		s.Equal(want, doc["@context"], raw)
	}
}

func (s *ServiceSuite) TestPopulateDegradesOnMalformedAssets() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	asset := s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	s.addAsset(identifier, "b.nwb", 20, nwbAsset)

	broken, err := s.store.GetOrCreateAsset(s.ctx, nil, s.decode(`{"contentSize":"lots"}`))
	s.Require().NoError(err)
	s.Require().NoError(s.db.Model(&models.Asset{}).Where("id = ?", asset.ID).Update("metadata_id", broken.ID).Error)

	draft := s.version(identifier, models.DraftVersion)
	doc, err := s.populator.Populate(s.ctx, nil, draft, nil)
	s.Require().NoError(err)
	s.Equal(map[string]interface{}{"numberOfBytes": 0, "numberOfFiles": 0}, map[string]interface{}(doc["assetsSummary"].(metadata.Document)))
}

func (s *ServiceSuite) TestPopulateDegradesWhenBudgetIsExhausted() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	for _, p := range []string{"a.nwb", "b.nwb", "c.nwb"} {
		s.addAsset(identifier, p, 10, nwbAsset)
	}
	draft := s.version(identifier, models.DraftVersion)

	tick := testNow
	advancing := func() (t time.Time) {
		t, tick = tick, tick.Add(time.Minute)
		return t
	}
	slow := NewMetadataPopulator(PopulatorConfig{BatchSize: 1, Budget: 90 * time.Second},
		s.assetRepo, manifests.NewResolver("https://bucket.example"), advancing, s.log)

	doc, err := slow.Populate(s.ctx, nil, draft, nil)
	s.Require().NoError(err)
	s.EqualValues(0, doc["assetsSummary"].(metadata.Document)["numberOfFiles"])
}

func (s *ServiceSuite) TestPopulateReturnsDatabaseErrors() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	s.addAsset(identifier, "a.nwb", 10, nwbAsset)
	draft := s.version(identifier, models.DraftVersion)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.populator.Populate(ctx, nil, draft, nil)
	s.Require().Error(err)
	s.True(errors.Is(err, context.Canceled))
}
