package services

import (
	"time"

	"dandi-api/models"
)

func (s *ServiceSuite) TestFormatVersion() {
	s.Equal("0.210304.0506", FormatVersion(testNow))
	s.Equal("0.991231.2359", FormatVersion(time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)))

	east := time.FixedZone("east", 3*60*60)
	s.Equal("0.210304.0506", FormatVersion(testNow.In(east)))
	s.Regexp(models.VersionRegex, FormatVersion(testNow))
}

func (s *ServiceSuite) TestIdentifierIsStableUntilPersisted() {
	identifier := s.createDandiset("D1", `{}`, s.owner)
	id, _ := models.ParseIdentifier(identifier)

	first, err := s.identifiers.Next(s.ctx, nil, &id)
	s.Require().NoError(err)
	second, err := s.identifiers.Next(s.ctx, nil, &id)
	s.Require().NoError(err)

	s.Equal("0.210304.0506", first)
	s.Equal(first, second)
}

func (s *ServiceSuite) TestIdentifierAdvancesPastTakenMinutes() {
	taken := s.createDandiset("D1", `{}`, s.owner)
	free := s.createDandiset("D2", `{}`, s.owner)
	takenID, _ := models.ParseIdentifier(taken)
	freeID, _ := models.ParseIdentifier(free)

	draft := s.version(taken, models.DraftVersion)
	for _, v := range []string{"0.210304.0506", "0.210304.0507"} {
		s.Require().NoError(s.versionRepo.Create(s.ctx, nil, &models.Version{
			DandisetID: takenID, MetadataID: draft.MetadataID, Version: v, Status: models.StatusValid,
		}))
	}

	next, err := s.identifiers.Next(s.ctx, nil, &takenID)
	s.Require().NoError(err)
	s.Equal("0.210304.0508", next)

	next, err = s.identifiers.Next(s.ctx, nil, &freeID)
	s.Require().NoError(err)
	s.Equal("0.210304.0506", next, "other dandisets do not collide")

	next, err = s.identifiers.Next(s.ctx, nil, nil)
	s.Require().NoError(err)
	s.Equal("0.210304.0508", next, "without a dandiset every version counts")
}

func (s *ServiceSuite) TestIdentifierRollsOverDay() {
	gen := NewIdentifierGenerator(s.versionRepo, clock(time.Date(2021, 12, 31, 23, 59, 0, 0, time.UTC)))
	identifier := s.createDandiset("D1", `{}`, s.owner)
	id, _ := models.ParseIdentifier(identifier)
	draft := s.version(identifier, models.DraftVersion)
	s.Require().NoError(s.versionRepo.Create(s.ctx, nil, &models.Version{
		DandisetID: id, MetadataID: draft.MetadataID, Version: "0.211231.2359", Status: models.StatusValid,
	}))

	next, err := gen.Next(s.ctx, nil, &id)
	s.Require().NoError(err)
	s.Equal("0.220101.0000", next)
}
