package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"dandi-api/logger"
	"dandi-api/models"
	"dandi-api/repositories"
)

// GarbageReport counts what garbage collection could remove.
type GarbageReport struct {
	Assets               int
	AssetBlobs           int64
	AssetBlobBytes       int64
	UnreferencedMetadata int64
}

// GarbageService exposes stale data to garbage collection. An asset is
// stale when no version holds it.
type GarbageService interface {
	StaleAssets(ctx context.Context) ([]models.Asset, error)
	Report(ctx context.Context) (GarbageReport, error)
	CollectAssets(ctx context.Context) (int64, error)
}

type garbageService struct {
	assets          repositories.AssetRepository
	versionMetadata repositories.VersionMetadataRepository
	log             *logger.Logger
}

func NewGarbageService(assets repositories.AssetRepository, versionMetadata repositories.VersionMetadataRepository, baseLog *logger.Logger) GarbageService {
	return &garbageService{
		assets:          assets,
		versionMetadata: versionMetadata,
		log:             baseLog.With("service", "GarbageService"),
	}
}

func (s *garbageService) StaleAssets(ctx context.Context) ([]models.Asset, error) {
	return s.assets.Stale(ctx, nil)
}

func (s *garbageService) Report(ctx context.Context) (GarbageReport, error) {
	var (
		report GarbageReport
		stale  []models.Asset
		blobs  repositories.BlobUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stale, err = s.assets.Stale(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		blobs, err = s.assets.StaleBlobs(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		report.UnreferencedMetadata, err = s.versionMetadata.CountUnreferenced(gctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return GarbageReport{}, err
	}

	report.Assets = len(stale)
	report.AssetBlobs = blobs.Count
	report.AssetBlobBytes = blobs.Bytes
	return report, nil
}

// CollectAssets deletes stale assets. Assets attached to a version between
// listing and deletion are kept.
func (s *garbageService) CollectAssets(ctx context.Context) (int64, error) {
	stale, err := s.assets.Stale(ctx, nil)
	if err != nil {
		return 0, err
	}
	ids := make([]uint, len(stale))
	for i := range stale {
		ids[i] = stale[i].ID
	}
	deleted, err := s.assets.DeleteStale(ctx, nil, ids)
	if err != nil {
		return 0, err
	}
	s.log.Info("stale assets deleted", "count", deleted)
	return deleted, nil
}
