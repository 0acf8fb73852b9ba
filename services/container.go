package services

import (
	"time"

	"gorm.io/gorm"

	"dandi-api/config"
	"dandi-api/locker"
	"dandi-api/logger"
	"dandi-api/manifests"
	"dandi-api/repositories"
)

// Container holds the services built over one database.
type Container struct {
	Auth       AuthService
	Dandisets  DandisetService
	Versions   VersionService
	Assets     AssetService
	Validation ValidationService
	Garbage    GarbageService
}

// NewContainer wires repositories and services from cfg. now is the clock
// used for version identifiers, citations and publish provenance.
func NewContainer(db *gorm.DB, cfg *config.Config, locks locker.Locker, now func() time.Time, log *logger.Logger) *Container {
	if now == nil {
		now = time.Now
	}

	userRepo := repositories.NewUserRepository(db, log)
	dandisetRepo := repositories.NewDandisetRepository(db, log)
	versionRepo := repositories.NewVersionRepository(db, log)
	versionMetaRepo := repositories.NewVersionMetadataRepository(db, log)
	assetRepo := repositories.NewAssetRepository(db, log)

	store := NewMetadataStore(versionMetaRepo, assetRepo, log)
	populator := NewMetadataPopulator(PopulatorConfig{
		WebAppURL:            cfg.Archive.WebAppURL,
		SchemaContextBaseURL: cfg.Archive.SchemaContextBaseURL,
		BatchSize:            cfg.Summary.BatchSize,
		Budget:               cfg.Summary.Budget,
	}, assetRepo, manifests.NewResolver(cfg.Archive.ManifestBaseURL), now, log)
	perms := NewPermissionChecker(dandisetRepo)

	versions := NewVersionService(db, VersionServiceConfig{
		MaxAttempts:  cfg.Publish.MaxAttempts,
		RequireValid: cfg.Publish.RequireValid,
		APIVersion:   cfg.Archive.APIVersion,
	}, VersionServiceDeps{
		Dandisets:   dandisetRepo,
		Versions:    versionRepo,
		Assets:      assetRepo,
		Store:       store,
		Populator:   populator,
		Identifiers: NewIdentifierGenerator(versionRepo, now),
		Perms:       perms,
		Policy:      PolicyFor(cfg.Publish.RequireAdmin),
		Locks:       locks,
		Now:         now,
	}, log)

	return &Container{
		Auth:       NewAuthService(userRepo, cfg.JWT, log),
		Dandisets:  NewDandisetService(db, dandisetRepo, versionRepo, store, populator, versions, log),
		Versions:   versions,
		Assets:     NewAssetService(db, dandisetRepo, versionRepo, assetRepo, store, perms, log),
		Validation: NewValidationService(db, versionRepo, assetRepo, versions, log),
		Garbage:    NewGarbageService(assetRepo, versionMetaRepo, log),
	}
}
