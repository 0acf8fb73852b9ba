package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dandi-api/logger"
	"dandi-api/manifests"
	"dandi-api/metadata"
	"dandi-api/models"
	"dandi-api/repositories"
)

var tracer = otel.Tracer("dandi-api/services")

var errSummaryBudget = errors.New("assets summary time budget exhausted")

// PopulatorConfig carries the archive settings stamped into metadata.
type PopulatorConfig struct {
	WebAppURL            string
	SchemaContextBaseURL string
	// BatchSize is the number of asset documents read per query.
	BatchSize int
	// Budget bounds the time spent summarizing assets. Zero means no bound.
	Budget time.Duration
}

// MetadataPopulator derives the full metadata document of a version.
type MetadataPopulator interface {
	// Populate computes the metadata of v. The assetsSummary is built from
	// the assets of assetSource, or of v itself when assetSource is nil.
	// v must have its Dandiset and Metadata loaded.
	Populate(ctx context.Context, tx *gorm.DB, v *models.Version, assetSource *models.Version) (metadata.Document, error)
	// PopulateDraft prepares an edited draft document: computed fields are
	// dropped and only name and identifier are injected.
	PopulateDraft(dandiset *models.Dandiset, name string, doc metadata.Document) metadata.Document
}

type metadataPopulator struct {
	cfg       PopulatorConfig
	assets    repositories.AssetRepository
	manifests *manifests.Resolver
	now       func() time.Time
	log       *logger.Logger
}

func NewMetadataPopulator(cfg PopulatorConfig, assets repositories.AssetRepository, resolver *manifests.Resolver, now func() time.Time, baseLog *logger.Logger) MetadataPopulator {
	if now == nil {
		now = time.Now
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}
	return &metadataPopulator{
		cfg:       cfg,
		assets:    assets,
		manifests: resolver,
		now:       now,
		log:       baseLog.With("service", "MetadataPopulator"),
	}
}

func (p *metadataPopulator) Populate(ctx context.Context, tx *gorm.DB, v *models.Version, assetSource *models.Version) (metadata.Document, error) {
	if v.Dandiset == nil || v.Metadata == nil {
		return nil, fmt.Errorf("version %q has no dandiset or metadata loaded", v.Version)
	}
	if assetSource == nil {
		assetSource = v
	}

	ctx, span := tracer.Start(ctx, "metadata.populate")
	defer span.End()
	span.SetAttributes(
		attribute.String("dandiset", v.Dandiset.Identifier()),
		attribute.String("version", v.Version),
	)

	base, err := metadata.Decode(v.Metadata.Metadata)
	if err != nil {
		return nil, err
	}

	summary, err := p.summarize(ctx, tx, assetSource)
	if err != nil {
		return nil, err
	}

	identifier := v.Dandiset.Identifier()
	doc := base.Clone()
	doc["manifestLocation"] = p.manifests.Location(identifier, v.Version)
	doc["name"] = v.Metadata.Name
	doc["identifier"] = "DANDI:" + identifier
	doc["version"] = v.Version
	doc["id"] = fmt.Sprintf("DANDI:%s/%s", identifier, v.Version)
	doc["url"] = fmt.Sprintf("%s/dandiset/%s/%s", p.cfg.WebAppURL, identifier, v.Version)
	doc["assetsSummary"] = summary
	doc["citation"] = metadata.Citation(doc, p.now().Year())
	if v.DOI != nil && *v.DOI != "" {
		doc["doi"] = *v.DOI
	}
	if raw, ok := doc["schemaVersion"]; ok {
		schemaVersion := ""
		if raw != nil {
			schemaVersion = fmt.Sprint(raw)
		}
		doc["@context"] = metadata.ContextURL(p.cfg.SchemaContextBaseURL, schemaVersion)
	}
	return doc, nil
}

// summarize aggregates the asset metadata of source. Unreadable asset
// metadata or an exhausted budget yields the placeholder summary.
func (p *metadataPopulator) summarize(ctx context.Context, tx *gorm.DB, source *models.Version) (metadata.Document, error) {
	if source.ID == 0 {
		return metadata.Placeholder(), nil
	}

	var deadline time.Time
	if p.cfg.Budget > 0 {
		deadline = p.now().Add(p.cfg.Budget)
	}

	agg := metadata.NewAggregator()
	err := p.assets.EachMetadataBatch(ctx, tx, source.ID, p.cfg.BatchSize, func(batch []datatypes.JSON) error {
		for _, raw := range batch {
			doc, err := metadata.Decode(raw)
			if err != nil {
				return err
			}
			if err := agg.Add(doc); err != nil {
				return err
			}
		}
		if !deadline.IsZero() && p.now().After(deadline) {
			return errSummaryBudget
		}
		return nil
	})
	switch {
	case err == nil:
		return agg.Summary(), nil
	case metadata.Error.Has(err), errors.Is(err, errSummaryBudget):
		p.log.Error("Error calculating assetsSummary", "version_id", source.ID, "error", err)
		return metadata.Placeholder(), nil
	default:
		return nil, err
	}
}

func (p *metadataPopulator) PopulateDraft(dandiset *models.Dandiset, name string, doc metadata.Document) metadata.Document {
	out := metadata.Strip(doc)
	out["name"] = name
	out["identifier"] = "DANDI:" + dandiset.Identifier()
	return out
}
