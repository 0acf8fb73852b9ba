package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"dandi-api/repositories"
)

// IdentifierGenerator produces identifiers for new published versions.
type IdentifierGenerator interface {
	// Next returns the first free identifier at or after the current minute,
	// checked against the dandiset's versions, or against every version when
	// dandisetID is nil. Only persisted versions are considered.
	Next(ctx context.Context, tx *gorm.DB, dandisetID *uint) (string, error)
}

type clockIdentifierGenerator struct {
	versions repositories.VersionRepository
	now      func() time.Time
}

func NewIdentifierGenerator(versions repositories.VersionRepository, now func() time.Time) IdentifierGenerator {
	if now == nil {
		now = time.Now
	}
	return &clockIdentifierGenerator{versions: versions, now: now}
}

// FormatVersion renders t as 0.YYMMDD.HHMM in UTC.
func FormatVersion(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("0.%02d%02d%02d.%02d%02d", t.Year()%100, int(t.Month()), t.Day(), t.Hour(), t.Minute())
}

func (g *clockIdentifierGenerator) Next(ctx context.Context, tx *gorm.DB, dandisetID *uint) (string, error) {
	t := g.now().UTC().Truncate(time.Minute)
	for {
		candidate := FormatVersion(t)
		taken, err := g.versions.Exists(ctx, tx, dandisetID, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		t = t.Add(time.Minute)
	}
}
