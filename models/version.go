package models

import (
	"fmt"
	"regexp"
	"time"
)

// DraftVersion is the version string of a dandiset's single mutable version.
const DraftVersion = "draft"

var VersionRegex = regexp.MustCompile(`^(0\.\d{6}\.\d{4}|draft)$`)

type Version struct {
	ID              uint             `json:"-" gorm:"primarykey"`
	DandisetID      uint             `json:"-" gorm:"not null;uniqueIndex:idx_dandiset_version"`
	Dandiset        *Dandiset        `json:"-" gorm:"foreignKey:DandisetID"`
	MetadataID      uint             `json:"-" gorm:"not null;index"`
	Metadata        *VersionMetadata `json:"-" gorm:"foreignKey:MetadataID"`
	Version         string           `json:"version" gorm:"type:varchar(13);not null;uniqueIndex:idx_dandiset_version"`
	DOI             *string          `json:"doi,omitempty" gorm:"type:varchar(64)"`
	Status          Status           `json:"status" gorm:"type:varchar(20);not null;default:'Pending'"`
	ValidationError string           `json:"validation_error" gorm:"type:text"`
	Assets          []Asset          `json:"-" gorm:"many2many:version_assets;"`
	CreatedAt       time.Time        `json:"created"`
	UpdatedAt       time.Time        `json:"modified"`
}

func (v *Version) IsDraft() bool {
	return v.Version == DraftVersion
}

// Name is the name held by the version's metadata record, or "" when the
// record is not loaded.
func (v *Version) Name() string {
	if v.Metadata == nil {
		return ""
	}
	return v.Metadata.Name
}

// Transition moves the version to status, enforcing the lifecycle.
func (v *Version) Transition(to Status) error {
	if err := ValidateTransition(v.Status, to); err != nil {
		return err
	}
	v.Status = to
	return nil
}

// Valid reports whether the version and every one of its assets are Valid.
func (v *Version) Valid(counts AssetStatusCounts) bool {
	return v.Status == StatusValid && counts.NotValid() == 0
}

// PublishStatus is the version's own status, downgraded to Invalid when the
// version is Valid but one of its assets is not.
func (v *Version) PublishStatus(counts AssetStatusCounts) Status {
	if v.Status == StatusValid && counts.NotValid() > 0 {
		return StatusInvalid
	}
	return v.Status
}

// PublishValidationError explains why the version cannot be published. The
// version's own error wins, then invalid assets, then unvalidated assets.
func (v *Version) PublishValidationError(counts AssetStatusCounts) string {
	if v.ValidationError != "" {
		return v.ValidationError
	}
	if n := counts[StatusInvalid]; n > 0 {
		return fmt.Sprintf("%d invalid asset metadatas", n)
	}
	if n := counts.Unvalidated(); n > 0 {
		return fmt.Sprintf("%d assets have not been validated yet", n)
	}
	return ""
}
