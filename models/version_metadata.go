package models

import (
	"time"

	"gorm.io/datatypes"
)

// VersionMetadata is an immutable metadata record shared by every version
// whose (name, metadata) is identical. MetadataHash is the sha256 of the
// canonical JSON encoding of Metadata.
type VersionMetadata struct {
	ID           uint           `json:"-" gorm:"primarykey"`
	Name         string         `json:"name" gorm:"type:varchar(300);not null;uniqueIndex:idx_version_metadata_content"`
	Metadata     datatypes.JSON `json:"metadata"`
	MetadataHash string         `json:"-" gorm:"type:char(64);not null;uniqueIndex:idx_version_metadata_content"`
	References   int64          `json:"references" gorm:"-"`
	CreatedAt    time.Time      `json:"created"`
	UpdatedAt    time.Time      `json:"modified"`
}

func (VersionMetadata) TableName() string { return "version_metadata" }
